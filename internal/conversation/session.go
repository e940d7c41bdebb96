package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/deskflow-io/deskflow/internal/apiclient"
	"github.com/deskflow-io/deskflow/internal/localstate"
	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// ChatAPI is the slice of the API client a session needs.
type ChatAPI interface {
	SendMessage(ctx context.Context, req apiclient.ChatMessageRequest) (*apiclient.ChatMessageResponse, error)
	GetConversation(ctx context.Context, id string) (*protocol.ConversationState, error)
}

// Notifier publishes session activity on the real-time channel.
// *channel.Client satisfies it; a nil Notifier disables notifications.
type Notifier interface {
	TypingStart(conversationID, userName string)
	TypingStop(conversationID, userName string)
	SendConversationUpdate(p protocol.ConversationEventPayload)
}

// Session runs one intake conversation. The server's engine is
// authoritative: every input goes to POST /chat/message and the returned
// state replaces the local one. When the backend is unreachable the
// session degrades to the local engine so the user can keep going, and
// reconciles on the next successful round trip.
type Session struct {
	engine *Engine
	api    ChatAPI
	store  *localstate.Store
	notify Notifier
	logger *slog.Logger

	mu      sync.Mutex
	state   *protocol.ConversationState
	offline bool
}

// NewSession creates a session. store and notify may be nil; api may be
// nil for a purely local session (tests, --offline).
func NewSession(api ChatAPI, store *localstate.Store, notify Notifier, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		engine: NewEngine(),
		api:    api,
		store:  store,
		notify: notify,
		logger: logger.With("component", "session"),
	}
}

// Resume restores the persisted in-progress conversation, or starts a
// fresh one if none exists, the stored one is unreadable, or the stored
// one already produced a ticket.
func (s *Session) Resume() *protocol.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		var saved protocol.ConversationState
		if s.store.GetOr(localstate.KeyConversation, &saved, nil) && !saved.IsComplete && len(saved.Messages) > 0 {
			s.logger.Info("resuming conversation",
				"conversationId", saved.ID, "step", saved.CurrentStep)
			s.state = &saved
			return s.snapshotLocked()
		}
	}
	s.state = s.engine.Initialize()
	s.persistLocked()
	return s.snapshotLocked()
}

// State returns a copy of the current conversation state. The messages
// slice is shared but append-only, so callers may range over it freely.
func (s *Session) State() *protocol.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return s.snapshotLocked()
}

// Offline reports whether the last Send fell back to the local engine.
func (s *Session) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// Send processes one piece of user input. The user's message is echoed
// into the local transcript immediately; the server's returned state
// then replaces the local one in arrival order. Transport and server
// failures switch the session to the local engine instead of erroring.
func (s *Session) Send(ctx context.Context, text string) (Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Response{}, fmt.Errorf("conversation: empty input")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		s.state = s.engine.Initialize()
	}
	if s.state.IsComplete {
		// One terminal acknowledgement, no further transitions.
		resp := s.engine.ProcessInput(text, s.state)
		s.persistLocked()
		return resp, nil
	}

	if s.notify != nil {
		s.notify.TypingStart(s.state.ID, s.state.Data.UserName)
		defer s.notify.TypingStop(s.state.ID, s.state.Data.UserName)
	}

	// Optimistic echo before the round trip.
	s.engine.appendUser(s.state, text)

	resp, err := s.sendRemoteLocked(ctx, text)
	if err != nil {
		if !fallbackWorthy(err) {
			// Drop the echo: the server rejected the message outright
			// and a retry would resend it.
			s.state.Messages = s.state.Messages[:len(s.state.Messages)-1]
			return Response{}, err
		}
		s.logger.Warn("backend unreachable, using local engine", "error", err)
		s.offline = true
		resp = s.engine.processEchoed(text, s.state)
	}

	s.persistLocked()
	s.announceLocked()
	if s.state.IsComplete && s.store != nil {
		if err := s.store.Delete(localstate.DraftKey(s.state.ID)); err != nil {
			s.logger.Debug("draft cleanup failed", "error", err)
		}
	}
	return resp, nil
}

// sendRemoteLocked runs the server round trip and, on success, adopts
// the returned state wholesale.
func (s *Session) sendRemoteLocked(ctx context.Context, text string) (Response, error) {
	if s.api == nil {
		return Response{}, &apiclient.Error{Kind: apiclient.KindNetwork, Message: "no backend configured"}
	}
	resp, err := s.api.SendMessage(ctx, apiclient.ChatMessageRequest{
		ConversationID: s.state.ID,
		Content:        text,
		UserName:       s.state.Data.UserName,
	})
	if err != nil {
		return Response{}, err
	}

	conv := resp.Conversation
	if conv.ID == "" {
		conv.ID = s.state.ID
	}
	s.state = &conv
	s.offline = false

	return Response{
		Type:         mapResponseType(resp.ResponseType),
		QuickReplies: resp.QuickReplies,
		ExpectsInput: resp.ExpectsInput,
	}, nil
}

// Reset discards the current conversation and starts over.
func (s *Session) Reset() *protocol.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil && s.state != nil {
		if err := s.store.Delete(localstate.DraftKey(s.state.ID)); err != nil {
			s.logger.Debug("draft cleanup failed", "error", err)
		}
	}
	s.state = s.engine.Initialize()
	s.persistLocked()
	return s.snapshotLocked()
}

// SaveDraft stores partially composed input for the active conversation.
func (s *Session) SaveDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil || s.state == nil {
		return
	}
	key := localstate.DraftKey(s.state.ID)
	if strings.TrimSpace(text) == "" {
		if err := s.store.Delete(key); err != nil {
			s.logger.Debug("draft delete failed", "error", err)
		}
		return
	}
	if err := s.store.Set(key, text); err != nil {
		s.logger.Debug("draft save failed", "error", err)
	}
}

// LoadDraft returns any stored draft for the active conversation.
func (s *Session) LoadDraft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil || s.state == nil {
		return ""
	}
	var draft string
	s.store.GetOr(localstate.DraftKey(s.state.ID), &draft, nil)
	return draft
}

// Progress reports intake completion for the current step as a
// percentage.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return 0
	}
	return Progress(s.state.CurrentStep)
}

func (s *Session) persistLocked() {
	if s.store == nil {
		return
	}
	if err := s.store.Set(localstate.KeyConversation, s.state); err != nil {
		s.logger.Warn("conversation persist failed", "error", err)
	}
}

func (s *Session) announceLocked() {
	if s.notify == nil {
		return
	}
	p := protocol.ConversationEventPayload{
		ConversationID: s.state.ID,
		Step:           s.state.CurrentStep,
	}
	if n := len(s.state.Messages); n > 0 {
		msg := s.state.Messages[n-1]
		p.Message = &msg
	}
	s.notify.SendConversationUpdate(p)
}

func (s *Session) snapshotLocked() *protocol.ConversationState {
	copied := *s.state
	return &copied
}

// fallbackWorthy reports whether an API failure means the backend is
// unreachable or broken, as opposed to rejecting this particular input.
func fallbackWorthy(err error) bool {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case apiclient.KindNetwork, apiclient.KindTimeout, apiclient.KindInternal:
			return true
		}
		return false
	}
	return true
}

func mapResponseType(t string) ResponseType {
	switch t {
	case string(ResponseConfirmation):
		return ResponseConfirmation
	case string(ResponseCompletion):
		return ResponseCompletion
	case string(ResponseReprompt):
		return ResponseReprompt
	default:
		return ResponseQuestion
	}
}

// Package conversation drives the guided ticket-intake dialogue. The
// backend computes every transition authoritatively; the engine here
// reproduces the step taxonomy so the client can echo the user's
// message optimistically and keep working when the backend is away.
package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// ResponseType tags what kind of reply the engine produced.
type ResponseType string

const (
	ResponseQuestion     ResponseType = "question"
	ResponseConfirmation ResponseType = "confirmation"
	ResponseCompletion   ResponseType = "completion"
	ResponseReprompt     ResponseType = "reprompt"
)

// Response describes the assistant's reply to one user input.
type Response struct {
	Type         ResponseType
	QuickReplies []string
	ExpectsInput bool
}

// Input length bounds per step.
const (
	minNameLen   = 2
	maxNameLen   = 50
	minIssueLen  = 10
	minDetailLen = 5
)

// Engine is the intake state machine. The zero value is not usable;
// construct with NewEngine.
type Engine struct {
	now   func() time.Time
	newID func() string
}

// NewEngine creates an Engine with real clock and ID generation.
func NewEngine() *Engine {
	return &Engine{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Initialize produces a fresh conversation at the greeting step with a
// single assistant greeting. It always succeeds.
func (e *Engine) Initialize() *protocol.ConversationState {
	state := &protocol.ConversationState{
		ID:          e.newID(),
		CurrentStep: protocol.StepGreeting,
		StartedAt:   e.now(),
	}
	e.appendAssistant(state,
		"Hi! I'm here to help you open a support ticket. What's your name?",
		nil)
	return state
}

// ValidateInput is a pure predicate for whether text is acceptable at a
// step. It never panics: unknown steps accept any non-empty input.
func ValidateInput(text string, step protocol.ConversationStep) bool {
	t := strings.TrimSpace(text)
	switch step {
	case protocol.StepGreeting, protocol.StepCollectName:
		return len(t) >= minNameLen && len(t) <= maxNameLen
	case protocol.StepCollectIssue:
		return len(t) >= minIssueLen
	case protocol.StepClarifyDetails:
		return len(t) >= minDetailLen
	default:
		return t != ""
	}
}

// ProcessInput advances the conversation with one piece of user input.
// The user's message is appended, the next step computed, and exactly
// one assistant reply appended. Invalid input produces a reprompt and
// leaves the step unchanged; ProcessInput never returns an error.
func (e *Engine) ProcessInput(text string, state *protocol.ConversationState) Response {
	text = strings.TrimSpace(text)
	e.appendUser(state, text)
	return e.processEchoed(text, state)
}

// processEchoed computes the transition for input whose user message
// has already been appended (the optimistic-echo path).
func (e *Engine) processEchoed(text string, state *protocol.ConversationState) Response {
	if !ValidateInput(text, state.CurrentStep) {
		return e.reprompt(state)
	}

	switch state.CurrentStep {
	case protocol.StepGreeting, protocol.StepCollectName:
		return e.handleName(text, state)
	case protocol.StepCollectIssue:
		return e.handleIssue(text, state)
	case protocol.StepClarifyDetails:
		return e.handleDetail(text, state)
	case protocol.StepSuggestCategory, protocol.StepConfirmCategory:
		return e.handleCategoryChoice(text, state)
	case protocol.StepFinalConfirmation:
		return e.handleFinalConfirmation(text, state)
	case protocol.StepTicketCreated:
		e.appendAssistant(state,
			fmt.Sprintf("Your ticket %s has already been created. Start a new conversation to open another one.", state.TicketID),
			nil)
		return Response{Type: ResponseCompletion, ExpectsInput: false}
	default:
		// Error state: acknowledge and restart the sequence.
		state.CurrentStep = protocol.StepCollectName
		e.appendAssistant(state,
			"Something went wrong on our side. Let's start over — what's your name?",
			nil)
		return Response{Type: ResponseQuestion, ExpectsInput: true}
	}
}

func (e *Engine) handleName(name string, state *protocol.ConversationState) Response {
	state.Data.UserName = name
	state.CurrentStep = protocol.StepCollectIssue
	e.appendAssistant(state,
		fmt.Sprintf("Nice to meet you, %s! Please describe the issue you're running into.", name),
		nil)
	return Response{Type: ResponseQuestion, ExpectsInput: true}
}

func (e *Engine) handleIssue(text string, state *protocol.ConversationState) Response {
	state.Data.IssueDescription = text
	state.Data.IssueTitle = DeriveTitle(text)
	state.CurrentStep = protocol.StepClarifyDetails
	e.appendAssistant(state,
		"Thanks. Could you share any extra details — when it started, what you were doing, any error messages?",
		nil)
	return Response{Type: ResponseQuestion, ExpectsInput: true}
}

func (e *Engine) handleDetail(text string, state *protocol.ConversationState) Response {
	state.Data.AdditionalDetails = append(state.Data.AdditionalDetails, text)

	combined := state.Data.IssueDescription + " " + strings.Join(state.Data.AdditionalDetails, " ")
	state.Data.SuggestedCategory = SuggestCategory(combined)
	state.CurrentStep = protocol.StepSuggestCategory

	e.appendAssistant(state,
		fmt.Sprintf("This sounds like a %s issue. Did I get that right?", state.Data.SuggestedCategory.Label()),
		map[string]any{
			protocol.MetaQuickReplies: []string{"Yes", "No, pick another"},
			protocol.MetaInputType:    "choice",
		})
	return Response{
		Type:         ResponseConfirmation,
		QuickReplies: []string{"Yes", "No, pick another"},
		ExpectsInput: true,
	}
}

// handleCategoryChoice resolves the suggested category. An affirmation
// confirms the suggestion; naming a known category confirms that one
// instead; anything else re-presents the choices and stays put.
func (e *Engine) handleCategoryChoice(text string, state *protocol.ConversationState) Response {
	if isAffirmative(text) {
		state.Data.ConfirmedCategory = state.Data.SuggestedCategory
		return e.toFinalConfirmation(state)
	}
	if cat, ok := matchCategory(text); ok {
		state.Data.ConfirmedCategory = cat
		return e.toFinalConfirmation(state)
	}

	labels := make([]string, 0, len(protocol.Categories))
	for _, c := range protocol.Categories {
		labels = append(labels, c.Label())
	}
	state.CurrentStep = protocol.StepConfirmCategory
	e.appendAssistant(state,
		"No problem — which of these fits best? "+strings.Join(labels, ", "),
		map[string]any{
			protocol.MetaQuickReplies: labels,
			protocol.MetaInputType:    "choice",
		})
	return Response{Type: ResponseQuestion, QuickReplies: labels, ExpectsInput: true}
}

func (e *Engine) toFinalConfirmation(state *protocol.ConversationState) Response {
	state.CurrentStep = protocol.StepFinalConfirmation
	e.appendAssistant(state,
		fmt.Sprintf("Here's what I have:\n  Name: %s\n  Issue: %s\n  Category: %s\nShall I create the ticket?",
			state.Data.UserName, state.Data.IssueTitle, state.Data.ConfirmedCategory.Label()),
		map[string]any{
			protocol.MetaQuickReplies: []string{"Yes, create it", "No, change something"},
			protocol.MetaInputType:    "choice",
		})
	return Response{
		Type:         ResponseConfirmation,
		QuickReplies: []string{"Yes, create it", "No, change something"},
		ExpectsInput: true,
	}
}

func (e *Engine) handleFinalConfirmation(text string, state *protocol.ConversationState) Response {
	if isAffirmative(text) {
		state.CurrentStep = protocol.StepTicketCreated
		state.IsComplete = true
		state.TicketID = e.placeholderTicketID()
		completed := e.now()
		state.CompletedAt = &completed
		e.appendAssistant(state,
			fmt.Sprintf("Done! Your ticket %s has been created. Our team will follow up shortly.", state.TicketID),
			nil)
		return Response{Type: ResponseCompletion, ExpectsInput: false}
	}

	// Rejection walks back to the start of the data collection.
	state.CurrentStep = protocol.StepCollectName
	e.appendAssistant(state,
		"Okay, let's fix that. What would you like to change? We'll go through it again — what's your name?",
		nil)
	return Response{Type: ResponseQuestion, ExpectsInput: true}
}

// reprompt asks again without advancing. Exactly one assistant message
// is appended.
func (e *Engine) reprompt(state *protocol.ConversationState) Response {
	var msg string
	switch state.CurrentStep {
	case protocol.StepGreeting, protocol.StepCollectName:
		msg = fmt.Sprintf("Please enter a name between %d and %d characters.", minNameLen, maxNameLen)
	case protocol.StepCollectIssue:
		msg = fmt.Sprintf("Could you describe the issue in a bit more detail (at least %d characters)?", minIssueLen)
	case protocol.StepClarifyDetails:
		msg = "Could you add a little more detail?"
	default:
		msg = "Sorry, I didn't catch that — could you try again?"
	}
	e.appendAssistant(state, msg, nil)
	return Response{Type: ResponseReprompt, ExpectsInput: true}
}

func (e *Engine) appendUser(state *protocol.ConversationState, content string) {
	state.Messages = append(state.Messages, protocol.Message{
		ID:        e.newID(),
		Role:      protocol.RoleUser,
		Content:   content,
		Timestamp: e.now(),
	})
}

func (e *Engine) appendAssistant(state *protocol.ConversationState, content string, metadata map[string]any) {
	state.Messages = append(state.Messages, protocol.Message{
		ID:        e.newID(),
		Role:      protocol.RoleAssistant,
		Content:   content,
		Timestamp: e.now(),
		Metadata:  metadata,
	})
}

// placeholderTicketID generates the client-side ticket reference shown
// until the server's created ticket arrives.
func (e *Engine) placeholderTicketID() string {
	id := e.newID()
	if len(id) > 8 {
		id = id[:8]
	}
	return "TKT-" + strings.ToUpper(id)
}

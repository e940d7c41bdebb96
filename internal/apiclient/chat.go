package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// ChatMessageRequest is the POST /chat/message body. ConversationID is
// empty for the first message of a session; the server then assigns one.
type ChatMessageRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content"`
	UserName       string `json:"userName,omitempty"`
}

// ChatMessageResponse mirrors the server's conversation transition: the
// authoritative state after processing plus the assistant's reply and
// its UI hints.
type ChatMessageResponse struct {
	Conversation protocol.ConversationState `json:"conversation"`
	Reply        protocol.Message           `json:"reply"`
	ResponseType string                     `json:"responseType,omitempty"` // "question", "confirmation", "completion", "reprompt"
	QuickReplies []string                   `json:"quickReplies,omitempty"`
	ExpectsInput bool                       `json:"expectsInput"`
}

// SendMessage submits user input to the server-side conversation engine.
func (c *Client) SendMessage(ctx context.Context, req ChatMessageRequest) (*ChatMessageResponse, error) {
	if req.Content == "" {
		return nil, &Error{Kind: KindValidation, Message: "content is required"}
	}
	var resp ChatMessageResponse
	if err := c.do(ctx, http.MethodPost, "/chat/message", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConversation fetches a conversation snapshot by ID.
func (c *Client) GetConversation(ctx context.Context, id string) (*protocol.ConversationState, error) {
	var conv protocol.ConversationState
	if err := c.do(ctx, http.MethodGet, "/chat/conversations/"+url.PathEscape(id), nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

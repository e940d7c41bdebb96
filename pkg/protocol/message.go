package protocol

import "time"

// MessageRole identifies who produced a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Metadata keys carried on assistant messages. The set is closed:
// anything else is ignored by the client.
const (
	MetaQuickReplies = "quickReplies" // []string of suggested replies
	MetaInputType    = "inputType"    // "text" or "choice"
)

// Message is a single entry in an intake conversation. Messages are
// append-only; once appended a message is never mutated.
type Message struct {
	ID        string         `json:"id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// QuickReplies returns the suggested replies attached to the message, if any.
func (m Message) QuickReplies() []string {
	raw, ok := m.Metadata[MetaQuickReplies]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		// JSON round-trips []string as []any
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

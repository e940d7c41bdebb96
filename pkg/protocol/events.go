package protocol

import "time"

// EventType names an event on the real-time channel.
type EventType string

// Inbound events pushed by the server.
const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTyping              EventType = "typing"
	EventConversationUpdated EventType = "conversation_updated"
	EventConnectionConfirmed EventType = "connection_confirmed"
	EventUserConnected       EventType = "user_connected"
	EventUserDisconnected    EventType = "user_disconnected"
	EventServerStats         EventType = "server_stats"
	EventError               EventType = "error"
	EventPong                EventType = "pong"
)

// Outbound events emitted by the client.
const (
	EventJoin EventType = "join"
	EventPing EventType = "ping"
)

// RoomType tags which logical room a connection joins.
type RoomType string

const (
	RoomUser    RoomType = "user"
	RoomSupport RoomType = "support"
)

// JoinPayload announces room membership after (re)connecting. Membership
// is not preserved by the transport across disconnects, so the client
// re-sends it on every successful connect.
type JoinPayload struct {
	Type   RoomType `json:"type"`
	UserID string   `json:"userId,omitempty"`
}

// TicketEventPayload carries the ticket attached to a ticket_created or
// ticket_updated push.
type TicketEventPayload struct {
	Ticket Ticket `json:"ticket"`
}

// TypingPayload signals that someone is composing in a conversation.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserName       string `json:"userName,omitempty"`
	Typing         bool   `json:"typing"`
}

// ConversationEventPayload carries a conversation snapshot pushed by the
// server (or sent by a client after a local transition).
type ConversationEventPayload struct {
	ConversationID string           `json:"conversationId"`
	Step           ConversationStep `json:"step,omitempty"`
	Message        *Message         `json:"message,omitempty"`
}

// ServerStatsPayload is the periodic connection census broadcast.
type ServerStatsPayload struct {
	Connections int       `json:"connections"`
	Users       int       `json:"users"`
	Support     int       `json:"support"`
	At          time.Time `json:"at"`
}

// ErrorPayload is a non-fatal error pushed over the channel.
type ErrorPayload struct {
	Message string `json:"message"`
}

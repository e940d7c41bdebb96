// Package channel maintains the long-lived websocket connection to the
// event server, tracks connection status, and dispatches typed events.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// Status is the connection state of the channel.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

// StatusListener observes status transitions. errMsg is non-empty only
// for StatusError.
type StatusListener func(status Status, errMsg string)

// envelope is the wire format in both directions.
type envelope struct {
	Type    protocol.EventType `json:"type"`
	Payload json.RawMessage    `json:"payload,omitempty"`
}

// Config holds channel client settings.
type Config struct {
	URL               string               // ws(s) or http(s) endpoint
	Join              protocol.JoinPayload // announced on every (re)connect
	Heartbeat         time.Duration        // ping interval, default 30s
	ReconnectAttempts int                  // bounded; default 5
	ReconnectDelay    time.Duration        // fixed; default 3s
}

// Client is a websocket client with bounded auto-reconnect. Room
// membership is announced on every successful connect since the
// transport does not preserve it across disconnects.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	status   Status
	lastErr  string
	handlers map[protocol.EventType]Handler
	onStatus StatusListener
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a channel client. Call Connect to start it.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		status:   StatusDisconnected,
		handlers: make(map[protocol.EventType]Handler),
	}
}

// On registers the handler for an event type, replacing any previous
// one. There is a single dispatch point per type so handlers cannot
// leak across reconnects.
func (c *Client) On(event protocol.EventType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for an event type.
func (c *Client) Off(event protocol.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// OnStatusChange registers the status listener.
func (c *Client) OnStatusChange(l StatusListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = l
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the last connection error message, if any.
func (c *Client) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect starts the connection supervisor. Calling Connect while the
// client is already running is a no-op. The supervisor dials, joins,
// reads until failure, and retries a bounded number of times with a
// fixed delay; after exhaustion the client stays down until Connect is
// called again.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		select {
		case <-c.done:
			// previous supervisor finished; restart below
		default:
			c.mu.Unlock()
			return
		}
	}
	ctx, c.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, done)
}

// Close tears the connection down and releases all registered handlers.
// It is safe to call multiple times.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.handlers = make(map[protocol.EventType]Handler)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.setStatus(StatusDisconnected, "")
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempts := 0
	for {
		if ctx.Err() != nil {
			c.setStatus(StatusDisconnected, "")
			return
		}

		c.setStatus(StatusConnecting, "")
		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			c.setStatus(StatusError, err.Error())
			c.logger.Warn("channel connect failed", "attempt", attempts, "error", err)
			if attempts > c.cfg.ReconnectAttempts {
				c.logger.Error("channel reconnect attempts exhausted")
				return
			}
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.setStatus(StatusDisconnected, "")
				return
			}
			continue
		}

		attempts = 0
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setStatus(StatusConnected, "")

		// Membership is not preserved across disconnects: re-announce
		// the room on every successful connect.
		if err := c.Emit(protocol.EventJoin, c.cfg.Join); err != nil {
			c.logger.Warn("channel join failed", "error", err)
		}

		readErr := c.readUntilClosed(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			c.setStatus(StatusDisconnected, "")
			return
		}

		attempts++
		c.setStatus(StatusDisconnected, "")
		c.logger.Warn("channel disconnected", "attempt", attempts, "error", readErr)
		if attempts > c.cfg.ReconnectAttempts {
			c.logger.Error("channel reconnect attempts exhausted")
			return
		}
		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	url := c.cfg.URL
	// Accept http(s) endpoints for convenience.
	if strings.HasPrefix(url, "http://") {
		url = "ws://" + strings.TrimPrefix(url, "http://")
	} else if strings.HasPrefix(url, "https://") {
		url = "wss://" + strings.TrimPrefix(url, "https://")
	}

	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("channel: dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("channel: dial %s: %w", url, err)
	}
	return conn, nil
}

// readUntilClosed pumps inbound events and emits the periodic heartbeat
// until the connection drops or ctx is cancelled.
func (c *Client) readUntilClosed(ctx context.Context, conn *websocket.Conn) error {
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go c.heartbeat(ctx, heartbeatDone)

	// Unblock the reader when the context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-heartbeatDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("channel dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch routes one inbound event. Unhandled types are ignored,
// never fatal.
func (c *Client) dispatch(env envelope) {
	c.mu.Lock()
	h := c.handlers[env.Type]
	c.mu.Unlock()

	if h == nil {
		c.logger.Debug("channel event unhandled", "type", env.Type)
		return
	}
	h(env.Payload)
}

func (c *Client) heartbeat(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := c.Emit(protocol.EventPing, nil); err != nil {
				c.logger.Debug("channel ping failed", "error", err)
			}
		}
	}
}

// Emit sends a named event with a payload. If the channel is not
// currently connected this is a logged no-op, never an error the caller
// must handle — push notifications are best-effort.
func (c *Client) Emit(event protocol.EventType, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Debug("channel emit skipped, not connected", "type", event)
		return nil
	}

	env := envelope{Type: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("channel: marshal %s: %w", event, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("channel: marshal envelope: %w", err)
	}

	// gorilla allows one concurrent writer; serialize under the lock.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("channel: write %s: %w", event, err)
	}
	return nil
}

func (c *Client) setStatus(s Status, errMsg string) {
	c.mu.Lock()
	changed := c.status != s || c.lastErr != errMsg
	c.status = s
	c.lastErr = errMsg
	listener := c.onStatus
	c.mu.Unlock()

	if changed && listener != nil {
		listener(s, errMsg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// --- outbound helpers ---

// TypingStart signals that the local user started composing.
func (c *Client) TypingStart(conversationID, userName string) {
	c.emitLogged(protocol.EventTyping, protocol.TypingPayload{
		ConversationID: conversationID,
		UserName:       userName,
		Typing:         true,
	})
}

// TypingStop signals that the local user stopped composing.
func (c *Client) TypingStop(conversationID, userName string) {
	c.emitLogged(protocol.EventTyping, protocol.TypingPayload{
		ConversationID: conversationID,
		UserName:       userName,
		Typing:         false,
	})
}

// NotifyTicketCreated broadcasts a locally-created ticket.
func (c *Client) NotifyTicketCreated(t protocol.Ticket) {
	c.emitLogged(protocol.EventTicketCreated, protocol.TicketEventPayload{Ticket: t})
}

// NotifyTicketUpdated broadcasts a locally-updated ticket.
func (c *Client) NotifyTicketUpdated(t protocol.Ticket) {
	c.emitLogged(protocol.EventTicketUpdated, protocol.TicketEventPayload{Ticket: t})
}

// SendConversationUpdate broadcasts a conversation transition.
func (c *Client) SendConversationUpdate(p protocol.ConversationEventPayload) {
	c.emitLogged(protocol.EventConversationUpdated, p)
}

func (c *Client) emitLogged(event protocol.EventType, payload any) {
	if err := c.Emit(event, payload); err != nil {
		c.logger.Warn("channel emit failed", "type", event, "error", err)
	}
}

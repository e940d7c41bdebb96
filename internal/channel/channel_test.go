package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// eventServer is a minimal websocket endpoint that records inbound
// envelopes and lets tests push outbound ones.
type eventServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []envelope
	inbound  chan envelope
}

func newEventServer(t *testing.T) (*eventServer, *httptest.Server) {
	t.Helper()
	es := &eventServer{t: t, inbound: make(chan envelope, 32)}
	srv := httptest.NewServer(http.HandlerFunc(es.handle))
	t.Cleanup(srv.Close)
	return es, srv
}

func (es *eventServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := es.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	es.mu.Lock()
	es.conns = append(es.conns, conn)
	es.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if json.Unmarshal(data, &env) == nil {
			es.mu.Lock()
			es.received = append(es.received, env)
			es.mu.Unlock()
			select {
			case es.inbound <- env:
			default:
			}
		}
	}
}

func (es *eventServer) send(t *testing.T, env envelope) {
	t.Helper()
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.conns) == 0 {
		t.Fatal("no connection to send on")
	}
	conn := es.conns[len(es.conns)-1]
	data, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (es *eventServer) closeLatest() {
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.conns) > 0 {
		es.conns[len(es.conns)-1].Close()
	}
}

func (es *eventServer) countReceived(eventType protocol.EventType) int {
	es.mu.Lock()
	defer es.mu.Unlock()
	n := 0
	for _, env := range es.received {
		if env.Type == eventType {
			n++
		}
	}
	return n
}

func (es *eventServer) waitFor(t *testing.T, eventType protocol.EventType) envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-es.inbound:
			if env.Type == eventType {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func newTestClient(srvURL string) *Client {
	return New(Config{
		URL:               srvURL,
		Join:              protocol.JoinPayload{Type: protocol.RoomSupport, UserID: "agent-1"},
		Heartbeat:         50 * time.Millisecond,
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
	}, nil)
}

func waitStatus(t *testing.T, c *Client, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %q, want %q", c.Status(), want)
}

func TestConnectAnnouncesJoin(t *testing.T) {
	es, srv := newEventServer(t)
	c := newTestClient(srv.URL)
	defer c.Close()

	c.Connect(context.Background())
	waitStatus(t, c, StatusConnected)

	env := es.waitFor(t, protocol.EventJoin)
	var join protocol.JoinPayload
	if err := json.Unmarshal(env.Payload, &join); err != nil {
		t.Fatalf("join payload: %v", err)
	}
	if join.Type != protocol.RoomSupport || join.UserID != "agent-1" {
		t.Errorf("join = %+v", join)
	}
}

func TestDispatchTypedEvents(t *testing.T) {
	es, srv := newEventServer(t)
	c := newTestClient(srv.URL)
	defer c.Close()

	got := make(chan protocol.Ticket, 1)
	c.On(protocol.EventTicketCreated, func(payload json.RawMessage) {
		var p protocol.TicketEventPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			t.Errorf("payload: %v", err)
			return
		}
		got <- p.Ticket
	})

	c.Connect(context.Background())
	waitStatus(t, c, StatusConnected)
	es.waitFor(t, protocol.EventJoin)

	payload, _ := json.Marshal(protocol.TicketEventPayload{
		Ticket: protocol.Ticket{ID: "t-7", Title: "New ticket", Status: protocol.StatusOpen},
	})
	es.send(t, envelope{Type: protocol.EventTicketCreated, Payload: payload})

	select {
	case tk := <-got:
		if tk.ID != "t-7" {
			t.Errorf("ticket = %+v", tk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	es, srv := newEventServer(t)
	c := newTestClient(srv.URL)
	defer c.Close()

	c.Connect(context.Background())
	waitStatus(t, c, StatusConnected)
	es.waitFor(t, protocol.EventJoin)

	es.send(t, envelope{Type: "mystery_event"})
	es.send(t, envelope{Type: protocol.EventPong})

	// Still connected and functional afterwards.
	time.Sleep(50 * time.Millisecond)
	if c.Status() != StatusConnected {
		t.Errorf("status = %q after unknown event", c.Status())
	}
}

func TestRejoinAfterReconnect(t *testing.T) {
	es, srv := newEventServer(t)
	c := newTestClient(srv.URL)
	defer c.Close()

	c.Connect(context.Background())
	waitStatus(t, c, StatusConnected)
	es.waitFor(t, protocol.EventJoin)

	es.closeLatest()

	// The client reconnects and must announce the room again.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if es.countReceived(protocol.EventJoin) >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("join announced %d times, want 2", es.countReceived(protocol.EventJoin))
}

func TestHeartbeat(t *testing.T) {
	es, srv := newEventServer(t)
	c := newTestClient(srv.URL)
	defer c.Close()

	c.Connect(context.Background())
	waitStatus(t, c, StatusConnected)

	es.waitFor(t, protocol.EventPing)
}

func TestEmitWhileDisconnectedIsNoOp(t *testing.T) {
	c := newTestClient("ws://127.0.0.1:1") // never connected
	c.TypingStart("c-1", "Alice")
	c.NotifyTicketUpdated(protocol.Ticket{ID: "t-1"})
	if err := c.Emit(protocol.EventPing, nil); err != nil {
		t.Errorf("emit while disconnected returned error: %v", err)
	}
}

func TestConnectTwiceIsNoOp(t *testing.T) {
	es, srv := newEventServer(t)
	c := newTestClient(srv.URL)
	defer c.Close()

	ctx := context.Background()
	c.Connect(ctx)
	waitStatus(t, c, StatusConnected)
	c.Connect(ctx)

	time.Sleep(50 * time.Millisecond)
	es.mu.Lock()
	conns := len(es.conns)
	es.mu.Unlock()
	if conns != 1 {
		t.Errorf("%d connections, want 1", conns)
	}
}

func TestCloseIsIdempotentAndReleasesHandlers(t *testing.T) {
	_, srv := newEventServer(t)
	c := newTestClient(srv.URL)

	c.On(protocol.EventTicketCreated, func(json.RawMessage) {})
	c.Connect(context.Background())
	waitStatus(t, c, StatusConnected)

	c.Close()
	c.Close()

	if c.Status() != StatusDisconnected {
		t.Errorf("status = %q after close", c.Status())
	}
	c.mu.Lock()
	n := len(c.handlers)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("%d handlers retained after close", n)
	}
}

func TestBoundedReconnectThenGiveUp(t *testing.T) {
	c := New(Config{
		URL:               "ws://127.0.0.1:1", // nothing listening
		Join:              protocol.JoinPayload{Type: protocol.RoomUser},
		ReconnectAttempts: 2,
		ReconnectDelay:    10 * time.Millisecond,
	}, nil)
	defer c.Close()

	c.Connect(context.Background())

	// Supervisor should give up and leave an error status behind.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		done := c.done
		c.mu.Unlock()
		select {
		case <-done:
			if c.Status() != StatusError {
				t.Errorf("status = %q after exhaustion, want error", c.Status())
			}
			if c.Err() == "" {
				t.Error("expected a recorded error message")
			}
			return
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatal("supervisor never gave up")
}

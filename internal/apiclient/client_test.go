package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
	return New(srv.URL, opts...)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindForbidden},
		{http.StatusNotFound, KindNotFound},
		{http.StatusRequestTimeout, KindTimeout},
		{http.StatusInternalServerError, KindInternal},
		{http.StatusBadGateway, KindInternal},
		{http.StatusTeapot, KindInternal},
	}

	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
		}, WithRetries(0))

		err := c.Health(context.Background())
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: expected *Error, got %v", tt.status, err)
		}
		if apiErr.Kind != tt.kind {
			t.Errorf("status %d: kind = %q, want %q", tt.status, apiErr.Kind, tt.kind)
		}
		if apiErr.Message != "nope" {
			t.Errorf("status %d: message = %q, want server body", tt.status, apiErr.Message)
		}
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusRequestTimeout} {
		var attempts atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(status)
		}, WithRetries(3))

		if err := c.Health(context.Background()); err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("status %d: %d attempts, want 1", status, got)
		}
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetries(2))

	err := c.Health(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("%d attempts, want 3 (1 + 2 retries)", got)
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}, WithRetries(2))

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("%d attempts, want 3", got)
	}
}

func TestRetryOnNetworkFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		// Kill the connection without a response.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("hijacking unsupported")
		}
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithRetries(2), WithRetryDelay(time.Millisecond))
	err := c.Health(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("%d attempts, want 3", got)
	}
}

func TestListTicketsQueryEncoding(t *testing.T) {
	var gotQuery map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(TicketPage{Page: 2, Limit: 20, Total: 45, HasNext: true})
	})

	filter := protocol.TicketFilter{
		Statuses:    []protocol.TicketStatus{protocol.StatusOpen, protocol.StatusInProgress},
		Categories:  []protocol.TicketCategory{protocol.CategoryBilling},
		Priorities:  []protocol.TicketPriority{protocol.PriorityHigh, protocol.PriorityUrgent},
		AssignedTo:  "sam",
		SearchQuery: "invoice",
	}
	q := protocol.ListQuery{Page: 2, Limit: 20, SortBy: protocol.SortByUpdatedAt, SortOrder: protocol.SortDesc}

	page, err := c.ListTickets(context.Background(), filter, q)
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if !page.HasNext || page.Total != 45 {
		t.Errorf("page = %+v", page)
	}

	want := map[string]string{
		"status":      "open,in_progress",
		"category":    "billing",
		"priority":    "high,urgent",
		"assignedTo":  "sam",
		"searchQuery": "invoice",
		"page":        "2",
		"limit":       "20",
		"sortBy":      "updatedAt",
		"sortOrder":   "desc",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestUpdateTicket(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if r.URL.Path != "/tickets/t-9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var update protocol.TicketUpdate
		json.NewDecoder(r.Body).Decode(&update)
		if update.Status == nil || *update.Status != protocol.StatusResolved {
			t.Errorf("update = %+v", update)
		}
		json.NewEncoder(w).Encode(protocol.Ticket{ID: "t-9", Status: protocol.StatusResolved})
	})

	status := protocol.StatusResolved
	got, err := c.UpdateTicket(context.Background(), "t-9", protocol.TicketUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}
	if got.Status != protocol.StatusResolved {
		t.Errorf("status = %q", got.Status)
	}
}

func TestUpdateTicketRejectsBadEnum(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	})

	bad := protocol.TicketStatus("escalated")
	_, err := c.UpdateTicket(context.Background(), "t-1", protocol.TicketUpdate{Status: &bad})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/message" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ChatMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Content != "Alice Johnson" {
			t.Errorf("content = %q", req.Content)
		}
		json.NewEncoder(w).Encode(ChatMessageResponse{
			Conversation: protocol.ConversationState{ID: "c-1", CurrentStep: protocol.StepCollectIssue},
			Reply:        protocol.Message{Role: protocol.RoleAssistant, Content: "What can we help with?"},
			ExpectsInput: true,
		})
	})

	resp, err := c.SendMessage(context.Background(), ChatMessageRequest{Content: "Alice Johnson"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Conversation.CurrentStep != protocol.StepCollectIssue {
		t.Errorf("step = %q", resp.Conversation.CurrentStep)
	}

	if _, err := c.SendMessage(context.Background(), ChatMessageRequest{}); err == nil {
		t.Error("expected validation error for empty content")
	}
}

func TestTimeoutClassification(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, WithTimeout(20*time.Millisecond), WithRetries(0))

	err := c.Health(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

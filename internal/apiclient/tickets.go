package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// TicketPage is one page of a server-side ticket listing.
type TicketPage struct {
	Tickets []protocol.Ticket `json:"tickets"`
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	Total   int               `json:"total"`
	HasNext bool              `json:"hasNext"`
}

// CreateTicketRequest is the POST /tickets body. Absent status and
// priority default to open/medium server-side.
type CreateTicketRequest struct {
	UserName       string                  `json:"userName"`
	UserEmail      string                  `json:"userEmail,omitempty"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Category       protocol.TicketCategory `json:"category,omitempty"`
	Priority       protocol.TicketPriority `json:"priority,omitempty"`
	Tags           []string                `json:"tags,omitempty"`
	ConversationID string                  `json:"conversationId,omitempty"`
}

// ListTickets fetches one page of tickets matching the filter. The same
// filter semantics are applied server-side; multi-value fields are
// serialized comma-joined.
func (c *Client) ListTickets(ctx context.Context, filter protocol.TicketFilter, q protocol.ListQuery) (*TicketPage, error) {
	params := url.Values{}
	if len(filter.Statuses) > 0 {
		params.Set("status", joinStatuses(filter.Statuses))
	}
	if len(filter.Categories) > 0 {
		params.Set("category", joinCategories(filter.Categories))
	}
	if len(filter.Priorities) > 0 {
		params.Set("priority", joinPriorities(filter.Priorities))
	}
	if filter.AssignedTo != "" {
		params.Set("assignedTo", filter.AssignedTo)
	}
	if filter.SearchQuery != "" {
		params.Set("searchQuery", filter.SearchQuery)
	}
	if filter.From != nil {
		params.Set("from", filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		params.Set("to", filter.To.UTC().Format(time.RFC3339))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	if q.SortOrder != "" {
		params.Set("sortOrder", string(q.SortOrder))
	}

	var page TicketPage
	if err := c.do(ctx, http.MethodGet, "/tickets", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetTicket fetches a single ticket by ID.
func (c *Client) GetTicket(ctx context.Context, id string) (*protocol.Ticket, error) {
	var t protocol.Ticket
	if err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(id), nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTicket creates a ticket and returns the server's copy.
func (c *Client) CreateTicket(ctx context.Context, req CreateTicketRequest) (*protocol.Ticket, error) {
	if req.Title == "" || req.Description == "" {
		return nil, &Error{Kind: KindValidation, Message: "title and description are required"}
	}
	var t protocol.Ticket
	if err := c.do(ctx, http.MethodPost, "/tickets", nil, req, &t); err != nil {
		return nil, err
	}
	t.ApplyDefaults()
	return &t, nil
}

// UpdateTicket sends a partial update and returns the server's updated
// copy. The caller replaces its local entity only after this succeeds.
func (c *Client) UpdateTicket(ctx context.Context, id string, update protocol.TicketUpdate) (*protocol.Ticket, error) {
	if update.Status != nil && !update.Status.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("invalid status %q", *update.Status)}
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("invalid priority %q", *update.Priority)}
	}
	if update.Category != nil && !update.Category.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("invalid category %q", *update.Category)}
	}

	var t protocol.Ticket
	if err := c.do(ctx, http.MethodPatch, "/tickets/"+url.PathEscape(id), nil, update, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TicketStats fetches dashboard statistics.
func (c *Client) TicketStats(ctx context.Context) (*protocol.TicketStats, error) {
	var stats protocol.TicketStats
	if err := c.do(ctx, http.MethodGet, "/stats/tickets", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func joinStatuses(vals []protocol.TicketStatus) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func joinCategories(vals []protocol.TicketCategory) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func joinPriorities(vals []protocol.TicketPriority) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

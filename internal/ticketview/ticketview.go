// Package ticketview holds the dashboard's view of the ticket
// collection: the current page window, filter, sort, search, and stats.
// The server is the source of truth; the model never writes a ticket
// locally until the server confirms it.
package ticketview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/deskflow-io/deskflow/internal/apiclient"
	"github.com/deskflow-io/deskflow/pkg/protocol"
)

const (
	defaultPageSize = 20
	defaultDebounce = 300 * time.Millisecond
)

// TicketAPI is the slice of the API client the view-model needs.
type TicketAPI interface {
	ListTickets(ctx context.Context, filter protocol.TicketFilter, q protocol.ListQuery) (*apiclient.TicketPage, error)
	GetTicket(ctx context.Context, id string) (*protocol.Ticket, error)
	UpdateTicket(ctx context.Context, id string, update protocol.TicketUpdate) (*protocol.Ticket, error)
	TicketStats(ctx context.Context) (*protocol.TicketStats, error)
}

// Model is the ticket collection view-model. All methods are safe for
// concurrent use.
type Model struct {
	api      TicketAPI
	logger   *slog.Logger
	debounce time.Duration
	onChange func()

	mu          sync.Mutex
	tickets     []protocol.Ticket
	filter      protocol.TicketFilter
	query       protocol.ListQuery
	total       int
	hasNext     bool
	loading     bool
	errMsg      string
	stats       *protocol.TicketStats
	seq         int
	searchTimer *time.Timer
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// WithDebounce overrides the search debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(m *Model) { m.debounce = d }
}

// WithPageSize overrides the page size.
func WithPageSize(n int) Option {
	return func(m *Model) { m.query.Limit = n }
}

// WithOnChange registers a hook run after any asynchronous state change
// (the debounced search re-fetch). The UI uses it to trigger a repaint.
func WithOnChange(fn func()) Option {
	return func(m *Model) { m.onChange = fn }
}

// New creates a view-model sorted by newest first.
func New(api TicketAPI, opts ...Option) *Model {
	m := &Model{
		api:      api,
		logger:   slog.Default(),
		debounce: defaultDebounce,
		query: protocol.ListQuery{
			Page:      1,
			Limit:     defaultPageSize,
			SortBy:    protocol.SortByCreatedAt,
			SortOrder: protocol.SortDesc,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "ticketview")
	return m
}

// Load fetches the current page. With reset it goes back to page 1 and
// replaces the collection; otherwise it re-fetches in place. A load
// already in flight makes Load a no-op. Failures record one message and
// leave the collection untouched.
func (m *Model) Load(ctx context.Context, reset bool) error {
	m.mu.Lock()
	if m.loading {
		m.mu.Unlock()
		return nil
	}
	if reset {
		m.query.Page = 1
	}
	m.loading = true
	seq := m.seq
	filter, query := m.filter, m.query
	m.mu.Unlock()

	page, err := m.api.ListTickets(ctx, filter, query)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		m.errMsg = humanError(err)
		return err
	}
	if seq != m.seq {
		// Filter changed while we were fetching; a newer load owns
		// the collection now.
		return nil
	}
	m.tickets = page.Tickets
	m.total = page.Total
	m.hasNext = page.HasNext
	m.errMsg = ""
	return nil
}

// LoadMore appends the next page. It is a no-op when there is no next
// page or a load is already in flight.
func (m *Model) LoadMore(ctx context.Context) error {
	m.mu.Lock()
	if m.loading || !m.hasNext {
		m.mu.Unlock()
		return nil
	}
	m.loading = true
	seq := m.seq
	filter := m.filter
	query := m.query
	query.Page++
	m.mu.Unlock()

	page, err := m.api.ListTickets(ctx, filter, query)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		m.errMsg = humanError(err)
		return err
	}
	if seq != m.seq {
		return nil
	}
	m.query.Page = query.Page
	m.tickets = append(m.tickets, page.Tickets...)
	m.total = page.Total
	m.hasNext = page.HasNext
	m.errMsg = ""
	return nil
}

// UpdateTicket sends a partial update and replaces the local entity with
// the server's confirmed copy. There is no optimistic write: on failure
// the collection is untouched.
func (m *Model) UpdateTicket(ctx context.Context, id string, update protocol.TicketUpdate) (*protocol.Ticket, error) {
	updated, err := m.api.UpdateTicket(ctx, id, update)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errMsg = humanError(err)
		return nil, err
	}
	m.replaceLocked(*updated)
	m.errMsg = ""
	return updated, nil
}

// SetStatusFilter replaces the status filter and reloads from page 1.
func (m *Model) SetStatusFilter(ctx context.Context, statuses []protocol.TicketStatus) error {
	m.mu.Lock()
	m.filter.Statuses = statuses
	m.bumpLocked()
	m.mu.Unlock()
	return m.Load(ctx, true)
}

// SetCategoryFilter replaces the category filter and reloads from page 1.
func (m *Model) SetCategoryFilter(ctx context.Context, categories []protocol.TicketCategory) error {
	m.mu.Lock()
	m.filter.Categories = categories
	m.bumpLocked()
	m.mu.Unlock()
	return m.Load(ctx, true)
}

// SetPriorityFilter replaces the priority filter and reloads from page 1.
func (m *Model) SetPriorityFilter(ctx context.Context, priorities []protocol.TicketPriority) error {
	m.mu.Lock()
	m.filter.Priorities = priorities
	m.bumpLocked()
	m.mu.Unlock()
	return m.Load(ctx, true)
}

// SetAssignee filters by assignee and reloads from page 1.
func (m *Model) SetAssignee(ctx context.Context, assignee string) error {
	m.mu.Lock()
	m.filter.AssignedTo = assignee
	m.bumpLocked()
	m.mu.Unlock()
	return m.Load(ctx, true)
}

// SetDateRange filters by creation window and reloads from page 1.
func (m *Model) SetDateRange(ctx context.Context, from, to *time.Time) error {
	m.mu.Lock()
	m.filter.From, m.filter.To = from, to
	m.bumpLocked()
	m.mu.Unlock()
	return m.Load(ctx, true)
}

// SetSort changes the sort key and order and reloads from page 1.
func (m *Model) SetSort(ctx context.Context, sortBy string, order protocol.SortOrder) error {
	m.mu.Lock()
	m.query.SortBy, m.query.SortOrder = sortBy, order
	m.bumpLocked()
	m.mu.Unlock()
	return m.Load(ctx, true)
}

// SetSearch updates the search query. The re-fetch is debounced so a
// fetch fires only after the user pauses typing; every other filter
// change re-fetches immediately.
func (m *Model) SetSearch(ctx context.Context, q string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filter.SearchQuery == q {
		return
	}
	m.filter.SearchQuery = q
	m.bumpLocked()

	if m.searchTimer != nil {
		m.searchTimer.Stop()
	}
	m.searchTimer = time.AfterFunc(m.debounce, func() {
		if err := m.Load(ctx, true); err != nil {
			m.logger.Warn("search reload failed", "error", err)
		}
		if m.onChange != nil {
			m.onChange()
		}
	})
}

// ClearFilters drops every filter and the search query, then reloads.
func (m *Model) ClearFilters(ctx context.Context) error {
	m.mu.Lock()
	if m.searchTimer != nil {
		m.searchTimer.Stop()
	}
	m.filter = protocol.TicketFilter{}
	m.bumpLocked()
	m.mu.Unlock()
	return m.Load(ctx, true)
}

// ApplyEvent merges a pushed ticket into the collection. Updates land in
// arrival order; a ticket outside the active filter is dropped rather
// than shown.
func (m *Model) ApplyEvent(eventType protocol.EventType, t protocol.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch eventType {
	case protocol.EventTicketCreated:
		if !m.filter.Matches(&t) {
			return
		}
		if m.replaceLocked(t) {
			return
		}
		m.tickets = append([]protocol.Ticket{t}, m.tickets...)
		m.total++
	case protocol.EventTicketUpdated:
		if m.replaceLocked(t) {
			return
		}
		// Not on this page; surface it only if the filter wants it.
		if m.filter.Matches(&t) {
			m.tickets = append([]protocol.Ticket{t}, m.tickets...)
			m.total++
		}
	}
}

// RefreshStats fetches dashboard statistics.
func (m *Model) RefreshStats(ctx context.Context) error {
	stats, err := m.api.TicketStats(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errMsg = humanError(err)
		return err
	}
	m.stats = stats
	return nil
}

// Tickets returns a copy of the loaded collection.
func (m *Model) Tickets() []protocol.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Ticket, len(m.tickets))
	copy(out, m.tickets)
	return out
}

// FilteredTickets narrows the loaded collection with the same predicate
// the server applies, so local and server filtering agree.
func (m *Model) FilteredTickets() []protocol.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Ticket, 0, len(m.tickets))
	for i := range m.tickets {
		if m.filter.Matches(&m.tickets[i]) {
			out = append(out, m.tickets[i])
		}
	}
	return out
}

// Get returns the loaded ticket with the given ID, if present.
func (m *Model) Get(id string) (protocol.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.ID == id {
			return t, true
		}
	}
	return protocol.Ticket{}, false
}

// Stats returns the last fetched statistics, or nil.
func (m *Model) Stats() *protocol.TicketStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Filter returns the active filter.
func (m *Model) Filter() protocol.TicketFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter
}

// Query returns the active pagination and sort settings.
func (m *Model) Query() protocol.ListQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query
}

// Total reports the server-side total for the active filter.
func (m *Model) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// HasNext reports whether another page exists.
func (m *Model) HasNext() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasNext
}

// Loading reports whether a fetch is in flight.
func (m *Model) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Err returns the last failure message, empty when healthy.
func (m *Model) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// ClearError dismisses the recorded failure message.
func (m *Model) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = ""
}

// bumpLocked invalidates in-flight loads and resets to the first page.
func (m *Model) bumpLocked() {
	m.seq++
	m.query.Page = 1
}

// replaceLocked swaps the stored copy of a ticket, reporting whether it
// was present.
func (m *Model) replaceLocked(t protocol.Ticket) bool {
	for i := range m.tickets {
		if m.tickets[i].ID == t.ID {
			m.tickets[i] = t
			return true
		}
	}
	return false
}

// humanError turns an API failure into one line fit for the status bar.
func humanError(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case apiclient.KindNetwork:
			return "Can't reach the server. Check your connection."
		case apiclient.KindTimeout:
			return "The server took too long to respond."
		case apiclient.KindUnauthorized:
			return "You need to sign in again."
		case apiclient.KindForbidden:
			return "You don't have access to that."
		case apiclient.KindNotFound:
			return "That ticket no longer exists."
		case apiclient.KindValidation:
			return "Rejected: " + apiErr.Message
		}
		return "Something went wrong on the server."
	}
	return "Something went wrong: " + err.Error()
}

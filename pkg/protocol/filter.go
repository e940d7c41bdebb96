package protocol

import (
	"strings"
	"time"
)

// SortOrder is the direction of a ticket list sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sortable ticket list fields.
const (
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByPriority  = "priority"
	SortByStatus    = "status"
)

// ListQuery carries pagination and sort parameters for ticket list calls.
type ListQuery struct {
	Page      int       // 1-based; 0 means first page
	Limit     int       // 0 means server default
	SortBy    string    // one of the SortBy* constants
	SortOrder SortOrder // asc or desc
}

// TicketFilter constrains a ticket listing. Values within a slice are
// OR-ed; populated fields are AND-ed together. Empty fields impose no
// constraint.
type TicketFilter struct {
	Statuses    []TicketStatus   `json:"statuses,omitempty"`
	Categories  []TicketCategory `json:"categories,omitempty"`
	Priorities  []TicketPriority `json:"priorities,omitempty"`
	AssignedTo  string           `json:"assignedTo,omitempty"`
	SearchQuery string           `json:"searchQuery,omitempty"`
	From        *time.Time       `json:"from,omitempty"`
	To          *time.Time       `json:"to,omitempty"`
}

// IsZero reports whether the filter imposes no constraint at all.
func (f TicketFilter) IsZero() bool {
	return len(f.Statuses) == 0 && len(f.Categories) == 0 && len(f.Priorities) == 0 &&
		f.AssignedTo == "" && f.SearchQuery == "" && f.From == nil && f.To == nil
}

// Matches reports whether t satisfies the filter. This predicate must
// stay logically equivalent to the server-side filtering so that a
// locally-narrowed view never disagrees with the next fetched page.
func (f TicketFilter) Matches(t *Ticket) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, t.Category) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.CreatedAt.After(*f.To) {
		return false
	}
	if f.SearchQuery != "" && !matchesSearch(t, f.SearchQuery) {
		return false
	}
	return true
}

// matchesSearch does a case-insensitive substring match over the fields
// the server's searchQuery parameter covers.
func matchesSearch(t *Ticket, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(strings.ToLower(t.UserName), q) ||
		strings.Contains(strings.ToLower(t.ID), q)
}

func containsStatus(set []TicketStatus, s TicketStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsCategory(set []TicketCategory, c TicketCategory) bool {
	for _, v := range set {
		if v == c {
			return true
		}
	}
	return false
}

func containsPriority(set []TicketPriority, p TicketPriority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

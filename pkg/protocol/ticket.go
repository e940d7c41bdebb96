package protocol

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

// Statuses lists all ticket statuses in lifecycle order.
var Statuses = []TicketStatus{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Valid reports whether s is one of the closed set of statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Label returns a human-readable form of the status.
func (s TicketStatus) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In Progress"
	case StatusResolved:
		return "Resolved"
	case StatusClosed:
		return "Closed"
	}
	return string(s)
}

// TicketCategory classifies what a ticket is about.
type TicketCategory string

const (
	CategoryTechnical      TicketCategory = "technical"
	CategoryBilling        TicketCategory = "billing"
	CategoryAccount        TicketCategory = "account"
	CategoryFeatureRequest TicketCategory = "feature_request"
	CategoryBugReport      TicketCategory = "bug_report"
	CategoryGeneral        TicketCategory = "general"
	CategoryOther          TicketCategory = "other"
)

// Categories lists all ticket categories in declaration order.
var Categories = []TicketCategory{
	CategoryTechnical,
	CategoryBilling,
	CategoryAccount,
	CategoryFeatureRequest,
	CategoryBugReport,
	CategoryGeneral,
	CategoryOther,
}

// Valid reports whether c is one of the closed set of categories.
func (c TicketCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Label returns a human-readable form of the category.
func (c TicketCategory) Label() string {
	switch c {
	case CategoryTechnical:
		return "Technical Support"
	case CategoryBilling:
		return "Billing & Payments"
	case CategoryAccount:
		return "Account Management"
	case CategoryFeatureRequest:
		return "Feature Request"
	case CategoryBugReport:
		return "Bug Report"
	case CategoryGeneral:
		return "General Inquiry"
	case CategoryOther:
		return "Other"
	}
	return string(c)
}

// TicketPriority represents how urgent a ticket is.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// Priorities lists all ticket priorities from lowest to highest.
var Priorities = []TicketPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Valid reports whether p is one of the closed set of priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is a persisted support request. The backend is authoritative;
// clients hold read-through copies with no independent lifecycle.
type Ticket struct {
	ID             string         `json:"id"`
	UserName       string         `json:"userName"`
	UserEmail      string         `json:"userEmail,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Category       TicketCategory `json:"category"`
	Status         TicketStatus   `json:"status"`
	Priority       TicketPriority `json:"priority"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ResolvedAt     *time.Time     `json:"resolvedAt,omitempty"`
	AssignedTo     string         `json:"assignedTo,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
}

// ApplyDefaults fills absent status and priority with their creation defaults.
func (t *Ticket) ApplyDefaults() {
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
}

// TicketUpdate is a partial update sent to the backend. Nil fields are
// left untouched server-side.
type TicketUpdate struct {
	Status      *TicketStatus   `json:"status,omitempty"`
	Priority    *TicketPriority `json:"priority,omitempty"`
	Category    *TicketCategory `json:"category,omitempty"`
	AssignedTo  *string         `json:"assignedTo,omitempty"`
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
}

// TicketStats summarizes the ticket collection for the dashboard.
// Per-status counts sum to at most Total; category and priority maps
// partition differently and need not sum exactly.
type TicketStats struct {
	Total              int                    `json:"total"`
	Open               int                    `json:"open"`
	InProgress         int                    `json:"inProgress"`
	Resolved           int                    `json:"resolved"`
	Closed             int                    `json:"closed"`
	ByCategory         map[TicketCategory]int `json:"byCategory,omitempty"`
	ByPriority         map[TicketPriority]int `json:"byPriority,omitempty"`
	AvgResolutionHours *float64               `json:"avgResolutionHours,omitempty"`
}

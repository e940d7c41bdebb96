package protocol

import "time"

// ConversationStep is a step in the guided intake dialogue.
type ConversationStep string

const (
	StepGreeting          ConversationStep = "greeting"
	StepCollectName       ConversationStep = "collect_name"
	StepCollectIssue      ConversationStep = "collect_issue"
	StepClarifyDetails    ConversationStep = "clarify_details"
	StepSuggestCategory   ConversationStep = "suggest_category"
	StepConfirmCategory   ConversationStep = "confirm_category"
	StepFinalConfirmation ConversationStep = "final_confirmation"
	StepTicketCreated     ConversationStep = "ticket_created"

	// StepError sits outside the ordered sequence.
	StepError ConversationStep = "error"
)

// Steps lists the intake steps in order, terminal last. StepError is
// excluded: it is a parallel state, not part of the progression.
var Steps = []ConversationStep{
	StepGreeting,
	StepCollectName,
	StepCollectIssue,
	StepClarifyDetails,
	StepSuggestCategory,
	StepConfirmCategory,
	StepFinalConfirmation,
	StepTicketCreated,
}

// Index returns the position of s in the ordered sequence, or -1 for
// StepError and unknown steps.
func (s ConversationStep) Index() int {
	for i, step := range Steps {
		if s == step {
			return i
		}
	}
	return -1
}

// CollectedData accumulates the answers gathered during intake. All
// fields are optional until the corresponding step populates them.
type CollectedData struct {
	UserName          string         `json:"userName,omitempty"`
	IssueDescription  string         `json:"issueDescription,omitempty"`
	IssueTitle        string         `json:"issueTitle,omitempty"`
	SuggestedCategory TicketCategory `json:"suggestedCategory,omitempty"`
	ConfirmedCategory TicketCategory `json:"confirmedCategory,omitempty"`
	AdditionalDetails []string       `json:"additionalDetails,omitempty"`
}

// ConversationState is the full state of one guided intake session.
// IsComplete is true iff CurrentStep == StepTicketCreated.
type ConversationState struct {
	ID          string            `json:"id"`
	CurrentStep ConversationStep  `json:"currentStep"`
	Data        CollectedData     `json:"data"`
	Messages    []Message         `json:"messages"`
	IsComplete  bool              `json:"isComplete"`
	TicketID    string            `json:"ticketId,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

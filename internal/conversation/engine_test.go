package conversation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

func newTestEngine() *Engine {
	seq := 0
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return &Engine{
		now: func() time.Time { return base },
		newID: func() string {
			seq++
			return fmt.Sprintf("id-%04d", seq)
		},
	}
}

func TestInitialize(t *testing.T) {
	e := newTestEngine()
	state := e.Initialize()

	if state.CurrentStep != protocol.StepGreeting {
		t.Errorf("step = %q, want greeting", state.CurrentStep)
	}
	if len(state.Messages) != 1 {
		t.Fatalf("%d messages, want 1", len(state.Messages))
	}
	if state.Messages[0].Role != protocol.RoleAssistant {
		t.Errorf("first message role = %q", state.Messages[0].Role)
	}
	if state.IsComplete {
		t.Error("fresh conversation reports complete")
	}
	if state.ID == "" {
		t.Error("missing conversation ID")
	}
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		text string
		step protocol.ConversationStep
		want bool
	}{
		{"Al", protocol.StepCollectName, true},
		{"A", protocol.StepCollectName, false},
		{strings.Repeat("x", 50), protocol.StepCollectName, true},
		{strings.Repeat("x", 51), protocol.StepCollectName, false},
		{"Bob", protocol.StepGreeting, true},
		{"short", protocol.StepCollectIssue, false},
		{"my app is broken", protocol.StepCollectIssue, true},
		{"full", protocol.StepClarifyDetails, false},
		{"since Monday", protocol.StepClarifyDetails, true},
		{"anything", protocol.StepConfirmCategory, true},
		{"", protocol.StepConfirmCategory, false},
		{"  ", protocol.StepFinalConfirmation, false},
		{"no", protocol.StepFinalConfirmation, true},
	}
	for _, tt := range tests {
		if got := ValidateInput(tt.text, tt.step); got != tt.want {
			t.Errorf("ValidateInput(%q, %s) = %v, want %v", tt.text, tt.step, got, tt.want)
		}
	}
}

// TestHappyPath walks the billing scenario end to end.
func TestHappyPath(t *testing.T) {
	e := newTestEngine()
	state := e.Initialize()

	resp := e.ProcessInput("Alice Johnson", state)
	if state.CurrentStep != protocol.StepCollectIssue {
		t.Fatalf("after name: step = %q", state.CurrentStep)
	}
	if state.Data.UserName != "Alice Johnson" {
		t.Errorf("userName = %q", state.Data.UserName)
	}
	if !resp.ExpectsInput {
		t.Error("expected more input after name")
	}

	e.ProcessInput("My invoice was double-charged this month", state)
	if state.CurrentStep != protocol.StepClarifyDetails {
		t.Fatalf("after issue: step = %q", state.CurrentStep)
	}
	if state.Data.IssueTitle != "My invoice was double-charged this month" {
		t.Errorf("issueTitle = %q", state.Data.IssueTitle)
	}

	resp = e.ProcessInput("It happened twice on the 1st and the 15th", state)
	if state.CurrentStep != protocol.StepSuggestCategory {
		t.Fatalf("after detail: step = %q", state.CurrentStep)
	}
	if state.Data.SuggestedCategory != protocol.CategoryBilling {
		t.Errorf("suggested = %q, want billing", state.Data.SuggestedCategory)
	}
	if resp.Type != ResponseConfirmation || len(resp.QuickReplies) == 0 {
		t.Errorf("resp = %+v", resp)
	}

	e.ProcessInput("yes", state)
	if state.CurrentStep != protocol.StepFinalConfirmation {
		t.Fatalf("after category yes: step = %q", state.CurrentStep)
	}
	if state.Data.ConfirmedCategory != protocol.CategoryBilling {
		t.Errorf("confirmed = %q", state.Data.ConfirmedCategory)
	}

	resp = e.ProcessInput("yes", state)
	if state.CurrentStep != protocol.StepTicketCreated {
		t.Fatalf("after final yes: step = %q", state.CurrentStep)
	}
	if !state.IsComplete {
		t.Error("isComplete = false at ticket_created")
	}
	if state.TicketID == "" || !strings.HasPrefix(state.TicketID, "TKT-") {
		t.Errorf("ticketID = %q", state.TicketID)
	}
	if state.CompletedAt == nil {
		t.Error("completedAt not set")
	}
	if resp.Type != ResponseCompletion || resp.ExpectsInput {
		t.Errorf("final resp = %+v", resp)
	}
}

// TestInvalidInputReprompts checks the invariant: for any input failing
// its length predicate, the step is unchanged and exactly one reprompt
// assistant message is appended.
func TestInvalidInputReprompts(t *testing.T) {
	tests := []struct {
		step  protocol.ConversationStep
		input string
	}{
		{protocol.StepCollectName, "A"},
		{protocol.StepCollectName, strings.Repeat("z", 60)},
		{protocol.StepCollectIssue, "too short"},
		{protocol.StepClarifyDetails, "tiny"},
	}

	for _, tt := range tests {
		e := newTestEngine()
		state := e.Initialize()
		state.CurrentStep = tt.step
		before := len(state.Messages)

		resp := e.ProcessInput(tt.input, state)

		if state.CurrentStep != tt.step {
			t.Errorf("%s: step changed to %q", tt.step, state.CurrentStep)
		}
		if resp.Type != ResponseReprompt {
			t.Errorf("%s: resp type = %q", tt.step, resp.Type)
		}
		// user message + exactly one assistant reprompt
		if got := len(state.Messages) - before; got != 2 {
			t.Errorf("%s: appended %d messages, want 2", tt.step, got)
		}
		last := state.Messages[len(state.Messages)-1]
		if last.Role != protocol.RoleAssistant {
			t.Errorf("%s: last message role = %q", tt.step, last.Role)
		}
	}
}

func TestIsCompleteOnlyAtTicketCreated(t *testing.T) {
	e := newTestEngine()
	state := e.Initialize()

	inputs := []string{
		"Alice Johnson",
		"My invoice was double-charged this month",
		"It happened twice on the 1st and the 15th",
		"yes",
		"yes",
	}
	for _, in := range inputs {
		if state.IsComplete {
			t.Fatalf("isComplete before ticket_created (step %q)", state.CurrentStep)
		}
		e.ProcessInput(in, state)
	}
	if state.CurrentStep != protocol.StepTicketCreated || !state.IsComplete {
		t.Errorf("step = %q, isComplete = %v", state.CurrentStep, state.IsComplete)
	}
}

func TestCategoryRejectionRepresentsChoices(t *testing.T) {
	e := newTestEngine()
	state := e.Initialize()
	e.ProcessInput("Alice Johnson", state)
	e.ProcessInput("Something is wrong with my stuff somehow", state)
	e.ProcessInput("no clue what category this is", state)

	resp := e.ProcessInput("no", state)
	if state.CurrentStep != protocol.StepConfirmCategory {
		t.Fatalf("step = %q, want confirm_category", state.CurrentStep)
	}
	if len(resp.QuickReplies) != len(protocol.Categories) {
		t.Errorf("%d quick replies, want %d", len(resp.QuickReplies), len(protocol.Categories))
	}

	// Rejecting while naming another category confirms that category.
	resp = e.ProcessInput("it's really a billing thing", state)
	if state.CurrentStep != protocol.StepFinalConfirmation {
		t.Fatalf("step = %q, want final_confirmation", state.CurrentStep)
	}
	if state.Data.ConfirmedCategory != protocol.CategoryBilling {
		t.Errorf("confirmed = %q, want billing", state.Data.ConfirmedCategory)
	}
	_ = resp
}

func TestFinalRejectionResetsToCollectName(t *testing.T) {
	e := newTestEngine()
	state := e.Initialize()
	e.ProcessInput("Alice Johnson", state)
	e.ProcessInput("My invoice was double-charged this month", state)
	e.ProcessInput("It happened twice on the 1st and the 15th", state)
	e.ProcessInput("yes", state)

	e.ProcessInput("no, the description is wrong", state)
	if state.CurrentStep != protocol.StepCollectName {
		t.Errorf("step = %q, want collect_name after rejection", state.CurrentStep)
	}
	if state.IsComplete {
		t.Error("rejection marked conversation complete")
	}
}

// TestProgressMonotonic verifies progress never decreases on the happy
// path and hits the endpoints exactly.
func TestProgressMonotonic(t *testing.T) {
	if got := Progress(protocol.StepGreeting); got != 0 {
		t.Errorf("progress(greeting) = %d, want 0", got)
	}
	if got := Progress(protocol.StepTicketCreated); got != 100 {
		t.Errorf("progress(ticket_created) = %d, want 100", got)
	}
	if got := Progress(protocol.StepError); got != 0 {
		t.Errorf("progress(error) = %d, want 0", got)
	}

	e := newTestEngine()
	state := e.Initialize()
	last := Progress(state.CurrentStep)
	for _, in := range []string{
		"Alice Johnson",
		"My invoice was double-charged this month",
		"It happened twice on the 1st and the 15th",
		"yes",
		"yes",
	} {
		e.ProcessInput(in, state)
		p := Progress(state.CurrentStep)
		if p < last {
			t.Errorf("progress regressed %d -> %d at step %q", last, p, state.CurrentStep)
		}
		last = p
	}
}

func TestMessagesAppendOnly(t *testing.T) {
	e := newTestEngine()
	state := e.Initialize()
	first := state.Messages[0]

	e.ProcessInput("Alice Johnson", state)
	e.ProcessInput("My invoice was double-charged this month", state)

	if state.Messages[0].ID != first.ID || state.Messages[0].Content != first.Content {
		t.Error("earlier message mutated")
	}
	// user and assistant messages strictly alternate after the greeting
	for i := 1; i < len(state.Messages); i++ {
		want := protocol.RoleUser
		if i%2 == 0 {
			want = protocol.RoleAssistant
		}
		if state.Messages[i].Role != want {
			t.Errorf("message[%d] role = %q, want %q", i, state.Messages[i].Role, want)
		}
	}
}

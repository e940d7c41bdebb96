package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/deskflow-io/deskflow/internal/conversation"
	"github.com/deskflow-io/deskflow/pkg/protocol"
)

const (
	chatHistoryWindow = 14
	progressBarWidth  = 24
	sendTimeout       = 15 * time.Second
)

// chatReplyMsg carries the outcome of one Send round trip.
type chatReplyMsg struct {
	resp conversation.Response
	err  error
}

type chatModel struct {
	session *conversation.Session

	input        textinput.Model
	quickReplies []string
	sending      bool
	errMsg       string
}

func newChatModel(session *conversation.Session) chatModel {
	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.CharLimit = 2000
	input.Focus()

	c := chatModel{session: session, input: input}
	if session != nil {
		state := session.Resume()
		c.quickReplies = lastQuickReplies(state)
		c.input.SetValue(session.LoadDraft())
	}
	return c
}

func (c chatModel) init() tea.Cmd {
	return textinput.Blink
}

func (c chatModel) update(msg tea.Msg) (chatModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			return c.submit(c.input.Value())
		case "ctrl+n":
			if c.session != nil {
				state := c.session.Reset()
				c.quickReplies = lastQuickReplies(state)
				c.input.SetValue("")
				c.errMsg = ""
			}
			return c, nil
		default:
			// A lone digit picks the matching quick reply.
			if c.input.Value() == "" && len(c.quickReplies) > 0 && len(msg.String()) == 1 {
				if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(c.quickReplies) {
					return c.submit(c.quickReplies[n-1])
				}
			}
		}

	case chatReplyMsg:
		c.sending = false
		if msg.err != nil {
			c.errMsg = msg.err.Error()
			return c, nil
		}
		c.errMsg = ""
		c.quickReplies = msg.resp.QuickReplies
		return c, nil
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c chatModel) submit(text string) (chatModel, tea.Cmd) {
	text = strings.TrimSpace(text)
	if text == "" || c.sending || c.session == nil {
		return c, nil
	}
	c.sending = true
	c.input.SetValue("")
	session := c.session
	return c, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		resp, err := session.Send(ctx, text)
		return chatReplyMsg{resp: resp, err: err}
	}
}

// persistDraft saves half-typed input so it survives tab switches and
// restarts.
func (c chatModel) persistDraft() {
	if c.session != nil {
		c.session.SaveDraft(c.input.Value())
	}
}

func (c chatModel) view(width int) string {
	var b strings.Builder

	state := c.stateSnapshot()
	if state != nil {
		msgs := state.Messages
		if len(msgs) > chatHistoryWindow {
			msgs = msgs[len(msgs)-chatHistoryWindow:]
		}
		for _, msg := range msgs {
			switch msg.Role {
			case protocol.RoleUser:
				b.WriteString(userStyle.Render("you  ") + msg.Content)
			default:
				b.WriteString(assistantStyle.Render("desk ") + msg.Content)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(renderProgress(conversation.Progress(state.CurrentStep)))
		b.WriteString("\n")
	}

	if len(c.quickReplies) > 0 {
		hints := make([]string, len(c.quickReplies))
		for i, qr := range c.quickReplies {
			hints[i] = fmt.Sprintf("[%d] %s", i+1, qr)
		}
		b.WriteString(quickReplyStyle.Render(strings.Join(hints, "  ")))
		b.WriteString("\n")
	}
	if c.errMsg != "" {
		b.WriteString(errorStyle.Render(c.errMsg))
		b.WriteString("\n")
	}
	if c.sending {
		b.WriteString(helpStyle.Render("sending..."))
		b.WriteString("\n")
	}

	b.WriteString(c.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send  ctrl+n: new conversation"))
	return b.String()
}

func (c chatModel) stateSnapshot() *protocol.ConversationState {
	if c.session == nil {
		return nil
	}
	return c.session.State()
}

func renderProgress(pct int) string {
	filled := pct * progressBarWidth / 100
	bar := progressFillStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", progressBarWidth-filled))
	return fmt.Sprintf("%s %d%%", bar, pct)
}

// lastQuickReplies pulls the hints off the newest assistant message.
func lastQuickReplies(state *protocol.ConversationState) []string {
	if state == nil {
		return nil
	}
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == protocol.RoleAssistant {
			return state.Messages[i].QuickReplies()
		}
	}
	return nil
}

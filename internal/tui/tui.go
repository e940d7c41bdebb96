// Package tui renders the terminal client: a guided intake chat, a
// ticket dashboard, and a status bar fed by the real-time channel.
package tui

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/deskflow-io/deskflow/internal/channel"
	"github.com/deskflow-io/deskflow/internal/conversation"
	"github.com/deskflow-io/deskflow/internal/notify"
	"github.com/deskflow-io/deskflow/internal/ticketview"
	"github.com/deskflow-io/deskflow/pkg/protocol"
)

type tab int

const (
	tabChat tab = iota
	tabDashboard
)

// EventSource is the slice of the channel client the UI listens on.
// A nil EventSource runs the UI without live updates.
type EventSource interface {
	On(event protocol.EventType, h channel.Handler)
	OnStatusChange(l channel.StatusListener)
	Status() channel.Status
}

// Deps bundles everything the UI talks to.
type Deps struct {
	Session *conversation.Session
	Tickets *ticketview.Model
	Channel EventSource
	Notices *notify.Center
	Logger  *slog.Logger
}

// Messages delivered through the bubbletea loop.
type (
	channelStatusMsg struct {
		status channel.Status
		errMsg string
	}

	ticketPushMsg struct {
		eventType protocol.EventType
		ticket    protocol.Ticket
	}

	serverStatsMsg struct{ stats protocol.ServerStatsPayload }

	typingMsg struct{ payload protocol.TypingPayload }

	// searchReloadedMsg fires after the debounced search re-fetch so
	// the dashboard repaints with fresh results.
	searchReloadedMsg struct{}
)

// Model is the root bubbletea model.
type Model struct {
	deps   Deps
	logger *slog.Logger

	tab    tab
	width  int
	height int

	chat chatModel
	dash dashModel

	connStatus  channel.Status
	connErr     string
	serverStats *protocol.ServerStatsPayload

	events chan tea.Msg
}

// New builds the root model and subscribes it to channel pushes.
func New(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := &Model{
		deps:       deps,
		logger:     deps.Logger.With("component", "tui"),
		chat:       newChatModel(deps.Session),
		dash:       newDashModel(deps.Tickets),
		connStatus: channel.StatusDisconnected,
		events:     make(chan tea.Msg, 64),
	}
	if deps.Channel != nil {
		m.connStatus = deps.Channel.Status()
		m.subscribe(deps.Channel)
	}
	return m
}

// subscribe forwards channel pushes into the bubbletea message loop.
func (m *Model) subscribe(src EventSource) {
	src.OnStatusChange(func(s channel.Status, errMsg string) {
		m.post(channelStatusMsg{status: s, errMsg: errMsg})
	})
	forwardTicket := func(eventType protocol.EventType) channel.Handler {
		return func(payload json.RawMessage) {
			var p protocol.TicketEventPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				m.logger.Warn("bad ticket push", "event", eventType, "error", err)
				return
			}
			m.post(ticketPushMsg{eventType: eventType, ticket: p.Ticket})
		}
	}
	src.On(protocol.EventTicketCreated, forwardTicket(protocol.EventTicketCreated))
	src.On(protocol.EventTicketUpdated, forwardTicket(protocol.EventTicketUpdated))
	src.On(protocol.EventServerStats, func(payload json.RawMessage) {
		var p protocol.ServerStatsPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			m.post(serverStatsMsg{stats: p})
		}
	})
	src.On(protocol.EventTyping, func(payload json.RawMessage) {
		var p protocol.TypingPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			m.post(typingMsg{payload: p})
		}
	})
}

// post drops the message rather than block the channel's read loop when
// the UI is backed up.
func (m *Model) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

// PostSearchReload is the view-model's onChange hook; it repaints the
// dashboard after a debounced search fetch lands.
func (m *Model) PostSearchReload() {
	m.post(searchReloadedMsg{})
}

func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.chat.init(),
		m.dash.init(),
		m.waitEvent(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.chat.persistDraft()
			return m, tea.Quit
		case "tab":
			if !m.captureKeys() {
				if m.tab == tabChat {
					m.chat.persistDraft()
					m.tab = tabDashboard
				} else {
					m.tab = tabChat
				}
				return m, nil
			}
		}

	case channelStatusMsg:
		m.connStatus = msg.status
		m.connErr = msg.errMsg
		if msg.status == channel.StatusConnected && m.deps.Notices != nil {
			m.deps.Notices.Push(slog.LevelInfo, "Live updates connected", "channel")
		}
		return m, m.waitEvent()

	case ticketPushMsg:
		m.deps.Tickets.ApplyEvent(msg.eventType, msg.ticket)
		if msg.eventType == protocol.EventTicketCreated && m.deps.Notices != nil {
			m.deps.Notices.Push(slog.LevelInfo,
				fmt.Sprintf("New ticket: %s", msg.ticket.Title), "channel")
		}
		return m, m.waitEvent()

	case serverStatsMsg:
		stats := msg.stats
		m.serverStats = &stats
		return m, m.waitEvent()

	case typingMsg:
		// Support-side typing is informational only.
		return m, m.waitEvent()

	case searchReloadedMsg:
		return m, m.waitEvent()
	}

	var cmd tea.Cmd
	switch m.tab {
	case tabChat:
		m.chat, cmd = m.chat.update(msg)
	case tabDashboard:
		m.dash, cmd = m.dash.update(msg)
	}
	return m, cmd
}

// captureKeys reports whether the active tab is in a text-entry mode
// that should swallow global keys.
func (m *Model) captureKeys() bool {
	if m.tab == tabDashboard {
		return m.dash.searching
	}
	return false
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	switch m.tab {
	case tabChat:
		b.WriteString(m.chat.view(m.width))
	case tabDashboard:
		b.WriteString(m.dash.view(m.width))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderTabs() string {
	chat, dash := tabStyle, tabStyle
	if m.tab == tabChat {
		chat = activeTabStyle
	} else {
		dash = activeTabStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		chat.Render("Intake"),
		dash.Render("Dashboard"),
	)
}

func (m *Model) renderStatusBar() string {
	parts := []string{
		statusDot(m.connStatus == channel.StatusConnected, m.connStatus == channel.StatusConnecting),
		string(m.connStatus),
	}
	if m.connErr != "" {
		parts = append(parts, errorStyle.Render(m.connErr))
	}
	if m.deps.Session != nil && m.deps.Session.Offline() {
		parts = append(parts, errorStyle.Render("offline mode"))
	}
	if m.tab == tabChat && m.deps.Session != nil {
		parts = append(parts, fmt.Sprintf("intake %d%%", m.deps.Session.Progress()))
	}
	if m.serverStats != nil {
		parts = append(parts, fmt.Sprintf("%d online", m.serverStats.Connections))
	}
	if m.deps.Notices != nil {
		if latest := m.deps.Notices.Latest(1); len(latest) > 0 {
			style := noticeStyle
			if latest[0].Level >= slog.LevelError {
				style = errorStyle
			}
			parts = append(parts, style.Render(latest[0].Message))
		}
	}
	parts = append(parts, helpStyle.Render("tab: switch  ctrl+c: quit"))
	return statusBarStyle.Render(strings.Join(parts, "  "))
}

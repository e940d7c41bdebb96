package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/deskflow-io/deskflow/internal/ticketview"
	"github.com/deskflow-io/deskflow/pkg/protocol"
)

const dashTimeout = 15 * time.Second

// dashReloadedMsg reports a finished list fetch.
type dashReloadedMsg struct{ err error }

// dashUpdatedMsg reports a finished ticket mutation.
type dashUpdatedMsg struct {
	ticket *protocol.Ticket
	err    error
}

// statusFilterCycle is what the f key steps through: everything, then
// each status alone.
var statusFilterCycle = [][]protocol.TicketStatus{
	nil,
	{protocol.StatusOpen},
	{protocol.StatusInProgress},
	{protocol.StatusResolved},
	{protocol.StatusClosed},
}

var statusUpdateCycle = []protocol.TicketStatus{
	protocol.StatusOpen,
	protocol.StatusInProgress,
	protocol.StatusResolved,
	protocol.StatusClosed,
}

var priorityUpdateCycle = []protocol.TicketPriority{
	protocol.PriorityLow,
	protocol.PriorityMedium,
	protocol.PriorityHigh,
	protocol.PriorityUrgent,
}

type dashModel struct {
	tickets *ticketview.Model

	cursor     int
	searching  bool
	showDetail bool
	loaded     bool

	statusIdx   int
	categoryIdx int

	search textinput.Model
}

func newDashModel(tickets *ticketview.Model) dashModel {
	search := textinput.New()
	search.Placeholder = "Search tickets..."
	search.CharLimit = 200
	return dashModel{tickets: tickets, search: search}
}

func (d dashModel) init() tea.Cmd {
	if d.tickets == nil {
		return nil
	}
	tickets := d.tickets
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dashTimeout)
		defer cancel()
		err := tickets.Load(ctx, true)
		if err == nil {
			_ = tickets.RefreshStats(ctx)
		}
		return dashReloadedMsg{err: err}
	}
}

func (d dashModel) update(msg tea.Msg) (dashModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if d.searching {
			return d.updateSearch(msg)
		}
		if d.showDetail {
			return d.updateDetail(msg)
		}
		return d.updateList(msg)

	case dashReloadedMsg:
		d.loaded = true
		d.clampCursor()
		return d, nil

	case dashUpdatedMsg:
		return d, nil
	}

	return d, nil
}

func (d dashModel) updateList(msg tea.KeyMsg) (dashModel, tea.Cmd) {
	if d.tickets == nil {
		return d, nil
	}
	switch msg.String() {
	case "up", "k":
		if d.cursor > 0 {
			d.cursor--
		}
	case "down", "j":
		if d.cursor < len(d.tickets.FilteredTickets())-1 {
			d.cursor++
		}
	case "enter":
		if len(d.tickets.FilteredTickets()) > 0 {
			d.showDetail = true
		}
	case "f":
		d.statusIdx = (d.statusIdx + 1) % len(statusFilterCycle)
		return d, d.async(func(ctx context.Context) error {
			return d.tickets.SetStatusFilter(ctx, statusFilterCycle[d.statusIdx])
		})
	case "c":
		d.categoryIdx = (d.categoryIdx + 1) % (len(protocol.Categories) + 1)
		var cats []protocol.TicketCategory
		if d.categoryIdx > 0 {
			cats = []protocol.TicketCategory{protocol.Categories[d.categoryIdx-1]}
		}
		return d, d.async(func(ctx context.Context) error {
			return d.tickets.SetCategoryFilter(ctx, cats)
		})
	case "o":
		q := d.tickets.Query()
		order := protocol.SortDesc
		if q.SortOrder == protocol.SortDesc {
			order = protocol.SortAsc
		}
		return d, d.async(func(ctx context.Context) error {
			return d.tickets.SetSort(ctx, q.SortBy, order)
		})
	case "/":
		d.searching = true
		d.search.Focus()
	case "m":
		return d, d.async(d.tickets.LoadMore)
	case "r":
		return d, d.async(func(ctx context.Context) error {
			if err := d.tickets.Load(ctx, false); err != nil {
				return err
			}
			return d.tickets.RefreshStats(ctx)
		})
	case "x":
		d.statusIdx, d.categoryIdx = 0, 0
		d.search.SetValue("")
		return d, d.async(d.tickets.ClearFilters)
	}
	return d, nil
}

func (d dashModel) updateSearch(msg tea.KeyMsg) (dashModel, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter":
		d.searching = false
		d.search.Blur()
		return d, nil
	}
	var cmd tea.Cmd
	d.search, cmd = d.search.Update(msg)
	// Every keystroke feeds the debounced search; the view-model
	// collapses the burst into one request.
	d.tickets.SetSearch(context.Background(), d.search.Value())
	return d, cmd
}

func (d dashModel) updateDetail(msg tea.KeyMsg) (dashModel, tea.Cmd) {
	selected, ok := d.selected()
	if !ok {
		d.showDetail = false
		return d, nil
	}
	switch msg.String() {
	case "esc", "q":
		d.showDetail = false
	case "s":
		next := nextInCycle(statusUpdateCycle, selected.Status)
		return d, d.mutate(selected.ID, protocol.TicketUpdate{Status: &next})
	case "p":
		next := nextInCycle(priorityUpdateCycle, selected.Priority)
		return d, d.mutate(selected.ID, protocol.TicketUpdate{Priority: &next})
	}
	return d, nil
}

func (d dashModel) async(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dashTimeout)
		defer cancel()
		return dashReloadedMsg{err: fn(ctx)}
	}
}

func (d dashModel) mutate(id string, update protocol.TicketUpdate) tea.Cmd {
	tickets := d.tickets
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dashTimeout)
		defer cancel()
		t, err := tickets.UpdateTicket(ctx, id, update)
		return dashUpdatedMsg{ticket: t, err: err}
	}
}

func (d dashModel) selected() (protocol.Ticket, bool) {
	list := d.tickets.FilteredTickets()
	if d.cursor < 0 || d.cursor >= len(list) {
		return protocol.Ticket{}, false
	}
	return list[d.cursor], true
}

func (d *dashModel) clampCursor() {
	if d.tickets == nil {
		return
	}
	if n := len(d.tickets.FilteredTickets()); d.cursor >= n {
		d.cursor = max(n-1, 0)
	}
}

func (d dashModel) view(width int) string {
	if d.tickets == nil {
		return helpStyle.Render("dashboard unavailable")
	}
	if d.showDetail {
		return d.viewDetail()
	}
	return d.viewList()
}

func (d dashModel) viewList() string {
	var b strings.Builder

	if d.searching || d.search.Value() != "" {
		b.WriteString(d.search.View())
		b.WriteString("\n\n")
	}

	b.WriteString(headerRowStyle.Render(
		fmt.Sprintf("%-10s %-40s %-12s %-15s %-8s", "ID", "TITLE", "STATUS", "CATEGORY", "PRIORITY")))
	b.WriteString("\n")

	list := d.tickets.FilteredTickets()
	if len(list) == 0 {
		if d.loaded {
			b.WriteString(helpStyle.Render("no tickets match"))
		} else {
			b.WriteString(helpStyle.Render("loading..."))
		}
		b.WriteString("\n")
	}
	for i, t := range list {
		row := fmt.Sprintf("%-10s %-40s %-12s %-15s %-8s",
			clip(t.ID, 10), clip(t.Title, 40), t.Status, t.Category, t.Priority)
		if i == d.cursor {
			row = selectedRowStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(d.viewFooter())
	return b.String()
}

func (d dashModel) viewFooter() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("%d of %d", len(d.tickets.Tickets()), d.tickets.Total()))
	if d.tickets.HasNext() {
		parts = append(parts, "m: more")
	}
	if sel := statusFilterCycle[d.statusIdx]; sel != nil {
		parts = append(parts, "status="+string(sel[0]))
	}
	if d.categoryIdx > 0 {
		parts = append(parts, "category="+string(protocol.Categories[d.categoryIdx-1]))
	}
	if stats := d.tickets.Stats(); stats != nil {
		parts = append(parts, fmt.Sprintf("open %d / in progress %d / resolved %d",
			stats.Open, stats.InProgress, stats.Resolved))
	}
	if errMsg := d.tickets.Err(); errMsg != "" {
		parts = append(parts, errorStyle.Render(errMsg))
	}
	parts = append(parts, helpStyle.Render("f/c: filter  o: sort  /: search  r: reload  x: clear"))
	return statusBarStyle.Render(strings.Join(parts, "  "))
}

func (d dashModel) viewDetail() string {
	t, ok := d.selected()
	if !ok {
		return helpStyle.Render("ticket gone")
	}

	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	b.WriteString(selectedRowStyle.Render(t.Title))
	b.WriteString("\n\n")
	line("ID", t.ID)
	line("Status", t.Status.Label())
	line("Category", t.Category.Label())
	line("Priority", string(t.Priority))
	line("Reporter", t.UserName)
	if t.AssignedTo != "" {
		line("Assignee", t.AssignedTo)
	}
	line("Created", t.CreatedAt.Local().Format("2006-01-02 15:04"))
	if t.ResolvedAt != nil {
		line("Resolved", t.ResolvedAt.Local().Format("2006-01-02 15:04"))
	}
	if len(t.Tags) > 0 {
		line("Tags", strings.Join(t.Tags, ", "))
	}
	b.WriteString("\n")
	b.WriteString(t.Description)
	b.WriteString("\n\n")
	if errMsg := d.tickets.Err(); errMsg != "" {
		b.WriteString(errorStyle.Render(errMsg))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("s: cycle status  p: cycle priority  esc: back"))
	return b.String()
}

func nextInCycle[T comparable](cycle []T, current T) T {
	for i, v := range cycle {
		if v == current {
			return cycle[(i+1)%len(cycle)]
		}
	}
	return cycle[0]
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

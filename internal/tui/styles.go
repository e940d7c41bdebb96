package tui

import "github.com/charmbracelet/lipgloss"

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("244"))

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true)

	quickReplyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")).
			Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)

	headerRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Underline(true)

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244")).
				Width(12)

	progressFillStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("41"))
	progressEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// statusDot maps a connection state to a colored indicator.
func statusDot(connected, reconnecting bool) string {
	switch {
	case connected:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("41")).Render("●")
	case reconnecting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("●")
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("●")
	}
}

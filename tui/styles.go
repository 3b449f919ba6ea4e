package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Station-Manager/serialplot"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#575B7E")).
			Padding(0, 1)

	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	keyStyle     = lipgloss.NewStyle().Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	channelStyle = lipgloss.NewStyle().Width(12)
	valueStyle   = lipgloss.NewStyle().Width(18).Align(lipgloss.Right).Padding(0, 1)

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	infoStyle  = lipgloss.NewStyle()
)

// severityStyle maps status severity to a traffic-light colour.
func severityStyle(s serialplot.Severity) lipgloss.Style {
	switch s {
	case serialplot.SeverityOK:
		return okStyle
	case serialplot.SeverityWarning:
		return warnStyle
	case serialplot.SeverityError:
		return errorStyle
	default:
		return infoStyle
	}
}

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"walletsync/pkg/models"
)

// --- Styles ---
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true)
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	boxStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FAFAFA")).
				Bold(true).
				Padding(0, 1)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

func stateStyle(s models.ConnectionState) lipgloss.Style {
	switch s {
	case models.ConnectionConnected:
		return infoStyle
	case models.ConnectionConnecting:
		return warnStyle
	case models.ConnectionNoConnection:
		return errStyle
	}
	return subtleStyle
}

func stateLabel(s models.ConnectionState) string {
	switch s {
	case models.ConnectionConnected:
		return "● live"
	case models.ConnectionConnecting:
		return "◌ connecting"
	case models.ConnectionNoConnection:
		return "✕ offline"
	}
	return "○ idle"
}

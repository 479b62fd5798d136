package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the dashboard until the user quits.
func Start(ctrl Controller, version string) error {
	Version = version
	p := tea.NewProgram(initialModel(ctrl), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

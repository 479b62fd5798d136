package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"walletsync/pkg/models"
	"walletsync/pkg/watcher"
)

// clipboardWrite is replaced in tests.
var clipboardWrite = clipboard.WriteAll

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m *model) setStatus(format string, args ...interface{}) tea.Cmd {
	m.statusMessage = fmt.Sprintf(format, args...)
	return clearStatusAfter(2 * time.Second)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case watcher.Event:
		m.applyEvent(msg)
		cmds = append(cmds, listenForWatcher(m.sub))

	case feedClosedMsg:
		m.statusMessage = "Event feed closed"

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		if m.editingLabel {
			return m.updateEditingLabel(msg)
		}
		if m.confirmDelete {
			return m.updateConfirmDelete(msg)
		}
		if msg.String() == "?" {
			m.showHelp = !m.showHelp
			return m, nil
		}
		if m.showHelp {
			if msg.String() == "q" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			if m.showTxList || m.showGraph {
				m.showTxList = false
				m.showGraph = false
				return m, nil
			}
			m.ctrl.Unsubscribe(m.sub)
			return m, tea.Quit
		case "esc":
			m.showTxList = false
			m.showGraph = false
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.wallets)-1 {
				m.cursor++
			}
		case "K", "shift+up":
			if m.cursor > 0 {
				if err := m.ctrl.MoveWallet(m.cursor, m.cursor-1); err == nil {
					m.cursor--
				}
			}
		case "J", "shift+down":
			if m.cursor < len(m.wallets)-1 {
				if err := m.ctrl.MoveWallet(m.cursor, m.cursor+1); err == nil {
					m.cursor++
				}
			}
		case "enter":
			if w, ok := m.selected(); ok && w.Identity() != m.active {
				if err := m.ctrl.SetActive(w.Identity()); err != nil {
					cmds = append(cmds, m.setStatus("Failed to switch wallet: %v", err))
				} else {
					cmds = append(cmds, m.setStatus("Streaming %s", w.DisplayName()))
				}
			}
		case "r":
			m.ctrl.Reconnect()
			cmds = append(cmds, m.setStatus("Reconnecting..."))
		case "c":
			if w, ok := m.selected(); ok {
				if err := clipboardWrite(w.Address); err != nil {
					cmds = append(cmds, m.setStatus("Failed to copy to clipboard"))
				} else {
					cmds = append(cmds, m.setStatus("Full address copied to clipboard!"))
				}
			}
		case "g":
			m.showGraph = !m.showGraph
			m.showTxList = false
		case "t":
			m.showTxList = !m.showTxList
			m.showGraph = false
		case "P":
			m.privacyMode = !m.privacyMode
		case "a":
			m.adding = true
			m.addFocus = 0
			for i := range m.addInputs {
				m.addInputs[i].SetValue("")
				m.addInputs[i].Blur()
			}
			return m, m.addInputs[0].Focus()
		case "e":
			if w, ok := m.selected(); ok {
				m.editingLabel = true
				m.labelInput.SetValue(w.Label)
				return m, m.labelInput.Focus()
			}
		case "d":
			if _, ok := m.selected(); ok {
				m.confirmDelete = true
			}
		}

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
	}

	// The spinner keeps ticking so it is live whenever a stream reconnects.
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.adding = false
		return m, nil
	case "tab", "down":
		m.addInputs[m.addFocus].Blur()
		m.addFocus = (m.addFocus + 1) % len(m.addInputs)
		return m, m.addInputs[m.addFocus].Focus()
	case "shift+tab", "up":
		m.addInputs[m.addFocus].Blur()
		m.addFocus = (m.addFocus + len(m.addInputs) - 1) % len(m.addInputs)
		return m, m.addInputs[m.addFocus].Focus()
	case "enter":
		if m.addFocus < len(m.addInputs)-1 {
			m.addInputs[m.addFocus].Blur()
			m.addFocus++
			return m, m.addInputs[m.addFocus].Focus()
		}
		w, err := models.NewWallet(
			m.addInputs[0].Value(),
			models.WalletKindRegular,
			models.Network(strings.TrimSpace(m.addInputs[2].Value())),
			m.addInputs[1].Value(),
		)
		if err == nil {
			err = m.ctrl.AddWallet(w)
		}
		m.adding = false
		if err != nil {
			return m, m.setStatus("Failed to add wallet: %v", err)
		}
		return m, m.setStatus("Added %s", w.DisplayName())
	}

	var cmd tea.Cmd
	m.addInputs[m.addFocus], cmd = m.addInputs[m.addFocus].Update(msg)
	return m, cmd
}

func (m model) updateEditingLabel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editingLabel = false
		return m, nil
	case "enter":
		m.editingLabel = false
		w, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.ctrl.RenameWallet(w.Identity(), strings.TrimSpace(m.labelInput.Value())); err != nil {
			return m, m.setStatus("Failed to rename wallet: %v", err)
		}
		return m, m.setStatus("Wallet renamed")
	}

	var cmd tea.Cmd
	m.labelInput, cmd = m.labelInput.Update(msg)
	return m, cmd
}

func (m model) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirmDelete = false
	switch msg.String() {
	case "y", "Y", "enter":
		w, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.ctrl.RemoveWallet(w.Identity()); err != nil {
			return m, m.setStatus("Failed to remove wallet: %v", err)
		}
		return m, m.setStatus("Removed %s", w.DisplayName())
	}
	return m, nil
}

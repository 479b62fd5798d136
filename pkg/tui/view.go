package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"walletsync/pkg/models"
	"walletsync/pkg/utils"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.adding {
		return m.viewAdding()
	}
	if m.editingLabel {
		w, _ := m.selected()
		return m.dialog("Edit Wallet Label",
			fmt.Sprintf("Address: %s", w.Address),
			"\n",
			m.labelInput.View(),
			"\n",
			subtleStyle.Render("Enter to save • Esc to cancel"),
		)
	}
	if m.confirmDelete {
		w, _ := m.selected()
		return m.dialog("Confirm Remove",
			fmt.Sprintf("Remove %s?", w.DisplayName()),
			"\n",
			subtleStyle.Render("(y) Yes • (n) No"),
		)
	}
	if m.showGraph {
		return m.viewGraph()
	}
	if m.showTxList {
		return m.viewTxList()
	}
	return m.viewMain()
}

func (m model) dialog(title string, lines ...string) string {
	body := append([]string{titleStyle.Render(title), "\n"}, lines...)
	return lipgloss.Place(
		m.width, m.height, lipgloss.Center, lipgloss.Center,
		boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body...)),
	)
}

func (m model) viewAdding() string {
	labels := []string{"Address", "Label", "Network"}
	var inputs []string
	for i, label := range labels {
		inputs = append(inputs, fmt.Sprintf("%-10s %s", label, m.addInputs[i].View()))
	}
	return m.dialog("Add Wallet",
		strings.Join(inputs, "\n"),
		"\n",
		subtleStyle.Render("Enter to next/save • Tab to switch • Esc to cancel"),
	)
}

func (m model) viewMain() string {
	spinnerView := ""
	if m.connecting() {
		spinnerView = m.spinner.View() + " "
	}
	lastUpd := "waiting for events"
	if !m.lastUpdate.IsZero() {
		lastUpd = "Last event: " + m.lastUpdate.Format("15:04:05")
	}
	title := titleStyle.Render("Wallet Sync")
	right := subtleStyle.Render(spinnerView + lastUpd + " ")
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	topBar := lipgloss.JoinHorizontal(lipgloss.Top, title, strings.Repeat(" ", gap), right)

	var content string
	if len(m.wallets) == 0 {
		content = boxStyle.Render("No wallets configured. Press 'a' to add one.")
	} else {
		content = boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			m.renderWalletTable(),
			"\n",
			m.renderRecentTransactions(3),
		))
	}

	footer := m.renderFooter("↑/↓:sel • ent:stream • r:reconnect • c:cpy • g:graph • t:txs • a:add • e:edit • d:del • P:prv • ?:hlp • q:quit")

	h := m.height - 1
	if h < 0 {
		h = 0
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		topBar,
		lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center,
			lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer)),
	)
}

func (m model) renderWalletTable() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("  %-16s %-14s %-8s %-13s %s", "NAME", "ADDRESS", "NETWORK", "STATUS", "BALANCE"))
	rows := []string{header}
	for i, w := range m.wallets {
		id := w.Identity()
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		name := utils.TruncateString(w.DisplayName(), 16)
		if id == m.active {
			name = utils.TruncateString("★ "+w.DisplayName(), 16)
		}
		state := m.stateOf(id)
		var amount string
		if b, ok := m.balances[id.String()]; ok {
			amount = m.displayBalance(b.Amount) + subtleStyle.Render(" ("+m.lastSeen(id, time.Now())+")")
		} else {
			amount = m.displayBalance(nil)
		}
		rows = append(rows, fmt.Sprintf("%s%-16s %-14s %-8s %s %s",
			cursor,
			name,
			m.maskAddress(w.Address),
			w.Network,
			stateStyle(state).Render(fmt.Sprintf("%-13s", stateLabel(state))),
			amount,
		))
	}
	return strings.Join(rows, "\n")
}

func (m model) renderRecentTransactions(limit int) string {
	txs := m.transactionsOf(m.active)
	if len(txs) == 0 {
		return subtleStyle.Render("No transactions since start")
	}
	lines := []string{tableHeaderStyle.Render(fmt.Sprintf("%-14s %-12s", "TX", "LT"))}
	for i, t := range txs {
		if i >= limit {
			break
		}
		lines = append(lines, fmt.Sprintf("%-14s %-12d", m.maskString(utils.TruncateString(t.Update.TxHash, 14)), t.Update.Lt))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderFooter(keys string) string {
	line := keys + fmt.Sprintf(" • v%s", Version)
	var footer string
	if m.width > 0 {
		footer = subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line)
	} else {
		footer = subtleStyle.Render(line)
	}
	if m.statusMessage != "" {
		footer = lipgloss.JoinVertical(lipgloss.Center, infoStyle.Render(m.statusMessage), footer)
	}
	return footer
}

func (m model) viewGraph() string {
	w, ok := m.selected()
	if !ok {
		return "No wallet selected."
	}
	header := titleStyle.Render(fmt.Sprintf("Balance History: %s", w.DisplayName()))

	var graph string
	history := m.ctrl.History(w.Identity())
	switch {
	case m.privacyMode:
		graph = "Hidden in privacy mode."
	case len(history) > 1:
		width := m.width - 14
		if width < 10 {
			width = 10
		}
		height := m.height - 12
		if height < 1 {
			height = 1
		}
		graph = asciigraph.Plot(history,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption("Balance (ETH)"),
		)
	default:
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", graph))
	footer := subtleStyle.Render("g/q/esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewTxList() string {
	w, ok := m.selected()
	if !ok {
		return "No wallet selected."
	}
	header := titleStyle.Render(fmt.Sprintf("Transactions: %s", w.DisplayName()))

	txs := m.transactionsOf(w.Identity())
	body := "No transactions since start."
	if len(txs) > 0 {
		rows := []string{tableHeaderStyle.Render(fmt.Sprintf("%-20s %-12s %s", "TX HASH", "LT", "ACCOUNT"))}
		for _, t := range txs {
			rows = append(rows, fmt.Sprintf("%-20s %-12d %s",
				m.maskString(utils.TruncateString(t.Update.TxHash, 20)),
				t.Update.Lt,
				m.maskAddress(t.Update.Address),
			))
		}
		body = strings.Join(rows, "\n")
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", body))
	footer := subtleStyle.Render("t/q/esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"↑/k ↓/j: Select Wallet",
		"K/J: Move Wallet Up/Down",
		"enter: Stream Selected Wallet",
		"r: Reconnect Stream",
		"c: Copy Address",
		"g: Balance Graph",
		"t: Transaction List",
		"a: Add Wallet",
		"e: Edit Label",
		"d: Remove Wallet",
		"P: Toggle Privacy",
		"q/esc: Quit or Back",
		"?: Toggle Help",
	}
	header := titleStyle.Render("Help")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

// lastSeen describes when the wallet's balance was last refreshed.
func (m model) lastSeen(id models.WalletIdentity, now time.Time) string {
	b, ok := m.balances[id.String()]
	if !ok {
		return "never"
	}
	return utils.TimeAgo(b.UpdatedAt, now)
}

package tui

import (
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"walletsync/pkg/backgroundupdate"
	"walletsync/pkg/models"
	"walletsync/pkg/stores"
	"walletsync/pkg/watcher"
)

const maxTransactions = 50

func (m *model) applyStatus(st watcher.Status) {
	m.wallets = st.Wallets
	m.active = st.Active
	m.states = st.States
	if m.states == nil {
		m.states = make(map[string]models.ConnectionState)
	}
	m.balances = st.Balances
	if m.balances == nil {
		m.balances = make(map[string]models.Balance)
	}
	m.transactions = st.Transactions
	m.clampCursor()
}

// applyEvent folds a watcher event into the model.
func (m *model) applyEvent(ev watcher.Event) {
	switch ev.Type {
	case watcher.EventWalletsUpdated:
		if e, ok := ev.Data.(stores.WalletsEvent); ok {
			m.wallets = e.Wallets
			m.active = e.Active
			for key := range m.balances {
				if !m.hasWallet(key) {
					delete(m.balances, key)
				}
			}
			m.clampCursor()
		}
	case watcher.EventStateChanged:
		if c, ok := ev.Data.(backgroundupdate.StateChange); ok {
			if c.Removed {
				delete(m.states, c.Wallet.String())
			} else {
				m.states[c.Wallet.String()] = c.State
			}
		}
	case watcher.EventBalanceUpdated:
		if b, ok := ev.Data.(models.Balance); ok {
			m.balances[b.Wallet.String()] = b
		}
	case watcher.EventTransaction:
		if t, ok := ev.Data.(models.TransactionEvent); ok {
			m.transactions = append([]models.TransactionEvent{t}, m.transactions...)
			if len(m.transactions) > maxTransactions {
				m.transactions = m.transactions[:maxTransactions]
			}
		}
	}
	m.lastUpdate = time.Now()
}

func (m model) hasWallet(key string) bool {
	return slices.ContainsFunc(m.wallets, func(w models.Wallet) bool { return w.Identity().String() == key })
}

func (m model) activeIndex() int {
	i := slices.IndexFunc(m.wallets, func(w models.Wallet) bool { return w.Identity() == m.active })
	if i < 0 {
		return 0
	}
	return i
}

func (m *model) clampCursor() {
	if m.cursor >= len(m.wallets) {
		m.cursor = len(m.wallets) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selected returns the wallet under the cursor.
func (m model) selected() (models.Wallet, bool) {
	if m.cursor < 0 || m.cursor >= len(m.wallets) {
		return models.Wallet{}, false
	}
	return m.wallets[m.cursor], true
}

// stateOf returns the wallet's connection state. Only the active wallet is
// streamed, so other wallets report disconnected.
func (m model) stateOf(id models.WalletIdentity) models.ConnectionState {
	if id != m.active {
		if s, ok := m.states[id.String()]; ok && s == models.ConnectionNoConnection {
			return s
		}
		return models.ConnectionDisconnected
	}
	return m.states[id.String()]
}

// transactionsOf returns the recent transactions of one wallet.
func (m model) transactionsOf(id models.WalletIdentity) []models.TransactionEvent {
	var out []models.TransactionEvent
	for _, t := range m.transactions {
		if t.Wallet == id {
			out = append(out, t)
		}
	}
	return out
}

// connecting reports whether the active wallet is still establishing its
// stream.
func (m model) connecting() bool {
	return !m.active.IsZero() && m.states[m.active.String()] == models.ConnectionConnecting
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return feedClosedMsg{}
		}
		return ev
	}
}

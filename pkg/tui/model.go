package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"walletsync/pkg/models"
	"walletsync/pkg/watcher"
)

// Version is set by Start()
var Version = "dev"

// Controller is the part of the watcher the dashboard drives.
type Controller interface {
	Subscribe() watcher.Subscriber
	Unsubscribe(watcher.Subscriber)
	Status() watcher.Status
	History(id models.WalletIdentity) []float64
	RecentTransactions(id models.WalletIdentity) []models.TransactionEvent
	SetActive(id models.WalletIdentity) error
	AddWallet(wallet models.Wallet) error
	RemoveWallet(id models.WalletIdentity) error
	RenameWallet(id models.WalletIdentity, label string) error
	MoveWallet(from, to int) error
	Reconnect()
}

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time
type feedClosedMsg struct{}

// --- Model ---

type model struct {
	ctrl Controller
	sub  watcher.Subscriber

	wallets      []models.Wallet
	active       models.WalletIdentity
	states       map[string]models.ConnectionState
	balances     map[string]models.Balance
	transactions []models.TransactionEvent

	cursor        int
	width         int
	height        int
	lastUpdate    time.Time
	spinner       spinner.Model
	statusMessage string

	showHelp    bool
	showGraph   bool
	showTxList  bool
	privacyMode bool

	adding        bool
	addInputs     []textinput.Model
	addFocus      int
	editingLabel  bool
	labelInput    textinput.Model
	confirmDelete bool
}

func initialModel(ctrl Controller) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ais := make([]textinput.Model, 3)
	for i := range ais {
		ais[i] = textinput.New()
		ais[i].Width = 44
	}
	ais[0].Placeholder = "0x..."
	ais[1].Placeholder = "Label (Optional)"
	ais[2].Placeholder = "mainnet or testnet"

	li := textinput.New()
	li.Placeholder = "Label"
	li.Width = 40

	m := model{
		ctrl:       ctrl,
		sub:        ctrl.Subscribe(),
		spinner:    s,
		addInputs:  ais,
		labelInput: li,
	}
	m.applyStatus(ctrl.Status())
	m.cursor = m.activeIndex()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForWatcher(m.sub),
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }),
	)
}

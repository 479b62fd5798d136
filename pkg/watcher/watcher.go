package watcher

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"walletsync/pkg/backgroundupdate"
	"walletsync/pkg/logger"
	"walletsync/pkg/metrics"
	"walletsync/pkg/models"
	"walletsync/pkg/stores"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultHistorySize     = 50
)

type Options struct {
	// RefreshInterval is how often the active wallet's balance is polled
	// in addition to the reloads triggered by transactions.
	RefreshInterval time.Duration
	// HistorySize bounds both the recent transaction list and the balance
	// history kept per wallet.
	HistorySize int
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	return o
}

// Watcher merges the wallet, connection, transaction and balance stores
// into one event feed for the status server and the TUI.
type Watcher struct {
	wallets  *stores.WalletsStore
	updates  *backgroundupdate.BackgroundUpdate
	balances *stores.BalanceStore
	opts     Options
	log      *logrus.Entry

	mu          sync.RWMutex
	subscribers []Subscriber
	recent      []models.TransactionEvent
	history     map[models.WalletIdentity][]float64
	detaches    []func()

	runMu  sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a Watcher observing the given stores. Nothing is
// started until Start.
func NewWatcher(wallets *stores.WalletsStore, updates *backgroundupdate.BackgroundUpdate, balances *stores.BalanceStore, opts Options) *Watcher {
	w := &Watcher{
		wallets:  wallets,
		updates:  updates,
		balances: balances,
		opts:     opts.withDefaults(),
		log:      logger.For("watcher"),
		history:  make(map[models.WalletIdentity][]float64),
	}

	walletsToken := wallets.Observe(w.onWalletsEvent)
	statesToken := updates.States().Observe(w.onStateChange)
	eventsToken := updates.Events().Observe(w.onTransaction)
	balancesToken := balances.Observe(w.onBalance)
	w.detaches = []func(){
		func() { wallets.RemoveObserver(walletsToken) },
		func() { updates.States().RemoveObserver(statesToken) },
		func() { updates.Events().RemoveObserver(eventsToken) },
		func() { balances.RemoveObserver(balancesToken) },
	}
	return w
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = slices.Delete(w.subscribers, i, i+1)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			metrics.RecordDroppedEvent("slow_subscriber")
		}
	}
}

// Start begins streaming the active wallet and polling its balance.
func (w *Watcher) Start(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.runCtx, w.cancel = ctx, cancel
	w.done = make(chan struct{})
	w.updates.Start()
	go w.pollingLoop(ctx, w.done)
}

// Stop stops streaming and polling. It is a no-op when not started.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.runCtx, w.cancel = nil, nil
	w.updates.Stop()
}

// Close stops the watcher, detaches it from the stores and closes every
// subscriber.
func (w *Watcher) Close() {
	w.Stop()

	w.mu.Lock()
	detaches := w.detaches
	w.detaches = nil
	subs := w.subscribers
	w.subscribers = nil
	for _, sub := range subs {
		close(sub)
	}
	w.mu.Unlock()

	for _, d := range detaches {
		d()
	}
}

// runContext returns the context of the current run, or nil when stopped.
func (w *Watcher) runContext() context.Context {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.runCtx
}

func (w *Watcher) pollingLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Initial fetch
	w.refreshActive(ctx)

	ticker := time.NewTicker(w.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.refreshActive(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) refreshActive(ctx context.Context) {
	active, ok := w.wallets.ActiveWallet()
	if !ok {
		return
	}
	w.refresh(ctx, active.Identity())
}

func (w *Watcher) refresh(ctx context.Context, id models.WalletIdentity) {
	ctx, cancel := context.WithTimeout(ctx, stores.DefaultReloadTimeout)
	defer cancel()
	if err := w.balances.Reload(ctx, id); err != nil && ctx.Err() == nil {
		w.log.WithError(err).WithField("wallet", id.String()).Debug("balance refresh failed")
	}
}

func (w *Watcher) onWalletsEvent(e stores.WalletsEvent) {
	w.mu.Lock()
	for id := range w.history {
		if !slices.ContainsFunc(e.Wallets, func(wl models.Wallet) bool { return wl.Identity() == id }) {
			delete(w.history, id)
		}
	}
	w.mu.Unlock()

	w.notify(Event{Type: EventWalletsUpdated, Data: e})

	if !e.ActiveChanged() || e.Active.IsZero() {
		return
	}
	if ctx := w.runContext(); ctx != nil {
		go w.refresh(ctx, e.Active)
	}
}

func (w *Watcher) onStateChange(c backgroundupdate.StateChange) {
	w.notify(Event{Type: EventStateChanged, Data: c})
}

func (w *Watcher) onTransaction(e models.TransactionEvent) {
	w.mu.Lock()
	w.recent = append([]models.TransactionEvent{e}, w.recent...)
	if len(w.recent) > w.opts.HistorySize {
		w.recent = w.recent[:w.opts.HistorySize]
	}
	w.mu.Unlock()

	w.notify(Event{Type: EventTransaction, Data: e})
}

func (w *Watcher) onBalance(e stores.BalanceEvent) {
	if e.Balance.Amount != nil {
		f, _ := e.Balance.Amount.Float64()
		w.mu.Lock()
		h := append(w.history[e.Wallet], f)
		if len(h) > w.opts.HistorySize {
			h = h[len(h)-w.opts.HistorySize:]
		}
		w.history[e.Wallet] = h
		w.mu.Unlock()
	}

	w.notify(Event{Type: EventBalanceUpdated, Data: e.Balance})
}

// SetActive switches the wallet being streamed.
func (w *Watcher) SetActive(id models.WalletIdentity) error {
	return w.wallets.SetActive(id)
}

func (w *Watcher) AddWallet(wallet models.Wallet) error {
	return w.wallets.AddWallets(wallet)
}

func (w *Watcher) RemoveWallet(id models.WalletIdentity) error {
	return w.wallets.RemoveWallet(id)
}

func (w *Watcher) RenameWallet(id models.WalletIdentity, label string) error {
	return w.wallets.UpdateLabel(id, label)
}

// MoveWallet reorders the wallet list.
func (w *Watcher) MoveWallet(from, to int) error {
	return w.wallets.MoveWallet(from, to)
}

// Reconnect restarts the active wallet's stream.
func (w *Watcher) Reconnect() {
	w.updates.Reconnect()
}

// Status returns the current state of every wallet.
func (w *Watcher) Status() Status {
	ws := w.wallets.State()
	st := Status{
		Wallets:  ws.Wallets,
		Active:   ws.Active,
		States:   make(map[string]models.ConnectionState, len(ws.Wallets)),
		Balances: make(map[string]models.Balance),
	}
	balances := w.balances.State()
	for _, wl := range ws.Wallets {
		id := wl.Identity()
		st.States[id.String()] = w.updates.State(id)
		if b, ok := balances[id]; ok {
			st.Balances[id.String()] = b
		}
	}
	st.Transactions = w.RecentTransactions(models.WalletIdentity{})
	return st
}

// RecentTransactions returns the latest transactions, newest first. A zero
// id returns those of every wallet.
func (w *Watcher) RecentTransactions(id models.WalletIdentity) []models.TransactionEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.TransactionEvent, 0, len(w.recent))
	for _, e := range w.recent {
		if id.IsZero() || e.Wallet == id {
			out = append(out, e)
		}
	}
	return out
}

// History returns the wallet's balance history in ether, oldest first.
func (w *Watcher) History(id models.WalletIdentity) []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.history[id])
}

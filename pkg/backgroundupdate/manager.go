// Package backgroundupdate keeps the active wallet's transaction stream open
// and publishes connection states and transaction events through stores.
package backgroundupdate

import (
	"maps"
	"sync"

	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/metrics"
	"walletsync/pkg/models"
	"walletsync/pkg/store"
	"walletsync/pkg/stores"
)

// StateChange is published when a wallet's connection state changes or the
// wallet is forgotten.
type StateChange struct {
	Wallet  models.WalletIdentity  `json:"wallet"`
	State   models.ConnectionState `json:"state"`
	Removed bool                   `json:"removed,omitempty"`
}

type (
	StatesStore = store.Store[StateChange, map[models.WalletIdentity]models.ConnectionState]
	EventsStore = store.Store[models.TransactionEvent, struct{}]
)

// BackgroundUpdate owns one updater per known wallet and keeps exactly the
// active wallet's updater running while started.
type BackgroundUpdate struct {
	wallets   *stores.WalletsStore
	transport Transport
	opts      Options
	log       *logrus.Entry

	states *StatesStore
	events *EventsStore

	mu           sync.Mutex
	updaters     map[models.WalletIdentity]*WalletBackgroundUpdate
	started      bool
	walletsToken store.Token
}

// New creates a stopped manager following wallets' active wallet.
func New(wallets *stores.WalletsStore, transport Transport, exec store.Executor, opts Options) *BackgroundUpdate {
	b := &BackgroundUpdate{
		wallets:   wallets,
		transport: transport,
		opts:      opts.withDefaults(),
		log:       logger.For("background-update"),
		states:    store.New[StateChange](map[models.WalletIdentity]models.ConnectionState{}, exec),
		events:    store.New[models.TransactionEvent](struct{}{}, exec),
		updaters:  make(map[models.WalletIdentity]*WalletBackgroundUpdate),
	}
	b.walletsToken = store.AddObserver(wallets.Store, b, (*BackgroundUpdate).onWalletsEvent)
	return b
}

// States publishes connection state changes.
func (b *BackgroundUpdate) States() *StatesStore { return b.states }

// Events publishes transaction events of running wallets.
func (b *BackgroundUpdate) Events() *EventsStore { return b.events }

// Start runs the active wallet's updater unless it is already running.
func (b *BackgroundUpdate) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.started = true
	b.followActive(false)
}

// Stop stops every updater.
func (b *BackgroundUpdate) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.started = false
	for _, u := range b.updaters {
		u.Stop()
	}
}

// Reconnect restarts the active wallet's updater, whatever its state.
func (b *BackgroundUpdate) Reconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return
	}
	b.followActive(true)
}

// State returns the wallet's last known connection state.
func (b *BackgroundUpdate) State(id models.WalletIdentity) models.ConnectionState {
	return b.states.State()[id]
}

// Running returns the wallets whose updater loop is live.
func (b *BackgroundUpdate) Running() []models.WalletIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()

	var running []models.WalletIdentity
	for id, u := range b.updaters {
		if u.Running() {
			running = append(running, id)
		}
	}
	return running
}

// Close detaches from the wallets store and stops every updater.
func (b *BackgroundUpdate) Close() {
	b.wallets.RemoveObserver(b.walletsToken)
	b.Stop()
}

func (b *BackgroundUpdate) updater(w models.Wallet) *WalletBackgroundUpdate {
	id := w.Identity()
	if u, ok := b.updaters[id]; ok {
		return u
	}
	u := NewWalletBackgroundUpdate(w, b.transport, b.opts, b.setState, b.publishEvent)
	b.updaters[id] = u
	return u
}

// followActive brings the updaters in line with the committed active
// wallet: every other updater is stopped, and the active one is started when
// it is not running or restart is set. Callers hold b.mu.
func (b *BackgroundUpdate) followActive(restart bool) {
	w, ok := b.wallets.ActiveWallet()
	for id, u := range b.updaters {
		if ok && id == w.Identity() {
			continue
		}
		u.Stop()
	}
	if !ok {
		return
	}
	u := b.updater(w)
	if restart || !u.Running() {
		u.Start()
	}
}

// onWalletsEvent may run after later commits to the wallets store, so it
// acts on the store's current state rather than the event's snapshot.
func (b *BackgroundUpdate) onWalletsEvent(e stores.WalletsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.wallets.State()
	known := make(map[models.WalletIdentity]bool, len(current.Wallets))
	for _, w := range current.Wallets {
		known[w.Identity()] = true
	}
	for id, u := range b.updaters {
		if known[id] {
			continue
		}
		u.Stop()
		delete(b.updaters, id)
		b.forget(id)
	}

	if !b.started || !e.ActiveChanged() {
		return
	}
	if !e.Active.IsZero() {
		b.log.WithField("wallet", e.Active.String()).Info("active wallet changed")
	}
	b.followActive(false)
}

func (b *BackgroundUpdate) setState(id models.WalletIdentity, s models.ConnectionState) {
	metrics.SetConnectionState(id.Address, s.String())
	b.states.Update(func(cur map[models.WalletIdentity]models.ConnectionState) *store.Transition[StateChange, map[models.WalletIdentity]models.ConnectionState] {
		if prev, ok := cur[id]; ok && prev == s {
			return nil
		}
		next := maps.Clone(cur)
		next[id] = s
		return &store.Transition[StateChange, map[models.WalletIdentity]models.ConnectionState]{
			State: next,
			Event: StateChange{Wallet: id, State: s},
		}
	})
}

func (b *BackgroundUpdate) publishEvent(id models.WalletIdentity, update models.TransactionUpdate) {
	metrics.RecordTransactionEvent()
	b.events.SendEvent(models.TransactionEvent{Wallet: id, Update: update})
}

func (b *BackgroundUpdate) forget(id models.WalletIdentity) {
	metrics.ForgetWallet(id.Address)
	b.states.Update(func(cur map[models.WalletIdentity]models.ConnectionState) *store.Transition[StateChange, map[models.WalletIdentity]models.ConnectionState] {
		if _, ok := cur[id]; !ok {
			return nil
		}
		next := maps.Clone(cur)
		delete(next, id)
		return &store.Transition[StateChange, map[models.WalletIdentity]models.ConnectionState]{
			State: next,
			Event: StateChange{Wallet: id, State: models.ConnectionDisconnected, Removed: true},
		}
	})
}

package stores

import (
	"context"
	"fmt"
	"maps"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/models"
	"walletsync/pkg/store"
)

const DefaultReloadTimeout = 15 * time.Second

// BalanceLoader fetches the native balance of a wallet.
type BalanceLoader interface {
	FetchBalance(ctx context.Context, wallet models.WalletIdentity) (*big.Float, error)
}

type BalanceEvent struct {
	Wallet  models.WalletIdentity
	Balance models.Balance
}

// BalanceStore holds the last known balance of each wallet.
type BalanceStore struct {
	*store.Store[BalanceEvent, map[models.WalletIdentity]models.Balance]
	loader  BalanceLoader
	timeout time.Duration
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	requests atomic.Uint64
	// applied holds the request number of each committed balance. Only
	// transforms touch it, so the store's update lock guards it.
	applied map[models.WalletIdentity]uint64

	mu       sync.Mutex
	detaches []func()
}

// NewBalanceStore creates an empty store. A zero timeout uses
// DefaultReloadTimeout for reloads triggered by transactions.
func NewBalanceStore(loader BalanceLoader, timeout time.Duration, exec store.Executor) *BalanceStore {
	if timeout <= 0 {
		timeout = DefaultReloadTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BalanceStore{
		Store:   store.New[BalanceEvent](map[models.WalletIdentity]models.Balance{}, exec),
		loader:  loader,
		timeout: timeout,
		log:     logger.For("balances"),
		ctx:     ctx,
		cancel:  cancel,
		applied: make(map[models.WalletIdentity]uint64),
	}
}

func (s *BalanceStore) Balance(wallet models.WalletIdentity) (models.Balance, bool) {
	b, ok := s.State()[wallet]
	return b, ok
}

// Reload fetches the wallet's balance and commits it. A result is dropped
// when a reload started later has already committed.
func (s *BalanceStore) Reload(ctx context.Context, wallet models.WalletIdentity) error {
	req := s.requests.Add(1)
	amount, err := s.loader.FetchBalance(ctx, wallet)
	if err != nil {
		return fmt.Errorf("failed to fetch balance for %s: %w", wallet, err)
	}
	b := models.Balance{Wallet: wallet, Amount: amount, UpdatedAt: time.Now()}
	_, err = s.UpdateContext(ctx, func(st map[models.WalletIdentity]models.Balance) *store.Transition[BalanceEvent, map[models.WalletIdentity]models.Balance] {
		if s.applied[wallet] > req {
			s.log.WithField("wallet", wallet.String()).Debug("dropped stale balance")
			return nil
		}
		s.applied[wallet] = req
		next := maps.Clone(st)
		next[wallet] = b
		return &store.Transition[BalanceEvent, map[models.WalletIdentity]models.Balance]{
			State: next,
			Event: BalanceEvent{Wallet: wallet, Balance: b},
		}
	})
	return err
}

// Attach reloads a wallet's balance whenever a transaction is reported for
// it.
func (s *BalanceStore) Attach(events *store.Store[models.TransactionEvent, struct{}]) {
	token := events.Observe(func(e models.TransactionEvent) {
		s.reloadAsync(e.Wallet)
	})
	s.mu.Lock()
	s.detaches = append(s.detaches, func() { events.RemoveObserver(token) })
	s.mu.Unlock()
}

func (s *BalanceStore) reloadAsync(wallet models.WalletIdentity) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		if err := s.Reload(ctx, wallet); err != nil && s.ctx.Err() == nil {
			s.log.WithError(err).WithField("wallet", wallet.String()).Warn("balance reload failed")
		}
	}()
}

// Close detaches from every attached store and waits for pending reloads.
func (s *BalanceStore) Close() {
	s.mu.Lock()
	detaches := s.detaches
	s.detaches = nil
	s.cancel()
	s.mu.Unlock()

	for _, d := range detaches {
		d()
	}
	s.wg.Wait()
}

// Package stores holds the application stores built on pkg/store: the
// wallet list, NFT lists, visibility preferences, the derived visible-NFT
// view and balances.
package stores

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/models"
	"walletsync/pkg/repository"
	"walletsync/pkg/store"
)

var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrInvalidIndex   = errors.New("wallet index out of range")
)

const walletsKey = "wallets"

// WalletsState is the ordered wallet list and the active wallet. A zero
// Active means no wallet is selected.
type WalletsState struct {
	Wallets []models.Wallet       `json:"wallets"`
	Active  models.WalletIdentity `json:"active"`
}

func (s WalletsState) index(id models.WalletIdentity) int {
	return slices.IndexFunc(s.Wallets, func(w models.Wallet) bool { return w.Identity() == id })
}

type WalletsEventKind string

const (
	WalletsAdded         WalletsEventKind = "added"
	WalletsRemoved       WalletsEventKind = "removed"
	WalletsUpdated       WalletsEventKind = "updated"
	WalletsReordered     WalletsEventKind = "reordered"
	WalletsActiveChanged WalletsEventKind = "activeChanged"
)

// WalletsEvent describes a committed change. Active and PreviousActive
// differ whenever the change moved the active wallet, whatever the Kind.
type WalletsEvent struct {
	Kind           WalletsEventKind      `json:"kind"`
	Wallets        []models.Wallet       `json:"wallets"`
	Active         models.WalletIdentity `json:"active"`
	PreviousActive models.WalletIdentity `json:"previous_active"`
}

func (e WalletsEvent) ActiveChanged() bool {
	return e.Active != e.PreviousActive
}

// WalletsStore is the source of truth for the wallet collection.
type WalletsStore struct {
	*store.Store[WalletsEvent, WalletsState]
	repo repository.Repository[WalletsState]
	log  *logrus.Entry
}

// NewWalletsStore loads the persisted wallet list. A missing or unreadable
// record starts an empty store.
func NewWalletsStore(repo repository.Repository[WalletsState], exec store.Executor) *WalletsStore {
	log := logger.For("wallets")
	initial, err := repo.Load(walletsKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.WithError(err).Warn("failed to load wallets, starting empty")
		}
		initial = WalletsState{}
	}
	if initial.index(initial.Active) < 0 {
		initial.Active = models.WalletIdentity{}
		if len(initial.Wallets) > 0 {
			initial.Active = initial.Wallets[0].Identity()
		}
	}
	return &WalletsStore{
		Store: store.New[WalletsEvent, WalletsState](initial, exec),
		repo:  repo,
		log:   log,
	}
}

func (s *WalletsStore) commit(kind WalletsEventKind, prev, next WalletsState) *store.Transition[WalletsEvent, WalletsState] {
	return &store.Transition[WalletsEvent, WalletsState]{
		State: next,
		Event: WalletsEvent{
			Kind:           kind,
			Wallets:        next.Wallets,
			Active:         next.Active,
			PreviousActive: prev.Active,
		},
		Effect: func() error {
			if err := s.repo.Save(next, walletsKey); err != nil {
				return fmt.Errorf("failed to save wallets: %w", err)
			}
			return nil
		},
	}
}

// AddWallets appends wallets. When no wallet is active the first added one
// becomes active. Nothing is added if any wallet is already present.
func (s *WalletsStore) AddWallets(wallets ...models.Wallet) error {
	if len(wallets) == 0 {
		return nil
	}
	var err error
	s.Update(func(st WalletsState) *store.Transition[WalletsEvent, WalletsState] {
		seen := make(map[models.WalletIdentity]bool, len(wallets))
		for _, w := range wallets {
			if seen[w.Identity()] || st.index(w.Identity()) >= 0 {
				err = fmt.Errorf("%w: %s", ErrWalletExists, w.Identity())
				return nil
			}
			seen[w.Identity()] = true
		}
		next := WalletsState{
			Wallets: append(slices.Clone(st.Wallets), wallets...),
			Active:  st.Active,
		}
		if next.Active.IsZero() {
			next.Active = wallets[0].Identity()
		}
		return s.commit(WalletsAdded, st, next)
	})
	return err
}

// RemoveWallet drops a wallet. Removing the active wallet activates the first
// remaining one.
func (s *WalletsStore) RemoveWallet(id models.WalletIdentity) error {
	var err error
	s.Update(func(st WalletsState) *store.Transition[WalletsEvent, WalletsState] {
		i := st.index(id)
		if i < 0 {
			err = fmt.Errorf("%w: %s", ErrWalletNotFound, id)
			return nil
		}
		next := WalletsState{Wallets: slices.Delete(slices.Clone(st.Wallets), i, i+1), Active: st.Active}
		if st.Active == id {
			next.Active = models.WalletIdentity{}
			if len(next.Wallets) > 0 {
				next.Active = next.Wallets[0].Identity()
			}
		}
		return s.commit(WalletsRemoved, st, next)
	})
	return err
}

// SetActive switches the active wallet. Selecting the current one is a no-op.
func (s *WalletsStore) SetActive(id models.WalletIdentity) error {
	var err error
	s.Update(func(st WalletsState) *store.Transition[WalletsEvent, WalletsState] {
		if st.index(id) < 0 {
			err = fmt.Errorf("%w: %s", ErrWalletNotFound, id)
			return nil
		}
		if st.Active == id {
			return nil
		}
		return s.commit(WalletsActiveChanged, st, WalletsState{Wallets: st.Wallets, Active: id})
	})
	return err
}

func (s *WalletsStore) UpdateLabel(id models.WalletIdentity, label string) error {
	var err error
	s.Update(func(st WalletsState) *store.Transition[WalletsEvent, WalletsState] {
		i := st.index(id)
		if i < 0 {
			err = fmt.Errorf("%w: %s", ErrWalletNotFound, id)
			return nil
		}
		if st.Wallets[i].Label == label {
			return nil
		}
		wallets := slices.Clone(st.Wallets)
		wallets[i].Label = label
		return s.commit(WalletsUpdated, st, WalletsState{Wallets: wallets, Active: st.Active})
	})
	return err
}

// MoveWallet moves the wallet at index from to index to.
func (s *WalletsStore) MoveWallet(from, to int) error {
	var err error
	s.Update(func(st WalletsState) *store.Transition[WalletsEvent, WalletsState] {
		n := len(st.Wallets)
		if from < 0 || from >= n || to < 0 || to >= n {
			err = fmt.Errorf("%w: %d -> %d of %d", ErrInvalidIndex, from, to, n)
			return nil
		}
		if from == to {
			return nil
		}
		wallets := slices.Clone(st.Wallets)
		w := wallets[from]
		wallets = slices.Delete(wallets, from, from+1)
		wallets = slices.Insert(wallets, to, w)
		return s.commit(WalletsReordered, st, WalletsState{Wallets: wallets, Active: st.Active})
	})
	return err
}

func (s *WalletsStore) ActiveWallet() (models.Wallet, bool) {
	st := s.State()
	return s.lookup(st, st.Active)
}

func (s *WalletsStore) Wallet(id models.WalletIdentity) (models.Wallet, bool) {
	return s.lookup(s.State(), id)
}

func (s *WalletsStore) lookup(st WalletsState, id models.WalletIdentity) (models.Wallet, bool) {
	if i := st.index(id); i >= 0 {
		return st.Wallets[i], true
	}
	return models.Wallet{}, false
}

// FindByAddress returns the first wallet with the given address, in any
// letter case.
func (s *WalletsStore) FindByAddress(address string) (models.Wallet, bool) {
	for _, w := range s.State().Wallets {
		if strings.EqualFold(w.Address, address) {
			return w, true
		}
	}
	return models.Wallet{}, false
}

package stores

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/models"
	"walletsync/pkg/repository"
	"walletsync/pkg/store"
)

type NFTManagementEvent struct {
	Wallet models.WalletIdentity
	State  models.NFTManagementState
}

// NFTManagementStore holds one wallet's explicit NFT visibility choices.
type NFTManagementStore struct {
	*store.Store[NFTManagementEvent, models.NFTManagementState]
	wallet models.WalletIdentity
	repo   repository.Repository[models.NFTManagementState]
	log    *logrus.Entry
}

func nftManagementKey(wallet models.WalletIdentity) string {
	return "nft-management-" + wallet.String()
}

// NewNFTManagementStore loads the wallet's preferences eagerly. Load errors
// leave the store empty.
func NewNFTManagementStore(wallet models.WalletIdentity, repo repository.Repository[models.NFTManagementState], exec store.Executor) *NFTManagementStore {
	log := logger.For("nft-management").WithField("wallet", wallet.String())
	initial, err := repo.Load(nftManagementKey(wallet))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.WithError(err).Warn("failed to load NFT preferences")
		}
		initial = models.NFTManagementState{}
	}
	if initial.States == nil {
		initial.States = map[models.NFTManagementItem]models.VisibilityState{}
	}
	return &NFTManagementStore{
		Store:  store.New[NFTManagementEvent](initial, exec),
		wallet: wallet,
		repo:   repo,
		log:    log,
	}
}

func (s *NFTManagementStore) Wallet() models.WalletIdentity {
	return s.wallet
}

// SetState records an explicit visibility for an item or collection.
func (s *NFTManagementStore) SetState(item models.NFTManagementItem, v models.VisibilityState) bool {
	return s.Update(func(st models.NFTManagementState) *store.Transition[NFTManagementEvent, models.NFTManagementState] {
		if cur, ok := st.States[item]; ok && cur == v {
			return nil
		}
		return s.commit(st.With(item, v))
	})
}

// Reset removes the explicit choice, falling back to the default policy.
func (s *NFTManagementStore) Reset(item models.NFTManagementItem) bool {
	return s.Update(func(st models.NFTManagementState) *store.Transition[NFTManagementEvent, models.NFTManagementState] {
		if _, ok := st.States[item]; !ok {
			return nil
		}
		return s.commit(st.Without(item))
	})
}

func (s *NFTManagementStore) commit(next models.NFTManagementState) *store.Transition[NFTManagementEvent, models.NFTManagementState] {
	return &store.Transition[NFTManagementEvent, models.NFTManagementState]{
		State: next,
		Event: NFTManagementEvent{Wallet: s.wallet, State: next},
		Effect: func() error {
			if err := s.repo.Save(next, nftManagementKey(s.wallet)); err != nil {
				return fmt.Errorf("failed to save NFT preferences for %s: %w", s.wallet, err)
			}
			return nil
		},
	}
}

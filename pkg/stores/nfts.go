package stores

import (
	"maps"
	"slices"

	"walletsync/pkg/models"
	"walletsync/pkg/store"
)

type NFTsEventKind string

const (
	NFTsUpdated   NFTsEventKind = "updated"
	NFTsRemoved   NFTsEventKind = "removed"
	NFTsRefreshed NFTsEventKind = "refreshed"
)

type NFTsEvent struct {
	Kind   NFTsEventKind
	Wallet models.WalletIdentity
}

// NFTsStore holds the raw NFT list of every wallet.
type NFTsStore struct {
	*store.Store[NFTsEvent, map[models.WalletIdentity][]models.NFT]
}

func NewNFTsStore(exec store.Executor) *NFTsStore {
	return &NFTsStore{
		Store: store.New[NFTsEvent](map[models.WalletIdentity][]models.NFT{}, exec),
	}
}

// SetNFTs replaces a wallet's NFT list. An identical list is not committed.
func (s *NFTsStore) SetNFTs(wallet models.WalletIdentity, nfts []models.NFT) bool {
	return s.Update(func(st map[models.WalletIdentity][]models.NFT) *store.Transition[NFTsEvent, map[models.WalletIdentity][]models.NFT] {
		if cur, ok := st[wallet]; ok && slices.Equal(cur, nfts) {
			return nil
		}
		next := maps.Clone(st)
		next[wallet] = slices.Clone(nfts)
		return &store.Transition[NFTsEvent, map[models.WalletIdentity][]models.NFT]{
			State: next,
			Event: NFTsEvent{Kind: NFTsUpdated, Wallet: wallet},
		}
	})
}

func (s *NFTsStore) NFTs(wallet models.WalletIdentity) []models.NFT {
	return s.State()[wallet]
}

func (s *NFTsStore) RemoveWallet(wallet models.WalletIdentity) bool {
	return s.Update(func(st map[models.WalletIdentity][]models.NFT) *store.Transition[NFTsEvent, map[models.WalletIdentity][]models.NFT] {
		if _, ok := st[wallet]; !ok {
			return nil
		}
		next := maps.Clone(st)
		delete(next, wallet)
		return &store.Transition[NFTsEvent, map[models.WalletIdentity][]models.NFT]{
			State: next,
			Event: NFTsEvent{Kind: NFTsRemoved, Wallet: wallet},
		}
	})
}

// NotifyRefreshed tells observers the wallet's collection was re-fetched,
// whether or not anything changed.
func (s *NFTsStore) NotifyRefreshed(wallet models.WalletIdentity) {
	s.SendEvent(NFTsEvent{Kind: NFTsRefreshed, Wallet: wallet})
}

package stores

import (
	"slices"

	"walletsync/pkg/models"
	"walletsync/pkg/store"
)

// FilterVisible applies the visibility policy: blacklisted NFTs are shown
// only when explicitly visible, everything else unless explicitly hidden.
func FilterVisible(nfts []models.NFT, state models.NFTManagementState) []models.NFT {
	visible := make([]models.NFT, 0, len(nfts))
	for _, nft := range nfts {
		explicit, ok := state.Lookup(nft)
		if nft.Trust == models.TrustBlacklist {
			if ok && explicit == models.VisibilityVisible {
				visible = append(visible, nft)
			}
			continue
		}
		if !ok || explicit != models.VisibilityHidden {
			visible = append(visible, nft)
		}
	}
	return visible
}

type VisibleNFTsEvent struct {
	Wallet models.WalletIdentity
	NFTs   []models.NFT
}

// VisibleNFTsStore is the visible NFT list of one wallet, derived from an
// NFTsStore and the wallet's NFTManagementStore.
type VisibleNFTsStore struct {
	*store.Store[VisibleNFTsEvent, []models.NFT]
	wallet     models.WalletIdentity
	nfts       *NFTsStore
	management *NFTManagementStore

	nftsToken       store.Token
	managementToken store.Token
}

// NewVisibleNFTsStore computes the initial list at once and keeps it in sync
// with both upstreams for as long as the returned store is reachable.
func NewVisibleNFTsStore(wallet models.WalletIdentity, nfts *NFTsStore, management *NFTManagementStore, exec store.Executor) *VisibleNFTsStore {
	v := &VisibleNFTsStore{
		wallet:     wallet,
		nfts:       nfts,
		management: management,
	}
	v.Store = store.New[VisibleNFTsEvent](v.compute(), exec)
	v.nftsToken = store.AddObserver(nfts.Store, v, (*VisibleNFTsStore).onNFTs)
	v.managementToken = store.AddObserver(management.Store, v, (*VisibleNFTsStore).onManagement)
	return v
}

func (v *VisibleNFTsStore) compute() []models.NFT {
	return FilterVisible(v.nfts.NFTs(v.wallet), v.management.State())
}

func (v *VisibleNFTsStore) onNFTs(e NFTsEvent) {
	if e.Wallet != v.wallet {
		return
	}
	v.recompute()
}

func (v *VisibleNFTsStore) onManagement(e NFTManagementEvent) {
	if e.Wallet != v.wallet {
		return
	}
	v.recompute()
}

func (v *VisibleNFTsStore) recompute() {
	v.Update(func(cur []models.NFT) *store.Transition[VisibleNFTsEvent, []models.NFT] {
		next := v.compute()
		if slices.Equal(cur, next) {
			return nil
		}
		return &store.Transition[VisibleNFTsEvent, []models.NFT]{
			State: next,
			Event: VisibleNFTsEvent{Wallet: v.wallet, NFTs: next},
		}
	})
}

func (v *VisibleNFTsStore) Wallet() models.WalletIdentity {
	return v.wallet
}

// Close detaches the store from its upstreams.
func (v *VisibleNFTsStore) Close() {
	v.nfts.RemoveObserver(v.nftsToken)
	v.management.RemoveObserver(v.managementToken)
}

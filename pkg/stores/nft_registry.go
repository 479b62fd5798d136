package stores

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/models"
	"walletsync/pkg/repository"
	"walletsync/pkg/store"
)

type nftWallet struct {
	management *NFTManagementStore
	visible    *VisibleNFTsStore
}

// NFTRegistry owns the NFT list store and, per wallet, the preference store
// and visible view. Per-wallet stores are created on first use and dropped
// when the wallet is removed.
type NFTRegistry struct {
	wallets *WalletsStore
	nfts    *NFTsStore
	repo    repository.Repository[models.NFTManagementState]
	exec    store.Executor
	log     *logrus.Entry

	mu           sync.Mutex
	entries      map[models.WalletIdentity]*nftWallet
	walletsToken store.Token
}

func NewNFTRegistry(wallets *WalletsStore, repo repository.Repository[models.NFTManagementState], exec store.Executor) *NFTRegistry {
	r := &NFTRegistry{
		wallets: wallets,
		nfts:    NewNFTsStore(exec),
		repo:    repo,
		exec:    exec,
		log:     logger.For("nfts"),
		entries: make(map[models.WalletIdentity]*nftWallet),
	}
	r.walletsToken = store.AddObserver(wallets.Store, r, (*NFTRegistry).onWalletsEvent)
	return r
}

func (r *NFTRegistry) NFTs() *NFTsStore { return r.nfts }

func (r *NFTRegistry) entry(id models.WalletIdentity) (*nftWallet, error) {
	if _, ok := r.wallets.Wallet(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	management := NewNFTManagementStore(id, r.repo, r.exec)
	e := &nftWallet{
		management: management,
		visible:    NewVisibleNFTsStore(id, r.nfts, management, r.exec),
	}
	r.entries[id] = e
	return e, nil
}

// SetNFTs replaces the wallet's collection and signals a refresh.
func (r *NFTRegistry) SetNFTs(id models.WalletIdentity, nfts []models.NFT) error {
	if _, err := r.entry(id); err != nil {
		return err
	}
	r.nfts.SetNFTs(id, nfts)
	r.nfts.NotifyRefreshed(id)
	return nil
}

// Visible returns the wallet's visible NFTs as last derived.
func (r *NFTRegistry) Visible(id models.WalletIdentity) ([]models.NFT, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	return e.visible.State(), nil
}

// Management returns the wallet's preference store.
func (r *NFTRegistry) Management(id models.WalletIdentity) (*NFTManagementStore, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	return e.management, nil
}

// SetVisibility records an explicit choice. An empty state resets the item
// to the default policy.
func (r *NFTRegistry) SetVisibility(id models.WalletIdentity, item models.NFTManagementItem, v models.VisibilityState) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	if v == "" {
		e.management.Reset(item)
		return nil
	}
	e.management.SetState(item, v)
	return nil
}

func (r *NFTRegistry) onWalletsEvent(e WalletsEvent) {
	if e.Kind != WalletsRemoved {
		return
	}
	known := make(map[models.WalletIdentity]bool, len(e.Wallets))
	for _, w := range e.Wallets {
		known[w.Identity()] = true
	}

	r.mu.Lock()
	var gone []models.WalletIdentity
	for id, entry := range r.entries {
		if !known[id] {
			entry.visible.Close()
			delete(r.entries, id)
			gone = append(gone, id)
		}
	}
	r.mu.Unlock()

	for _, id := range gone {
		r.nfts.RemoveWallet(id)
		r.log.WithField("wallet", id.String()).Debug("dropped NFT views of removed wallet")
	}
}

// Close detaches every view and stops following the wallet list.
func (r *NFTRegistry) Close() {
	r.wallets.RemoveObserver(r.walletsToken)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.visible.Close()
		delete(r.entries, id)
	}
}

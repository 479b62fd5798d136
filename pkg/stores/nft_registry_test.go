package stores

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletsync/pkg/models"
	"walletsync/pkg/repository"
)

func TestNFTRegistry(t *testing.T) {
	q := newQueue(t)
	wallets := NewWalletsStore(repository.NewMemory[WalletsState](), q)
	a, b := mustWallet(t, addrA), mustWallet(t, addrB)
	require.NoError(t, wallets.AddWallets(a, b))

	prefs := repository.NewMemory[models.NFTManagementState]()
	r := NewNFTRegistry(wallets, prefs, q)
	t.Cleanup(r.Close)

	punk := models.NFT{Address: "0x01", Collection: models.NFTCollection{Address: "0xc1"}, Trust: models.TrustWhitelist}
	spam := models.NFT{Address: "0x02", Trust: models.TrustBlacklist}
	require.NoError(t, r.SetNFTs(a.Identity(), []models.NFT{punk, spam}))
	q.Sync()

	visible, err := r.Visible(a.Identity())
	require.NoError(t, err)
	assert.Equal(t, []models.NFT{punk}, visible)

	require.NoError(t, r.SetVisibility(a.Identity(), models.SingleItem("0x02"), models.VisibilityVisible))
	require.NoError(t, r.SetVisibility(a.Identity(), models.CollectionItem("0xc1"), models.VisibilityHidden))
	q.Sync()
	visible, _ = r.Visible(a.Identity())
	assert.Equal(t, []models.NFT{spam}, visible)

	saved, err := prefs.Load("nft-management-" + a.Identity().String())
	require.NoError(t, err)
	assert.Len(t, saved.States, 2)

	require.NoError(t, r.SetVisibility(a.Identity(), models.CollectionItem("0xc1"), ""))
	q.Sync()
	visible, _ = r.Visible(a.Identity())
	assert.Equal(t, []models.NFT{punk, spam}, visible)

	// Other wallets are unaffected.
	visible, err = r.Visible(b.Identity())
	require.NoError(t, err)
	assert.Empty(t, visible)

	unknown := mustWallet(t, addrC).Identity()
	assert.ErrorIs(t, r.SetNFTs(unknown, nil), ErrWalletNotFound)
	_, err = r.Visible(unknown)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestNFTRegistryForgetsRemovedWallet(t *testing.T) {
	q := newQueue(t)
	wallets := NewWalletsStore(repository.NewMemory[WalletsState](), q)
	a, b := mustWallet(t, addrA), mustWallet(t, addrB)
	require.NoError(t, wallets.AddWallets(a, b))

	r := NewNFTRegistry(wallets, repository.NewMemory[models.NFTManagementState](), q)
	t.Cleanup(r.Close)

	require.NoError(t, r.SetNFTs(a.Identity(), []models.NFT{{Address: "0x01"}}))
	require.NoError(t, r.SetNFTs(b.Identity(), []models.NFT{{Address: "0x02"}}))
	q.Sync()

	require.NoError(t, wallets.RemoveWallet(a.Identity()))
	q.Sync()

	r.mu.Lock()
	_, kept := r.entries[b.Identity()]
	_, dropped := r.entries[a.Identity()]
	r.mu.Unlock()
	assert.True(t, kept)
	assert.False(t, dropped)
	assert.Nil(t, r.NFTs().NFTs(a.Identity()))
	assert.Len(t, r.NFTs().NFTs(b.Identity()), 1)
	// The visible view of the removed wallet no longer observes the list.
	assert.Equal(t, 1, r.NFTs().ObserverCount())
}

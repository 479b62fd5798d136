package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWallet(t *testing.T) {
	w, err := NewWallet(" 0xab5801a7d398351b8be11c439e05c5b3259aec9b ", WalletKindRegular, NetworkMainnet, " Main ")
	require.NoError(t, err)
	assert.Equal(t, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", w.Address)
	assert.Equal(t, "Main", w.Label)
	assert.Equal(t, "Main", w.DisplayName())

	_, err = NewWallet("not-an-address", WalletKindRegular, NetworkMainnet, "")
	assert.True(t, errors.Is(err, ErrInvalidAddress))

	_, err = NewWallet("0xab5801a7d398351b8be11c439e05c5b3259aec9b", WalletKind("multisig"), NetworkMainnet, "")
	assert.True(t, errors.Is(err, ErrInvalidKind))

	w, err = NewWallet("0xab5801a7d398351b8be11c439e05c5b3259aec9b", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, WalletKindRegular, w.Kind)
	assert.Equal(t, NetworkMainnet, w.Network)
	assert.Equal(t, w.Address, w.DisplayName())
}

func TestWalletIdentityDistinguishesKind(t *testing.T) {
	a, _ := NewWallet("0xab5801a7d398351b8be11c439e05c5b3259aec9b", WalletKindRegular, NetworkMainnet, "")
	b, _ := NewWallet("0xab5801a7d398351b8be11c439e05c5b3259aec9b", WalletKindWatchOnly, NetworkMainnet, "")
	assert.NotEqual(t, a.Identity(), b.Identity())
	assert.True(t, WalletIdentity{}.IsZero())
	assert.False(t, a.Identity().IsZero())
}

func TestParseWalletKind(t *testing.T) {
	tests := []struct {
		input    string
		expected WalletKind
		wantErr  bool
	}{
		{"regular", WalletKindRegular, false},
		{"", WalletKindRegular, false},
		{"External", WalletKindExternal, false},
		{"watch-only", WalletKindWatchOnly, false},
		{"watchOnly", WalletKindWatchOnly, false},
		{"lockup", WalletKindLockup, false},
		{"ledger", "", true},
	}
	for _, tt := range tests {
		got, err := ParseWalletKind(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got, tt.input)
	}
}

func TestConnectionStateJSON(t *testing.T) {
	var zero ConnectionState
	assert.Equal(t, ConnectionConnecting, zero)

	data, err := json.Marshal(map[string]ConnectionState{"w": ConnectionNoConnection})
	require.NoError(t, err)
	assert.JSONEq(t, `{"w":"noConnection"}`, string(data))

	var decoded map[string]ConnectionState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ConnectionNoConnection, decoded["w"])

	assert.Equal(t, ConnectionConnecting, ParseConnectionState("bogus"))
}

func TestNFTManagementStateLookup(t *testing.T) {
	nft := NFT{Address: "item-1", Collection: NFTCollection{Address: "coll-1"}}

	state := NFTManagementState{}
	_, ok := state.Lookup(nft)
	assert.False(t, ok)

	state = state.With(CollectionItem("coll-1"), VisibilityHidden)
	v, ok := state.Lookup(nft)
	assert.True(t, ok)
	assert.Equal(t, VisibilityHidden, v)

	withItem := state.With(SingleItem("item-1"), VisibilityVisible)
	v, _ = withItem.Lookup(nft)
	assert.Equal(t, VisibilityVisible, v)

	// With never mutates the receiver.
	v, _ = state.Lookup(nft)
	assert.Equal(t, VisibilityHidden, v)

	cleared := withItem.Without(SingleItem("item-1"))
	v, _ = cleared.Lookup(nft)
	assert.Equal(t, VisibilityHidden, v)
}

func TestNFTManagementStateJSON(t *testing.T) {
	state := NFTManagementState{}.
		With(SingleItem("a"), VisibilityHidden).
		With(CollectionItem("c"), VisibilityVisible)

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded NFTManagementState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, state.States, decoded.States)
}

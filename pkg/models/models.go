package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrInvalidKind    = errors.New("invalid wallet kind")
	ErrInvalidNetwork = errors.New("invalid network")
)

// WalletKind is the revision of a wallet.
type WalletKind string

const (
	WalletKindRegular   WalletKind = "regular"
	WalletKindExternal  WalletKind = "external"
	WalletKindWatchOnly WalletKind = "watchOnly"
	WalletKindLockup    WalletKind = "lockup"
)

func ParseWalletKind(s string) (WalletKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "regular":
		return WalletKindRegular, nil
	case "external":
		return WalletKindExternal, nil
	case "watchonly", "watch-only", "watch_only":
		return WalletKindWatchOnly, nil
	case "lockup":
		return WalletKindLockup, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Network is the chain flavor a wallet lives on.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mainnet":
		return NetworkMainnet, nil
	case "testnet":
		return NetworkTestnet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, s)
}

// WalletIdentity identifies a wallet. The zero value means "no wallet".
type WalletIdentity struct {
	Network Network    `json:"network"`
	Kind    WalletKind `json:"kind"`
	Address string     `json:"address"`
}

func (id WalletIdentity) IsZero() bool {
	return id == WalletIdentity{}
}

func (id WalletIdentity) String() string {
	return fmt.Sprintf("%s:%s:%s", id.Network, id.Kind, id.Address)
}

// Wallet holds the identity and display metadata of a wallet.
type Wallet struct {
	WalletIdentity
	Label string `json:"label,omitempty"`
}

// NewWallet validates the address and returns a wallet with its address in
// checksum form.
func NewWallet(address string, kind WalletKind, network Network, label string) (Wallet, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return Wallet{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	k, err := ParseWalletKind(string(kind))
	if err != nil {
		return Wallet{}, err
	}
	n, err := ParseNetwork(string(network))
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{
		WalletIdentity: WalletIdentity{
			Network: n,
			Kind:    k,
			Address: common.HexToAddress(address).Hex(),
		},
		Label: strings.TrimSpace(label),
	}, nil
}

// Identity returns the wallet's identity key.
func (w Wallet) Identity() WalletIdentity {
	return w.WalletIdentity
}

// DisplayName returns the label, or the address when no label is set.
func (w Wallet) DisplayName() string {
	if w.Label != "" {
		return w.Label
	}
	return w.Address
}

// TrustLevel classifies an NFT.
type TrustLevel string

const (
	TrustWhitelist TrustLevel = "whitelist"
	TrustGraylist  TrustLevel = "graylist"
	TrustBlacklist TrustLevel = "blacklist"
	TrustUnknown   TrustLevel = "unknown"
)

type NFTCollection struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type NFT struct {
	Address    string        `json:"address"`
	Name       string        `json:"name,omitempty"`
	Collection NFTCollection `json:"collection"`
	Trust      TrustLevel    `json:"trust"`
}

// NFTManagementItemKind tells whether a visibility entry targets a single
// item or a whole collection.
type NFTManagementItemKind string

const (
	NFTItemSingle     NFTManagementItemKind = "single"
	NFTItemCollection NFTManagementItemKind = "collection"
)

type NFTManagementItem struct {
	Kind    NFTManagementItemKind `json:"kind"`
	Address string                `json:"address"`
}

func SingleItem(address string) NFTManagementItem {
	return NFTManagementItem{Kind: NFTItemSingle, Address: address}
}

func CollectionItem(address string) NFTManagementItem {
	return NFTManagementItem{Kind: NFTItemCollection, Address: address}
}

type VisibilityState string

const (
	VisibilityVisible VisibilityState = "visible"
	VisibilityHidden  VisibilityState = "hidden"
)

// NFTManagementState holds the explicit visibility choices of one wallet.
// Treat it as immutable; use With/Without to derive a new state.
type NFTManagementState struct {
	States map[NFTManagementItem]VisibilityState
}

// Lookup returns the explicit state for an NFT, checking the item itself
// before its collection.
func (s NFTManagementState) Lookup(nft NFT) (VisibilityState, bool) {
	if v, ok := s.States[SingleItem(nft.Address)]; ok {
		return v, true
	}
	if nft.Collection.Address != "" {
		if v, ok := s.States[CollectionItem(nft.Collection.Address)]; ok {
			return v, true
		}
	}
	return "", false
}

func (s NFTManagementState) With(item NFTManagementItem, v VisibilityState) NFTManagementState {
	next := make(map[NFTManagementItem]VisibilityState, len(s.States)+1)
	for k, val := range s.States {
		next[k] = val
	}
	next[item] = v
	return NFTManagementState{States: next}
}

func (s NFTManagementState) Without(item NFTManagementItem) NFTManagementState {
	next := make(map[NFTManagementItem]VisibilityState, len(s.States))
	for k, val := range s.States {
		if k != item {
			next[k] = val
		}
	}
	return NFTManagementState{States: next}
}

type nftStateEntry struct {
	Item  NFTManagementItem `json:"item"`
	State VisibilityState   `json:"state"`
}

func (s NFTManagementState) MarshalJSON() ([]byte, error) {
	entries := make([]nftStateEntry, 0, len(s.States))
	for item, v := range s.States {
		entries = append(entries, nftStateEntry{Item: item, State: v})
	}
	return json.Marshal(struct {
		States []nftStateEntry `json:"states"`
	}{entries})
}

func (s *NFTManagementState) UnmarshalJSON(data []byte) error {
	var raw struct {
		States []nftStateEntry `json:"states"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.States = make(map[NFTManagementItem]VisibilityState, len(raw.States))
	for _, e := range raw.States {
		s.States[e.Item] = e.State
	}
	return nil
}

// ConnectionState is the state of a wallet's streaming connection. The zero
// value is ConnectionConnecting.
type ConnectionState int32

const (
	ConnectionConnecting ConnectionState = iota
	ConnectionConnected
	ConnectionDisconnected
	ConnectionNoConnection
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionNoConnection:
		return "noConnection"
	default:
		return fmt.Sprintf("connection(%d)", s)
	}
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ConnectionState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseConnectionState(str)
	return nil
}

// ParseConnectionState maps unknown strings to ConnectionConnecting.
func ParseConnectionState(s string) ConnectionState {
	switch s {
	case "connected":
		return ConnectionConnected
	case "disconnected":
		return ConnectionDisconnected
	case "noConnection", "no_connection":
		return ConnectionNoConnection
	default:
		return ConnectionConnecting
	}
}

// TransactionUpdate is the payload of a server "message" event.
type TransactionUpdate struct {
	Address string `json:"account_id"`
	Lt      uint64 `json:"lt"`
	TxHash  string `json:"tx_hash"`
}

// TransactionEvent is a TransactionUpdate attributed to a wallet.
type TransactionEvent struct {
	Wallet WalletIdentity    `json:"wallet"`
	Update TransactionUpdate `json:"update"`
}

// Balance is the last known native balance of a wallet.
type Balance struct {
	Wallet    WalletIdentity `json:"wallet"`
	Amount    *big.Float     `json:"amount"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ConfigReport holds the results of the configuration test.
type ConfigReport struct {
	ConfigPath      string      `json:"config_path"`
	ValidStructure  bool        `json:"valid_structure"`
	StructureErrors []string    `json:"structure_errors,omitempty"`
	WalletCount     int         `json:"wallet_count"`
	ActiveWallet    string      `json:"active_wallet,omitempty"`
	RPCs            []RPCResult `json:"rpcs,omitempty"`
	Streaming       *RPCResult  `json:"streaming,omitempty"`
}

// RPCResult holds test results for a specific endpoint.
type RPCResult struct {
	URL       string `json:"url"`
	Status    string `json:"status"` // "ok" or "error"
	ChainID   int64  `json:"chain_id,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

package watcher

import "walletsync/pkg/models"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventWalletsUpdated EventType = "wallets"
	EventStateChanged   EventType = "state"
	EventTransaction    EventType = "transaction"
	EventBalanceUpdated EventType = "balance"
)

// Event represents a monitoring event.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Status is a point-in-time view of every wallet. Maps are keyed by
// WalletIdentity.String().
type Status struct {
	Wallets      []models.Wallet                   `json:"wallets"`
	Active       models.WalletIdentity             `json:"active"`
	States       map[string]models.ConnectionState `json:"states"`
	Balances     map[string]models.Balance         `json:"balances"`
	Transactions []models.TransactionEvent         `json:"transactions"`
}

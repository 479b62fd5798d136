package backgroundupdate

import (
	"context"

	"walletsync/pkg/models"
)

// Event is one server-sent event.
type Event struct {
	ID   string
	Type string
	Data []byte
}

// Stream is an open event sequence. Next blocks for the next batch and
// returns io.EOF once the server closed the stream cleanly.
type Stream interface {
	Next(ctx context.Context) ([]Event, error)
	Close() error
}

// Transport opens a wallet's event stream.
type Transport interface {
	Open(ctx context.Context, wallet models.Wallet) (Stream, error)
}

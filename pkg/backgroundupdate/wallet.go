package backgroundupdate

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/metrics"
	"walletsync/pkg/models"
)

// DefaultReconnectDelay is the flat delay before reconnecting after a stream
// error.
const DefaultReconnectDelay = 3 * time.Second

type Options struct {
	ReconnectDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	return o
}

type (
	StateFunc func(models.WalletIdentity, models.ConnectionState)
	EventFunc func(models.WalletIdentity, models.TransactionUpdate)
)

// WalletBackgroundUpdate keeps one wallet's event stream open and reports
// its connection state. At most one run loop is live at a time.
type WalletBackgroundUpdate struct {
	wallet    models.Wallet
	transport Transport
	opts      Options
	onState   StateFunc
	onEvent   EventFunc
	log       *logrus.Entry

	lifecycle sync.Mutex // serializes Start and Stop

	mu     sync.Mutex // guards the fields below and every emission
	state  models.ConnectionState
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWalletBackgroundUpdate(wallet models.Wallet, transport Transport, opts Options, onState StateFunc, onEvent EventFunc) *WalletBackgroundUpdate {
	if onState == nil {
		onState = func(models.WalletIdentity, models.ConnectionState) {}
	}
	if onEvent == nil {
		onEvent = func(models.WalletIdentity, models.TransactionUpdate) {}
	}
	return &WalletBackgroundUpdate{
		wallet:    wallet,
		transport: transport,
		opts:      opts.withDefaults(),
		onState:   onState,
		onEvent:   onEvent,
		log:       logger.For("background-update").WithField("wallet", wallet.Address),
	}
}

func (u *WalletBackgroundUpdate) Wallet() models.Wallet {
	return u.wallet
}

// Start cancels any running loop, waits for it to exit and starts a new one.
func (u *WalletBackgroundUpdate) Start() {
	u.lifecycle.Lock()
	defer u.lifecycle.Unlock()

	u.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	u.mu.Lock()
	u.cancel = cancel
	u.done = done
	u.mu.Unlock()

	go u.run(ctx, done)
}

// Stop cancels the loop and waits for it to exit. No state or event is
// reported after Stop returns.
func (u *WalletBackgroundUpdate) Stop() {
	u.lifecycle.Lock()
	defer u.lifecycle.Unlock()
	u.stop()
}

func (u *WalletBackgroundUpdate) stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel = nil
	if cancel != nil {
		cancel()
	}
	u.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether a run loop is live. The loop ends on Stop and
// after entering noConnection.
func (u *WalletBackgroundUpdate) Running() bool {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (u *WalletBackgroundUpdate) State() models.ConnectionState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *WalletBackgroundUpdate) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if !u.setState(ctx, models.ConnectionConnecting) {
			return
		}

		err := u.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			if !u.setState(ctx, models.ConnectionDisconnected) {
				return
			}
			u.log.Debug("stream closed by server, reconnecting")
			metrics.RecordReconnect("closed")
			continue
		}

		switch Classify(err) {
		case KindCancelled:
			return
		case KindNoConnection:
			u.log.WithError(err).Info("no network connection, not retrying")
			u.setState(ctx, models.ConnectionNoConnection)
			return
		}

		if !u.setState(ctx, models.ConnectionDisconnected) {
			return
		}
		u.log.WithError(err).WithField("retry_in", u.opts.ReconnectDelay).Warn("stream failed")
		metrics.RecordReconnect("error")

		timer := time.NewTimer(u.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume opens the stream and forwards updates until it ends. A clean
// server close returns nil.
func (u *WalletBackgroundUpdate) consume(ctx context.Context) error {
	stream, err := u.transport.Open(ctx, u.wallet)
	if err != nil {
		return err
	}
	defer stream.Close()

	if !u.setState(ctx, models.ConnectionConnected) {
		return ctx.Err()
	}

	var order eventOrder
	for {
		batch, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		msg, ok := lastMessage(batch)
		if !ok {
			continue
		}
		if !order.accept(msg.ID) {
			u.log.WithField("event_id", msg.ID).Debug("dropping duplicate event")
			metrics.RecordDroppedEvent("duplicate")
			continue
		}
		update, ok := decodeUpdate(msg.Data)
		if !ok {
			u.log.WithField("event_id", msg.ID).Debug("dropping malformed event")
			metrics.RecordDroppedEvent("malformed")
			continue
		}
		if !u.emitEvent(ctx, update) {
			return ctx.Err()
		}
	}
}

func (u *WalletBackgroundUpdate) setState(ctx context.Context, s models.ConnectionState) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	u.state = s
	u.onState(u.wallet.Identity(), s)
	return true
}

func (u *WalletBackgroundUpdate) emitEvent(ctx context.Context, update models.TransactionUpdate) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	u.onEvent(u.wallet.Identity(), update)
	return true
}

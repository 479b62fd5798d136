// Package streaming is the websocket transport for wallet transaction
// events.
package streaming

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"walletsync/pkg/backgroundupdate"
	"walletsync/pkg/logger"
	"walletsync/pkg/metrics"
	"walletsync/pkg/models"
)

type Options struct {
	HandshakeTimeout time.Duration
	// ReadTimeout is how long a stream may stay silent, pongs included.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PingInterval defaults to nine tenths of ReadTimeout.
	PingInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = o.ReadTimeout * 9 / 10
	}
	return o
}

// Client opens one websocket per wallet at URL.
type Client struct {
	URL  string
	opts Options
	log  *logrus.Entry
}

func NewClient(rawURL string, opts Options) *Client {
	return &Client{
		URL:  rawURL,
		opts: opts.withDefaults(),
		log:  logger.For("streaming"),
	}
}

func (c *Client) streamURL(wallet models.Wallet) (string, error) {
	if strings.TrimSpace(c.URL) == "" {
		return "", fmt.Errorf("streaming URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid streaming URL: %w", err)
	}
	q := u.Query()
	q.Set("accounts", wallet.Address)
	q.Set("network", string(wallet.Network))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials the wallet's stream. Dial errors keep their net error chain.
func (c *Client) Open(ctx context.Context, wallet models.Wallet) (backgroundupdate.Stream, error) {
	target, err := c.streamURL(wallet)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}
	c.log.WithField("wallet", wallet.Address).Debug("stream opened")

	s := &Stream{
		conn: conn,
		opts: c.opts,
		log:  c.log.WithField("wallet", wallet.Address),
		done: make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})
	go s.keepalive()
	return s, nil
}

// Stream is an open websocket event stream. Next must not be called
// concurrently.
type Stream struct {
	conn *websocket.Conn
	opts Options
	log  *logrus.Entry
	done chan struct{}

	closeOnce sync.Once
}

// keepalive pings the server until the stream is closed. Pongs are handled
// by the reader in Next and push the read deadline forward.
func (s *Stream) keepalive() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout))
			if err != nil {
				s.log.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}

// Next reads one frame and returns its events. A frame is a single event
// object or an array of them.
func (s *Stream) Next(ctx context.Context) ([]backgroundupdate.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})
	defer stop()

	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return s.parseFrame(msg), nil
}

func (s *Stream) parseFrame(msg []byte) []backgroundupdate.Event {
	if !gjson.ValidBytes(msg) {
		s.log.Debug("dropping malformed frame")
		metrics.RecordDroppedEvent("malformed_frame")
		return nil
	}
	root := gjson.ParseBytes(msg)
	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.IsObject():
		items = []gjson.Result{root}
	default:
		return nil
	}

	events := make([]backgroundupdate.Event, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		ev := backgroundupdate.Event{
			ID:   item.Get("id").String(),
			Type: item.Get("event").String(),
		}
		if data := item.Get("data"); data.Exists() {
			ev.Data = []byte(data.Raw)
		}
		events = append(events, ev)
	}
	return events
}

// Close sends a close frame and closes the connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.opts.WriteTimeout))
		err = s.conn.Close()
	})
	return err
}

package streaming

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletsync/pkg/backgroundupdate"
	"walletsync/pkg/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func testWallet(t *testing.T) models.Wallet {
	t.Helper()
	w, err := models.NewWallet("0xab5801a7d398351b8be11c439e05c5b3259aec9b", models.WalletKindRegular, models.NetworkTestnet, "")
	require.NoError(t, err)
	return w
}

// newStreamServer serves one websocket per request, running script on it.
func newStreamServer(t *testing.T, script func(r *http.Request, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(r, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
}

func TestStreamReadsBatchesAndCleanClose(t *testing.T) {
	query := make(chan string, 1)
	url := newStreamServer(t, func(r *http.Request, conn *websocket.Conn) {
		query <- r.URL.RawQuery
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"1","event":"message","data":{"account_id":"0:a","lt":1}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":2,"event":"heartbeat"},{"id":"3","event":"message","data":"{\"lt\":3}"}]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "rotate"))
		time.Sleep(50 * time.Millisecond)
	})

	client := NewClient(url, Options{})
	stream, err := client.Open(context.Background(), testWallet(t))
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "accounts=0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B&network=testnet", <-query)

	batch, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, backgroundupdate.Event{ID: "1", Type: "message", Data: []byte(`{"account_id":"0:a","lt":1}`)}, batch[0])

	batch, err = stream.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].ID)
	assert.Equal(t, "heartbeat", batch[0].Type)
	assert.Nil(t, batch[0].Data)
	assert.Equal(t, `"{\"lt\":3}"`, string(batch[1].Data))

	batch, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamNextHonorsCancellation(t *testing.T) {
	url := newStreamServer(t, func(_ *http.Request, conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	stream, err := NewClient(url, Options{}).Open(context.Background(), testWallet(t))
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, backgroundupdate.KindCancelled, backgroundupdate.Classify(err))
}

func TestQuietStreamStaysOpenWhilePongsArrive(t *testing.T) {
	// The server never sends data; reading lets it answer pings.
	url := newStreamServer(t, func(_ *http.Request, conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	opts := Options{ReadTimeout: 200 * time.Millisecond, PingInterval: 50 * time.Millisecond}
	stream, err := NewClient(url, opts).Open(context.Background(), testWallet(t))
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSilentServerTimesOut(t *testing.T) {
	quit := make(chan struct{})
	url := newStreamServer(t, func(_ *http.Request, conn *websocket.Conn) {
		<-quit
	})
	t.Cleanup(func() { close(quit) })

	opts := Options{ReadTimeout: 100 * time.Millisecond, PingInterval: 20 * time.Millisecond}
	stream, err := NewClient(url, opts).Open(context.Background(), testWallet(t))
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = stream.Next(ctx)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestOptionsDefaultPingInterval(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want time.Duration
	}{
		{"defaults", Options{}, 54 * time.Second},
		{"derived from read timeout", Options{ReadTimeout: 10 * time.Second}, 9 * time.Second},
		{"explicit", Options{PingInterval: time.Second}, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.withDefaults().PingInterval; got != tt.want {
				t.Errorf("PingInterval = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestOpenFailures(t *testing.T) {
	_, err := NewClient("", Options{}).Open(context.Background(), testWallet(t))
	assert.Error(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, err = NewClient(url, Options{}).Open(context.Background(), testWallet(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, backgroundupdate.KindOther, backgroundupdate.Classify(err))

	// Nothing listens once the server is closed.
	srv.Close()
	_, err = NewClient(url, Options{HandshakeTimeout: time.Second}).Open(context.Background(), testWallet(t))
	require.Error(t, err)
	assert.Equal(t, backgroundupdate.KindOther, backgroundupdate.Classify(err))
}

func TestOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient("ws://127.0.0.1:1/events", Options{}).Open(ctx, testWallet(t))
	require.Error(t, err)
	assert.Equal(t, backgroundupdate.KindCancelled, backgroundupdate.Classify(err))
}

package backgroundupdate

import (
	"context"
	"sync"
	"time"

	"walletsync/pkg/models"
)

// fakeStream hands out scripted batches and blocks once they run out.
type fakeStream struct {
	batches chan []Event
	errs    chan error
	onClose func()
	once    sync.Once
}

func newFakeStream(onClose func()) *fakeStream {
	return &fakeStream{
		batches: make(chan []Event, 16),
		errs:    make(chan error, 1),
		onClose: onClose,
	}
}

func (s *fakeStream) Next(ctx context.Context) ([]Event, error) {
	select {
	case b := <-s.batches:
		return b, nil
	case err := <-s.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

type openResult struct {
	stream *fakeStream
	err    error
}

// fakeTransport returns scripted results per Open call, then blocking
// streams. It tracks how many streams are open per wallet.
type fakeTransport struct {
	mu      sync.Mutex
	script  []func() openResult
	opens   map[string]int
	live    map[string]int
	maxLive map[string]int
	total   int
	maxAll  int
	streams []*fakeStream
}

func newFakeTransport(script ...func() openResult) *fakeTransport {
	return &fakeTransport{
		script:  script,
		opens:   make(map[string]int),
		live:    make(map[string]int),
		maxLive: make(map[string]int),
	}
}

func (t *fakeTransport) Open(ctx context.Context, wallet models.Wallet) (Stream, error) {
	t.mu.Lock()
	addr := wallet.Address
	t.opens[addr]++
	var res openResult
	if len(t.script) > 0 {
		res = t.script[0]()
		t.script = t.script[1:]
	}
	if res.err != nil {
		t.mu.Unlock()
		return nil, res.err
	}
	onClose := func() {
		t.mu.Lock()
		t.live[addr]--
		t.total--
		t.mu.Unlock()
	}
	if res.stream == nil {
		res.stream = newFakeStream(onClose)
	} else {
		res.stream.onClose = onClose
	}
	t.live[addr]++
	t.total++
	t.maxLive[addr] = max(t.maxLive[addr], t.live[addr])
	t.maxAll = max(t.maxAll, t.total)
	t.streams = append(t.streams, res.stream)
	t.mu.Unlock()
	return res.stream, nil
}

func (t *fakeTransport) openCount(addr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens[addr]
}

func (t *fakeTransport) lastStream() *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}

func fail(err error) func() openResult {
	return func() openResult { return openResult{err: err} }
}

func succeed(s *fakeStream) func() openResult {
	return func() openResult { return openResult{stream: s} }
}

type stateRecord struct {
	state models.ConnectionState
	at    time.Time
}

type recorder struct {
	mu      sync.Mutex
	states  []stateRecord
	updates []models.TransactionUpdate
}

func (r *recorder) onState(_ models.WalletIdentity, s models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, stateRecord{state: s, at: time.Now()})
}

func (r *recorder) onEvent(_ models.WalletIdentity, u models.TransactionUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) stateList() []models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ConnectionState, len(r.states))
	for i, s := range r.states {
		out[i] = s.state
	}
	return out
}

func (r *recorder) records() []stateRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stateRecord(nil), r.states...)
}

func (r *recorder) updateList() []models.TransactionUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TransactionUpdate(nil), r.updates...)
}

func (r *recorder) last() models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return models.ConnectionConnecting
	}
	return r.states[len(r.states)-1].state
}

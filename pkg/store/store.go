// Package store implements the observable state container the rest of the
// application is built on.
//
// A Store holds one immutable state value. Updates are serialized per store:
// a transform receives the current snapshot and returns the next state, the
// event describing the change and an optional side effect. The side effect
// runs after the commit and before observers hear about it, so an observer
// reading persisted data from its callback sees the committed state.
//
// Observers are notified on the store's Executor, in commit order. Callbacks
// may register or remove observers and call Update on any store; nested
// updates are committed at once and their notifications are queued behind
// the one being delivered.
package store

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
)

// Token identifies an observer registration.
type Token string

// Transition is the result of a transform. A nil *Transition means "no
// change": nothing is committed and nobody is notified.
type Transition[E, S any] struct {
	State  S
	Event  E
	Effect func() error
}

type observer[E any] struct {
	token   Token
	notify  func(E) bool // false once the subscriber is gone
	removed atomic.Bool
}

// Store is a thread-safe container of one State value broadcasting Events.
type Store[E, S any] struct {
	exec Executor
	log  *logrus.Entry
	sem  chan struct{}

	mu        sync.RWMutex
	state     S
	observers []*observer[E] // copy-on-write, registration order
}

// New creates a store holding initial whose notifications run on exec.
func New[E, S any](initial S, exec Executor) *Store[E, S] {
	if exec == nil {
		panic("store: nil executor")
	}
	return &Store[E, S]{
		exec:  exec,
		log:   logger.For("store"),
		sem:   make(chan struct{}, 1),
		state: initial,
	}
}

// State returns the last committed state.
func (s *Store[E, S]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update applies transform under the store's update lock and reports
// whether a new state was committed. transform must not call back into
// the same store.
//
// An Update made from an observer is committed before it returns and only
// its notification is queued. Observers later in the same dispatch already
// see the new state through State, while their event still carries the
// state of the earlier commit.
func (s *Store[E, S]) Update(transform func(S) *Transition[E, S]) bool {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	return s.apply(transform)
}

// UpdateContext is Update that gives up waiting for the update lock when ctx
// is done.
func (s *Store[E, S]) UpdateContext(ctx context.Context, transform func(S) *Transition[E, S]) (bool, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-s.sem }()
	return s.apply(transform), nil
}

// SendEvent notifies observers without a state transition. It is ordered
// with respect to updates.
func (s *Store[E, S]) SendEvent(event E) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	s.publish(event)
}

func (s *Store[E, S]) apply(transform func(S) *Transition[E, S]) bool {
	t := transform(s.State())
	if t == nil {
		return false
	}

	s.mu.Lock()
	s.state = t.State
	s.mu.Unlock()

	if t.Effect != nil {
		if err := t.Effect(); err != nil {
			s.log.WithError(err).Warn("side effect failed after commit")
		}
	}
	s.publish(t.Event)
	return true
}

func (s *Store[E, S]) publish(event E) {
	s.mu.RLock()
	targets := s.observers
	s.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	s.exec.Execute(func() {
		for _, o := range targets {
			if o.removed.Load() {
				continue
			}
			if !o.notify(event) {
				s.RemoveObserver(o.token)
			}
		}
	})
}

// Observe registers a callback held strongly by the store until removed.
func (s *Store[E, S]) Observe(fn func(E)) Token {
	return s.add(func(e E) bool {
		fn(e)
		return true
	})
}

// AddObserver registers fn bound to subscriber's lifetime. The store keeps
// only a weak reference: once subscriber is garbage collected the
// registration goes inert and is dropped. fn must not capture subscriber;
// it receives it as its first argument.
func AddObserver[T, E, S any](s *Store[E, S], subscriber *T, fn func(*T, E)) Token {
	ref := weak.Make(subscriber)
	token := s.add(func(e E) bool {
		sub := ref.Value()
		if sub == nil {
			return false
		}
		fn(sub, e)
		return true
	})
	runtime.AddCleanup(subscriber, func(t Token) { s.RemoveObserver(t) }, token)
	return token
}

func (s *Store[E, S]) add(notify func(E) bool) Token {
	o := &observer[E]{token: Token(uuid.NewString()), notify: notify}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*observer[E], len(s.observers), len(s.observers)+1)
	copy(next, s.observers)
	s.observers = append(next, o)
	return o.token
}

// RemoveObserver unregisters token. Deliveries already queued for it are
// skipped. Unknown tokens are ignored.
func (s *Store[E, S]) RemoveObserver(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o.token != token {
			continue
		}
		o.removed.Store(true)
		next := make([]*observer[E], 0, len(s.observers)-1)
		next = append(next, s.observers[:i]...)
		s.observers = append(next, s.observers[i+1:]...)
		return
	}
}

// ObserverCount returns the number of live registrations.
func (s *Store[E, S]) ObserverCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

package store

import (
	"sync"

	"walletsync/pkg/logger"
)

// Executor runs notification work.
type Executor interface {
	Execute(fn func())
}

// Queue is a single-consumer executor: tasks run one at a time, in
// submission order, on one goroutine. Execute never blocks.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewQueue creates a queue and starts its consumer goroutine.
func NewQueue() *Queue {
	q := &Queue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Execute enqueues fn. Tasks submitted after Close are dropped.
func (q *Queue) Execute(fn func()) {
	q.enqueue(fn)
}

func (q *Queue) enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return true
}

// Sync blocks until every task submitted before the call has run. It must
// not be called from a task running on the queue.
func (q *Queue) Sync() {
	ch := make(chan struct{})
	if !q.enqueue(func() { close(ch) }) {
		return
	}
	<-ch
}

// Close stops accepting tasks, drains the pending ones and waits for the
// consumer to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(fn)
	}
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.For("queue").WithField("panic", r).Error("notification task panicked")
		}
	}()
	fn()
}

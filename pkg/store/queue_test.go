package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		q.Execute(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Sync()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueueCloseDrainsPending(t *testing.T) {
	q := NewQueue()
	ran := 0
	for i := 0; i < 10; i++ {
		q.Execute(func() { ran++ })
	}
	q.Close()
	assert.Equal(t, 10, ran)

	// Dropped after close; Sync must not hang.
	q.Execute(func() { ran++ })
	q.Sync()
	assert.Equal(t, 10, ran)
}

func TestQueueSurvivesPanic(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	q.Execute(func() { panic("boom") })
	done := false
	q.Execute(func() { done = true })
	q.Sync()
	assert.True(t, done)
}

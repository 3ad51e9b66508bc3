package pdu

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	t.Parallel()
	q := NewQueue("test")
	defer q.Stop()

	var (
		mu      sync.Mutex
		order   []string
		running int32
		overlap bool
	)
	task := func(name string) func() error {
		return func() error {
			if atomic.AddInt32(&running, 1) > 1 {
				overlap = true
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			atomic.AddInt32(&running, -1)
			return nil
		}
	}
	q.Enqueue("T", task("T1"))
	q.Enqueue("T", task("T2"))
	q.Enqueue("T", task("T3"))
	drain(t, q)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"T1", "T2", "T3"}, order)
	assert.False(t, overlap)
}

func TestQueueTaskNames(t *testing.T) {
	t.Parallel()
	q := NewQueue("test")
	defer q.Stop()
	assert.Equal(t, "handle outlet 1-ID-0", q.Enqueue("handle outlet 1", func() error { return nil }))
	assert.Equal(t, "handle outlet 1-ID-1", q.Enqueue("handle outlet 1", func() error { return nil }))
	assert.Equal(t, "handle outlet 2-ID-2", q.Enqueue("handle outlet 2", func() error { return nil }))
}

func TestQueueSurvivesFailingTasks(t *testing.T) {
	t.Parallel()
	q := NewQueue("test")
	defer q.Stop()

	ran := false
	q.Enqueue("fails", func() error { return errors.New("boom") })
	q.Enqueue("panics", func() error { panic("boom") })
	q.Enqueue("runs", func() error {
		ran = true
		return nil
	})
	drain(t, q)
	assert.True(t, ran)
}

func TestQueueStop(t *testing.T) {
	t.Parallel()
	q := NewQueue("test")

	release := make(chan struct{})
	started := make(chan struct{})
	q.Enqueue("blocks", func() error {
		close(started)
		<-release
		return nil
	})
	<-started
	var late atomic.Bool
	q.Enqueue("pending", func() error {
		late.Store(true)
		return nil
	})
	assert.Equal(t, 1, q.Len())

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	assert.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	close(release)
	<-stopped
	q.Stop()

	q.Enqueue("after", func() error {
		late.Store(true)
		return nil
	})
	time.Sleep(10 * time.Millisecond)
	assert.False(t, late.Load())
	assert.Equal(t, 0, q.Len())
}

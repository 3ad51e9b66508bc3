package notify

import (
	"sync"
	"time"
)

// Memory is an in-process Channel. Whatever is passed to Write comes out of
// ReadTimeout in order, split across reads when it does not fit.
type Memory struct {
	mu      sync.Mutex
	pending []byte
	ready   chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func NewMemory() *Memory {
	return &Memory{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (m *Memory) Write(p []byte) (int, error) {
	select {
	case <-m.closed:
		return 0, ErrClosed
	default:
	}
	m.mu.Lock()
	m.pending = append(m.pending, p...)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (m *Memory) take(p []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	if len(m.pending) > 0 {
		select {
		case m.ready <- struct{}{}:
		default:
		}
	}
	return n
}

func (m *Memory) ReadTimeout(p []byte, d time.Duration) (int, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-m.closed:
			return 0, ErrClosed
		case <-m.ready:
			if n := m.take(p); n > 0 {
				return n, nil
			}
		case <-timer.C:
			return 0, ErrTimeout
		}
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() {
		close(m.closed)
	})
	return nil
}

package pdu

import (
	"sync"
	"time"
)

// pendingTimer is a cancellable delayed callback whose completion can be
// awaited.
type pendingTimer struct {
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
}

func armTimer(d time.Duration, fn func()) *pendingTimer {
	pt := &pendingTimer{done: make(chan struct{})}
	pt.timer = time.AfterFunc(d, func() {
		defer pt.finish()
		fn()
	})
	return pt
}

func (pt *pendingTimer) finish() {
	pt.once.Do(func() { close(pt.done) })
}

// Active reports whether the callback has neither run to completion nor
// been cancelled.
func (pt *pendingTimer) Active() bool {
	select {
	case <-pt.done:
		return false
	default:
		return true
	}
}

// Cancel stops the timer. If the callback already started, Cancel waits up
// to grace for it to return. It reports whether the callback is known to
// be no longer runnable.
func (pt *pendingTimer) Cancel(grace time.Duration) bool {
	if pt.timer.Stop() {
		pt.finish()
		return true
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-pt.done:
		return true
	case <-t.C:
		return false
	}
}

package callkit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DurationTimer tracks elapsed seconds for the Active state.
//
// It is the only component driven by state occupancy rather than discrete
// events: Start is issued on entering Active, Stop on leaving it. While
// stopped the elapsed value is always zero.
type DurationTimer struct {
	mu        sync.Mutex
	tp        TimeProvider
	startedAt time.Time
	running   bool
	done      chan struct{}
	onTick    func(seconds int)
}

// NewDurationTimer creates a stopped duration timer. A nil TimeProvider
// selects the system clock.
func NewDurationTimer(tp TimeProvider) *DurationTimer {
	return &DurationTimer{tp: getTimeProvider(tp)}
}

// OnTick registers a callback invoked roughly once per second with the
// current elapsed value while the timer runs. Pass nil to unregister.
// The callback is invoked from the timer goroutine.
func (t *DurationTimer) OnTick(fn func(seconds int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = fn
}

// Start begins counting from zero. Starting a running timer restarts it.
func (t *DurationTimer) Start() {
	t.mu.Lock()
	if t.running {
		close(t.done)
	}
	t.startedAt = t.tp.Now()
	t.running = true
	t.done = make(chan struct{})
	done := t.done
	ticker := t.tp.NewTicker(time.Second)
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "DurationTimer.Start",
	}).Debug("Call duration tracking started")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.mu.Lock()
				fn := t.onTick
				t.mu.Unlock()
				if fn != nil {
					fn(t.Elapsed())
				}
			}
		}
	}()
}

// Stop halts the timer and resets the elapsed value to zero. Stopping a
// stopped timer is a no-op.
func (t *DurationTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	t.startedAt = time.Time{}
	close(t.done)
	t.done = nil

	logrus.WithFields(logrus.Fields{
		"function": "DurationTimer.Stop",
	}).Debug("Call duration tracking stopped")
}

// Elapsed returns the whole seconds since Start, or zero when stopped.
func (t *DurationTimer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return int(t.tp.Now().Sub(t.startedAt) / time.Second)
}

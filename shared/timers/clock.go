package timers

import (
	"errors"
	"sync"
	"time"
)

var errReleased = errors.New("timer released")

// Clock creates the underlying timers that deliver expiry notifications.
// Notifications arrive on arbitrary goroutines.
type Clock interface {
	NewTimer() (OSTimer, error)
}

// OSTimer is a single underlying timer. fire is the notification callback and
// must only hand the expiry over to the Service.
type OSTimer interface {
	Arm(d time.Duration, repeating bool, fire func()) error
	Disarm() error
	Release() error
}

// RuntimeClock backs timers with the Go runtime timer heap.
type RuntimeClock struct{}

func (RuntimeClock) NewTimer() (OSTimer, error) {
	return &runtimeTimer{}, nil
}

type runtimeTimer struct {
	mu         sync.Mutex
	t          *time.Timer
	generation uint64
	released   bool
}

func (r *runtimeTimer) Arm(d time.Duration, repeating bool, fire func()) error {
	if d <= 0 {
		return errors.New("timer interval must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return errReleased
	}
	r.stopLocked()

	generation := r.generation
	var tick func()
	tick = func() {
		r.mu.Lock()
		if r.generation != generation {
			r.mu.Unlock()
			return
		}
		if repeating {
			r.t = time.AfterFunc(d, tick)
		}
		r.mu.Unlock()
		fire()
	}
	r.t = time.AfterFunc(d, tick)
	return nil
}

func (r *runtimeTimer) Disarm() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return errReleased
	}
	r.stopLocked()
	return nil
}

func (r *runtimeTimer) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return errReleased
	}
	r.stopLocked()
	r.released = true
	return nil
}

// stopLocked cancels the pending tick; a tick already running sees the new
// generation and does nothing.
func (r *runtimeTimer) stopLocked() {
	r.generation++
	if r.t != nil {
		r.t.Stop()
		r.t = nil
	}
}

// Package timerstest provides a virtual clock for driving timers.Service
// deterministically in tests.
package timerstest

import (
	"errors"
	"sync"
	"time"

	"github.com/lanmaster/lanmaster/shared/timers"
)

var ErrReleased = errors.New("timerstest: timer released")

// Clock is a manually advanced timers.Clock. Expiries fire synchronously from
// Advance, in deadline order, ties broken by arming order.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*Timer

	// Injected failures, returned by the next matching call when non-nil.
	FailNewTimer error
	FailArm      error
	FailDisarm   error
	FailRelease  error
}

func NewClock() *Clock {
	return &Clock{}
}

type Timer struct {
	clock     *Clock
	armed     bool
	released  bool
	deadline  time.Duration
	period    time.Duration
	repeating bool
	armSeq    uint64
	fire      func()
}

func (c *Clock) NewTimer() (timers.OSTimer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.FailNewTimer; err != nil {
		c.FailNewTimer = nil
		return nil, err
	}
	t := &Timer{clock: c}
	c.timers = append(c.timers, t)
	return t, nil
}

// Now returns the virtual time elapsed since the clock was created.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Armed returns the number of armed timers.
func (c *Clock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if t.armed {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing every expiry on the way.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	for {
		next := c.nextDueLocked(target)
		if next == nil {
			break
		}
		c.now = next.deadline
		if next.repeating {
			next.deadline += next.period
		} else {
			next.armed = false
		}
		fire := next.fire

		c.mu.Unlock()
		fire()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *Clock) nextDueLocked(target time.Duration) *Timer {
	var next *Timer
	for _, t := range c.timers {
		if !t.armed || t.deadline > target {
			continue
		}
		if next == nil || t.deadline < next.deadline ||
			(t.deadline == next.deadline && t.armSeq < next.armSeq) {
			next = t
		}
	}
	return next
}

func (t *Timer) Arm(d time.Duration, repeating bool, fire func()) error {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.released {
		return ErrReleased
	}
	if d <= 0 {
		return errors.New("timerstest: interval must be positive")
	}
	if err := c.FailArm; err != nil {
		c.FailArm = nil
		return err
	}
	c.seq++
	t.armed = true
	t.deadline = c.now + d
	t.period = d
	t.repeating = repeating
	t.armSeq = c.seq
	t.fire = fire
	return nil
}

func (t *Timer) Disarm() error {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.released {
		return ErrReleased
	}
	if err := c.FailDisarm; err != nil {
		c.FailDisarm = nil
		return err
	}
	t.armed = false
	return nil
}

func (t *Timer) Release() error {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.released {
		return ErrReleased
	}
	if err := c.FailRelease; err != nil {
		c.FailRelease = nil
		return err
	}
	t.armed = false
	t.released = true
	return nil
}

package timers

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lanmaster/lanmaster/shared/logger"
)

const (
	DefaultCapacity      = 10
	DefaultQueueCapacity = 32
)

var (
	ErrResourceExhausted = errors.New("timer pool exhausted")
	ErrInvalidHandle     = errors.New("invalid timer handle")
)

// Handler runs on the goroutine that calls DrainPending.
type Handler func()

// Handle refers to a created timer. The zero Handle is never valid.
type Handle struct {
	slot   int
	serial uint32
}

type descriptor struct {
	created    bool
	next       int
	serial     uint32
	timer      OSTimer
	interval   time.Duration
	repeating  bool
	armed      bool
	generation uint64
	handler    Handler
}

// Service owns a fixed pool of logical timers. Expiry notifications only
// enqueue the slot; handlers run later from DrainPending, so they may touch
// any main-goroutine state, including other timers.
type Service struct {
	clock   Clock
	timers  []descriptor
	free    int
	serial  uint32
	queue   *pendingQueue
	notify  func()
	dropped atomic.Uint64
}

type Option func(*Service)

// WithCapacity sets the number of timers the pool can hold.
func WithCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.timers = make([]descriptor, n)
		}
	}
}

// WithQueueCapacity bounds the number of undrained expiries.
func WithQueueCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = newPendingQueue(n)
		}
	}
}

// WithNotify registers a hook called from notification context after an
// expiry has been queued, typically to interrupt a blocking read.
func WithNotify(fn func()) Option {
	return func(s *Service) {
		s.notify = fn
	}
}

func New(clock Clock, opts ...Option) *Service {
	s := &Service{
		clock:  clock,
		timers: make([]descriptor, DefaultCapacity),
		queue:  newPendingQueue(DefaultQueueCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := range s.timers {
		s.timers[i].next = i + 1
	}
	s.timers[len(s.timers)-1].next = -1
	s.free = 0

	return s
}

// Create allocates a timer from the pool. It is not armed until Start.
func (s *Service) Create(interval time.Duration, repeating bool, handler Handler) (Handle, error) {
	if handler == nil {
		return Handle{}, errors.New("timer handler is required")
	}
	if s.free == -1 {
		return Handle{}, ErrResourceExhausted
	}

	slot := s.free
	t, err := s.clock.NewTimer()
	if err != nil {
		return Handle{}, fmt.Errorf("failed to create timer: %w", err)
	}

	d := &s.timers[slot]
	s.free = d.next
	s.serial++

	d.created = true
	d.next = -1
	d.serial = s.serial
	d.timer = t
	d.interval = interval
	d.repeating = repeating
	d.armed = false
	d.handler = handler

	logger.LogDebug("Timers", "Created timer %d (interval %s, repeating %t)", slot, interval, repeating)
	return Handle{slot: slot, serial: d.serial}, nil
}

// Start arms the timer, restarting its interval if it was already armed.
func (s *Service) Start(h Handle) error {
	d, err := s.lookup(h)
	if err != nil {
		return err
	}

	d.generation++
	d.armed = false
	if err := d.timer.Arm(d.interval, d.repeating, s.notifier(h.slot, d.generation)); err != nil {
		return fmt.Errorf("failed to arm timer %d: %w", h.slot, err)
	}
	d.armed = true
	return nil
}

// Stop disarms the timer and discards any of its expiries still queued.
func (s *Service) Stop(h Handle) error {
	d, err := s.lookup(h)
	if err != nil {
		return err
	}

	d.generation++
	d.armed = false
	if err := d.timer.Disarm(); err != nil {
		return fmt.Errorf("failed to disarm timer %d: %w", h.slot, err)
	}
	return nil
}

// Delete stops the timer, releases the underlying timer and returns the slot
// to the pool. Any later use of h fails with ErrInvalidHandle.
func (s *Service) Delete(h Handle) error {
	d, err := s.lookup(h)
	if err != nil {
		return err
	}

	d.generation++
	d.armed = false
	releaseErr := d.timer.Release()

	d.created = false
	d.timer = nil
	d.handler = nil
	d.next = s.free
	s.free = h.slot

	if releaseErr != nil {
		return fmt.Errorf("failed to release timer %d: %w", h.slot, releaseErr)
	}
	return nil
}

// Armed reports whether h is currently armed.
func (s *Service) Armed(h Handle) bool {
	d, err := s.lookup(h)
	return err == nil && d.armed
}

// Pending returns the number of queued expiries.
func (s *Service) Pending() int {
	return s.queue.len()
}

// Dropped returns how many expiries were lost to a full queue.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// DrainPending runs the handler of every queued expiry in arrival order.
// It must only be called from the main goroutine. Expiries of timers that
// were stopped, restarted or deleted after being queued are skipped.
func (s *Service) DrainPending() {
	for {
		e, ok := s.queue.pop()
		if !ok {
			return
		}

		d := &s.timers[e.slot]
		if !d.created || !d.armed || d.generation != e.generation {
			continue
		}
		if !d.repeating {
			d.armed = false
		}
		d.handler()
	}
}

func (s *Service) lookup(h Handle) (*descriptor, error) {
	if h.serial == 0 || h.slot < 0 || h.slot >= len(s.timers) {
		return nil, ErrInvalidHandle
	}
	d := &s.timers[h.slot]
	if !d.created || d.serial != h.serial {
		return nil, ErrInvalidHandle
	}
	return d, nil
}

// notifier returns the callback handed to the underlying timer. It runs in
// notification context and does nothing but enqueue and wake.
func (s *Service) notifier(slot int, generation uint64) func() {
	return func() {
		if !s.queue.push(expiry{slot: slot, generation: generation}) {
			s.dropped.Add(1)
		}
		if s.notify != nil {
			s.notify()
		}
	}
}

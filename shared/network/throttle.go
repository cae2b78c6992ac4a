package network

import "time"

const (
	readErrorBackoffMin = 10 * time.Millisecond
	readErrorBackoffMax = time.Second
	readErrorLogEvery   = 100
)

// readErrorThrottle paces the receive loop while reads keep failing. The
// pause doubles per consecutive failure up to readErrorBackoffMax, and only
// the first failure of a run and every readErrorLogEvery-th after it are
// logged.
type readErrorThrottle struct {
	consecutive int
	backoff     time.Duration
}

// failed records one failed read and returns whether to log it and how long
// to pause before the next read.
func (r *readErrorThrottle) failed() (log bool, pause time.Duration) {
	r.consecutive++
	if r.backoff == 0 {
		r.backoff = readErrorBackoffMin
	} else if r.backoff < readErrorBackoffMax {
		r.backoff *= 2
		if r.backoff > readErrorBackoffMax {
			r.backoff = readErrorBackoffMax
		}
	}
	return r.consecutive == 1 || r.consecutive%readErrorLogEvery == 0, r.backoff
}

// succeeded ends a run of failures and returns its length.
func (r *readErrorThrottle) succeeded() int {
	n := r.consecutive
	r.consecutive = 0
	r.backoff = 0
	return n
}

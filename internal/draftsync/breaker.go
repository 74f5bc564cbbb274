package draftsync

import (
	"sync"
	"time"
)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
)

// Breaker stops remote draft traffic after consecutive transport failures.
// One breaker is shared by every manager in the process, so a dead server is
// detected once rather than per form.
type Breaker struct {
	mu sync.Mutex

	threshold int           // consecutive failures to open
	cooldown  time.Duration // how long to stay open
	now       func() time.Time
	onChange  func(open bool)

	failures  int
	openUntil time.Time
	isOpen    bool
}

type BreakerOption func(*Breaker)

func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateHook is called with the new state whenever the breaker opens or
// closes.
func WithStateHook(fn func(open bool)) BreakerOption {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// NewBreaker falls back to the defaults for non-positive arguments.
func NewBreaker(threshold int, cooldown time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a remote call may be attempted. An open breaker whose
// cooldown has elapsed closes again.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isOpen {
		return true
	}
	if b.now().Before(b.openUntil) {
		return false
	}
	b.closeLocked()
	return true
}

// RecordSuccess clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.isOpen {
		b.closeLocked()
	}
}

// RecordFailure counts a transport failure and reports whether this one
// opened the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.openUntil = b.now().Add(b.cooldown)
	if b.isOpen || b.failures < b.threshold {
		return false
	}
	b.isOpen = true
	if b.onChange != nil {
		b.onChange(true)
	}
	return true
}

// IsOpen reports the state without applying the cooldown.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOpen
}

// Reset closes the breaker immediately.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.isOpen {
		b.closeLocked()
	}
}

func (b *Breaker) closeLocked() {
	b.isOpen = false
	b.failures = 0
	b.openUntil = time.Time{}
	if b.onChange != nil {
		b.onChange(false)
	}
}

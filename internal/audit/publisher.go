package audit

import (
	"context"
	"log/slog"
	"time"

	"immimate/pkg/platform/circuit"
)

// Publisher buffers events in memory and ships them to a Store from a
// background worker. Emit never blocks on the sink. When the sink keeps
// failing, the circuit breaker opens and events are dropped instead of
// piling up.
type Publisher struct {
	store     Store
	buffer    *ringBuffer
	breaker   *circuit.Breaker
	metrics   *Metrics
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	now       func() time.Time
	wake      chan struct{}
}

type PublisherOption func(*Publisher)

// WithBufferSize bounds the number of pending events.
func WithBufferSize(n int) PublisherOption {
	return func(p *Publisher) {
		p.buffer = newRingBuffer(n)
	}
}

func WithBatchSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets how often the worker flushes without being woken.
func WithFlushInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) PublisherOption {
	return func(p *Publisher) {
		p.breaker = b
	}
}

func WithMetrics(m *Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:     store,
		buffer:    newRingBuffer(0),
		breaker:   circuit.New("audit", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:    slog.Default(),
		batchSize: 100,
		interval:  time.Second,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit queues an event for the worker.
func (p *Publisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	p.metrics.incEmitted()
	if p.buffer.enqueue(event) {
		p.metrics.addDropped("buffer_full", 1)
	}
	if p.buffer.len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of queued events.
func (p *Publisher) Pending() int {
	return p.buffer.len()
}

package audit

import (
	"context"
	"time"
)

// Run flushes queued events until ctx is cancelled, then makes a final
// bounded flush.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = p.Flush(drainCtx)
			cancel()
			return ctx.Err()
		case <-p.wake:
		case <-ticker.C:
		}
		if err := p.Flush(ctx); err != nil {
			p.logger.WarnContext(ctx, "audit flush failed", "error", err, "pending", p.Pending())
		}
	}
}

// Flush writes every queued event in batches. A failed batch is dropped and
// reported; the rest stay queued for the next flush.
func (p *Publisher) Flush(ctx context.Context) error {
	for {
		batch := p.buffer.dequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return nil
		}
		if !p.breaker.Allow() {
			p.metrics.addDropped("circuit_open", len(batch))
			continue
		}
		if err := p.store.Append(ctx, batch...); err != nil {
			p.metrics.incPersistFailures()
			p.metrics.addDropped("persist_failed", len(batch))
			if _, change := p.breaker.RecordFailure(); change.Opened {
				p.metrics.setCircuitBreakerState(true)
				p.logger.WarnContext(ctx, "audit sink circuit opened, dropping events")
			}
			return err
		}
		p.metrics.addPersisted(len(batch))
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.metrics.setCircuitBreakerState(false)
			p.logger.InfoContext(ctx, "audit sink circuit closed")
		}
	}
}

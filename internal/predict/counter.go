package predict

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CounterStore persists per-day prediction volume. Implemented by the
// feedback store so the aggregator can compute feedback_rate against real
// prediction counts rather than an estimate.
type CounterStore interface {
	AddPredictions(ctx context.Context, day time.Time, n int64) error
}

// Counter accumulates prediction counts in memory and flushes them to the
// store periodically. Increments are cheap (one mutex op) so the hot path
// never waits on the database.
type Counter struct {
	store CounterStore

	mu      sync.Mutex
	pending map[string]int64 // day (2006-01-02, UTC) -> count
}

// NewCounter creates a counter backed by store.
func NewCounter(store CounterStore) *Counter {
	return &Counter{store: store, pending: make(map[string]int64)}
}

// Incr adds n predictions to the current UTC day.
func (c *Counter) Incr(n int64) {
	day := time.Now().UTC().Format("2006-01-02")
	c.mu.Lock()
	c.pending[day] += n
	c.mu.Unlock()
}

// Flush writes all pending counts to the store. Failed days are retained
// for the next flush.
func (c *Counter) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]int64)
	c.mu.Unlock()

	var lastErr error
	for day, n := range pending {
		d, err := time.ParseInLocation("2006-01-02", day, time.UTC)
		if err != nil {
			continue
		}
		if err := c.store.AddPredictions(ctx, d, n); err != nil {
			lastErr = err
			c.mu.Lock()
			c.pending[day] += n
			c.mu.Unlock()
		}
	}
	return lastErr
}

// Run flushes on the given interval until ctx is cancelled, then performs a
// final flush so counts are not lost on shutdown.
func (c *Counter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Flush(flushCtx); err != nil {
				zap.L().Warn("final counter flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				zap.L().Warn("counter flush failed", zap.Error(err))
			}
		}
	}
}

package stream

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/sonroyaalmerol/balaambot/internal/observe"
)

// Pool bounds how many external processes run at once and applies a
// per-process timeout.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	metrics *observe.Metrics
}

// NewPool returns a pool running at most size processes. A zero timeout
// disables the deadline.
func NewPool(size int, timeout time.Duration, metrics *observe.Metrics) *Pool {
	if size < 1 {
		size = 1
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), timeout: timeout, metrics: metrics}
}

// Do waits for a slot, then runs fn with a context bounded by the timeout.
func (p *Pool) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s: wait for process slot: %w", name, err)
	}
	defer p.sem.Release(1)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.SubprocessDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("name", name), attribute.String("status", status)))
	return err
}

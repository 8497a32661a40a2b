package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultPublishTimeout = 10 * time.Second

// Dispatcher publishes events off the request path. Failures are logged and
// never reach the caller; Wait drains in-flight publishes on shutdown.
type Dispatcher struct {
	wg      sync.WaitGroup
	log     *zap.Logger
	timeout time.Duration
}

// NewDispatcher creates a dispatcher that gives each publish up to ten seconds.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{log: log, timeout: defaultPublishTimeout}
}

// Go runs publish in the background with a context detached from ctx.
func (d *Dispatcher) Go(ctx context.Context, eventType string, publish func(ctx context.Context) error) {
	pubCtx, cancel := Detached(ctx, d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		if err := publish(pubCtx); err != nil {
			d.log.Warn("Failed to publish event",
				zap.String("event_type", eventType),
				zap.String("correlation_id", CorrelationID(pubCtx)),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every publish started with Go has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

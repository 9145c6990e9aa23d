package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_market/internal/metrics"
	"github.com/fjod/go_market/pkg/circuitbreaker"
	"go.uber.org/zap"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

type Notification struct {
	UserID     string    `json:"user_id"`
	Type       string    `json:"type"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Guarded rejects notifications without calling the inner notifier while
// the breaker is open.
type Guarded struct {
	inner   Notifier
	breaker *circuitbreaker.Breaker
}

func NewGuarded(inner Notifier, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) Notify(ctx context.Context, n Notification) error {
	return g.breaker.Execute(func() error {
		return g.inner.Notify(ctx, n)
	})
}

// Dispatcher sends notifications in the background. Failures are logged
// and counted, never returned. After Wait is called, Dispatch drops
// notifications.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{notifier: n, timeout: timeout, log: log, metrics: m}
}

func (d *Dispatcher) Dispatch(n Notification) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.Notification("dropped")
		d.log.Warn("notification dropped after shutdown",
			zap.String("type", n.Type),
			zap.String("user_id", n.UserID))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, n); err != nil {
			d.metrics.Notification("failed")
			d.log.Warn("notification failed",
				zap.String("type", n.Type),
				zap.String("user_id", n.UserID),
				zap.Error(err))
			return
		}
		d.metrics.Notification("sent")
	}()
}

// Wait stops accepting notifications and blocks until every dispatched
// one finished.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

package reconcile

import (
	"context"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/metrics"
	"github.com/fjod/go_market/internal/store"
	"go.uber.org/zap"
)

const (
	KindOrphanedHold   = "orphaned_hold"
	KindPendingRestock = "pending_restock"
)

// Source lists ledger work that a crash or a failed compensation left behind.
type Source interface {
	OrphanedHolds(ctx context.Context, before time.Time, limit int) ([]store.Movement, error)
	PendingRestocks(ctx context.Context, before time.Time, limit int) ([]store.PendingRestock, error)
}

type Config struct {
	Interval time.Duration
	// Grace keeps in-flight checkouts and transitions out of reach
	Grace     time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, Grace: 5 * time.Minute, BatchSize: 100}
}

// Reconciler returns stock that was taken without an order to show for it,
// and finishes restocks of cancelled or returned orders.
type Reconciler struct {
	cfg     Config
	source  Source
	ledger  store.StockLedger
	clock   domain.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewReconciler(cfg Config, source Source, ledger store.StockLedger, clock domain.Clock, m *metrics.Metrics, log *zap.Logger) *Reconciler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{cfg: cfg, source: source, ledger: ledger, clock: clock, metrics: m, log: log}
}

// Run reconciles on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce makes one pass and reports how many movements it wrote.
func (r *Reconciler) RunOnce(ctx context.Context) (released, restocked int) {
	before := r.clock.Now().Add(-r.cfg.Grace)
	released = r.releaseOrphanedHolds(ctx, before)
	restocked = r.completeRestocks(ctx, before)
	if released > 0 || restocked > 0 {
		r.log.Info("ledger reconciled", zap.Int("released", released), zap.Int("restocked", restocked))
	}
	return released, restocked
}

func (r *Reconciler) releaseOrphanedHolds(ctx context.Context, before time.Time) int {
	holds, err := r.source.OrphanedHolds(ctx, before, r.cfg.BatchSize)
	if err != nil {
		r.log.Error("failed to fetch orphaned holds", zap.Error(err))
		return 0
	}

	n := 0
	for _, h := range holds {
		if _, err := r.ledger.Increment(ctx, h.Ref, h.Key(), h.Quantity); err != nil {
			r.log.Error("failed to release orphaned hold",
				zap.String("hold_id", h.Ref),
				zap.String("product_id", h.ProductID),
				zap.String("variant_id", h.VariantID),
				zap.Error(err))
			continue
		}
		n++
	}
	r.metrics.Reconciled(KindOrphanedHold, n)
	return n
}

func (r *Reconciler) completeRestocks(ctx context.Context, before time.Time) int {
	pending, err := r.source.PendingRestocks(ctx, before, r.cfg.BatchSize)
	if err != nil {
		r.log.Error("failed to fetch pending restocks", zap.Error(err))
		return 0
	}

	n := 0
	for _, p := range pending {
		if _, err := r.ledger.Increment(ctx, store.RestockRef(p.OrderID), p.Key(), p.Quantity); err != nil {
			r.log.Error("failed to restock order",
				zap.String("order_id", p.OrderID),
				zap.String("product_id", p.ProductID),
				zap.String("variant_id", p.VariantID),
				zap.Error(err))
			continue
		}
		n++
	}
	r.metrics.Reconciled(KindPendingRestock, n)
	return n
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "market"

// Metrics holds the collectors the engine reports to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	shopOrders      *prometheus.CounterVec
	checkoutSeconds prometheus.Histogram
	transitions     *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		shopOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_shop_orders_total",
			Help:      "Shop orders attempted during checkout by outcome.",
		}, []string{"outcome"}),
		checkoutSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Duration of checkout calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Applied order status transitions.",
		}, []string{"from", "to"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_compensations_total",
			Help:      "Stock increments issued to undo or restore decrements.",
		}, []string{"reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatch attempts by outcome.",
		}, []string{"outcome"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_movements_total",
			Help:      "Stock movements repaired by the reconciler.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.shopOrders, m.checkoutSeconds, m.transitions, m.compensations, m.notifications, m.reconciled)
	return m
}

func (m *Metrics) ShopOrder(outcome string) {
	if m == nil {
		return
	}
	m.shopOrders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CheckoutDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.checkoutSeconds.Observe(d.Seconds())
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Compensation(reason string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(reason).Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reconciled(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.reconciled.WithLabelValues(kind).Add(float64(n))
}

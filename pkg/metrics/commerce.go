package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cart operation labels.
const (
	CartOpAdd            = "add"
	CartOpUpdate         = "update"
	CartOpRemove         = "remove"
	CartOpClear          = "clear"
	CartOpWishlistAdd    = "wishlist_add"
	CartOpWishlistRemove = "wishlist_remove"
	CartOpWishlistClear  = "wishlist_clear"
	CartOpMoveToCart     = "move_to_cart"

	ResultOK    = "ok"
	ResultError = "error"
)

// CommerceMetrics counts cart, order and lock activity for the API process.
type CommerceMetrics struct {
	cartOps         *prometheus.CounterVec
	ordersCreated   prometheus.Counter
	transitions     *prometheus.CounterVec
	notifyFailures  *prometheus.CounterVec
	lockWaitSeconds *prometheus.HistogramVec
}

// NewCommerceMetrics registers the commerce collectors. A nil registerer
// yields a no-op instance.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	m := &CommerceMetrics{
		cartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ff_cart_operations_total",
			Help: "Cart and wishlist mutations by operation and result.",
		}, []string{"op", "result"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ff_orders_created_total",
			Help: "Orders created from carts.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ff_order_transitions_total",
			Help: "Applied order status transitions.",
		}, []string{"from", "to"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ff_order_notifications_failed_total",
			Help: "Order notifications that could not be recorded.",
		}, []string{"event"}),
		lockWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ff_lock_wait_seconds",
			Help:    "Time spent waiting for per-key locks.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"backend"}),
	}
	reg.MustRegister(m.cartOps, m.ordersCreated, m.transitions, m.notifyFailures, m.lockWaitSeconds)
	return m
}

// CartOperation counts one cart or wishlist mutation.
func (m *CommerceMetrics) CartOperation(op string, err error) {
	if m == nil || m.cartOps == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.cartOps.WithLabelValues(label(op), result).Inc()
}

// OrderCreated counts a committed checkout.
func (m *CommerceMetrics) OrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

// OrderTransition counts an applied status change.
func (m *CommerceMetrics) OrderTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(label(from), label(to)).Inc()
}

// NotificationFailed counts a dropped order notification.
func (m *CommerceMetrics) NotificationFailed(event string) {
	if m == nil || m.notifyFailures == nil {
		return
	}
	m.notifyFailures.WithLabelValues(label(event)).Inc()
}

// ObserveLockWait implements locks.WaitObserver.
func (m *CommerceMetrics) ObserveLockWait(backend string, wait time.Duration) {
	if m == nil || m.lockWaitSeconds == nil {
		return
	}
	m.lockWaitSeconds.WithLabelValues(label(backend)).Observe(wait.Seconds())
}

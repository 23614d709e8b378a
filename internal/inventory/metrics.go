package inventory

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Metrics counts posted and rejected movements. A nil *Metrics is a no-op.
type Metrics struct {
	posted   *prometheus.CounterVec
	rejected *prometheus.CounterVec
	reorder  prometheus.Counter
}

// NewMetrics registers the inventory collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_movements_total",
		Help: "Committed stock movements partitioned by type.",
	}, []string{"type"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_movements_rejected_total",
		Help: "Rejected stock movements partitioned by type and reason.",
	}, []string{"type", "reason"})
	reorder := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_stock_reorder_points_reached_total",
		Help: "Times available stock fell to a reorder point.",
	})
	registerer.MustRegister(posted, rejected, reorder)
	return &Metrics{posted: posted, rejected: rejected, reorder: reorder}
}

func (m *Metrics) observe(t MovementType, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.posted.WithLabelValues(string(t)).Inc()
		return
	}
	m.rejected.WithLabelValues(string(t), rejectReason(err)).Inc()
}

func (m *Metrics) reorderReached(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reorder.Add(float64(n))
}

func rejectReason(err error) string {
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return "duplicate"
	}
	if kind := shared.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the fulfillment pipeline. A nil *Metrics is valid and turns
// every record call into a no-op, so tests and stripped-down deployments can
// skip registration.
type Metrics struct {
	TicksTotal           prometheus.Counter
	OrdersDoneTotal      prometheus.Counter
	TransferErrorsTotal  *prometheus.CounterVec
	TransfersNanoTotal   prometheus.Counter
	ResolutionsTotal     *prometheus.CounterVec
	ReadyBatchSize       prometheus.Histogram
	NotificationsDropped prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starsfill_ticks_total",
			Help: "Scheduler ticks executed",
		}),
		OrdersDoneTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starsfill_orders_done_total",
			Help: "Orders fulfilled on-chain",
		}),
		TransferErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "starsfill_transfer_errors_total",
			Help: "Orders marked ERROR, by error kind",
		}, []string{"kind"}),
		TransfersNanoTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starsfill_transferred_nanoton_total",
			Help: "Total nanoton moved by completed transfers",
		}),
		ResolutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "starsfill_resolutions_total",
			Help: "Username resolution attempts, by outcome",
		}, []string{"outcome"}),
		ReadyBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "starsfill_ready_batch_size",
			Help:    "Orders picked up per scheduler tick",
			Buckets: prometheus.LinearBuckets(0, 5, 6),
		}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "starsfill_notifications_dropped_total",
			Help: "Notification callbacks that failed or panicked",
		}),
	}
}

func (m *Metrics) Tick(batchSize int) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.ReadyBatchSize.Observe(float64(batchSize))
}

func (m *Metrics) OrderDone(amountNano int64) {
	if m == nil {
		return
	}
	m.OrdersDoneTotal.Inc()
	m.TransfersNanoTotal.Add(float64(amountNano))
}

func (m *Metrics) TransferError(kind string, count int) {
	if m == nil {
		return
	}
	m.TransferErrorsTotal.WithLabelValues(kind).Add(float64(count))
}

func (m *Metrics) ResolutionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

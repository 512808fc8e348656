package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_waiting_tickets",
			Help: "Current number of in-line tickets per queue",
		},
		[]string{"queue_id"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations by outcome",
		},
		[]string{"operation", "queue_id", "status"},
	)

	ticketsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_served_total",
			Help: "Total tickets transitioned to SERVED",
		},
		[]string{"queue_id"},
	)

	etaMinutes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eta_predicted_minutes",
			Help:    "Distribution of predicted wait times",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"queue_id"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)
)

// Monitor is the metrics handle the services write through.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) RecordOperation(operation, queueID, status string) {
	queueOperations.WithLabelValues(operation, queueID, status).Inc()
}

func (m *Monitor) SetQueueLength(queueID string, n int) {
	queueLength.WithLabelValues(queueID).Set(float64(n))
}

func (m *Monitor) AddServed(queueID string, n int) {
	ticketsServed.WithLabelValues(queueID).Add(float64(n))
}

func (m *Monitor) ObserveEta(queueID string, minutes int) {
	etaMinutes.WithLabelValues(queueID).Observe(float64(minutes))
}

func (m *Monitor) RecordNotification(channel, status string) {
	notifications.WithLabelValues(channel, status).Inc()
}

package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal prometheus.Counter
	dequeueTotal *prometheus.CounterVec
	taskDuration prometheus.Histogram

	activeConversations prometheus.Gauge
	stepOutcomes        *prometheus.CounterVec
	providerDuration    *prometheus.HistogramVec
	transportFailures   *prometheus.CounterVec
	recordsAppended     prometheus.Counter
	artifactsDelivered  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sessionbot_queue_size",
					Help: "Current queue size by lane kind.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessionbot_enqueue_total",
					Help: "Total events enqueued across conversation lanes.",
				},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessionbot_dequeue_total",
					Help: "Total completed queue tasks by status.",
				},
				[]string{"status"},
			),
			taskDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "sessionbot_task_duration_seconds",
					Help:    "Queued task execution duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeConversations: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "sessionbot_active_conversations",
					Help: "Conversations currently in a non-terminal state.",
				},
			),
			stepOutcomes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessionbot_conversation_outcomes_total",
					Help: "Terminal conversation outcomes by kind.",
				},
				[]string{"outcome"},
			),
			providerDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "sessionbot_provider_call_duration_seconds",
					Help:    "Identity provider call duration by operation and outcome.",
					Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
				},
				[]string{"operation", "outcome"},
			),
			transportFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessionbot_transport_failures_total",
					Help: "Messaging transport failures by operation.",
				},
				[]string{"operation"},
			),
			recordsAppended: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessionbot_records_appended_total",
					Help: "Session records appended to the durable log.",
				},
			),
			artifactsDelivered: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessionbot_artifacts_delivered_total",
					Help: "Ephemeral session artifacts by delivery status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeConversations,
			m.stepOutcomes,
			m.providerDuration,
			m.transportFailures,
			m.recordsAppended,
			m.artifactsDelivered,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default prometheus registry
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordQueueEnqueue counts an enqueue; lane kind keeps label cardinality bounded.
func RecordQueueEnqueue(laneKind string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.Inc()
	m.queueSize.WithLabelValues(laneKind).Set(float64(queueSize))
}

func RecordQueueCompletion(laneKind string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	m.dequeueTotal.WithLabelValues(statusLabel(success)).Inc()
	m.taskDuration.Observe(duration.Seconds())
	m.queueSize.WithLabelValues(laneKind).Set(float64(queueSize))
}

func SetActiveConversations(count int) {
	getMetrics().activeConversations.Set(float64(count))
}

func RecordConversationOutcome(outcome string) {
	getMetrics().stepOutcomes.WithLabelValues(outcome).Inc()
}

func RecordProviderCall(operation, outcome string, duration time.Duration) {
	getMetrics().providerDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

func RecordTransportFailure(operation string) {
	getMetrics().transportFailures.WithLabelValues(operation).Inc()
}

func RecordSessionAppend() {
	getMetrics().recordsAppended.Inc()
}

func RecordArtifactDelivery(success bool) {
	getMetrics().artifactsDelivered.WithLabelValues(statusLabel(success)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

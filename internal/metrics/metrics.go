package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Telegram ingress metrics of one daemon
type Metrics struct {
	registry *prometheus.Registry

	// Ingress metrics
	UpdatesReceivedTotal  *prometheus.CounterVec
	UpdatesRefusedTotal   prometheus.Counter
	UpdatesDuplicateTotal prometheus.Counter
	StepErrorsTotal       prometheus.Counter

	// Daemon metrics
	UptimeSeconds prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics. uptime reports the daemon uptime in seconds.
func NewMetrics(uptime func() float64) *Metrics {
	registry := prometheus.NewRegistry()
	if uptime == nil {
		uptime = func() float64 { return 0 }
	}

	m := &Metrics{
		registry: registry,

		UpdatesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionbot_telegram_updates_received_total",
				Help: "Total number of Telegram updates turned into conversation events, by event kind",
			},
			[]string{"kind"},
		),
		UpdatesRefusedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessionbot_telegram_updates_refused_total",
				Help: "Total number of updates from chats outside the allowlist",
			},
		),
		UpdatesDuplicateTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessionbot_telegram_updates_duplicate_total",
				Help: "Total number of redelivered updates dropped",
			},
		),
		StepErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessionbot_step_errors_total",
				Help: "Total number of events the conversation machine could not run",
			},
		),
		UptimeSeconds: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "sessionbot_uptime_seconds",
				Help: "Seconds since the daemon started",
			},
			uptime,
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.UpdatesReceivedTotal)
	m.registry.MustRegister(m.UpdatesRefusedTotal)
	m.registry.MustRegister(m.UpdatesDuplicateTotal)
	m.registry.MustRegister(m.StepErrorsTotal)
	m.registry.MustRegister(m.UptimeSeconds)
}

// Handler returns an HTTP handler serving this registry together with the
// default registry, which also carries the Go and process collectors
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

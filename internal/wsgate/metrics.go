package wsgate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftlock/drainhub"
)

// Metrics holds the gateway's prometheus collectors.
type Metrics struct {
	reg *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	notificationsSent   prometheus.Counter
	sendFailures        prometheus.Counter
}

// NewMetrics builds and registers the gateway collectors. Live-connection and
// broadcast-sequence gauges read straight from the registry and broadcaster,
// so they never drift from the source of truth.
func NewMetrics(registry *drainhub.Registry, broadcaster *drainhub.Broadcaster) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drainhub_connections_accepted_total",
			Help: "WebSocket connections admitted into the registry.",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drainhub_connections_rejected_total",
			Help: "WebSocket connections rejected because the server was draining.",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drainhub_messages_sent_total",
			Help: "Messages successfully written to clients.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drainhub_send_failures_total",
			Help: "Failed message writes to clients.",
		}),
	}

	reg.MustRegister(
		m.connectionsAccepted,
		m.connectionsRejected,
		m.notificationsSent,
		m.sendFailures,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "drainhub_active_connections",
			Help: "Currently registered WebSocket connections.",
		}, func() float64 { return float64(registry.Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "drainhub_broadcast_sequence",
			Help: "Broadcast cycles started since process start.",
		}, func() float64 { return float64(broadcaster.Sequence()) }),
	)

	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

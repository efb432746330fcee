// Package metrics exposes Prometheus counters and gauges for connection
// and message-level activity, on an independent registry so embedding
// this module never collides with a host process's default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric this project reports.
type Collector struct {
	Registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec
	MessagesTotal     *prometheus.CounterVec
	DecodeErrorsTotal *prometheus.CounterVec
	QueryDuration     prometheus.Histogram
}

// New builds a Collector and registers every metric on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pgwire",
			Name:      "connections_active",
			Help:      "Number of connections currently open.",
		}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgwire",
			Name:      "connections_total",
			Help:      "Connections accepted, labeled by role.",
		}, []string{"role"}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgwire",
			Name:      "messages_total",
			Help:      "Messages relayed, labeled by direction and kind.",
		}, []string{"direction", "kind"}),
		DecodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgwire",
			Name:      "decode_errors_total",
			Help:      "Decode failures, labeled by error kind.",
		}, []string{"kind"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pgwire",
			Name:      "query_duration_seconds",
			Help:      "Time from SimpleQuery to the matching ReadyForQuery.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.ConnectionsActive,
		c.ConnectionsTotal,
		c.MessagesTotal,
		c.DecodeErrorsTotal,
		c.QueryDuration,
	)
	return c
}

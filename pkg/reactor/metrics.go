package reactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus instrumentation a Reactor exposes. All
// collectors are registered on construction via promauto.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	AcceptedTotal      prometheus.Counter
	RejectedTotal      prometheus.Counter
	QueuedWriteBytes   prometheus.Gauge
	TimerFiresTotal    prometheus.Counter
	NotifyDepth        prometheus.Gauge
	NotifyDroppedTotal prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer to expose the metrics on the process's
// default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "active_connections",
			Help:      "Number of connections currently held in the connection slab.",
		}),
		AcceptedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "accepted_total",
			Help:      "Total inbound connections accepted.",
		}),
		RejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "rejected_total",
			Help:      "Total inbound connections rejected by OnPreAccept or capacity.",
		}),
		QueuedWriteBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "queued_write_bytes",
			Help:      "Sum of bytes currently queued across every connection's Outbuf.",
		}),
		TimerFiresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "timer_fires_total",
			Help:      "Total timer firings dispatched to Protocol.OnTimer.",
		}),
		NotifyDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "notify_channel_depth",
			Help:      "Pending messages in the cross-thread notify channel.",
		}),
		NotifyDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "notify_dropped_total",
			Help:      "Notify sends rejected because the channel was full or closed.",
		}),
	}
}

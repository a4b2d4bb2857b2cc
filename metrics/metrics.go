// Package metrics exposes Prometheus counters for the client's frame and
// delivery traffic. A process may run several amqp91 clients; each
// gets its own Metrics instance registered under a caller-supplied
// registerer so labels stay disjoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters/gauges the connection and channel engines
// update as they run. Grounded on packetd's direct use of
// github.com/prometheus/client_golang for protocol-layer counters.
type Metrics struct {
	FramesSent       *prometheus.CounterVec
	FramesReceived   *prometheus.CounterVec
	HeartbeatsSent   prometheus.Counter
	HeartbeatsMissed prometheus.Counter
	MessagesPublished prometheus.Counter
	MessagesDelivered prometheus.Counter
	OpenChannels      prometheus.Gauge
}

// New creates a Metrics bundle and registers it with reg. reg may be nil:
// a nil registerer simply skips registration so tests and library
// embedders that don't want global metrics don't pay for it.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amqp91",
			Name:      "frames_sent_total",
			Help:      "Frames written to the connection, by frame type.",
		}, []string{"frame_type"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amqp91",
			Name:      "frames_received_total",
			Help:      "Frames read from the connection, by frame type.",
		}, []string{"frame_type"}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp91",
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat frames written to the connection.",
		}),
		HeartbeatsMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp91",
			Name:      "heartbeats_missed_total",
			Help:      "Times the heartbeat watchdog closed the connection.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp91",
			Name:      "messages_published_total",
			Help:      "Basic.Publish calls issued.",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp91",
			Name:      "messages_delivered_total",
			Help:      "Messages handed to a consumer or returned from Basic.Get.",
		}),
		OpenChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "amqp91",
			Name:      "open_channels",
			Help:      "Currently open channels on this connection.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FramesSent, m.FramesReceived, m.HeartbeatsSent,
			m.HeartbeatsMissed, m.MessagesPublished, m.MessagesDelivered, m.OpenChannels)
	}
	return m
}

// Noop returns a Metrics bundle that is never registered anywhere —
// convenient for callers (and tests) that don't care about metrics but
// still want the engine's instrumentation calls to be no-ops rather than
// nil-checks sprinkled through the engine.
func Noop() *Metrics { return New(nil) }

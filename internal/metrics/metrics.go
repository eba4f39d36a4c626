package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-local collectors exposed on /metrics.
type Metrics struct {
	Connections       prometheus.Gauge
	MessagesPersisted prometheus.Counter
	FanoutDeliveries  prometheus.Counter
	BusPublished      prometheus.Counter
	BusReceived       prometheus.Counter
	TypingBroadcasts  prometheus.Counter
	DroppedSends      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Live websocket connections in this process.",
		}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_persisted_total",
			Help: "Messages written to the durable store.",
		}),
		FanoutDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_fanout_deliveries_total",
			Help: "Message copies enqueued to local connections.",
		}),
		BusPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_bus_published_total",
			Help: "Events published to the broadcast bus.",
		}),
		BusReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_bus_received_total",
			Help: "Events received from other processes over the bus.",
		}),
		TypingBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_typing_broadcasts_total",
			Help: "Typing-set broadcasts to rooms.",
		}),
		DroppedSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_dropped_sends_total",
			Help: "Payloads dropped because a connection's queue was full.",
		}),
	}
}

// NewDefault registers against the default registry, for main.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

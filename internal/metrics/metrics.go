package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat holds the collectors for the realtime subsystem.
type Chat struct {
	ActiveConnections  prometheus.Gauge
	ActiveRooms        prometheus.Gauge
	MessagesPersisted  prometheus.Counter
	MessagesFailed     prometheus.Counter
	FramesRejected     prometheus.Counter
	HeartbeatEvictions prometheus.Counter
	BridgePublished    prometheus.Counter
	BridgeDelivered    prometheus.Counter
}

// NewChat registers and returns the chat collectors.
func NewChat(reg prometheus.Registerer) *Chat {
	factory := promauto.With(reg)

	return &Chat{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "active_connections",
			Help:      "Number of live websocket connections.",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one live connection.",
		}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "messages_persisted_total",
			Help:      "Messages durably written before fan-out.",
		}),
		MessagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "messages_failed_total",
			Help:      "Messages rejected because the store write failed.",
		}),
		FramesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "frames_rejected_total",
			Help:      "Inbound frames dropped as malformed or unauthorized.",
		}),
		HeartbeatEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "heartbeat_evictions_total",
			Help:      "Connections evicted after missing heartbeat probes.",
		}),
		BridgePublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "bridge_published_total",
			Help:      "Message envelopes published to the cross-process bridge.",
		}),
		BridgeDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "chat",
			Name:      "bridge_delivered_total",
			Help:      "Remote envelopes delivered to local connections.",
		}),
	}
}

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "honeysensor_transport_packets_sent_total",
		Help: "Packets successfully written to the collector over an active session.",
	})
	packetsBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "honeysensor_transport_packets_buffered_total",
		Help: "Packets that landed in the ring buffer because the live send channel was full.",
	})
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "honeysensor_transport_reconnects_total",
		Help: "Times the client has re-dialed the collector after a session ended.",
	})
)

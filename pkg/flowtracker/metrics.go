package flowtracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "honeysensor_flowtracker_flows_started_total",
		Help: "Flows for which a new FlowFeatures accumulator was created.",
	})
	flowsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "honeysensor_flowtracker_flows_evicted_total",
		Help: "Flows removed from the tracker, by reason.",
	}, []string{"reason"})
	activeFlows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "honeysensor_flowtracker_active_flows",
		Help: "Flows currently held in the tracker map.",
	})
)

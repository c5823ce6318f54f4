package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var anomaliesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "honeysensor_graph_anomalies_recorded_total",
	Help: "Anomalies appended to a node's history, by class.",
}, []string{"class"})

// Package healthapi provides the liveness, readiness, and status HTTP
// surface shared by honeysensor and honeycollector: a huma-documented
// API mounted on a gin router, exposing health, info, and per-component
// status endpoints plus Prometheus metrics.
package healthapi

const (
	infoPrefix = "/-"

	// HealthRoute reports whether the process is alive.
	HealthRoute = infoPrefix + "/health"
	// ReadyRoute reports whether the process has finished initializing
	// its dependencies (ONNX runtime, pcap handle, TLS listener, ...).
	ReadyRoute = infoPrefix + "/ready"
	// InfoRoute reports the service name, version, and commit.
	InfoRoute = infoPrefix + "/info"
	// StatusRoute reports the component-level status payload supplied by
	// the serving binary's StatusFunc.
	StatusRoute = infoPrefix + "/status"
)

const (
	healthy = "healthy"
	ready   = "ready"
	notYet  = "not ready"
)

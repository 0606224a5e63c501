package domain

import "time"

// HealthStatus summarises the state of the service or one of its dependencies.
type HealthStatus string

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates a dependency failed but the service keeps serving.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates a dependency did not answer in time.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for the readiness endpoint.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

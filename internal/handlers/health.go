package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/services"
)

const readinessTimeout = 3 * time.Second

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the service queried by /readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthzResponse struct {
	Status      domain.HealthStatus `json:"status"`
	Version     string              `json:"version,omitempty"`
	CommitSHA   string              `json:"commitSha,omitempty"`
	Environment string              `json:"environment,omitempty"`
	Uptime      string              `json:"uptime"`
	Timestamp   string              `json:"timestamp"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

type readinessCheck struct {
	Status    domain.HealthStatus `json:"status"`
	Detail    string              `json:"detail,omitempty"`
	Error     string              `json:"error,omitempty"`
	LatencyMS int64               `json:"latencyMs"`
	CheckedAt string              `json:"checkedAt,omitempty"`
}

type readyzResponse struct {
	Status    domain.HealthStatus       `json:"status"`
	Checks    map[string]readinessCheck `json:"checks"`
	Details   []string                  `json:"details,omitempty"`
	Uptime    string                    `json:"uptime,omitempty"`
	Timestamp string                    `json:"timestamp"`
}

// Readyz reports whether dependencies answer. A degraded report still answers 200 so the
// instance stays in rotation; only an error report yields 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	if h.system == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:    domain.HealthStatusError,
			Checks:    map[string]readinessCheck{},
			Details:   []string{"system service not configured"},
			Timestamp: now.Format(time.RFC3339),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	report, err := h.system.HealthReport(ctx)
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:    domain.HealthStatusError,
			Checks:    map[string]readinessCheck{},
			Details:   []string{err.Error()},
			Timestamp: now.Format(time.RFC3339),
		})
		return
	}

	resp := readyzResponse{
		Status:    report.Status,
		Checks:    make(map[string]readinessCheck, len(report.Checks)),
		Timestamp: now.Format(time.RFC3339),
	}
	if report.Uptime > 0 {
		resp.Uptime = report.Uptime.Round(time.Second).String()
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		resp.Checks[name] = readinessCheck{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Error != "" {
			resp.Details = append(resp.Details, fmt.Sprintf("%s: %s", name, check.Error))
		}
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}

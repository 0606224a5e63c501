package services

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/repositories"
)

// BuildInfo is the release metadata reported by /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps configures NewSystemService.
//
// Critical names the dependencies without which checkout cannot take an order; a failing critical
// check fails readiness, any other failing check only degrades it. CacheTTL lets concurrent and
// back-to-back probes share one collection.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Critical         []string
	CacheTTL         time.Duration
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health   repositories.HealthRepository
	critical map[string]struct{}
	ttl      time.Duration
	clock    func() time.Time
	build    BuildInfo

	collect singleflight.Group
	mu      sync.Mutex
	cached  domain.SystemHealthReport
	expires time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the readiness reporter. Firestore is critical when Critical is empty.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	critical := deps.Critical
	if len(critical) == 0 {
		critical = []string{"firestore"}
	}
	svc := &systemService{
		health:   deps.HealthRepository,
		critical: make(map[string]struct{}, len(critical)),
		ttl:      deps.CacheTTL,
		clock:    func() time.Time { return clock().UTC() },
		build:    deps.Build,
	}
	for _, name := range critical {
		if name = strings.TrimSpace(name); name != "" {
			svc.critical[name] = struct{}{}
		}
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.clock()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.ttl > 0 {
		s.mu.Lock()
		if s.clock().Before(s.expires) {
			report := s.stamp(s.cached)
			s.mu.Unlock()
			return report, nil
		}
		s.mu.Unlock()
	}

	v, err, _ := s.collect.Do("health", func() (any, error) {
		report, err := s.health.Collect(ctx)
		if err != nil {
			return domain.SystemHealthReport{}, err
		}
		report.Checks = maps.Clone(report.Checks)
		if report.Checks == nil {
			report.Checks = map[string]domain.SystemHealthCheck{}
		}
		report.Status = s.status(report.Checks)
		if report.GeneratedAt.IsZero() {
			report.GeneratedAt = s.clock()
		}
		report.GeneratedAt = report.GeneratedAt.UTC()

		if s.ttl > 0 {
			s.mu.Lock()
			s.cached = report
			s.expires = s.clock().Add(s.ttl)
			s.mu.Unlock()
		}
		return report, nil
	})
	if err != nil {
		return domain.SystemHealthReport{}, err
	}
	return s.stamp(v.(domain.SystemHealthReport)), nil
}

// stamp fills the build metadata and uptime, which change between cached reads.
func (s *systemService) stamp(report domain.SystemHealthReport) domain.SystemHealthReport {
	report.Checks = maps.Clone(report.Checks)
	report.Version = firstNonBlank(report.Version, s.build.Version)
	report.CommitSHA = firstNonBlank(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonBlank(report.Environment, s.build.Environment)
	report.Uptime = s.clock().Sub(s.build.StartedAt)
	return report
}

func (s *systemService) status(checks map[string]domain.SystemHealthCheck) domain.HealthStatus {
	status := domain.HealthStatusOK
	for name, check := range checks {
		if check.Status == domain.HealthStatusOK || check.Status == "" {
			continue
		}
		if _, ok := s.critical[name]; ok {
			return domain.HealthStatusError
		}
		status = domain.HealthStatusDegraded
	}
	return status
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

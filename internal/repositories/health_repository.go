package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/couture-field/checkout/internal/domain"
)

const (
	defaultDependencyTimeout = 1500 * time.Millisecond
	maxCheckErrorLength      = 256
)

// DependencyCheck is one readiness probe. Timeout falls back to the repository default.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

type DependencyHealthOption func(*dependencyHealthRepository)

// WithDependencyTimeout overrides the timeout applied when a check omits its own.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type dependencyHealthRepository struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository probes every check in parallel on Collect. Check names must be
// unique; they key the readiness report.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: no dependency checks")
	}
	checks = append([]DependencyCheck(nil), checks...)
	seen := make(map[string]struct{}, len(checks))
	for i, check := range checks {
		name := strings.TrimSpace(check.Name)
		if name == "" {
			return nil, fmt.Errorf("health repository: check %d has no name", i)
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: check %s has no probe", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("health repository: duplicate check %s", name)
		}
		seen[name] = struct{}{}
		checks[i].Name = name
	}

	repo := &dependencyHealthRepository{
		checks:         checks,
		defaultTimeout: defaultDependencyTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Collect never fails: an unhealthy dependency is reported in its check. The overall status is
// error when any probe ran out of time, degraded when any probe failed.
func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	results := make([]domain.SystemHealthCheck, len(r.checks))
	var group errgroup.Group
	for i, check := range r.checks {
		group.Go(func() error {
			results[i] = r.probe(ctx, check)
			return nil
		})
	}
	_ = group.Wait()

	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.SystemHealthCheck, len(results)),
		GeneratedAt: r.now(),
	}
	for i, result := range results {
		report.Checks[r.checks[i].Name] = result
		switch {
		case result.Status == domain.HealthStatusError:
			report.Status = domain.HealthStatusError
		case result.Status == domain.HealthStatusDegraded && report.Status == domain.HealthStatusOK:
			report.Status = domain.HealthStatusDegraded
		}
	}
	return report, nil
}

func (r *dependencyHealthRepository) probe(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(probeCtx)
	if err == nil {
		err = probeCtx.Err()
	}
	end := r.now()

	result := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil {
		return result
	}
	result.Error = clipError(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Status, result.Detail = domain.HealthStatusError, "timeout"
	case errors.Is(err, context.Canceled):
		result.Status, result.Detail = domain.HealthStatusError, "cancelled"
	default:
		result.Status, result.Detail = domain.HealthStatusDegraded, "unavailable"
	}
	return result
}

func clipError(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if runes := []rune(msg); len(runes) > maxCheckErrorLength {
		return string(runes[:maxCheckErrorLength]) + "…"
	}
	return msg
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/repositories"
)

// BuildInfo is reported alongside dependency health on /readyz.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// OptionalChecks name dependencies the storefront can serve without, such
	// as the guest cart cache or the cover upload bucket. Their failures
	// degrade readiness instead of failing it.
	OptionalChecks []string
	Clock          func() time.Time
	Build          BuildInfo
}

type systemService struct {
	health   repositories.HealthRepository
	optional map[string]struct{}
	clock    func() time.Time
	build    BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService constructs a SystemService.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	optional := make(map[string]struct{}, len(deps.OptionalChecks))
	for _, name := range deps.OptionalChecks {
		if name = strings.TrimSpace(name); name != "" {
			optional[name] = struct{}{}
		}
	}
	clock := ensureClock(deps.Clock)
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		health:   deps.HealthRepository,
		optional: optional,
		clock:    clock,
		build:    build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.Version = chooseFirstNonEmpty(report.Version, s.build.Version)
	report.Environment = chooseFirstNonEmpty(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	report.Status = s.overallStatus(report.Checks)
	return report, nil
}

// overallStatus is error only when a required dependency failed.
func (s *systemService) overallStatus(checks map[string]domain.SystemHealthCheck) domain.HealthStatus {
	status := domain.HealthStatusOK
	for name, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			if _, ok := s.optional[name]; !ok {
				return domain.HealthStatusError
			}
			status = domain.HealthStatusDegraded
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
)

type stubHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestSystemServiceHealthReportFillsBuildInfo(t *testing.T) {
	repo := &stubHealthRepo{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"redis":     {Status: domain.HealthStatusDegraded, Detail: "connection refused"},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            fixedClock(testNow),
		Build: BuildInfo{
			Version:     "1.4.2",
			Environment: "staging",
			StartedAt:   testNow.Add(-90 * time.Minute),
		},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Version != "1.4.2" || report.Environment != "staging" {
		t.Fatalf("unexpected build info %+v", report)
	}
	if report.Uptime != 90*time.Minute || !report.GeneratedAt.Equal(testNow) {
		t.Fatalf("unexpected uptime %s / generated %s", report.Uptime, report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportErrorWins(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepo{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"redis":     {Status: domain.HealthStatusDegraded},
			"firestore": {Status: domain.HealthStatusError},
		},
	}}})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
}

func TestSystemServiceHealthReportPropagatesCollectError(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepo{err: errors.New("boom")}})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error without repository")
	}
}

func TestSystemServiceOptionalDependencyDegrades(t *testing.T) {
	repo := &stubHealthRepo{report: domain.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"storage":   {Status: domain.HealthStatusError, Detail: "timeout"},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		OptionalChecks:   []string{"redis", " storage "},
		Clock:            fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded for optional failure, got %s", report.Status)
	}

	repo.report.Checks["firestore"] = domain.SystemHealthCheck{Status: domain.HealthStatusError}
	report, _ = svc.HealthReport(context.Background())
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error when firestore fails, got %s", report.Status)
	}
}

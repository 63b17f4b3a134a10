package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing the health probe endpoints.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) Health(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.clock()
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if len(report.Checks) == 0 {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = domain.HealthStatusOK
	}
	return report, nil
}

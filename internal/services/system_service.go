package services

import (
	"context"
	"errors"
	"time"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

// Renderer engine states reported by SystemServiceDeps.RendererState.
const (
	RendererStateClosed   = "closed"
	RendererStateHalfOpen = "half-open"
	RendererStateOpen     = "open"
)

const rendererCheckName = "renderer"

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// RendererState reports the PDF engine breaker. Nil omits the renderer check.
	RendererState  func() string
	SigningEnabled bool
	Clock          func() time.Time
	Build          BuildInfo
}

type systemService struct {
	health         repositories.HealthRepository
	rendererState  func() string
	signingEnabled bool
	clock          func() time.Time
	build          BuildInfo
}

// NewSystemService assembles the service backing /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		health:         deps.HealthRepository,
		rendererState:  deps.RendererState,
		signingEnabled: deps.SigningEnabled,
		clock:          func() time.Time { return clock().UTC() },
		build:          build,
	}, nil
}

// HealthReport collects dependency checks and folds in the renderer state. An open breaker only
// degrades the report because issuance continues with HTML artifacts.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}
	now := s.clock()
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	report.RenderMode = domain.RenderModePDF
	if s.rendererState != nil {
		check := rendererCheck(s.rendererState(), now)
		report.Checks[rendererCheckName] = check
		if check.Status != domain.HealthStatusOK {
			report.RenderMode = domain.RenderModeHTMLFallback
		}
	}
	report.SigningEnabled = s.signingEnabled

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.Version = s.build.Version
	report.CommitSHA = s.build.CommitSHA
	report.Environment = s.build.Environment
	report.Uptime = now.Sub(s.build.StartedAt)
	report.Status = deriveStatus(report.Status, report.Checks)
	return report, nil
}

func rendererCheck(state string, now time.Time) domain.SystemHealthCheck {
	check := domain.SystemHealthCheck{Status: domain.HealthStatusOK, Detail: "pdf engine available", CheckedAt: now}
	switch state {
	case RendererStateOpen:
		check.Status = domain.HealthStatusDegraded
		check.Detail = "pdf engine unavailable, issuing html"
	case RendererStateHalfOpen:
		check.Status = domain.HealthStatusDegraded
		check.Detail = "pdf engine recovering"
	}
	return check
}

// deriveStatus keeps the worst of the collected status and every check.
func deriveStatus(collected string, checks map[string]domain.SystemHealthCheck) string {
	worst := statusRank(collected)
	for _, check := range checks {
		worst = max(worst, statusRank(check.Status))
	}
	switch worst {
	case 0:
		return domain.HealthStatusOK
	case 1:
		return domain.HealthStatusDegraded
	default:
		return domain.HealthStatusError
	}
}

func statusRank(status string) int {
	switch status {
	case "", domain.HealthStatusOK:
		return 0
	case domain.HealthStatusError:
		return 2
	default:
		return 1
	}
}

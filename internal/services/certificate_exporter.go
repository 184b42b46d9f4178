package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/artifacts"
	"github.com/Yonad91/vital-events-sub002/internal/platform/metrics"
	"github.com/Yonad91/vital-events-sub002/internal/platform/observability"
	"github.com/Yonad91/vital-events-sub002/internal/platform/pdf"
)

// ArtifactStore persists and serves certificate artifacts.
type ArtifactStore interface {
	EnsureWritable(ctx context.Context) error
	Save(ctx context.Context, name string, data []byte) (artifacts.Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, artifacts.Object, error)
	Find(ctx context.Context, base string, exts ...string) (artifacts.Object, error)
	Remove(ctx context.Context, name string) error
}

// CertificateExporterDeps bundles constructor inputs for the artifact exporter.
type CertificateExporterDeps struct {
	Store   ArtifactStore
	Engine  pdf.Engine
	Metrics *metrics.Metrics
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// CertificateExporter renders certificate markup to PDF and persists the result, keeping the
// markup itself when the engine fails.
type CertificateExporter struct {
	store   ArtifactStore
	engine  pdf.Engine
	metrics *metrics.Metrics
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCertificateExporter validates deps. A nil Engine persists every certificate as HTML.
func NewCertificateExporter(deps CertificateExporterDeps) (*CertificateExporter, error) {
	if deps.Store == nil {
		return nil, errors.New("certificate exporter: store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CertificateExporter{
		store:   deps.Store,
		engine:  deps.Engine,
		metrics: deps.Metrics,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Export persists markup for certificateID as "<id>.pdf", or as "<id>.html" when rendering
// fails. Only storage failures are returned; they wrap ErrCertificateStorage.
func (e *CertificateExporter) Export(ctx context.Context, certificateID string, markup []byte) (domain.CertificateArtifact, error) {
	if err := e.store.EnsureWritable(ctx); err != nil {
		return domain.CertificateArtifact{}, fmt.Errorf("%w: %v", ErrCertificateStorage, err)
	}

	format := domain.CertificateFormatPDF
	body, renderErr := e.render(ctx, certificateID, markup)
	if renderErr != nil {
		format = domain.CertificateFormatHTML
		body = markup
		e.metrics.IncrementFallback()
		e.logger(ctx, "certificates.render.degraded", map[string]any{
			"certificateId": certificateID,
			"error":         renderErr.Error(),
		})
	}

	obj, err := e.store.Save(ctx, certificateID+"."+string(format), body)
	if err != nil {
		return domain.CertificateArtifact{}, fmt.Errorf("%w: %v", ErrCertificateStorage, err)
	}
	e.logger(ctx, "certificates.artifact.saved", map[string]any{
		"certificateId": certificateID,
		"file":          obj.Name,
		"format":        string(format),
		"size":          obj.Size,
	})
	return artifactFromObject(certificateID, obj), nil
}

func (e *CertificateExporter) render(ctx context.Context, certificateID string, markup []byte) ([]byte, error) {
	if e.engine == nil {
		return nil, pdf.ErrUnavailable
	}
	ctx, span := observability.StartSpan(ctx, "certificates.render", attribute.String("certificate.id", certificateID))
	defer span.End()

	started := e.clock()
	out, err := e.engine.Render(ctx, markup)
	if err == nil && len(out) == 0 {
		err = errors.New("engine returned an empty document")
	}
	elapsed := e.clock().Sub(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		e.metrics.ObserveRender("error", elapsed)
		return nil, err
	}
	e.metrics.ObserveRender("ok", elapsed)
	return out, nil
}

func artifactFromObject(certificateID string, obj artifacts.Object) domain.CertificateArtifact {
	format := domain.CertificateFormatHTML
	if obj.ContentType == artifacts.ContentType(".pdf") {
		format = domain.CertificateFormatPDF
	}
	return domain.CertificateArtifact{
		CertificateID: certificateID,
		FileName:      obj.Name,
		Format:        format,
		ContentType:   obj.ContentType,
		Size:          obj.Size,
		ModifiedAt:    obj.ModTime,
	}
}

package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/artifacts"
	"github.com/Yonad91/vital-events-sub002/internal/platform/metrics"
	"github.com/Yonad91/vital-events-sub002/internal/platform/pdf"
)

type unwritableStore struct {
	saves int
}

func (s *unwritableStore) EnsureWritable(context.Context) error {
	return artifacts.ErrNotWritable
}

func (s *unwritableStore) Save(context.Context, string, []byte) (artifacts.Object, error) {
	s.saves++
	return artifacts.Object{}, nil
}

func (s *unwritableStore) Open(context.Context, string) (io.ReadCloser, artifacts.Object, error) {
	return nil, artifacts.Object{}, artifacts.ErrNotFound
}

func (s *unwritableStore) Find(context.Context, string, ...string) (artifacts.Object, error) {
	return artifacts.Object{}, artifacts.ErrNotFound
}

func (s *unwritableStore) Remove(context.Context, string) error {
	return nil
}

func newMemoryArtifactStore() *artifacts.Store {
	return artifacts.NewStore(memfs.New())
}

func TestCertificateExporterWritesPDF(t *testing.T) {
	store := newMemoryArtifactStore()
	m := metrics.New(prometheus.NewRegistry())
	engine := pdf.EngineFunc(func(_ context.Context, markup []byte) ([]byte, error) {
		return append([]byte("%PDF-"), markup...), nil
	})
	exporter, err := NewCertificateExporter(CertificateExporterDeps{Store: store, Engine: engine, Metrics: m})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	artifact, err := exporter.Export(context.Background(), "CERT-evt-1-A", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Format != domain.CertificateFormatPDF || artifact.FileName != "CERT-evt-1-A.pdf" {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	if artifact.ContentType != "application/pdf" || artifact.Size != int64(len("%PDF-<html></html>")) {
		t.Fatalf("unexpected artifact metadata %+v", artifact)
	}
	if got := testutil.ToFloat64(m.RenderFallbacks); got != 0 {
		t.Fatalf("expected no fallbacks, got %v", got)
	}
}

func TestCertificateExporterFallsBackToMarkup(t *testing.T) {
	fs := memfs.New()
	store := artifacts.NewStore(fs)
	m := metrics.New(prometheus.NewRegistry())
	logs := &captureEvents{}
	engine := pdf.EngineFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, pdf.ErrUnavailable
	})
	exporter, err := NewCertificateExporter(CertificateExporterDeps{Store: store, Engine: engine, Metrics: m, Logger: logs.log})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	markup := []byte("<html><body>ሰኔ</body></html>")
	artifact, err := exporter.Export(context.Background(), "CERT-evt-1-B", markup)
	if err != nil {
		t.Fatalf("degraded render must not fail: %v", err)
	}
	if artifact.Format != domain.CertificateFormatHTML || artifact.FileName != "CERT-evt-1-B.html" {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	saved, err := util.ReadFile(fs, "CERT-evt-1-B.html")
	if err != nil {
		t.Fatalf("read fallback: %v", err)
	}
	if string(saved) != string(markup) {
		t.Fatalf("expected markup to be persisted verbatim, got %q", saved)
	}
	if got := testutil.ToFloat64(m.RenderFallbacks); got != 1 {
		t.Fatalf("expected one fallback, got %v", got)
	}
	if len(logs.events) == 0 || logs.events[0] != "certificates.render.degraded" {
		t.Fatalf("expected degraded event, got %v", logs.events)
	}
}

func TestCertificateExporterWithoutEngineWritesHTML(t *testing.T) {
	exporter, err := NewCertificateExporter(CertificateExporterDeps{Store: newMemoryArtifactStore()})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	artifact, err := exporter.Export(context.Background(), "CERT-evt-2-A", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Format != domain.CertificateFormatHTML {
		t.Fatalf("expected html artifact, got %+v", artifact)
	}
}

func TestCertificateExporterEmptyPDFIsDegraded(t *testing.T) {
	engine := pdf.EngineFunc(func(context.Context, []byte) ([]byte, error) { return nil, nil })
	exporter, err := NewCertificateExporter(CertificateExporterDeps{Store: newMemoryArtifactStore(), Engine: engine})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	artifact, err := exporter.Export(context.Background(), "CERT-evt-3-A", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Format != domain.CertificateFormatHTML {
		t.Fatalf("expected html fallback for empty engine output, got %+v", artifact)
	}
}

func TestCertificateExporterUnwritableStoreIsFatal(t *testing.T) {
	store := &unwritableStore{}
	rendered := false
	engine := pdf.EngineFunc(func(context.Context, []byte) ([]byte, error) {
		rendered = true
		return []byte("%PDF"), nil
	})
	exporter, err := NewCertificateExporter(CertificateExporterDeps{Store: store, Engine: engine})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	_, err = exporter.Export(context.Background(), "CERT-evt-4-A", []byte("<html></html>"))
	if !errors.Is(err, ErrCertificateStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if rendered || store.saves != 0 {
		t.Fatalf("expected generation to stop before rendering")
	}
}

func TestCertificateExporterNeverOverwrites(t *testing.T) {
	store := newMemoryArtifactStore()
	exporter, err := NewCertificateExporter(CertificateExporterDeps{Store: store})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	ctx := context.Background()
	if _, err := exporter.Export(ctx, "CERT-evt-5-A", []byte("first")); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if _, err := exporter.Export(ctx, "CERT-evt-5-A", []byte("second")); !errors.Is(err, ErrCertificateStorage) {
		t.Fatalf("expected storage error on reuse, got %v", err)
	}
}

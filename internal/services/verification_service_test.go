package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/metrics"
)

func newVerificationFixture(t *testing.T, key string) (VerificationService, *memoryCertificateRepo, stubEventRepo, *metrics.Metrics) {
	t.Helper()
	events := stubEventRepo{
		"evt-1": {
			ID:             "evt-1",
			Type:           domain.EventTypeBirth,
			RegistrationID: "BR-42",
			Data: map[string]any{
				"childFullNameAm": "አበበ ከበደ",
				"childFullNameEn": "Abebe Kebede",
				"childIdNumberAm": "SECRET-ID",
				"childBirthDate":  map[string]any{"year": 2016, "month": 9, "day": 12},
				"childPhoto":      "childPhoto-1.png",
				"placeOfBirthEn":  "Addis Ababa",
			},
		},
	}
	index := newMemoryCertificateRepo()
	m := metrics.New(prometheus.NewRegistry())
	svc, err := NewVerificationService(VerificationServiceDeps{Certificates: index, Events: events, Metrics: m, SigningKey: key})
	if err != nil {
		t.Fatalf("new verification service: %v", err)
	}
	return svc, index, events, m
}

func TestVerificationServiceVerify(t *testing.T) {
	ctx := context.Background()
	svc, index, _, m := newVerificationFixture(t, "")
	issuedAt := time.Date(2024, time.September, 21, 10, 0, 0, 0, time.UTC)
	_ = index.Insert(ctx, domain.CertificateIssuance{
		ID:                 "CERT-evt-1-A",
		EventID:            "evt-1",
		EventType:          domain.EventTypeBirth,
		RegistrationNumber: "BR-42",
		RequesterName:      "Requester",
		RegistrarName:      "Registrar",
		IssuedAt:           issuedAt,
	})

	result, err := svc.Verify(ctx, VerifyCertificateCommand{CertificateID: "CERT-evt-1-A"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.CertificateID != "CERT-evt-1-A" || result.EventType != domain.EventTypeBirth || result.RegistrationNumber != "BR-42" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.IssuedDate != "2024-09-21" || result.Registrar != "Registrar" || result.Requester != "Requester" {
		t.Fatalf("unexpected issuance fields %+v", result)
	}
	if result.SignatureValid != nil {
		t.Fatalf("expected no signature verdict without a signature")
	}
	name, ok := result.EventData["childName"].(domain.Bilingual)
	if !ok || name.En != "Abebe Kebede" {
		t.Fatalf("unexpected child name %#v", result.EventData["childName"])
	}
	if place := result.EventData["placeOfBirth"].(domain.Bilingual); place.Am != "Addis Ababa" {
		t.Fatalf("unexpected place %+v", place)
	}
	for _, key := range []string{"childIdNumberAm", "idNumber", "childPhoto", "eventId"} {
		if _, leaked := result.EventData[key]; leaked {
			t.Fatalf("event data must not expose %s", key)
		}
	}
	if len(result.EventData) != 4 {
		t.Fatalf("expected vetted projection only, got %v", result.EventData)
	}
	if got := testutil.ToFloat64(m.Verifications.WithLabelValues("verified")); got != 1 {
		t.Fatalf("expected verified metric, got %v", got)
	}
}

func TestVerificationServiceNotFound(t *testing.T) {
	ctx := context.Background()
	svc, index, events, m := newVerificationFixture(t, "")

	if _, err := svc.Verify(ctx, VerifyCertificateCommand{CertificateID: "CERT-none"}); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Verify(ctx, VerifyCertificateCommand{CertificateID: "  "}); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected not found for blank id, got %v", err)
	}

	_ = index.Insert(ctx, domain.CertificateIssuance{ID: "CERT-evt-1-B", EventID: "evt-1", IssuedAt: time.Now()})
	delete(events, "evt-1")
	result, err := svc.Verify(ctx, VerifyCertificateCommand{CertificateID: "CERT-evt-1-B"})
	if !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected not found once the event is deleted, got %v", err)
	}
	if result.CertificateID != "" || result.EventData != nil {
		t.Fatalf("expected no partial payload, got %+v", result)
	}
	if got := testutil.ToFloat64(m.Verifications.WithLabelValues("not_found")); got != 3 {
		t.Fatalf("expected three not_found outcomes, got %v", got)
	}
}

func TestVerificationServiceSignature(t *testing.T) {
	ctx := context.Background()
	svc, index, _, m := newVerificationFixture(t, "secret")
	issuedAt := time.Date(2024, time.September, 21, 10, 0, 0, 0, time.UTC)
	_ = index.Insert(ctx, domain.CertificateIssuance{ID: "CERT-evt-1-C", EventID: "evt-1", IssuedAt: issuedAt})

	signer := newCertificateSigner("secret")
	good := signer.Sign("CERT-evt-1-C", "evt-1", domain.EventTypeBirth, "2024-09-21")

	result, err := svc.Verify(ctx, VerifyCertificateCommand{CertificateID: "CERT-evt-1-C", Signature: good})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.SignatureValid == nil || !*result.SignatureValid {
		t.Fatalf("expected valid signature")
	}

	result, err = svc.Verify(ctx, VerifyCertificateCommand{CertificateID: "CERT-evt-1-C", Signature: "forged"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.SignatureValid == nil || *result.SignatureValid {
		t.Fatalf("expected invalid signature verdict")
	}
	if got := testutil.ToFloat64(m.Verifications.WithLabelValues("invalid_signature")); got != 1 {
		t.Fatalf("expected invalid_signature metric, got %v", got)
	}
}

type blockingCertificateRepo struct {
	*memoryCertificateRepo
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (r *blockingCertificateRepo) FindByID(ctx context.Context, id string) (domain.CertificateIssuance, error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
	case <-ctx.Done():
		return domain.CertificateIssuance{}, ctx.Err()
	}
	return r.memoryCertificateRepo.FindByID(ctx, id)
}

func TestVerificationServiceSharedLookupSurvivesCallerCancel(t *testing.T) {
	index := &blockingCertificateRepo{
		memoryCertificateRepo: newMemoryCertificateRepo(),
		started:               make(chan struct{}),
		release:               make(chan struct{}),
	}
	_ = index.Insert(context.Background(), domain.CertificateIssuance{ID: "CERT-evt-1-D", EventID: "evt-1", IssuedAt: time.Now()})
	events := stubEventRepo{"evt-1": {ID: "evt-1", Type: domain.EventTypeBirth}}
	svc, err := NewVerificationService(VerificationServiceDeps{Certificates: index, Events: events})
	if err != nil {
		t.Fatalf("new verification service: %v", err)
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Verify(firstCtx, VerifyCertificateCommand{CertificateID: "CERT-evt-1-D"})
		firstErr <- err
	}()
	<-index.started

	type outcome struct {
		result VerificationResult
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		result, err := svc.Verify(context.Background(), VerifyCertificateCommand{CertificateID: "CERT-evt-1-D"})
		second <- outcome{result: result, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to stop waiting, got %v", err)
	}
	close(index.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("expected the remaining caller to verify, got %v", got.err)
	}
	if got.result.CertificateID != "CERT-evt-1-D" {
		t.Fatalf("unexpected result %+v", got.result)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/metrics"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

// verificationLookupTimeout bounds a shared lookup once it is detached from the caller that started it.
const verificationLookupTimeout = 10 * time.Second

var (
	// ErrVerificationNotFound indicates the certificate or its source event no longer exists.
	ErrVerificationNotFound = errors.New("verification: certificate not found")
)

// VerificationServiceDeps bundles collaborators required to construct the verification service.
type VerificationServiceDeps struct {
	Certificates repositories.CertificateRepository
	Events       repositories.EventRepository
	Metrics      *metrics.Metrics
	Logger       func(ctx context.Context, event string, fields map[string]any)
	// SigningKey must match the key certificates were issued with.
	SigningKey string
}

type verificationService struct {
	certificates repositories.CertificateRepository
	events       repositories.EventRepository
	metrics      *metrics.Metrics
	logger       func(context.Context, string, map[string]any)
	signer       *certificateSigner
	builder      *CertificateBuilder
	group        singleflight.Group
}

// NewVerificationService wires dependencies into a concrete VerificationService implementation.
func NewVerificationService(deps VerificationServiceDeps) (VerificationService, error) {
	if deps.Certificates == nil {
		return nil, errors.New("verification service: certificate repository is required")
	}
	if deps.Events == nil {
		return nil, errors.New("verification service: event repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &verificationService{
		certificates: deps.Certificates,
		events:       deps.Events,
		metrics:      deps.Metrics,
		logger:       logger,
		signer:       newCertificateSigner(deps.SigningKey),
		builder:      NewCertificateBuilder(nil),
	}, nil
}

// Verify resolves the certificate through the issuance index and re-reads its event. Concurrent
// lookups of the same certificate share one round trip, which runs detached from any single caller
// so one client disconnecting does not fail the others.
func (s *verificationService) Verify(ctx context.Context, cmd VerifyCertificateCommand) (VerificationResult, error) {
	certificateID := strings.TrimSpace(cmd.CertificateID)
	signature := strings.TrimSpace(cmd.Signature)
	if certificateID == "" {
		s.metrics.IncrementVerification("not_found")
		return VerificationResult{}, fmt.Errorf("%w: certificate id is required", ErrVerificationNotFound)
	}

	ch := s.group.DoChan(certificateID+"|"+signature, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verificationLookupTimeout)
		defer cancel()
		return s.verify(lookupCtx, certificateID, signature)
	})
	var (
		value any
		err   error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case res := <-ch:
		value, err = res.Val, res.Err
	}
	if err != nil {
		if errors.Is(err, ErrVerificationNotFound) {
			s.metrics.IncrementVerification("not_found")
		} else {
			s.metrics.IncrementVerification("error")
		}
		return VerificationResult{}, err
	}

	result := value.(VerificationResult)
	if result.SignatureValid != nil && !*result.SignatureValid {
		s.metrics.IncrementVerification("invalid_signature")
	} else {
		s.metrics.IncrementVerification("verified")
	}
	return result, nil
}

func (s *verificationService) verify(ctx context.Context, certificateID, signature string) (VerificationResult, error) {
	issuance, err := s.certificates.FindByID(ctx, certificateID)
	if err != nil {
		return VerificationResult{}, s.mapRepositoryError(err)
	}
	event, err := s.events.FindByID(ctx, issuance.EventID)
	if err != nil {
		if isVerificationNotFound(err) {
			s.logger(ctx, "certificates.verify.event_missing", map[string]any{
				"certificateId": certificateID,
				"eventId":       issuance.EventID,
			})
		}
		return VerificationResult{}, s.mapRepositoryError(err)
	}

	issuedDate := issuance.IssuedAt.UTC().Format(time.DateOnly)
	result := VerificationResult{
		CertificateID:      issuance.ID,
		EventType:          event.Type,
		RegistrationNumber: firstNonBlank(issuance.RegistrationNumber, event.RegistrationID),
		IssuedDate:         issuedDate,
		Registrar:          issuance.RegistrarName,
		Requester:          issuance.RequesterName,
		EventData:          s.eventData(event, issuance),
	}
	if signature != "" {
		valid := s.signer.Verify(signature, issuance.ID, event.ID, event.Type, issuedDate)
		result.SignatureValid = &valid
	}
	return result, nil
}

// eventData is the public projection of the event. It never carries ids, photos or the raw field
// bag.
func (s *verificationService) eventData(event domain.Event, issuance domain.CertificateIssuance) map[string]any {
	data := s.builder.Build(event, CertificateRequest{CertificateID: issuance.ID, IssuedAt: issuance.IssuedAt}, domain.User{}, nil)
	out := map[string]any{}
	switch {
	case data.Birth != nil:
		out["childName"] = data.Birth.Child.FullName
		out["sex"] = data.Birth.Child.Sex
		out["birthDate"] = data.Birth.Child.BirthDate
		out["placeOfBirth"] = data.Birth.PlaceOfBirth
	case data.Marriage != nil:
		out["wifeName"] = data.Marriage.Wife.FullName
		out["husbandName"] = data.Marriage.Husband.FullName
		out["marriageDate"] = data.Marriage.MarriageDate
	case data.Death != nil:
		out["deceasedName"] = data.Death.Deceased.FullName
		out["deathDate"] = data.Death.DeathDate
	}
	return out
}

func (s *verificationService) mapRepositoryError(err error) error {
	if isVerificationNotFound(err) {
		return fmt.Errorf("%w: %v", ErrVerificationNotFound, err)
	}
	return fmt.Errorf("verification: lookup failed: %w", err)
}

func isVerificationNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

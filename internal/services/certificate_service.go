package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/artifacts"
	"github.com/Yonad91/vital-events-sub002/internal/platform/metrics"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

const (
	certificateIDPrefix      = "CERT-"
	certificateEventIssued   = "certificates.issued"
	certificateAuditAction   = "certificate.issued"
	certificateDownloadRoute = "/certificates/%s/download"
)

var (
	// ErrCertificateInvalidInput signals a malformed generation request.
	ErrCertificateInvalidInput = errors.New("certificate: invalid input")
	// ErrCertificateEventNotFound indicates the source event does not exist.
	ErrCertificateEventNotFound = errors.New("certificate: event not found")
	// ErrCertificateUserNotFound indicates the requesting user does not exist.
	ErrCertificateUserNotFound = errors.New("certificate: user not found")
	// ErrCertificateNotFound indicates no artifact or issuance exists for the id.
	ErrCertificateNotFound = errors.New("certificate: not found")
	// ErrCertificateStorage indicates the artifact directory cannot be written.
	ErrCertificateStorage = errors.New("certificate: storage unavailable")
)

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// PhotoSource locates uploaded photos and inlines them.
type PhotoSource interface {
	PhotoFinder
	DataURL(photoPath string) (string, error)
}

// CertificateServiceDeps bundles collaborators required to construct the certificate service.
type CertificateServiceDeps struct {
	Events       repositories.EventRepository
	Users        repositories.UserRepository
	Certificates repositories.CertificateRepository
	Photos       PhotoSource
	Renderer     *DocumentRenderer
	Exporter     *CertificateExporter
	Store        ArtifactStore
	Audit        AuditLogService
	Publisher    CertificateEventPublisher
	Metrics      *metrics.Metrics
	Clock        func() time.Time
	IDGenerator  func(eventID string, now time.Time) string
	Logger       func(ctx context.Context, event string, fields map[string]any)
	// PublicBaseURL prefixes the verification link embedded in the QR code.
	PublicBaseURL string
	// SigningKey enables QR payload signatures when set.
	SigningKey string
}

type certificateService struct {
	events       repositories.EventRepository
	users        repositories.UserRepository
	certificates repositories.CertificateRepository
	photos       PhotoSource
	builder      *CertificateBuilder
	renderer     *DocumentRenderer
	exporter     *CertificateExporter
	store        ArtifactStore
	audit        AuditLogService
	publisher    CertificateEventPublisher
	metrics      *metrics.Metrics
	clock        func() time.Time
	newID        func(string, time.Time) string
	logger       func(context.Context, string, map[string]any)
	baseURL      string
	signer       *certificateSigner
}

// NewCertificateService wires dependencies into a concrete CertificateService implementation.
func NewCertificateService(deps CertificateServiceDeps) (CertificateService, error) {
	if deps.Events == nil {
		return nil, errors.New("certificate service: event repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("certificate service: user repository is required")
	}
	if deps.Certificates == nil {
		return nil, errors.New("certificate service: certificate repository is required")
	}
	if deps.Store == nil {
		return nil, errors.New("certificate service: artifact store is required")
	}

	renderer := deps.Renderer
	if renderer == nil {
		r, err := NewDocumentRenderer()
		if err != nil {
			return nil, fmt.Errorf("certificate service: %w", err)
		}
		renderer = r
	}
	exporter := deps.Exporter
	if exporter == nil {
		e, err := NewCertificateExporter(CertificateExporterDeps{Store: deps.Store, Metrics: deps.Metrics, Logger: deps.Logger})
		if err != nil {
			return nil, fmt.Errorf("certificate service: %w", err)
		}
		exporter = e
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = newCertificateIDGenerator()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	var finder PhotoFinder
	if deps.Photos != nil {
		finder = deps.Photos
	}

	return &certificateService{
		events:       deps.Events,
		users:        deps.Users,
		certificates: deps.Certificates,
		photos:       deps.Photos,
		builder:      NewCertificateBuilder(finder),
		renderer:     renderer,
		exporter:     exporter,
		store:        deps.Store,
		audit:        deps.Audit,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		clock:        func() time.Time { return clock().UTC() },
		newID:        newID,
		logger:       logger,
		baseURL:      strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		signer:       newCertificateSigner(deps.SigningKey),
	}, nil
}

// newCertificateIDGenerator returns "CERT-<eventId>-<ULID>" ids. The ULID embeds the issue time
// and is monotonic within a millisecond, so ids never repeat for the same event.
func newCertificateIDGenerator() func(string, time.Time) string {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func(eventID string, now time.Time) string {
		mu.Lock()
		id := ulid.MustNew(ulid.Timestamp(now), entropy)
		mu.Unlock()
		return certificateIDPrefix + safeIDComponent(eventID) + "-" + id.String()
	}
}

func safeIDComponent(value string) string {
	return strings.Trim(unsafeIDChars.ReplaceAllString(strings.TrimSpace(value), "_"), "_")
}

func (s *certificateService) Generate(ctx context.Context, cmd GenerateCertificateCommand) (GenerateCertificateResult, error) {
	eventID := strings.TrimSpace(cmd.EventID)
	requesterID := strings.TrimSpace(cmd.RequesterID)
	if eventID == "" {
		return GenerateCertificateResult{}, fmt.Errorf("%w: eventId is required", ErrCertificateInvalidInput)
	}
	if requesterID == "" {
		return GenerateCertificateResult{}, fmt.Errorf("%w: requester is required", ErrCertificateInvalidInput)
	}
	verificationImage := strings.TrimSpace(cmd.VerificationImage)
	if verificationImage != "" && !isImageDataURL(verificationImage) {
		return GenerateCertificateResult{}, fmt.Errorf("%w: verificationImage must be an image data URL", ErrCertificateInvalidInput)
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return GenerateCertificateResult{}, mapCertificateRepoError(err, ErrCertificateEventNotFound)
	}
	requester, err := s.users.FindByID(ctx, requesterID)
	if err != nil {
		return GenerateCertificateResult{}, mapCertificateRepoError(err, ErrCertificateUserNotFound)
	}
	registrar := s.lookupRegistrar(ctx, event)

	now := s.clock()
	certificateID := s.newID(event.ID, now)
	data := s.builder.Build(event, CertificateRequest{CertificateID: certificateID, IssuedAt: now}, requester, registrar)

	issuedDate := now.Format(time.DateOnly)
	signature := s.signer.Sign(certificateID, event.ID, event.Type, issuedDate)
	payload := domain.CertificateQRPayload{
		CertificateID:   certificateID,
		EventID:         event.ID,
		EventType:       event.Type,
		IssuedDate:      issuedDate,
		VerificationURL: verificationURL(s.baseURL, certificateID, signature),
		Signature:       signature,
	}

	assets, err := s.collectAssets(ctx, data, payload, verificationImage)
	if err != nil {
		return GenerateCertificateResult{}, err
	}
	markup, err := s.renderer.Render(data, assets)
	if err != nil {
		return GenerateCertificateResult{}, fmt.Errorf("certificate: render markup: %w", err)
	}
	artifact, err := s.exporter.Export(ctx, certificateID, markup)
	if err != nil {
		return GenerateCertificateResult{}, err
	}

	prior := s.countPriorIssuances(ctx, event.ID)
	issuance := domain.CertificateIssuance{
		ID:                 certificateID,
		EventID:            event.ID,
		EventType:          event.Type,
		RegistrationNumber: data.RegistrationNumber,
		RequesterID:        requester.ID,
		RequesterName:      data.RequesterName,
		RegistrarName:      data.RegistrarName,
		Format:             artifact.Format,
		FileName:           artifact.FileName,
		Signature:          signature,
		IssuedAt:           now,
	}
	if err := s.certificates.Insert(ctx, issuance); err != nil {
		if removeErr := s.store.Remove(context.WithoutCancel(ctx), artifact.FileName); removeErr != nil {
			s.logger(ctx, "certificates.generate.orphan_artifact", map[string]any{
				"certificateId": certificateID,
				"fileName":      artifact.FileName,
				"error":         removeErr.Error(),
			})
		}
		return GenerateCertificateResult{}, fmt.Errorf("certificate: index issuance: %w", err)
	}

	s.recordIssued(ctx, cmd, issuance, prior)
	s.metrics.IncrementGenerated(string(event.Type), string(artifact.Format))
	s.logger(ctx, certificateEventIssued, map[string]any{
		"certificateId":  certificateID,
		"eventId":        event.ID,
		"eventType":      string(event.Type),
		"format":         string(artifact.Format),
		"priorIssuances": prior,
	})

	return GenerateCertificateResult{
		CertificateID:   certificateID,
		FileName:        artifact.FileName,
		Format:          artifact.Format,
		QRCodeDataURL:   assets.QRCodeDataURL,
		QRPayload:       payload,
		CertificateData: data,
		DownloadPath:    fmt.Sprintf(certificateDownloadRoute, certificateID),
	}, nil
}

func (s *certificateService) lookupRegistrar(ctx context.Context, event domain.Event) *domain.User {
	registrarID := strings.TrimSpace(event.RegistrarID)
	if registrarID == "" {
		return nil
	}
	registrar, err := s.users.FindByID(ctx, registrarID)
	if err != nil {
		s.logger(ctx, "certificates.registrar.lookup.failed", map[string]any{
			"eventId":     event.ID,
			"registrarId": registrarID,
			"error":       err.Error(),
		})
		return nil
	}
	return &registrar
}

// collectAssets inlines photos and encodes the QR code concurrently. Unreadable photos render as
// placeholders.
func (s *certificateService) collectAssets(ctx context.Context, data domain.CertificateData, payload domain.CertificateQRPayload, verificationImage string) (RenderAssets, error) {
	assets := RenderAssets{Photos: map[string]string{}}
	refs := photoRefs(data)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for key, ref := range refs {
		g.Go(func() error {
			inline := s.inlinePhoto(gctx, data.CertificateID, key, ref)
			if inline == "" {
				return nil
			}
			mu.Lock()
			assets.Photos[key] = inline
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		if verificationImage != "" {
			assets.QRCodeDataURL = verificationImage
			return nil
		}
		png, err := encodeQRCode(payload)
		if err != nil {
			return fmt.Errorf("certificate: %w", err)
		}
		assets.QRCodeDataURL = pngDataURL(png)
		return nil
	})
	if err := g.Wait(); err != nil {
		return RenderAssets{}, err
	}
	return assets, nil
}

func (s *certificateService) inlinePhoto(ctx context.Context, certificateID, key, ref string) string {
	if isImageDataURL(ref) {
		return ref
	}
	if s.photos == nil {
		return ""
	}
	inline, err := s.photos.DataURL(ref)
	if err != nil {
		s.logger(ctx, "certificates.photo.unreadable", map[string]any{
			"certificateId": certificateID,
			"section":       key,
			"photo":         ref,
			"error":         err.Error(),
		})
		return ""
	}
	return inline
}

func photoRefs(data domain.CertificateData) map[string]string {
	refs := map[string]string{}
	add := func(key, ref string) {
		if ref != "" {
			refs[key] = ref
		}
	}
	switch {
	case data.Birth != nil:
		add("child", data.Birth.Child.PhotoPath)
	case data.Marriage != nil:
		add("wife", data.Marriage.Wife.PhotoPath)
		add("husband", data.Marriage.Husband.PhotoPath)
	case data.Death != nil:
		add("deceased", data.Death.Deceased.PhotoPath)
	}
	return refs
}

// countPriorIssuances returns how many certificates were issued for eventID before this one, or
// -1 when the index cannot be read.
func (s *certificateService) countPriorIssuances(ctx context.Context, eventID string) int {
	prior, err := s.certificates.ListByEvent(ctx, eventID)
	if err != nil {
		s.logger(ctx, "certificates.index.list.failed", map[string]any{
			"eventId": eventID,
			"error":   err.Error(),
		})
		return -1
	}
	return len(prior)
}

func (s *certificateService) recordIssued(ctx context.Context, cmd GenerateCertificateCommand, issuance domain.CertificateIssuance, prior int) {
	duplicate := prior > 0
	if s.audit != nil {
		severity := "info"
		if duplicate {
			severity = "warn"
		}
		s.audit.Record(ctx, AuditLogRecord{
			Actor:     issuance.RequesterID,
			ActorType: "user",
			Action:    certificateAuditAction,
			TargetRef: "/certificates/" + issuance.ID,
			Severity:  severity,
			RequestID: cmd.RequestID,
			Metadata: map[string]any{
				"eventId":        issuance.EventID,
				"eventType":      string(issuance.EventType),
				"format":         string(issuance.Format),
				"duplicate":      duplicate,
				"priorIssuances": prior,
			},
			IPAddress: cmd.IPAddress,
			UserAgent: cmd.UserAgent,
		})
	}

	if s.publisher == nil {
		return
	}
	messageID, err := s.publisher.PublishCertificateIssued(ctx, CertificateIssuedMessage{
		CertificateID:  issuance.ID,
		EventID:        issuance.EventID,
		EventType:      issuance.EventType,
		Format:         issuance.Format,
		RequesterID:    issuance.RequesterID,
		Duplicate:      duplicate,
		PriorIssuances: max(prior, 0),
		IssuedAt:       issuance.IssuedAt,
	})
	if err != nil {
		s.logger(ctx, "certificates.publish.failed", map[string]any{
			"certificateId": issuance.ID,
			"error":         err.Error(),
		})
		return
	}
	s.logger(ctx, "certificates.published", map[string]any{
		"certificateId": issuance.ID,
		"messageId":     messageID,
	})
}

func (s *certificateService) Open(ctx context.Context, certificateID string) (CertificateFile, error) {
	obj, err := s.find(ctx, certificateID)
	if err != nil {
		return CertificateFile{}, err
	}
	body, obj, err := s.store.Open(ctx, obj.Name)
	if err != nil {
		return CertificateFile{}, mapArtifactError(err)
	}
	return CertificateFile{Artifact: s.describe(certificateID, obj), Body: body}, nil
}

func (s *certificateService) Info(ctx context.Context, certificateID string) (CertificateArtifact, error) {
	obj, err := s.find(ctx, certificateID)
	if err != nil {
		return CertificateArtifact{}, err
	}
	return s.describe(certificateID, obj), nil
}

func (s *certificateService) ListForEvent(ctx context.Context, eventID string) ([]CertificateIssuance, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: eventId is required", ErrCertificateInvalidInput)
	}
	issuances, err := s.certificates.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, mapCertificateRepoError(err, ErrCertificateNotFound)
	}
	return issuances, nil
}

func (s *certificateService) find(ctx context.Context, certificateID string) (artifacts.Object, error) {
	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return artifacts.Object{}, fmt.Errorf("%w: certificate id is required", ErrCertificateNotFound)
	}
	obj, err := s.store.Find(ctx, certificateID, "."+string(domain.CertificateFormatPDF), "."+string(domain.CertificateFormatHTML))
	if err != nil {
		return artifacts.Object{}, mapArtifactError(err)
	}
	return obj, nil
}

// describe reports the issue time embedded in the certificate id as the creation time. Ids
// without one fall back to the file's modification time.
func (s *certificateService) describe(certificateID string, obj artifacts.Object) CertificateArtifact {
	artifact := artifactFromObject(strings.TrimSpace(certificateID), obj)
	artifact.CreatedAt = obj.ModTime
	if issued, ok := certificateIssuedAt(certificateID); ok {
		artifact.CreatedAt = issued
	}
	return artifact
}

func certificateIssuedAt(certificateID string) (time.Time, bool) {
	idx := strings.LastIndex(certificateID, "-")
	if idx < 0 {
		return time.Time{}, false
	}
	id, err := ulid.ParseStrict(certificateID[idx+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()).UTC(), true
}

func mapArtifactError(err error) error {
	switch {
	case errors.Is(err, artifacts.ErrNotFound), errors.Is(err, artifacts.ErrInvalidName):
		return fmt.Errorf("%w: %v", ErrCertificateNotFound, err)
	}
	return fmt.Errorf("certificate: artifact store: %w", err)
}

func mapCertificateRepoError(err error, notFound error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("certificate: repository unavailable: %w", err)
		}
	}
	return err
}

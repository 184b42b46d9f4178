package services

import (
	"context"
	"io"
	"time"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Event               = domain.Event
	User                = domain.User
	DateParts           = domain.DateParts
	CertificateData     = domain.CertificateData
	CertificateIssuance = domain.CertificateIssuance
	CertificateArtifact = domain.CertificateArtifact
	SystemHealthReport  = domain.SystemHealthReport
	AuditLogEntry       = domain.AuditLogEntry
)

// CertificateService issues certificates for registered events and serves the stored artifacts.
type CertificateService interface {
	Generate(ctx context.Context, cmd GenerateCertificateCommand) (GenerateCertificateResult, error)
	Open(ctx context.Context, certificateID string) (CertificateFile, error)
	Info(ctx context.Context, certificateID string) (CertificateArtifact, error)
	ListForEvent(ctx context.Context, eventID string) ([]CertificateIssuance, error)
}

// VerificationService answers public authenticity checks for issued certificates.
type VerificationService interface {
	Verify(ctx context.Context, cmd VerifyCertificateCommand) (VerificationResult, error)
}

// PrefillService derives autofill patches for a target form from a previously registered event.
type PrefillService interface {
	Prefill(ctx context.Context, cmd PrefillCommand) (AutofillResult, error)
}

// SystemService exposes operational metadata such as dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// AuditLogService centralizes immutable audit log persistence.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
}

// CertificateEventPublisher announces issued certificates to downstream consumers.
type CertificateEventPublisher interface {
	PublishCertificateIssued(ctx context.Context, message CertificateIssuedMessage) (string, error)
}

// GenerateCertificateCommand requests a new certificate for an event.
type GenerateCertificateCommand struct {
	EventID     string
	RequesterID string
	// VerificationImage is an optional data URL rendered in place of the generated QR code.
	VerificationImage string
	RequestID         string
	IPAddress         string
	UserAgent         string
}

// GenerateCertificateResult describes a freshly issued certificate.
type GenerateCertificateResult struct {
	CertificateID   string
	FileName        string
	Format          domain.CertificateFormat
	QRCodeDataURL   string
	QRPayload       domain.CertificateQRPayload
	CertificateData CertificateData
	DownloadPath    string
}

// CertificateFile is an open artifact. Callers must close Body.
type CertificateFile struct {
	Artifact CertificateArtifact
	Body     io.ReadCloser
}

// VerifyCertificateCommand identifies the certificate to verify and the optional QR signature.
type VerifyCertificateCommand struct {
	CertificateID string
	Signature     string
}

// VerificationResult is the public projection of an issued certificate.
type VerificationResult struct {
	CertificateID      string
	EventType          domain.EventType
	RegistrationNumber string
	IssuedDate         string
	Registrar          string
	Requester          string
	EventData          map[string]any
	// SignatureValid is nil when no signature was presented.
	SignatureValid *bool
}

// PrefillTarget names the form receiving a prefill patch.
type PrefillTarget string

const (
	PrefillTargetMarriage PrefillTarget = "marriage"
	PrefillTargetDeath    PrefillTarget = "death"
	PrefillTargetDivorce  PrefillTarget = "divorce"
)

// PrefillCommand requests a patch for Target sourced from SourceEventID.
type PrefillCommand struct {
	Target        PrefillTarget
	SourceEventID string
	// IDNumber selects the party of a marriage record.
	IDNumber string
	// Role selects wife or husband on a marriage form filled from a birth record.
	Role string
	// SpouseSlot selects spouse1 or spouse2 on a divorce form.
	SpouseSlot string
	Form       map[string]any
}

// AutofillResult is the outcome of a prefill request. Business-rule rejections are reported
// through ShouldAutofill and Error rather than a Go error.
type AutofillResult struct {
	ShouldAutofill bool
	Error          string
	Role           string
	Patch          map[string]any
	Merged         map[string]any
}

// CertificateIssuedEventType is the message type attribute for issuance notifications.
const CertificateIssuedEventType = "certificate.issued"

// CertificateIssuedMessage is published for every generated certificate.
type CertificateIssuedMessage struct {
	CertificateID  string                   `json:"certificateId"`
	EventID        string                   `json:"eventId"`
	EventType      domain.EventType         `json:"eventType"`
	Format         domain.CertificateFormat `json:"format"`
	RequesterID    string                   `json:"requesterId"`
	Duplicate      bool                     `json:"duplicate"`
	PriorIssuances int                      `json:"priorIssuances"`
	IssuedAt       time.Time                `json:"issuedAt"`
}

// AuditLogRecord captures the information required to persist an audit log entry.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	SensitiveMetadataKeys []string
	IPAddress             string
	UserAgent             string
}

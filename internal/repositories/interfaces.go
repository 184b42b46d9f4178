package repositories

import (
	"context"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
)

// RepositoryError categorises persistence failures for services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// EventRepository reads vital events owned by the registration workflow.
type EventRepository interface {
	// FindByID returns a RepositoryError with IsNotFound when the event does not exist.
	FindByID(ctx context.Context, eventID string) (domain.Event, error)
}

// UserRepository reads registry accounts.
type UserRepository interface {
	// FindByID returns a RepositoryError with IsNotFound when the user does not exist.
	FindByID(ctx context.Context, userID string) (domain.User, error)
}

// CertificateRepository is the write-once issuance index.
type CertificateRepository interface {
	// Insert fails with IsConflict when the certificate id already exists.
	Insert(ctx context.Context, issuance domain.CertificateIssuance) error
	FindByID(ctx context.Context, certificateID string) (domain.CertificateIssuance, error)
	// ListByEvent returns issuances for eventID ordered newest first.
	ListByEvent(ctx context.Context, eventID string) ([]domain.CertificateIssuance, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}

// HealthRepository reports the status of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

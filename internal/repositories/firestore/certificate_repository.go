package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	pfirestore "github.com/Yonad91/vital-events-sub002/internal/platform/firestore"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

const certificateCollection = "certificates"

type certificateDocument struct {
	EventID            string    `firestore:"eventId"`
	EventType          string    `firestore:"eventType"`
	RegistrationNumber string    `firestore:"registrationNumber"`
	RequesterID        string    `firestore:"requesterId"`
	RequesterName      string    `firestore:"requesterName"`
	RegistrarName      string    `firestore:"registrarName"`
	Format             string    `firestore:"format"`
	FileName           string    `firestore:"fileName"`
	Signature          string    `firestore:"signature,omitempty"`
	IssuedAt           time.Time `firestore:"issuedAt"`
}

// CertificateRepository stores the issuance index in the certificates collection, one document
// per certificate id.
type CertificateRepository struct {
	certificates *pfirestore.Collection[certificateDocument]
}

var _ repositories.CertificateRepository = (*CertificateRepository)(nil)

// NewCertificateRepository constructs a Firestore-backed issuance index.
func NewCertificateRepository(provider *pfirestore.Provider) (*CertificateRepository, error) {
	if provider == nil {
		return nil, errors.New("certificate repository requires firestore provider")
	}
	return &CertificateRepository{certificates: pfirestore.NewCollection[certificateDocument](provider, certificateCollection)}, nil
}

// Insert creates the issuance document; an existing id yields a conflict.
func (r *CertificateRepository) Insert(ctx context.Context, issuance domain.CertificateIssuance) error {
	return r.certificates.Create(ctx, issuance.ID, certificateDocument{
		EventID:            issuance.EventID,
		EventType:          string(issuance.EventType),
		RegistrationNumber: issuance.RegistrationNumber,
		RequesterID:        issuance.RequesterID,
		RequesterName:      issuance.RequesterName,
		RegistrarName:      issuance.RegistrarName,
		Format:             string(issuance.Format),
		FileName:           issuance.FileName,
		Signature:          issuance.Signature,
		IssuedAt:           issuance.IssuedAt.UTC(),
	})
}

// FindByID loads one issuance.
func (r *CertificateRepository) FindByID(ctx context.Context, certificateID string) (domain.CertificateIssuance, error) {
	doc, err := r.certificates.Get(ctx, certificateID)
	if err != nil {
		return domain.CertificateIssuance{}, err
	}
	return toIssuance(certificateID, doc), nil
}

// ListByEvent returns every issuance for eventID, newest first.
func (r *CertificateRepository) ListByEvent(ctx context.Context, eventID string) ([]domain.CertificateIssuance, error) {
	var out []domain.CertificateIssuance
	err := r.certificates.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("eventId", "==", eventID).OrderBy("issuedAt", firestore.Desc)
	}, func(id string, doc certificateDocument) {
		out = append(out, toIssuance(id, doc))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toIssuance(id string, doc certificateDocument) domain.CertificateIssuance {
	return domain.CertificateIssuance{
		ID:                 id,
		EventID:            doc.EventID,
		EventType:          domain.EventType(doc.EventType),
		RegistrationNumber: doc.RegistrationNumber,
		RequesterID:        doc.RequesterID,
		RequesterName:      doc.RequesterName,
		RegistrarName:      doc.RegistrarName,
		Format:             domain.CertificateFormat(doc.Format),
		FileName:           doc.FileName,
		Signature:          doc.Signature,
		IssuedAt:           doc.IssuedAt,
	}
}

// Package firestore implements the registry repositories on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	pfirestore "github.com/Yonad91/vital-events-sub002/internal/platform/firestore"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

const eventCollection = "events"

type eventDocument struct {
	Type           string         `firestore:"type"`
	RegistrationID string         `firestore:"registrationId"`
	Status         string         `firestore:"status"`
	Data           map[string]any `firestore:"data"`
	RegistrarID    string         `firestore:"registrarId,omitempty"`
	SubmittedBy    string         `firestore:"submittedBy,omitempty"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
}

// EventRepository reads vital events from the events collection.
type EventRepository struct {
	events *pfirestore.Collection[eventDocument]
}

var _ repositories.EventRepository = (*EventRepository)(nil)

// NewEventRepository constructs a Firestore-backed event repository.
func NewEventRepository(provider *pfirestore.Provider) (*EventRepository, error) {
	if provider == nil {
		return nil, errors.New("event repository requires firestore provider")
	}
	return &EventRepository{events: pfirestore.NewCollection[eventDocument](provider, eventCollection)}, nil
}

// FindByID loads an event by document ID.
func (r *EventRepository) FindByID(ctx context.Context, eventID string) (domain.Event, error) {
	doc, err := r.events.Get(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}
	return domain.Event{
		ID:             eventID,
		Type:           domain.EventType(doc.Type),
		RegistrationID: doc.RegistrationID,
		Status:         domain.EventStatus(doc.Status),
		Data:           data,
		RegistrarID:    doc.RegistrarID,
		SubmittedBy:    doc.SubmittedBy,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

// Ping confirms the events collection is reachable.
func (r *EventRepository) Ping(ctx context.Context) error {
	return r.events.Ping(ctx)
}

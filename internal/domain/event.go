// Package domain holds the registry's core types shared by services, repositories and handlers.
package domain

import "time"

// EventType identifies the kind of vital event.
type EventType string

const (
	EventTypeBirth    EventType = "birth"
	EventTypeMarriage EventType = "marriage"
	EventTypeDeath    EventType = "death"
	EventTypeDivorce  EventType = "divorce"
)

// Valid reports whether t is one of the four registered event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeBirth, EventTypeMarriage, EventTypeDeath, EventTypeDivorce:
		return true
	}
	return false
}

// EventStatus tracks the registration workflow.
type EventStatus string

const (
	EventStatusDraft    EventStatus = "draft"
	EventStatusPending  EventStatus = "pending"
	EventStatusApproved EventStatus = "approved"
	EventStatusRejected EventStatus = "rejected"
)

// Event is a registered vital record. Data is a sparse bilingual field bag whose values are
// strings, numbers, booleans, time.Time or {year, month, day} maps.
type Event struct {
	ID             string
	Type           EventType
	RegistrationID string
	Status         EventStatus
	Data           map[string]any
	RegistrarID    string
	SubmittedBy    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// User is a registry account referenced by events and certificate requests.
type User struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// DisplayName returns the user's name, or the email when no name is set.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

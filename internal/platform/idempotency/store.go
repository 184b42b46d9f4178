// Package idempotency replays the first response recorded for a client supplied Idempotency-Key,
// so a retried certificate request returns the certificate already issued instead of a new one.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultTTL is how long a recorded response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and must run the request.
	StateNew State = iota
	// StateCompleted means a response was recorded and should be replayed.
	StateCompleted
	// StatePending means another request holding the key is still running.
	StatePending
)

// Record is the stored response for one key.
type Record struct {
	Key         string
	Fingerprint string
	Completed   bool
	Status      int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists key reservations and their recorded responses.
type Store interface {
	// Reserve claims key for fingerprint, or reports the existing claim. Expired claims are
	// replaced.
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	// Complete records the response for a key reserved with fingerprint.
	Complete(ctx context.Context, key, fingerprint string, record Record) error
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key, fingerprint string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for a different request")

func documentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func expired(record Record, now time.Time) bool {
	return !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyStatus is the lifecycle status of an IdempotencyRecord.
type IdempotencyStatus string

const (
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyCompleted  IdempotencyStatus = "completed"
	IdempotencyFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord is claimed by the first writer for a given
// idempotency_key and records the terminal outcome of the operation it
// guards.
type IdempotencyRecord struct {
	ID            uuid.UUID
	Key           string
	ClientID      string
	OperationType string
	Status        IdempotencyStatus
	RequestHash   string
	ResponseData  []byte
	ErrorMessage  string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	CompletedAt   *time.Time
}

// Terminal reports whether the record has reached Completed or Failed and
// may no longer change.
func (r *IdempotencyRecord) Terminal() bool {
	return r.Status == IdempotencyCompleted || r.Status == IdempotencyFailed
}

// Expired reports whether the record's TTL has elapsed as of now.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

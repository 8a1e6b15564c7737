// Package events defines the post-commit notification sink (spec §4.7/§6):
// a fire-and-observe channel the ledger kernel notifies after every durable
// state change, without ever blocking a posting on delivery confirmation.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies the entity an Event describes.
type Kind string

const (
	KindTransaction Kind = "transaction"
	KindBatch       Kind = "batch"
	KindNetting     Kind = "netting"
	KindSettlement  Kind = "settlement"
)

// Event is the typed payload the sink contract in spec §6 requires: entity
// id, new status, and a kind-specific body.
type Event struct {
	Kind       Kind
	EntityID   uuid.UUID
	Status     string
	OccurredAt time.Time
	Payload    any
}

// Sink is the fire-and-observe publication contract. Implementations must
// not block the caller on delivery confirmation; a Sink that cannot reach
// its transport should log and return nil, the way the teacher's
// EventProducerFallback degrades RabbitMQ outages.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// TransactionEvent is the Payload for a KindTransaction Event.
type TransactionEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	ExternalID    string    `json:"external_id"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
}

// BatchEvent is the Payload for a KindBatch Event.
type BatchEvent struct {
	BatchID           uuid.UUID `json:"batch_id"`
	Status            string    `json:"status"`
	TotalTransactions int       `json:"total_transactions"`
	Currency          string    `json:"currency"`
}

// NettingEvent is the Payload for a KindNetting Event.
type NettingEvent struct {
	BatchID              uuid.UUID `json:"batch_id"`
	Currency             string    `json:"currency"`
	ParticipantCount     int       `json:"participant_count"`
	InstructionCount     int       `json:"instruction_count"`
	NetVolume            string    `json:"net_volume"`
}

// SettlementEvent is the Payload for a KindSettlement Event: one instruction
// produced by the netting calculator.
type SettlementEvent struct {
	BatchID    uuid.UUID `json:"batch_id"`
	FromParty  uuid.UUID `json:"from_party"`
	ToParty    uuid.UUID `json:"to_party"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
}

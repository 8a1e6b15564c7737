// Package netting implements the bilateral and multilateral netting
// calculators of spec §4.5: reducing a batch's settlement movements to a
// minimal set of net positions and settlement instructions.
package netting

import (
	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/money"
)

// Instruction is one settlement movement the calculator produces: pay Amount
// from FromParticipant to ToParticipant.
type Instruction struct {
	BatchID         uuid.UUID
	FromParticipant uuid.UUID
	ToParticipant   uuid.UUID
	Amount          money.Amount
	Currency        money.Currency
}

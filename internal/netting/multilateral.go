package netting

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/money"
)

// MultilateralResult is the outcome of running multilateral netting over a
// batch's transactions in one currency: one NettingPosition per participant
// plus the minimal instruction set that settles every position to zero.
type MultilateralResult struct {
	Positions    []domain.NettingPosition
	Instructions []Instruction
	GrossVolume  money.Amount
	NetVolume    money.Amount
}

// CalculateMultilateral builds a domain.NettingPosition per participant
// (source accounts pay, destination accounts receive) and reduces the
// resulting payer/receiver sets to settlement instructions via a greedy
// largest-payer-to-largest-receiver match, following original_source's
// calculate_multilateral_netting and generate_multilateral_instructions.
func CalculateMultilateral(batchID uuid.UUID, currency money.Currency, txns []domain.Transaction, now time.Time) (MultilateralResult, error) {
	positions := make(map[uuid.UUID]*domain.NettingPosition)
	order := make([]uuid.UUID, 0)

	ensure := func(id uuid.UUID) *domain.NettingPosition {
		pos, ok := positions[id]
		if !ok {
			pos = &domain.NettingPosition{
				BatchID:         batchID,
				ParticipantID:   id,
				Currency:        currency,
				GrossReceivable: money.Zero,
				GrossPayable:    money.Zero,
				NetPosition:     money.Zero,
				CreatedAt:       now,
			}
			positions[id] = pos
			order = append(order, id)
		}
		return pos
	}

	grossVolume := money.Zero
	for _, txn := range txns {
		if txn.Status != domain.TransactionSettled || txn.Currency != currency {
			continue
		}
		payer := ensure(txn.SourceAccountID)
		receiver := ensure(txn.DestinationAccountID)

		var err error
		payer.GrossPayable, err = payer.GrossPayable.Add(txn.Amount)
		if err != nil {
			return MultilateralResult{}, fmt.Errorf("accumulate payable: %w", err)
		}
		payer.TransactionCount++
		receiver.GrossReceivable, err = receiver.GrossReceivable.Add(txn.Amount)
		if err != nil {
			return MultilateralResult{}, fmt.Errorf("accumulate receivable: %w", err)
		}
		receiver.TransactionCount++

		grossVolume, err = grossVolume.Add(txn.Amount)
		if err != nil {
			return MultilateralResult{}, err
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].String() < order[j].String() })

	var payers, receivers []*domain.NettingPosition
	for _, id := range order {
		pos := positions[id]
		net, err := pos.GrossReceivable.Sub(pos.GrossPayable)
		if err != nil {
			return MultilateralResult{}, fmt.Errorf("net position for %s: %w", id, err)
		}
		pos.NetPosition = net
		switch {
		case net.IsPositive():
			receivers = append(receivers, pos)
		case net.IsNegative():
			payers = append(payers, pos)
		}
	}

	// Payers ascending by net position (most negative, i.e. largest payer,
	// first); ties broken by ascending participant ID.
	sort.Slice(payers, func(i, j int) bool {
		if c := payers[i].NetPosition.Cmp(payers[j].NetPosition); c != 0 {
			return c < 0
		}
		return payers[i].ParticipantID.String() < payers[j].ParticipantID.String()
	})
	// Receivers descending by net position (largest receiver first); ties
	// broken by ascending participant ID.
	sort.Slice(receivers, func(i, j int) bool {
		if c := receivers[i].NetPosition.Cmp(receivers[j].NetPosition); c != 0 {
			return c > 0
		}
		return receivers[i].ParticipantID.String() < receivers[j].ParticipantID.String()
	})

	remaining := make(map[uuid.UUID]money.Amount, len(payers)+len(receivers))
	for _, p := range payers {
		remaining[p.ParticipantID] = p.NetPosition.Abs()
	}
	for _, r := range receivers {
		remaining[r.ParticipantID] = r.NetPosition
	}

	instructions := make([]Instruction, 0)
	netVolume := money.Zero
	pi, ri := 0, 0
	for pi < len(payers) && ri < len(receivers) {
		payer := payers[pi]
		receiver := receivers[ri]
		payerLeft := remaining[payer.ParticipantID]
		receiverLeft := remaining[receiver.ParticipantID]
		if payerLeft.IsZero() {
			pi++
			continue
		}
		if receiverLeft.IsZero() {
			ri++
			continue
		}
		transfer := payerLeft
		if receiverLeft.Cmp(payerLeft) < 0 {
			transfer = receiverLeft
		}
		instructions = append(instructions, Instruction{
			BatchID:         batchID,
			FromParticipant: payer.ParticipantID,
			ToParticipant:   receiver.ParticipantID,
			Amount:          transfer,
			Currency:        currency,
		})
		var err error
		netVolume, err = netVolume.Add(transfer)
		if err != nil {
			return MultilateralResult{}, err
		}
		remaining[payer.ParticipantID], err = payerLeft.Sub(transfer)
		if err != nil {
			return MultilateralResult{}, err
		}
		remaining[receiver.ParticipantID], err = receiverLeft.Sub(transfer)
		if err != nil {
			return MultilateralResult{}, err
		}
	}

	final := make([]domain.NettingPosition, 0, len(order))
	for _, id := range order {
		final = append(final, *positions[id])
	}
	return MultilateralResult{Positions: final, Instructions: instructions, GrossVolume: grossVolume, NetVolume: netVolume}, nil
}

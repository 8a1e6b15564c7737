package netting

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/money"
)

// Direction is the net flow of a BilateralPair.
type Direction string

const (
	AToB     Direction = "a_to_b"
	BToA     Direction = "b_to_a"
	Balanced Direction = "balanced"
)

// BilateralPair accumulates the gross flow between two participants in one
// currency and reduces it to a single net direction and amount, mirroring
// original_source's BilateralPair::add_a_to_b/add_b_to_a/recalculate.
type BilateralPair struct {
	ParticipantA     uuid.UUID
	ParticipantB     uuid.UUID
	Currency         money.Currency
	AToBGross        money.Amount
	BToAGross        money.Amount
	NetAmount        money.Amount
	Direction        Direction
	TransactionCount int
}

// GrossVolume is the total money that moved between A and B before netting.
func (p BilateralPair) GrossVolume() (money.Amount, error) {
	return p.AToBGross.Add(p.BToAGross)
}

func (p *BilateralPair) recalculate() error {
	switch p.AToBGross.Cmp(p.BToAGross) {
	case 0:
		p.Direction = Balanced
		p.NetAmount = money.Zero
	case 1:
		diff, err := p.AToBGross.Sub(p.BToAGross)
		if err != nil {
			return err
		}
		p.Direction = AToB
		p.NetAmount = diff
	default:
		diff, err := p.BToAGross.Sub(p.AToBGross)
		if err != nil {
			return err
		}
		p.Direction = BToA
		p.NetAmount = diff
	}
	return nil
}

// normalizePairKey returns the two participants in ascending UUID order plus
// whether the original (from, to) flow runs in that ascending direction, the
// same canonicalisation original_source uses so A-to-B and B-to-A movements
// between the same pair accumulate into one BilateralPair regardless of
// which account initiated which transaction.
func normalizePairKey(from, to uuid.UUID) (a, b uuid.UUID, fromIsA bool) {
	if from.String() <= to.String() {
		return from, to, true
	}
	return to, from, false
}

// BilateralResult is the outcome of running bilateral netting over a batch's
// transactions in one currency.
type BilateralResult struct {
	Pairs        []BilateralPair
	Instructions []Instruction
	GrossVolume  money.Amount
	NetVolume    money.Amount
}

// CalculateBilateral groups txns into per-pair BilateralPairs and emits one
// settlement Instruction per pair whose net direction is not Balanced. Only
// Settled transactions in currency are considered.
func CalculateBilateral(batchID uuid.UUID, currency money.Currency, txns []domain.Transaction) (BilateralResult, error) {
	pairs := make(map[string]*BilateralPair)
	order := make([]string, 0)

	for _, txn := range txns {
		if txn.Status != domain.TransactionSettled || txn.Currency != currency {
			continue
		}
		a, b, fromIsA := normalizePairKey(txn.SourceAccountID, txn.DestinationAccountID)
		key := a.String() + ":" + b.String()
		pair, ok := pairs[key]
		if !ok {
			pair = &BilateralPair{ParticipantA: a, ParticipantB: b, Currency: currency, AToBGross: money.Zero, BToAGross: money.Zero}
			pairs[key] = pair
			order = append(order, key)
		}
		var err error
		if fromIsA {
			pair.AToBGross, err = pair.AToBGross.Add(txn.Amount)
		} else {
			pair.BToAGross, err = pair.BToAGross.Add(txn.Amount)
		}
		if err != nil {
			return BilateralResult{}, fmt.Errorf("accumulate pair %s: %w", key, err)
		}
		pair.TransactionCount++
	}

	result := BilateralResult{GrossVolume: money.Zero, NetVolume: money.Zero}
	sort.Strings(order)
	for _, key := range order {
		pair := pairs[key]
		if err := pair.recalculate(); err != nil {
			return BilateralResult{}, err
		}
		result.Pairs = append(result.Pairs, *pair)

		gross, err := pair.GrossVolume()
		if err != nil {
			return BilateralResult{}, err
		}
		result.GrossVolume, err = result.GrossVolume.Add(gross)
		if err != nil {
			return BilateralResult{}, err
		}

		if pair.Direction == Balanced {
			continue
		}
		result.NetVolume, err = result.NetVolume.Add(pair.NetAmount)
		if err != nil {
			return BilateralResult{}, err
		}
		instr := Instruction{BatchID: batchID, Amount: pair.NetAmount, Currency: currency}
		if pair.Direction == AToB {
			instr.FromParticipant, instr.ToParticipant = pair.ParticipantA, pair.ParticipantB
		} else {
			instr.FromParticipant, instr.ToParticipant = pair.ParticipantB, pair.ParticipantA
		}
		result.Instructions = append(result.Instructions, instr)
	}
	return result, nil
}

package netting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/transfa/ledger-kernel/internal/config"
	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/money"
)

var decimalHundred = decimal.NewFromInt(100)

// Report summarises one batch's netting run in one currency: the reduction
// in settlement volume the calculator achieved, per spec §4.5's metrics
// (gross_volume, net_volume, reduction, efficiency).
type Report struct {
	BatchID       uuid.UUID
	Currency      money.Currency
	Mode          config.NettingMode
	GeneratedAt   time.Time
	Instructions  []Instruction
	Positions     []domain.NettingPosition
	Pairs         []BilateralPair
	GrossVolume   money.Amount
	NetVolume     money.Amount
	Reduction     money.Amount
	EfficiencyPct float64
}

// Calculate runs the netting algorithm named by mode over txns and returns
// the resulting Report. Bilateral mode is grounded on
// original_source's calculate_bilateral_netting/generate_bilateral_instructions;
// multilateral mode on calculate_multilateral_netting/
// generate_multilateral_instructions.
func Calculate(batchID uuid.UUID, currency money.Currency, mode config.NettingMode, txns []domain.Transaction, now time.Time) (Report, error) {
	report := Report{BatchID: batchID, Currency: currency, Mode: mode, GeneratedAt: now}

	runBilateral := mode == config.NettingBilateral || mode == config.NettingBoth
	runMultilateral := mode == config.NettingMultilateral || mode == config.NettingBoth

	if runBilateral {
		result, err := CalculateBilateral(batchID, currency, txns)
		if err != nil {
			return Report{}, err
		}
		report.Pairs = result.Pairs
		if !runMultilateral {
			report.Instructions = result.Instructions
			report.GrossVolume = result.GrossVolume
			report.NetVolume = result.NetVolume
		}
	}
	if runMultilateral {
		// Multilateral netting settles at least as much volume as bilateral
		// (its positions cancel offsetting flows across the whole
		// participant graph, not just pairwise), so in NettingBoth mode its
		// instructions are the ones actually settled; the bilateral pairs
		// above remain in the report for comparison.
		result, err := CalculateMultilateral(batchID, currency, txns, now)
		if err != nil {
			return Report{}, err
		}
		report.Instructions = result.Instructions
		report.Positions = result.Positions
		report.GrossVolume = result.GrossVolume
		report.NetVolume = result.NetVolume
	}

	reduction, err := report.GrossVolume.Sub(report.NetVolume)
	if err != nil {
		return Report{}, err
	}
	report.Reduction = reduction

	if report.GrossVolume.IsZero() {
		report.EfficiencyPct = 0
	} else {
		report.EfficiencyPct, _ = reduction.Decimal().Div(report.GrossVolume.Decimal()).Mul(decimalHundred).Float64()
	}
	return report, nil
}

package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/config"
	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/events"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
	"github.com/transfa/ledger-kernel/internal/netting"
	"github.com/transfa/ledger-kernel/internal/store"
)

// Service implements batch assignment and cut-off processing. Grounded on
// original_source's assign_transaction_to_batch and process_batch_internal,
// with one deliberate divergence spec §4.4 requires: any error while
// processing a batch fails the whole batch without mutating the
// transactions it holds, rather than the original's per-transaction partial
// completion.
type Service struct {
	store             store.Store
	sink              events.Sink
	logger            *slog.Logger
	window            config.SettlementWindow
	microBatchMinutes int
	nettingMode       config.NettingMode
}

// NewService constructs a Service.
func NewService(st store.Store, sink events.Sink, logger *slog.Logger, window config.SettlementWindow, microBatchMinutes int, mode config.NettingMode) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.NewNoopSink(logger)
	}
	return &Service{store: st, sink: sink, logger: logger, window: window, microBatchMinutes: microBatchMinutes, nettingMode: mode}
}

// AssignSettledTransaction implements spec §4.4's assignment rule: find or
// create the unique Pending batch for (currency, settlement_date, window),
// then atomically link the transaction to it and add its amounts to the
// batch's running totals. Only Settled transactions may be assigned.
func (s *Service) AssignSettledTransaction(ctx context.Context, txn domain.Transaction) error {
	if txn.Status != domain.TransactionSettled {
		return ledgererr.Wrapf(ledgererr.ErrIllegalStateTransition, "transaction %s is %s, not settled", txn.ID, txn.Status)
	}

	uow, err := s.store.BeginSerializable(ctx)
	if err != nil {
		return fmt.Errorf("begin batch assignment: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx)
		}
	}()

	now := time.Now()
	settlementDate := SettlementDate(now)
	cutOff := CutOffTime(s.window, now, s.microBatchMinutes)

	existing, err := uow.GetPendingBatchForWindow(ctx, txn.Currency, settlementDate, cutOff)
	if err != nil {
		return fmt.Errorf("find pending batch: %w", err)
	}
	var batchID uuid.UUID
	if existing != nil {
		batchID = existing.ID
	} else {
		batchID = uuid.New()
		newBatch := domain.SettlementBatch{
			ID:             batchID,
			Status:         domain.BatchPending,
			SettlementDate: settlementDate,
			CutOffTime:     cutOff,
			Currency:       txn.Currency,
			GrossAmount:    money.Zero,
			NetAmount:      money.Zero,
			FeeAmount:      money.Zero,
			CreatedAt:      now,
		}
		if err := uow.CreateBatch(ctx, newBatch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
	}

	if err := uow.AssignTransactionToBatch(ctx, txn.ID, batchID); err != nil {
		return fmt.Errorf("assign transaction to batch: %w", err)
	}
	if err := uow.IncrementBatchTotals(ctx, batchID, txn.Amount, txn.FeeAmount); err != nil {
		return fmt.Errorf("increment batch totals: %w", err)
	}

	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch assignment: %w", err)
	}
	committed = true
	return nil
}

// ProcessDueBatches finds every Pending batch whose cut-off has passed and
// processes each in turn. A failure processing one batch is logged and does
// not stop the others.
func (s *Service) ProcessDueBatches(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListPendingBatchesDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due batches: %w", err)
	}
	processed := 0
	for _, b := range due {
		if err := s.ProcessBatch(ctx, b.ID); err != nil {
			s.logger.Error("batch processing failed", "batch_id", b.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// ProcessBatch runs the cut-off pipeline for one batch: Pending->Processing,
// netting calculation over its transactions, write netting positions,
// Processing->Completed. Any error after the batch has entered Processing
// transitions it to Failed instead, leaving every assigned transaction
// untouched; an error while entering Processing is returned with the batch's
// status unchanged.
func (s *Service) ProcessBatch(ctx context.Context, batchID uuid.UUID) error {
	batch, err := s.beginProcessing(ctx, batchID)
	if err != nil {
		return err
	}

	txns, err := s.store.ListBatchTransactions(ctx, batchID)
	if err != nil {
		s.failBatch(ctx, batchID, err)
		return fmt.Errorf("list batch transactions: %w", err)
	}

	report, err := netting.Calculate(batchID, batch.Currency, s.nettingMode, txns, time.Now())
	if err != nil {
		s.failBatch(ctx, batchID, err)
		return fmt.Errorf("calculate netting: %w", err)
	}

	if err := s.completeProcessing(ctx, batchID, report); err != nil {
		s.failBatch(ctx, batchID, err)
		return err
	}

	s.emitBatch(ctx, batchID, domain.BatchCompleted, len(txns), batch.Currency)
	s.emitNetting(ctx, report)
	return nil
}

func (s *Service) beginProcessing(ctx context.Context, batchID uuid.UUID) (domain.SettlementBatch, error) {
	uow, err := s.store.BeginSerializable(ctx)
	if err != nil {
		return domain.SettlementBatch{}, fmt.Errorf("begin batch processing: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx)
		}
	}()

	batch, err := uow.GetBatchForUpdate(ctx, batchID)
	if err != nil {
		return domain.SettlementBatch{}, fmt.Errorf("lock batch: %w", err)
	}
	if batch == nil {
		return domain.SettlementBatch{}, ledgererr.Wrapf(ledgererr.ErrUnknownAccount, "batch %s not found", batchID)
	}
	sm := domain.BatchStateMachine{}
	if _, err := sm.Transition(batch.Status, domain.BatchProcessing); err != nil {
		return domain.SettlementBatch{}, err
	}
	if err := uow.UpdateBatchStatus(ctx, batchID, domain.BatchProcessing, nil); err != nil {
		return domain.SettlementBatch{}, fmt.Errorf("mark batch processing: %w", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return domain.SettlementBatch{}, fmt.Errorf("commit processing transition: %w", err)
	}
	committed = true
	return *batch, nil
}

func (s *Service) completeProcessing(ctx context.Context, batchID uuid.UUID, report netting.Report) error {
	uow, err := s.store.BeginSerializable(ctx)
	if err != nil {
		return fmt.Errorf("begin batch completion: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx)
		}
	}()

	for _, pos := range report.Positions {
		if err := uow.InsertNettingPosition(ctx, pos); err != nil {
			return fmt.Errorf("insert netting position: %w", err)
		}
	}
	if err := uow.UpdateBatchNetAmount(ctx, batchID, report.NetVolume); err != nil {
		return fmt.Errorf("update batch net amount: %w", err)
	}
	now := time.Now()
	if err := uow.UpdateBatchStatus(ctx, batchID, domain.BatchCompleted, &now); err != nil {
		return fmt.Errorf("mark batch completed: %w", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch completion: %w", err)
	}
	committed = true
	return nil
}

// failBatch transitions batchID to Failed. It swallows its own errors beyond
// logging: this runs on an already-failing path and must not mask the
// original error the caller is about to return.
func (s *Service) failBatch(ctx context.Context, batchID uuid.UUID, cause error) {
	uow, err := s.store.BeginSerializable(ctx)
	if err != nil {
		s.logger.Error("failed to open transaction while failing batch", "batch_id", batchID, "cause", cause, "error", err)
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx)
		}
	}()
	if err := uow.UpdateBatchStatus(ctx, batchID, domain.BatchFailed, nil); err != nil {
		s.logger.Error("failed to mark batch failed", "batch_id", batchID, "cause", cause, "error", err)
		return
	}
	if err := uow.Commit(ctx); err != nil {
		s.logger.Error("failed to commit batch failure", "batch_id", batchID, "cause", cause, "error", err)
		return
	}
	committed = true
	s.emitBatch(ctx, batchID, domain.BatchFailed, 0, "")
}

func (s *Service) emitBatch(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, totalTransactions int, currency money.Currency) {
	if err := s.sink.Publish(ctx, events.Event{
		Kind:       events.KindBatch,
		EntityID:   batchID,
		Status:     string(status),
		OccurredAt: time.Now(),
		Payload: events.BatchEvent{
			BatchID:           batchID,
			Status:            string(status),
			TotalTransactions: totalTransactions,
			Currency:          string(currency),
		},
	}); err != nil {
		s.logger.Warn("batch event publish failed", "batch_id", batchID, "error", err)
	}
}

func (s *Service) emitNetting(ctx context.Context, report netting.Report) {
	participants := len(report.Positions)
	if participants == 0 {
		participants = 2 * len(report.Pairs)
	}
	if err := s.sink.Publish(ctx, events.Event{
		Kind:       events.KindNetting,
		EntityID:   report.BatchID,
		Status:     "completed",
		OccurredAt: time.Now(),
		Payload: events.NettingEvent{
			BatchID:          report.BatchID,
			Currency:         string(report.Currency),
			ParticipantCount: participants,
			InstructionCount: len(report.Instructions),
			NetVolume:        report.NetVolume.String(),
		},
	}); err != nil {
		s.logger.Warn("netting event publish failed", "batch_id", report.BatchID, "error", err)
	}
	for _, instr := range report.Instructions {
		if err := s.sink.Publish(ctx, events.Event{
			Kind:       events.KindSettlement,
			EntityID:   report.BatchID,
			Status:     "generated",
			OccurredAt: time.Now(),
			Payload: events.SettlementEvent{
				BatchID:   report.BatchID,
				FromParty: instr.FromParticipant,
				ToParty:   instr.ToParticipant,
				Amount:    instr.Amount.String(),
				Currency:  string(instr.Currency),
			},
		}); err != nil {
			s.logger.Warn("settlement instruction event publish failed", "batch_id", report.BatchID, "error", err)
		}
	}
}

package posting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
)

// Reverse implements spec §4.2's reversal protocol: a mirror transaction
// (Credit source, Debit destination — the exact sign-flip of the original)
// linked to the original via metadata. The original's status becomes
// Reversed only when the mirror posting commits; double reversal is
// rejected up front.
func (e *Engine) Reverse(ctx context.Context, originalID uuid.UUID) (domain.Transaction, error) {
	original, err := e.store.GetTransaction(ctx, originalID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load original transaction: %w", err)
	}
	if original == nil {
		return domain.Transaction{}, ledgererr.Wrapf(ledgererr.ErrUnknownAccount, "transaction %s not found", originalID)
	}
	sm := domain.TransactionStateMachine{}
	if !sm.CanTransition(original.Status, domain.TransactionReversed) {
		if original.Status == domain.TransactionReversed {
			return domain.Transaction{}, ledgererr.Wrapf(ledgererr.ErrDoubleReversal, "transaction %s already reversed", originalID)
		}
		return domain.Transaction{}, ledgererr.Wrapf(ledgererr.ErrIllegalStateTransition, "transaction %s in status %s cannot be reversed", originalID, original.Status)
	}

	mirrorReq := Request{
		ExternalID:           original.ExternalID + "-reversal",
		IdempotencyKey:       original.IdempotencyKey + ":reversal",
		Type:                 original.Type,
		SourceAccountID:      original.DestinationAccountID,
		DestinationAccountID: original.SourceAccountID,
		Amount:               original.Amount,
		FeeAmount:            money.Zero,
		Currency:             original.Currency,
		Metadata:             mergeReversalMetadata(original.Metadata, originalID),
	}

	mirror, err := e.Post(ctx, mirrorReq)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("post reversal: %w", err)
	}

	uow, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("begin reversal status update: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx)
		}
	}()
	if err := uow.UpdateTransactionStatus(ctx, originalID, domain.TransactionReversed, nil); err != nil {
		return domain.Transaction{}, fmt.Errorf("mark original reversed: %w", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("commit reversal status update: %w", err)
	}
	committed = true

	e.emit(ctx, mirror)
	return mirror, nil
}

func mergeReversalMetadata(original map[string]any, originalID uuid.UUID) map[string]any {
	meta := make(map[string]any, len(original)+1)
	for k, v := range original {
		meta[k] = v
	}
	meta["reverses_transaction_id"] = originalID.String()
	return meta
}

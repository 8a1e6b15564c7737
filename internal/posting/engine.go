package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/events"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
	"github.com/transfa/ledger-kernel/internal/store"
)

// Engine implements the validation pipeline and atomic posting protocol of
// spec §4.2. It does not itself handle idempotency; callers pair it with
// internal/idempotency.Manager the way the original engine's caller checked
// find_by_idempotency_key before ever reaching execute_transaction.
type Engine struct {
	store       store.Store
	sink        events.Sink
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

// NewEngine constructs an Engine. maxAttempts <= 0 defaults to 3 (spec §4.2
// step 6's "configurable, default 3"); backoff <= 0 defaults to 50ms.
func NewEngine(st store.Store, sink events.Sink, logger *slog.Logger, maxAttempts int, backoff time.Duration) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.NewNoopSink(logger)
	}
	return &Engine{store: st, sink: sink, logger: logger, maxAttempts: maxAttempts, backoff: backoff}
}

// Post validates and posts req, returning the committed Transaction. On
// InsufficientFunds the returned Transaction has Status Failed and a non-nil
// error; on any other validation failure no Transaction is persisted.
func (e *Engine) Post(ctx context.Context, req Request) (domain.Transaction, error) {
	if err := validateFields(req); err != nil {
		return domain.Transaction{}, err
	}

	source, err := e.store.GetAccount(ctx, req.SourceAccountID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load source account: %w", err)
	}
	dest, err := e.store.GetAccount(ctx, req.DestinationAccountID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load destination account: %w", err)
	}
	if err := validateAccounts(source, dest, req.Type); err != nil {
		return domain.Transaction{}, err
	}
	if err := validateCurrency(req, source, dest); err != nil {
		return domain.Transaction{}, err
	}
	net, err := netAmount(req.Type, req.Amount, req.FeeAmount)
	if err != nil {
		return domain.Transaction{}, err
	}

	var result domain.Transaction
	err = withRetry(ctx, e.maxAttempts, e.backoff, func() error {
		result, err = e.postOnce(ctx, req, source, dest, net)
		return err
	})
	if err != nil {
		return result, err
	}

	e.emit(ctx, result)
	return result, nil
}

// postOnce runs one attempt of the serializable posting protocol (spec §4.2
// steps 1-5) inside a single unit of work.
func (e *Engine) postOnce(ctx context.Context, req Request, source, dest *domain.Account, net money.Amount) (domain.Transaction, error) {
	uow, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("begin posting transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx)
		}
	}()

	refs := store.SortAccountCurrencyRefs([]store.AccountCurrencyRef{
		{AccountID: source.ID, Currency: req.Currency},
		{AccountID: dest.ID, Currency: req.Currency},
	})
	balances, err := uow.LockAccountBalances(ctx, refs)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("lock balances: %w", err)
	}
	sourceBalance, destBalance, err := splitBalances(balances, source.ID, dest.ID)
	if err != nil {
		return domain.Transaction{}, err
	}

	now := time.Now()
	txn := domain.Transaction{
		ID:                   uuid.New(),
		ExternalID:           req.ExternalID,
		Type:                 req.Type,
		SourceAccountID:      source.ID,
		DestinationAccountID: dest.ID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		FeeAmount:            req.FeeAmount,
		NetAmount:            net,
		IdempotencyKey:       req.IdempotencyKey,
		Metadata:             req.Metadata,
		CreatedAt:            now,
	}

	if err := validateSufficientFunds(sourceBalance, source, req.Amount); err != nil {
		txn.Status = domain.TransactionFailed
		if insertErr := uow.InsertTransaction(ctx, txn); insertErr != nil {
			return domain.Transaction{}, fmt.Errorf("record failed transaction: %w", insertErr)
		}
		if err := uow.Commit(ctx); err != nil {
			return domain.Transaction{}, fmt.Errorf("commit failed transaction: %w", err)
		}
		committed = true
		return txn, err
	}

	newSourceAvailable, err := sourceBalance.Available.Sub(req.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	newDestAvailable, err := destBalance.Available.Add(req.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}

	txn.Status = domain.TransactionSettled
	txn.SettledAt = &now
	if err := uow.InsertTransaction(ctx, txn); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	debitEntry := domain.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		AccountID:     source.ID,
		EntryType:     domain.Debit,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceAfter:  newSourceAvailable,
		EffectiveDate: now,
		CreatedAt:     now,
	}
	creditEntry := domain.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		AccountID:     dest.ID,
		EntryType:     domain.Credit,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceAfter:  newDestAvailable,
		EffectiveDate: now,
		CreatedAt:     now,
	}
	if err := uow.InsertLedgerEntry(ctx, debitEntry); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert debit entry: %w", err)
	}
	if err := uow.InsertLedgerEntry(ctx, creditEntry); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert credit entry: %w", err)
	}

	sourceBalance.Available = newSourceAvailable
	sourceBalance.LastUpdated = now
	if err := uow.UpdateAccountBalance(ctx, sourceBalance, sourceBalance.Version); err != nil {
		return domain.Transaction{}, err
	}
	destBalance.Available = newDestAvailable
	destBalance.LastUpdated = now
	if err := uow.UpdateAccountBalance(ctx, destBalance, destBalance.Version); err != nil {
		return domain.Transaction{}, err
	}

	if err := uow.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("commit posting: %w", err)
	}
	committed = true
	return txn, nil
}

func splitBalances(balances []domain.AccountBalance, sourceID, destID uuid.UUID) (source, dest domain.AccountBalance, err error) {
	var sourceOK, destOK bool
	for _, b := range balances {
		switch b.AccountID {
		case sourceID:
			source, sourceOK = b, true
		case destID:
			dest, destOK = b, true
		}
	}
	if !sourceOK || !destOK {
		return domain.AccountBalance{}, domain.AccountBalance{}, ledgererr.Wrapf(ledgererr.ErrInvariantViolated, "locked balance set missing source or destination row")
	}
	return source, dest, nil
}

func (e *Engine) emit(ctx context.Context, txn domain.Transaction) {
	if err := e.sink.Publish(ctx, events.Event{
		Kind:       events.KindTransaction,
		EntityID:   txn.ID,
		Status:     string(txn.Status),
		OccurredAt: time.Now(),
		Payload: events.TransactionEvent{
			TransactionID: txn.ID,
			ExternalID:    txn.ExternalID,
			Status:        string(txn.Status),
			Amount:        txn.Amount.String(),
			Currency:      string(txn.Currency),
		},
	}); err != nil {
		e.logger.Warn("transaction event publish failed", "transaction_id", txn.ID, "error", err)
	}
}

// Package store defines the durable-store contract the ledger kernel depends
// on (spec §6) and a pgx/pgxpool-backed Postgres implementation.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/money"
)

// Store is the durable-store adapter. It exposes serializable transactional
// units plus a handful of read paths that do not need one.
type Store interface {
	// BeginSerializable opens a new unit of work at Serializable isolation.
	// Callers must Commit or Rollback it.
	BeginSerializable(ctx context.Context) (UnitOfWork, error)

	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*domain.Account, error)
	GetAccountBalance(ctx context.Context, accountID uuid.UUID, currency money.Currency) (*domain.AccountBalance, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetTransactionByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error)

	GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	ReapExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)

	ListSettledUnbatchedTransactions(ctx context.Context, currency money.Currency, before time.Time) ([]domain.Transaction, error)
	ListPendingBatchesDue(ctx context.Context, now time.Time) ([]domain.SettlementBatch, error)
	ListBatchTransactions(ctx context.Context, batchID uuid.UUID) ([]domain.Transaction, error)

	Close()
}

// UnitOfWork is a single serializable transaction. Every method within it
// participates in the same underlying database transaction.
type UnitOfWork interface {
	// LockAccountBalances locks and returns the balance rows for the given
	// (accountID, currency) pairs in the order supplied by the caller. The
	// caller is responsible for sorting ids ascending before calling this so
	// concurrent postings acquire locks in a consistent order.
	LockAccountBalances(ctx context.Context, refs []AccountCurrencyRef) ([]domain.AccountBalance, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// UpdateAccountBalance performs the optimistic-concurrency conditional
	// update: it only succeeds if the row's current version equals
	// expectedVersion, and always bumps version by one.
	UpdateAccountBalance(ctx context.Context, balance domain.AccountBalance, expectedVersion int64) error
	CreateAccountBalance(ctx context.Context, balance domain.AccountBalance) error

	InsertTransaction(ctx context.Context, tx domain.Transaction) error
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, settledAt *time.Time) error
	AssignTransactionToBatch(ctx context.Context, transactionID, batchID uuid.UUID) error
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)

	InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	ListLedgerEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error)

	ClaimIdempotencyRecord(ctx context.Context, record domain.IdempotencyRecord) error
	GetIdempotencyRecordForUpdate(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	CompleteIdempotencyRecord(ctx context.Context, key string, status domain.IdempotencyStatus, response []byte, errMsg string, completedAt time.Time) error

	CreateBatch(ctx context.Context, batch domain.SettlementBatch) error
	GetPendingBatchForWindow(ctx context.Context, currency money.Currency, settlementDate time.Time, cutOffTime time.Time) (*domain.SettlementBatch, error)
	IncrementBatchTotals(ctx context.Context, batchID uuid.UUID, gross, fee money.Amount) error
	UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, completedAt *time.Time) error
	UpdateBatchNetAmount(ctx context.Context, batchID uuid.UUID, netAmount money.Amount) error
	GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*domain.SettlementBatch, error)

	InsertNettingPosition(ctx context.Context, pos domain.NettingPosition) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AccountCurrencyRef identifies one account_balances row.
type AccountCurrencyRef struct {
	AccountID uuid.UUID
	Currency  money.Currency
}

// SortAccountCurrencyRefs returns refs sorted ascending by (AccountID,
// Currency), the deterministic order spec §4.2/§5 requires balance rows be
// locked in to preclude deadlock cycles.
func SortAccountCurrencyRefs(refs []AccountCurrencyRef) []AccountCurrencyRef {
	sorted := make([]AccountCurrencyRef, len(refs))
	copy(sorted, refs)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && less(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

func less(a, b AccountCurrencyRef) bool {
	cmp := [16]byte(a.AccountID)
	other := [16]byte(b.AccountID)
	for i := range cmp {
		if cmp[i] != other[i] {
			return cmp[i] < other[i]
		}
	}
	return a.Currency < b.Currency
}

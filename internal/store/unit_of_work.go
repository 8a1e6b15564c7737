package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
)

// pgUnitOfWork implements UnitOfWork over a single pgx.Tx.
type pgUnitOfWork struct {
	tx pgx.Tx
}

func (u *pgUnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return ledgererr.Wrap(ledgererr.ErrSerializationFailure, err)
	}
	return nil
}

func (u *pgUnitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

// LockAccountBalances locks rows in the order given by refs (callers must
// pre-sort with SortAccountCurrencyRefs) via repeated single-row
// SELECT ... FOR UPDATE, grounded on the teacher's DebitWallet pattern.
func (u *pgUnitOfWork) LockAccountBalances(ctx context.Context, refs []AccountCurrencyRef) ([]domain.AccountBalance, error) {
	out := make([]domain.AccountBalance, 0, len(refs))
	for _, ref := range refs {
		row := u.tx.QueryRow(ctx, `
			SELECT account_id, currency, available, pending, reserved, version, last_updated
			FROM account_balances WHERE account_id = $1 AND currency = $2 FOR UPDATE`,
			ref.AccountID, string(ref.Currency))
		b, err := scanBalance(row)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, ledgererr.Wrapf(ledgererr.ErrUnknownAccount, "no balance row for account %s currency %s", ref.AccountID, ref.Currency)
		}
		out = append(out, *b)
	}
	return out, nil
}

func (u *pgUnitOfWork) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := u.tx.QueryRow(ctx, `
		SELECT id, external_id, name, type, status, currency, metadata, created_at, updated_at
		FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// UpdateAccountBalance performs the optimistic-concurrency conditional
// update described in spec §4.2 step 4: the WHERE clause pins the previous
// version, and a zero rows-affected result means another writer won the
// race, surfaced as ConcurrencyConflict.
func (u *pgUnitOfWork) UpdateAccountBalance(ctx context.Context, balance domain.AccountBalance, expectedVersion int64) error {
	tag, err := u.tx.Exec(ctx, `
		UPDATE account_balances
		SET available = $1, pending = $2, reserved = $3, version = version + 1, last_updated = $4
		WHERE account_id = $5 AND currency = $6 AND version = $7`,
		balance.Available.Decimal(), balance.Pending.Decimal(), balance.Reserved.Decimal(), balance.LastUpdated,
		balance.AccountID, string(balance.Currency), expectedVersion)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ledgererr.ErrConcurrencyConflict
	}
	return nil
}

func (u *pgUnitOfWork) CreateAccountBalance(ctx context.Context, balance domain.AccountBalance) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO account_balances (account_id, currency, available, pending, reserved, version, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		balance.AccountID, string(balance.Currency), balance.Available.Decimal(), balance.Pending.Decimal(),
		balance.Reserved.Decimal(), balance.Version, balance.LastUpdated)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil // a concurrent writer already created it; caller re-reads via LockAccountBalances
		}
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) InsertTransaction(ctx context.Context, t domain.Transaction) error {
	metaBytes, err := marshalMeta(t.Metadata)
	if err != nil {
		return err
	}
	_, err = u.tx.Exec(ctx, `
		INSERT INTO transactions (
			id, external_id, type, status, source_account_id, destination_account_id,
			amount, currency, fee_amount, net_amount, settlement_batch_id, idempotency_key,
			metadata, created_at, settled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.ID, t.ExternalID, t.Type, t.Status, t.SourceAccountID, t.DestinationAccountID,
		t.Amount.Decimal(), string(t.Currency), t.FeeAmount.Decimal(), t.NetAmount.Decimal(),
		t.SettlementBatchID, t.IdempotencyKey, metaBytes, t.CreatedAt, t.SettledAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ledgererr.Wrapf(ledgererr.ErrIdempotencyKeyConflict, "transaction external_id/idempotency_key already exists")
		}
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, settledAt *time.Time) error {
	_, err := u.tx.Exec(ctx, `
		UPDATE transactions SET status = $1, settled_at = COALESCE($2, settled_at) WHERE id = $3`,
		status, settledAt, id)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) AssignTransactionToBatch(ctx context.Context, transactionID, batchID uuid.UUID) error {
	_, err := u.tx.Exec(ctx, `
		UPDATE transactions SET settlement_batch_id = $1 WHERE id = $2`, batchID, transactionID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := u.tx.QueryRow(ctx, transactionSelectQuery+" WHERE id = $1 FOR UPDATE", id)
	return scanTransaction(row)
}

func (u *pgUnitOfWork) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	metaBytes, err := marshalMeta(e.Metadata)
	if err != nil {
		return err
	}
	_, err = u.tx.Exec(ctx, `
		INSERT INTO ledger_entries (
			id, transaction_id, account_id, entry_type, amount, currency, balance_after,
			effective_date, metadata, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.TransactionID, e.AccountID, e.EntryType, e.Amount.Decimal(), string(e.Currency),
		e.BalanceAfter.Decimal(), e.EffectiveDate, metaBytes, e.CreatedAt)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) ListLedgerEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT id, transaction_id, account_id, entry_type, amount, currency, balance_after,
		       effective_date, metadata, created_at
		FROM ledger_entries WHERE transaction_id = $1 ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var currency string
		var amount, balanceAfter decimal.Decimal
		var metaBytes []byte
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.EntryType, &amount, &currency,
			&balanceAfter, &e.EffectiveDate, &metaBytes, &e.CreatedAt); err != nil {
			return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
		}
		e.Currency = money.Currency(currency)
		if e.Amount, err = money.FromDecimal(amount); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = money.FromDecimal(balanceAfter); err != nil {
			return nil, err
		}
		if len(metaBytes) > 0 {
			if err := json.Unmarshal(metaBytes, &e.Metadata); err != nil {
				return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return out, nil
}

// ClaimIdempotencyRecord attempts the conditional insert described in spec
// §4.1 step 2. A unique-constraint violation is translated to
// IdempotencyKeyConflict so the idempotency manager can fall back to reading
// the winning record.
func (u *pgUnitOfWork) ClaimIdempotencyRecord(ctx context.Context, r domain.IdempotencyRecord) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO idempotency_keys (
			id, idempotency_key, client_id, operation_type, status, request_hash,
			response_data, error_message, created_at, expires_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.ID, r.Key, r.ClientID, r.OperationType, r.Status, r.RequestHash,
		r.ResponseData, r.ErrorMessage, r.CreatedAt, r.ExpiresAt, r.CompletedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ledgererr.ErrIdempotencyKeyConflict
		}
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) GetIdempotencyRecordForUpdate(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	row := u.tx.QueryRow(ctx, idempotencySelectQuery+" WHERE idempotency_key = $1 FOR UPDATE", key)
	return scanIdempotencyRecord(row)
}

func (u *pgUnitOfWork) CompleteIdempotencyRecord(ctx context.Context, key string, status domain.IdempotencyStatus, response []byte, errMsg string, completedAt time.Time) error {
	_, err := u.tx.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = $1, response_data = $2, error_message = $3, completed_at = $4
		WHERE idempotency_key = $5`,
		status, response, errMsg, completedAt, key)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) CreateBatch(ctx context.Context, b domain.SettlementBatch) error {
	metaBytes, err := marshalMeta(b.Metadata)
	if err != nil {
		return err
	}
	_, err = u.tx.Exec(ctx, `
		INSERT INTO settlement_batches (
			id, status, settlement_date, cut_off_time, total_transactions,
			gross_amount, net_amount, fee_amount, currency, metadata, created_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		b.ID, b.Status, b.SettlementDate, b.CutOffTime, b.TotalTransactions,
		b.GrossAmount.Decimal(), b.NetAmount.Decimal(), b.FeeAmount.Decimal(), string(b.Currency),
		metaBytes, b.CreatedAt, b.CompletedAt)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) GetPendingBatchForWindow(ctx context.Context, currency money.Currency, settlementDate, cutOffTime time.Time) (*domain.SettlementBatch, error) {
	row := u.tx.QueryRow(ctx, batchSelectQuery+`
		WHERE status = $1 AND currency = $2 AND settlement_date = $3 AND cut_off_time = $4
		FOR UPDATE`,
		domain.BatchPending, string(currency), settlementDate, cutOffTime)
	return scanBatch(row)
}

func (u *pgUnitOfWork) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*domain.SettlementBatch, error) {
	row := u.tx.QueryRow(ctx, batchSelectQuery+" WHERE id = $1 FOR UPDATE", id)
	return scanBatch(row)
}

func (u *pgUnitOfWork) IncrementBatchTotals(ctx context.Context, batchID uuid.UUID, gross, fee money.Amount) error {
	_, err := u.tx.Exec(ctx, `
		UPDATE settlement_batches
		SET total_transactions = total_transactions + 1,
		    gross_amount = gross_amount + $1,
		    fee_amount = fee_amount + $2
		WHERE id = $3`, gross.Decimal(), fee.Decimal(), batchID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, completedAt *time.Time) error {
	_, err := u.tx.Exec(ctx, `
		UPDATE settlement_batches SET status = $1, completed_at = COALESCE($2, completed_at) WHERE id = $3`,
		status, completedAt, batchID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) UpdateBatchNetAmount(ctx context.Context, batchID uuid.UUID, netAmount money.Amount) error {
	_, err := u.tx.Exec(ctx, `UPDATE settlement_batches SET net_amount = $1 WHERE id = $2`, netAmount.Decimal(), batchID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *pgUnitOfWork) InsertNettingPosition(ctx context.Context, p domain.NettingPosition) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO netting_positions (
			batch_id, participant_id, currency, gross_receivable, gross_payable,
			net_position, transaction_count, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.BatchID, p.ParticipantID, string(p.Currency), p.GrossReceivable.Decimal(), p.GrossPayable.Decimal(),
		p.NetPosition.Decimal(), p.TransactionCount, p.CreatedAt)
	if err != nil {
		return ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrInvalidAmount, err)
	}
	return b, nil
}

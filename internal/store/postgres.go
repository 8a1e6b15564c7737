package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
)

// PostgresStore is the pgxpool-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-configured pool. Pool tuning
// (MaxConns/MinConns/MaxConnLifetime/MaxConnIdleTime) is the caller's
// responsibility, done in cmd/ledgerkerneld the way the teacher's cmd/main.go
// tunes its pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) BeginSerializable(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return &pgUnitOfWork{tx: tx}, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_id, name, type, status, currency, metadata, created_at, updated_at
		FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) GetAccountByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_id, name, type, status, currency, metadata, created_at, updated_at
		FROM accounts WHERE external_id = $1`, externalID)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var metaBytes []byte
	var currency string
	err := row.Scan(&a.ID, &a.ExternalID, &a.Name, &a.Type, &a.Status, &currency, &metaBytes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translateReadError(err)
	}
	a.Currency = money.Currency(currency)
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &a.Metadata); err != nil {
			return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
		}
	}
	return &a, nil
}

func (s *PostgresStore) GetAccountBalance(ctx context.Context, accountID uuid.UUID, currency money.Currency) (*domain.AccountBalance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, currency, available, pending, reserved, version, last_updated
		FROM account_balances WHERE account_id = $1 AND currency = $2`, accountID, string(currency))
	return scanBalance(row)
}

func scanBalance(row pgx.Row) (*domain.AccountBalance, error) {
	var b domain.AccountBalance
	var currency string
	var available, pending, reserved decimal.Decimal
	err := row.Scan(&b.AccountID, &currency, &available, &pending, &reserved, &b.Version, &b.LastUpdated)
	if err != nil {
		return nil, translateReadError(err)
	}
	b.Currency = money.Currency(currency)
	if b.Available, err = money.FromDecimal(available); err != nil {
		return nil, err
	}
	if b.Pending, err = money.FromDecimal(pending); err != nil {
		return nil, err
	}
	if b.Reserved, err = money.FromDecimal(reserved); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx, transactionSelectQuery+" WHERE id = $1", id)
	return scanTransaction(row)
}

func (s *PostgresStore) GetTransactionByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx, transactionSelectQuery+" WHERE external_id = $1", externalID)
	return scanTransaction(row)
}

const transactionSelectQuery = `
	SELECT id, external_id, type, status, source_account_id, destination_account_id,
	       amount, currency, fee_amount, net_amount, settlement_batch_id, idempotency_key,
	       metadata, created_at, settled_at
	FROM transactions`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var currency string
	var amount, fee, net decimal.Decimal
	var metaBytes []byte
	err := row.Scan(&t.ID, &t.ExternalID, &t.Type, &t.Status, &t.SourceAccountID, &t.DestinationAccountID,
		&amount, &currency, &fee, &net, &t.SettlementBatchID, &t.IdempotencyKey,
		&metaBytes, &t.CreatedAt, &t.SettledAt)
	if err != nil {
		return nil, translateReadError(err)
	}
	t.Currency = money.Currency(currency)
	if t.Amount, err = money.FromDecimal(amount); err != nil {
		return nil, err
	}
	if t.FeeAmount, err = money.FromDecimal(fee); err != nil {
		return nil, err
	}
	if t.NetAmount, err = money.FromDecimal(net); err != nil {
		return nil, err
	}
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &t.Metadata); err != nil {
			return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
		}
	}
	return &t, nil
}

func (s *PostgresStore) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	row := s.pool.QueryRow(ctx, idempotencySelectQuery+" WHERE idempotency_key = $1", key)
	return scanIdempotencyRecord(row)
}

const idempotencySelectQuery = `
	SELECT id, idempotency_key, client_id, operation_type, status, request_hash,
	       response_data, error_message, created_at, expires_at, completed_at
	FROM idempotency_keys`

func scanIdempotencyRecord(row pgx.Row) (*domain.IdempotencyRecord, error) {
	var r domain.IdempotencyRecord
	err := row.Scan(&r.ID, &r.Key, &r.ClientID, &r.OperationType, &r.Status, &r.RequestHash,
		&r.ResponseData, &r.ErrorMessage, &r.CreatedAt, &r.ExpiresAt, &r.CompletedAt)
	if err != nil {
		return nil, translateReadError(err)
	}
	return &r, nil
}

func (s *PostgresStore) ReapExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys WHERE status = $1 AND expires_at <= $2`,
		domain.IdempotencyProcessing, now)
	if err != nil {
		return 0, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListSettledUnbatchedTransactions(ctx context.Context, currency money.Currency, before time.Time) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, transactionSelectQuery+`
		WHERE status = $1 AND currency = $2 AND settlement_batch_id IS NULL AND settled_at <= $3
		ORDER BY settled_at ASC`,
		domain.TransactionSettled, string(currency), before)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *PostgresStore) ListBatchTransactions(ctx context.Context, batchID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, transactionSelectQuery+`
		WHERE settlement_batch_id = $1 ORDER BY created_at ASC`, batchID)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *PostgresStore) ListPendingBatchesDue(ctx context.Context, now time.Time) ([]domain.SettlementBatch, error) {
	rows, err := s.pool.Query(ctx, batchSelectQuery+`
		WHERE status = $1 AND cut_off_time <= $2
		ORDER BY cut_off_time ASC, id ASC`, domain.BatchPending, now)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []domain.SettlementBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
	}
	return out, nil
}

const batchSelectQuery = `
	SELECT id, status, settlement_date, cut_off_time, total_transactions,
	       gross_amount, net_amount, fee_amount, currency, metadata, created_at, completed_at
	FROM settlement_batches`

func scanBatch(row pgx.Row) (*domain.SettlementBatch, error) {
	var b domain.SettlementBatch
	var currency string
	var gross, net, fee decimal.Decimal
	var metaBytes []byte
	err := row.Scan(&b.ID, &b.Status, &b.SettlementDate, &b.CutOffTime, &b.TotalTransactions,
		&gross, &net, &fee, &currency, &metaBytes, &b.CreatedAt, &b.CompletedAt)
	if err != nil {
		return nil, translateReadError(err)
	}
	b.Currency = money.Currency(currency)
	if b.GrossAmount, err = money.FromDecimal(gross); err != nil {
		return nil, err
	}
	if b.NetAmount, err = money.FromDecimal(net); err != nil {
		return nil, err
	}
	if b.FeeAmount, err = money.FromDecimal(fee); err != nil {
		return nil, err
	}
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &b.Metadata); err != nil {
			return nil, ledgererr.Wrap(ledgererr.ErrStoreUnavailable, err)
		}
	}
	return &b, nil
}

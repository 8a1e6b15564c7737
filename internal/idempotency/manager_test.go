package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transfa/ledger-kernel/internal/cache"
	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
	"github.com/transfa/ledger-kernel/internal/store"
)

// fakeStore is a minimal in-memory stand-in for store.Store/store.UnitOfWork,
// the same substitution the teacher uses when swapping EventProducerFallback
// in for a real Publisher.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]domain.IdempotencyRecord)}
}

func (f *fakeStore) BeginSerializable(context.Context) (store.UnitOfWork, error) { return f, nil }

func (f *fakeStore) GetAccount(context.Context, uuid.UUID) (*domain.Account, error) { return nil, nil }
func (f *fakeStore) GetAccountByExternalID(context.Context, string) (*domain.Account, error) {
	return nil, nil
}
func (f *fakeStore) GetAccountBalance(context.Context, uuid.UUID, money.Currency) (*domain.AccountBalance, error) {
	return nil, nil
}
func (f *fakeStore) GetTransaction(context.Context, uuid.UUID) (*domain.Transaction, error) {
	return nil, nil
}
func (f *fakeStore) GetTransactionByExternalID(context.Context, string) (*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) GetIdempotencyRecord(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (f *fakeStore) ReapExpiredIdempotencyRecords(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, r := range f.records {
		if now.After(r.ExpiresAt) {
			delete(f.records, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListSettledUnbatchedTransactions(context.Context, money.Currency, time.Time) ([]domain.Transaction, error) {
	return nil, nil
}
func (f *fakeStore) ListPendingBatchesDue(context.Context, time.Time) ([]domain.SettlementBatch, error) {
	return nil, nil
}
func (f *fakeStore) ListBatchTransactions(context.Context, uuid.UUID) ([]domain.Transaction, error) {
	return nil, nil
}
func (f *fakeStore) Close() {}

func (f *fakeStore) LockAccountBalances(context.Context, []store.AccountCurrencyRef) ([]domain.AccountBalance, error) {
	return nil, nil
}
func (f *fakeStore) UpdateAccountBalance(context.Context, domain.AccountBalance, int64) error { return nil }
func (f *fakeStore) CreateAccountBalance(context.Context, domain.AccountBalance) error        { return nil }
func (f *fakeStore) InsertTransaction(context.Context, domain.Transaction) error               { return nil }
func (f *fakeStore) UpdateTransactionStatus(context.Context, uuid.UUID, domain.TransactionStatus, *time.Time) error {
	return nil
}
func (f *fakeStore) AssignTransactionToBatch(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (f *fakeStore) GetTransactionForUpdate(context.Context, uuid.UUID) (*domain.Transaction, error) {
	return nil, nil
}
func (f *fakeStore) InsertLedgerEntry(context.Context, domain.LedgerEntry) error { return nil }
func (f *fakeStore) ListLedgerEntriesByTransaction(context.Context, uuid.UUID) ([]domain.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeStore) ClaimIdempotencyRecord(_ context.Context, record domain.IdempotencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[record.Key]; exists {
		return ledgererr.ErrIdempotencyKeyConflict
	}
	f.records[record.Key] = record
	return nil
}

func (f *fakeStore) GetIdempotencyRecordForUpdate(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	return f.GetIdempotencyRecord(context.Background(), key)
}

func (f *fakeStore) CompleteIdempotencyRecord(_ context.Context, key string, status domain.IdempotencyStatus, response []byte, errMsg string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key]
	if !ok {
		return ledgererr.ErrUnknownAccount
	}
	r.Status = status
	r.ResponseData = response
	r.ErrorMessage = errMsg
	r.CompletedAt = &completedAt
	f.records[key] = r
	return nil
}

func (f *fakeStore) CreateBatch(context.Context, domain.SettlementBatch) error { return nil }
func (f *fakeStore) GetPendingBatchForWindow(context.Context, money.Currency, time.Time, time.Time) (*domain.SettlementBatch, error) {
	return nil, nil
}
func (f *fakeStore) IncrementBatchTotals(context.Context, uuid.UUID, money.Amount, money.Amount) error {
	return nil
}
func (f *fakeStore) UpdateBatchStatus(context.Context, uuid.UUID, domain.BatchStatus, *time.Time) error {
	return nil
}
func (f *fakeStore) UpdateBatchNetAmount(context.Context, uuid.UUID, money.Amount) error { return nil }
func (f *fakeStore) GetBatchForUpdate(context.Context, uuid.UUID) (*domain.SettlementBatch, error) {
	return nil, nil
}
func (f *fakeStore) InsertNettingPosition(context.Context, domain.NettingPosition) error { return nil }
func (f *fakeStore) Commit(context.Context) error                                        { return nil }
func (f *fakeStore) Rollback(context.Context) error                                      { return nil }

func newTestManager() (*Manager, *fakeStore) {
	fs := newFakeStore()
	mgr := NewManager(fs, cache.NewInMemoryCache(), nil, time.Hour, time.Millisecond, 20*time.Millisecond)
	return mgr, fs
}

func TestCheckReturnsNewForUnknownKey(t *testing.T) {
	mgr, _ := newTestManager()
	result, err := mgr.Check(context.Background(), "key-1", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, result.Outcome)
}

func TestClaimThenCompleteReplaysDuplicate(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	uow, err := fs.BeginSerializable(ctx)
	require.NoError(t, err)
	record, err := mgr.Claim(ctx, uow, "client-1", "post_transaction", "key-2", "hash-2")
	require.NoError(t, err)
	require.NoError(t, mgr.Complete(ctx, uow, record, []byte(`{"ok":true}`)))

	result, err := mgr.Check(ctx, "key-2", "hash-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, []byte(`{"ok":true}`), result.Record.ResponseData)
}

func TestClaimThenFailAllowsRetry(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	uow, err := fs.BeginSerializable(ctx)
	require.NoError(t, err)
	record, err := mgr.Claim(ctx, uow, "client-1", "post_transaction", "key-3", "hash-3")
	require.NoError(t, err)
	require.NoError(t, mgr.Fail(ctx, uow, record, "posting failed"))

	result, err := mgr.Check(ctx, "key-3", "hash-3")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, result.Outcome)
}

func TestCheckReportsProcessingForInFlightClaim(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	uow, err := fs.BeginSerializable(ctx)
	require.NoError(t, err)
	_, err = mgr.Claim(ctx, uow, "client-1", "post_transaction", "key-4", "hash-4")
	require.NoError(t, err)

	result, err := mgr.Check(ctx, "key-4", "hash-4")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, result.Outcome)
}

func TestCheckDetectsKeyReuseWithDifferentRequest(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	uow, err := fs.BeginSerializable(ctx)
	require.NoError(t, err)
	record, err := mgr.Claim(ctx, uow, "client-1", "post_transaction", "key-5", "hash-original")
	require.NoError(t, err)
	require.NoError(t, mgr.Complete(ctx, uow, record, []byte(`{}`)))

	_, err = mgr.Check(ctx, "key-5", "hash-different")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledgererr.ErrIdempotencyKeyConflict)
}

func TestFingerprintIsDeterministicAcrossFieldOrder(t *testing.T) {
	a := map[string]any{"amount": "10.00", "currency": "USD"}
	b := map[string]any{"currency": "USD", "amount": "10.00"}

	fa, err := Fingerprint("client-1", "post_transaction", a, 1000, 60)
	require.NoError(t, err)
	fb, err := Fingerprint("client-1", "post_transaction", b, 1000, 60)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprintDiffersAcrossWindow(t *testing.T) {
	req := map[string]any{"amount": "10.00"}
	fa, err := Fingerprint("client-1", "post_transaction", req, 1000, 60)
	require.NoError(t, err)
	fb, err := Fingerprint("client-1", "post_transaction", req, 1000+120, 60)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}

func TestCheckAndClaimClaimsFreshKey(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	result, err := mgr.CheckAndClaim(ctx, "client-1", "post_transaction", "key-6", "hash-6")
	require.NoError(t, err)
	require.Equal(t, OutcomeNew, result.Outcome)
	require.NotNil(t, result.Record)
	assert.Equal(t, domain.IdempotencyProcessing, result.Record.Status)
}

func TestCheckAndClaimReplaysDuplicateWithoutReclaiming(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	uow, err := fs.BeginSerializable(ctx)
	require.NoError(t, err)
	record, err := mgr.Claim(ctx, uow, "client-1", "post_transaction", "key-7", "hash-7")
	require.NoError(t, err)
	require.NoError(t, mgr.Complete(ctx, uow, record, []byte(`{"ok":true}`)))

	result, err := mgr.CheckAndClaim(ctx, "client-1", "post_transaction", "key-7", "hash-7")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, []byte(`{"ok":true}`), result.Record.ResponseData)
}

func TestCheckAndClaimTimesOutWhileAnotherClaimStaysProcessing(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	uow, err := fs.BeginSerializable(ctx)
	require.NoError(t, err)
	_, err = mgr.Claim(ctx, uow, "client-1", "post_transaction", "key-8", "hash-8")
	require.NoError(t, err)

	started := nowFunc()
	result, err := mgr.CheckAndClaim(ctx, "client-2", "post_transaction", "key-8", "hash-8")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, result.Outcome)
	assert.GreaterOrEqual(t, nowFunc().Sub(started), mgr.pollMaxWait)
}

func TestCheckAndClaimObservesClaimReleasedMidPoll(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	uow, err := fs.BeginSerializable(ctx)
	require.NoError(t, err)
	record, err := mgr.Claim(ctx, uow, "client-1", "post_transaction", "key-9", "hash-9")
	require.NoError(t, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = mgr.Complete(ctx, uow, record, []byte(`{"ok":true}`))
	}()

	result, err := mgr.CheckAndClaim(ctx, "client-2", "post_transaction", "key-9", "hash-9")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
}

func TestReapExpiredDeletesOnlyExpired(t *testing.T) {
	mgr, fs := newTestManager()
	ctx := context.Background()

	fs.records["expired"] = domain.IdempotencyRecord{Key: "expired", ExpiresAt: nowFunc().Add(-time.Minute)}
	fs.records["fresh"] = domain.IdempotencyRecord{Key: "fresh", ExpiresAt: nowFunc().Add(time.Hour)}

	n, err := mgr.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, stillThere := fs.records["fresh"]
	assert.True(t, stillThere)
}

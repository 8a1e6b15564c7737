package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/cache"
	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/store"
)

// Outcome is the result of a CheckAndClaim call, mirroring the
// New/Duplicate/Processing trichotomy of the original handler's
// IdempotencyCheckResult.
type Outcome string

const (
	// OutcomeNew means no prior record exists; the caller owns the claim and
	// must call Complete or Fail once the guarded operation finishes.
	OutcomeNew Outcome = "new"
	// OutcomeDuplicate means a prior attempt already completed; Record.ResponseData
	// holds the cached response to replay verbatim.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeProcessing means a prior attempt is still in flight. CheckAndClaim
	// only returns this after polling for up to its bounded wait; callers
	// should report it to the client as in-progress (spec §4.1 step 1's
	// InProgress) and let them retry.
	OutcomeProcessing Outcome = "processing"
)

// Result bundles the decision and, for Duplicate, the record to replay from.
type Result struct {
	Outcome Outcome
	Record  *domain.IdempotencyRecord
}

// DefaultTTL matches the original handler's IdempotencyHandlerConfig default
// of 24 hours.
const DefaultTTL = 24 * time.Hour

// DefaultPollInterval and DefaultPollMaxWait bound step 1's poll against a
// Processing record when the caller configures neither.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultPollMaxWait  = 2 * time.Second
)

// Manager implements the two-tier check-and-claim protocol from spec §4.1: a
// cache fast path in front of the durable store. A cache hit is returned
// without reading the store; a cache miss or cache error falls through to the
// store, and every claim is made against the store.
type Manager struct {
	store        store.Store
	cache        cache.Cache
	logger       *slog.Logger
	ttl          time.Duration
	pollInterval time.Duration
	pollMaxWait  time.Duration
}

// NewManager constructs a Manager. ttl <= 0 falls back to DefaultTTL;
// pollInterval/pollMaxWait <= 0 fall back to their Default* siblings.
func NewManager(st store.Store, ch cache.Cache, logger *slog.Logger, ttl, pollInterval, pollMaxWait time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if pollMaxWait <= 0 {
		pollMaxWait = DefaultPollMaxWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, cache: ch, logger: logger, ttl: ttl, pollInterval: pollInterval, pollMaxWait: pollMaxWait}
}

// Check performs the cache fast path followed by the durable-store fallback,
// without claiming anything. It is safe to call outside a transaction.
func (m *Manager) Check(ctx context.Context, key, requestHash string) (Result, error) {
	if cached, ok, err := m.checkCache(ctx, key, requestHash); err != nil {
		m.logger.Warn("idempotency cache check failed, falling back to store", "key", key, "error", err)
	} else if ok {
		return cached, nil
	}

	record, err := m.store.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("load idempotency record: %w", err)
	}
	if record == nil {
		return Result{Outcome: OutcomeNew}, nil
	}
	return m.classify(ctx, record, requestHash)
}

// CheckAndClaim runs the full protocol of spec §4.1: Check, a bounded poll if
// another writer's claim is still Processing, and — once the key is free —
// a durable claim of a fresh Processing record. The claim is made inside a
// transaction CheckAndClaim opens and commits itself, since claiming happens
// before the guarded business operation is underway; once claimed, callers
// do their own work and call Complete/Fail against their own transaction.
//
// If outcome is OutcomeNew, Record is the freshly claimed row and the caller
// owns it. If outcome is OutcomeDuplicate, Record.ResponseData replays
// verbatim. If outcome is OutcomeProcessing, the bounded poll timed out and
// the caller should report the request as still in progress.
func (m *Manager) CheckAndClaim(ctx context.Context, clientID, operationType, key, requestHash string) (Result, error) {
	result, err := m.Check(ctx, key, requestHash)
	if err != nil {
		return Result{}, err
	}
	if result.Outcome == OutcomeProcessing {
		result, err = m.pollUntilSettled(ctx, key, requestHash)
		if err != nil {
			return Result{}, err
		}
	}
	if result.Outcome != OutcomeNew {
		return result, nil
	}
	return m.claimFresh(ctx, clientID, operationType, key, requestHash)
}

// pollUntilSettled re-checks key at m.pollInterval until it leaves
// OutcomeProcessing or m.pollMaxWait elapses, whichever comes first.
func (m *Manager) pollUntilSettled(ctx context.Context, key, requestHash string) (Result, error) {
	deadline := nowFunc().Add(m.pollMaxWait)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		if !nowFunc().Before(deadline) {
			return Result{Outcome: OutcomeProcessing}, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
			result, err := m.Check(ctx, key, requestHash)
			if err != nil {
				return Result{}, err
			}
			if result.Outcome != OutcomeProcessing {
				return result, nil
			}
		}
	}
}

// claimFresh opens its own transaction to insert a Processing record for key.
// A unique-constraint conflict means another writer claimed it between the
// caller's last Check and now; per spec §4.1 step 2 that resolves by
// re-reading the durable store as authoritative rather than erroring.
func (m *Manager) claimFresh(ctx context.Context, clientID, operationType, key, requestHash string) (Result, error) {
	uow, err := m.store.BeginSerializable(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin idempotency claim: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx)
		}
	}()

	record, err := m.Claim(ctx, uow, clientID, operationType, key, requestHash)
	if err != nil {
		if errors.Is(err, ledgererr.ErrIdempotencyKeyConflict) {
			_ = uow.Rollback(ctx)
			committed = true
			return m.Check(ctx, key, requestHash)
		}
		return Result{}, err
	}
	if err := uow.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit idempotency claim: %w", err)
	}
	committed = true
	m.warmCache(ctx, record)
	return Result{Outcome: OutcomeNew, Record: &record}, nil
}

func (m *Manager) checkCache(ctx context.Context, key, requestHash string) (Result, bool, error) {
	raw, ok, err := m.cache.Get(ctx, key)
	if err != nil || !ok {
		return Result{}, false, err
	}
	var record domain.IdempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return Result{}, false, fmt.Errorf("decode cached idempotency record: %w", err)
	}
	result, err := m.classify(ctx, &record, requestHash)
	if err != nil {
		return Result{}, false, err
	}
	return result, true, nil
}

// classify applies the handler.rs decision tree: a request-hash mismatch on
// an existing key is a client error (the key was reused with different
// parameters), a Completed record replays, a Failed record or an expired
// Processing claim is reported as New, and a live Processing claim is
// reported as Processing.
func (m *Manager) classify(ctx context.Context, record *domain.IdempotencyRecord, requestHash string) (Result, error) {
	if record.RequestHash != requestHash {
		return Result{}, ledgererr.Wrapf(ledgererr.ErrIdempotencyKeyConflict,
			"idempotency key %q reused with different request parameters", record.Key)
	}
	switch record.Status {
	case domain.IdempotencyCompleted:
		return Result{Outcome: OutcomeDuplicate, Record: record}, nil
	case domain.IdempotencyFailed:
		// A failed attempt may be retried under the same key; treat as New so
		// the caller re-claims it.
		return Result{Outcome: OutcomeNew}, nil
	default:
		if record.Expired(nowFunc()) {
			return Result{Outcome: OutcomeNew}, nil
		}
		return Result{Outcome: OutcomeProcessing, Record: record}, nil
	}
}

// Claim inserts a Processing record inside the caller's transaction. Callers
// should call Check first; Claim still handles the race where another writer
// claimed the same key between Check and Claim by surfacing
// ledgererr.ErrIdempotencyKeyConflict, which the caller should retry as a
// fresh Check.
func (m *Manager) Claim(ctx context.Context, uow store.UnitOfWork, clientID, operationType, key, requestHash string) (domain.IdempotencyRecord, error) {
	now := nowFunc()
	record := domain.IdempotencyRecord{
		ID:            uuid.New(),
		Key:           key,
		ClientID:      clientID,
		OperationType: operationType,
		Status:        domain.IdempotencyProcessing,
		RequestHash:   requestHash,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	}
	if err := uow.ClaimIdempotencyRecord(ctx, record); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return record, nil
}

// Complete marks a claimed record Completed with the given response payload
// and refreshes the cache fast path. Call within the same transaction as the
// business operation the record guards, after it succeeds.
func (m *Manager) Complete(ctx context.Context, uow store.UnitOfWork, record domain.IdempotencyRecord, response []byte) error {
	now := nowFunc()
	if err := uow.CompleteIdempotencyRecord(ctx, record.Key, domain.IdempotencyCompleted, response, "", now); err != nil {
		return err
	}
	record.Status = domain.IdempotencyCompleted
	record.ResponseData = response
	record.CompletedAt = &now
	m.warmCache(ctx, record)
	return nil
}

// Fail marks a claimed record Failed so a subsequent attempt under the same
// key is treated as New.
func (m *Manager) Fail(ctx context.Context, uow store.UnitOfWork, record domain.IdempotencyRecord, errMsg string) error {
	now := nowFunc()
	if err := uow.CompleteIdempotencyRecord(ctx, record.Key, domain.IdempotencyFailed, nil, errMsg, now); err != nil {
		return err
	}
	// A failed record is deliberately not cached: the fast path must not
	// serve a stale Processing/Failed view that blocks a legitimate retry.
	if err := m.cache.Delete(ctx, record.Key); err != nil {
		m.logger.Warn("idempotency cache delete after failure failed", "key", record.Key, "error", err)
	}
	return nil
}

func (m *Manager) warmCache(ctx context.Context, record domain.IdempotencyRecord) {
	raw, err := json.Marshal(record)
	if err != nil {
		m.logger.Warn("encode idempotency record for cache failed", "key", record.Key, "error", err)
		return
	}
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := m.cache.Set(ctx, record.Key, raw, ttl); err != nil {
		m.logger.Warn("idempotency cache warm failed", "key", record.Key, "error", err)
	}
}

// nowFunc is a seam for tests; production code always uses time.Now.
var nowFunc = time.Now

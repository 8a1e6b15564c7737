package idempotency

import (
	"context"
	"fmt"
)

// ReapExpired deletes idempotency records past their TTL, mirroring the
// original handler's cleanup_expired. Unlike the Rust implementation's
// bespoke tokio::spawn interval loop, this is invoked as a plain cron entry
// on the shared batch scheduler (see internal/batch), so the ledger kernel
// has one scheduling mechanism instead of two.
func (m *Manager) ReapExpired(ctx context.Context) (int64, error) {
	deleted, err := m.store.ReapExpiredIdempotencyRecords(ctx, nowFunc())
	if err != nil {
		return 0, fmt.Errorf("reap expired idempotency records: %w", err)
	}
	if deleted > 0 {
		m.logger.Info("reaped expired idempotency records", "count", deleted)
	}
	return deleted, nil
}

// Package batch implements the settlement batch service of spec §4.4:
// assigning settled transactions to windows, and closing batches at their
// cut-off time via the netting calculator.
package batch

import (
	"time"

	"github.com/transfa/ledger-kernel/internal/config"
)

// CutOffTime computes the moment a batch opened at now for window should
// close, following original_source's calculate_cut_off_time: real-time and
// micro-batch windows close a fixed offset from open; hourly closes at the
// top of the next hour; daily closes at a fixed UTC time, today if not yet
// passed or tomorrow otherwise.
func CutOffTime(window config.SettlementWindow, now time.Time, microBatchMinutes int) time.Time {
	now = now.UTC()
	switch window {
	case config.WindowRealTime:
		return now.Add(time.Minute)
	case config.WindowMicroBatch:
		if microBatchMinutes <= 0 {
			microBatchMinutes = 5
		}
		return now.Add(time.Duration(microBatchMinutes) * time.Minute)
	case config.WindowHourly:
		topOfHour := now.Truncate(time.Hour)
		return topOfHour.Add(time.Hour)
	case config.WindowDaily:
		cutoff := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
		if !cutoff.After(now) {
			cutoff = cutoff.Add(24 * time.Hour)
		}
		return cutoff
	default:
		return now.Add(time.Hour)
	}
}

// SettlementDate is the calendar day (UTC, midnight) a batch belongs to. All
// batches opened before their window's next cut-off share one settlement
// date, matching the (currency, settlement_date, window) uniqueness spec §6
// requires of the settlement_batches table.
func SettlementDate(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// PollInterval returns how often the scheduler should check for due batches
// under window, tight enough that a real-time or micro-batch window's
// cut-off is never missed by more than one interval.
func PollInterval(window config.SettlementWindow, microBatchMinutes int) time.Duration {
	switch window {
	case config.WindowRealTime:
		return 15 * time.Second
	case config.WindowMicroBatch:
		if microBatchMinutes <= 0 {
			microBatchMinutes = 5
		}
		quarter := time.Duration(microBatchMinutes) * time.Minute / 4
		if quarter < 10*time.Second {
			quarter = 10 * time.Second
		}
		return quarter
	case config.WindowHourly:
		return 5 * time.Minute
	case config.WindowDaily:
		return 15 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Package ledgererr defines the error taxonomy shared by every ledger kernel
// subsystem: validation failures, business-rule violations, transient
// conditions worth retrying, and fatal conditions that halt a subsystem.
package ledgererr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	// Validation errors are caused by bad input and are never retryable.
	Validation Kind = "validation"
	// BusinessRule errors signal a violated domain invariant; not retryable.
	BusinessRule Kind = "business_rule"
	// Transient errors are worth retrying, internally or by the caller.
	Transient Kind = "transient"
	// Fatal errors are operator-visible and abort the current unit of work.
	Fatal Kind = "fatal"
)

// Sentinel errors named directly after spec §7. Wrap these with fmt.Errorf's
// %w verb to attach context; callers compare with errors.Is.
var (
	// Validation
	ErrInvalidAmount         = &Error{Kind: Validation, Code: "InvalidAmount", msg: "invalid amount"}
	ErrCurrencyMismatch      = &Error{Kind: Validation, Code: "CurrencyMismatch", msg: "currency mismatch"}
	ErrUnknownAccount        = &Error{Kind: Validation, Code: "UnknownAccount", msg: "unknown account"}
	ErrAccountInactive       = &Error{Kind: Validation, Code: "AccountInactive", msg: "account inactive"}
	ErrIllegalStateTransition = &Error{Kind: Validation, Code: "IllegalStateTransition", msg: "illegal state transition"}

	// BusinessRule
	ErrInsufficientFunds     = &Error{Kind: BusinessRule, Code: "InsufficientFunds", msg: "insufficient funds"}
	ErrDoubleReversal        = &Error{Kind: BusinessRule, Code: "DoubleReversal", msg: "transaction already reversed"}
	ErrIdempotencyKeyConflict = &Error{Kind: BusinessRule, Code: "IdempotencyKeyConflict", msg: "idempotency key reused with a different request"}

	// Transient
	ErrConcurrencyConflict   = &Error{Kind: Transient, Code: "ConcurrencyConflict", msg: "balance version conflict"}
	ErrSerializationFailure  = &Error{Kind: Transient, Code: "SerializationFailure", msg: "serialization failure"}
	ErrTimeout               = &Error{Kind: Transient, Code: "Timeout", msg: "operation timed out"}
	ErrCacheUnavailable      = &Error{Kind: Transient, Code: "CacheUnavailable", msg: "cache unavailable"}

	// Fatal
	ErrStoreUnavailable      = &Error{Kind: Fatal, Code: "StoreUnavailable", msg: "durable store unavailable"}
	ErrInvariantViolated     = &Error{Kind: Fatal, Code: "InvariantViolated", msg: "ledger invariant violated"}
)

// Error is a typed, wrappable ledger error. The zero value is not usable;
// construct via the sentinels above or New.
type Error struct {
	Kind Kind
	Code string
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is lets errors.Is match on Code so that a wrapped copy still compares equal
// to its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap attaches additional context to a sentinel, returning a distinct
// *Error that errors.Is matches against the sentinel (by Code) and whose
// Unwrap returns cause.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, msg: sentinel.msg, err: cause}
}

// Wrapf is Wrap with a formatted message appended.
func Wrapf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, msg: fmt.Sprintf("%s: %s", sentinel.msg, fmt.Sprintf(format, args...))}
}

// New constructs a fresh error of the given kind and code, independent of the
// named sentinels, for subsystem-local errors that still need a Kind.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

// IsRetryable reports whether the caller (or an internal retry loop) should
// attempt the operation again. Only Transient errors are retryable.
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind == Transient
	}
	return false
}

// KindOf extracts the Kind of a ledger error, or "" if err is not one.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

package ledgererr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinelIdentity(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(ErrConcurrencyConflict, cause)

	assert.True(t, errors.Is(wrapped, ErrConcurrencyConflict))
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapfFormatsMessage(t *testing.T) {
	wrapped := Wrapf(ErrInsufficientFunds, "account %s short by %s", "acct-1", "5.0000")
	require.True(t, errors.Is(wrapped, ErrInsufficientFunds))
	assert.Contains(t, wrapped.Error(), "acct-1")
}

func TestIsRetryable(t *testing.T) {
	cases := map[error]bool{
		ErrConcurrencyConflict:  true,
		ErrSerializationFailure: true,
		ErrTimeout:              true,
		ErrCacheUnavailable:     true,
		ErrInvalidAmount:        false,
		ErrInsufficientFunds:    false,
		ErrStoreUnavailable:     false,
		fmt.Errorf("plain error"): false,
	}
	for err, want := range cases {
		assert.Equal(t, want, IsRetryable(err), "err=%v", err)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Validation, KindOf(ErrCurrencyMismatch))
	assert.Equal(t, BusinessRule, KindOf(ErrDoubleReversal))
	assert.Equal(t, Transient, KindOf(ErrTimeout))
	assert.Equal(t, Fatal, KindOf(ErrInvariantViolated))
	assert.Equal(t, Kind(""), KindOf(errors.New("not a ledger error")))
}

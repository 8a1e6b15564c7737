package posting

import (
	"github.com/transfa/ledger-kernel/internal/domain"
	"github.com/transfa/ledger-kernel/internal/ledgererr"
	"github.com/transfa/ledger-kernel/internal/money"
)

// validateFields runs the field-level checks of spec §4.2 step 1.
func validateFields(req Request) error {
	if !req.Amount.IsPositive() {
		return ledgererr.Wrapf(ledgererr.ErrInvalidAmount, "amount %s must be positive", req.Amount)
	}
	if req.FeeAmount.IsNegative() {
		return ledgererr.Wrapf(ledgererr.ErrInvalidAmount, "fee amount %s must not be negative", req.FeeAmount)
	}
	if req.FeeAmount.Cmp(req.Amount) >= 0 {
		return ledgererr.Wrapf(ledgererr.ErrInvalidAmount, "fee amount %s must be less than amount %s", req.FeeAmount, req.Amount)
	}
	if req.SourceAccountID == req.DestinationAccountID {
		return ledgererr.New(ledgererr.Validation, "SameAccount", "source and destination accounts must differ")
	}
	if !permittedTypes[req.Type] {
		return ledgererr.New(ledgererr.Validation, "UnknownTransactionType", "unrecognised transaction type "+string(req.Type))
	}
	if req.IdempotencyKey == "" {
		return ledgererr.New(ledgererr.Validation, "MissingIdempotencyKey", "idempotency key is required")
	}
	if _, err := money.ParseCurrency(string(req.Currency)); err != nil {
		return err
	}
	return nil
}

// validateAccounts runs the existence/status checks of spec §4.2 step 2.
func validateAccounts(source, dest *domain.Account, txType domain.TransactionType) error {
	if source == nil {
		return ledgererr.Wrapf(ledgererr.ErrUnknownAccount, "source account not found")
	}
	if dest == nil {
		return ledgererr.Wrapf(ledgererr.ErrUnknownAccount, "destination account not found")
	}
	if source.Status == domain.AccountClosed {
		return ledgererr.Wrapf(ledgererr.ErrAccountInactive, "source account %s is closed", source.ID)
	}
	if dest.Status == domain.AccountClosed {
		return ledgererr.Wrapf(ledgererr.ErrAccountInactive, "destination account %s is closed", dest.ID)
	}
	if source.Status == domain.AccountFrozen && !frozenAllowedTypes[txType] {
		return ledgererr.Wrapf(ledgererr.ErrAccountInactive, "source account %s is frozen", source.ID)
	}
	if dest.Status == domain.AccountFrozen && !frozenAllowedTypes[txType] {
		return ledgererr.Wrapf(ledgererr.ErrAccountInactive, "destination account %s is frozen", dest.ID)
	}
	return nil
}

// validateCurrency enforces the single-currency concordance of spec §4.2
// step 3 (multi-currency conversion is a non-goal).
func validateCurrency(req Request, source, dest *domain.Account) error {
	if source.Currency != req.Currency {
		return ledgererr.Wrapf(ledgererr.ErrCurrencyMismatch, "source account currency %s does not match request currency %s", source.Currency, req.Currency)
	}
	if dest.Currency != req.Currency {
		return ledgererr.Wrapf(ledgererr.ErrCurrencyMismatch, "destination account currency %s does not match request currency %s", dest.Currency, req.Currency)
	}
	return nil
}

// validateSufficientFunds enforces spec §4.2 step 4: debit-normal source
// accounts must not go negative unless overdraft metadata permits it.
// Credit-normal sources (Liability/Revenue) have no lower bound here.
func validateSufficientFunds(balance domain.AccountBalance, source *domain.Account, amount money.Amount) error {
	if !source.Type.DebitNormal() || source.AllowsOverdraft() {
		return nil
	}
	remaining, err := balance.Available.Sub(amount)
	if err != nil {
		return err
	}
	if remaining.IsNegative() {
		return ledgererr.Wrapf(ledgererr.ErrInsufficientFunds, "account %s: available %s, requested %s", source.ID, balance.Available, amount)
	}
	return nil
}

// netAmount computes Transaction.NetAmount per spec §3: amount minus fee for
// Payment/Transfer, otherwise the full amount (no fee deduction).
func netAmount(txType domain.TransactionType, amount, fee money.Amount) (money.Amount, error) {
	if txType == domain.Payment || txType == domain.Transfer {
		return amount.Sub(fee)
	}
	return amount, nil
}

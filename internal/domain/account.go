// Package domain defines the ledger kernel's entities and the state
// machines that govern their lifecycle.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/transfa/ledger-kernel/internal/money"
)

// AccountType classifies an account for double-entry sign purposes.
type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Revenue   AccountType = "revenue"
	Expense   AccountType = "expense"
)

// DebitNormal reports whether a debit increases this account type's balance.
// Asset and Expense accounts are debit-normal; Liability and Revenue are
// credit-normal.
func (t AccountType) DebitNormal() bool {
	return t == Asset || t == Expense
}

// AccountStatus is the lifecycle status of an Account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// Account is a chart-of-accounts entry. ExternalID is the caller-supplied
// unique identifier; ID is the kernel's own opaque UUID.
type Account struct {
	ID         uuid.UUID
	ExternalID string
	Name       string
	Type       AccountType
	Status     AccountStatus
	Currency   money.Currency
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AllowsOverdraft reports whether account metadata explicitly permits the
// balance to go negative.
func (a *Account) AllowsOverdraft() bool {
	if a.Metadata == nil {
		return false
	}
	v, ok := a.Metadata["allow_overdraft"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// AccountBalance is the (account_id, currency) balance row, updated under
// optimistic concurrency via Version.
type AccountBalance struct {
	AccountID   uuid.UUID
	Currency    money.Currency
	Available   money.Amount
	Pending     money.Amount
	Reserved    money.Amount
	Version     int64
	LastUpdated time.Time
}

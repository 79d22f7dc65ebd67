// Package shared holds the cross-module error taxonomy and small helpers
// used by every service in the core.
package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a requested quantity exceeds the open-batch total.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrExpiryViolation indicates the expiry policy blocked consumption of a batch.
	ErrExpiryViolation = errors.New("expiry policy violation")
	// ErrInvariantViolation indicates an attempted negative batch quantity or a
	// missing referenced entity mid-transaction. It signals a bug or a race.
	ErrInvariantViolation = errors.New("inventory invariant violation")
	// ErrConfiguration indicates an unknown costing strategy or expiry policy name.
	ErrConfiguration = errors.New("configuration error")
	// ErrPostingExists indicates a ledger posting for the idempotency key is
	// already persisted. Callers treat it as success.
	ErrPostingExists = errors.New("posting already exists")
	// ErrUnbalancedEntry indicates debits and credits of a posting do not match.
	ErrUnbalancedEntry = errors.New("unbalanced ledger entry")
)

// InsufficientStockError wraps ErrInsufficientStock with request detail.
func InsufficientStockError(variantID string, requested, available int64) error {
	return fmt.Errorf("%w: variant %s requested %d available %d",
		ErrInsufficientStock, variantID, requested, available)
}

// UserSafeMessage returns a message suitable for rendering to an operator.
// Expected, user-correctable failures keep their detail; everything else is
// reported as a generic system fault.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrExpiryViolation),
		errors.Is(err, ErrNotFound):
		return err.Error()
	default:
		return "internal error, please retry or contact support"
	}
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrItemNotFound       = errors.New("market item not found")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrInsufficientSupply = errors.New("insufficient supply")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSettlementFailed   = errors.New("settlement failed")
	ErrPriceOutOfBand     = errors.New("settlement price outside sanity band")
	ErrLoanLimitExceeded  = errors.New("loan would exceed debt-to-worth limit")
	ErrLoanNotFound       = errors.New("loan not found")
	ErrLoanNotActive      = errors.New("loan is not active")
	ErrLockHeld           = errors.New("lock already held")
	ErrContextDone        = errors.New("context cancelled")
)

// ValidationError is returned when a trade intent fails its synchronous,
// in-memory checks. It wraps one of the sentinel errors above and carries a
// human-readable reason suitable for surfacing to the player. No state has
// been touched when a ValidationError is returned.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SettlementError is returned when the persistence gateway rejects or fails
// to durably record a trade. The optimistic mutation has already been rolled
// back by the time the caller observes it.
type SettlementError struct {
	TransactionID string
	Reason        string
	Err           error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement %s: %s", e.TransactionID, e.Reason)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

package settlement_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	ErrAccountNotFound       = errors.New("account not found")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrInsufficientFunds     = errors.New("insufficient balance")
	ErrInsufficientLocked    = errors.New("insufficient locked balance")
	ErrNegativeAmount        = errors.New("amount must be positive")
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrRateLimited           = errors.New("rate limited")
	ErrServiceUnavailable    = errors.New("service unavailable")
	ErrAlreadyExists         = errors.New("already exists")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}

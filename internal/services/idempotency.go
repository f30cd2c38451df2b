package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pledgepay/internal/domain/payment"
	"pledgepay/internal/repository"
	apperrors "pledgepay/pkg/errors"
)

// IdempotencyWindow is how long a processed request shadows its key. Fixed at
// payment creation; later window changes do not move existing expiries.
const IdempotencyWindow = 24 * time.Hour

const maxIdempotencyKeyLength = 255

// IdempotencyGuard deduplicates payment submissions by client-chosen key.
type IdempotencyGuard struct {
	payments repository.PaymentRepository
	now      func() time.Time
}

func NewIdempotencyGuard(payments repository.PaymentRepository) *IdempotencyGuard {
	return &IdempotencyGuard{payments: payments, now: time.Now}
}

// ValidateKey rejects empty and oversized keys before any storage work.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", apperrors.ErrInvalidIdempotencyKey)
	}
	if len(key) > maxIdempotencyKeyLength {
		return fmt.Errorf("%w: key exceeds %d characters", apperrors.ErrInvalidIdempotencyKey, maxIdempotencyKeyLength)
	}
	return nil
}

// Check validates key and returns the payment that already owns it, or nil
// when the key is free. A payment whose window has lapsed does not count as
// an owner; the caller archives it when inserting the replacement.
func (g *IdempotencyGuard) Check(ctx context.Context, key string) (*payment.Payment, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	existing, err := g.payments.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrPaymentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if existing.IdempotencyExpired(g.now()) {
		return nil, nil
	}
	return existing, nil
}

// ExpiryFrom computes the key expiry for a payment created at t.
func ExpiryFrom(t time.Time) time.Time {
	return t.Add(IdempotencyWindow)
}

package ledger

import (
	"time"

	"github.com/google/uuid"

	apperrors "pledgepay/pkg/errors"
)

// BankAccount holds a payer's funds split into an available and a locked
// portion. Invariant: available >= 0 and locked >= 0 after every mutation;
// available + locked is conserved by LockFunds/ReleaseFunds and decreases
// only through CaptureFunds, which moves money out of the system.
type BankAccount struct {
	ID             uuid.UUID
	OwnerID        *string // user id, nil for guest accounts keyed by email only
	Email          string
	HolderName     string
	AvailableCents int64
	LockedCents    int64
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount creates an empty account for the given owner key.
func NewAccount(ownerID *string, email, holderName string) *BankAccount {
	if holderName == "" {
		holderName = "User"
	}
	now := time.Now()
	return &BankAccount{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Email:      email,
		HolderName: holderName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TotalCents is available + locked.
func (a *BankAccount) TotalCents() int64 {
	return a.AvailableCents + a.LockedCents
}

// LockFunds reserves amount for an authorization, moving it from available
// to locked.
func (a *BankAccount) LockFunds(amount int64) error {
	if amount <= 0 {
		return apperrors.ErrNegativeAmount
	}
	if a.AvailableCents < amount {
		return apperrors.ErrInsufficientFunds
	}
	a.AvailableCents -= amount
	a.LockedCents += amount
	a.touch()
	return nil
}

// CaptureFunds finalizes a prior authorization. The locked amount leaves the
// system; there is no corresponding credit elsewhere.
func (a *BankAccount) CaptureFunds(amount int64) error {
	if amount <= 0 {
		return apperrors.ErrNegativeAmount
	}
	if a.LockedCents < amount {
		return apperrors.ErrInsufficientLocked
	}
	a.LockedCents -= amount
	a.touch()
	return nil
}

// ReleaseFunds cancels an authorization, moving amount back from locked to
// available.
func (a *BankAccount) ReleaseFunds(amount int64) error {
	if amount <= 0 {
		return apperrors.ErrNegativeAmount
	}
	if a.LockedCents < amount {
		return apperrors.ErrInsufficientLocked
	}
	a.LockedCents -= amount
	a.AvailableCents += amount
	a.touch()
	return nil
}

// AddFunds credits the available balance directly (refund or provisioning).
func (a *BankAccount) AddFunds(amount int64) error {
	if amount <= 0 {
		return apperrors.ErrNegativeAmount
	}
	a.AvailableCents += amount
	a.touch()
	return nil
}

func (a *BankAccount) touch() {
	a.Version++
	a.UpdatedAt = time.Now()
}

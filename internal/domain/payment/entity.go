package payment

import (
	"time"

	"github.com/google/uuid"
)

// Payment is the settlement record for one pledge. It is created on first
// sight of an idempotency key and only mutated through Transition or
// metadata annotation once it reaches a terminal status.
type Payment struct {
	ID                   uuid.UUID
	PaymentID            string // external reference, "PAY-<uuid>"
	IdempotencyKey       string
	PledgeID             string
	PayerID              *string // nil for guest payers
	PayerEmail           string
	AmountCents          int64
	PaymentMethod        string
	Status               Status
	Metadata             map[string]string
	AttemptCount         int
	ErrorMessage         string
	IdempotencyExpiresAt time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// New creates a payment in StatusCreated with a fresh external reference.
// idempotencyExpiresAt fixes the replay window; it is never extended.
func New(pledgeID string, payerID *string, payerEmail string, amountCents int64, method, idempotencyKey string, idempotencyExpiresAt time.Time) *Payment {
	if method == "" {
		method = "credit_card"
	}
	now := time.Now()
	return &Payment{
		ID:                   uuid.New(),
		PaymentID:            "PAY-" + uuid.New().String(),
		IdempotencyKey:       idempotencyKey,
		PledgeID:             pledgeID,
		PayerID:              payerID,
		PayerEmail:           payerEmail,
		AmountCents:          amountCents,
		PaymentMethod:        method,
		Status:               StatusCreated,
		Metadata:             make(map[string]string),
		IdempotencyExpiresAt: idempotencyExpiresAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// AddMetadata annotates the payment. Allowed in any status, including terminal ones.
func (p *Payment) AddMetadata(key, value string) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	p.Metadata[key] = value
}

// RecordAttempt counts one settlement request sent to the ledger.
func (p *Payment) RecordAttempt() {
	p.AttemptCount++
	p.UpdatedAt = time.Now()
}

// MarkFailed forces the payment into the terminal failed status with a reason.
// Failed is reachable from any non-terminal status, bypassing the successor sets.
func (p *Payment) MarkFailed(reason string) {
	p.Status = StatusFailed
	p.ErrorMessage = reason
	p.UpdatedAt = time.Now()
}

// IdempotencyExpired reports whether the replay window has passed at instant now.
func (p *Payment) IdempotencyExpired(now time.Time) bool {
	return !now.Before(p.IdempotencyExpiresAt)
}

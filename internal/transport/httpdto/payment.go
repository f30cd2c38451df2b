package httpdto

import (
	"time"

	"pledgepay/internal/domain/money"
	"pledgepay/internal/domain/payment"
)

// ProcessPaymentRequest submits a pledge for settlement over HTTP. The same
// fields arrive on the pledge.created queue; the HTTP path exists for
// synchronous integrations and manual retries.
type ProcessPaymentRequest struct {
	PledgeID       string  `json:"pledge_id" binding:"required"`
	PayerID        *string `json:"payer_id"`
	PayerEmail     string  `json:"payer_email" binding:"required,email"`
	Amount         string  `json:"amount" binding:"required"`
	IdempotencyKey string  `json:"idempotency_key" binding:"required"`
}

type PaymentResponse struct {
	PaymentID    string            `json:"payment_id"`
	PledgeID     string            `json:"pledge_id"`
	PayerEmail   string            `json:"payer_email"`
	Amount       string            `json:"amount"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	AttemptCount int               `json:"attempt_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
	FromCache    bool              `json:"from_cache"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func NewPaymentResponse(p *payment.Payment, fromCache bool) PaymentResponse {
	return PaymentResponse{
		PaymentID:    p.PaymentID,
		PledgeID:     p.PledgeID,
		PayerEmail:   p.PayerEmail,
		Amount:       money.Format(p.AmountCents),
		Status:       string(p.Status),
		Metadata:     p.Metadata,
		AttemptCount: p.AttemptCount,
		ErrorMessage: p.ErrorMessage,
		FromCache:    fromCache,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

type OutboxStatsResponse struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}

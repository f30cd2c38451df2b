package events

import "time"

// Event type tags carried by outbox rows and envelopes.
const (
	EventPledgeCreated    = "PLEDGE_CREATED"
	EventPaymentCompleted = "PAYMENT_COMPLETED"
	EventPaymentFailed    = "PAYMENT_FAILED"
)

// Broker routing keys for direct (non-outbox) publishes.
const (
	KeyLedgerRequest  = "ledger.request"
	KeyLedgerResponse = "ledger.response"
)

// LedgerRequestType discriminates a LedgerRequest. The consumer matches it
// exhaustively; there is no runtime type inspection of the payload.
type LedgerRequestType string

const (
	RequestAuthorize LedgerRequestType = "AUTHORIZE"
	RequestCapture   LedgerRequestType = "CAPTURE"
)

// LedgerEventType discriminates a LedgerEvent.
type LedgerEventType string

const (
	LedgerAuthorized LedgerEventType = "AUTHORIZED"
	LedgerCaptured   LedgerEventType = "CAPTURED"
	LedgerFailed     LedgerEventType = "FAILED"
)

// Outcome is the success/failure tag on a ledger response.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// PledgeCreatedEvent is the inbound notification that starts the pipeline.
// Produced by the pledge service (external collaborator) through its own outbox.
type PledgeCreatedEvent struct {
	PledgeID       string    `json:"pledge_id"`
	PayerID        *string   `json:"payer_id,omitempty"`
	PayerEmail     string    `json:"payer_email"`
	Amount         string    `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
}

// LedgerRequest asks the ledger to authorize or capture funds for a payment.
type LedgerRequest struct {
	RequestType    LedgerRequestType `json:"request_type"`
	PaymentID      string            `json:"payment_id"`
	PayerEmail     string            `json:"payer_email"`
	PayerID        *string           `json:"payer_id,omitempty"`
	AmountCents    int64             `json:"amount_cents"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// LedgerEvent is the ledger's reply. Outcome is always well-formed: transient
// ledger faults surface as a FAILED outcome, never as a missing reply.
type LedgerEvent struct {
	EventType      LedgerEventType `json:"event_type"`
	PaymentID      string          `json:"payment_id"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	AmountCents    int64           `json:"amount_cents"`
	Outcome        Outcome         `json:"outcome"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PaymentResultEvent announces the terminal outcome of a payment to the
// pledge owner. Written through the outbox.
type PaymentResultEvent struct {
	PaymentID      string    `json:"payment_id"`
	PledgeID       string    `json:"pledge_id"`
	PayerID        *string   `json:"payer_id,omitempty"`
	AmountCents    int64     `json:"amount_cents"`
	Status         string    `json:"status"`
	TransactionRef string    `json:"transaction_ref,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

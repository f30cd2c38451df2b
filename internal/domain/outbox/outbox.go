package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the processing state of an outbox event
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPublished  Status = "PUBLISHED"
	StatusFailed     Status = "FAILED"
)

// OutboxEvent stores a domain event waiting to be relayed to the broker.
// The row is inserted in the same transaction as the business mutation it
// announces, mutated only by the relay, and never deleted.
type OutboxEvent struct {
	ID            uuid.UUID
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       []byte
	Status        Status
	RetryCount    int
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pledgepay/internal/domain/outbox"
	"pledgepay/internal/repository"
)

// Write inserts an outbox event on tx. Callers pass the transaction that
// carries the business mutation the event announces, so the two commit or
// roll back together.
func Write(ctx context.Context, repo repository.OutboxRepository, tx repository.DBTX, aggregateType, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	ev := &outbox.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       body,
		Status:        outbox.StatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := repo.Create(ctx, tx, ev); err != nil {
		return fmt.Errorf("failed to write outbox event: %w", err)
	}
	return nil
}

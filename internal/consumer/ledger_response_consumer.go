package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pledgepay/internal/events"
	"pledgepay/internal/services"
	apperrors "pledgepay/pkg/errors"
	"pledgepay/pkg/logger"
)

// LedgerResponseConsumer feeds ledger replies back into the orchestrator.
type LedgerResponseConsumer struct {
	orchestrator *services.PaymentOrchestrator
	logger       *logger.Logger
}

func NewLedgerResponseConsumer(orchestrator *services.PaymentOrchestrator, l *logger.Logger) *LedgerResponseConsumer {
	return &LedgerResponseConsumer{orchestrator: orchestrator, logger: l}
}

func (c *LedgerResponseConsumer) Handle(ctx context.Context, body []byte) error {
	var ev events.LedgerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Errorf("Dropping malformed ledger event: %v", err)
		return nil
	}

	if err := c.orchestrator.HandleLedgerEvent(ctx, ev); err != nil {
		if errors.Is(err, apperrors.ErrPaymentNotFound) {
			// The ledger reply can outrun the payment insert's commit;
			// requeue and let the next delivery find the row.
			return fmt.Errorf("payment %s not yet visible: %w", ev.PaymentID, err)
		}
		return err
	}
	return nil
}

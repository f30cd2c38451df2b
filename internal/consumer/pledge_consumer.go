package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"pledgepay/internal/events"
	"pledgepay/internal/services"
	"pledgepay/pkg/logger"
)

// PledgeConsumer admits pledge.created notifications from the pledge service.
type PledgeConsumer struct {
	orchestrator *services.PaymentOrchestrator
	logger       *logger.Logger
}

func NewPledgeConsumer(orchestrator *services.PaymentOrchestrator, l *logger.Logger) *PledgeConsumer {
	return &PledgeConsumer{orchestrator: orchestrator, logger: l}
}

// Handle processes one pledge notification. Malformed bodies and invalid
// submissions are acked; redelivery cannot repair them.
func (c *PledgeConsumer) Handle(ctx context.Context, body []byte) error {
	var ev events.PledgeCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Errorf("Dropping malformed pledge event: %v", err)
		return nil
	}

	p, fromCache, err := c.orchestrator.ProcessPledge(ctx, ev)
	if err != nil {
		if isPermanent(err) {
			c.logger.Errorf("Dropping invalid pledge %s: %v", ev.PledgeID, err)
			return nil
		}
		return fmt.Errorf("failed to process pledge %s: %w", ev.PledgeID, err)
	}
	if fromCache {
		c.logger.InfofCtx(ctx, "Pledge %s already processed as payment %s", ev.PledgeID, p.PaymentID)
	}
	return nil
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"pledgepay/internal/broker"
	"pledgepay/internal/events"
	"pledgepay/internal/services"
	apperrors "pledgepay/pkg/errors"
	"pledgepay/pkg/logger"
)

// LedgerRequestConsumer runs the ledger side of the settlement conversation:
// it executes authorize and capture requests and publishes the reply on the
// response key. A successful authorization is immediately followed by a
// capture request, so a payment settles without waiting for the next
// orchestrator round trip; the duplicate capture the orchestrator may still
// send is absorbed by the ledger's transaction-log scan.
type LedgerRequestConsumer struct {
	ledger    *services.LedgerService
	publisher broker.Publisher
	logger    *logger.Logger
}

func NewLedgerRequestConsumer(ledger *services.LedgerService, publisher broker.Publisher, l *logger.Logger) *LedgerRequestConsumer {
	return &LedgerRequestConsumer{ledger: ledger, publisher: publisher, logger: l}
}

func (c *LedgerRequestConsumer) Handle(ctx context.Context, body []byte) error {
	var req events.LedgerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.logger.Errorf("Dropping malformed ledger request: %v", err)
		return nil
	}

	switch req.RequestType {
	case events.RequestAuthorize:
		ev := c.ledger.Authorize(ctx, req)
		if err := c.respond(ctx, ev); err != nil {
			return err
		}
		if ev.Outcome == events.OutcomeSuccess {
			capture := req
			capture.RequestType = events.RequestCapture
			return c.respond(ctx, c.ledger.Capture(ctx, capture))
		}
		return nil
	case events.RequestCapture:
		return c.respond(ctx, c.ledger.Capture(ctx, req))
	default:
		c.logger.Errorf("Dropping ledger request with unknown type %q for payment %s", req.RequestType, req.PaymentID)
		return nil
	}
}

func (c *LedgerRequestConsumer) respond(ctx context.Context, ev events.LedgerEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.publisher.Publish(ctx, events.KeyLedgerResponse, body)
}

// isPermanent reports whether redelivering the message could ever succeed.
func isPermanent(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidIdempotencyKey) ||
		errors.Is(err, apperrors.ErrInvalidInput)
}

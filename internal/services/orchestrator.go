package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pledgepay/internal/broker"
	"pledgepay/internal/domain/money"
	"pledgepay/internal/domain/payment"
	"pledgepay/internal/events"
	"pledgepay/internal/locks"
	ob "pledgepay/internal/outbox"
	"pledgepay/internal/repository"
	apperrors "pledgepay/pkg/errors"
	"pledgepay/pkg/logger"
)

const paymentAggregate = "payment"

// PaymentOrchestrator drives a payment through its state machine: it admits
// pledge notifications, asks the ledger to authorize and capture, and
// announces terminal outcomes through the outbox.
type PaymentOrchestrator struct {
	payments     repository.PaymentRepository
	outbox       repository.OutboxRepository
	txManager    repository.TxManager
	publisher    broker.Publisher
	guard        *IdempotencyGuard
	paymentLocks *locks.KeyMutex
	logger       *logger.Logger
	now          func() time.Time
}

func NewPaymentOrchestrator(
	payments repository.PaymentRepository,
	outboxRepo repository.OutboxRepository,
	txManager repository.TxManager,
	publisher broker.Publisher,
	l *logger.Logger,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		payments:     payments,
		outbox:       outboxRepo,
		txManager:    txManager,
		publisher:    publisher,
		guard:        NewIdempotencyGuard(payments),
		paymentLocks: locks.NewKeyMutex(),
		logger:       l,
		now:          time.Now,
	}
}

// ProcessPledge admits one pledge notification. The second return value is
// true when the idempotency key matched an unexpired prior request and the
// stored payment was returned instead of creating a new one.
func (o *PaymentOrchestrator) ProcessPledge(ctx context.Context, ev events.PledgeCreatedEvent) (*payment.Payment, bool, error) {
	existing, err := o.guard.Check(ctx, ev.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		o.logger.InfofCtx(ctx, "Idempotency hit for key, returning payment %s", existing.PaymentID)
		return existing, true, nil
	}

	amountCents, err := money.Parse(ev.Amount)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	created := o.now()
	p := payment.New(ev.PledgeID, ev.PayerID, ev.PayerEmail, amountCents, "", ev.IdempotencyKey, ExpiryFrom(created))
	// Stamped before the insert: once the authorize request is on the wire
	// the ledger reply owns the row, so no write may follow the publish.
	p.AddMetadata("authorization_sent_at", created.Format(time.RFC3339))
	p.RecordAttempt()

	err = o.txManager.WithTransaction(ctx, func(tx repository.DBTX) error {
		// Expired rows still hold the key under the unique index; rewrite
		// them in the same transaction so the insert cannot race a second
		// submission for the same key.
		if _, err := o.payments.ArchiveExpiredKey(ctx, tx, ev.IdempotencyKey, created); err != nil {
			return err
		}
		return o.payments.Create(ctx, tx, p)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// Lost a race with a concurrent submission of the same key.
			winner, getErr := o.payments.GetByIdempotencyKey(ctx, ev.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return winner, true, nil
		}
		return nil, false, err
	}

	o.logger.InfofCtx(ctx, "Created payment %s for pledge %s (%d cents)", p.PaymentID, p.PledgeID, p.AmountCents)

	if err := o.sendLedgerRequest(ctx, p, events.RequestAuthorize); err != nil {
		// The request never left, so no ledger reply can be in flight; the
		// lock still guards against a concurrent redelivery of the pledge.
		o.paymentLocks.Lock(p.PaymentID)
		o.failPayment(ctx, p, "failed to request authorization")
		o.paymentLocks.Unlock(p.PaymentID)
		return p, false, nil
	}
	return p, false, nil
}

// HandleLedgerEvent applies one ledger reply to the payment it names.
// Rejected transitions (duplicate or out-of-order delivery) are logged and
// dropped; returning nil lets the consumer ack instead of redelivering a
// message that can never apply.
func (o *PaymentOrchestrator) HandleLedgerEvent(ctx context.Context, ev events.LedgerEvent) error {
	o.paymentLocks.Lock(ev.PaymentID)
	defer o.paymentLocks.Unlock(ev.PaymentID)

	ctx = context.WithValue(ctx, logger.PaymentIdKey, ev.PaymentID)

	p, err := o.payments.GetByPaymentID(ctx, ev.PaymentID)
	if err != nil {
		return err
	}

	switch ev.EventType {
	case events.LedgerAuthorized:
		return o.onAuthorized(ctx, p, ev)
	case events.LedgerCaptured:
		return o.onCaptured(ctx, p, ev)
	case events.LedgerFailed:
		return o.onFailed(ctx, p, ev)
	default:
		o.logger.ErrorfCtx(ctx, "Unknown ledger event type %q for payment %s, dropping", ev.EventType, ev.PaymentID)
		return nil
	}
}

func (o *PaymentOrchestrator) onAuthorized(ctx context.Context, p *payment.Payment, ev events.LedgerEvent) error {
	if err := p.Transition(payment.StatusAuthorized); err != nil {
		return o.dropRejectedTransition(ctx, p, err)
	}
	p.AddMetadata("banking_transaction_id", ev.TransactionRef)
	p.RecordAttempt()
	if err := o.payments.Update(ctx, nil, p); err != nil {
		return err
	}
	o.logger.InfofCtx(ctx, "Payment %s authorized, requesting capture", p.PaymentID)

	if err := o.sendLedgerRequest(ctx, p, events.RequestCapture); err != nil {
		o.failPayment(ctx, p, "failed to request capture")
		return nil
	}
	return nil
}

func (o *PaymentOrchestrator) onCaptured(ctx context.Context, p *payment.Payment, ev events.LedgerEvent) error {
	if err := p.Transition(payment.StatusCaptured); err != nil {
		return o.dropRejectedTransition(ctx, p, err)
	}
	p.AddMetadata("capture_time", ev.Timestamp.Format(time.RFC3339))

	return o.txManager.WithTransaction(ctx, func(tx repository.DBTX) error {
		if err := o.payments.Update(ctx, tx, p); err != nil {
			return err
		}
		result := events.PaymentResultEvent{
			PaymentID:      p.PaymentID,
			PledgeID:       p.PledgeID,
			PayerID:        p.PayerID,
			AmountCents:    p.AmountCents,
			Status:         string(p.Status),
			TransactionRef: ev.TransactionRef,
			Timestamp:      o.now(),
		}
		if err := ob.Write(ctx, o.outbox, tx, paymentAggregate, events.EventPaymentCompleted, p.PaymentID, result); err != nil {
			return err
		}
		o.logger.InfofCtx(ctx, "Payment %s captured, completion queued", p.PaymentID)
		return nil
	})
}

func (o *PaymentOrchestrator) onFailed(ctx context.Context, p *payment.Payment, ev events.LedgerEvent) error {
	if payment.IsTerminal(p.Status) {
		o.logger.WarnfCtx(ctx, "Ignoring ledger failure for terminal payment %s (status %s)", p.PaymentID, p.Status)
		return nil
	}
	reason := ev.FailureReason
	if reason == "" {
		reason = "ledger declined"
	}
	o.failPayment(ctx, p, reason)
	return nil
}

// failPayment marks p failed and queues the failure notification, both in
// one transaction.
func (o *PaymentOrchestrator) failPayment(ctx context.Context, p *payment.Payment, reason string) {
	p.MarkFailed(reason)
	p.AddMetadata("failure_reason", reason)

	err := o.txManager.WithTransaction(ctx, func(tx repository.DBTX) error {
		if err := o.payments.Update(ctx, tx, p); err != nil {
			return err
		}
		result := events.PaymentResultEvent{
			PaymentID:     p.PaymentID,
			PledgeID:      p.PledgeID,
			PayerID:       p.PayerID,
			AmountCents:   p.AmountCents,
			Status:        string(p.Status),
			FailureReason: reason,
			Timestamp:     o.now(),
		}
		return ob.Write(ctx, o.outbox, tx, paymentAggregate, events.EventPaymentFailed, p.PaymentID, result)
	})
	if err != nil {
		o.logger.ErrorfCtx(ctx, "Failed to record failure of payment %s: %v", p.PaymentID, err)
		return
	}
	o.logger.WarnfCtx(ctx, "Payment %s failed: %s", p.PaymentID, reason)
}

func (o *PaymentOrchestrator) sendLedgerRequest(ctx context.Context, p *payment.Payment, reqType events.LedgerRequestType) error {
	body, err := json.Marshal(events.LedgerRequest{
		RequestType:    reqType,
		PaymentID:      p.PaymentID,
		PayerEmail:     p.PayerEmail,
		PayerID:        p.PayerID,
		AmountCents:    p.AmountCents,
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	return o.publisher.Publish(ctx, events.KeyLedgerRequest, body)
}

func (o *PaymentOrchestrator) dropRejectedTransition(ctx context.Context, p *payment.Payment, err error) error {
	var te *payment.TransitionError
	if errors.As(err, &te) {
		o.logger.WarnfCtx(ctx, "Dropping stale ledger event for payment %s: %v", p.PaymentID, te)
		return nil
	}
	return err
}

func (o *PaymentOrchestrator) GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	return o.payments.GetByPaymentID(ctx, paymentID)
}

func (o *PaymentOrchestrator) GetPaymentByPledgeID(ctx context.Context, pledgeID string) (*payment.Payment, error) {
	return o.payments.GetByPledgeID(ctx, pledgeID)
}

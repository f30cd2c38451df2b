package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pledgepay/internal/domain/ledger"
	"pledgepay/internal/domain/outbox"
	"pledgepay/internal/domain/payment"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx DBTX, p *payment.Payment) error
	Update(ctx context.Context, tx DBTX, p *payment.Payment) error
	GetByPaymentID(ctx context.Context, paymentID string) (*payment.Payment, error)
	GetByPledgeID(ctx context.Context, pledgeID string) (*payment.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error)
	// ArchiveExpiredKey rewrites the idempotency key of an expired payment so
	// the key becomes reusable without relaxing the unique constraint. Returns
	// the number of rows rewritten (0 or 1).
	ArchiveExpiredKey(ctx context.Context, tx DBTX, key string, now time.Time) (int64, error)
}

type AccountRepository interface {
	Create(ctx context.Context, tx DBTX, a *ledger.BankAccount) error
	Update(ctx context.Context, tx DBTX, a *ledger.BankAccount) error
	GetByEmail(ctx context.Context, email string) (*ledger.BankAccount, error)
	// GetByEmailForUpdate locks the account row for the duration of tx.
	GetByEmailForUpdate(ctx context.Context, tx DBTX, email string) (*ledger.BankAccount, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx DBTX, t *ledger.BankTransaction) error
	FindByExternalReference(ctx context.Context, ref string) ([]ledger.BankTransaction, error)
	FindByAccountID(ctx context.Context, accountID uuid.UUID) ([]ledger.BankTransaction, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, tx DBTX, event *outbox.OutboxEvent) error
	// GetPublishable returns Pending events plus Failed events whose retry
	// count is still below maxRetries, oldest first.
	GetPublishable(ctx context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error)
	// MarkProcessing claims the event for this relay instance. The claim is
	// conditional on the row still being claimable; false means another
	// instance won the row between fetch and claim.
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	// MarkRetry increments the retry count, records the error and returns the
	// event to Pending for the next relay pass.
	MarkRetry(ctx context.Context, id uuid.UUID, errorMsg string) error
	// MarkFailed increments the retry count and parks the event in Failed;
	// it will not be retried past maxRetries without operator intervention.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error
	// ReclaimStale returns Processing rows older than staleAfter to Pending.
	// Heals crashes between the Processing claim and the broker publish.
	ReclaimStale(ctx context.Context, staleAfter time.Duration) (int64, error)
	CountByStatus(ctx context.Context, status outbox.Status) (int64, error)
}

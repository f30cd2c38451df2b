package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pledgepay/internal/domain/payment"
	apperrors "pledgepay/pkg/errors"
)

type paymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, payment_id, idempotency_key, pledge_id, payer_id, payer_email, amount_cents, payment_method, status, metadata, attempt_count, error_message, idempotency_expires_at, created_at, updated_at`

func (r *paymentRepository) Create(ctx context.Context, tx DBTX, p *payment.Payment) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = execDB.ExecContext(ctx, `
        INSERT INTO payments (`+paymentColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    `,
		p.ID,
		p.PaymentID,
		p.IdempotencyKey,
		p.PledgeID,
		p.PayerID,
		p.PayerEmail,
		p.AmountCents,
		p.PaymentMethod,
		p.Status,
		metadata,
		p.AttemptCount,
		p.ErrorMessage,
		p.IdempotencyExpiresAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return apperrors.ErrAlreadyExists
	}
	return err
}

func (r *paymentRepository) Update(ctx context.Context, tx DBTX, p *payment.Payment) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	res, err := execDB.ExecContext(ctx, `
        UPDATE payments
        SET status = $1, metadata = $2, attempt_count = $3, error_message = $4, updated_at = $5
        WHERE payment_id = $6
    `, p.Status, metadata, p.AttemptCount, p.ErrorMessage, time.Now(), p.PaymentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID)
}

func (r *paymentRepository) GetByPledgeID(ctx context.Context, pledgeID string) (*payment.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE pledge_id = $1 ORDER BY created_at DESC LIMIT 1`, pledgeID)
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key)
}

func (r *paymentRepository) ArchiveExpiredKey(ctx context.Context, tx DBTX, key string, now time.Time) (int64, error) {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	res, err := execDB.ExecContext(ctx, `
        UPDATE payments
        SET idempotency_key = idempotency_key || '::expired::' || id::text, updated_at = $1
        WHERE idempotency_key = $2 AND idempotency_expires_at <= $3
    `, now, key, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *paymentRepository) getOne(ctx context.Context, query string, arg interface{}) (*payment.Payment, error) {
	var p payment.Payment
	var payerID sql.NullString
	var metadata []byte

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID,
		&p.PaymentID,
		&p.IdempotencyKey,
		&p.PledgeID,
		&payerID,
		&p.PayerEmail,
		&p.AmountCents,
		&p.PaymentMethod,
		&p.Status,
		&metadata,
		&p.AttemptCount,
		&p.ErrorMessage,
		&p.IdempotencyExpiresAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}

	if payerID.Valid {
		p.PayerID = &payerID.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &p, nil
}

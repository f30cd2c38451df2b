package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pledgepay/internal/domain/outbox"
)

type outboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, tx DBTX, event *outbox.OutboxEvent) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	_, err := execDB.ExecContext(ctx, `
        INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, payload, status, retry_count, error, created_at, updated_at, processed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `,
		event.ID,
		event.EventType,
		event.AggregateType,
		event.AggregateID,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.Error,
		event.CreatedAt,
		event.UpdatedAt,
		event.ProcessedAt,
	)
	return err
}

func (r *outboxRepository) GetPublishable(ctx context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error) {
	var events []outbox.OutboxEvent
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, event_type, aggregate_type, aggregate_id, payload, status, retry_count, error, created_at, updated_at, processed_at
        FROM outbox_events
        WHERE status = $1 OR (status = $2 AND retry_count < $3)
        ORDER BY created_at ASC
        LIMIT $4
    `, outbox.StatusPending, outbox.StatusFailed, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var event outbox.OutboxEvent
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.AggregateType,
			&event.AggregateID,
			&event.Payload,
			&event.Status,
			&event.RetryCount,
			&event.Error,
			&event.CreatedAt,
			&event.UpdatedAt,
			&event.ProcessedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, updated_at = $2
        WHERE id = $3 AND status IN ($4, $5)
    `, outbox.StatusProcessing, time.Now(), id, outbox.StatusPending, outbox.StatusFailed)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, processed_at = $2, updated_at = $3
        WHERE id = $4
    `, outbox.StatusPublished, &now, now, id)
	return err
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, retry_count = retry_count + 1, error = $2, updated_at = $3
        WHERE id = $4
    `, outbox.StatusPending, errorMsg, time.Now(), id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, retry_count = retry_count + 1, error = $2, updated_at = $3
        WHERE id = $4
    `, outbox.StatusFailed, errorMsg, time.Now(), id)
	return err
}

func (r *outboxRepository) ReclaimStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, updated_at = $2
        WHERE status = $3 AND updated_at < $4
    `, outbox.StatusPending, time.Now(), outbox.StatusProcessing, time.Now().Add(-staleAfter))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *outboxRepository) CountByStatus(ctx context.Context, status outbox.Status) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM outbox_events WHERE status = $1
    `, status).Scan(&count)
	return count, err
}

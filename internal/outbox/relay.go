package outbox

import (
	"context"
	"encoding/json"
	"time"

	"pledgepay/config"
	"pledgepay/internal/broker"
	"pledgepay/internal/domain/outbox"
	"pledgepay/internal/events"
	"pledgepay/internal/repository"
	"pledgepay/pkg/logger"
)

// Relay drains the outbox table to the broker. A single relay instance runs
// per process; the Processing claim plus the stale-claim sweep keep multiple
// instances from double-publishing after a crash.
type Relay struct {
	repo      repository.OutboxRepository
	publisher broker.Publisher
	logger    *logger.Logger

	interval     time.Duration
	startupDelay time.Duration
	staleAfter   time.Duration
	batchSize    int
	maxRetries   int

	now func() time.Time
}

func NewRelay(repo repository.OutboxRepository, publisher broker.Publisher, cfg config.OutboxConfig, l *logger.Logger) *Relay {
	return &Relay{
		repo:         repo,
		publisher:    publisher,
		logger:       l,
		interval:     cfg.Interval,
		startupDelay: cfg.StartupDelay,
		staleAfter:   cfg.StaleAfter,
		batchSize:    cfg.BatchSize,
		maxRetries:   cfg.MaxRetries,
		now:          time.Now,
	}
}

// Run blocks until ctx is cancelled. The startup delay gives the broker and
// database time to come up when the whole stack starts at once.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Infof("Outbox relay starting in %s (interval=%s batch=%d)", r.startupDelay, r.interval, r.batchSize)

	select {
	case <-ctx.Done():
		return
	case <-time.After(r.startupDelay):
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Outbox relay stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one relay pass: reclaim stale Processing claims, then publish
// one batch of publishable events.
func (r *Relay) Sweep(ctx context.Context) {
	reclaimed, err := r.repo.ReclaimStale(ctx, r.staleAfter)
	if err != nil {
		r.logger.Errorf("Failed to reclaim stale outbox events: %v", err)
	} else if reclaimed > 0 {
		r.logger.Warnf("Reclaimed %d stale outbox events", reclaimed)
	}

	batch, err := r.repo.GetPublishable(ctx, r.batchSize, r.maxRetries)
	if err != nil {
		r.logger.Errorf("Failed to fetch outbox events: %v", err)
		return
	}

	for i := range batch {
		r.relayOne(ctx, &batch[i])
	}
}

func (r *Relay) relayOne(ctx context.Context, ev *outbox.OutboxEvent) {
	claimed, err := r.repo.MarkProcessing(ctx, ev.ID)
	if err != nil {
		r.logger.Errorf("Failed to claim outbox event %s: %v", ev.ID, err)
		return
	}
	if !claimed {
		// Another relay instance won the row between fetch and claim.
		r.logger.Infof("Skipping outbox event %s, already claimed", ev.ID)
		return
	}

	body, err := json.Marshal(events.Envelope{
		EventType:     ev.EventType,
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		OccurredAt:    ev.CreatedAt,
		Payload:       ev.Payload,
	})
	if err != nil {
		// Payload is raw JSON we wrote ourselves; a marshal failure here is
		// permanent, retrying cannot fix it.
		r.logger.Errorf("Failed to marshal envelope for outbox event %s: %v", ev.ID, err)
		r.markFailure(ctx, ev, err)
		return
	}

	if err := r.publisher.Publish(ctx, events.RoutingKey(ev.EventType), body); err != nil {
		r.logger.Errorf("Failed to publish outbox event %s (%s): %v", ev.ID, ev.EventType, err)
		r.markFailure(ctx, ev, err)
		return
	}

	if err := r.repo.MarkPublished(ctx, ev.ID); err != nil {
		// The message went out but the row is still Processing. The stale
		// sweep will hand it back and the consumer side must tolerate the
		// duplicate; at-least-once is the contract.
		r.logger.Errorf("Published outbox event %s but failed to mark it: %v", ev.ID, err)
		return
	}

	r.logger.Infof("Published outbox event %s type=%s aggregate=%s", ev.ID, ev.EventType, ev.AggregateID)
}

func (r *Relay) markFailure(ctx context.Context, ev *outbox.OutboxEvent, cause error) {
	if ev.RetryCount+1 >= r.maxRetries {
		if err := r.repo.MarkFailed(ctx, ev.ID, cause.Error()); err != nil {
			r.logger.Errorf("Failed to park outbox event %s: %v", ev.ID, err)
			return
		}
		r.logger.Errorf("Outbox event %s exhausted %d attempts, parked as FAILED", ev.ID, r.maxRetries)
		return
	}
	if err := r.repo.MarkRetry(ctx, ev.ID, cause.Error()); err != nil {
		r.logger.Errorf("Failed to schedule retry for outbox event %s: %v", ev.ID, err)
	}
}

// Stats reports the pending and failed backlog for the stats endpoint.
func (r *Relay) Stats(ctx context.Context) (pending, failed int64, err error) {
	pending, err = r.repo.CountByStatus(ctx, outbox.StatusPending)
	if err != nil {
		return 0, 0, err
	}
	failed, err = r.repo.CountByStatus(ctx, outbox.StatusFailed)
	if err != nil {
		return 0, 0, err
	}
	return pending, failed, nil
}

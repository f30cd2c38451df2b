package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"pledgepay/config"
	"pledgepay/internal/broker"
	"pledgepay/internal/domain/outbox"
	"pledgepay/internal/events"
	"pledgepay/internal/repository"
	"pledgepay/pkg/logger"
)

type memOutboxRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*outbox.OutboxEvent
}

func newMemOutboxRepo() *memOutboxRepo {
	return &memOutboxRepo{events: make(map[uuid.UUID]*outbox.OutboxEvent)}
}

func (m *memOutboxRepo) Create(_ context.Context, _ repository.DBTX, ev *outbox.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memOutboxRepo) GetPublishable(_ context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.OutboxEvent
	for _, ev := range m.events {
		if len(out) >= limit {
			break
		}
		if ev.Status == outbox.StatusPending {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memOutboxRepo) MarkProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false, errors.New("event not found")
	}
	if ev.Status != outbox.StatusPending && ev.Status != outbox.StatusFailed {
		return false, nil
	}
	ev.Status = outbox.StatusProcessing
	ev.UpdatedAt = time.Now()
	return true, nil
}

func (m *memOutboxRepo) MarkPublished(_ context.Context, id uuid.UUID) error {
	return m.setStatus(id, outbox.StatusPublished, "", false)
}

func (m *memOutboxRepo) MarkRetry(_ context.Context, id uuid.UUID, errorMsg string) error {
	return m.setStatus(id, outbox.StatusPending, errorMsg, true)
}

func (m *memOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMsg string) error {
	return m.setStatus(id, outbox.StatusFailed, errorMsg, true)
}

func (m *memOutboxRepo) setStatus(id uuid.UUID, s outbox.Status, errorMsg string, bumpRetry bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return errors.New("event not found")
	}
	ev.Status = s
	ev.UpdatedAt = time.Now()
	if errorMsg != "" {
		ev.Error = errorMsg
	}
	if bumpRetry {
		ev.RetryCount++
	}
	return nil
}

func (m *memOutboxRepo) ReclaimStale(_ context.Context, staleAfter time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	var n int64
	for _, ev := range m.events {
		if ev.Status == outbox.StatusProcessing && ev.UpdatedAt.Before(cutoff) {
			ev.Status = outbox.StatusPending
			n++
		}
	}
	return n, nil
}

func (m *memOutboxRepo) CountByStatus(_ context.Context, s outbox.Status) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, ev := range m.events {
		if ev.Status == s {
			n++
		}
	}
	return n, nil
}

func (m *memOutboxRepo) get(id uuid.UUID) outbox.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.events[id]
}

type recordingPublisher struct {
	mu        sync.Mutex
	failTimes int
	published []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTimes > 0 {
		p.failTimes--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, routingKey)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func testRelay(repo repository.OutboxRepository, pub broker.Publisher) *Relay {
	return NewRelay(repo, pub, config.OutboxConfig{
		Interval:     time.Millisecond,
		StartupDelay: 0,
		BatchSize:    50,
		MaxRetries:   3,
		StaleAfter:   time.Minute,
	}, logger.New("test"))
}

func seedEvent(t *testing.T, repo *memOutboxRepo, eventType string) uuid.UUID {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"payment_id": "PAY-1"})
	ev := &outbox.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: "payment",
		AggregateID:   "PAY-1",
		Payload:       payload,
		Status:        outbox.StatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := repo.Create(context.Background(), nil, ev); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return ev.ID
}

func TestSweepPublishesAndMarks(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &recordingPublisher{}
	id := seedEvent(t, repo, events.EventPaymentCompleted)

	testRelay(repo, pub).Sweep(context.Background())

	if got := pub.count(); got != 1 {
		t.Fatalf("published %d events, want 1", got)
	}
	if pub.published[0] != "payment.completed" {
		t.Errorf("routing key = %q, want payment.completed", pub.published[0])
	}
	if s := repo.get(id).Status; s != outbox.StatusPublished {
		t.Errorf("status = %s, want PUBLISHED", s)
	}
}

func TestSweepDoesNotRepublish(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &recordingPublisher{}
	seedEvent(t, repo, events.EventPaymentCompleted)

	r := testRelay(repo, pub)
	r.Sweep(context.Background())
	r.Sweep(context.Background())

	if got := pub.count(); got != 1 {
		t.Fatalf("published %d events after two sweeps, want 1", got)
	}
}

func TestPublishFailureRetriesThenSucceeds(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &recordingPublisher{failTimes: 2}
	id := seedEvent(t, repo, events.EventPaymentFailed)

	r := testRelay(repo, pub)
	r.Sweep(context.Background())
	if s := repo.get(id).Status; s != outbox.StatusPending {
		t.Fatalf("status after first failure = %s, want PENDING", s)
	}
	r.Sweep(context.Background())
	r.Sweep(context.Background())

	if got := pub.count(); got != 1 {
		t.Fatalf("published %d events, want 1", got)
	}
	ev := repo.get(id)
	if ev.Status != outbox.StatusPublished {
		t.Errorf("status = %s, want PUBLISHED", ev.Status)
	}
	if ev.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", ev.RetryCount)
	}
}

func TestExhaustedRetriesParkAsFailed(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &recordingPublisher{failTimes: 100}
	id := seedEvent(t, repo, events.EventPledgeCreated)

	r := testRelay(repo, pub)
	for i := 0; i < 5; i++ {
		r.Sweep(context.Background())
	}

	ev := repo.get(id)
	if ev.Status != outbox.StatusFailed {
		t.Fatalf("status = %s, want FAILED", ev.Status)
	}
	if ev.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", ev.RetryCount)
	}
	if ev.Error == "" {
		t.Error("expected last error to be recorded")
	}

	// Parked events stay parked.
	r.Sweep(context.Background())
	if got := repo.get(id).RetryCount; got != 3 {
		t.Errorf("retry count after extra sweep = %d, want 3", got)
	}
}

func TestStaleClaimReclaimedNextSweep(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &recordingPublisher{}
	id := seedEvent(t, repo, events.EventPaymentCompleted)

	// Simulate a crash after the claim: the row sits in Processing with an
	// old updated_at and nothing will touch it again.
	if _, err := repo.MarkProcessing(context.Background(), id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	repo.mu.Lock()
	repo.events[id].UpdatedAt = time.Now().Add(-2 * time.Minute)
	repo.mu.Unlock()

	testRelay(repo, pub).Sweep(context.Background())

	if got := pub.count(); got != 1 {
		t.Fatalf("published %d events after reclaim, want 1", got)
	}
	if s := repo.get(id).Status; s != outbox.StatusPublished {
		t.Errorf("status = %s, want PUBLISHED", s)
	}
}

func TestLostClaimSkipsEvent(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &recordingPublisher{}
	id := seedEvent(t, repo, events.EventPaymentCompleted)

	r := testRelay(repo, pub)
	batch, err := repo.GetPublishable(context.Background(), 50, 3)
	if err != nil {
		t.Fatalf("fetch batch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("batch size = %d, want 1", len(batch))
	}

	// A second relay instance claims the row between our fetch and claim.
	claimed, err := repo.MarkProcessing(context.Background(), id)
	if err != nil || !claimed {
		t.Fatalf("external claim: claimed=%v err=%v", claimed, err)
	}

	r.relayOne(context.Background(), &batch[0])

	if got := pub.count(); got != 0 {
		t.Fatalf("published %d events on a lost claim, want 0", got)
	}
	if s := repo.get(id).Status; s != outbox.StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", s)
	}
}

func TestEnvelopeWrapsStoredPayload(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &capturingPublisher{}
	seedEvent(t, repo, events.EventPaymentCompleted)

	testRelay(repo, pub).Sweep(context.Background())

	var env events.Envelope
	if err := json.Unmarshal(pub.body, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.EventType != events.EventPaymentCompleted {
		t.Errorf("event type = %q", env.EventType)
	}
	if env.AggregateID != "PAY-1" {
		t.Errorf("aggregate id = %q", env.AggregateID)
	}
	var inner map[string]string
	if err := json.Unmarshal(env.Payload, &inner); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if inner["payment_id"] != "PAY-1" {
		t.Errorf("payload = %v", inner)
	}
}

type capturingPublisher struct {
	recordingPublisher
	body []byte
}

func (p *capturingPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.body = body
	return p.recordingPublisher.Publish(ctx, routingKey, body)
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"pledgepay/internal/domain/ledger"
	"pledgepay/internal/domain/outbox"
	"pledgepay/internal/domain/payment"
	"pledgepay/internal/repository"
	apperrors "pledgepay/pkg/errors"
)

// stubPaymentLookup serves only the read path the idempotency guard needs.
type stubPaymentLookup struct {
	repository.PaymentRepository
	byKey map[string]*payment.Payment
}

func (s stubPaymentLookup) GetByIdempotencyKey(_ context.Context, key string) (*payment.Payment, error) {
	p, ok := s.byKey[key]
	if !ok {
		return nil, apperrors.ErrPaymentNotFound
	}
	return p, nil
}

// passthroughTx satisfies TxManager without a database.
type passthroughTx struct{}

func (passthroughTx) WithTransaction(_ context.Context, fn func(tx repository.DBTX) error) error {
	return fn(nil)
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment // keyed by payment id
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*payment.Payment)}
}

func (m *memPaymentRepo) Create(_ context.Context, _ repository.DBTX, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return apperrors.ErrAlreadyExists
		}
	}
	cp := *p
	m.payments[p.PaymentID] = &cp
	return nil
}

func (m *memPaymentRepo) Update(_ context.Context, _ repository.DBTX, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.PaymentID]; !ok {
		return apperrors.ErrPaymentNotFound
	}
	cp := *p
	m.payments[p.PaymentID] = &cp
	return nil
}

func (m *memPaymentRepo) GetByPaymentID(_ context.Context, paymentID string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, apperrors.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) GetByPledgeID(_ context.Context, pledgeID string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PledgeID == pledgeID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (m *memPaymentRepo) GetByIdempotencyKey(_ context.Context, key string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.IdempotencyKey == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (m *memPaymentRepo) ArchiveExpiredKey(_ context.Context, _ repository.DBTX, key string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.IdempotencyKey == key && p.IdempotencyExpired(now) {
			p.IdempotencyKey = key + "::expired::" + p.ID.String()
			return 1, nil
		}
	}
	return 0, nil
}

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*ledger.BankAccount // keyed by email
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[string]*ledger.BankAccount)}
}

func (m *memAccountRepo) Create(_ context.Context, _ repository.DBTX, a *ledger.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Email]; ok {
		return apperrors.ErrAlreadyExists
	}
	cp := *a
	m.accounts[a.Email] = &cp
	return nil
}

func (m *memAccountRepo) Update(_ context.Context, _ repository.DBTX, a *ledger.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[a.Email]
	if !ok {
		return apperrors.ErrAccountNotFound
	}
	if stored.Version != a.Version-1 {
		return apperrors.ErrConflict
	}
	cp := *a
	m.accounts[a.Email] = &cp
	return nil
}

func (m *memAccountRepo) GetByEmail(_ context.Context, email string) (*ledger.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccountRepo) GetByEmailForUpdate(ctx context.Context, _ repository.DBTX, email string) (*ledger.BankAccount, error) {
	return m.GetByEmail(ctx, email)
}

// flakyAccountRepo injects transient faults into the locked read path.
type flakyAccountRepo struct {
	*memAccountRepo
	failures int
	calls    int
}

func (f *flakyAccountRepo) GetByEmailForUpdate(ctx context.Context, tx repository.DBTX, email string) (*ledger.BankAccount, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset by peer")
	}
	return f.memAccountRepo.GetByEmailForUpdate(ctx, tx, email)
}

type memTransactionRepo struct {
	mu   sync.Mutex
	rows []ledger.BankTransaction
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{}
}

func (m *memTransactionRepo) Create(_ context.Context, _ repository.DBTX, t *ledger.BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *t)
	return nil
}

func (m *memTransactionRepo) FindByExternalReference(_ context.Context, ref string) ([]ledger.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.BankTransaction
	for _, r := range m.rows {
		if r.ExternalReference == ref {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memTransactionRepo) FindByAccountID(_ context.Context, accountID uuid.UUID) ([]ledger.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.BankTransaction
	for _, r := range m.rows {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memOutbox struct {
	mu     sync.Mutex
	events []outbox.OutboxEvent
}

func (m *memOutbox) Create(_ context.Context, _ repository.DBTX, ev *outbox.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memOutbox) GetPublishable(context.Context, int, int) ([]outbox.OutboxEvent, error) {
	return nil, nil
}
func (m *memOutbox) MarkProcessing(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (m *memOutbox) MarkPublished(context.Context, uuid.UUID) error          { return nil }
func (m *memOutbox) MarkRetry(context.Context, uuid.UUID, string) error      { return nil }
func (m *memOutbox) MarkFailed(context.Context, uuid.UUID, string) error     { return nil }
func (m *memOutbox) ReclaimStale(context.Context, time.Duration) (int64, error) { return 0, nil }
func (m *memOutbox) CountByStatus(context.Context, outbox.Status) (int64, error) {
	return 0, nil
}

func (m *memOutbox) typesWritten() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	failWith  error
	published []publishedMsg
}

type publishedMsg struct {
	routingKey string
	body       []byte
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, publishedMsg{routingKey: routingKey, body: body})
	return nil
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.published {
		out = append(out, m.routingKey)
	}
	return out
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pledgepay/config"
	"pledgepay/internal/domain/ledger"
	"pledgepay/internal/repository"
	"pledgepay/internal/services"
	"pledgepay/internal/transport/httpdto"
	apperrors "pledgepay/pkg/errors"
	"pledgepay/pkg/logger"
)

type stubTxManager struct{}

func (stubTxManager) WithTransaction(ctx context.Context, fn func(tx repository.DBTX) error) error {
	return fn(nil)
}

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*ledger.BankAccount
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{accounts: make(map[string]*ledger.BankAccount)}
}

func (r *stubAccountRepo) Create(_ context.Context, _ repository.DBTX, a *ledger.BankAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.Email] = &cp
	return nil
}

func (r *stubAccountRepo) Update(_ context.Context, _ repository.DBTX, a *ledger.BankAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.Email] = &cp
	return nil
}

func (r *stubAccountRepo) GetByEmail(_ context.Context, email string) (*ledger.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[email]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubAccountRepo) GetByEmailForUpdate(ctx context.Context, _ repository.DBTX, email string) (*ledger.BankAccount, error) {
	return r.GetByEmail(ctx, email)
}

type stubTransactionRepo struct{}

func (stubTransactionRepo) Create(context.Context, repository.DBTX, *ledger.BankTransaction) error {
	return nil
}

func (stubTransactionRepo) FindByExternalReference(context.Context, string) ([]ledger.BankTransaction, error) {
	return nil, nil
}

func (stubTransactionRepo) FindByAccountID(context.Context, uuid.UUID) ([]ledger.BankTransaction, error) {
	return nil, nil
}

func accountRouter(t *testing.T) (*gin.Engine, *stubAccountRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	accounts := newStubAccountRepo()
	svc := services.NewLedgerService(accounts, stubTransactionRepo{}, stubTxManager{}, config.LedgerConfig{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	}, logger.New("test"))
	h := NewAccountHandler(svc)

	engine := gin.New()
	group := engine.Group("/v1/accounts")
	group.GET("/:email", h.Get)
	group.POST("/:email/add-funds", h.AddFunds)
	group.GET("/:email/transactions", h.ListTransactions)
	return engine, accounts
}

func TestAddFundsOwnerComesFromPath(t *testing.T) {
	engine, accounts := accountRouter(t)

	body, _ := json.Marshal(httpdto.AddFundsRequest{
		HolderName: "Alice Payer",
		Amount:     "250.00",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/alice@example.com/add-funds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp httpdto.Response[httpdto.AccountResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Data.Email != "alice@example.com" {
		t.Errorf("account email = %q, want alice@example.com", resp.Data.Email)
	}

	a, err := accounts.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if a.AvailableCents != 25_000 {
		t.Errorf("available = %d, want 25000", a.AvailableCents)
	}
}

func TestAddFundsRejectsMalformedAmount(t *testing.T) {
	engine, _ := accountRouter(t)

	body, _ := json.Marshal(httpdto.AddFundsRequest{
		HolderName: "Alice Payer",
		Amount:     "25.x0",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/alice@example.com/add-funds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetUnknownAccountReturns404(t *testing.T) {
	engine, _ := accountRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/nobody@example.com", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pledgepay/config"
	"pledgepay/internal/domain/ledger"
	"pledgepay/internal/events"
	"pledgepay/internal/locks"
	"pledgepay/internal/repository"
	apperrors "pledgepay/pkg/errors"
	"pledgepay/pkg/logger"
)

// LedgerService owns account balances. Authorize and Capture never return an
// error to the caller: a business decline or an exhausted retry both surface
// as a FAILED ledger event, so the reply queue always gets a reply.
type LedgerService struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	txManager    repository.TxManager
	accountLocks *locks.KeyMutex
	retry        RetryPolicy
	logger       *logger.Logger
	now          func() time.Time
}

func NewLedgerService(
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	txManager repository.TxManager,
	cfg config.LedgerConfig,
	l *logger.Logger,
) *LedgerService {
	return &LedgerService{
		accounts:     accounts,
		transactions: transactions,
		txManager:    txManager,
		accountLocks: locks.NewKeyMutex(),
		retry:        NewRetryPolicy(cfg.RetryAttempts, cfg.RetryBackoff),
		logger:       l,
		now:          time.Now,
	}
}

// Authorize moves funds from available to locked for req.PaymentID.
func (s *LedgerService) Authorize(ctx context.Context, req events.LedgerRequest) events.LedgerEvent {
	return s.process(ctx, req, ledger.TransactionAuthorization)
}

// Capture burns previously locked funds for req.PaymentID.
func (s *LedgerService) Capture(ctx context.Context, req events.LedgerRequest) events.LedgerEvent {
	return s.process(ctx, req, ledger.TransactionCapture)
}

func (s *LedgerService) process(ctx context.Context, req events.LedgerRequest, txType ledger.TransactionType) events.LedgerEvent {
	var ref string
	var decline error

	err := s.retry.Do(ctx, func() error {
		r, err := s.applyOnce(ctx, req, txType)
		if err != nil {
			if isDecline(err) {
				// A decline is deterministic; retrying cannot change it.
				decline = err
				return nil
			}
			return err
		}
		ref = r
		return nil
	})

	switch {
	case decline != nil:
		s.logger.WarnfCtx(ctx, "Ledger declined %s for payment %s: %v", txType, req.PaymentID, decline)
		return s.failureEvent(req, decline.Error())
	case err != nil:
		s.logger.ErrorfCtx(ctx, "Ledger %s for payment %s failed after retries: %v", txType, req.PaymentID, err)
		return s.failureEvent(req, "service temporarily unavailable")
	}

	return events.LedgerEvent{
		EventType:      successEventType(txType),
		PaymentID:      req.PaymentID,
		AmountCents:    req.AmountCents,
		Outcome:        events.OutcomeSuccess,
		TransactionRef: ref,
		Timestamp:      s.now(),
	}
}

// applyOnce runs one attempt inside a transaction under the per-account
// mutex. Returns the transaction reference on success.
func (s *LedgerService) applyOnce(ctx context.Context, req events.LedgerRequest, txType ledger.TransactionType) (string, error) {
	s.accountLocks.Lock(req.PayerEmail)
	defer s.accountLocks.Unlock(req.PayerEmail)

	var ref string
	err := s.txManager.WithTransaction(ctx, func(tx repository.DBTX) error {
		account, err := s.accounts.GetByEmailForUpdate(ctx, tx, req.PayerEmail)
		if err != nil {
			return err
		}

		// Duplicate-delivery scan: if this payment already has a row of this
		// type, report the prior outcome instead of moving money twice.
		prior, err := s.transactions.FindByExternalReference(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		for _, p := range prior {
			if p.Type == txType {
				s.logger.InfofCtx(ctx, "Duplicate %s for payment %s, reusing transaction %s", txType, req.PaymentID, p.ID)
				ref = p.ID.String()
				return nil
			}
		}

		before := account.TotalCents()
		switch txType {
		case ledger.TransactionAuthorization:
			err = account.LockFunds(req.AmountCents)
		case ledger.TransactionCapture:
			err = account.CaptureFunds(req.AmountCents)
		default:
			return fmt.Errorf("unsupported ledger operation %s", txType)
		}
		if err != nil {
			return err
		}

		row := ledger.NewTransaction(account.ID, req.PaymentID, txType, req.AmountCents, before, account.TotalCents(), string(txType)+" for payment "+req.PaymentID)
		if err := s.transactions.Create(ctx, tx, row); err != nil {
			return err
		}
		if err := s.accounts.Update(ctx, tx, account); err != nil {
			return err
		}
		ref = row.ID.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Release returns locked funds to available, recording a cancellation row.
func (s *LedgerService) Release(ctx context.Context, paymentID, payerEmail string, amountCents int64) error {
	s.accountLocks.Lock(payerEmail)
	defer s.accountLocks.Unlock(payerEmail)

	return s.txManager.WithTransaction(ctx, func(tx repository.DBTX) error {
		account, err := s.accounts.GetByEmailForUpdate(ctx, tx, payerEmail)
		if err != nil {
			return err
		}

		prior, err := s.transactions.FindByExternalReference(ctx, paymentID)
		if err != nil {
			return err
		}
		for _, p := range prior {
			if p.Type == ledger.TransactionCancellation {
				return nil
			}
		}

		before := account.TotalCents()
		if err := account.ReleaseFunds(amountCents); err != nil {
			return err
		}

		row := ledger.NewTransaction(account.ID, paymentID, ledger.TransactionCancellation, amountCents, before, account.TotalCents(), "released authorization for payment "+paymentID)
		if err := s.transactions.Create(ctx, tx, row); err != nil {
			return err
		}
		return s.accounts.Update(ctx, tx, account)
	})
}

// AddFunds tops up an account, creating it on first use.
func (s *LedgerService) AddFunds(ctx context.Context, ownerID *string, email, holderName string, amountCents int64) (*ledger.BankAccount, error) {
	s.accountLocks.Lock(email)
	defer s.accountLocks.Unlock(email)

	var result *ledger.BankAccount
	err := s.txManager.WithTransaction(ctx, func(tx repository.DBTX) error {
		account, err := s.accounts.GetByEmailForUpdate(ctx, tx, email)
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			account = ledger.NewAccount(ownerID, email, holderName)
			if err := s.accounts.Create(ctx, tx, account); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		before := account.TotalCents()
		if err := account.AddFunds(amountCents); err != nil {
			return err
		}

		row := ledger.NewTransaction(account.ID, "DEPOSIT-"+uuid.NewString(), ledger.TransactionRefund, amountCents, before, account.TotalCents(), "funds deposit")
		if err := s.transactions.Create(ctx, tx, row); err != nil {
			return err
		}
		if err := s.accounts.Update(ctx, tx, account); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, email string) (*ledger.BankAccount, error) {
	return s.accounts.GetByEmail(ctx, email)
}

func (s *LedgerService) GetTransactions(ctx context.Context, email string) ([]ledger.BankTransaction, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.transactions.FindByAccountID(ctx, account.ID)
}

func (s *LedgerService) failureEvent(req events.LedgerRequest, reason string) events.LedgerEvent {
	return events.LedgerEvent{
		EventType:     events.LedgerFailed,
		PaymentID:     req.PaymentID,
		AmountCents:   req.AmountCents,
		Outcome:       events.OutcomeFailed,
		FailureReason: reason,
		Timestamp:     s.now(),
	}
}

func successEventType(txType ledger.TransactionType) events.LedgerEventType {
	if txType == ledger.TransactionCapture {
		return events.LedgerCaptured
	}
	return events.LedgerAuthorized
}

// isDecline reports whether err is a deterministic business rejection rather
// than a transient fault.
func isDecline(err error) bool {
	return errors.Is(err, apperrors.ErrInsufficientFunds) ||
		errors.Is(err, apperrors.ErrInsufficientLocked) ||
		errors.Is(err, apperrors.ErrAccountNotFound) ||
		errors.Is(err, apperrors.ErrNegativeAmount)
}

package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType tags a bank transaction audit row.
type TransactionType string

const (
	TransactionAuthorization TransactionType = "AUTHORIZATION"
	TransactionCapture       TransactionType = "CAPTURE"
	TransactionRefund        TransactionType = "REFUND"
	TransactionCancellation  TransactionType = "CANCELLATION"
)

// BankTransaction is a write-once audit row recording one balance mutation.
// ExternalReference carries the payment id that caused the mutation, which is
// also what the ledger's idempotency scan keys on.
type BankTransaction struct {
	ID                 uuid.UUID
	AccountID          uuid.UUID
	ExternalReference  string
	Type               TransactionType
	AmountCents        int64
	BalanceBeforeCents int64
	BalanceAfterCents  int64
	Description        string
	CreatedAt          time.Time
}

// NewTransaction records a mutation of account with total balances taken
// before and after the mutation.
func NewTransaction(accountID uuid.UUID, externalRef string, txType TransactionType, amount, balanceBefore, balanceAfter int64, description string) *BankTransaction {
	return &BankTransaction{
		ID:                 uuid.New(),
		AccountID:          accountID,
		ExternalReference:  externalRef,
		Type:               txType,
		AmountCents:        amount,
		BalanceBeforeCents: balanceBefore,
		BalanceAfterCents:  balanceAfter,
		Description:        description,
		CreatedAt:          time.Now(),
	}
}

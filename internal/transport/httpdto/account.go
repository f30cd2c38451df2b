package httpdto

import (
	"time"

	"pledgepay/internal/domain/ledger"
	"pledgepay/internal/domain/money"
)

type AddFundsRequest struct {
	OwnerID    *string `json:"owner_id"`
	HolderName string  `json:"holder_name" binding:"required"`
	Amount     string  `json:"amount" binding:"required"`
}

type AccountResponse struct {
	Email      string    `json:"email"`
	HolderName string    `json:"holder_name"`
	Available  string    `json:"available"`
	Locked     string    `json:"locked"`
	Total      string    `json:"total"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewAccountResponse(a *ledger.BankAccount) AccountResponse {
	return AccountResponse{
		Email:      a.Email,
		HolderName: a.HolderName,
		Available:  money.Format(a.AvailableCents),
		Locked:     money.Format(a.LockedCents),
		Total:      money.Format(a.TotalCents()),
		Version:    a.Version,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type TransactionResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	Reference     string    `json:"reference"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewTransactionResponses(rows []ledger.BankTransaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, TransactionResponse{
			ID:            r.ID.String(),
			Type:          string(r.Type),
			Amount:        money.Format(r.AmountCents),
			BalanceBefore: money.Format(r.BalanceBeforeCents),
			BalanceAfter:  money.Format(r.BalanceAfterCents),
			Reference:     r.ExternalReference,
			Description:   r.Description,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out
}

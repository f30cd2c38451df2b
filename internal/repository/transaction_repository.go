package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"pledgepay/internal/domain/ledger"
)

type transactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, account_id, external_reference, transaction_type, amount_cents, balance_before_cents, balance_after_cents, description, created_at`

func (r *transactionRepository) Create(ctx context.Context, tx DBTX, t *ledger.BankTransaction) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	_, err := execDB.ExecContext(ctx, `
        INSERT INTO bank_transactions (`+transactionColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `,
		t.ID,
		t.AccountID,
		t.ExternalReference,
		t.Type,
		t.AmountCents,
		t.BalanceBeforeCents,
		t.BalanceAfterCents,
		t.Description,
		t.CreatedAt,
	)
	return err
}

func (r *transactionRepository) FindByExternalReference(ctx context.Context, ref string) ([]ledger.BankTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+transactionColumns+` FROM bank_transactions
        WHERE external_reference = $1
        ORDER BY created_at ASC
    `, ref)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (r *transactionRepository) FindByAccountID(ctx context.Context, accountID uuid.UUID) ([]ledger.BankTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+transactionColumns+` FROM bank_transactions
        WHERE account_id = $1
        ORDER BY created_at DESC
    `, accountID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]ledger.BankTransaction, error) {
	defer rows.Close()

	var txns []ledger.BankTransaction
	for rows.Next() {
		var t ledger.BankTransaction
		if err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.ExternalReference,
			&t.Type,
			&t.AmountCents,
			&t.BalanceBeforeCents,
			&t.BalanceAfterCents,
			&t.Description,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}

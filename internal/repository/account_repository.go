package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pledgepay/internal/domain/ledger"
	apperrors "pledgepay/pkg/errors"
)

type accountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, owner_id, email, holder_name, available_cents, locked_cents, version, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, tx DBTX, a *ledger.BankAccount) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	_, err := execDB.ExecContext(ctx, `
        INSERT INTO bank_accounts (`+accountColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `,
		a.ID,
		a.OwnerID,
		a.Email,
		a.HolderName,
		a.AvailableCents,
		a.LockedCents,
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return apperrors.ErrAlreadyExists
	}
	return err
}

// Update persists balances guarded by the version counter. A zero row count
// means the row moved underneath us despite the advisory locking, which is
// surfaced as a conflict rather than silently overwritten.
func (r *accountRepository) Update(ctx context.Context, tx DBTX, a *ledger.BankAccount) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	res, err := execDB.ExecContext(ctx, `
        UPDATE bank_accounts
        SET available_cents = $1, locked_cents = $2, version = $3, updated_at = $4
        WHERE id = $5 AND version = $6
    `, a.AvailableCents, a.LockedCents, a.Version, time.Now(), a.ID, a.Version-1)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*ledger.BankAccount, error) {
	return scanAccount(r.db.QueryRowContext(ctx, `
        SELECT `+accountColumns+` FROM bank_accounts WHERE email = $1
    `, email))
}

func (r *accountRepository) GetByEmailForUpdate(ctx context.Context, tx DBTX, email string) (*ledger.BankAccount, error) {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	return scanAccount(execDB.QueryRowContext(ctx, `
        SELECT `+accountColumns+` FROM bank_accounts WHERE email = $1 FOR UPDATE
    `, email))
}

func scanAccount(row *sql.Row) (*ledger.BankAccount, error) {
	var a ledger.BankAccount
	var ownerID sql.NullString
	err := row.Scan(
		&a.ID,
		&ownerID,
		&a.Email,
		&a.HolderName,
		&a.AvailableCents,
		&a.LockedCents,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, err
	}
	if ownerID.Valid {
		a.OwnerID = &ownerID.String
	}
	return &a, nil
}

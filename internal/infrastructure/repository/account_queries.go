package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/account"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
)

const accountColumns = `id, email, name, available_minor, reserved_minor, created_at, updated_at`

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.AvailableMinor, &a.ReservedMinor, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount stores a new account
func (q *queries) CreateAccount(ctx context.Context, a *account.Account) error {
	query := `
		INSERT INTO accounts (id, email, name, available_minor, reserved_minor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := q.db.Exec(ctx, query,
		a.ID, a.Email, a.Name, a.AvailableMinor, a.ReservedMinor, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return apperrors.NewConflictError("EMAIL_ALREADY_REGISTERED", "an account with this email already exists")
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// AccountByID retrieves an account by ID
func (q *queries) AccountByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// Deposit adds external funds to an account's available balance and returns
// the updated account.
func (q *queries) Deposit(ctx context.Context, id uuid.UUID, amountMinor int64, now time.Time) (*account.Account, error) {
	query := `
		UPDATE accounts
		SET available_minor = available_minor + $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + accountColumns

	a, err := scanAccount(q.db.QueryRow(ctx, query, id, amountMinor, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to deposit: %w", err)
	}
	return a, nil
}

// AccountBalances reads an account's balance pair.
func (q *queries) AccountBalances(ctx context.Context, id uuid.UUID) (availableMinor, reservedMinor int64, err error) {
	query := `SELECT available_minor, reserved_minor FROM accounts WHERE id = $1`

	err = q.db.QueryRow(ctx, query, id).Scan(&availableMinor, &reservedMinor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, apperrors.ErrAccountNotFound
		}
		return 0, 0, fmt.Errorf("failed to get balances: %w", err)
	}
	return availableMinor, reservedMinor, nil
}

// ReserveFunds moves amountMinor from available to reserved. The update only
// matches when the available balance covers the amount; the result reports
// whether it did.
func (q *queries) ReserveFunds(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET available_minor = available_minor - $2, reserved_minor = reserved_minor + $2, updated_at = $3
		WHERE id = $1 AND available_minor >= $2`

	tag, err := q.db.Exec(ctx, query, accountID, amountMinor, now)
	if err != nil {
		return false, fmt.Errorf("failed to reserve funds: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseHold moves amountMinor back from reserved to available.
func (q *queries) ReleaseHold(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET available_minor = available_minor + $2, reserved_minor = reserved_minor - $2, updated_at = $3
		WHERE id = $1 AND reserved_minor >= $2`

	tag, err := q.db.Exec(ctx, query, accountID, amountMinor, now)
	if err != nil {
		return false, fmt.Errorf("failed to release hold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DebitReserved spends amountMinor out of the reserved balance.
func (q *queries) DebitReserved(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET reserved_minor = reserved_minor - $2, updated_at = $3
		WHERE id = $1 AND reserved_minor >= $2`

	tag, err := q.db.Exec(ctx, query, accountID, amountMinor, now)
	if err != nil {
		return false, fmt.Errorf("failed to debit reserved: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DebitSplit spends reservedMinor from the reserved balance and
// availableMinor from the available balance in one conditional update.
func (q *queries) DebitSplit(ctx context.Context, accountID uuid.UUID, reservedMinor, availableMinor int64, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET reserved_minor = reserved_minor - $2, available_minor = available_minor - $3, updated_at = $4
		WHERE id = $1 AND reserved_minor >= $2 AND available_minor >= $3`

	tag, err := q.db.Exec(ctx, query, accountID, reservedMinor, availableMinor, now)
	if err != nil {
		return false, fmt.Errorf("failed to debit split: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreditAvailable adds amountMinor to the available balance.
func (q *queries) CreditAvailable(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET available_minor = available_minor + $2, updated_at = $3
		WHERE id = $1`

	tag, err := q.db.Exec(ctx, query, accountID, amountMinor, now)
	if err != nil {
		return false, fmt.Errorf("failed to credit available: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

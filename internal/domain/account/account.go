package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/validation"
)

// Account holds a user's identity and their two balance buckets. Available
// funds may be spent or reserved; reserved funds back the account's leading
// bids and move only when a bid is outbid, cancelled, or settled.
type Account struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`

	// Balances, integer minor units
	AvailableMinor int64 `json:"available_minor"`
	ReservedMinor  int64 `json:"reserved_minor"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewAccount(email, name string) (*Account, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}

	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid name: %w", err)
	}

	now := time.Now().UTC()
	return &Account{
		ID:             uuid.New(),
		Email:          email,
		Name:           name,
		AvailableMinor: 0,
		ReservedMinor:  0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// TotalMinor returns the account's combined holdings. Outside of settlement
// and deposits this total is conserved by every operation.
func (a *Account) TotalMinor() int64 {
	return a.AvailableMinor + a.ReservedMinor
}

// CanReserve reports whether the available balance covers an additional hold.
func (a *Account) CanReserve(amountMinor int64) bool {
	return amountMinor >= 0 && a.AvailableMinor >= amountMinor
}

var (
	ErrInsufficientFunds = fmt.Errorf("insufficient funds")
	ErrNegativeAmount    = fmt.Errorf("amount cannot be negative")
)

package fixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/account"
)

// AccountBuilder builds test Account entities.
type AccountBuilder struct {
	id             uuid.UUID
	email          string
	name           string
	availableMinor int64
	reservedMinor  int64
	createdAt      time.Time
}

// NewAccountBuilder creates an AccountBuilder with sane defaults and a
// collision-free email.
func NewAccountBuilder() *AccountBuilder {
	id := uuid.New()
	return &AccountBuilder{
		id:             id,
		email:          fmt.Sprintf("collector-%s@example.com", id.String()[:8]),
		name:           "Test Collector",
		availableMinor: 100_000,
		reservedMinor:  0,
		createdAt:      time.Now().UTC(),
	}
}

// WithID sets the account ID.
func (b *AccountBuilder) WithID(id uuid.UUID) *AccountBuilder {
	b.id = id
	return b
}

// WithEmail sets the email.
func (b *AccountBuilder) WithEmail(email string) *AccountBuilder {
	b.email = email
	return b
}

// WithName sets the display name.
func (b *AccountBuilder) WithName(name string) *AccountBuilder {
	b.name = name
	return b
}

// WithAvailable sets the available balance in minor units.
func (b *AccountBuilder) WithAvailable(amountMinor int64) *AccountBuilder {
	b.availableMinor = amountMinor
	return b
}

// WithReserved sets the reserved balance in minor units.
func (b *AccountBuilder) WithReserved(amountMinor int64) *AccountBuilder {
	b.reservedMinor = amountMinor
	return b
}

// WithCreatedAt pins the creation timestamp.
func (b *AccountBuilder) WithCreatedAt(ts time.Time) *AccountBuilder {
	b.createdAt = ts
	return b
}

// Build creates the Account entity.
func (b *AccountBuilder) Build(t *testing.T) *account.Account {
	t.Helper()

	return &account.Account{
		ID:             b.id,
		Email:          b.email,
		Name:           b.name,
		AvailableMinor: b.availableMinor,
		ReservedMinor:  b.reservedMinor,
		CreatedAt:      b.createdAt,
		UpdatedAt:      b.createdAt,
	}
}

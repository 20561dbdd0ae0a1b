package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
)

// BidBuilder builds test Bid entities.
type BidBuilder struct {
	id          uuid.UUID
	auctionID   uuid.UUID
	bidderID    uuid.UUID
	amountMinor int64
	createdAt   time.Time
}

// NewBidBuilder creates a BidBuilder with defaults.
func NewBidBuilder() *BidBuilder {
	return &BidBuilder{
		id:          uuid.New(),
		auctionID:   uuid.New(),
		bidderID:    uuid.New(),
		amountMinor: 55_000,
		createdAt:   time.Now().UTC(),
	}
}

// WithID sets the bid ID.
func (b *BidBuilder) WithID(id uuid.UUID) *BidBuilder {
	b.id = id
	return b
}

// WithAuctionID sets the auction the bid belongs to.
func (b *BidBuilder) WithAuctionID(auctionID uuid.UUID) *BidBuilder {
	b.auctionID = auctionID
	return b
}

// WithBidderID sets the bidding account.
func (b *BidBuilder) WithBidderID(bidderID uuid.UUID) *BidBuilder {
	b.bidderID = bidderID
	return b
}

// WithAmount sets the bid amount in minor units.
func (b *BidBuilder) WithAmount(amountMinor int64) *BidBuilder {
	b.amountMinor = amountMinor
	return b
}

// WithCreatedAt pins the placement timestamp, which matters for tie-breaking.
func (b *BidBuilder) WithCreatedAt(ts time.Time) *BidBuilder {
	b.createdAt = ts
	return b
}

// Build creates the Bid entity.
func (b *BidBuilder) Build(t *testing.T) *auction.Bid {
	t.Helper()

	return &auction.Bid{
		ID:          b.id,
		AuctionID:   b.auctionID,
		BidderID:    b.bidderID,
		AmountMinor: b.amountMinor,
		CreatedAt:   b.createdAt,
	}
}

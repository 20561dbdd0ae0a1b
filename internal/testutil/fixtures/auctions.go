package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
)

// AuctionBuilder builds test Auction entities. It writes fields directly so
// tests can put an auction into states the constructor refuses, such as an
// already-expired deadline.
type AuctionBuilder struct {
	id                uuid.UUID
	sellerID          uuid.UUID
	title             string
	description       string
	status            auction.Status
	startPriceMinor   int64
	currentPriceMinor int64
	minIncrementMinor int64
	bidCount          int
	startsAt          time.Time
	endsAt            time.Time
	settledAt         *time.Time
}

// NewAuctionBuilder creates an AuctionBuilder for a live auction ending in an
// hour.
func NewAuctionBuilder() *AuctionBuilder {
	now := time.Now().UTC()
	return &AuctionBuilder{
		id:                uuid.New(),
		sellerID:          uuid.New(),
		title:             "Study in Blue, oil on canvas",
		description:       "Signed lower right, 1987.",
		status:            auction.StatusLive,
		startPriceMinor:   50_000,
		currentPriceMinor: 50_000,
		minIncrementMinor: 1_000,
		bidCount:          0,
		startsAt:          now,
		endsAt:            now.Add(time.Hour),
	}
}

// WithID sets the auction ID.
func (b *AuctionBuilder) WithID(id uuid.UUID) *AuctionBuilder {
	b.id = id
	return b
}

// WithSellerID sets the selling account.
func (b *AuctionBuilder) WithSellerID(sellerID uuid.UUID) *AuctionBuilder {
	b.sellerID = sellerID
	return b
}

// WithTitle sets the title.
func (b *AuctionBuilder) WithTitle(title string) *AuctionBuilder {
	b.title = title
	return b
}

// WithDescription sets the description.
func (b *AuctionBuilder) WithDescription(description string) *AuctionBuilder {
	b.description = description
	return b
}

// WithStatus sets the lifecycle status.
func (b *AuctionBuilder) WithStatus(status auction.Status) *AuctionBuilder {
	b.status = status
	return b
}

// WithStartPrice sets the start price in minor units and keeps the current
// price in step when it has not been raised yet.
func (b *AuctionBuilder) WithStartPrice(amountMinor int64) *AuctionBuilder {
	if b.currentPriceMinor == b.startPriceMinor {
		b.currentPriceMinor = amountMinor
	}
	b.startPriceMinor = amountMinor
	return b
}

// WithCurrentPrice sets the standing price in minor units.
func (b *AuctionBuilder) WithCurrentPrice(amountMinor int64) *AuctionBuilder {
	b.currentPriceMinor = amountMinor
	return b
}

// WithIncrement sets the minimum raise in minor units.
func (b *AuctionBuilder) WithIncrement(amountMinor int64) *AuctionBuilder {
	b.minIncrementMinor = amountMinor
	return b
}

// WithBidCount sets the recorded number of accepted bids.
func (b *AuctionBuilder) WithBidCount(count int) *AuctionBuilder {
	b.bidCount = count
	return b
}

// WithEndsAt sets the bidding deadline.
func (b *AuctionBuilder) WithEndsAt(endsAt time.Time) *AuctionBuilder {
	b.endsAt = endsAt
	return b
}

// WithSettledAt stamps the settlement time.
func (b *AuctionBuilder) WithSettledAt(ts time.Time) *AuctionBuilder {
	b.settledAt = &ts
	return b
}

// Expired shifts the whole auction into the past so its deadline has already
// elapsed while the status still says live.
func (b *AuctionBuilder) Expired() *AuctionBuilder {
	now := time.Now().UTC()
	b.startsAt = now.Add(-2 * time.Hour)
	b.endsAt = now.Add(-time.Hour)
	return b
}

// Build creates the Auction entity.
func (b *AuctionBuilder) Build(t *testing.T) *auction.Auction {
	t.Helper()

	now := time.Now().UTC()
	return &auction.Auction{
		ID:                b.id,
		SellerID:          b.sellerID,
		Title:             b.title,
		Description:       b.description,
		Status:            b.status,
		StartPriceMinor:   b.startPriceMinor,
		CurrentPriceMinor: b.currentPriceMinor,
		MinIncrementMinor: b.minIncrementMinor,
		BidCount:          b.bidCount,
		StartsAt:          b.startsAt,
		EndsAt:            b.endsAt,
		SettledAt:         b.settledAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/validation"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/values"
)

// Bid is an append-only record of one offer on one auction. Bids are never
// updated or deleted; the leading bid is derived by ordering on amount with
// creation time breaking ties.
type Bid struct {
	ID          uuid.UUID `json:"id"`
	AuctionID   uuid.UUID `json:"auction_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	AmountMinor int64     `json:"amount_minor"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewBid(auctionID, bidderID uuid.UUID, amountMinor int64, createdAt time.Time) (*Bid, error) {
	if auctionID == uuid.Nil {
		return nil, ErrMissingAuction
	}

	if bidderID == uuid.Nil {
		return nil, ErrMissingBidder
	}

	if err := validation.ValidateAmountMinor(amountMinor, "bid amount"); err != nil {
		return nil, err
	}

	if amountMinor < values.MinBidFloorMinor {
		return nil, ErrAmountBelowFloor
	}

	return &Bid{
		ID:          uuid.New(),
		AuctionID:   auctionID,
		BidderID:    bidderID,
		AmountMinor: amountMinor,
		CreatedAt:   createdAt.UTC(),
	}, nil
}

var (
	ErrMissingAuction   = fmt.Errorf("bid requires an auction")
	ErrMissingBidder    = fmt.Errorf("bid requires a bidder")
	ErrAmountBelowFloor = fmt.Errorf("bid amount below platform floor of %d minor units", values.MinBidFloorMinor)
)

package auction

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/validation"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/values"
)

// Auction is a timed English auction. The current price only ever moves
// upward, in whole multiples of the minimum increment, and only through a
// committed bid. Once SettledAt is set the auction is terminal: no balance or
// price mutation may reference it again.
type Auction struct {
	ID       uuid.UUID `json:"id"`
	SellerID uuid.UUID `json:"seller_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Status Status `json:"status"`

	// Pricing, integer minor units
	StartPriceMinor   int64 `json:"start_price_minor"`
	CurrentPriceMinor int64 `json:"current_price_minor"`
	MinIncrementMinor int64 `json:"min_increment_minor"`

	BidCount int `json:"bid_count"`

	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status int

const (
	StatusLive Status = iota
	StatusEnded
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusEnded:
		return "ended"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored status string back to a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "live":
		return StatusLive, nil
	case "ended":
		return StatusEnded, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return StatusLive, fmt.Errorf("unknown auction status: %q", s)
	}
}

func NewAuction(sellerID uuid.UUID, title, description string, startPriceMinor, minIncrementMinor int64, endsAt time.Time) (*Auction, error) {
	if sellerID == uuid.Nil {
		return nil, ErrMissingSeller
	}

	if err := validation.ValidateAuctionTitle(title); err != nil {
		return nil, fmt.Errorf("invalid title: %w", err)
	}

	if err := validation.ValidateDescription(description); err != nil {
		return nil, fmt.Errorf("invalid description: %w", err)
	}

	if err := validation.ValidateAmountMinor(startPriceMinor, "start price"); err != nil {
		return nil, err
	}

	if err := validation.ValidateAmountMinor(minIncrementMinor, "minimum increment"); err != nil {
		return nil, err
	}

	if startPriceMinor < values.MinBidFloorMinor {
		return nil, ErrStartPriceBelowFloor
	}

	if minIncrementMinor < values.MinBidFloorMinor {
		return nil, ErrIncrementBelowFloor
	}

	now := time.Now().UTC()
	if !endsAt.After(now) {
		return nil, ErrEndsAtInPast
	}

	return &Auction{
		ID:                uuid.New(),
		SellerID:          sellerID,
		Title:             strings.TrimSpace(title),
		Description:       strings.TrimSpace(description),
		Status:            StatusLive,
		StartPriceMinor:   startPriceMinor,
		CurrentPriceMinor: startPriceMinor,
		MinIncrementMinor: minIncrementMinor,
		BidCount:          0,
		StartsAt:          now,
		EndsAt:            endsAt.UTC(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsLive reports whether the auction accepts bids at the given instant.
// The deadline is exclusive: a bid arriving exactly at EndsAt is late.
func (a *Auction) IsLive(now time.Time) bool {
	return a.Status == StatusLive && a.EndsAt.After(now)
}

// Expired reports whether the deadline has passed at the given instant.
func (a *Auction) Expired(now time.Time) bool {
	return !a.EndsAt.After(now)
}

// IsSettled reports whether terminal accounting has been applied.
func (a *Auction) IsSettled() bool {
	return a.SettledAt != nil
}

// MinimumNextBidMinor returns the smallest amount the next bid may carry.
func (a *Auction) MinimumNextBidMinor() int64 {
	return a.CurrentPriceMinor + a.MinIncrementMinor
}

var (
	ErrMissingSeller        = fmt.Errorf("auction requires a seller")
	ErrStartPriceBelowFloor = fmt.Errorf("start price below platform floor of %d minor units", values.MinBidFloorMinor)
	ErrIncrementBelowFloor  = fmt.Errorf("minimum increment below platform floor of %d minor units", values.MinBidFloorMinor)
	ErrEndsAtInPast         = fmt.Errorf("auction end time must be in the future")
)

package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
)

// Service is the auction core: bid placement, settlement, and the sweep.
type Service interface {
	// PlaceBid places a bid and returns the persisted bid together with the
	// auction's advanced price state
	PlaceBid(ctx context.Context, req *PlaceBidRequest) (*BidResult, error)
	// SettleAuction settles one auction; idempotent, safe to call repeatedly
	SettleAuction(ctx context.Context, auctionID uuid.UUID, now time.Time) error
	// SettleExpired settles a batch of expired auctions, oldest deadline first
	SettleExpired(ctx context.Context, now time.Time) (*SweepResult, error)
	// CancelAuction withdraws a live auction and releases the leading hold
	CancelAuction(ctx context.Context, auctionID, sellerID uuid.UUID) error
}

// Store is the persistence surface the engine runs on. Implementations must
// retry fn on serialization conflicts and report exhaustion as a retryable
// conflict error.
type Store interface {
	// InSerializableTx runs fn inside one serializable transaction
	InSerializableTx(ctx context.Context, fn func(TxStore) error) error
	// ExpiredUnsettled returns ids of auctions due for settlement, ordered
	// by deadline ascending
	ExpiredUnsettled(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// TxStore is the query surface available inside an open transaction. The
// conditional updates report whether exactly one row matched; that row count
// is the control signal for every critical step.
type TxStore interface {
	// AuctionByID fetches an auction row
	AuctionByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	// LeadingBid returns the current winning bid, or nil if there are none
	LeadingBid(ctx context.Context, auctionID uuid.UUID) (*auction.Bid, error)
	// InsertBid appends a bid row
	InsertBid(ctx context.Context, b *auction.Bid) error
	// AccountBalances reads an account's available and reserved balances
	AccountBalances(ctx context.Context, id uuid.UUID) (availableMinor, reservedMinor int64, err error)
	// ReserveFunds moves amountMinor from available to reserved if covered
	ReserveFunds(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error)
	// ReleaseHold moves amountMinor from reserved back to available
	ReleaseHold(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error)
	// DebitReserved spends amountMinor out of reserved
	DebitReserved(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error)
	// DebitSplit spends from reserved and available in one conditional update
	DebitSplit(ctx context.Context, accountID uuid.UUID, reservedMinor, availableMinor int64, now time.Time) (bool, error)
	// CreditAvailable adds amountMinor to available
	CreditAvailable(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error)
	// AdvancePrice compare-and-sets the auction price and bumps bid count
	AdvancePrice(ctx context.Context, auctionID uuid.UUID, fromPriceMinor, toPriceMinor int64, now time.Time) (bool, error)
	// MarkEnded transitions live -> ended once the deadline has passed
	MarkEnded(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error)
	// MarkCancelled transitions ended -> cancelled
	MarkCancelled(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error)
	// CancelLive transitions live -> cancelled and stamps the settlement
	CancelLive(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error)
	// ClaimSettlement stamps settled_at if no settlement has claimed it yet
	ClaimSettlement(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error)
}

// MetricsCollector defines the interface for metrics
type MetricsCollector interface {
	// RecordBidPlaced records an accepted bid
	RecordBidPlaced(ctx context.Context, amountMinor int64)
	// RecordBidRejected records a rejected bid by error code
	RecordBidRejected(ctx context.Context, code string)
	// RecordSettlement records a settlement by outcome
	RecordSettlement(ctx context.Context, outcome string)
	// RecordSweep records one sweep pass
	RecordSweep(ctx context.Context, attempted, failed int)
}

// PlaceBidRequest represents a bid placement request
type PlaceBidRequest struct {
	AuctionID   uuid.UUID
	BidderID    uuid.UUID
	AmountMinor int64
}

// BidResult is the outcome of a successful placement: the persisted bid and
// the auction state it produced.
type BidResult struct {
	Bid                 *auction.Bid
	CurrentPriceMinor   int64
	BidCount            int
	MinimumNextBidMinor int64
}

// SweepResult reports one settlement sweep pass.
type SweepResult struct {
	Attempted int
	Failed    int
}

package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/account"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
)

// Service covers the marketplace surface around the auction core: account
// and auction lifecycle, funding, and catalog reads. Nothing here touches
// the engine's transactional paths.
type Service interface {
	// CreateAccount registers a new account with a zero balance
	CreateAccount(ctx context.Context, req *CreateAccountRequest) (*account.Account, error)
	// GetAccount retrieves an account with its balances
	GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error)
	// Deposit adds external funds to an account's available balance
	Deposit(ctx context.Context, req *DepositRequest) (*account.Account, error)
	// CreateAuction lists a new live auction
	CreateAuction(ctx context.Context, req *CreateAuctionRequest) (*auction.Auction, error)
	// GetAuction reads an auction snapshot plus its leading bid
	GetAuction(ctx context.Context, id uuid.UUID) (*AuctionDetail, error)
	// ListLiveAuctions pages open auctions, soonest deadline first
	ListLiveAuctions(ctx context.Context, req *ListAuctionsRequest) ([]*auction.Auction, error)
}

// Store defines the persistence surface the marketplace needs.
type Store interface {
	// CreateAccount stores a new account
	CreateAccount(ctx context.Context, a *account.Account) error
	// AccountByID retrieves an account by ID
	AccountByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
	// Deposit credits available funds and returns the updated account
	Deposit(ctx context.Context, id uuid.UUID, amountMinor int64, now time.Time) (*account.Account, error)
	// CreateAuction stores a new auction
	CreateAuction(ctx context.Context, a *auction.Auction) error
	// AuctionByID retrieves an auction by ID
	AuctionByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	// LeadingBid returns the current winning bid, or nil if there are none
	LeadingBid(ctx context.Context, auctionID uuid.UUID) (*auction.Bid, error)
	// LiveAuctions pages auctions open for bidding by deadline ascending
	LiveAuctions(ctx context.Context, now time.Time, limit, offset int) ([]*auction.Auction, error)
}

// CreateAccountRequest represents an account registration request
type CreateAccountRequest struct {
	Email string
	Name  string
}

// DepositRequest represents an external funding request
type DepositRequest struct {
	AccountID   uuid.UUID
	AmountMinor int64
}

// CreateAuctionRequest represents a new auction listing
type CreateAuctionRequest struct {
	SellerID          uuid.UUID
	Title             string
	Description       string
	StartPriceMinor   int64
	MinIncrementMinor int64
	EndsAt            time.Time
}

// ListAuctionsRequest pages the live-auction catalog.
type ListAuctionsRequest struct {
	Limit  int
	Offset int
}

// AuctionDetail is an auction snapshot together with its leading bid.
type AuctionDetail struct {
	Auction    *auction.Auction
	LeadingBid *auction.Bid
}

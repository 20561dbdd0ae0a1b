package marketplace

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/account"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// service implements the Service interface
type service struct {
	store  Store
	logger *slog.Logger

	// nowFunc supplies the current time; replaced in tests.
	nowFunc func() time.Time
}

// NewService creates the marketplace service.
func NewService(store Store, logger *slog.Logger) Service {
	return &service{
		store:   store,
		logger:  logger,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccount registers a new account with zero balances.
func (s *service) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*account.Account, error) {
	if req == nil {
		return nil, apperrors.ErrInvalidInput
	}

	a, err := account.NewAccount(req.Email, req.Name)
	if err != nil {
		return nil, apperrors.NewValidationError("INVALID_ACCOUNT", err.Error())
	}

	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account created",
		slog.String("account_id", a.ID.String()))
	return a, nil
}

// GetAccount retrieves an account with its balances.
func (s *service) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	if id == uuid.Nil {
		return nil, apperrors.NewValidationError("INVALID_ACCOUNT_ID", "account id is required")
	}
	return s.store.AccountByID(ctx, id)
}

// Deposit adds external funds to the available balance. This is the only
// operation that grows an account's combined balance.
func (s *service) Deposit(ctx context.Context, req *DepositRequest) (*account.Account, error) {
	if req == nil {
		return nil, apperrors.ErrInvalidInput
	}
	if req.AccountID == uuid.Nil {
		return nil, apperrors.NewValidationError("INVALID_ACCOUNT_ID", "account id is required")
	}
	if req.AmountMinor <= 0 {
		return nil, apperrors.NewValidationError("INVALID_AMOUNT", "deposit amount must be positive")
	}
	if err := validation.ValidateAmountMinor(req.AmountMinor, "deposit amount"); err != nil {
		return nil, apperrors.NewValidationError("INVALID_AMOUNT", err.Error())
	}

	a, err := s.store.Deposit(ctx, req.AccountID, req.AmountMinor, s.nowFunc())
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "deposit credited",
		slog.String("account_id", a.ID.String()),
		slog.Int64("amount_minor", req.AmountMinor))
	return a, nil
}

// CreateAuction lists a new auction. It opens live at the start price.
func (s *service) CreateAuction(ctx context.Context, req *CreateAuctionRequest) (*auction.Auction, error) {
	if req == nil {
		return nil, apperrors.ErrInvalidInput
	}

	a, err := auction.NewAuction(req.SellerID, req.Title, req.Description,
		req.StartPriceMinor, req.MinIncrementMinor, req.EndsAt)
	if err != nil {
		return nil, apperrors.NewValidationError("INVALID_AUCTION", err.Error())
	}

	if err := s.store.CreateAuction(ctx, a); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID.String()),
		slog.String("seller_id", a.SellerID.String()),
		slog.Time("ends_at", a.EndsAt))
	return a, nil
}

// GetAuction reads an auction snapshot plus its leading bid. Reads never
// settle; expired auctions are settled by arriving bids or the sweep.
func (s *service) GetAuction(ctx context.Context, id uuid.UUID) (*AuctionDetail, error) {
	if id == uuid.Nil {
		return nil, apperrors.NewValidationError("INVALID_AUCTION_ID", "auction id is required")
	}

	a, err := s.store.AuctionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	lead, err := s.store.LeadingBid(ctx, id)
	if err != nil {
		return nil, err
	}

	return &AuctionDetail{Auction: a, LeadingBid: lead}, nil
}

// ListLiveAuctions pages open auctions, soonest deadline first.
func (s *service) ListLiveAuctions(ctx context.Context, req *ListAuctionsRequest) ([]*auction.Auction, error) {
	limit := defaultPageSize
	offset := 0
	if req != nil {
		if req.Limit > 0 {
			limit = req.Limit
		}
		if req.Limit > maxPageSize {
			limit = maxPageSize
		}
		if req.Offset > 0 {
			offset = req.Offset
		}
	}

	return s.store.LiveAuctions(ctx, s.nowFunc(), limit, offset)
}

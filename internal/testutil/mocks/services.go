// Package mocks provides testify mocks for the service interfaces consumed
// by the API layer.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/account"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
	"github.com/atelierhq/atelier-auction-backend/internal/service/marketplace"
)

// Marketplace mocks marketplace.Service.
type Marketplace struct {
	mock.Mock
}

func (m *Marketplace) CreateAccount(ctx context.Context, req *marketplace.CreateAccountRequest) (*account.Account, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *Marketplace) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *Marketplace) Deposit(ctx context.Context, req *marketplace.DepositRequest) (*account.Account, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *Marketplace) CreateAuction(ctx context.Context, req *marketplace.CreateAuctionRequest) (*auction.Auction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auction.Auction), args.Error(1)
}

func (m *Marketplace) GetAuction(ctx context.Context, id uuid.UUID) (*marketplace.AuctionDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketplace.AuctionDetail), args.Error(1)
}

func (m *Marketplace) ListLiveAuctions(ctx context.Context, req *marketplace.ListAuctionsRequest) ([]*auction.Auction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auction.Auction), args.Error(1)
}

// Bidding mocks bidding.Service.
type Bidding struct {
	mock.Mock
}

func (m *Bidding) PlaceBid(ctx context.Context, req *bidding.PlaceBidRequest) (*bidding.BidResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bidding.BidResult), args.Error(1)
}

func (m *Bidding) SettleAuction(ctx context.Context, auctionID uuid.UUID, now time.Time) error {
	args := m.Called(ctx, auctionID, now)
	return args.Error(0)
}

func (m *Bidding) SettleExpired(ctx context.Context, now time.Time) (*bidding.SweepResult, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bidding.SweepResult), args.Error(1)
}

func (m *Bidding) CancelAuction(ctx context.Context, auctionID, sellerID uuid.UUID) error {
	args := m.Called(ctx, auctionID, sellerID)
	return args.Error(0)
}

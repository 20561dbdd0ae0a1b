package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
)

func TestPlaceBid_Validation(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	tests := []struct {
		name     string
		req      *PlaceBidRequest
		wantCode string
	}{
		{
			name:     "nil request",
			req:      nil,
			wantCode: "INVALID_INPUT",
		},
		{
			name:     "missing auction id",
			req:      &PlaceBidRequest{BidderID: uuid.New(), AmountMinor: 500},
			wantCode: "INVALID_AUCTION_ID",
		},
		{
			name:     "missing bidder id",
			req:      &PlaceBidRequest{AuctionID: uuid.New(), AmountMinor: 500},
			wantCode: "INVALID_BIDDER_ID",
		},
		{
			name:     "negative amount",
			req:      &PlaceBidRequest{AuctionID: uuid.New(), BidderID: uuid.New(), AmountMinor: -1},
			wantCode: "INVALID_AMOUNT",
		},
		{
			name:     "amount below platform floor",
			req:      &PlaceBidRequest{AuctionID: uuid.New(), BidderID: uuid.New(), AmountMinor: 99},
			wantCode: "AMOUNT_BELOW_FLOOR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.PlaceBid(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestPlaceBid_FirstBid(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	alice := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	svc, metrics := newTestService(store)

	res, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: alice, AmountMinor: 600,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(600), res.CurrentPriceMinor)
	assert.Equal(t, 1, res.BidCount)
	assert.Equal(t, int64(700), res.MinimumNextBidMinor)
	assert.Equal(t, auc.ID, res.Bid.AuctionID)
	assert.Equal(t, alice, res.Bid.BidderID)
	assert.Equal(t, int64(600), res.Bid.AmountMinor)
	assert.Equal(t, testNow, res.Bid.CreatedAt)

	assert.Equal(t, balanceRow{available: 9400, reserved: 600}, store.balances(alice))
	row := store.auctionRow(auc.ID)
	assert.Equal(t, int64(600), row.CurrentPriceMinor)
	assert.Equal(t, 1, row.BidCount)
	assert.Equal(t, 1, store.bidCount(auc.ID))
	assert.Equal(t, 1, metrics.placedCount())
}

func TestPlaceBid_OutbidReleasesPreviousLeader(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	alice := store.addAccount(10000, 0)
	bob := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: alice, AmountMinor: 600})
	require.NoError(t, err)

	res, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: bob, AmountMinor: 700})
	require.NoError(t, err)

	assert.Equal(t, int64(700), res.CurrentPriceMinor)
	assert.Equal(t, 2, res.BidCount)

	// Bob holds the new reservation, Alice's is fully released.
	assert.Equal(t, balanceRow{available: 9300, reserved: 700}, store.balances(bob))
	assert.Equal(t, balanceRow{available: 10000, reserved: 0}, store.balances(alice))

	lead, err := (&fakeTx{store: store}).LeadingBid(ctx, auc.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, lead.BidderID)
	assert.Equal(t, int64(700), lead.AmountMinor)
}

func TestPlaceBid_SelfTopPaysOnlyDelta(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	bob := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: bob, AmountMinor: 700})
	require.NoError(t, err)
	require.Equal(t, balanceRow{available: 9300, reserved: 700}, store.balances(bob))

	res, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: bob, AmountMinor: 900})
	require.NoError(t, err)

	// Raising 700 -> 900 moves exactly the 200 delta.
	assert.Equal(t, balanceRow{available: 9100, reserved: 900}, store.balances(bob))
	assert.Equal(t, int64(900), res.CurrentPriceMinor)
	assert.Equal(t, int64(1000), res.MinimumNextBidMinor)
}

func TestPlaceBid_BelowMinimum(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	alice := store.addAccount(10000, 0)
	bob := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	svc, metrics := newTestService(store)
	ctx := context.Background()

	for _, step := range []struct {
		bidder uuid.UUID
		amount int64
	}{
		{alice, 600}, {bob, 700}, {bob, 900},
	} {
		_, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: step.bidder, AmountMinor: step.amount})
		require.NoError(t, err)
	}

	_, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: alice, AmountMinor: 950})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "BID_BELOW_MINIMUM"))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, int64(1000), appErr.Details["minimum_next_bid_minor"])

	// Nothing moved.
	assert.Equal(t, balanceRow{available: 10000, reserved: 0}, store.balances(alice))
	assert.Equal(t, balanceRow{available: 9100, reserved: 900}, store.balances(bob))
	row := store.auctionRow(auc.ID)
	assert.Equal(t, int64(900), row.CurrentPriceMinor)
	assert.Equal(t, 3, row.BidCount)
	assert.Equal(t, 1, metrics.rejectedCount("BID_BELOW_MINIMUM"))
}

func TestPlaceBid_MinimumBoundary(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	alice := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	svc, _ := newTestService(store)
	ctx := context.Background()

	// One minor unit under the minimum is rejected.
	_, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: alice, AmountMinor: 599})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "BID_BELOW_MINIMUM"))

	// Exactly the minimum succeeds.
	res, err := svc.PlaceBid(ctx, &PlaceBidRequest{AuctionID: auc.ID, BidderID: alice, AmountMinor: 600})
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.CurrentPriceMinor)
}

func TestPlaceBid_InsufficientFunds(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	dave := store.addAccount(150, 0)
	auc := liveAuction(seller, 100, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	svc, _ := newTestService(store)

	_, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: dave, AmountMinor: 200,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "INSUFFICIENT_FUNDS"))

	assert.Equal(t, balanceRow{available: 150, reserved: 0}, store.balances(dave))
	row := store.auctionRow(auc.ID)
	assert.Equal(t, int64(100), row.CurrentPriceMinor)
	assert.Equal(t, 0, row.BidCount)
	assert.Equal(t, 0, store.bidCount(auc.ID))
}

func TestPlaceBid_SellerCannotBidOwnAuction(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	svc, _ := newTestService(store)

	_, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: seller, AmountMinor: 600,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "SELLER_SELF_BID"))
	assert.Equal(t, balanceRow{available: 10000, reserved: 0}, store.balances(seller))
}

func TestPlaceBid_AuctionNotFound(t *testing.T) {
	store := newFakeStore()
	bidder := store.addAccount(10000, 0)
	svc, _ := newTestService(store)

	_, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: uuid.New(), BidderID: bidder, AmountMinor: 600,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuctionNotFound)
}

func TestPlaceBid_DeadlineIsExclusive(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	alice := store.addAccount(10000, 0)
	// Ends exactly at the test clock. A bid at ends_at is late.
	auc := liveAuction(seller, 500, 100, testNow)
	store.addAuction(auc)
	svc, metrics := newTestService(store)

	_, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: alice, AmountMinor: 600,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "AUCTION_CLOSED"))

	// The rejected bid still settled the expired no-bid auction.
	row := store.auctionRow(auc.ID)
	assert.Equal(t, auction.StatusEnded, row.Status)
	require.NotNil(t, row.SettledAt)
	assert.Equal(t, testNow, *row.SettledAt)
	assert.Equal(t, balanceRow{available: 10000, reserved: 0}, store.balances(alice))
	assert.Equal(t, 1, metrics.settlementCount("no_bids"))
}

func TestPlaceBid_ExpiredAuctionSettledInline(t *testing.T) {
	store := newFakeStore()
	carol := store.addAccount(0, 0)
	alice := store.addAccount(9200, 800)
	bob := store.addAccount(10000, 0)
	auc := liveAuction(carol, 500, 100, testNow.Add(-time.Minute))
	store.addAuction(auc)
	seedBid(store, auc.ID, alice, 800, testNow.Add(-2*time.Hour))
	svc, metrics := newTestService(store)

	_, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: bob, AmountMinor: 900,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "AUCTION_CLOSED"))

	// Settlement ran on the bid's own transaction: Alice paid, Carol got
	// the proceeds, Bob was never touched.
	row := store.auctionRow(auc.ID)
	assert.Equal(t, auction.StatusEnded, row.Status)
	require.NotNil(t, row.SettledAt)
	assert.Equal(t, balanceRow{available: 9200, reserved: 0}, store.balances(alice))
	assert.Equal(t, balanceRow{available: 800, reserved: 0}, store.balances(carol))
	assert.Equal(t, balanceRow{available: 10000, reserved: 0}, store.balances(bob))
	assert.Equal(t, 1, metrics.settlementCount("credited"))
	assert.Equal(t, 1, store.bidCount(auc.ID), "the rejected bid must not be persisted")
}

func TestPlaceBid_PriceChangeSurfaces(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	alice := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	store.failAdvancePrice = true
	svc, _ := newTestService(store)

	_, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: alice, AmountMinor: 600,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "PRICE_CHANGED"))
	assert.Equal(t, 409, apperrors.GetStatusCode(err))

	// The reservation taken before the failed compare-and-set is rolled
	// back with the transaction.
	assert.Equal(t, balanceRow{available: 10000, reserved: 0}, store.balances(alice))
	assert.Equal(t, int64(500), store.auctionRow(auc.ID).CurrentPriceMinor)
	assert.Equal(t, 0, store.bidCount(auc.ID))
}

func TestPlaceBid_RetriedClosureRunsFromScratch(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	alice := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	store.conflictsToInject = 2
	svc, _ := newTestService(store)

	res, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: alice, AmountMinor: 600,
	})
	require.NoError(t, err)

	// Two rolled-back attempts must leave no residue: one bid, one hold,
	// one price advance.
	assert.Equal(t, int64(600), res.CurrentPriceMinor)
	assert.Equal(t, 1, res.BidCount)
	assert.Equal(t, balanceRow{available: 9400, reserved: 600}, store.balances(alice))
	row := store.auctionRow(auc.ID)
	assert.Equal(t, int64(600), row.CurrentPriceMinor)
	assert.Equal(t, 1, row.BidCount)
	assert.Equal(t, 1, store.bidCount(auc.ID))
}

func TestPlaceBid_BrokenHoldAbortsPlacement(t *testing.T) {
	store := newFakeStore()
	seller := store.addAccount(0, 0)
	// Alice leads at 800 but her reservation is gone: a corrupt state the
	// release step must refuse to paper over.
	alice := store.addAccount(10000, 0)
	bob := store.addAccount(10000, 0)
	auc := liveAuction(seller, 500, 100, testNow.Add(time.Hour))
	store.addAuction(auc)
	seedBid(store, auc.ID, alice, 800, testNow.Add(-time.Hour))
	svc, _ := newTestService(store)

	_, err := svc.PlaceBid(context.Background(), &PlaceBidRequest{
		AuctionID: auc.ID, BidderID: bob, AmountMinor: 900,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	assert.True(t, apperrors.IsRetryable(err))

	// Everything rolled back, including Bob's reservation.
	assert.Equal(t, balanceRow{available: 10000, reserved: 0}, store.balances(bob))
	assert.Equal(t, int64(800), store.auctionRow(auc.ID).CurrentPriceMinor)
	assert.Equal(t, 1, store.bidCount(auc.ID))
}

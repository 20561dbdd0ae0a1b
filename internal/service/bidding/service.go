package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/validation"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/values"
)

// sweepBatchSize bounds how many auctions one sweep pass settles.
const sweepBatchSize = 24

// service implements the Service interface
type service struct {
	store   Store
	metrics MetricsCollector
	logger  *slog.Logger

	// nowFunc supplies the current time; replaced in tests.
	nowFunc func() time.Time
}

// NewService creates the auction core engine.
func NewService(store Store, metrics MetricsCollector, logger *slog.Logger) Service {
	return &service{
		store:   store,
		metrics: metrics,
		logger:  logger,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBid places a bid inside one serializable transaction. A bid that
// finds its auction past the deadline settles the auction on the same
// transaction before rejecting, so seller funds never wait for the sweep.
func (s *service) PlaceBid(ctx context.Context, req *PlaceBidRequest) (*BidResult, error) {
	if err := validateBidRequest(req); err != nil {
		s.metrics.RecordBidRejected(ctx, errorCode(err))
		return nil, err
	}

	var (
		result    *BidResult
		rejection error
		settled   settlementOutcome
	)

	err := s.store.InSerializableTx(ctx, func(tx TxStore) error {
		// The closure may be re-run from scratch after a serialization
		// conflict; reset everything it populates.
		result, rejection, settled = nil, nil, ""
		now := s.nowFunc()

		auc, err := tx.AuctionByID(ctx, req.AuctionID)
		if err != nil {
			return err
		}

		if auc.SellerID == req.BidderID {
			return apperrors.ErrSellerSelfBid
		}

		if !auc.IsLive(now) {
			// Settle the expired auction on this same transaction, then
			// commit. The rejection is reported after the commit so the
			// settlement is never rolled back with the bid.
			outcome, err := s.settleInTx(ctx, tx, auc, now)
			if err != nil {
				return err
			}
			settled = outcome
			rejection = apperrors.ErrAuctionClosed
			return nil
		}

		result, err = s.executeBid(ctx, tx, auc, req, now)
		return err
	})
	if err != nil {
		s.observeBidFailure(ctx, req, err)
		return nil, err
	}

	if settled != "" && settled != settleSkipped {
		s.metrics.RecordSettlement(ctx, string(settled))
	}
	if rejection != nil {
		s.metrics.RecordBidRejected(ctx, errorCode(rejection))
		return nil, rejection
	}

	s.metrics.RecordBidPlaced(ctx, req.AmountMinor)
	return result, nil
}

// executeBid runs the placement steps against a live auction. Any error
// rolls the transaction back, leaving balances and auction state untouched.
func (s *service) executeBid(ctx context.Context, tx TxStore, auc *auction.Auction, req *PlaceBidRequest, now time.Time) (*BidResult, error) {
	minNext := auc.MinimumNextBidMinor()
	if req.AmountMinor < minNext {
		return nil, apperrors.NewBelowMinimumError(minNext)
	}

	leader, err := tx.LeadingBid(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	// A bidder topping their own leading bid pays only the delta; anyone
	// else reserves the full amount.
	requiredHold := req.AmountMinor
	selfTop := leader != nil && leader.BidderID == req.BidderID
	if selfTop {
		requiredHold = req.AmountMinor - leader.AmountMinor
	}

	if requiredHold > 0 {
		ok, err := tx.ReserveFunds(ctx, req.BidderID, requiredHold, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.ErrInsufficientFunds
		}
	}

	ok, err := tx.AdvancePrice(ctx, req.AuctionID, auc.CurrentPriceMinor, req.AmountMinor, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrPriceChanged
	}

	if leader != nil && !selfTop {
		ok, err := tx.ReleaseHold(ctx, leader.BidderID, leader.AmountMinor, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NewInternalError("previous leader hold release matched no row").
				WithDetails(map[string]interface{}{
					"auction_id":   auc.ID.String(),
					"leader_id":    leader.BidderID.String(),
					"amount_minor": leader.AmountMinor,
				})
		}
	}

	b, err := auction.NewBid(req.AuctionID, req.BidderID, req.AmountMinor, now)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertBid(ctx, b); err != nil {
		return nil, err
	}

	return &BidResult{
		Bid:                 b,
		CurrentPriceMinor:   req.AmountMinor,
		BidCount:            auc.BidCount + 1,
		MinimumNextBidMinor: req.AmountMinor + auc.MinIncrementMinor,
	}, nil
}

func (s *service) observeBidFailure(ctx context.Context, req *PlaceBidRequest, err error) {
	s.metrics.RecordBidRejected(ctx, errorCode(err))

	if apperrors.IsType(err, apperrors.ErrorTypeInternal) {
		s.logger.ErrorContext(ctx, "bid placement hit internal error",
			slog.String("auction_id", req.AuctionID.String()),
			slog.String("bidder_id", req.BidderID.String()),
			slog.Int64("amount_minor", req.AmountMinor),
			slog.Any("error", err))
	}
}

func validateBidRequest(req *PlaceBidRequest) error {
	if req == nil {
		return apperrors.ErrInvalidInput
	}
	if req.AuctionID == uuid.Nil {
		return apperrors.NewValidationError("INVALID_AUCTION_ID", "auction id is required")
	}
	if req.BidderID == uuid.Nil {
		return apperrors.NewValidationError("INVALID_BIDDER_ID", "bidder id is required")
	}
	if err := validation.ValidateAmountMinor(req.AmountMinor, "bid amount"); err != nil {
		return apperrors.NewValidationError("INVALID_AMOUNT", err.Error())
	}
	if req.AmountMinor < values.MinBidFloorMinor {
		return apperrors.NewValidationError("AMOUNT_BELOW_FLOOR",
			fmt.Sprintf("bid amount must be at least %d minor units", values.MinBidFloorMinor))
	}
	return nil
}

func errorCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}

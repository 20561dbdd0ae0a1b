package bidding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
)

// settlementOutcome labels what a settlement attempt did, for metrics.
type settlementOutcome string

const (
	settleSkipped   settlementOutcome = "skipped"
	settleNoBids    settlementOutcome = "no_bids"
	settleCancelled settlementOutcome = "cancelled"
	settleCredited  settlementOutcome = "credited"
)

// SettleAuction settles one auction. Idempotent: the compare-and-set on the
// settlement stamp guarantees that out of any number of concurrent callers,
// exactly one performs the balance transfers.
func (s *service) SettleAuction(ctx context.Context, auctionID uuid.UUID, now time.Time) error {
	if auctionID == uuid.Nil {
		return apperrors.NewValidationError("INVALID_AUCTION_ID", "auction id is required")
	}

	var outcome settlementOutcome

	err := s.store.InSerializableTx(ctx, func(tx TxStore) error {
		outcome = ""

		auc, err := tx.AuctionByID(ctx, auctionID)
		if err != nil {
			if errors.Is(err, apperrors.ErrAuctionNotFound) {
				outcome = settleSkipped
				return nil
			}
			return err
		}

		outcome, err = s.settleInTx(ctx, tx, auc, now)
		return err
	})
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeInternal) {
			s.logger.ErrorContext(ctx, "settlement hit internal error",
				slog.String("auction_id", auctionID.String()),
				slog.Any("error", err))
		}
		return err
	}

	if outcome != "" && outcome != settleSkipped {
		s.metrics.RecordSettlement(ctx, string(outcome))
	}
	return nil
}

// settleInTx applies the settlement protocol to an already-fetched auction
// inside the caller's transaction. Returning nil commits whatever it did;
// only store failures and broken invariants roll back.
func (s *service) settleInTx(ctx context.Context, tx TxStore, auc *auction.Auction, now time.Time) (settlementOutcome, error) {
	if auc.IsSettled() {
		return settleSkipped, nil
	}

	status := auc.Status
	if status == auction.StatusLive {
		if auc.EndsAt.After(now) {
			return settleSkipped, nil
		}
		ok, err := tx.MarkEnded(ctx, auc.ID, now)
		if err != nil {
			return "", err
		}
		if !ok {
			// Another transaction moved the auction first.
			return settleSkipped, nil
		}
		status = auction.StatusEnded
	}

	if status != auction.StatusEnded {
		// Cancelled auctions have nothing to settle.
		return settleSkipped, nil
	}

	ok, err := tx.ClaimSettlement(ctx, auc.ID, now)
	if err != nil {
		return "", err
	}
	if !ok {
		// A concurrent settlement already claimed this auction.
		return settleSkipped, nil
	}

	winning, err := tx.LeadingBid(ctx, auc.ID)
	if err != nil {
		return "", err
	}
	if winning == nil {
		return settleNoBids, nil
	}

	paid, err := s.collectPayment(ctx, tx, winning, now)
	if err != nil {
		return "", err
	}
	if !paid {
		// The winner cannot pay; close out without crediting the seller.
		if _, err := tx.MarkCancelled(ctx, auc.ID, now); err != nil {
			return "", err
		}
		return settleCancelled, nil
	}

	ok, err = tx.CreditAvailable(ctx, auc.SellerID, winning.AmountMinor, now)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewInternalError("seller credit matched no row").
			WithDetails(map[string]interface{}{
				"auction_id":   auc.ID.String(),
				"seller_id":    auc.SellerID.String(),
				"amount_minor": winning.AmountMinor,
			})
	}

	return settleCredited, nil
}

// collectPayment takes the winning amount from the winner. The fast path
// spends the reserved hold placed at bid time. If that hold is short, spend
// whatever reserve remains and cover the rest from the available balance.
func (s *service) collectPayment(ctx context.Context, tx TxStore, winning *auction.Bid, now time.Time) (bool, error) {
	ok, err := tx.DebitReserved(ctx, winning.BidderID, winning.AmountMinor, now)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	_, reserved, err := tx.AccountBalances(ctx, winning.BidderID)
	if err != nil {
		return false, err
	}

	reservedToSpend := min(reserved, winning.AmountMinor)
	needed := winning.AmountMinor - reservedToSpend

	return tx.DebitSplit(ctx, winning.BidderID, reservedToSpend, needed, now)
}

// CancelAuction withdraws a live auction at the seller's request. The
// leading hold, if any, is released and the settlement stamp is set so the
// sweep never revisits the auction. Expired auctions cannot be cancelled;
// they settle.
func (s *service) CancelAuction(ctx context.Context, auctionID, sellerID uuid.UUID) error {
	if auctionID == uuid.Nil {
		return apperrors.NewValidationError("INVALID_AUCTION_ID", "auction id is required")
	}
	if sellerID == uuid.Nil {
		return apperrors.NewValidationError("INVALID_SELLER_ID", "seller id is required")
	}

	return s.store.InSerializableTx(ctx, func(tx TxStore) error {
		now := s.nowFunc()

		auc, err := tx.AuctionByID(ctx, auctionID)
		if err != nil {
			return err
		}

		if auc.SellerID != sellerID {
			return apperrors.NewForbiddenError("only the seller may cancel an auction")
		}
		if !auc.IsLive(now) {
			return apperrors.ErrAuctionClosed
		}

		ok, err := tx.CancelLive(ctx, auctionID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrAuctionClosed
		}

		leader, err := tx.LeadingBid(ctx, auctionID)
		if err != nil {
			return err
		}
		if leader == nil {
			return nil
		}

		ok, err = tx.ReleaseHold(ctx, leader.BidderID, leader.AmountMinor, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewInternalError("leading hold release matched no row").
				WithDetails(map[string]interface{}{
					"auction_id":   auctionID.String(),
					"leader_id":    leader.BidderID.String(),
					"amount_minor": leader.AmountMinor,
				})
		}
		return nil
	})
}

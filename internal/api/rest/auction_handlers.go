package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/cache"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
	"github.com/atelierhq/atelier-auction-backend/internal/service/marketplace"
)

func (h *Handler) handleCreateAuction(ctx context.Context, r *http.Request) (interface{}, error) {
	sellerID, err := callerAccount(ctx)
	if err != nil {
		return nil, err
	}

	var req CreateAuctionRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	startPrice, err := parseAmount(req.StartPrice)
	if err != nil {
		return nil, err
	}
	minIncrement, err := parseAmount(req.MinIncrement)
	if err != nil {
		return nil, err
	}

	a, err := h.marketplace.CreateAuction(ctx, &marketplace.CreateAuctionRequest{
		SellerID:          sellerID,
		Title:             req.Title,
		Description:       req.Description,
		StartPriceMinor:   startPrice.Minor(),
		MinIncrementMinor: minIncrement.Minor(),
		EndsAt:            req.EndsAt,
	})
	if err != nil {
		return nil, err
	}

	return newAuctionResponse(a), nil
}

// handleGetAuction serves one auction with its leading bid. When the
// snapshot cache is enabled the read goes through it; snapshots are
// advisory and expire on their TTL, so a stale read is bounded.
func (h *Handler) handleGetAuction(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		return nil, err
	}

	if h.snapshots != nil {
		snap, err := h.snapshots.GetSnapshot(ctx, id)
		if err != nil {
			h.logger.WarnContext(ctx, "snapshot lookup failed",
				slog.String("auction_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
		h.recordCacheLookup(ctx, snap != nil)
		if snap != nil {
			return newAuctionDetailResponse(snap.Auction, snap.LeadingBid), nil
		}
	}

	detail, err := h.marketplace.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}

	if h.snapshots != nil {
		snap := &cache.Snapshot{Auction: detail.Auction, LeadingBid: detail.LeadingBid}
		if err := h.snapshots.SetSnapshot(ctx, snap); err != nil {
			h.logger.WarnContext(ctx, "snapshot store failed",
				slog.String("auction_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return newAuctionDetailResponse(detail.Auction, detail.LeadingBid), nil
}

func (h *Handler) handleListAuctions(ctx context.Context, r *http.Request) (interface{}, error) {
	offset := queryInt(r, "offset", 0)

	auctions, err := h.marketplace.ListLiveAuctions(ctx, &marketplace.ListAuctionsRequest{
		Limit:  queryInt(r, "limit", 0),
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, newAuctionResponse(a))
	}

	return &AuctionListResponse{Auctions: out, Count: len(out), Offset: offset}, nil
}

func (h *Handler) handlePlaceBid(ctx context.Context, r *http.Request) (interface{}, error) {
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	bidderID, err := callerAccount(ctx)
	if err != nil {
		return nil, err
	}

	var req PlaceBidRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	result, err := h.bidding.PlaceBid(ctx, &bidding.PlaceBidRequest{
		AuctionID:   auctionID,
		BidderID:    bidderID,
		AmountMinor: amount.Minor(),
	})
	if err != nil {
		return nil, err
	}

	h.invalidateSnapshot(ctx, auctionID)
	return newBidResultResponse(result), nil
}

func (h *Handler) handleCancelAuction(ctx context.Context, r *http.Request) (interface{}, error) {
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	sellerID, err := callerAccount(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.bidding.CancelAuction(ctx, auctionID, sellerID); err != nil {
		return nil, err
	}
	h.invalidateSnapshot(ctx, auctionID)

	detail, err := h.marketplace.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return newAuctionDetailResponse(detail.Auction, detail.LeadingBid), nil
}

// handleSweep settles a batch of expired auctions on demand. The background
// sweeper covers steady state; this endpoint exists for operators.
func (h *Handler) handleSweep(ctx context.Context, r *http.Request) (interface{}, error) {
	result, err := h.bidding.SettleExpired(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &SweepResponse{Attempted: result.Attempted, Failed: result.Failed}, nil
}

func (h *Handler) invalidateSnapshot(ctx context.Context, auctionID uuid.UUID) {
	if h.snapshots == nil {
		return
	}
	if err := h.snapshots.Invalidate(ctx, auctionID); err != nil {
		h.logger.WarnContext(ctx, "snapshot invalidation failed",
			slog.String("auction_id", auctionID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handler) recordCacheLookup(ctx context.Context, hit bool) {
	if h.registry != nil {
		h.registry.RecordCacheLookup(ctx, hit)
	}
}

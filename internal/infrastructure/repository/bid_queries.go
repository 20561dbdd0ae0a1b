package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
)

const bidColumns = `id, auction_id, bidder_id, amount_minor, created_at`

func scanBid(row pgx.Row) (*auction.Bid, error) {
	var b auction.Bid
	err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.AmountMinor, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// LeadingBid returns the auction's current winning bid: greatest amount,
// most recent on tie. Returns nil when the auction has no bids.
func (q *queries) LeadingBid(ctx context.Context, auctionID uuid.UUID) (*auction.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount_minor DESC, created_at DESC
		LIMIT 1`

	b, err := scanBid(q.db.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get leading bid: %w", err)
	}
	return b, nil
}

// InsertBid appends a bid row. Bids are never updated or deleted.
func (q *queries) InsertBid(ctx context.Context, b *auction.Bid) error {
	query := `
		INSERT INTO bids (id, auction_id, bidder_id, amount_minor, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := q.db.Exec(ctx, query, b.ID, b.AuctionID, b.BidderID, b.AmountMinor, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
)

const auctionColumns = `
	id, seller_id, title, description, status,
	start_price_minor, current_price_minor, min_increment_minor, bid_count,
	starts_at, ends_at, settled_at, created_at, updated_at`

func scanAuction(row pgx.Row) (*auction.Auction, error) {
	var a auction.Auction
	var status string

	err := row.Scan(
		&a.ID, &a.SellerID, &a.Title, &a.Description, &status,
		&a.StartPriceMinor, &a.CurrentPriceMinor, &a.MinIncrementMinor, &a.BidCount,
		&a.StartsAt, &a.EndsAt, &a.SettledAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status, err = auction.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("failed to parse auction status: %w", err)
	}
	return &a, nil
}

// CreateAuction stores a new auction
func (q *queries) CreateAuction(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (
			id, seller_id, title, description, status,
			start_price_minor, current_price_minor, min_increment_minor, bid_count,
			starts_at, ends_at, settled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := q.db.Exec(ctx, query,
		a.ID, a.SellerID, a.Title, a.Description, a.Status.String(),
		a.StartPriceMinor, a.CurrentPriceMinor, a.MinIncrementMinor, a.BidCount,
		a.StartsAt, a.EndsAt, a.SettledAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return apperrors.ErrAccountNotFound
		}
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

// AuctionByID retrieves an auction by ID
func (q *queries) AuctionByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

// LiveAuctions lists auctions still open for bidding, soonest deadline first.
func (q *queries) LiveAuctions(ctx context.Context, now time.Time, limit, offset int) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = 'live' AND ends_at > $1
		ORDER BY ends_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := q.db.Query(ctx, query, now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list live auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// ExpiredUnsettled returns ids of auctions due for settlement: past their
// deadline, never settled, oldest expirations first.
func (q *queries) ExpiredUnsettled(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM auctions
		WHERE settled_at IS NULL AND ends_at <= $1 AND status IN ('live', 'ended')
		ORDER BY ends_at ASC
		LIMIT $2`

	rows, err := q.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired auctions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AdvancePrice moves the auction price to toPriceMinor and bumps the bid
// count, but only while the auction is live, unexpired, and still at the
// price the caller read. This compare-and-set is the primary concurrency
// barrier for bid placement.
func (q *queries) AdvancePrice(ctx context.Context, auctionID uuid.UUID, fromPriceMinor, toPriceMinor int64, now time.Time) (bool, error) {
	query := `
		UPDATE auctions
		SET current_price_minor = $3, bid_count = bid_count + 1, updated_at = $4
		WHERE id = $1 AND status = 'live' AND ends_at > $4 AND current_price_minor = $2`

	tag, err := q.db.Exec(ctx, query, auctionID, fromPriceMinor, toPriceMinor, now)
	if err != nil {
		return false, fmt.Errorf("failed to advance price: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkEnded transitions a live auction past its deadline to ended.
func (q *queries) MarkEnded(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'ended', updated_at = $2
		WHERE id = $1 AND status = 'live' AND ends_at <= $2`

	tag, err := q.db.Exec(ctx, query, auctionID, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark auction ended: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled transitions an ended auction to cancelled. Used when the
// winner cannot pay at settlement time.
func (q *queries) MarkCancelled(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status = 'ended'`

	tag, err := q.db.Exec(ctx, query, auctionID, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark auction cancelled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelLive withdraws a live auction. The settlement stamp is set in the
// same update so the sweep never revisits a cancelled auction.
func (q *queries) CancelLive(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'cancelled', settled_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'live' AND settled_at IS NULL`

	tag, err := q.db.Exec(ctx, query, auctionID, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel auction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimSettlement stamps settled_at on an ended auction that has never been
// settled. Exactly one concurrent caller can win this update; everyone else
// sees zero rows and backs off.
func (q *queries) ClaimSettlement(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE auctions
		SET settled_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'ended' AND settled_at IS NULL`

	tag, err := q.db.Exec(ctx, query, auctionID, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim settlement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

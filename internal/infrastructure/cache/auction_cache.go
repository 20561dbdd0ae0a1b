package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
)

// Snapshot is the cached read model for one auction: the row as last read
// plus its leading bid. Snapshots are advisory; the engine never reads them.
type Snapshot struct {
	Auction    *auction.Auction `json:"auction"`
	LeadingBid *auction.Bid     `json:"leading_bid,omitempty"`
}

// AuctionCache caches auction snapshots with a short TTL so catalog reads
// stay off the database between price changes.
type AuctionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAuctionCache creates an auction snapshot cache. A non-positive ttl
// falls back to DefaultSnapshotTTL.
func NewAuctionCache(client *redis.Client, ttl time.Duration) *AuctionCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &AuctionCache{
		client: client,
		ttl:    ttl,
	}
}

// GetSnapshot retrieves a snapshot from cache. A cache miss returns nil
// without error.
func (c *AuctionCache) GetSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	data, err := c.client.Get(ctx, c.snapshotKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.NewInternalError("failed to get snapshot from cache").WithCause(err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.NewInternalError("failed to unmarshal cached snapshot").WithCause(err)
	}

	return &snap, nil
}

// SetSnapshot stores a snapshot in cache.
func (c *AuctionCache) SetSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Auction == nil {
		return apperrors.NewInternalError("snapshot requires an auction")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal snapshot").WithCause(err)
	}

	if err := c.client.Set(ctx, c.snapshotKey(snap.Auction.ID), data, c.ttl).Err(); err != nil {
		return apperrors.NewInternalError("failed to set snapshot cache").WithCause(err)
	}

	return nil
}

// Invalidate removes an auction's snapshot after a write changes its state.
func (c *AuctionCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, c.snapshotKey(id)).Err(); err != nil {
		return apperrors.NewInternalError("failed to delete snapshot from cache").WithCause(err)
	}

	return nil
}

func (c *AuctionCache) snapshotKey(id uuid.UUID) string {
	return fmt.Sprintf("%s%s", SnapshotPrefix, id)
}

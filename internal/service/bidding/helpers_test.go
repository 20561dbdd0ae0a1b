package bidding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
)

// testNow is the fixed clock every engine test runs on.
var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(store Store) (*service, *captureMetrics) {
	metrics := newCaptureMetrics()
	svc := NewService(store, metrics, slog.New(slog.DiscardHandler)).(*service)
	svc.nowFunc = func() time.Time { return testNow }
	return svc, metrics
}

func liveAuction(sellerID uuid.UUID, priceMinor, incrementMinor int64, endsAt time.Time) auction.Auction {
	created := testNow.Add(-time.Hour)
	return auction.Auction{
		ID:                uuid.New(),
		SellerID:          sellerID,
		Title:             "Study in Blue, oil on canvas",
		Status:            auction.StatusLive,
		StartPriceMinor:   priceMinor,
		CurrentPriceMinor: priceMinor,
		MinIncrementMinor: incrementMinor,
		StartsAt:          created,
		EndsAt:            endsAt,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

// seedBid plants a committed bid and advances the auction row to match, as
// if the bid had gone through the engine.
func seedBid(store *fakeStore, auctionID, bidderID uuid.UUID, amountMinor int64, at time.Time) {
	store.bids[auctionID] = append(store.bids[auctionID], auction.Bid{
		ID:          uuid.New(),
		AuctionID:   auctionID,
		BidderID:    bidderID,
		AmountMinor: amountMinor,
		CreatedAt:   at,
	})
	a := store.auctions[auctionID]
	a.CurrentPriceMinor = amountMinor
	a.BidCount++
	store.auctions[auctionID] = a
}

func conservationTotal(store *fakeStore) int64 {
	var total int64
	for _, row := range store.accounts {
		total += row.available + row.reserved
	}
	return total
}

// captureMetrics records every engine metric call for assertions.
type captureMetrics struct {
	mu          sync.Mutex
	placed      int
	rejected    map[string]int
	settlements map[string]int
	sweeps      int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		rejected:    make(map[string]int),
		settlements: make(map[string]int),
	}
}

func (m *captureMetrics) RecordBidPlaced(ctx context.Context, amountMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed++
}

func (m *captureMetrics) RecordBidRejected(ctx context.Context, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[code]++
}

func (m *captureMetrics) RecordSettlement(ctx context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[outcome]++
}

func (m *captureMetrics) RecordSweep(ctx context.Context, attempted, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
}

func (m *captureMetrics) placedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placed
}

func (m *captureMetrics) rejectedCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[code]
}

func (m *captureMetrics) settlementCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settlements[outcome]
}

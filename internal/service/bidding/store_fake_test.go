package bidding

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
)

// fakeStore is an in-memory Store with the same conditional-update semantics
// as the SQL layer: every compare-and-set reports whether exactly one row
// matched, and a transaction that returns an error rolls back completely.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*balanceRow
	auctions map[uuid.UUID]auction.Auction
	bids     map[uuid.UUID][]auction.Bid

	// conflictsToInject makes InSerializableTx roll back and re-run the
	// closure, emulating serialization failures at commit time.
	conflictsToInject int

	// failAdvancePrice makes the next price compare-and-set report a miss.
	failAdvancePrice bool
}

type balanceRow struct {
	available int64
	reserved  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[uuid.UUID]*balanceRow),
		auctions: make(map[uuid.UUID]auction.Auction),
		bids:     make(map[uuid.UUID][]auction.Bid),
	}
}

func (f *fakeStore) addAccount(available, reserved int64) uuid.UUID {
	id := uuid.New()
	f.accounts[id] = &balanceRow{available: available, reserved: reserved}
	return id
}

func (f *fakeStore) addAuction(a auction.Auction) {
	f.auctions[a.ID] = a
}

func (f *fakeStore) balances(id uuid.UUID) balanceRow {
	return *f.accounts[id]
}

func (f *fakeStore) auctionRow(id uuid.UUID) auction.Auction {
	return f.auctions[id]
}

func (f *fakeStore) bidCount(auctionID uuid.UUID) int {
	return len(f.bids[auctionID])
}

type storeSnapshot struct {
	accounts map[uuid.UUID]balanceRow
	auctions map[uuid.UUID]auction.Auction
	bids     map[uuid.UUID][]auction.Bid
}

func (f *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		accounts: make(map[uuid.UUID]balanceRow, len(f.accounts)),
		auctions: make(map[uuid.UUID]auction.Auction, len(f.auctions)),
		bids:     make(map[uuid.UUID][]auction.Bid, len(f.bids)),
	}
	for id, b := range f.accounts {
		snap.accounts[id] = *b
	}
	for id, a := range f.auctions {
		snap.auctions[id] = a
	}
	for id, bs := range f.bids {
		snap.bids[id] = append([]auction.Bid(nil), bs...)
	}
	return snap
}

func (f *fakeStore) restore(snap storeSnapshot) {
	f.accounts = make(map[uuid.UUID]*balanceRow, len(snap.accounts))
	for id, b := range snap.accounts {
		row := b
		f.accounts[id] = &row
	}
	f.auctions = make(map[uuid.UUID]auction.Auction, len(snap.auctions))
	for id, a := range snap.auctions {
		f.auctions[id] = a
	}
	f.bids = make(map[uuid.UUID][]auction.Bid, len(snap.bids))
	for id, bs := range snap.bids {
		f.bids[id] = append([]auction.Bid(nil), bs...)
	}
}

func (f *fakeStore) InSerializableTx(ctx context.Context, fn func(TxStore) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		snap := f.snapshot()
		err := fn(&fakeTx{store: f})
		if err != nil {
			f.restore(snap)
			return err
		}
		if f.conflictsToInject > 0 {
			f.conflictsToInject--
			f.restore(snap)
			continue
		}
		return nil
	}
}

func (f *fakeStore) ExpiredUnsettled(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type due struct {
		id     uuid.UUID
		endsAt time.Time
	}
	var dues []due
	for id, a := range f.auctions {
		expired := !a.EndsAt.After(now)
		eligible := a.Status == auction.StatusLive || a.Status == auction.StatusEnded
		if a.SettledAt == nil && expired && eligible {
			dues = append(dues, due{id: id, endsAt: a.EndsAt})
		}
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].endsAt.Before(dues[j].endsAt) })

	if len(dues) > limit {
		dues = dues[:limit]
	}
	ids := make([]uuid.UUID, len(dues))
	for i, d := range dues {
		ids[i] = d.id
	}
	return ids, nil
}

// fakeTx mirrors the row-count semantics of the SQL queries: a conditional
// update on a missing row is a zero-row match, not an error.
type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) AuctionByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	a, ok := t.store.auctions[id]
	if !ok {
		return nil, apperrors.ErrAuctionNotFound
	}
	cp := a
	return &cp, nil
}

func (t *fakeTx) LeadingBid(ctx context.Context, auctionID uuid.UUID) (*auction.Bid, error) {
	var lead *auction.Bid
	for i := range t.store.bids[auctionID] {
		b := t.store.bids[auctionID][i]
		if lead == nil ||
			b.AmountMinor > lead.AmountMinor ||
			(b.AmountMinor == lead.AmountMinor && !b.CreatedAt.Before(lead.CreatedAt)) {
			cp := b
			lead = &cp
		}
	}
	return lead, nil
}

func (t *fakeTx) InsertBid(ctx context.Context, b *auction.Bid) error {
	t.store.bids[b.AuctionID] = append(t.store.bids[b.AuctionID], *b)
	return nil
}

func (t *fakeTx) AccountBalances(ctx context.Context, id uuid.UUID) (int64, int64, error) {
	row, ok := t.store.accounts[id]
	if !ok {
		return 0, 0, apperrors.ErrAccountNotFound
	}
	return row.available, row.reserved, nil
}

func (t *fakeTx) ReserveFunds(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	row, ok := t.store.accounts[accountID]
	if !ok || row.available < amountMinor {
		return false, nil
	}
	row.available -= amountMinor
	row.reserved += amountMinor
	return true, nil
}

func (t *fakeTx) ReleaseHold(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	row, ok := t.store.accounts[accountID]
	if !ok || row.reserved < amountMinor {
		return false, nil
	}
	row.reserved -= amountMinor
	row.available += amountMinor
	return true, nil
}

func (t *fakeTx) DebitReserved(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	row, ok := t.store.accounts[accountID]
	if !ok || row.reserved < amountMinor {
		return false, nil
	}
	row.reserved -= amountMinor
	return true, nil
}

func (t *fakeTx) DebitSplit(ctx context.Context, accountID uuid.UUID, reservedMinor, availableMinor int64, now time.Time) (bool, error) {
	row, ok := t.store.accounts[accountID]
	if !ok || row.reserved < reservedMinor || row.available < availableMinor {
		return false, nil
	}
	row.reserved -= reservedMinor
	row.available -= availableMinor
	return true, nil
}

func (t *fakeTx) CreditAvailable(ctx context.Context, accountID uuid.UUID, amountMinor int64, now time.Time) (bool, error) {
	row, ok := t.store.accounts[accountID]
	if !ok {
		return false, nil
	}
	row.available += amountMinor
	return true, nil
}

func (t *fakeTx) AdvancePrice(ctx context.Context, auctionID uuid.UUID, fromPriceMinor, toPriceMinor int64, now time.Time) (bool, error) {
	if t.store.failAdvancePrice {
		t.store.failAdvancePrice = false
		return false, nil
	}
	a, ok := t.store.auctions[auctionID]
	if !ok || a.Status != auction.StatusLive || !a.EndsAt.After(now) || a.CurrentPriceMinor != fromPriceMinor {
		return false, nil
	}
	a.CurrentPriceMinor = toPriceMinor
	a.BidCount++
	a.UpdatedAt = now
	t.store.auctions[auctionID] = a
	return true, nil
}

func (t *fakeTx) MarkEnded(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	a, ok := t.store.auctions[auctionID]
	if !ok || a.Status != auction.StatusLive || a.EndsAt.After(now) {
		return false, nil
	}
	a.Status = auction.StatusEnded
	a.UpdatedAt = now
	t.store.auctions[auctionID] = a
	return true, nil
}

func (t *fakeTx) MarkCancelled(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	a, ok := t.store.auctions[auctionID]
	if !ok || a.Status != auction.StatusEnded {
		return false, nil
	}
	a.Status = auction.StatusCancelled
	a.UpdatedAt = now
	t.store.auctions[auctionID] = a
	return true, nil
}

func (t *fakeTx) CancelLive(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	a, ok := t.store.auctions[auctionID]
	if !ok || a.Status != auction.StatusLive || a.SettledAt != nil {
		return false, nil
	}
	settledAt := now
	a.Status = auction.StatusCancelled
	a.SettledAt = &settledAt
	a.UpdatedAt = now
	t.store.auctions[auctionID] = a
	return true, nil
}

func (t *fakeTx) ClaimSettlement(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	a, ok := t.store.auctions[auctionID]
	if !ok || a.Status != auction.StatusEnded || a.SettledAt != nil {
		return false, nil
	}
	settledAt := now
	a.SettledAt = &settledAt
	a.UpdatedAt = now
	t.store.auctions[auctionID] = a
	return true, nil
}

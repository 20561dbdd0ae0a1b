//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-auction-backend/internal/api/rest"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/values"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/config"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/repository"
	"github.com/atelierhq/atelier-auction-backend/internal/metrics"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
	"github.com/atelierhq/atelier-auction-backend/internal/service/marketplace"
	"github.com/atelierhq/atelier-auction-backend/internal/testutil"
)

// account mirrors the account response body.
type account struct {
	ID        uuid.UUID    `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Available values.Money `json:"available"`
	Reserved  values.Money `json:"reserved"`
}

type auctionDetail struct {
	Auction struct {
		ID           uuid.UUID    `json:"id"`
		SellerID     uuid.UUID    `json:"seller_id"`
		Status       string       `json:"status"`
		CurrentPrice values.Money `json:"current_price"`
		BidCount     int          `json:"bid_count"`
	} `json:"auction"`
	LeadingBid *struct {
		ID       uuid.UUID    `json:"id"`
		BidderID uuid.UUID    `json:"bidder_id"`
		Amount   values.Money `json:"amount"`
	} `json:"leading_bid"`
}

type bidResult struct {
	Bid struct {
		ID     uuid.UUID    `json:"id"`
		Amount values.Money `json:"amount"`
	} `json:"bid"`
	CurrentPrice   values.Money `json:"current_price"`
	BidCount       int          `json:"bid_count"`
	MinimumNextBid values.Money `json:"minimum_next_bid"`
}

type apiError struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// client drives the HTTP API the way an SDK would.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func setupServer(t *testing.T) *client {
	t.Helper()

	db := testutil.NewTestDB(t)
	store := repository.NewStore(db.Pool())
	logger := slog.New(slog.DiscardHandler)

	registry, err := metrics.NewRegistry("e2e")
	require.NoError(t, err)

	engine := bidding.NewService(store, registry, logger)
	market := marketplace.NewService(store, logger)

	auth, err := rest.NewAuthenticator(&config.SecurityConfig{
		JWTSecret:   "0123456789abcdef0123456789abcdef",
		TokenExpiry: time.Hour,
		Issuer:      "atelier",
	})
	require.NoError(t, err)

	handler := rest.NewHandler(market, engine, auth, logger)
	router := rest.NewRouter(rest.RouterConfig{Handler: handler, Logger: logger})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &client{t: t, base: srv.URL, http: srv.Client()}
}

func (c *client) do(method, path, bearer string, body any) (*http.Response, []byte) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	resp.Body.Close()
	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return v
}

// register creates an account, funds it, and returns the account plus a token.
func (c *client) register(name string, depositMinor int64) (account, string) {
	c.t.Helper()

	email := fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8])
	resp, raw := c.do(http.MethodPost, "/api/v1/accounts", "", map[string]string{
		"email": email,
		"name":  name,
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	acc := decode[account](c.t, raw)

	resp, raw = c.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"account_id": acc.ID.String(),
		"email":      email,
	})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	token := decode[struct {
		Token string `json:"token"`
	}](c.t, raw).Token

	if depositMinor > 0 {
		amount := values.MustNewMoneyFromMinor(depositMinor)
		resp, raw = c.do(http.MethodPost, "/api/v1/accounts/"+acc.ID.String()+"/deposits", token, map[string]string{
			"amount": amount.String(),
		})
		require.Equal(c.t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	}

	return acc, token
}

func (c *client) getAccount(id uuid.UUID, bearer string) account {
	c.t.Helper()
	resp, raw := c.do(http.MethodGet, "/api/v1/accounts/"+id.String(), bearer, nil)
	require.Equal(c.t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	return decode[account](c.t, raw)
}

func (c *client) createAuction(bearer, title string, startMinor, incrementMinor int64, endsAt time.Time) uuid.UUID {
	c.t.Helper()
	resp, raw := c.do(http.MethodPost, "/api/v1/auctions", bearer, map[string]any{
		"title":         title,
		"start_price":   values.MustNewMoneyFromMinor(startMinor).String(),
		"min_increment": values.MustNewMoneyFromMinor(incrementMinor).String(),
		"ends_at":       endsAt.Format(time.RFC3339Nano),
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	return decode[struct {
		ID uuid.UUID `json:"id"`
	}](c.t, raw).ID
}

func (c *client) placeBid(bearer string, auctionID uuid.UUID, amountMinor int64) (*http.Response, []byte) {
	c.t.Helper()
	return c.do(http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/bids", bearer, map[string]string{
		"amount": values.MustNewMoneyFromMinor(amountMinor).String(),
	})
}

func (c *client) getAuction(id uuid.UUID) auctionDetail {
	c.t.Helper()
	resp, raw := c.do(http.MethodGet, "/api/v1/auctions/"+id.String(), "", nil)
	require.Equal(c.t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	return decode[auctionDetail](c.t, raw)
}

func TestAuctionFlow_EndToEnd(t *testing.T) {
	c := setupServer(t)

	seller, sellerToken := c.register("seller", 0)
	alice, aliceToken := c.register("alice", 100_000)
	bram, bramToken := c.register("bram", 100_000)

	endsAt := time.Now().UTC().Add(2 * time.Second)
	auctionID := c.createAuction(sellerToken, "Winter Harbor, etching", 50_000, 1_000, endsAt)

	t.Run("seller cannot bid on own lot", func(t *testing.T) {
		resp, raw := c.placeBid(sellerToken, auctionID, 51_000)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body: %s", raw)
		assert.Equal(t, "SELLER_SELF_BID", decode[apiError](t, raw).Error.Code)
	})

	t.Run("bid below minimum is rejected with guidance", func(t *testing.T) {
		resp, raw := c.placeBid(aliceToken, auctionID, 50_500)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body: %s", raw)
		e := decode[apiError](t, raw)
		assert.Equal(t, "BID_BELOW_MINIMUM", e.Error.Code)
		assert.EqualValues(t, 51_000, e.Error.Details["minimum_next_bid_minor"])
	})

	t.Run("first valid bid reserves the bidder's funds", func(t *testing.T) {
		resp, raw := c.placeBid(aliceToken, auctionID, 51_000)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
		result := decode[bidResult](t, raw)
		assert.Equal(t, "510.00", result.CurrentPrice.String())
		assert.Equal(t, 1, result.BidCount)
		assert.Equal(t, "520.00", result.MinimumNextBid.String())

		got := c.getAccount(alice.ID, aliceToken)
		assert.Equal(t, "490.00", got.Available.String())
		assert.Equal(t, "510.00", got.Reserved.String())
	})

	t.Run("outbidding refunds the previous leader", func(t *testing.T) {
		resp, raw := c.placeBid(bramToken, auctionID, 53_000)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

		aliceAcc := c.getAccount(alice.ID, aliceToken)
		assert.Equal(t, "1000.00", aliceAcc.Available.String(), "outbid funds return in full")
		assert.Equal(t, "0.00", aliceAcc.Reserved.String())

		bramAcc := c.getAccount(bram.ID, bramToken)
		assert.Equal(t, "470.00", bramAcc.Available.String())
		assert.Equal(t, "530.00", bramAcc.Reserved.String())

		detail := c.getAuction(auctionID)
		require.NotNil(t, detail.LeadingBid)
		assert.Equal(t, bram.ID, detail.LeadingBid.BidderID)
	})

	t.Run("expired auction rejects late bids", func(t *testing.T) {
		time.Sleep(time.Until(endsAt) + 250*time.Millisecond)

		resp, raw := c.placeBid(aliceToken, auctionID, 54_000)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body: %s", raw)
		assert.Equal(t, "AUCTION_CLOSED", decode[apiError](t, raw).Error.Code)
	})

	t.Run("sweep settles the lot and pays the seller", func(t *testing.T) {
		resp, raw := c.do(http.MethodPost, "/api/v1/settlements/sweep", sellerToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
		sweep := decode[struct {
			Attempted int `json:"attempted"`
			Failed    int `json:"failed"`
		}](t, raw)
		assert.Equal(t, 1, sweep.Attempted)
		assert.Equal(t, 0, sweep.Failed)

		sellerAcc := c.getAccount(seller.ID, sellerToken)
		assert.Equal(t, "530.00", sellerAcc.Available.String(), "seller receives the winning amount")

		bramAcc := c.getAccount(bram.ID, bramToken)
		assert.Equal(t, "470.00", bramAcc.Available.String())
		assert.Equal(t, "0.00", bramAcc.Reserved.String(), "hold is consumed by settlement")

		detail := c.getAuction(auctionID)
		assert.Equal(t, "ended", detail.Auction.Status)
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		resp, raw := c.do(http.MethodPost, "/api/v1/settlements/sweep", sellerToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
		sweep := decode[struct {
			Attempted int `json:"attempted"`
		}](t, raw)
		assert.Equal(t, 0, sweep.Attempted, "settled lots never settle twice")

		sellerAcc := c.getAccount(seller.ID, sellerToken)
		assert.Equal(t, "530.00", sellerAcc.Available.String(), "no double payout")
	})
}

func TestAuctionCancel_EndToEnd(t *testing.T) {
	c := setupServer(t)

	_, sellerToken := c.register("seller", 0)
	carol, carolToken := c.register("carol", 80_000)

	auctionID := c.createAuction(sellerToken, "Bronze maquette", 40_000, 500, time.Now().UTC().Add(time.Hour))

	resp, raw := c.placeBid(carolToken, auctionID, 41_000)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	t.Run("only the seller may cancel", func(t *testing.T) {
		resp, raw := c.do(http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/cancel", carolToken, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode, "body: %s", raw)
	})

	t.Run("cancel releases the leading hold", func(t *testing.T) {
		resp, raw := c.do(http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/cancel", sellerToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)

		carolAcc := c.getAccount(carol.ID, carolToken)
		assert.Equal(t, "800.00", carolAcc.Available.String())
		assert.Equal(t, "0.00", carolAcc.Reserved.String())

		detail := c.getAuction(auctionID)
		assert.Equal(t, "cancelled", detail.Auction.Status)
	})

	t.Run("cancelled auction rejects bids", func(t *testing.T) {
		resp, raw := c.placeBid(carolToken, auctionID, 42_000)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body: %s", raw)
		assert.Equal(t, "AUCTION_CLOSED", decode[apiError](t, raw).Error.Code)
	})

	t.Run("cancel is not repeatable", func(t *testing.T) {
		resp, raw := c.do(http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/cancel", sellerToken, nil)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body: %s", raw)
	})
}

func TestAuthBoundaries_EndToEnd(t *testing.T) {
	c := setupServer(t)

	alice, aliceToken := c.register("alice", 10_000)
	_, bramToken := c.register("bram", 0)

	t.Run("bidding requires a token", func(t *testing.T) {
		resp, _ := c.do(http.MethodPost, "/api/v1/auctions/"+uuid.NewString()+"/bids", "", map[string]string{"amount": "10.00"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accounts are private to their owner", func(t *testing.T) {
		resp, _ := c.do(http.MethodGet, "/api/v1/accounts/"+alice.ID.String(), bramToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, _ = c.do(http.MethodGet, "/api/v1/accounts/"+alice.ID.String(), aliceToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("token issue rejects mismatched credentials", func(t *testing.T) {
		resp, _ := c.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{
			"account_id": alice.ID.String(),
			"email":      "wrong@example.com",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("catalog is public", func(t *testing.T) {
		resp, _ := c.do(http.MethodGet, "/api/v1/auctions", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

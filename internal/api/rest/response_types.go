package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/account"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/auction"
	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/values"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
)

// AccountResponse is the wire form of an account. Balances render as
// decimal strings.
type AccountResponse struct {
	ID        uuid.UUID    `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Available values.Money `json:"available"`
	Reserved  values.Money `json:"reserved"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func newAccountResponse(a *account.Account) *AccountResponse {
	return &AccountResponse{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Available: values.MustNewMoneyFromMinor(a.AvailableMinor),
		Reserved:  values.MustNewMoneyFromMinor(a.ReservedMinor),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuctionResponse is the wire form of an auction.
type AuctionResponse struct {
	ID             uuid.UUID    `json:"id"`
	SellerID       uuid.UUID    `json:"seller_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Status         string       `json:"status"`
	StartPrice     values.Money `json:"start_price"`
	CurrentPrice   values.Money `json:"current_price"`
	MinIncrement   values.Money `json:"min_increment"`
	MinimumNextBid values.Money `json:"minimum_next_bid"`
	BidCount       int          `json:"bid_count"`
	StartsAt       time.Time    `json:"starts_at"`
	EndsAt         time.Time    `json:"ends_at"`
	SettledAt      *time.Time   `json:"settled_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

func newAuctionResponse(a *auction.Auction) *AuctionResponse {
	return &AuctionResponse{
		ID:             a.ID,
		SellerID:       a.SellerID,
		Title:          a.Title,
		Description:    a.Description,
		Status:         a.Status.String(),
		StartPrice:     values.MustNewMoneyFromMinor(a.StartPriceMinor),
		CurrentPrice:   values.MustNewMoneyFromMinor(a.CurrentPriceMinor),
		MinIncrement:   values.MustNewMoneyFromMinor(a.MinIncrementMinor),
		MinimumNextBid: values.MustNewMoneyFromMinor(a.CurrentPriceMinor + a.MinIncrementMinor),
		BidCount:       a.BidCount,
		StartsAt:       a.StartsAt,
		EndsAt:         a.EndsAt,
		SettledAt:      a.SettledAt,
		CreatedAt:      a.CreatedAt,
	}
}

// BidResponse is the wire form of a bid.
type BidResponse struct {
	ID        uuid.UUID    `json:"id"`
	AuctionID uuid.UUID    `json:"auction_id"`
	BidderID  uuid.UUID    `json:"bidder_id"`
	Amount    values.Money `json:"amount"`
	CreatedAt time.Time    `json:"created_at"`
}

func newBidResponse(b *auction.Bid) *BidResponse {
	return &BidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    values.MustNewMoneyFromMinor(b.AmountMinor),
		CreatedAt: b.CreatedAt,
	}
}

// AuctionDetailResponse is an auction together with its leading bid.
type AuctionDetailResponse struct {
	Auction    *AuctionResponse `json:"auction"`
	LeadingBid *BidResponse     `json:"leading_bid,omitempty"`
}

func newAuctionDetailResponse(a *auction.Auction, lead *auction.Bid) *AuctionDetailResponse {
	resp := &AuctionDetailResponse{Auction: newAuctionResponse(a)}
	if lead != nil {
		resp.LeadingBid = newBidResponse(lead)
	}
	return resp
}

// AuctionListResponse pages the live-auction catalog.
type AuctionListResponse struct {
	Auctions []*AuctionResponse `json:"auctions"`
	Count    int                `json:"count"`
	Offset   int                `json:"offset"`
}

// BidResultResponse reports an accepted bid and the auction state it
// produced.
type BidResultResponse struct {
	Bid            *BidResponse `json:"bid"`
	CurrentPrice   values.Money `json:"current_price"`
	BidCount       int          `json:"bid_count"`
	MinimumNextBid values.Money `json:"minimum_next_bid"`
}

func newBidResultResponse(result *bidding.BidResult) *BidResultResponse {
	return &BidResultResponse{
		Bid:            newBidResponse(result.Bid),
		CurrentPrice:   values.MustNewMoneyFromMinor(result.CurrentPriceMinor),
		BidCount:       result.BidCount,
		MinimumNextBid: values.MustNewMoneyFromMinor(result.MinimumNextBidMinor),
	}
}

// SweepResponse reports one settlement sweep pass.
type SweepResponse struct {
	Attempted int `json:"attempted"`
	Failed    int `json:"failed"`
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message, Details: details}})
}

func writeAppError(w http.ResponseWriter, err *apperrors.AppError) {
	writeErrorBody(w, err.StatusCode, err.Code, err.Message, err.Details)
}

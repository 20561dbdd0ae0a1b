package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
	"github.com/atelierhq/atelier-auction-backend/internal/domain/values"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/cache"
	"github.com/atelierhq/atelier-auction-backend/internal/metrics"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
	"github.com/atelierhq/atelier-auction-backend/internal/service/marketplace"
)

const maxBodyBytes = 1 << 20

// Handler exposes the auction marketplace over REST. Successful responses
// are plain DTOs; errors use a flat {"error": {...}} envelope.
type Handler struct {
	marketplace marketplace.Service
	bidding     bidding.Service
	auth        *Authenticator
	snapshots   *cache.AuctionCache
	registry    *metrics.Registry
	logger      *slog.Logger
	validate    *validator.Validate
}

// HandlerOption configures optional handler collaborators.
type HandlerOption func(*Handler)

// WithSnapshotCache enables read-through auction snapshots on catalog reads.
func WithSnapshotCache(c *cache.AuctionCache) HandlerOption {
	return func(h *Handler) { h.snapshots = c }
}

// WithMetrics records cache hit rates on catalog reads.
func WithMetrics(r *metrics.Registry) HandlerOption {
	return func(h *Handler) { h.registry = r }
}

func NewHandler(mkt marketplace.Service, eng bidding.Service, auth *Authenticator, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		marketplace: mkt,
		bidding:     eng,
		auth:        auth,
		logger:      logger,
		validate:    newValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the API on mux. Registration, token issuance, and
// the auction catalog are public; everything that moves money requires a
// bearer token.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	authed := h.auth.Middleware()

	mux.Handle("POST /api/v1/accounts", h.wrap(http.StatusCreated, h.handleCreateAccount))
	mux.Handle("POST /api/v1/auth/token", h.wrap(http.StatusOK, h.handleIssueToken))
	mux.Handle("GET /api/v1/accounts/{id}", authed(h.wrap(http.StatusOK, h.handleGetAccount)))
	mux.Handle("POST /api/v1/accounts/{id}/deposits", authed(h.wrap(http.StatusOK, h.handleDeposit)))

	mux.Handle("POST /api/v1/auctions", authed(h.wrap(http.StatusCreated, h.handleCreateAuction)))
	mux.Handle("GET /api/v1/auctions", h.wrap(http.StatusOK, h.handleListAuctions))
	mux.Handle("GET /api/v1/auctions/{id}", h.wrap(http.StatusOK, h.handleGetAuction))
	mux.Handle("POST /api/v1/auctions/{id}/bids", authed(h.wrap(http.StatusCreated, h.handlePlaceBid)))
	mux.Handle("POST /api/v1/auctions/{id}/cancel", authed(h.wrap(http.StatusOK, h.handleCancelAuction)))

	mux.Handle("POST /api/v1/settlements/sweep", authed(h.wrap(http.StatusOK, h.handleSweep)))
}

// wrap adapts a typed handler to http.Handler, writing status on success
// and mapping errors to the error envelope.
func (h *Handler) wrap(status int, fn func(ctx context.Context, r *http.Request) (interface{}, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := fn(r.Context(), r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, status, result)
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		if appErr.StatusCode == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		}
		writeAppError(w, appErr)
		return
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrorBody(w, http.StatusRequestTimeout, "REQUEST_TIMEOUT", "request cancelled or timed out", nil)
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeErrorBody(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred", nil)
	}
}

// decode reads, parses, and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("INVALID_JSON", "request body is not valid JSON").WithCause(err)
	}

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return apperrors.NewValidationError("INVALID_INPUT", err.Error())
		}
		details := make(map[string]interface{}, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = validationMessage(fe)
		}
		return apperrors.NewValidationError("VALIDATION_ERROR", "request validation failed").WithDetails(details)
	}

	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("INVALID_INPUT", fmt.Sprintf("%s must be a valid uuid", name))
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// callerAccount returns the authenticated account id or an unauthorized
// error. Routes behind the auth middleware always have one; this guards
// direct handler use.
func callerAccount(ctx context.Context) (uuid.UUID, error) {
	id, ok := AccountIDFromContext(ctx)
	if !ok {
		return uuid.Nil, apperrors.NewUnauthorizedError("authentication required")
	}
	return id, nil
}

// requireSelf restricts account resources to their owner.
func requireSelf(ctx context.Context, accountID uuid.UUID) error {
	caller, err := callerAccount(ctx)
	if err != nil {
		return err
	}
	if caller != accountID {
		return apperrors.NewForbiddenError("access restricted to the account owner")
	}
	return nil
}

func parseAmount(raw string) (values.Money, error) {
	amount, err := values.ParseMoney(raw)
	if err != nil {
		return values.Zero(), apperrors.NewValidationError("INVALID_AMOUNT", err.Error())
	}
	return amount, nil
}

func (h *Handler) handleCreateAccount(ctx context.Context, r *http.Request) (interface{}, error) {
	var req CreateAccountRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}

	acct, err := h.marketplace.CreateAccount(ctx, &marketplace.CreateAccountRequest{
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		return nil, err
	}

	return newAccountResponse(acct), nil
}

// handleIssueToken exchanges a registered account identity for a bearer
// token. There is no password scheme; presenting the account id together
// with its registered email stands in for credentials.
func (h *Handler) handleIssueToken(ctx context.Context, r *http.Request) (interface{}, error) {
	var req TokenRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}

	acct, err := h.marketplace.GetAccount(ctx, req.AccountID)
	if err != nil {
		// Unknown accounts look the same as mismatched emails.
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewUnauthorizedError("account credentials do not match")
		}
		return nil, err
	}
	if !strings.EqualFold(acct.Email, req.Email) {
		return nil, apperrors.NewUnauthorizedError("account credentials do not match")
	}

	token, expiresAt, err := h.auth.GenerateToken(acct.ID, acct.Email)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to issue token").WithCause(err)
	}

	return &TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

func (h *Handler) handleGetAccount(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	if err := requireSelf(ctx, id); err != nil {
		return nil, err
	}

	acct, err := h.marketplace.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	return newAccountResponse(acct), nil
}

func (h *Handler) handleDeposit(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	if err := requireSelf(ctx, id); err != nil {
		return nil, err
	}

	var req DepositRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	acct, err := h.marketplace.Deposit(ctx, &marketplace.DepositRequest{
		AccountID:   id,
		AmountMinor: amount.Minor(),
	})
	if err != nil {
		return nil, err
	}

	return newAccountResponse(acct), nil
}

package rest

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atelierhq/atelier-auction-backend/internal/domain/values"
)

// Monetary amounts cross the wire as decimal strings ("12.50") and are
// converted to integer minor units at this boundary. The services and the
// engine below never see a float.

// CreateAccountRequest registers a new account.
type CreateAccountRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=2,max=100"`
}

// TokenRequest exchanges a registered account identity for a bearer token.
type TokenRequest struct {
	AccountID uuid.UUID `json:"account_id" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
}

// DepositRequest adds external funds to an account.
type DepositRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

// CreateAuctionRequest lists a new auction. The seller is the authenticated
// caller.
type CreateAuctionRequest struct {
	Title        string    `json:"title" validate:"required,min=3,max=120"`
	Description  string    `json:"description" validate:"omitempty,max=2000"`
	StartPrice   string    `json:"start_price" validate:"required,money"`
	MinIncrement string    `json:"min_increment" validate:"required,money"`
	EndsAt       time.Time `json:"ends_at" validate:"required"`
}

// PlaceBidRequest places a bid as the authenticated caller.
type PlaceBidRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

// newValidator builds the request validator with the API's custom rules.
// Field names in validation errors follow the json tags.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// money accepts decimal strings with at most two fraction digits
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		_, err := values.ParseMoney(fl.Field().String())
		return err == nil
	})

	return v
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "money":
		return "must be a decimal amount in whole minor units, e.g. \"12.50\""
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var (
	// Name validation - allows letters, spaces, hyphens, apostrophes
	nameRegex = regexp.MustCompile(`^[\p{L}\s\-'\.]{2,100}$`)
)

// Auction title length bounds, applied after trimming.
const (
	TitleMinLength = 3
	TitleMaxLength = 120

	DescriptionMaxLength = 2000

	// Amounts above this would risk overflow when balances are summed.
	maxAmountMinor = int64(1e15)
)

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	// Normalize email
	email = strings.TrimSpace(strings.ToLower(email))

	// Parse email address
	_, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}

	// Additional length check
	if len(email) > 255 {
		return fmt.Errorf("email too long (max 255 characters)")
	}

	return nil
}

// ValidateName validates person name
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	name = strings.TrimSpace(name)

	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name format")
	}

	return nil
}

// ValidateAuctionTitle validates an auction title after trimming whitespace.
func ValidateAuctionTitle(title string) error {
	trimmed := strings.TrimSpace(title)

	if len(trimmed) < TitleMinLength {
		return fmt.Errorf("title too short (min %d characters)", TitleMinLength)
	}

	if len(trimmed) > TitleMaxLength {
		return fmt.Errorf("title too long (max %d characters)", TitleMaxLength)
	}

	return nil
}

// ValidateDescription validates an optional auction description.
func ValidateDescription(description string) error {
	if len(description) > DescriptionMaxLength {
		return fmt.Errorf("description too long (max %d characters)", DescriptionMaxLength)
	}

	return nil
}

// ValidateAmountMinor validates a monetary amount in integer minor units.
func ValidateAmountMinor(amountMinor int64, fieldName string) error {
	if amountMinor < 0 {
		return fmt.Errorf("%s cannot be negative", fieldName)
	}

	if amountMinor > maxAmountMinor {
		return fmt.Errorf("%s too large", fieldName)
	}

	return nil
}

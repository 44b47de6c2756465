package giving

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationKind classifies a validation failure.
type ValidationKind string

const (
	InvalidAmount    ValidationKind = "InvalidAmount"
	FundArchived     ValidationKind = "FundArchived"
	OutsideWindow    ValidationKind = "OutsideWindow"
	BelowMinimum     ValidationKind = "BelowMinimum"
	AboveMaximum     ValidationKind = "AboveMaximum"
	CurrencyMismatch ValidationKind = "CurrencyMismatch"
	InvalidSchedule  ValidationKind = "InvalidSchedule"
)

// ValidationError reports why an amount or pledge was refused.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches another *ValidationError with the same Kind, so callers can write
// errors.Is(err, &ValidationError{Kind: FundArchived}).
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func invalid(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the ValidationKind carried by err, or "" if err is not a validation error.
func KindOf(err error) ValidationKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// ValidateAmount checks a proposed amount against the fund's constraints at time at.
// Checks run in a fixed order and the first failure is returned:
// amount, archived, window, minimum, maximum.
func ValidateAmount(fund *Fund, amountCents int64, at time.Time) error {
	if amountCents <= 0 {
		return invalid(InvalidAmount, "amount must be positive, got %d", amountCents)
	}
	if fund.ArchivedAt != nil {
		return invalid(FundArchived, "fund %s is archived", fund.ID)
	}
	if fund.StartDate != nil && at.Before(*fund.StartDate) {
		return invalid(OutsideWindow, "fund %s opens at %s", fund.ID, fund.StartDate.Format(time.RFC3339))
	}
	if fund.EndDate != nil && at.After(*fund.EndDate) {
		return invalid(OutsideWindow, "fund %s closed at %s", fund.ID, fund.EndDate.Format(time.RFC3339))
	}
	if fund.MinAmountCents != nil && amountCents < *fund.MinAmountCents {
		return invalid(BelowMinimum, "amount %d is below the minimum of %d", amountCents, *fund.MinAmountCents)
	}
	if fund.MaxAmountCents != nil && amountCents > *fund.MaxAmountCents {
		return invalid(AboveMaximum, "amount %d is above the maximum of %d", amountCents, *fund.MaxAmountCents)
	}
	return nil
}

// ValidateCurrency checks that currency matches the fund's currency (case-insensitive).
func ValidateCurrency(fund *Fund, currency string) error {
	if !strings.EqualFold(strings.TrimSpace(currency), fund.Currency) {
		return invalid(CurrencyMismatch, "fund %s accepts %s, got %q", fund.ID, fund.Currency, currency)
	}
	return nil
}

// ValidatePledge validates a new pledge against its fund and returns the first charge date.
// The amount is validated at the pledge start date.
func ValidatePledge(fund *Fund, amountCents int64, currency string, freq Frequency, start time.Time, end *time.Time) (time.Time, error) {
	if err := ValidateAmount(fund, amountCents, start); err != nil {
		return time.Time{}, err
	}
	if err := ValidateCurrency(fund, currency); err != nil {
		return time.Time{}, err
	}
	if end != nil && !end.After(start) {
		return time.Time{}, invalid(InvalidSchedule, "end date must be after start date")
	}

	first, err := NextChargeDate(start, freq)
	if err != nil {
		return time.Time{}, err
	}
	if end != nil && first.After(*end) {
		return time.Time{}, invalid(InvalidSchedule, "end date %s is before the first charge on %s",
			end.Format("2006-01-02"), first.Format("2006-01-02"))
	}
	return first, nil
}

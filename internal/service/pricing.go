package service

import (
	"fmt"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	"github.com/shopspring/decimal"
)

// Nights counts the nights between check-in and check-out. Zero or negative stays are a validation error.
func Nights(checkIn, checkOut time.Time) (int, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return 0, fmt.Errorf("check-in and check-out are required: %w", domain.ErrValidation)
	}
	nights := models.DaysBetween(checkIn, checkOut)
	if nights <= 0 {
		return 0, fmt.Errorf("check-out %s must be after check-in %s: %w",
			checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout), domain.ErrValidation)
	}
	return nights, nil
}

// ComputeTotal returns nightlyRate * nights rounded half-up to cents.
func ComputeTotal(nightlyRate decimal.Decimal, checkIn, checkOut time.Time) (decimal.Decimal, error) {
	if !nightlyRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("nightly rate %s must be positive: %w", nightlyRate, domain.ErrValidation)
	}
	nights, err := Nights(checkIn, checkOut)
	if err != nil {
		return decimal.Zero, err
	}
	// Round is half away from zero, which is half-up for positive amounts
	return nightlyRate.Mul(decimal.NewFromInt(int64(nights))).Round(2), nil
}

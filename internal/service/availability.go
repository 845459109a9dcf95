package service

import (
	"context"
	"fmt"
	"time"

	"frontdesk/internal/models"

	"github.com/rs/zerolog"
)

// BookingReader is the slice of the storage collaborator the availability check needs.
type BookingReader interface {
	QueryBookings(ctx context.Context, roomID int64, statuses []models.BookingStatus) ([]*models.Booking, error)
}

// Overlaps reports whether the half-open day ranges [aIn, aOut) and [bIn, bOut) share a night.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	aIn, aOut = models.NormalizeDate(aIn), models.NormalizeDate(aOut)
	bIn, bOut = models.NormalizeDate(bIn), models.NormalizeDate(bOut)
	return aIn.Before(bOut) && bIn.Before(aOut)
}

// AvailabilityChecker answers whether a room is free for a stay. It fails closed.
type AvailabilityChecker struct {
	repo   BookingReader
	logger *zerolog.Logger
}

func NewAvailabilityChecker(repo BookingReader, logger *zerolog.Logger) *AvailabilityChecker {
	return &AvailabilityChecker{repo: repo, logger: logger}
}

// IsAvailable reports false together with the error when the room's bookings cannot be read.
func (c *AvailabilityChecker) IsAvailable(
	ctx context.Context,
	roomID int64,
	checkIn, checkOut time.Time,
	excludeBookingID int64,
) (bool, error) {
	bookings, err := c.repo.QueryBookings(ctx, roomID, models.BlockingStatuses)
	if err != nil {
		c.logger.Warn().Err(err).Int64("room_id", roomID).Msg("availability check failed, reporting room unavailable")
		return false, fmt.Errorf("availability of room %d: %w", roomID, err)
	}

	for _, b := range bookings {
		if b.ID == excludeBookingID && excludeBookingID != 0 {
			continue
		}
		// collaborators are not required to honor the status filter
		if !b.Status.Blocks() {
			continue
		}
		if Overlaps(checkIn, checkOut, b.CheckIn, b.CheckOut) {
			return false, nil
		}
	}
	return true, nil
}

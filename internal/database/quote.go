package database

import (
	"context"
	"fmt"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	"github.com/shopspring/decimal"
)

// QuoteStay answers availability and the stay total in one query. SQLite does the overlap
// test and the night count; the rate is multiplied as a decimal, never as REAL.
func (db *DB) QuoteStay(
	ctx context.Context,
	roomID int64,
	checkIn, checkOut time.Time,
	excludeBookingID int64,
) (bool, decimal.Decimal, error) {
	in := checkIn.Format(models.DateLayout)
	out := checkOut.Format(models.DateLayout)

	query := `SELECT
                NOT EXISTS (
                    SELECT 1 FROM bookings b
                    WHERE b.room_id = r.id AND b.id != ?
                      AND b.status IN (` + placeholders(len(models.BlockingStatuses)) + `)
                      AND b.check_in < ? AND ? < b.check_out
                ) AS available,
                CAST(julianday(?) - julianday(?) AS INTEGER) AS nights,
                r.nightly_rate
              FROM rooms r WHERE r.id = ?`

	args := []any{excludeBookingID}
	for _, s := range models.BlockingStatuses {
		args = append(args, s)
	}
	args = append(args, out, in, out, in, roomID)

	var (
		available bool
		nights    int
		rawRate   string
	)
	if err := db.QueryRowContext(ctx, query, args...).Scan(&available, &nights, &rawRate); err != nil {
		return false, decimal.Zero, storageErr(fmt.Sprintf("failed to quote room %d", roomID), err)
	}
	if nights <= 0 {
		return false, decimal.Zero, fmt.Errorf("stay %s..%s has %d nights: %w", in, out, nights, domain.ErrValidation)
	}

	rate, err := decimal.NewFromString(rawRate)
	if err != nil {
		return false, decimal.Zero, fmt.Errorf("room %d nightly rate %q: %w", roomID, rawRate, domain.ErrStorageUnavailable)
	}
	return available, rate.Mul(decimal.NewFromInt(int64(nights))).Round(2), nil
}

// FindOverlappingBookings reports pairs of blocking bookings on the same room that share a night.
func (db *DB) FindOverlappingBookings(ctx context.Context) ([]models.OverlapPair, error) {
	ph := placeholders(len(models.BlockingStatuses))
	query := `SELECT a.room_id, a.id, b.id
              FROM bookings a
              JOIN bookings b ON b.room_id = a.room_id AND a.id < b.id
              WHERE a.status IN (` + ph + `) AND b.status IN (` + ph + `)
                AND a.check_in < b.check_out AND b.check_in < a.check_out
              ORDER BY a.room_id, a.id, b.id`

	args := make([]any, 0, 2*len(models.BlockingStatuses))
	for i := 0; i < 2; i++ {
		for _, s := range models.BlockingStatuses {
			args = append(args, s)
		}
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to find overlapping bookings", err)
	}
	defer rows.Close()

	var pairs []models.OverlapPair
	for rows.Next() {
		var p models.OverlapPair
		if err := rows.Scan(&p.RoomID, &p.First, &p.Second); err != nil {
			return nil, storageErr("failed to scan overlap", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to find overlapping bookings", err)
	}
	return pairs, nil
}

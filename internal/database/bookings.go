package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	"github.com/shopspring/decimal"
)

const bookingColumns = `id, room_id, guest_id, check_in, check_out, status, payment_status,
                 payment_method, total_amount, notes, created_at, updated_at, version`

// QueryBookings returns the room's bookings whose status is in statuses (all bookings when empty).
func (db *DB) QueryBookings(ctx context.Context, roomID int64, statuses []models.BookingStatus) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE room_id = ?`
	args := []any{roomID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY check_in ASC`
	return db.queryBookings(ctx, db, query, args...)
}

// InsertBooking stores the booking without any availability check.
func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return insertBooking(ctx, db, booking)
}

func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check availability inside transaction
	overlaps, err := countOverlaps(ctx, tx, booking.RoomID, booking.CheckIn, booking.CheckOut, 0)
	if err != nil {
		return storageErr("failed to check availability in tx", err)
	}
	if overlaps > 0 {
		return fmt.Errorf("room %d %s..%s: %w", booking.RoomID,
			booking.CheckIn.Format(models.DateLayout), booking.CheckOut.Format(models.DateLayout), domain.ErrConflict)
	}

	// 2. Create booking
	if err := insertBooking(ctx, tx, booking); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit booking", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.RoomID != 0 {
		where = append(where, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.GuestID != 0 {
		where = append(where, "guest_id = ?")
		args = append(args, filter.GuestID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}
	if !filter.To.IsZero() {
		where = append(where, "check_in < ?")
		args = append(args, filter.To.Format(models.DateLayout))
	}
	if !filter.From.IsZero() {
		where = append(where, "check_out > ?")
		args = append(args, filter.From.Format(models.DateLayout))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY check_in ASC, id ASC"
	return db.queryBookings(ctx, db, query, args...)
}

// UpdateBookingStatus moves the booking from one status to another. The update only applies
// while the stored status still equals from.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus) (*models.Booking, error) {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return nil, storageErr("failed to update booking status", err)
	}
	if err := db.checkBookingUpdated(ctx, result, id); err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

func (db *DB) UpdateBookingPaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) (*models.Booking, error) {
	if err := updateBookingPayment(ctx, db, id, nil, status); err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

func (db *DB) UpdateBookingTotal(ctx context.Context, id, version int64, total decimal.Decimal) (*models.Booking, error) {
	query := `UPDATE bookings SET total_amount = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, total.StringFixed(2), time.Now().UTC(), id, version)
	if err != nil {
		return nil, storageErr("failed to update booking total", err)
	}
	if err := db.checkBookingUpdated(ctx, result, id); err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

// RescheduleBookingWithLock moves a booking to new dates, ignoring the booking itself in the overlap check.
func (db *DB) RescheduleBookingWithLock(
	ctx context.Context,
	id, version int64,
	checkIn, checkOut time.Time,
	total decimal.Decimal,
) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := getBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrConcurrentModification)
	}

	overlaps, err := countOverlaps(ctx, tx, current.RoomID, checkIn, checkOut, id)
	if err != nil {
		return nil, storageErr("failed to check availability in tx", err)
	}
	if overlaps > 0 {
		return nil, fmt.Errorf("room %d %s..%s: %w", current.RoomID,
			checkIn.Format(models.DateLayout), checkOut.Format(models.DateLayout), domain.ErrConflict)
	}

	query := `UPDATE bookings SET check_in = ?, check_out = ?, total_amount = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	if _, err := tx.ExecContext(ctx, query,
		checkIn.Format(models.DateLayout), checkOut.Format(models.DateLayout), total.StringFixed(2),
		time.Now().UTC(), id, version,
	); err != nil {
		return nil, storageErr("failed to reschedule booking", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("failed to commit reschedule", err)
	}
	return db.GetBooking(ctx, id)
}

// checkBookingUpdated turns a zero-row update into ErrNotFound or ErrConcurrentModification.
func (db *DB) checkBookingUpdated(ctx context.Context, result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to read affected rows", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := db.GetBooking(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("booking %d: %w", id, domain.ErrConcurrentModification)
}

func insertBooking(ctx context.Context, q querier, booking *models.Booking) error {
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentUnpaid
	}
	booking.CheckIn = models.NormalizeDate(booking.CheckIn)
	booking.CheckOut = models.NormalizeDate(booking.CheckOut)

	query := `INSERT INTO bookings (
                room_id, guest_id, check_in, check_out, status, payment_status,
                payment_method, total_amount, notes, created_at, updated_at, version
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		booking.RoomID,
		booking.GuestID,
		booking.CheckIn.Format(models.DateLayout),
		booking.CheckOut.Format(models.DateLayout),
		booking.Status,
		booking.PaymentStatus,
		booking.PaymentMethod,
		booking.TotalAmount.StringFixed(2),
		booking.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		return storageErr("failed to insert booking", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("failed to get last insert id", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// updateBookingPayment sets the payment status, optionally only when the current one is in from.
// A zero-row update reports ErrInvalidTransition when the booking exists.
func updateBookingPayment(ctx context.Context, q querier, id int64, from []models.PaymentStatus, to models.PaymentStatus) error {
	query := `UPDATE bookings SET payment_status = ?, version = version + 1, updated_at = ? WHERE id = ?`
	args := []any{to, time.Now().UTC(), id}
	if len(from) > 0 {
		query += ` AND payment_status IN (` + placeholders(len(from)) + `)`
		for _, s := range from {
			args = append(args, s)
		}
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("failed to update booking payment status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to read affected rows", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := getBooking(ctx, q, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("booking %d payment status %s -> %s: %w", id, current.PaymentStatus, to, domain.ErrInvalidTransition)
}

func countOverlaps(ctx context.Context, q querier, roomID int64, checkIn, checkOut time.Time, excludeID int64) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE room_id = ? AND id != ?
                AND status IN (` + placeholders(len(models.BlockingStatuses)) + `)
                AND check_in < ? AND ? < check_out`
	args := []any{roomID, excludeID}
	for _, s := range models.BlockingStatuses {
		args = append(args, s)
	}
	args = append(args, checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout))

	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to get booking %d", id), err)
	}
	return b, nil
}

func (db *DB) queryBookings(ctx context.Context, q querier, query string, args ...any) ([]*models.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to query bookings", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, storageErr("failed to scan booking", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to query bookings", err)
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                 models.Booking
		checkIn, checkOut string
	)
	err := row.Scan(
		&b.ID, &b.RoomID, &b.GuestID, &checkIn, &checkOut, &b.Status, &b.PaymentStatus,
		&b.PaymentMethod, &b.TotalAmount, &b.Notes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	if b.CheckIn, err = time.Parse(models.DateLayout, checkIn); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to parse check-in %s", checkIn), err)
	}
	if b.CheckOut, err = time.Parse(models.DateLayout, checkOut); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to parse check-out %s", checkOut), err)
	}
	return &b, nil
}

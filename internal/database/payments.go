package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	"github.com/google/uuid"
)

const transactionColumns = `id, booking_id, reference, amount, method, status, payment_date, notes, created_at, updated_at`

func (db *DB) InsertPaymentTransaction(ctx context.Context, t *models.PaymentTransaction) error {
	if t.Status == "" {
		t.Status = models.TransactionProcessing
	}
	if t.Reference == "" {
		t.Reference = "INV-" + strings.ToUpper(uuid.NewString()[:8])
	}
	now := time.Now().UTC()
	if t.PaymentDate.IsZero() {
		t.PaymentDate = now
	}

	var bookingID sql.NullInt64
	if t.BookingID != nil {
		bookingID = sql.NullInt64{Int64: *t.BookingID, Valid: true}
	}

	query := `INSERT INTO payment_transactions (
                booking_id, reference, amount, method, status, payment_date, notes, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		bookingID, t.Reference, t.Amount.StringFixed(2), t.Method, t.Status, t.PaymentDate, t.Notes, now, now)
	if err != nil {
		return storageErr("failed to insert payment transaction", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("failed to get last insert id", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (db *DB) UpdatePaymentTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus) (*models.PaymentTransaction, error) {
	if err := updateTransactionStatus(ctx, db, id, "", status); err != nil {
		return nil, err
	}
	return db.GetPaymentTransaction(ctx, id)
}

func (db *DB) GetPaymentTransaction(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	return getTransaction(ctx, db, id)
}

// ListPaymentTransactions returns the booking's transactions newest first; every transaction when bookingID is 0.
func (db *DB) ListPaymentTransactions(ctx context.Context, bookingID int64) ([]*models.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions`
	var args []any
	if bookingID != 0 {
		query += ` WHERE booking_id = ?`
		args = append(args, bookingID)
	}
	query += ` ORDER BY id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to list payment transactions", err)
	}
	defer rows.Close()

	var txs []*models.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("failed to scan payment transaction", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to list payment transactions", err)
	}
	return txs, nil
}

// LatestTransactionForBooking returns the newest transaction of the booking in the given status.
func (db *DB) LatestTransactionForBooking(
	ctx context.Context,
	bookingID int64,
	status models.TransactionStatus,
) (*models.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
              WHERE booking_id = ? AND status = ? ORDER BY id DESC LIMIT 1`
	t, err := scanTransaction(db.QueryRowContext(ctx, query, bookingID, status))
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to find %s transaction for booking %d", status, bookingID), err)
	}
	return t, nil
}

// ApplyReconciliation updates the transaction and the booking payment status in one storage
// transaction. Each side is a compare-and-set on its expected source status, so a stale or
// repeated request fails with ErrInvalidTransition and changes nothing.
func (db *DB) ApplyReconciliation(ctx context.Context, r models.Reconciliation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if r.TransactionID != 0 {
		if err := updateTransactionStatus(ctx, tx, r.TransactionID, r.FromTxStatus, r.ToTxStatus); err != nil {
			return err
		}
	}

	if r.BookingID != 0 {
		if err := updateBookingPayment(ctx, tx, r.BookingID, r.FromPayment, r.ToPayment); err != nil {
			return err
		}
		if r.ConfirmPending {
			query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
			if _, err := tx.ExecContext(ctx, query,
				models.BookingConfirmed, time.Now().UTC(), r.BookingID, models.BookingPending); err != nil {
				return storageErr("failed to confirm booking", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit reconciliation", err)
	}
	return nil
}

// FindPaymentMismatches lists settled transactions whose booking payment status disagrees with them.
func (db *DB) FindPaymentMismatches(ctx context.Context) ([]models.PaymentMismatch, error) {
	query := `SELECT t.id, t.status, b.id, b.payment_status
              FROM payment_transactions t
              JOIN bookings b ON b.id = t.booking_id
              WHERE t.id = (SELECT MAX(t2.id) FROM payment_transactions t2
                            WHERE t2.booking_id = t.booking_id AND t2.status IN (?, ?))
                AND ((t.status = ? AND b.payment_status != ?) OR (t.status = ? AND b.payment_status != ?))
              ORDER BY t.id`
	rows, err := db.QueryContext(ctx, query,
		models.TransactionApproved, models.TransactionRefunded,
		models.TransactionApproved, models.PaymentPaid,
		models.TransactionRefunded, models.PaymentRefunded,
	)
	if err != nil {
		return nil, storageErr("failed to find payment mismatches", err)
	}
	defer rows.Close()

	var out []models.PaymentMismatch
	for rows.Next() {
		var m models.PaymentMismatch
		if err := rows.Scan(&m.TransactionID, &m.TransactionStatus, &m.BookingID, &m.PaymentStatus); err != nil {
			return nil, storageErr("failed to scan payment mismatch", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to find payment mismatches", err)
	}
	return out, nil
}

// updateTransactionStatus sets the status, only while the current one equals from when from is set.
func updateTransactionStatus(ctx context.Context, q querier, id int64, from, to models.TransactionStatus) error {
	query := `UPDATE payment_transactions SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{to, time.Now().UTC(), id}
	if from != "" {
		query += ` AND status = ?`
		args = append(args, from)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("failed to update payment transaction status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to read affected rows", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := getTransaction(ctx, q, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("transaction %d %s -> %s: %w", id, current.Status, to, domain.ErrInvalidTransition)
}

func getTransaction(ctx context.Context, q querier, id int64) (*models.PaymentTransaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`, id))
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to get payment transaction %d", id), err)
	}
	return t, nil
}

func scanTransaction(row rowScanner) (*models.PaymentTransaction, error) {
	var (
		t         models.PaymentTransaction
		bookingID sql.NullInt64
	)
	err := row.Scan(&t.ID, &bookingID, &t.Reference, &t.Amount, &t.Method, &t.Status,
		&t.PaymentDate, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if bookingID.Valid {
		id := bookingID.Int64
		t.BookingID = &id
	}
	return &t, nil
}

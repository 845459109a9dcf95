package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"frontdesk/internal/models"
)

const guestColumns = `id, full_name, email, phone, document_number, created_at, updated_at`

func (db *DB) CreateGuest(ctx context.Context, guest *models.Guest) error {
	now := time.Now().UTC()
	query := `INSERT INTO guests (full_name, email, phone, document_number, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, guest.FullName, guest.Email, guest.Phone, guest.DocumentNumber, now, now)
	if err != nil {
		return storageErr("failed to create guest", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("failed to get last insert id", err)
	}
	guest.ID = id
	guest.CreatedAt = now
	guest.UpdatedAt = now
	return nil
}

func (db *DB) UpdateGuest(ctx context.Context, guest *models.Guest) error {
	now := time.Now().UTC()
	query := `UPDATE guests SET full_name = ?, email = ?, phone = ?, document_number = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, guest.FullName, guest.Email, guest.Phone, guest.DocumentNumber, now, guest.ID)
	if err != nil {
		return storageErr("failed to update guest", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storageErr(fmt.Sprintf("guest %d", guest.ID), sql.ErrNoRows)
	}
	guest.UpdatedAt = now
	return nil
}

func (db *DB) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	var g models.Guest
	err := db.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = ?`, id).Scan(
		&g.ID, &g.FullName, &g.Email, &g.Phone, &g.DocumentNumber, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to get guest %d", id), err)
	}
	return &g, nil
}

// ListGuests returns guests whose name, email or phone contains search; all guests when search is empty.
func (db *DB) ListGuests(ctx context.Context, search string) ([]*models.Guest, error) {
	query := `SELECT ` + guestColumns + ` FROM guests`
	var args []any
	if search != "" {
		query += ` WHERE full_name LIKE ? OR email LIKE ? OR phone LIKE ?`
		like := "%" + search + "%"
		args = append(args, like, like, like)
	}
	query += ` ORDER BY full_name ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to list guests", err)
	}
	defer rows.Close()

	var guests []*models.Guest
	for rows.Next() {
		var g models.Guest
		if err := rows.Scan(&g.ID, &g.FullName, &g.Email, &g.Phone, &g.DocumentNumber, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, storageErr("failed to scan guest", err)
		}
		guests = append(guests, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to list guests", err)
	}
	return guests, nil
}

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
)

const roomColumns = `id, number, type, nightly_rate, status, floor, created_at, updated_at`

func (db *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.Status == "" {
		room.Status = models.RoomAvailable
	}
	now := time.Now().UTC()
	query := `INSERT INTO rooms (number, type, nightly_rate, status, floor, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		room.Number, room.Type, room.NightlyRate.StringFixed(2), room.Status, room.Floor, now, now)
	if err != nil {
		return storageErr("failed to create room", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("failed to get last insert id", err)
	}
	room.ID = id
	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

// UpsertRoom creates the room or updates type, rate and floor of the room with the same number.
// Occupancy status of an existing room is left alone.
func (db *DB) UpsertRoom(ctx context.Context, room *models.Room) error {
	existing, err := db.GetRoomByNumber(ctx, room.Number)
	if errors.Is(err, domain.ErrNotFound) {
		return db.CreateRoom(ctx, room)
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `UPDATE rooms SET type = ?, nightly_rate = ?, floor = ?, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, room.Type, room.NightlyRate.StringFixed(2), room.Floor, now, existing.ID); err != nil {
		return storageErr("failed to update room", err)
	}
	room.ID = existing.ID
	room.Status = existing.Status
	room.CreatedAt = existing.CreatedAt
	room.UpdatedAt = now
	return nil
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	row := db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to get room %d", id), err)
	}
	return room, nil
}

func (db *DB) GetRoomByNumber(ctx context.Context, number string) (*models.Room, error) {
	row := db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE number = ?`, number)
	room, err := scanRoom(row)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to get room %s", number), err)
	}
	return room, nil
}

func (db *DB) ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.FreeFrom.IsZero() && !filter.FreeTo.IsZero() {
		where = append(where, `NOT EXISTS (
            SELECT 1 FROM bookings b
            WHERE b.room_id = rooms.id
              AND b.status IN (`+placeholders(len(models.BlockingStatuses))+`)
              AND b.check_in < ? AND ? < b.check_out)`)
		for _, s := range models.BlockingStatuses {
			args = append(args, s)
		}
		args = append(args, filter.FreeTo.Format(models.DateLayout), filter.FreeFrom.Format(models.DateLayout))
	}

	query := `SELECT ` + roomColumns + ` FROM rooms`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY number ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to list rooms", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, storageErr("failed to scan room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to list rooms", err)
	}
	return rooms, nil
}

func (db *DB) UpdateRoomStatus(ctx context.Context, id int64, status models.RoomStatus) (*models.Room, error) {
	result, err := db.ExecContext(ctx, `UPDATE rooms SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return nil, storageErr("failed to update room status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, storageErr(fmt.Sprintf("room %d", id), sql.ErrNoRows)
	}
	return db.GetRoom(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var r models.Room
	if err := row.Scan(&r.ID, &r.Number, &r.Type, &r.NightlyRate, &r.Status, &r.Floor, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

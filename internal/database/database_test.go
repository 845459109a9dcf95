package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func createTestRoom(t *testing.T, db *DB, number, rate string) *models.Room {
	t.Helper()
	room := &models.Room{Number: number, Type: models.RoomDouble, NightlyRate: decimal.RequireFromString(rate)}
	require.NoError(t, db.CreateRoom(context.Background(), room))
	return room
}

func createTestGuest(t *testing.T, db *DB, name string) *models.Guest {
	t.Helper()
	guest := &models.Guest{FullName: name, Email: "guest@example.com"}
	require.NoError(t, db.CreateGuest(context.Background(), guest))
	return guest
}

func insertTestBooking(t *testing.T, db *DB, roomID, guestID int64, in, out string, status models.BookingStatus) *models.Booking {
	t.Helper()
	b := &models.Booking{
		RoomID:      roomID,
		GuestID:     guestID,
		CheckIn:     day(in),
		CheckOut:    day(out),
		Status:      status,
		TotalAmount: decimal.NewFromInt(100),
	}
	require.NoError(t, db.InsertBooking(context.Background(), b))
	return b
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestNewDB_MigrateTwice(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.migrate(context.Background()))
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	t.Run("QueryBookings", func(t *testing.T) {
		_, err := db.QueryBookings(ctx, 1, models.BlockingStatuses)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})

	t.Run("CreateBookingWithLock", func(t *testing.T) {
		err := db.CreateBookingWithLock(ctx, &models.Booking{RoomID: 1, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11")})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})

	t.Run("ApplyReconciliation", func(t *testing.T) {
		err := db.ApplyReconciliation(ctx, models.Reconciliation{TransactionID: 1, ToTxStatus: models.TransactionApproved})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})

	t.Run("CreateSyncTask", func(t *testing.T) {
		err := db.CreateSyncTask(ctx, &models.SyncTask{})
		assert.Error(t, err)
	})
}

func TestGetMissingRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetRoom(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = db.GetGuest(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = db.GetBooking(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = db.GetPaymentTransaction(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = db.UpdateRoomStatus(ctx, 42, models.RoomCleaning)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

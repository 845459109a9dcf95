package service

import (
	"context"
	"io"
	"testing"
	"time"

	"frontdesk/internal/database"
	"frontdesk/internal/events"
	"frontdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateRoom(ctx context.Context, r *models.Room) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) UpsertRoom(ctx context.Context, r *models.Room) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}
func (m *mockRepo) GetRoomByNumber(ctx context.Context, n string) (*models.Room, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}
func (m *mockRepo) ListRooms(ctx context.Context, f models.RoomFilter) ([]*models.Room, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Room), args.Error(1)
}
func (m *mockRepo) UpdateRoomStatus(ctx context.Context, id int64, s models.RoomStatus) (*models.Room, error) {
	args := m.Called(ctx, id, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}
func (m *mockRepo) CreateGuest(ctx context.Context, g *models.Guest) error {
	return m.Called(ctx, g).Error(0)
}
func (m *mockRepo) UpdateGuest(ctx context.Context, g *models.Guest) error {
	return m.Called(ctx, g).Error(0)
}
func (m *mockRepo) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Guest), args.Error(1)
}
func (m *mockRepo) ListGuests(ctx context.Context, search string) ([]*models.Guest, error) {
	args := m.Called(ctx, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Guest), args.Error(1)
}
func (m *mockRepo) QueryBookings(ctx context.Context, roomID int64, st []models.BookingStatus) ([]*models.Booking, error) {
	args := m.Called(ctx, roomID, st)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) InsertBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) UpdateBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus) (*models.Booking, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) UpdateBookingPaymentStatus(ctx context.Context, id int64, s models.PaymentStatus) (*models.Booking, error) {
	args := m.Called(ctx, id, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) UpdateBookingTotal(ctx context.Context, id, v int64, total decimal.Decimal) (*models.Booking, error) {
	args := m.Called(ctx, id, v, total)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) RescheduleBookingWithLock(ctx context.Context, id, v int64, in, out time.Time, total decimal.Decimal) (*models.Booking, error) {
	args := m.Called(ctx, id, v, in, out, total)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) QuoteStay(ctx context.Context, roomID int64, in, out time.Time, exclude int64) (bool, decimal.Decimal, error) {
	args := m.Called(ctx, roomID, in, out, exclude)
	return args.Bool(0), args.Get(1).(decimal.Decimal), args.Error(2)
}
func (m *mockRepo) FindOverlappingBookings(ctx context.Context) ([]models.OverlapPair, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OverlapPair), args.Error(1)
}
func (m *mockRepo) InsertPaymentTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	return m.Called(ctx, tx).Error(0)
}
func (m *mockRepo) UpdatePaymentTransactionStatus(ctx context.Context, id int64, s models.TransactionStatus) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, id, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}
func (m *mockRepo) GetPaymentTransaction(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}
func (m *mockRepo) ListPaymentTransactions(ctx context.Context, bookingID int64) ([]*models.PaymentTransaction, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentTransaction), args.Error(1)
}
func (m *mockRepo) LatestTransactionForBooking(ctx context.Context, bookingID int64, s models.TransactionStatus) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, bookingID, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}
func (m *mockRepo) ApplyReconciliation(ctx context.Context, r models.Reconciliation) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) FindPaymentMismatches(ctx context.Context) ([]models.PaymentMismatch, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentMismatch), args.Error(1)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType string, b *models.Booking) error {
	return m.Called(ctx, taskType, b).Error(0)
}

// recorder collects every event published on a bus.
type recorder struct {
	types []string
}

func newRecordingBus(types ...string) (*events.EventBus, *recorder) {
	bus := events.NewEventBus()
	rec := &recorder{}
	for _, t := range types {
		bus.Subscribe(t, func(e *events.Event) error {
			rec.types = append(rec.types, e.Type)
			return nil
		})
	}
	return bus, rec
}

func day(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type fixture struct {
	db       *database.DB
	rooms    *RoomService
	guests   *GuestService
	bookings *BookingService
	payments *PaymentService
	bus      *events.EventBus
	events   *recorder
	room     *models.Room
	guest    *models.Guest
}

// newFixture wires the services over an in-memory database with one room at 150.00 and one guest.
func newFixture(t *testing.T, opts BookingOptions) *fixture {
	t.Helper()
	logger := testLogger()
	db, err := database.NewDB(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus, rec := newRecordingBus(
		events.EventBookingCreated, events.EventBookingConfirmed, events.EventBookingCheckedIn,
		events.EventBookingCheckedOut, events.EventBookingCancelled, events.EventBookingRescheduled,
		events.EventBookingConflict, events.EventPaymentRecorded, events.EventPaymentApproved,
		events.EventPaymentRejected, events.EventPaymentRefunded, events.EventRoomStatusChanged,
	)

	f := &fixture{db: db, bus: bus, events: rec}
	f.rooms = NewRoomService(db, bus, logger)
	f.guests = NewGuestService(db, logger)
	f.bookings = NewBookingService(db, nil, f.rooms, bus, nil, opts, logger)
	f.payments = NewPaymentService(db, bus, nil, logger)

	ctx := context.Background()
	f.room = &models.Room{Number: "101", Type: models.RoomDouble, NightlyRate: decimal.RequireFromString("150.00")}
	require.NoError(t, f.rooms.CreateRoom(ctx, f.room))
	f.guest = &models.Guest{FullName: "Ann Smith", Email: "ann@example.com"}
	require.NoError(t, f.guests.CreateGuest(ctx, f.guest))
	return f
}

func (f *fixture) book(t *testing.T, in, out string) (*models.Booking, error) {
	t.Helper()
	return f.bookings.CreateBooking(context.Background(), models.CreateBookingRequest{
		RoomID:   f.room.ID,
		GuestID:  f.guest.ID,
		CheckIn:  day(in),
		CheckOut: day(out),
	})
}

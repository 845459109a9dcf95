package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/events"
	"frontdesk/internal/models"
	"frontdesk/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBookingService_CreateBooking(t *testing.T) {
	for _, serverSide := range []bool{false, true} {
		t.Run(fmt.Sprintf("server_side_quote=%v", serverSide), func(t *testing.T) {
			f := newFixture(t, BookingOptions{ServerSideQuote: serverSide})
			ctx := context.Background()

			first, err := f.book(t, "2024-06-10", "2024-06-15")
			require.NoError(t, err)
			assert.Equal(t, models.BookingPending, first.Status)
			assert.Equal(t, models.PaymentUnpaid, first.PaymentStatus)
			assert.Equal(t, "750.00", first.TotalAmount.StringFixed(2))

			t.Run("non-overlapping range succeeds", func(t *testing.T) {
				_, err := f.book(t, "2024-07-01", "2024-07-03")
				assert.NoError(t, err)
			})

			t.Run("overlapping range conflicts", func(t *testing.T) {
				_, err := f.book(t, "2024-06-12", "2024-06-18")
				assert.ErrorIs(t, err, domain.ErrConflict)

				bookings, err := f.db.QueryBookings(ctx, f.room.ID, nil)
				require.NoError(t, err)
				assert.Len(t, bookings, 2, "no booking is inserted on conflict")
				assert.Contains(t, f.events.types, events.EventBookingConflict)
			})

			t.Run("back-to-back range succeeds", func(t *testing.T) {
				b, err := f.book(t, "2024-06-15", "2024-06-18")
				require.NoError(t, err)
				assert.Equal(t, "450.00", b.TotalAmount.StringFixed(2))
			})

			t.Run("cancel frees the range", func(t *testing.T) {
				_, err := f.bookings.Cancel(ctx, first.ID)
				require.NoError(t, err)

				_, err = f.book(t, "2024-06-11", "2024-06-13")
				assert.NoError(t, err)
			})
		})
	}
}

func TestBookingService_CreateBookingValidation(t *testing.T) {
	f := newFixture(t, BookingOptions{MaxStayNights: 30})
	ctx := context.Background()

	tests := []struct {
		name    string
		req     models.CreateBookingRequest
		wantErr error
	}{
		{
			name:    "zero nights",
			req:     models.CreateBookingRequest{RoomID: f.room.ID, GuestID: f.guest.ID, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-10")},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "too long",
			req:     models.CreateBookingRequest{RoomID: f.room.ID, GuestID: f.guest.ID, CheckIn: day("2024-06-01"), CheckOut: day("2024-08-01")},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "missing guest",
			req:     models.CreateBookingRequest{RoomID: f.room.ID, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11")},
			wantErr: domain.ErrValidation,
		},
		{
			name: "paid at creation",
			req: models.CreateBookingRequest{
				RoomID: f.room.ID, GuestID: f.guest.ID, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11"),
				PaymentStatus: models.PaymentPaid,
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown room",
			req:     models.CreateBookingRequest{RoomID: 999, GuestID: f.guest.ID, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11")},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "unknown guest",
			req:     models.CreateBookingRequest{RoomID: f.room.ID, GuestID: 999, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11")},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bookings.CreateBooking(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("deposit at creation", func(t *testing.T) {
		b, err := f.bookings.CreateBooking(ctx, models.CreateBookingRequest{
			RoomID: f.room.ID, GuestID: f.guest.ID, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11"),
			PaymentStatus: models.PaymentDeposit, PaymentMethod: "cash",
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentDeposit, b.PaymentStatus)
	})
}

func TestBookingService_FailsClosedOnStorageError(t *testing.T) {
	repo := new(mockRepo)
	ctx := context.Background()
	room := &models.Room{ID: 1, Number: "101", Type: models.RoomSingle, NightlyRate: decimal.NewFromInt(100)}

	repo.On("GetRoom", ctx, int64(1)).Return(room, nil).Once()
	repo.On("GetGuest", ctx, int64(2)).Return(&models.Guest{ID: 2, FullName: "Ann"}, nil).Once()
	repo.On("QueryBookings", ctx, int64(1), models.BlockingStatuses).
		Return(nil, fmt.Errorf("query: %w", domain.ErrStorageUnavailable)).Once()

	svc := NewBookingService(repo, nil, nil, nil, nil, BookingOptions{}, testLogger())
	_, err := svc.CreateBooking(ctx, models.CreateBookingRequest{
		RoomID: 1, GuestID: 2, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11"),
	})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	repo.AssertNotCalled(t, "CreateBookingWithLock", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestBookingService_StorageConflictAfterPrecheck(t *testing.T) {
	repo := new(mockRepo)
	worker := new(mockSyncWorker)
	ctx := context.Background()
	room := &models.Room{ID: 1, Number: "101", Type: models.RoomSingle, NightlyRate: decimal.NewFromInt(100)}

	repo.On("GetRoom", ctx, int64(1)).Return(room, nil).Once()
	repo.On("GetGuest", ctx, int64(2)).Return(&models.Guest{ID: 2}, nil).Once()
	repo.On("QueryBookings", ctx, int64(1), models.BlockingStatuses).Return([]*models.Booking{}, nil).Once()
	repo.On("CreateBookingWithLock", ctx, mock.AnythingOfType("*models.Booking")).
		Return(fmt.Errorf("room 1: %w", domain.ErrConflict)).Once()

	svc := NewBookingService(repo, nil, nil, nil, worker, BookingOptions{}, testLogger())
	_, err := svc.CreateBooking(ctx, models.CreateBookingRequest{
		RoomID: 1, GuestID: 2, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-11"),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestBookingService_EnqueuesSync(t *testing.T) {
	repo := new(mockRepo)
	worker := new(mockSyncWorker)
	ctx := context.Background()
	room := &models.Room{ID: 1, Number: "101", Type: models.RoomSingle, NightlyRate: decimal.NewFromInt(100)}

	repo.On("GetRoom", ctx, int64(1)).Return(room, nil).Once()
	repo.On("GetGuest", ctx, int64(2)).Return(&models.Guest{ID: 2}, nil).Once()
	repo.On("QuoteStay", ctx, int64(1), day("2024-06-10"), day("2024-06-12"), int64(0)).
		Return(true, decimal.NewFromInt(200), nil).Once()
	repo.On("CreateBookingWithLock", ctx, mock.AnythingOfType("*models.Booking")).
		Run(func(args mock.Arguments) { args.Get(1).(*models.Booking).ID = 42 }).
		Return(nil).Once()
	worker.On("EnqueueTask", ctx, models.SyncTaskUpsert, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == 42 && b.TotalAmount.Equal(decimal.NewFromInt(200))
	})).Return(errors.New("queue full")).Once()

	svc := NewBookingService(repo, nil, nil, nil, worker, BookingOptions{ServerSideQuote: true}, testLogger())
	b, err := svc.CreateBooking(ctx, models.CreateBookingRequest{
		RoomID: 1, GuestID: 2, CheckIn: day("2024-06-10"), CheckOut: day("2024-06-12"),
	})
	require.NoError(t, err, "sync failures never affect the booking")
	assert.Equal(t, int64(42), b.ID)
	repo.AssertExpectations(t)
	worker.AssertExpectations(t)
}

func TestBookingService_RoomLock(t *testing.T) {
	f := newFixture(t, BookingOptions{LockTTL: 50 * time.Millisecond})
	locks := repository.NewMemoryLockRepository()
	f.bookings.locks = locks
	ctx := context.Background()

	t.Run("held lock times out", func(t *testing.T) {
		ok, err := locks.AcquireRoomLock(ctx, f.room.ID, "other-request", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.book(t, "2024-06-10", "2024-06-12")
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)

		require.NoError(t, locks.ReleaseRoomLock(ctx, f.room.ID, "other-request"))
	})

	t.Run("lock released after booking", func(t *testing.T) {
		_, err := f.book(t, "2024-06-10", "2024-06-12")
		require.NoError(t, err)

		ok, err := locks.AcquireRoomLock(ctx, f.room.ID, "next", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestBookingService_Lifecycle(t *testing.T) {
	f := newFixture(t, BookingOptions{})
	ctx := context.Background()

	b, err := f.book(t, "2024-06-10", "2024-06-13")
	require.NoError(t, err)

	_, err = f.bookings.CheckIn(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending booking must be confirmed first")

	b, err = f.bookings.Confirm(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)

	b, err = f.bookings.CheckIn(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCheckedIn, b.Status)

	room, err := f.rooms.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomOccupied, room.Status)

	b, err = f.bookings.CheckOut(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCheckedOut, b.Status)
	assert.Equal(t, models.PaymentUnpaid, b.PaymentStatus, "checkout does not require payment")

	room, err = f.rooms.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomCleaning, room.Status)

	_, err = f.bookings.Cancel(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "checked-out booking cannot be cancelled")

	got, err := f.bookings.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCheckedOut, got.Status)

	t.Run("checked-out booking does not block", func(t *testing.T) {
		_, err := f.book(t, "2024-06-11", "2024-06-12")
		assert.NoError(t, err)
	})

	assert.Subset(t, f.events.types, []string{
		events.EventBookingCreated,
		events.EventBookingConfirmed,
		events.EventBookingCheckedIn,
		events.EventBookingCheckedOut,
		events.EventRoomStatusChanged,
	})
}

func TestBookingService_CancelCheckedIn(t *testing.T) {
	f := newFixture(t, BookingOptions{})
	ctx := context.Background()

	b, err := f.book(t, "2024-06-10", "2024-06-13")
	require.NoError(t, err)
	_, err = f.bookings.Confirm(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.bookings.CheckIn(ctx, b.ID)
	require.NoError(t, err)

	cancelled, err := f.bookings.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)

	_, err = f.bookings.Cancel(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_Reschedule(t *testing.T) {
	f := newFixture(t, BookingOptions{})
	ctx := context.Background()

	b, err := f.book(t, "2024-06-10", "2024-06-12")
	require.NoError(t, err)
	_, err = f.book(t, "2024-06-20", "2024-06-22")
	require.NoError(t, err)

	moved, err := f.bookings.Reschedule(ctx, b.ID, day("2024-06-11"), day("2024-06-15"))
	require.NoError(t, err)
	assert.Equal(t, "2024-06-11", moved.CheckIn.Format(models.DateLayout))
	assert.Equal(t, "600.00", moved.TotalAmount.StringFixed(2))

	_, err = f.bookings.Reschedule(ctx, b.ID, day("2024-06-14"), day("2024-06-21"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.bookings.Cancel(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.bookings.Reschedule(ctx, b.ID, day("2024-07-01"), day("2024-07-02"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_UpdateTotal(t *testing.T) {
	f := newFixture(t, BookingOptions{})
	ctx := context.Background()

	b, err := f.book(t, "2024-06-10", "2024-06-12")
	require.NoError(t, err)

	updated, err := f.bookings.UpdateTotal(ctx, b.ID, decimal.RequireFromString("250.555"))
	require.NoError(t, err)
	assert.Equal(t, "250.56", updated.TotalAmount.StringFixed(2))

	_, err = f.bookings.UpdateTotal(ctx, b.ID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBookingService_QuotePathsAgree(t *testing.T) {
	client := newFixture(t, BookingOptions{})
	server := newFixture(t, BookingOptions{ServerSideQuote: true})
	ctx := context.Background()

	for _, f := range []*fixture{client, server} {
		_, err := f.book(t, "2024-06-10", "2024-06-13")
		require.NoError(t, err)
	}

	ranges := [][2]string{
		{"2024-06-10", "2024-06-13"},
		{"2024-06-12", "2024-06-14"},
		{"2024-06-13", "2024-06-16"},
		{"2024-02-27", "2024-03-02"},
	}
	for _, r := range ranges {
		t.Run(r[0]+".."+r[1], func(t *testing.T) {
			a, err := client.bookings.Quote(ctx, client.room.ID, day(r[0]), day(r[1]))
			require.NoError(t, err)
			b, err := server.bookings.Quote(ctx, server.room.ID, day(r[0]), day(r[1]))
			require.NoError(t, err)

			assert.Equal(t, a.Available, b.Available)
			assert.Equal(t, a.Nights, b.Nights)
			assert.True(t, a.Total.Equal(b.Total), "client %s server %s", a.Total, b.Total)
		})
	}
}

func TestBookingService_AuditOverlaps(t *testing.T) {
	f := newFixture(t, BookingOptions{})
	ctx := context.Background()

	for _, r := range [][2]string{{"2024-06-10", "2024-06-13"}, {"2024-06-12", "2024-06-14"}} {
		require.NoError(t, f.db.InsertBooking(ctx, &models.Booking{
			RoomID: f.room.ID, GuestID: f.guest.ID, CheckIn: day(r[0]), CheckOut: day(r[1]),
			Status: models.BookingConfirmed, TotalAmount: decimal.NewFromInt(1),
		}))
	}

	pairs, err := f.bookings.AuditOverlaps(ctx)
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
}

func TestBookingService_ListBookings(t *testing.T) {
	f := newFixture(t, BookingOptions{})
	ctx := context.Background()

	_, err := f.book(t, "2024-06-10", "2024-06-12")
	require.NoError(t, err)

	got, err := f.bookings.ListBookings(ctx, models.BookingFilter{Statuses: []models.BookingStatus{models.BookingPending}})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.bookings.ListBookings(ctx, models.BookingFilter{Statuses: []models.BookingStatus{"bogus"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

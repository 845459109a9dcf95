package domain

import (
	"context"
	"time"

	"frontdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	UpsertRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByNumber(ctx context.Context, number string) (*models.Room, error)
	ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error)
	UpdateRoomStatus(ctx context.Context, id int64, status models.RoomStatus) (*models.Room, error)
}

type GuestRepository interface {
	CreateGuest(ctx context.Context, guest *models.Guest) error
	UpdateGuest(ctx context.Context, guest *models.Guest) error
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
	ListGuests(ctx context.Context, search string) ([]*models.Guest, error)
}

// BookingRepository is the storage side of availability and the booking lifecycle.
type BookingRepository interface {
	QueryBookings(ctx context.Context, roomID int64, statuses []models.BookingStatus) ([]*models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	// CreateBookingWithLock re-checks the overlap and inserts inside one storage transaction.
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus) (*models.Booking, error)
	UpdateBookingPaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) (*models.Booking, error)
	UpdateBookingTotal(ctx context.Context, id, version int64, total decimal.Decimal) (*models.Booking, error)
	RescheduleBookingWithLock(ctx context.Context, id, version int64, checkIn, checkOut time.Time, total decimal.Decimal) (*models.Booking, error)
	// QuoteStay computes availability and the stay total on the storage side.
	QuoteStay(ctx context.Context, roomID int64, checkIn, checkOut time.Time, excludeBookingID int64) (bool, decimal.Decimal, error)
	FindOverlappingBookings(ctx context.Context) ([]models.OverlapPair, error)
}

type PaymentRepository interface {
	InsertPaymentTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	UpdatePaymentTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus) (*models.PaymentTransaction, error)
	GetPaymentTransaction(ctx context.Context, id int64) (*models.PaymentTransaction, error)
	ListPaymentTransactions(ctx context.Context, bookingID int64) ([]*models.PaymentTransaction, error)
	LatestTransactionForBooking(ctx context.Context, bookingID int64, status models.TransactionStatus) (*models.PaymentTransaction, error)
	// ApplyReconciliation changes both sides of a reconciliation or neither.
	ApplyReconciliation(ctx context.Context, r models.Reconciliation) error
	FindPaymentMismatches(ctx context.Context) ([]models.PaymentMismatch, error)
}

type Repository interface {
	RoomRepository
	GuestRepository
	BookingRepository
	PaymentRepository
}

// LockRepository serializes booking writes per room across processes.
type LockRepository interface {
	AcquireRoomLock(ctx context.Context, roomID int64, token string, ttl time.Duration) (bool, error)
	ReleaseRoomLock(ctx context.Context, roomID int64, token string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	UpdatePaymentStatus(ctx context.Context, bookingID int64, status string) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

type RoomService interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	SetOccupancy(ctx context.Context, id int64, status models.RoomStatus) (*models.Room, error)
}

type GuestService interface {
	CreateGuest(ctx context.Context, guest *models.Guest) error
	UpdateGuest(ctx context.Context, guest *models.Guest) error
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
	ListGuests(ctx context.Context, search string) ([]*models.Guest, error)
}

type BookingService interface {
	IsAvailable(ctx context.Context, roomID int64, checkIn, checkOut time.Time, excludeBookingID int64) (bool, error)
	Quote(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (*models.Quote, error)
	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error)
	Confirm(ctx context.Context, id int64) (*models.Booking, error)
	CheckIn(ctx context.Context, id int64) (*models.Booking, error)
	CheckOut(ctx context.Context, id int64) (*models.Booking, error)
	Cancel(ctx context.Context, id int64) (*models.Booking, error)
	Reschedule(ctx context.Context, id int64, checkIn, checkOut time.Time) (*models.Booking, error)
	UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	AuditOverlaps(ctx context.Context) ([]models.OverlapPair, error)
}

type PaymentService interface {
	RecordPayment(ctx context.Context, bookingID int64, amount decimal.Decimal, method string) (*models.PaymentTransaction, error)
	GenerateInvoice(ctx context.Context, bookingID *int64, amount decimal.Decimal, method string) (*models.PaymentTransaction, error)
	Approve(ctx context.Context, ref models.PaymentRef) (*models.ReconciliationResult, error)
	Reject(ctx context.Context, ref models.PaymentRef) (*models.ReconciliationResult, error)
	Refund(ctx context.Context, ref models.PaymentRef) (*models.ReconciliationResult, error)
	GetTransaction(ctx context.Context, id int64) (*models.PaymentTransaction, error)
	ListTransactions(ctx context.Context, bookingID int64) ([]*models.PaymentTransaction, error)
	AuditPayments(ctx context.Context) ([]models.PaymentMismatch, error)
}

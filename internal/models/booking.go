package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingCheckedIn  BookingStatus = "checked_in"
	BookingCheckedOut BookingStatus = "checked_out"
	BookingCancelled  BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingCheckedIn, BookingCancelled},
	BookingCheckedIn:  {BookingCheckedOut, BookingCancelled},
	BookingCheckedOut: {},
	BookingCancelled:  {},
}

// BlockingStatuses are the booking statuses that occupy a room's date range.
var BlockingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingCheckedIn}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CanTransitionTo reports whether the lifecycle has an edge from s to target.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCheckedOut || s == BookingCancelled
}

// Blocks reports whether a booking in this status occupies its room.
func (s BookingStatus) Blocks() bool {
	for _, b := range BlockingStatuses {
		if b == s {
			return true
		}
	}
	return false
}

func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentDeposit  PaymentStatus = "deposit"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// OutstandingPaymentStatuses still expect money from the guest.
var OutstandingPaymentStatuses = []PaymentStatus{PaymentUnpaid, PaymentPartial, PaymentDeposit}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentUnpaid, PaymentPartial, PaymentDeposit, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) IsOutstanding() bool {
	for _, o := range OutstandingPaymentStatuses {
		if o == s {
			return true
		}
	}
	return false
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown payment status %q", raw)
	}
	return s, nil
}

type Booking struct {
	ID            int64           `json:"id"`
	RoomID        int64           `json:"room_id"`
	GuestID       int64           `json:"guest_id"`
	CheckIn       time.Time       `json:"check_in"`
	CheckOut      time.Time       `json:"check_out"`
	Status        BookingStatus   `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int64           `json:"version"`
}

// Nights returns the whole number of nights between check-in and check-out.
func (b *Booking) Nights() int {
	return DaysBetween(b.CheckIn, b.CheckOut)
}

type BookingFilter struct {
	RoomID   int64
	GuestID  int64
	Statuses []BookingStatus
	From     time.Time
	To       time.Time
}

// Quote is the availability and price of a prospective stay.
type Quote struct {
	RoomID    int64           `json:"room_id"`
	CheckIn   time.Time       `json:"check_in"`
	CheckOut  time.Time       `json:"check_out"`
	Available bool            `json:"available"`
	Nights    int             `json:"nights"`
	Total     decimal.Decimal `json:"total"`
}

// OverlapPair is two blocking bookings found sharing a room and at least one night.
type OverlapPair struct {
	RoomID int64 `json:"room_id"`
	First  int64 `json:"first_booking_id"`
	Second int64 `json:"second_booking_id"`
}

type CreateBookingRequest struct {
	RoomID        int64         `json:"room_id"`
	GuestID       int64         `json:"guest_id"`
	CheckIn       time.Time     `json:"check_in"`
	CheckOut      time.Time     `json:"check_out"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionProcessing TransactionStatus = "processing"
	TransactionApproved   TransactionStatus = "approved"
	TransactionRejected   TransactionStatus = "rejected"
	TransactionRefunded   TransactionStatus = "refunded"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionProcessing: {TransactionApproved, TransactionRejected},
	TransactionApproved:   {TransactionRefunded},
	TransactionRejected:   {},
	TransactionRefunded:   {},
}

func (s TransactionStatus) IsValid() bool {
	_, ok := transactionTransitions[s]
	return ok
}

func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	s := TransactionStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown transaction status %q", raw)
	}
	return s, nil
}

// PaymentTransaction is never deleted; only its status moves forward.
type PaymentTransaction struct {
	ID          int64             `json:"id"`
	BookingID   *int64            `json:"booking_id,omitempty"`
	Reference   string            `json:"reference"`
	Amount      decimal.Decimal   `json:"amount"`
	Method      string            `json:"method"`
	Status      TransactionStatus `json:"status"`
	PaymentDate time.Time         `json:"payment_date"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// PaymentRef addresses a reconciliation either by transaction or by booking.
type PaymentRef struct {
	TransactionID int64 `json:"transaction_id,omitempty"`
	BookingID     int64 `json:"booking_id,omitempty"`
}

func (r PaymentRef) IsZero() bool {
	return r.TransactionID == 0 && r.BookingID == 0
}

// Reconciliation is one atomic change of a transaction status and its booking's payment status.
// A zero TransactionID or BookingID skips that side.
type Reconciliation struct {
	TransactionID  int64
	FromTxStatus   TransactionStatus
	ToTxStatus     TransactionStatus
	BookingID      int64
	FromPayment    []PaymentStatus
	ToPayment      PaymentStatus
	ConfirmPending bool
}

// PaymentMismatch is a transaction whose status disagrees with its booking's payment status.
type PaymentMismatch struct {
	TransactionID     int64             `json:"transaction_id"`
	TransactionStatus TransactionStatus `json:"transaction_status"`
	BookingID         int64             `json:"booking_id"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
}

// ReconciliationResult is the state of both sides after a reconciliation.
type ReconciliationResult struct {
	Transaction *PaymentTransaction `json:"transaction,omitempty"`
	Booking     *Booking            `json:"booking,omitempty"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"frontdesk/internal/domain"
	"frontdesk/internal/events"
	"frontdesk/internal/metrics"
	"frontdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// reconcileAction describes one staff payment action on both state machines.
type reconcileAction struct {
	name      string
	fromTx    models.TransactionStatus
	toTx      models.TransactionStatus
	toPayment models.PaymentStatus
	// bookingOnlyFrom guards the booking payment status when no transaction is involved.
	bookingOnlyFrom []models.PaymentStatus
	confirmPending  bool
	eventType       string
}

var (
	approveAction = reconcileAction{
		name:            "approve",
		fromTx:          models.TransactionProcessing,
		toTx:            models.TransactionApproved,
		toPayment:       models.PaymentPaid,
		bookingOnlyFrom: models.OutstandingPaymentStatuses,
		confirmPending:  true,
		eventType:       events.EventPaymentApproved,
	}
	rejectAction = reconcileAction{
		name:            "reject",
		fromTx:          models.TransactionProcessing,
		toTx:            models.TransactionRejected,
		toPayment:       models.PaymentUnpaid,
		bookingOnlyFrom: models.OutstandingPaymentStatuses,
		eventType:       events.EventPaymentRejected,
	}
	refundAction = reconcileAction{
		name:            "refund",
		fromTx:          models.TransactionApproved,
		toTx:            models.TransactionRefunded,
		toPayment:       models.PaymentRefunded,
		bookingOnlyFrom: []models.PaymentStatus{models.PaymentPaid},
		eventType:       events.EventPaymentRefunded,
	}
)

type PaymentService struct {
	repo         domain.Repository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewPaymentService(repo domain.Repository, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *PaymentService {
	return &PaymentService{
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

// RecordPayment registers a payment attempt for a booking. It starts in Processing.
func (s *PaymentService) RecordPayment(
	ctx context.Context,
	bookingID int64,
	amount decimal.Decimal,
	method string,
) (*models.PaymentTransaction, error) {
	if bookingID <= 0 {
		return nil, fmt.Errorf("booking is required: %w", domain.ErrValidation)
	}
	return s.GenerateInvoice(ctx, &bookingID, amount, method)
}

// GenerateInvoice creates a Processing transaction, optionally linked to a booking. A zero
// amount on a linked invoice bills the booking total.
func (s *PaymentService) GenerateInvoice(
	ctx context.Context,
	bookingID *int64,
	amount decimal.Decimal,
	method string,
) (*models.PaymentTransaction, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount %s must be positive: %w", amount, domain.ErrValidation)
	}

	if bookingID != nil {
		booking, err := s.repo.GetBooking(ctx, *bookingID)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			amount = booking.TotalAmount
		}
		if method == "" {
			method = booking.PaymentMethod
		}
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount %s must be positive: %w", amount, domain.ErrValidation)
	}

	tx := &models.PaymentTransaction{
		BookingID: bookingID,
		Amount:    amount.Round(2),
		Method:    strings.TrimSpace(method),
		Status:    models.TransactionProcessing,
	}
	if err := s.repo.InsertPaymentTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("transaction_id", tx.ID).
		Str("reference", tx.Reference).
		Str("amount", tx.Amount.StringFixed(2)).
		Msg("payment recorded")
	s.publishEvent(events.EventPaymentRecorded, tx, nil)
	return tx, nil
}

// Approve settles a payment: the transaction becomes Approved, the booking Paid, and a
// Pending booking Confirmed.
func (s *PaymentService) Approve(ctx context.Context, ref models.PaymentRef) (*models.ReconciliationResult, error) {
	return s.reconcile(ctx, approveAction, ref)
}

// Reject records a failed payment attempt and marks the booking Unpaid.
func (s *PaymentService) Reject(ctx context.Context, ref models.PaymentRef) (*models.ReconciliationResult, error) {
	return s.reconcile(ctx, rejectAction, ref)
}

// Refund reverses an approved payment. Anything but an Approved transaction is ErrInvalidTransition.
func (s *PaymentService) Refund(ctx context.Context, ref models.PaymentRef) (*models.ReconciliationResult, error) {
	return s.reconcile(ctx, refundAction, ref)
}

func (s *PaymentService) reconcile(ctx context.Context, action reconcileAction, ref models.PaymentRef) (*models.ReconciliationResult, error) {
	plan, err := s.plan(ctx, action, ref)
	if err != nil {
		metrics.IncReconciliation(action.name, "error")
		return nil, err
	}

	if err := s.repo.ApplyReconciliation(ctx, plan); err != nil {
		metrics.IncReconciliation(action.name, "error")
		s.logger.Warn().Err(err).
			Str("action", action.name).
			Int64("transaction_id", plan.TransactionID).
			Int64("booking_id", plan.BookingID).
			Msg("reconciliation rejected")
		return nil, err
	}
	metrics.IncReconciliation(action.name, "ok")

	result := &models.ReconciliationResult{}
	if plan.TransactionID != 0 {
		if result.Transaction, err = s.repo.GetPaymentTransaction(ctx, plan.TransactionID); err != nil {
			return nil, err
		}
	}
	if plan.BookingID != 0 {
		if result.Booking, err = s.repo.GetBooking(ctx, plan.BookingID); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("action", action.name).
		Int64("transaction_id", plan.TransactionID).
		Int64("booking_id", plan.BookingID).
		Msg("payment reconciled")

	if result.Transaction != nil {
		s.publishEvent(action.eventType, result.Transaction, result.Booking)
	} else {
		s.publishEvent(action.eventType, &models.PaymentTransaction{BookingID: &plan.BookingID}, result.Booking)
	}
	if result.Booking != nil {
		s.enqueueSync(ctx, result.Booking, models.SyncTaskUpdatePayment)
		if plan.ConfirmPending && result.Booking.Status == models.BookingConfirmed {
			metrics.IncTransition(string(models.BookingPending), string(models.BookingConfirmed))
			s.publishBookingConfirmed(result.Booking)
			s.enqueueSync(ctx, result.Booking, models.SyncTaskUpdateStatus)
		}
	}
	return result, nil
}

// plan resolves the reference and checks both source statuses before anything is written.
func (s *PaymentService) plan(ctx context.Context, action reconcileAction, ref models.PaymentRef) (models.Reconciliation, error) {
	var plan models.Reconciliation
	if ref.IsZero() {
		return plan, fmt.Errorf("transaction or booking reference is required: %w", domain.ErrValidation)
	}

	var tx *models.PaymentTransaction
	bookingID := ref.BookingID

	if ref.TransactionID != 0 {
		var err error
		if tx, err = s.repo.GetPaymentTransaction(ctx, ref.TransactionID); err != nil {
			return plan, err
		}
		if ref.BookingID != 0 && (tx.BookingID == nil || *tx.BookingID != ref.BookingID) {
			return plan, fmt.Errorf("transaction %d does not belong to booking %d: %w", tx.ID, ref.BookingID, domain.ErrValidation)
		}
		if tx.Status != action.fromTx {
			return plan, fmt.Errorf("cannot %s transaction %d in status %s: %w", action.name, tx.ID, tx.Status, domain.ErrInvalidTransition)
		}
		if tx.BookingID != nil {
			bookingID = *tx.BookingID
		}
	} else {
		latest, err := s.repo.LatestTransactionForBooking(ctx, bookingID, action.fromTx)
		switch {
		case err == nil:
			tx = latest
		case errors.Is(err, domain.ErrNotFound):
		default:
			return plan, err
		}
	}

	if tx != nil {
		plan.TransactionID = tx.ID
		plan.FromTxStatus = tx.Status
		plan.ToTxStatus = action.toTx
	}

	if bookingID != 0 {
		booking, err := s.repo.GetBooking(ctx, bookingID)
		if err != nil {
			return plan, err
		}
		plan.BookingID = booking.ID
		plan.ToPayment = action.toPayment
		if tx == nil {
			if !slices.Contains(action.bookingOnlyFrom, booking.PaymentStatus) {
				return plan, fmt.Errorf("cannot %s booking %d with payment status %s: %w",
					action.name, booking.ID, booking.PaymentStatus, domain.ErrInvalidTransition)
			}
			plan.FromPayment = action.bookingOnlyFrom
		}
		plan.ConfirmPending = action.confirmPending && booking.Status == models.BookingPending
	}

	return plan, nil
}

func (s *PaymentService) GetTransaction(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	return s.repo.GetPaymentTransaction(ctx, id)
}

func (s *PaymentService) ListTransactions(ctx context.Context, bookingID int64) ([]*models.PaymentTransaction, error) {
	return s.repo.ListPaymentTransactions(ctx, bookingID)
}

// AuditPayments lists bookings whose payment status disagrees with their latest settled transaction.
func (s *PaymentService) AuditPayments(ctx context.Context) ([]models.PaymentMismatch, error) {
	mismatches, err := s.repo.FindPaymentMismatches(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mismatches {
		s.logger.Warn().
			Int64("transaction_id", m.TransactionID).
			Str("transaction_status", string(m.TransactionStatus)).
			Int64("booking_id", m.BookingID).
			Str("payment_status", string(m.PaymentStatus)).
			Msg("payment status mismatch")
	}
	return mismatches, nil
}

func (s *PaymentService) publishEvent(eventType string, tx *models.PaymentTransaction, booking *models.Booking) {
	if s.eventBus == nil {
		return
	}

	payload := events.PaymentEventPayload{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Amount:        tx.Amount,
		Status:        string(tx.Status),
	}
	if tx.BookingID != nil {
		payload.BookingID = *tx.BookingID
	}
	if booking != nil {
		payload.BookingID = booking.ID
		payload.PaymentStatus = string(booking.PaymentStatus)
		if payload.Amount.IsZero() {
			payload.Amount = booking.TotalAmount
		}
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// publishBookingConfirmed reports the Pending -> Confirmed step taken by an approval.
func (s *PaymentService) publishBookingConfirmed(booking *models.Booking) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(events.EventBookingConfirmed, bookingEventPayload(booking, "payment")); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *PaymentService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

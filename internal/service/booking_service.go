package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/events"
	"frontdesk/internal/metrics"
	"frontdesk/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const lockRetryInterval = 25 * time.Millisecond

// BookingOptions tunes the booking engine.
type BookingOptions struct {
	ServerSideQuote bool
	LockTTL         time.Duration
	MaxStayNights   int
}

type BookingService struct {
	repo         domain.Repository
	locks        domain.LockRepository
	rooms        domain.RoomService
	checker      *AvailabilityChecker
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	opts         BookingOptions
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	locks domain.LockRepository,
	rooms domain.RoomService,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxStayNights <= 0 {
		opts.MaxStayNights = models.DefaultMaxStayNights
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = models.DefaultLockTTL
	}
	return &BookingService{
		repo:         repo,
		locks:        locks,
		rooms:        rooms,
		checker:      NewAvailabilityChecker(repo, logger),
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		opts:         opts,
		logger:       logger,
	}
}

// ValidateStay rejects empty, inverted and over-long date ranges.
func (s *BookingService) ValidateStay(checkIn, checkOut time.Time) error {
	nights, err := Nights(checkIn, checkOut)
	if err != nil {
		return err
	}
	if nights > s.opts.MaxStayNights {
		return fmt.Errorf("stay of %d nights exceeds the maximum of %d: %w", nights, s.opts.MaxStayNights, domain.ErrValidation)
	}
	return nil
}

func (s *BookingService) IsAvailable(
	ctx context.Context,
	roomID int64,
	checkIn, checkOut time.Time,
	excludeBookingID int64,
) (bool, error) {
	if err := s.ValidateStay(checkIn, checkOut); err != nil {
		return false, err
	}
	return s.checker.IsAvailable(ctx, roomID, checkIn, checkOut, excludeBookingID)
}

func (s *BookingService) Quote(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (*models.Quote, error) {
	if err := s.ValidateStay(checkIn, checkOut); err != nil {
		return nil, err
	}
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	available, total, err := s.quote(ctx, room, checkIn, checkOut, 0)
	if err != nil {
		return nil, err
	}
	return &models.Quote{
		RoomID:    roomID,
		CheckIn:   models.NormalizeDate(checkIn),
		CheckOut:  models.NormalizeDate(checkOut),
		Available: available,
		Nights:    models.DaysBetween(checkIn, checkOut),
		Total:     total,
	}, nil
}

// quote runs either the storage-side procedure or the checker plus calculator. Both give the same answer.
func (s *BookingService) quote(
	ctx context.Context,
	room *models.Room,
	checkIn, checkOut time.Time,
	excludeBookingID int64,
) (bool, decimal.Decimal, error) {
	if s.opts.ServerSideQuote {
		return s.repo.QuoteStay(ctx, room.ID, checkIn, checkOut, excludeBookingID)
	}

	total, err := ComputeTotal(room.NightlyRate, checkIn, checkOut)
	if err != nil {
		return false, decimal.Zero, err
	}
	available, err := s.checker.IsAvailable(ctx, room.ID, checkIn, checkOut, excludeBookingID)
	if err != nil {
		return false, decimal.Zero, err
	}
	return available, total, nil
}

func (s *BookingService) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	if req.RoomID <= 0 || req.GuestID <= 0 {
		return nil, fmt.Errorf("room and guest are required: %w", domain.ErrValidation)
	}
	if err := s.ValidateStay(req.CheckIn, req.CheckOut); err != nil {
		return nil, err
	}
	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentUnpaid
	}
	if !paymentStatus.IsOutstanding() {
		return nil, fmt.Errorf("initial payment status %q: %w", paymentStatus, domain.ErrValidation)
	}

	room, err := s.repo.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetGuest(ctx, req.GuestID); err != nil {
		return nil, err
	}

	release, err := s.lockRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	available, total, err := s.quote(ctx, room, req.CheckIn, req.CheckOut, 0)
	if err != nil {
		return nil, err
	}
	if !available {
		s.reportConflict("precheck", room.ID, req.CheckIn, req.CheckOut)
		return nil, fmt.Errorf("room %s %s..%s: %w", room.Number,
			req.CheckIn.Format(models.DateLayout), req.CheckOut.Format(models.DateLayout), domain.ErrConflict)
	}

	booking := &models.Booking{
		RoomID:        room.ID,
		GuestID:       req.GuestID,
		CheckIn:       models.NormalizeDate(req.CheckIn),
		CheckOut:      models.NormalizeDate(req.CheckOut),
		Status:        models.BookingPending,
		PaymentStatus: paymentStatus,
		PaymentMethod: req.PaymentMethod,
		TotalAmount:   total,
		Notes:         req.Notes,
	}

	// the storage collaborator repeats the overlap check in the insert transaction
	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.reportConflict("storage", room.ID, req.CheckIn, req.CheckOut)
		}
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("room_id", booking.RoomID).
		Str("total", booking.TotalAmount.StringFixed(2)).
		Msg("booking created")

	s.publishEvent(events.EventBookingCreated, booking, "staff")
	s.enqueueSync(ctx, booking, models.SyncTaskUpsert)
	return booking, nil
}

func (s *BookingService) Confirm(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, id, models.BookingConfirmed, events.EventBookingConfirmed)
}

// CheckIn marks the guest as arrived and the room as occupied.
func (s *BookingService) CheckIn(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := s.transition(ctx, id, models.BookingCheckedIn, events.EventBookingCheckedIn)
	if err != nil {
		return nil, err
	}
	s.setRoomStatus(ctx, booking, models.RoomOccupied)
	return booking, nil
}

// CheckOut ends the stay and sends the room to cleaning. Payment status is not consulted.
func (s *BookingService) CheckOut(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := s.transition(ctx, id, models.BookingCheckedOut, events.EventBookingCheckedOut)
	if err != nil {
		return nil, err
	}
	s.setRoomStatus(ctx, booking, models.RoomCleaning)
	return booking, nil
}

func (s *BookingService) Cancel(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, id, models.BookingCancelled, events.EventBookingCancelled)
}

// Reschedule moves a live booking to new dates on the same room and re-prices it.
func (s *BookingService) Reschedule(ctx context.Context, id int64, checkIn, checkOut time.Time) (*models.Booking, error) {
	if err := s.ValidateStay(checkIn, checkOut); err != nil {
		return nil, err
	}

	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("booking %d is %s: %w", id, current.Status, domain.ErrInvalidTransition)
	}

	room, err := s.repo.GetRoom(ctx, current.RoomID)
	if err != nil {
		return nil, err
	}

	release, err := s.lockRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	available, total, err := s.quote(ctx, room, checkIn, checkOut, id)
	if err != nil {
		return nil, err
	}
	if !available {
		s.reportConflict("precheck", room.ID, checkIn, checkOut)
		return nil, fmt.Errorf("room %s %s..%s: %w", room.Number,
			checkIn.Format(models.DateLayout), checkOut.Format(models.DateLayout), domain.ErrConflict)
	}

	updated, err := s.repo.RescheduleBookingWithLock(ctx, id, current.Version,
		models.NormalizeDate(checkIn), models.NormalizeDate(checkOut), total)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.reportConflict("storage", room.ID, checkIn, checkOut)
		}
		return nil, err
	}

	s.publishEvent(events.EventBookingRescheduled, updated, "staff")
	s.enqueueSync(ctx, updated, models.SyncTaskUpsert)
	return updated, nil
}

// UpdateTotal records a staff override of the stay total.
func (s *BookingService) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) (*models.Booking, error) {
	if total.IsNegative() {
		return nil, fmt.Errorf("total %s must not be negative: %w", total, domain.ErrValidation)
	}

	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingCancelled {
		return nil, fmt.Errorf("booking %d is cancelled: %w", id, domain.ErrInvalidTransition)
	}

	updated, err := s.repo.UpdateBookingTotal(ctx, id, current.Version, total.Round(2))
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("booking_id", id).
		Str("from", current.TotalAmount.StringFixed(2)).
		Str("to", updated.TotalAmount.StringFixed(2)).
		Msg("booking total overridden")
	s.enqueueSync(ctx, updated, models.SyncTaskUpsert)
	return updated, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("unknown booking status %q: %w", st, domain.ErrValidation)
		}
	}
	return s.repo.ListBookings(ctx, filter)
}

// AuditOverlaps finds blocking bookings that ended up overlapping despite the guards.
func (s *BookingService) AuditOverlaps(ctx context.Context) ([]models.OverlapPair, error) {
	pairs, err := s.repo.FindOverlappingBookings(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		s.logger.Warn().
			Int64("room_id", p.RoomID).
			Int64("booking_id", p.First).
			Int64("other_booking_id", p.Second).
			Msg("overlapping bookings need manual reconciliation")
	}
	return pairs, nil
}

func (s *BookingService) transition(ctx context.Context, id int64, to models.BookingStatus, eventType string) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("booking %d %s -> %s: %w", id, current.Status, to, domain.ErrInvalidTransition)
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, current.Status, to)
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(current.Status), string(to))
	s.logger.Info().
		Int64("booking_id", id).
		Str("from", string(current.Status)).
		Str("to", string(to)).
		Msg("booking status changed")

	s.publishEvent(eventType, updated, "staff")
	s.enqueueSync(ctx, updated, models.SyncTaskUpdateStatus)
	return updated, nil
}

func (s *BookingService) setRoomStatus(ctx context.Context, booking *models.Booking, status models.RoomStatus) {
	if s.rooms == nil {
		return
	}
	if _, err := s.rooms.SetOccupancy(ctx, booking.RoomID, status); err != nil {
		s.logger.Error().Err(err).
			Int64("booking_id", booking.ID).
			Int64("room_id", booking.RoomID).
			Str("status", string(status)).
			Msg("failed to update room occupancy")
	}
}

// lockRoom waits up to the lock TTL for the room lock. A lock store error does not block
// the booking: the storage transaction still serializes the write.
func (s *BookingService) lockRoom(ctx context.Context, roomID int64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}

	token := uuid.NewString()
	deadline := time.Now().Add(s.opts.LockTTL)
	for {
		ok, err := s.locks.AcquireRoomLock(ctx, roomID, token, s.opts.LockTTL)
		if err != nil {
			s.logger.Warn().Err(err).Int64("room_id", roomID).Msg("room lock unavailable, relying on storage transaction")
			return func() {}, nil
		}
		if ok {
			return func() {
				// the request context may already be cancelled
				if err := s.locks.ReleaseRoomLock(context.WithoutCancel(ctx), roomID, token); err != nil {
					s.logger.Warn().Err(err).Int64("room_id", roomID).Msg("failed to release room lock")
				}
			}, nil
		}
		if time.Now().After(deadline) {
			metrics.IncConflict("lock")
			return nil, fmt.Errorf("room %d is being booked by another request: %w", roomID, domain.ErrConcurrentModification)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *BookingService) reportConflict(stage string, roomID int64, checkIn, checkOut time.Time) {
	metrics.IncConflict(stage)
	s.logger.Info().
		Int64("room_id", roomID).
		Str("check_in", checkIn.Format(models.DateLayout)).
		Str("check_out", checkOut.Format(models.DateLayout)).
		Str("stage", stage).
		Msg("booking conflict")

	if s.eventBus == nil {
		return
	}
	payload := events.ConflictEventPayload{
		RoomID:   roomID,
		CheckIn:  checkIn.Format(models.DateLayout),
		CheckOut: checkOut.Format(models.DateLayout),
		Reason:   stage,
	}
	if err := s.eventBus.PublishJSON(events.EventBookingConflict, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", events.EventBookingConflict).Msg("publish event error")
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.PublishJSON(eventType, bookingEventPayload(booking, changedBy)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func bookingEventPayload(booking *models.Booking, changedBy string) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:     booking.ID,
		RoomID:        booking.RoomID,
		GuestID:       booking.GuestID,
		CheckIn:       booking.CheckIn.Format(models.DateLayout),
		CheckOut:      booking.CheckOut.Format(models.DateLayout),
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
		TotalAmount:   booking.TotalAmount,
		ChangedBy:     changedBy,
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

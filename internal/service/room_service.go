package service

import (
	"context"
	"errors"
	"fmt"

	"frontdesk/internal/domain"
	"frontdesk/internal/events"
	"frontdesk/internal/models"

	"github.com/rs/zerolog"
)

type RoomService struct {
	repo     domain.RoomRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewRoomService(repo domain.RoomRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *RoomService {
	return &RoomService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

func validateRoom(room *models.Room) error {
	if room.Number == "" {
		return fmt.Errorf("room number is required: %w", domain.ErrValidation)
	}
	if !room.Type.IsValid() {
		return fmt.Errorf("unknown room type %q: %w", room.Type, domain.ErrValidation)
	}
	if !room.NightlyRate.IsPositive() {
		return fmt.Errorf("nightly rate %s must be positive: %w", room.NightlyRate, domain.ErrValidation)
	}
	if room.Status != "" && !room.Status.IsValid() {
		return fmt.Errorf("unknown room status %q: %w", room.Status, domain.ErrValidation)
	}
	return nil
}

func (s *RoomService) CreateRoom(ctx context.Context, room *models.Room) error {
	if err := validateRoom(room); err != nil {
		return err
	}
	room.NightlyRate = room.NightlyRate.Round(2)
	return s.repo.CreateRoom(ctx, room)
}

// UpsertRoom syncs a catalog entry by room number.
func (s *RoomService) UpsertRoom(ctx context.Context, room *models.Room) error {
	if err := validateRoom(room); err != nil {
		return err
	}
	room.NightlyRate = room.NightlyRate.Round(2)
	return s.repo.UpsertRoom(ctx, room)
}

func (s *RoomService) ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error) {
	if filter.FreeFrom.IsZero() != filter.FreeTo.IsZero() {
		return nil, fmt.Errorf("free range needs both dates: %w", domain.ErrValidation)
	}
	if !filter.FreeFrom.IsZero() {
		if _, err := Nights(filter.FreeFrom, filter.FreeTo); err != nil {
			return nil, err
		}
	}
	return s.repo.ListRooms(ctx, filter)
}

func (s *RoomService) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return s.repo.GetRoom(ctx, id)
}

// SetOccupancy is idempotent: setting the current status returns the room without writing.
func (s *RoomService) SetOccupancy(ctx context.Context, id int64, status models.RoomStatus) (*models.Room, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown room status %q: %w", status, domain.ErrValidation)
	}

	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Status == status {
		return room, nil
	}

	updated, err := s.repo.UpdateRoomStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.publishEvent(room, status)
	return updated, nil
}

func (s *RoomService) publishEvent(room *models.Room, to models.RoomStatus) {
	if s.eventBus == nil {
		return
	}
	payload := events.RoomEventPayload{
		RoomID: room.ID,
		Number: room.Number,
		From:   string(room.Status),
		To:     string(to),
	}
	if err := s.eventBus.PublishJSON(events.EventRoomStatusChanged, payload); err != nil {
		s.logger.Error().Err(err).Int64("room_id", room.ID).Msg("publish event error")
	}
}

// SeedRooms upserts a room catalog, stopping at the first invalid entry.
func (s *RoomService) SeedRooms(ctx context.Context, rooms []models.Room) (int, error) {
	var errs []error
	n := 0
	for i := range rooms {
		room := rooms[i]
		if err := s.UpsertRoom(ctx, &room); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return n, fmt.Errorf("room %s: %w", room.Number, err)
			}
			errs = append(errs, fmt.Errorf("room %s: %w", room.Number, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

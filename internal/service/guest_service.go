package service

import (
	"context"
	"fmt"
	"strings"

	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	"github.com/rs/zerolog"
)

type GuestService struct {
	repo   domain.GuestRepository
	logger *zerolog.Logger
}

func NewGuestService(repo domain.GuestRepository, logger *zerolog.Logger) *GuestService {
	return &GuestService{
		repo:   repo,
		logger: logger,
	}
}

func normalizeGuest(guest *models.Guest) error {
	guest.FullName = strings.TrimSpace(guest.FullName)
	guest.Email = strings.TrimSpace(guest.Email)
	guest.Phone = strings.TrimSpace(guest.Phone)
	if guest.FullName == "" {
		return fmt.Errorf("guest full name is required: %w", domain.ErrValidation)
	}
	if guest.Email != "" && !strings.Contains(guest.Email, "@") {
		return fmt.Errorf("guest email %q is malformed: %w", guest.Email, domain.ErrValidation)
	}
	return nil
}

func (s *GuestService) CreateGuest(ctx context.Context, guest *models.Guest) error {
	if err := normalizeGuest(guest); err != nil {
		return err
	}
	if err := s.repo.CreateGuest(ctx, guest); err != nil {
		return err
	}
	s.logger.Info().Int64("guest_id", guest.ID).Msg("guest created")
	return nil
}

func (s *GuestService) UpdateGuest(ctx context.Context, guest *models.Guest) error {
	if guest.ID == 0 {
		return fmt.Errorf("guest id is required: %w", domain.ErrValidation)
	}
	if err := normalizeGuest(guest); err != nil {
		return err
	}
	return s.repo.UpdateGuest(ctx, guest)
}

func (s *GuestService) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	return s.repo.GetGuest(ctx, id)
}

func (s *GuestService) ListGuests(ctx context.Context, search string) ([]*models.Guest, error) {
	return s.repo.ListGuests(ctx, strings.TrimSpace(search))
}

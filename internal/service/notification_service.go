package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"frontdesk/internal/events"
	"frontdesk/internal/models"

	"github.com/rs/zerolog"
)

var errNotificationQueueFull = errors.New("notification queue is full")

type notification struct {
	eventType string
	text      string
}

// NotificationService forwards notable front-desk events to the managers' Telegram chats.
// Bus handlers only queue the alert; Start delivers them off the request path.
type NotificationService struct {
	telegram *TelegramService
	chatIDs  []int64
	queue    chan notification
	logger   *zerolog.Logger
}

func NewNotificationService(telegram *TelegramService, chatIDs []int64, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{
		telegram: telegram,
		chatIDs:  chatIDs,
		queue:    make(chan notification, models.NotificationQueueSize),
		logger:   logger,
	}
}

// Start delivers queued alerts until ctx is done.
func (s *NotificationService) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.queue:
			_ = s.broadcast(n.eventType, n.text)
		}
	}
}

// Subscribe registers the handlers on the bus.
func (s *NotificationService) Subscribe(bus *events.EventBus) {
	for _, t := range []string{
		events.EventBookingCreated,
		events.EventBookingCancelled,
		events.EventBookingCheckedIn,
		events.EventBookingCheckedOut,
		events.EventBookingRescheduled,
	} {
		bus.Subscribe(t, s.handleBooking)
	}
	bus.Subscribe(events.EventBookingConflict, s.handleConflict)
	for _, t := range []string{
		events.EventPaymentApproved,
		events.EventPaymentRejected,
		events.EventPaymentRefunded,
	} {
		bus.Subscribe(t, s.handlePayment)
	}
}

func (s *NotificationService) handleBooking(event *events.Event) error {
	var p events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}
	body := fmt.Sprintf("Бронь #%d, номер %d\nс %s по %s\nСтатус: %s, оплата: %s\nСумма: %s",
		p.BookingID, p.RoomID, p.CheckIn, p.CheckOut,
		p.Status, p.PaymentStatus, p.TotalAmount.StringFixed(2))
	return s.enqueue(event.Type, body)
}

func (s *NotificationService) handleConflict(event *events.Event) error {
	var p events.ConflictEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}
	body := fmt.Sprintf("Номер %d занят с %s по %s (%s)", p.RoomID, p.CheckIn, p.CheckOut, p.Reason)
	return s.enqueue(event.Type, body)
}

func (s *NotificationService) handlePayment(event *events.Event) error {
	var p events.PaymentEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}
	var b strings.Builder
	if p.Reference != "" {
		fmt.Fprintf(&b, "Счёт %s\n", p.Reference)
	}
	if p.BookingID != 0 {
		fmt.Fprintf(&b, "Бронь #%d, оплата: %s\n", p.BookingID, p.PaymentStatus)
	}
	fmt.Fprintf(&b, "Сумма: %s", p.Amount.StringFixed(2))
	return s.enqueue(event.Type, b.String())
}

// enqueue never blocks the publisher: when delivery lags the alert is dropped and logged.
func (s *NotificationService) enqueue(eventType, body string) error {
	n := notification{
		eventType: eventType,
		text:      "*" + EscapeMarkdown(eventTitle(eventType)) + "*\n" + EscapeMarkdown(body),
	}
	select {
	case s.queue <- n:
		return nil
	default:
		s.logger.Warn().Str("event_type", eventType).Msg("notification queue is full, alert dropped")
		return errNotificationQueueFull
	}
}

func (s *NotificationService) broadcast(eventType, text string) error {
	var firstErr error
	for _, chatID := range s.chatIDs {
		if _, err := s.telegram.SendMarkdown(chatID, text); err != nil {
			s.logger.Error().Err(err).Int64("chat_id", chatID).Str("event_type", eventType).Msg("failed to notify manager")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func eventTitle(eventType string) string {
	switch eventType {
	case events.EventBookingCreated:
		return "Новая бронь"
	case events.EventBookingCancelled:
		return "Бронь отменена"
	case events.EventBookingCheckedIn:
		return "Гость заселён"
	case events.EventBookingCheckedOut:
		return "Гость выехал"
	case events.EventBookingRescheduled:
		return "Даты брони изменены"
	case events.EventBookingConflict:
		return "Конфликт брони"
	case events.EventPaymentApproved:
		return "Оплата подтверждена"
	case events.EventPaymentRejected:
		return "Оплата отклонена"
	case events.EventPaymentRefunded:
		return "Возврат оплаты"
	default:
		return eventType
	}
}

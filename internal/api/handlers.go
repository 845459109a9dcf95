package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/models"
	"frontdesk/internal/report"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type createBookingRequest struct {
	RoomID        int64  `json:"room_id"`
	GuestID       int64  `json:"guest_id"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`
}

type datesRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type totalRequest struct {
	Total decimal.Decimal `json:"total"`
}

type paymentRequest struct {
	BookingID *int64          `json:"booking_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
}

type occupancyRequest struct {
	Status string `json:"status"`
}

// Rooms

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.RoomFilter{Type: models.RoomType(q.Get("type"))}
	if raw := q.Get("status"); raw != "" {
		status, err := models.ParseRoomStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	from, to, err := queryRange(r, "from", "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from.IsZero() != to.IsZero() {
		writeError(w, http.StatusBadRequest, "from and to must be given together")
		return
	}
	filter.FreeFrom, filter.FreeTo = from, to

	rooms, err := s.deps.Rooms.ListRooms(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *HTTPServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var room models.Room
	if err := decodeJSON(r, &room); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Rooms.CreateRoom(r.Context(), &room); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *HTTPServer) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	room, err := s.deps.Rooms.GetRoom(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *HTTPServer) handleSetOccupancy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body occupancyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := models.ParseRoomStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	room, err := s.deps.Rooms.SetOccupancy(r.Context(), id, status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Guests

func (s *HTTPServer) handleListGuests(w http.ResponseWriter, r *http.Request) {
	guests, err := s.deps.Guests.ListGuests(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guests": guests})
}

func (s *HTTPServer) handleCreateGuest(w http.ResponseWriter, r *http.Request) {
	var guest models.Guest
	if err := decodeJSON(r, &guest); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Guests.CreateGuest(r.Context(), &guest); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, guest)
}

func (s *HTTPServer) handleGetGuest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	guest, err := s.deps.Guests.GetGuest(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

func (s *HTTPServer) handleUpdateGuest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var guest models.Guest
	if err := decodeJSON(r, &guest); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	guest.ID = id
	if err := s.deps.Guests.UpdateGuest(r.Context(), &guest); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

// Availability and quotes

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	roomID, checkIn, checkOut, ok := stayQuery(w, r)
	if !ok {
		return
	}

	var exclude int64
	if raw := r.URL.Query().Get("exclude_booking_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid exclude_booking_id")
			return
		}
		exclude = v
	}

	available, err := s.deps.Bookings.IsAvailable(r.Context(), roomID, checkIn, checkOut, exclude)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":   roomID,
		"check_in":  checkIn.Format(models.DateLayout),
		"check_out": checkOut.Format(models.DateLayout),
		"available": available,
	})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	roomID, checkIn, checkOut, ok := stayQuery(w, r)
	if !ok {
		return
	}
	quote, err := s.deps.Bookings.Quote(r.Context(), roomID, checkIn, checkOut)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Bookings

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter models.BookingFilter

	var err error
	if filter.RoomID, err = queryInt(q.Get("room_id")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid room_id")
		return
	}
	if filter.GuestID, err = queryInt(q.Get("guest_id")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid guest_id")
		return
	}
	for _, raw := range splitCSV(q.Get("status")) {
		status, err := models.ParseBookingStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if filter.From, filter.To, err = queryRange(r, "from", "to"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := s.deps.Bookings.ListBookings(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	checkIn, checkOut, err := parseStay(body.CheckIn, body.CheckOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := models.CreateBookingRequest{
		RoomID:        body.RoomID,
		GuestID:       body.GuestID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		PaymentMethod: body.PaymentMethod,
		Notes:         body.Notes,
	}
	if body.PaymentStatus != "" {
		if req.PaymentStatus, err = models.ParsePaymentStatus(body.PaymentStatus); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	booking, err := s.deps.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var (
		booking *models.Booking
		err     error
	)
	switch r.PathValue("action") {
	case "confirm":
		booking, err = s.deps.Bookings.Confirm(r.Context(), id)
	case "check-in":
		booking, err = s.deps.Bookings.CheckIn(r.Context(), id)
	case "check-out":
		booking, err = s.deps.Bookings.CheckOut(r.Context(), id)
	case "cancel":
		booking, err = s.deps.Bookings.Cancel(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "unknown booking action")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body datesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	checkIn, checkOut, err := parseStay(body.CheckIn, body.CheckOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.deps.Bookings.Reschedule(r.Context(), id, checkIn, checkOut)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateTotal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body totalRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.deps.Bookings.UpdateTotal(r.Context(), id, body.Total)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txs, err := s.deps.Payments.ListTransactions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *HTTPServer) handleBookingReconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.reconcile(w, r, models.PaymentRef{BookingID: id})
}

// Payments

func (s *HTTPServer) handleListPayments(w http.ResponseWriter, r *http.Request) {
	bookingID, err := queryInt(r.URL.Query().Get("booking_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking_id")
		return
	}
	txs, err := s.deps.Payments.ListTransactions(r.Context(), bookingID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *HTTPServer) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var body paymentRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.BookingID == nil {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	tx, err := s.deps.Payments.RecordPayment(r.Context(), *body.BookingID, body.Amount, body.Method)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *HTTPServer) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var body paymentRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := s.deps.Payments.GenerateInvoice(r.Context(), body.BookingID, body.Amount, body.Method)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *HTTPServer) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := s.deps.Payments.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *HTTPServer) handleTransactionReconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.reconcile(w, r, models.PaymentRef{TransactionID: id})
}

func (s *HTTPServer) reconcile(w http.ResponseWriter, r *http.Request, ref models.PaymentRef) {
	var (
		result *models.ReconciliationResult
		err    error
	)
	switch r.PathValue("action") {
	case "approve":
		result, err = s.deps.Payments.Approve(r.Context(), ref)
	case "reject":
		result, err = s.deps.Payments.Reject(r.Context(), ref)
	case "refund":
		result, err = s.deps.Payments.Refund(r.Context(), ref)
	default:
		writeError(w, http.StatusNotFound, "unknown payment action")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Audits, reports, sync

func (s *HTTPServer) handleAuditOverlaps(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.deps.Bookings.AuditOverlaps(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if pairs == nil {
		pairs = []models.OverlapPair{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"overlaps": pairs})
}

func (s *HTTPServer) handleAuditPayments(w http.ResponseWriter, r *http.Request) {
	mismatches, err := s.deps.Payments.AuditPayments(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if mismatches == nil {
		mismatches = []models.PaymentMismatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mismatches": mismatches})
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		writeError(w, http.StatusServiceUnavailable, "reports are not configured")
		return
	}
	from, to, err := queryRange(r, "from", "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from.IsZero() || to.IsZero() {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	var buf bytes.Buffer
	if err := s.deps.Reports.Write(r.Context(), &buf, from, to); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleFullSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sheets sync is not configured")
		return
	}
	if err := s.deps.Sync.EnqueueFullSync(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Helpers

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// errorStatus maps engine errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// queryRange parses two optional YYYY-MM-DD query parameters.
func queryRange(r *http.Request, fromKey, toKey string) (from, to time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get(fromKey); raw != "" {
		if from, err = models.ParseDate(raw); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid %s; expected YYYY-MM-DD", fromKey)
		}
	}
	if raw := q.Get(toKey); raw != "" {
		if to, err = models.ParseDate(raw); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid %s; expected YYYY-MM-DD", toKey)
		}
	}
	return from, to, nil
}

func parseStay(rawIn, rawOut string) (time.Time, time.Time, error) {
	checkIn, err := models.ParseDate(strings.TrimSpace(rawIn))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid check_in; expected YYYY-MM-DD")
	}
	checkOut, err := models.ParseDate(strings.TrimSpace(rawOut))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid check_out; expected YYYY-MM-DD")
	}
	return checkIn, checkOut, nil
}

// stayQuery reads room_id, check_in and check_out, answering 400 itself when they are malformed.
func stayQuery(w http.ResponseWriter, r *http.Request) (int64, time.Time, time.Time, bool) {
	q := r.URL.Query()
	roomID, err := queryInt(q.Get("room_id"))
	if err != nil || roomID <= 0 {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return 0, time.Time{}, time.Time{}, false
	}
	checkIn, checkOut, err := parseStay(q.Get("check_in"), q.Get("check_out"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, time.Time{}, time.Time{}, false
	}
	return roomID, checkIn, checkOut, true
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

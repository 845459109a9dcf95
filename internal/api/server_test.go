package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"frontdesk/internal/config"
	"frontdesk/internal/database"
	"frontdesk/internal/domain"
	"frontdesk/internal/events"
	"frontdesk/internal/models"
	"frontdesk/internal/report"
	"frontdesk/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeSyncer struct {
	calls int
	err   error
}

func (f *fakeSyncer) EnqueueFullSync(context.Context) error {
	f.calls++
	return f.err
}

type apiFixture struct {
	db     *database.DB
	server *HTTPServer
	ts     *httptest.Server
	room   *models.Room
	guest  *models.Guest
	sync   *fakeSyncer
}

func defaultAPIConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
		Auth:    config.APIAuthConfig{Enabled: false},
	}
}

func newAPIFixture(t *testing.T, cfg *config.APIConfig) *apiFixture {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewEventBus()
	rooms := service.NewRoomService(db, bus, &logger)
	guests := service.NewGuestService(db, &logger)
	bookings := service.NewBookingService(db, nil, rooms, bus, nil, service.BookingOptions{}, &logger)
	payments := service.NewPaymentService(db, bus, nil, &logger)

	fx := &apiFixture{db: db, sync: &fakeSyncer{}}
	fx.server = NewHTTPServer(cfg, Dependencies{
		DB:       db,
		Rooms:    rooms,
		Guests:   guests,
		Bookings: bookings,
		Payments: payments,
		Reports:  report.NewExporter(db, t.TempDir(), &logger),
		Sync:     fx.sync,
	}, &logger)
	fx.ts = httptest.NewServer(fx.server.Handler())
	t.Cleanup(fx.ts.Close)

	ctx := context.Background()
	fx.room = &models.Room{Number: "101", Type: models.RoomDouble, NightlyRate: decimal.RequireFromString("150.00")}
	require.NoError(t, rooms.CreateRoom(ctx, fx.room))
	fx.guest = &models.Guest{FullName: "Ann Smith"}
	require.NoError(t, guests.CreateGuest(ctx, fx.guest))
	return fx
}

// call sends body as JSON and decodes a JSON response into out when out is not nil.
func (fx *apiFixture) call(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, fx.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (fx *apiFixture) book(t *testing.T, in, out string) (*models.Booking, int) {
	t.Helper()
	var booking models.Booking
	status := fx.call(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"room_id":   fx.room.ID,
		"guest_id":  fx.guest.ID,
		"check_in":  in,
		"check_out": out,
	}, &booking)
	return &booking, status
}

func TestHealthz(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	resp, err := http.Get(fx.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestReadyz(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	resp, err := http.Get(fx.ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestReadyz_DBFail(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())
	_ = fx.db.Close()

	resp, err := http.Get(fx.ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestBookingLifecycle(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	booking, status := fx.book(t, "2026-06-10", "2026-06-12")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.BookingPending, booking.Status)
	assert.True(t, booking.TotalAmount.Equal(decimal.NewFromInt(300)), booking.TotalAmount.String())

	_, status = fx.book(t, "2026-06-11", "2026-06-13")
	assert.Equal(t, http.StatusConflict, status)

	// check-out day is free for the next arrival
	_, status = fx.book(t, "2026-06-12", "2026-06-13")
	assert.Equal(t, http.StatusCreated, status)

	t.Run("Availability", func(t *testing.T) {
		var body struct {
			Available bool `json:"available"`
		}
		path := fmt.Sprintf("/api/v1/availability?room_id=%d&check_in=2026-06-10&check_out=2026-06-12", fx.room.ID)
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, path, nil, &body))
		assert.False(t, body.Available)

		path += fmt.Sprintf("&exclude_booking_id=%d", booking.ID)
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, path, nil, &body))
		assert.True(t, body.Available)
	})

	t.Run("Quote", func(t *testing.T) {
		var quote models.Quote
		path := fmt.Sprintf("/api/v1/quote?room_id=%d&check_in=2026-07-01&check_out=2026-07-04", fx.room.ID)
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, path, nil, &quote))
		assert.True(t, quote.Available)
		assert.Equal(t, 3, quote.Nights)
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(450)), quote.Total.String())
	})

	t.Run("Transitions", func(t *testing.T) {
		base := fmt.Sprintf("/api/v1/bookings/%d/", booking.ID)
		var got models.Booking

		require.Equal(t, http.StatusOK, fx.call(t, http.MethodPost, base+"confirm", nil, &got))
		assert.Equal(t, models.BookingConfirmed, got.Status)
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodPost, base+"check-in", nil, &got))
		assert.Equal(t, models.BookingCheckedIn, got.Status)
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodPost, base+"check-out", nil, &got))
		assert.Equal(t, models.BookingCheckedOut, got.Status)

		assert.Equal(t, http.StatusUnprocessableEntity, fx.call(t, http.MethodPost, base+"cancel", nil, nil))
		assert.Equal(t, http.StatusNotFound, fx.call(t, http.MethodPost, base+"teleport", nil, nil))

		var room models.Room
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, fmt.Sprintf("/api/v1/rooms/%d", fx.room.ID), nil, &room))
		assert.Equal(t, models.RoomCleaning, room.Status)
	})

	t.Run("List", func(t *testing.T) {
		var body struct {
			Bookings []models.Booking `json:"bookings"`
		}
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, "/api/v1/bookings?status=pending", nil, &body))
		require.Len(t, body.Bookings, 1)
		assert.Equal(t, "2026-06-12", body.Bookings[0].CheckIn.Format(models.DateLayout))

		assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodGet, "/api/v1/bookings?status=lost", nil, nil))
	})
}

func TestRescheduleAndTotal(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	booking, status := fx.book(t, "2026-06-10", "2026-06-12")
	require.Equal(t, http.StatusCreated, status)
	other, status := fx.book(t, "2026-06-20", "2026-06-22")
	require.Equal(t, http.StatusCreated, status)

	var got models.Booking
	path := fmt.Sprintf("/api/v1/bookings/%d/dates", booking.ID)
	require.Equal(t, http.StatusOK, fx.call(t, http.MethodPut, path,
		map[string]string{"check_in": "2026-06-11", "check_out": "2026-06-14"}, &got))
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(450)), got.TotalAmount.String())

	assert.Equal(t, http.StatusConflict, fx.call(t, http.MethodPut, path,
		map[string]string{"check_in": "2026-06-19", "check_out": "2026-06-21"}, nil))
	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodPut, path,
		map[string]string{"check_in": "2026-06-21", "check_out": "2026-06-19"}, nil))

	path = fmt.Sprintf("/api/v1/bookings/%d/total", other.ID)
	require.Equal(t, http.StatusOK, fx.call(t, http.MethodPut, path, map[string]string{"total": "250.555"}, &got))
	assert.Equal(t, "250.56", got.TotalAmount.StringFixed(2))
	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodPut, path, map[string]string{"total": "-1"}, nil))
}

func TestCreateBookingValidation(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"BadDate", map[string]any{"room_id": fx.room.ID, "guest_id": fx.guest.ID, "check_in": "10.06.2026", "check_out": "2026-06-12"}, http.StatusBadRequest},
		{"Inverted", map[string]any{"room_id": fx.room.ID, "guest_id": fx.guest.ID, "check_in": "2026-06-12", "check_out": "2026-06-10"}, http.StatusBadRequest},
		{"SameDay", map[string]any{"room_id": fx.room.ID, "guest_id": fx.guest.ID, "check_in": "2026-06-12", "check_out": "2026-06-12"}, http.StatusBadRequest},
		{"UnknownRoom", map[string]any{"room_id": 999, "guest_id": fx.guest.ID, "check_in": "2026-06-10", "check_out": "2026-06-12"}, http.StatusNotFound},
		{"UnknownGuest", map[string]any{"room_id": fx.room.ID, "guest_id": 999, "check_in": "2026-06-10", "check_out": "2026-06-12"}, http.StatusNotFound},
		{"PaidUpFront", map[string]any{"room_id": fx.room.ID, "guest_id": fx.guest.ID, "check_in": "2026-06-10", "check_out": "2026-06-12", "payment_status": "paid"}, http.StatusBadRequest},
		{"UnknownField", map[string]any{"room": fx.room.ID}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fx.call(t, http.MethodPost, "/api/v1/bookings", tt.body, nil))
		})
	}

	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodGet, "/api/v1/bookings/abc", nil, nil))
	assert.Equal(t, http.StatusNotFound, fx.call(t, http.MethodGet, "/api/v1/bookings/42", nil, nil))
}

func TestPaymentReconciliation(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	booking, status := fx.book(t, "2026-06-10", "2026-06-12")
	require.Equal(t, http.StatusCreated, status)

	var tx models.PaymentTransaction
	require.Equal(t, http.StatusCreated, fx.call(t, http.MethodPost, "/api/v1/payments",
		map[string]any{"booking_id": booking.ID, "amount": "300", "method": "card"}, &tx))
	assert.Equal(t, models.TransactionProcessing, tx.Status)

	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodPost, "/api/v1/payments",
		map[string]any{"amount": "300", "method": "card"}, nil))
	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodPost, "/api/v1/payments",
		map[string]any{"booking_id": booking.ID, "amount": "-5", "method": "card"}, nil))

	var result models.ReconciliationResult
	require.Equal(t, http.StatusOK, fx.call(t, http.MethodPost, fmt.Sprintf("/api/v1/payments/%d/approve", tx.ID), nil, &result))
	require.NotNil(t, result.Transaction)
	require.NotNil(t, result.Booking)
	assert.Equal(t, models.TransactionApproved, result.Transaction.Status)
	assert.Equal(t, models.PaymentPaid, result.Booking.PaymentStatus)
	assert.Equal(t, models.BookingConfirmed, result.Booking.Status)

	assert.Equal(t, http.StatusUnprocessableEntity,
		fx.call(t, http.MethodPost, fmt.Sprintf("/api/v1/payments/%d/reject", tx.ID), nil, nil))

	result = models.ReconciliationResult{}
	require.Equal(t, http.StatusOK,
		fx.call(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/payment/refund", booking.ID), nil, &result))
	assert.Equal(t, models.TransactionRefunded, result.Transaction.Status)
	assert.Equal(t, models.PaymentRefunded, result.Booking.PaymentStatus)

	assert.Equal(t, http.StatusUnprocessableEntity,
		fx.call(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/payment/refund", booking.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound,
		fx.call(t, http.MethodPost, fmt.Sprintf("/api/v1/payments/%d/chargeback", tx.ID), nil, nil))

	var list struct {
		Transactions []models.PaymentTransaction `json:"transactions"`
	}
	require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d/payments", booking.ID), nil, &list))
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, models.TransactionRefunded, list.Transactions[0].Status)

	t.Run("StandaloneInvoice", func(t *testing.T) {
		var invoice models.PaymentTransaction
		require.Equal(t, http.StatusCreated, fx.call(t, http.MethodPost, "/api/v1/invoices",
			map[string]any{"amount": "19.999", "method": "cash"}, &invoice))
		assert.Nil(t, invoice.BookingID)
		assert.Equal(t, "20.00", invoice.Amount.StringFixed(2))

		var got models.PaymentTransaction
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, fmt.Sprintf("/api/v1/payments/%d", invoice.ID), nil, &got))
		assert.Equal(t, invoice.Reference, got.Reference)
	})

	t.Run("Audits", func(t *testing.T) {
		var overlaps struct {
			Overlaps []models.OverlapPair `json:"overlaps"`
		}
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, "/api/v1/audits/overlaps", nil, &overlaps))
		assert.Empty(t, overlaps.Overlaps)

		var mismatches struct {
			Mismatches []models.PaymentMismatch `json:"mismatches"`
		}
		require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, "/api/v1/audits/payments", nil, &mismatches))
		assert.Empty(t, mismatches.Mismatches)
	})
}

func TestRoomsAndGuests(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	var room models.Room
	require.Equal(t, http.StatusCreated, fx.call(t, http.MethodPost, "/api/v1/rooms",
		map[string]any{"number": "102", "type": "suite", "nightly_rate": "320.00", "floor": 1}, &room))
	assert.Equal(t, models.RoomAvailable, room.Status)

	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodPost, "/api/v1/rooms",
		map[string]any{"number": "103", "type": "penthouse", "nightly_rate": "100"}, nil))

	_, status := fx.book(t, "2026-06-10", "2026-06-12")
	require.Equal(t, http.StatusCreated, status)

	var rooms struct {
		Rooms []models.Room `json:"rooms"`
	}
	require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, "/api/v1/rooms?from=2026-06-11&to=2026-06-12", nil, &rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "102", rooms.Rooms[0].Number)
	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodGet, "/api/v1/rooms?from=2026-06-11", nil, nil))

	path := fmt.Sprintf("/api/v1/rooms/%d/status", room.ID)
	require.Equal(t, http.StatusOK, fx.call(t, http.MethodPut, path, map[string]string{"status": "cleaning"}, &room))
	assert.Equal(t, models.RoomCleaning, room.Status)
	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodPut, path, map[string]string{"status": "flooded"}, nil))

	var guest models.Guest
	require.Equal(t, http.StatusCreated, fx.call(t, http.MethodPost, "/api/v1/guests",
		map[string]any{"full_name": "Bob Stone", "phone": "+100"}, &guest))
	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodPost, "/api/v1/guests", map[string]any{"full_name": " "}, nil))

	var guests struct {
		Guests []models.Guest `json:"guests"`
	}
	require.Equal(t, http.StatusOK, fx.call(t, http.MethodGet, "/api/v1/guests?search=Stone", nil, &guests))
	require.Len(t, guests.Guests, 1)
	assert.Equal(t, guest.ID, guests.Guests[0].ID)

	require.Equal(t, http.StatusOK, fx.call(t, http.MethodPut, fmt.Sprintf("/api/v1/guests/%d", guest.ID),
		map[string]any{"full_name": "Robert Stone", "phone": "+100"}, &guest))
	assert.Equal(t, "Robert Stone", guest.FullName)
	assert.Equal(t, http.StatusNotFound, fx.call(t, http.MethodGet, "/api/v1/guests/999", nil, nil))
}

func TestReportEndpoint(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())
	_, status := fx.book(t, "2026-06-10", "2026-06-12")
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, http.StatusBadRequest, fx.call(t, http.MethodGet, "/api/v1/reports/bookings.xlsx?from=2026-06-01", nil, nil))
	assert.Equal(t, http.StatusBadRequest,
		fx.call(t, http.MethodGet, "/api/v1/reports/bookings.xlsx?from=2026-06-30&to=2026-06-01", nil, nil))

	resp, err := http.Get(fx.ts.URL + "/api/v1/reports/bookings.xlsx?from=2026-06-01&to=2026-06-30")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "export_2026-06-01_to_2026-06-30.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	guest, err := f.GetCellValue("Брони", "C3")
	require.NoError(t, err)
	assert.Equal(t, "Ann Smith", guest)
}

func TestFullSync(t *testing.T) {
	fx := newAPIFixture(t, defaultAPIConfig())

	assert.Equal(t, http.StatusAccepted, fx.call(t, http.MethodPost, "/api/v1/sync/sheets", nil, nil))
	assert.Equal(t, 1, fx.sync.calls)

	fx.sync.err = fmt.Errorf("queue: %w", domain.ErrStorageUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, fx.call(t, http.MethodPost, "/api/v1/sync/sheets", nil, nil))
}

func TestOptionalDependencies(t *testing.T) {
	server := NewHTTPServer(defaultAPIConfig(), Dependencies{}, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/sync/sheets"},
		{http.MethodGet, "/api/v1/reports/bookings.xlsx?from=2026-06-01&to=2026-06-30"},
	} {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, http.NoBody)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", domain.ErrConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", domain.ErrConcurrentModification), http.StatusConflict},
		{fmt.Errorf("x: %w", domain.ErrInvalidTransition), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", domain.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestHTTPServer_Shutdown(t *testing.T) {
	server := NewHTTPServer(defaultAPIConfig(), Dependencies{}, nil)
	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown unstarted server: %v", err)
	}
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"pending", "confirmed"}, splitCSV(" pending, ,confirmed "))
}

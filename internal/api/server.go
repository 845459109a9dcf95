package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"frontdesk/internal/config"
	"frontdesk/internal/domain"
	"frontdesk/internal/metrics"

	"github.com/rs/zerolog"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ReportWriter streams an XLSX report for a period.
type ReportWriter interface {
	Write(ctx context.Context, w io.Writer, startDate, endDate time.Time) error
}

// FullSyncer rebuilds the bookings mirror from storage.
type FullSyncer interface {
	EnqueueFullSync(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP API serves. Reports and Sync may be nil.
type Dependencies struct {
	DB       Pinger
	Rooms    domain.RoomService
	Guests   domain.GuestService
	Bookings domain.BookingService
	Payments domain.PaymentService
	Reports  ReportWriter
	Sync     FullSyncer
}

// HTTPServer exposes the front-desk engine as a JSON API.
type HTTPServer struct {
	cfg    *config.APIConfig
	deps   Dependencies
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Dependencies, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	srv.routes(mux)

	handler := requestIDMiddleware(loggingMiddleware(srv.logger, corsMiddleware(srv.auth.Wrap(mux))))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	s.handle(mux, "GET /api/v1/rooms", s.handleListRooms)
	s.handle(mux, "POST /api/v1/rooms", s.handleCreateRoom)
	s.handle(mux, "GET /api/v1/rooms/{id}", s.handleGetRoom)
	s.handle(mux, "PUT /api/v1/rooms/{id}/status", s.handleSetOccupancy)

	s.handle(mux, "GET /api/v1/guests", s.handleListGuests)
	s.handle(mux, "POST /api/v1/guests", s.handleCreateGuest)
	s.handle(mux, "GET /api/v1/guests/{id}", s.handleGetGuest)
	s.handle(mux, "PUT /api/v1/guests/{id}", s.handleUpdateGuest)

	s.handle(mux, "GET /api/v1/availability", s.handleAvailability)
	s.handle(mux, "GET /api/v1/quote", s.handleQuote)

	s.handle(mux, "GET /api/v1/bookings", s.handleListBookings)
	s.handle(mux, "POST /api/v1/bookings", s.handleCreateBooking)
	s.handle(mux, "GET /api/v1/bookings/{id}", s.handleGetBooking)
	s.handle(mux, "POST /api/v1/bookings/{id}/{action}", s.handleBookingAction)
	s.handle(mux, "PUT /api/v1/bookings/{id}/dates", s.handleReschedule)
	s.handle(mux, "PUT /api/v1/bookings/{id}/total", s.handleUpdateTotal)
	s.handle(mux, "GET /api/v1/bookings/{id}/payments", s.handleBookingPayments)
	s.handle(mux, "POST /api/v1/bookings/{id}/payment/{action}", s.handleBookingReconcile)

	s.handle(mux, "GET /api/v1/payments", s.handleListPayments)
	s.handle(mux, "POST /api/v1/payments", s.handleRecordPayment)
	s.handle(mux, "POST /api/v1/invoices", s.handleGenerateInvoice)
	s.handle(mux, "GET /api/v1/payments/{id}", s.handleGetPayment)
	s.handle(mux, "POST /api/v1/payments/{id}/{action}", s.handleTransactionReconcile)

	s.handle(mux, "GET /api/v1/audits/overlaps", s.handleAuditOverlaps)
	s.handle(mux, "GET /api/v1/audits/payments", s.handleAuditPayments)

	s.handle(mux, "GET /api/v1/reports/bookings.xlsx", s.handleReport)
	s.handle(mux, "POST /api/v1/sync/sheets", s.handleFullSync)
}

// handle registers h and counts requests per route pattern.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.DB.PingContext(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/export"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking service over HTTP. Admin-gated operations
// require a key carrying the admin permission.
type HTTPServer struct {
	cfg      *config.Config
	svc      *service.BookingService
	exporter *export.Exporter
	server   *http.Server
	auth     *HTTPAuth
	log      zerolog.Logger
}

func NewHTTPServer(cfg *config.Config, svc *service.BookingService, exporter *export.Exporter, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		exporter: exporter,
		auth:     NewHTTPAuth(&cfg.API),
		log:      logger.With().Str("component", "http").Logger(),
	}

	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	mux.HandleFunc("/api/v1/schedules", srv.handleSchedules)
	mux.HandleFunc("/api/v1/schedules/", srv.handleScheduleByID)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// Handler returns the configured root handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// POST /api/v1/bookings       reserve a seat
// GET  /api/v1/bookings       list bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	switch r.Method {
	case http.MethodPost:
		s.handleReserve(w, r)
	case http.MethodGet:
		s.handleListBookings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduleID string `json:"schedule_id"`
		UserID     string `json:"user_id"`
		UserName   string `json:"user_name"`
		UserPhone  string `json:"user_phone"`
		Remark     string `json:"remark"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	booking, err := s.svc.Reserve(r.Context(), service.ReserveRequest{
		ScheduleID: req.ScheduleID,
		UserID:     req.UserID,
		UserName:   req.UserName,
		UserPhone:  req.UserPhone,
		Remark:     req.Remark,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := s.svc.ListBookings(r.Context(), models.BookingFilter{
		ScheduleID: q.Get("schedule_id"),
		UserID:     q.Get("user_id"),
		Status:     q.Get("status"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/v1/bookings/{id}/cancel
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking")
	id, action := splitResourcePath(r.URL.Path, "/api/v1/bookings/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleCancelBooking(w, r, id)
	case action == "" && r.Method == http.MethodGet:
		booking, err := s.svc.GetBooking(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	client, _ := ClientFromContext(r.Context())
	if err := s.svc.Cancel(r.Context(), id, req.UserID, client.IsAdmin); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// POST /api/v1/schedules      create a schedule (admin)
// GET  /api/v1/schedules      list schedules
func (s *HTTPServer) handleSchedules(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedules")
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSchedule(w, r)
	case http.MethodGet:
		s.handleListSchedules(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CourseID    string `json:"course_id"`
		CoachID     string `json:"coach_id"`
		Date        string `json:"date"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
		MaxCapacity int    `json:"max_capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	client, _ := ClientFromContext(r.Context())
	schedule, err := s.svc.CreateSchedule(r.Context(), service.CreateScheduleRequest{
		CourseID:    req.CourseID,
		CoachID:     req.CoachID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxCapacity: req.MaxCapacity,
	}, client.IsAdmin)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, schedule)
}

func (s *HTTPServer) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	schedules, err := s.svc.ListSchedules(r.Context(), models.ScheduleFilter{
		CourseID: q.Get("course_id"),
		CoachID:  q.Get("coach_id"),
		Date:     q.Get("date"),
		Status:   q.Get("status"),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	type scheduleView struct {
		*models.Schedule
		AvailableSeats int `json:"available_seats"`
	}
	views := make([]scheduleView, 0, len(schedules))
	for _, schedule := range schedules {
		views = append(views, scheduleView{Schedule: schedule, AvailableSeats: schedule.AvailableSeats()})
	}
	writeJSON(w, http.StatusOK, views)
}

// GET  /api/v1/schedules/{id}/availability
// POST /api/v1/schedules/{id}/cancel       (admin)
func (s *HTTPServer) handleScheduleByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule")
	id, action := splitResourcePath(r.URL.Path, "/api/v1/schedules/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "availability" && r.Method == http.MethodGet:
		availability, err := s.svc.GetAvailability(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, availability)
	case action == "cancel" && r.Method == http.MethodPost:
		client, _ := ClientFromContext(r.Context())
		if err := s.svc.CancelSchedule(r.Context(), id, client.IsAdmin); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/v1/export?start=YYYY-MM-DD&end=YYYY-MM-DD (admin)
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	client, _ := ClientFromContext(r.Context())
	if !client.IsAdmin {
		writeError(w, http.StatusForbidden, "admin permission required")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	path, err := s.exporter.ExportBookings(r.Context(), r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": path})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// writeServiceError maps the typed service errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrScheduleNotFound), errors.Is(err, domain.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded), errors.Is(err, domain.ErrDuplicateBooking):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrScheduleCancelled), errors.Is(err, domain.ErrBookingCancelled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrCancelWindowClosed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidScheduleTime):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// splitResourcePath extracts "{id}" and the optional trailing "{action}"
// from paths like prefix + "{id}/{action}".
func splitResourcePath(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return "", ""
	}
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// Package api exposes the reservation engine over HTTP for venue dashboards
// and customer apps.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mesto/internal/config"
	"mesto/internal/database"
	"mesto/internal/engine"
	"mesto/internal/export"
	"mesto/internal/metrics"
	"mesto/internal/models"
	"mesto/internal/realtime"
)

type HTTPServer struct {
	cfg      config.APIConfig
	engine   *engine.Service
	exporter *export.Exporter
	minter   *realtime.Minter
	hub      *realtime.Hub
	logger   *zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, eng *engine.Service, exporter *export.Exporter, minter *realtime.Minter, hub *realtime.Hub, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, engine: eng, exporter: exporter, minter: minter, hub: hub, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/reservations", srv.handleReservations)
	mux.HandleFunc("/api/v1/reservations/", srv.handleReservation)
	mux.HandleFunc("/api/v1/venues/", srv.handleVenue)
	mux.HandleFunc("/api/v1/ws/token", srv.handleWSToken)
	mux.HandleFunc("/api/v1/ws/stream", srv.handleStream)
	mux.HandleFunc("/api/v1/payments/webhook", srv.handlePaymentWebhook)
	mux.HandleFunc("/healthz", srv.handleHealthz)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
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
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
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

// actorFrom reads the acting identity from request headers. Role defaults to
// customer; the webhook and system paths never call this.
func actorFrom(r *http.Request) models.Actor {
	actor := models.Actor{
		ID:   strings.TrimSpace(r.Header.Get("x-actor-id")),
		Name: strings.TrimSpace(r.Header.Get("x-actor-name")),
		Role: models.ActorRole(strings.TrimSpace(strings.ToLower(r.Header.Get("x-actor-role")))),
	}
	switch actor.Role {
	case models.RoleOwner, models.RoleEmployee, models.RoleCustomer:
	default:
		actor.Role = models.RoleCustomer
	}
	return actor
}

func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listReservations(w, r)
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req engine.BookRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	actor := actorFrom(r)
	if req.ClientID == "" {
		req.ClientID = actor.ID
	}

	result, err := s.engine.Book(r.Context(), actor, req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// listReservations returns the acting customer's own history; staff may ask
// for any client with the client_id parameter.
func (s *HTTPServer) listReservations(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	clientID := actor.ID
	if requested := strings.TrimSpace(r.URL.Query().Get("client_id")); requested != "" {
		if !actor.Staff() && requested != actor.ID {
			writeError(w, http.StatusForbidden, "client history belongs to another client")
			return
		}
		clientID = requested
	}
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	reservations, err := s.engine.ByClient(r.Context(), clientID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if reservations == nil {
		reservations = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *HTTPServer) handleReservation(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/reservations/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "reservation id is required")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		reservation, err := s.engine.Get(r.Context(), id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reservation)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	actor := actorFrom(r)
	var (
		reservation *models.Reservation
		err         error
	)
	switch action {
	case "accept":
		reservation, err = s.engine.Accept(r.Context(), actor, id)
	case "decline":
		var body struct {
			Comment string `json:"comment"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		reservation, err = s.engine.Decline(r.Context(), actor, id, body.Comment)
	case "start":
		reservation, err = s.engine.Start(r.Context(), actor, id)
	case "complete":
		reservation, err = s.engine.Complete(r.Context(), actor, id)
	case "cancel":
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		reservation, err = s.engine.Cancel(r.Context(), actor, id, body.Reason)
	case "update":
		var req engine.UpdateRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		reservation, err = s.engine.Update(r.Context(), actor, id, req)
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (s *HTTPServer) handleVenue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/venues/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	venueID, resource, _ := strings.Cut(rest, "/")
	if venueID == "" {
		writeError(w, http.StatusBadRequest, "venue id is required")
		return
	}

	if resource == "clients" {
		s.clientStats(w, r, venueID)
		return
	}

	day, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch resource {
	case "grid":
		reservations, err := s.engine.Grid(r.Context(), venueID, day)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		if reservations == nil {
			reservations = []models.Reservation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
	case "export":
		filePath, err := s.exporter.ExportDay(r.Context(), venueID, day)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "venue not found")
				return
			}
			s.logger.Error().Err(err).Str("venue_id", venueID).Msg("export failed")
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", filepath.Base(filePath)))
		http.ServeFile(w, r, filePath)
		_ = os.Remove(filePath)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// clientStats gives staff the guest's visit counters for the hostess view.
func (s *HTTPServer) clientStats(w http.ResponseWriter, r *http.Request, venueID string) {
	if !actorFrom(r).Staff() {
		writeError(w, http.StatusForbidden, "staff only")
		return
	}
	clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	counters, err := s.engine.ClientStats(r.Context(), venueID, clientID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if counters == nil {
		counters = []models.RatingCounter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"counters": counters})
}

func (s *HTTPServer) handleWSToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		VenueID string `json:"venue_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.VenueID == "" {
		writeError(w, http.StatusBadRequest, "venue_id is required")
		return
	}

	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, http.StatusBadRequest, "x-actor-id header is required")
		return
	}

	token, err := s.minter.Mint(r.Context(), actor, body.VenueID)
	if err != nil {
		s.logger.Error().Err(err).Msg("token mint failed")
		writeError(w, http.StatusInternalServerError, "token mint failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handlePaymentWebhook receives the gateway's asynchronous checkout outcome.
func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ReservationID string `json:"reservation_id"`
		Status        string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ReservationID == "" {
		writeError(w, http.StatusBadRequest, "reservation_id is required")
		return
	}

	reservation, err := s.engine.ConfirmPayment(r.Context(), body.ReservationID, body.Status == "successful")
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	day, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	return day, nil
}

func (s *HTTPServer) writeEngineError(w http.ResponseWriter, err error) {
	code := engine.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case engine.CodeInvalidTime:
		status = http.StatusUnprocessableEntity
	case engine.CodeConflict, engine.CodeInvalidTransition:
		status = http.StatusConflict
	case engine.CodeNotFound:
		status = http.StatusNotFound
	case engine.CodeForbidden:
		status = http.StatusForbidden
	case engine.CodeVenueUnavailable, engine.CodeGatewayUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(routeLabel(r.URL.Path))
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// routeLabel collapses resource ids so the metric label set stays bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/reservations/"):
		rest := strings.TrimPrefix(path, "/api/v1/reservations/")
		if _, action, ok := strings.Cut(rest, "/"); ok && action != "" {
			return "/api/v1/reservations/:id/" + action
		}
		return "/api/v1/reservations/:id"
	case strings.HasPrefix(path, "/api/v1/venues/"):
		rest := strings.TrimPrefix(path, "/api/v1/venues/")
		if _, resource, ok := strings.Cut(rest, "/"); ok && resource != "" {
			return "/api/v1/venues/:id/" + resource
		}
		return "/api/v1/venues/:id"
	default:
		return path
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush exposes the underlying writer's http.Flusher so streaming handlers
// wrapped by loggingMiddleware can still flush (see stream.go).
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

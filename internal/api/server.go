// Package api exposes the admin HTTP interface: read access to parsing
// sessions and the catalogue index, plus the operator endpoint that fails
// a session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/logging"
	"github.com/metaltracker/parser-service/internal/metrics"
	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

const defaultPageSize = 50

// Server wires HTTP handlers to the session and catalogue stores.
type Server struct {
	router    chi.Router
	sessions  store.SessionStore
	catalogue store.CatalogueStore
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(sessions store.SessionStore, catalogue store.CatalogueStore, logger *zap.Logger) *Server {
	s := &Server{
		sessions:  sessions,
		catalogue: catalogue,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Post("/fail", s.failSession)
			})
		})
		r.Get("/catalogue", s.listCatalogue)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A cheap store round trip doubles as the database readiness probe.
	if _, err := s.sessions.List(r.Context(), store.SessionFilter{Limit: 1}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	filter, err := sessionFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := s.sessions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := s.sessions.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionResponse(sess)})
}

// failSession is the operator escape hatch for a distributor whose parser
// keeps crashing mid run: it moves the session to failed so the next
// scheduled run starts a fresh one.
func (s *Server) failSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := s.sessions.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch session")
		return
	}
	if err := store.CheckTransition(sess.Status, store.SessionFailed); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err := s.sessions.UpdateStatus(r.Context(), id, store.SessionFailed); err != nil {
		s.logger.Error("fail session failed", zap.String("session_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	s.logger.Info("session failed via admin API",
		zap.String("session_id", id.String()),
		zap.String("distributor", sess.DistributorCode.String()),
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id.String(),
		"status":     string(store.SessionFailed),
	})
}

func (s *Server) listCatalogue(w http.ResponseWriter, r *http.Request) {
	filter, err := catalogueFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.catalogue.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list catalogue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list catalogue entries")
		return
	}
	out := make([]catalogueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toCatalogueEntryResponse(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

func sessionFilterFromQuery(r *http.Request) (store.SessionFilter, error) {
	filter := store.SessionFilter{}
	if raw := r.URL.Query().Get("distributor"); raw != "" {
		code, err := parser.ParseDistributorCode(raw)
		if err != nil {
			return store.SessionFilter{}, err
		}
		filter.Distributor = &code
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.SessionStatus(raw)
		if !status.Valid() {
			return store.SessionFilter{}, errors.New("unknown session status " + strconv.Quote(raw))
		}
		filter.Status = &status
	}
	limit, offset, err := pageFromQuery(r)
	if err != nil {
		return store.SessionFilter{}, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func catalogueFilterFromQuery(r *http.Request) (store.CatalogueFilter, error) {
	filter := store.CatalogueFilter{
		BandName: r.URL.Query().Get("band"),
	}
	if raw := r.URL.Query().Get("distributor"); raw != "" {
		code, err := parser.ParseDistributorCode(raw)
		if err != nil {
			return store.CatalogueFilter{}, err
		}
		filter.Distributor = &code
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.CatalogueStatus(raw)
		if !status.Valid() {
			return store.CatalogueFilter{}, errors.New("unknown catalogue status " + strconv.Quote(raw))
		}
		filter.Status = &status
	}
	limit, offset, err := pageFromQuery(r)
	if err != nil {
		return store.CatalogueFilter{}, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func pageFromQuery(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

type sessionResponse struct {
	ID              string    `json:"id"`
	DistributorCode string    `json:"distributor_code"`
	Status          string    `json:"status"`
	LastUpdated     time.Time `json:"last_updated"`
}

func toSessionResponse(s store.ParsingSession) sessionResponse {
	return sessionResponse{
		ID:              s.ID.String(),
		DistributorCode: s.DistributorCode.String(),
		Status:          string(s.Status),
		LastUpdated:     s.LastUpdated,
	}
}

type catalogueEntryResponse struct {
	ID                string    `json:"id"`
	DistributorCode   string    `json:"distributor_code"`
	BandName          string    `json:"band_name"`
	AlbumTitle        string    `json:"album_title"`
	RawTitle          string    `json:"raw_title"`
	DetailURL         string    `json:"detail_url"`
	Status            string    `json:"status"`
	MediaType         *string   `json:"media_type,omitempty"`
	BandReferenceID   *string   `json:"band_reference_id,omitempty"`
	BandDiscographyID *string   `json:"band_discography_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toCatalogueEntryResponse(e store.CatalogueEntry) catalogueEntryResponse {
	resp := catalogueEntryResponse{
		ID:              e.ID.String(),
		DistributorCode: e.DistributorCode.String(),
		BandName:        e.BandName,
		AlbumTitle:      e.AlbumTitle,
		RawTitle:        e.RawTitle,
		DetailURL:       e.DetailURL,
		Status:          string(e.Status),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	if e.MediaType != nil {
		mt := string(*e.MediaType)
		resp.MediaType = &mt
	}
	if e.BandReferenceID != nil {
		id := e.BandReferenceID.String()
		resp.BandReferenceID = &id
	}
	if e.BandDiscographyID != nil {
		id := e.BandDiscographyID.String()
		resp.BandDiscographyID = &id
	}
	return resp
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L.Error("write JSON response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/knolrep/internal/review"
	"github.com/conorfennell/knolrep/internal/sm2"
	"github.com/conorfennell/knolrep/internal/storage"
	cardsync "github.com/conorfennell/knolrep/internal/sync"
)

// LearnerHeader selects the learner a request acts for.
const LearnerHeader = "X-Learner"

// Syncer reconciles card sources.
type Syncer interface {
	Run(ctx context.Context) ([]cardsync.Report, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db      *storage.DB
	reviews *review.Service
	syncer  Syncer
	learner string
	log     *slog.Logger
	router  *http.ServeMux
	handler http.Handler
}

// NewServer creates and configures a new server. defaultLearner is used
// for requests without an X-Learner header.
func NewServer(db *storage.DB, reviews *review.Service, syncer Syncer, defaultLearner string, log *slog.Logger) *Server {
	s := &Server{
		db:      db,
		reviews: reviews,
		syncer:  syncer,
		learner: defaultLearner,
		log:     log,
		router:  http.NewServeMux(),
	}
	s.routes()
	s.handler = logging(log)(s.router)
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Studying
	s.router.HandleFunc("GET /api/due", s.handleGetDue)
	s.router.HandleFunc("GET /api/cards/{hash}", s.handleGetCard)
	s.router.HandleFunc("POST /api/cards/{hash}/reviews", s.handlePostReview)
	s.router.HandleFunc("GET /api/streak", s.handleGetStreak)
	s.router.HandleFunc("GET /api/stats", s.handleGetStats)

	// Source management
	s.router.HandleFunc("GET /api/sources", s.handleGetSources)
	s.router.HandleFunc("POST /api/sources", s.handlePostSource)
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)
	s.router.HandleFunc("POST /api/sync", s.handlePostSync)
}

// learnerID resolves the X-Learner header, or the default learner, to a
// learner id.
func (s *Server) learnerID(r *http.Request) (string, error) {
	learner := r.Header.Get(LearnerHeader)
	if learner == "" {
		learner = s.learner
	}
	return s.db.LearnerID(r.Context(), learner)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps err to a status code and writes it as JSON. Errors
// that are not the client's fault are logged and hidden.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sm2.ErrInvalidQuality), errors.Is(err, storage.ErrAmbiguous):
		status = http.StatusBadRequest
	case errors.Is(err, review.ErrStateNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrExists):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	respondJSON(w, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logging logs one line per request.
func logging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}

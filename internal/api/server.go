// Package api serves stored rows over a small read-only HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"logwarden/internal/logging"
	"logwarden/internal/storage"
)

// MaxLimit caps the limit a client may ask for
const MaxLimit = 1000

// Fetcher is the part of storage.Store the API reads from
type Fetcher interface {
	Fetch(ctx context.Context, limit int) ([]storage.Row, error)
}

// Server represents the read API HTTP server
type Server struct {
	store        Fetcher
	addr         string
	defaultLimit int
	logger       *slog.Logger
}

// NewServer creates a new API server. defaultLimit applies when the request
// carries no limit; values <= 0 fall back to storage.DefaultFetchLimit.
func NewServer(store Fetcher, addr string, defaultLimit int, logger *slog.Logger) *Server {
	if defaultLimit <= 0 {
		defaultLimit = storage.DefaultFetchLimit
	}
	return &Server{
		store:        store,
		addr:         addr,
		defaultLimit: defaultLimit,
		logger:       logging.OrDefault(logger).With(logging.Component("api")),
	}
}

// Router returns the HTTP handler with every route registered
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	return r
}

// Start serves until ctx is canceled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", slog.String("addr", s.addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleLogs returns the most recent rows as JSON, newest first
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := s.defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxLimit {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer between 1 and " + strconv.Itoa(MaxLimit)})
			return
		}
		limit = n
	}

	rows, err := s.store.Fetch(r.Context(), limit)
	if err != nil {
		s.logger.Error("fetch failed", logging.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query error"})
		return
	}
	if rows == nil {
		rows = []storage.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

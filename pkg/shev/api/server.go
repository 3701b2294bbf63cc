// Package api exposes the REST surface over the dispatcher's
// control-plane: catalog CRUD, job queries and cancellation, ad-hoc
// event injection, runtime config and reload.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhkang/shev/pkg/shev/dispatcher"
)

// Server is the HTTP control-plane server.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	filter     *IPFilter
	logger     *slog.Logger
	server     *http.Server
}

// New creates a server over the dispatcher. filter may be nil to allow
// all clients.
func New(d *dispatcher.Dispatcher, filter *IPFilter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: d,
		filter:     filter,
		logger:     logger.With("component", "api"),
	}
}

// Routes builds the route table. Exposed for httptest.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)
	mux.HandleFunc("/handlers", s.handleHandlers)
	mux.HandleFunc("/handlers/", s.handleHandlerByType)
	mux.HandleFunc("/timers", s.handleTimers)
	mux.HandleFunc("/timers/", s.handleTimerByType)
	mux.HandleFunc("/schedules", s.handleSchedules)
	mux.HandleFunc("/schedules/", s.handleScheduleByType)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/reload", s.handleReload)

	var handler http.Handler = mux
	if s.filter != nil {
		handler = s.filter.Middleware(handler, s.logger)
	}
	return handler
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{Addr: addr, Handler: s.Routes()}
	s.logger.Info("api listening", "addr", addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

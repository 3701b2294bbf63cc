package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rhkang/shev/pkg/shev/catalog"
	"github.com/rhkang/shev/pkg/shev/models"
	"github.com/rhkang/shev/pkg/shev/store"
)

const defaultJobLimit = 50

// handleStatus implements GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	counts, err := s.dispatcher.Catalog().CountJobsByStatus()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		TotalJobs:     total,
		PendingJobs:   counts[models.StatusPending],
		RunningJobs:   counts[models.StatusRunning],
		CompletedJobs: counts[models.StatusCompleted],
		FailedJobs:    counts[models.StatusFailed],
		CancelledJobs: counts[models.StatusCancelled],
	})
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	warnings := s.dispatcher.Store().GetWarnings()
	if warnings == nil {
		warnings = []models.Warning{}
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Healthy:  len(warnings) == 0,
		Warnings: warnings,
	})
}

// handleJobs implements GET|POST /jobs with optional status and limit
// query parameters. Both methods list; jobs are only created by the
// consumer.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var status *models.JobStatus
	if v := r.URL.Query().Get("status"); v != "" {
		parsed, err := models.ParseJobStatus(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &parsed
	}

	limit := defaultJobLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	jobs, err := s.dispatcher.Catalog().GetAllJobs(status, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	s.writeJSON(w, http.StatusOK, jobs)
}

// handleJobByID implements GET /jobs/{id} and POST /jobs/{id}/cancel.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	idPart, action, _ := strings.Cut(rest, "/")

	jobID, err := uuid.Parse(idPart)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job id %q", idPart))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		job, err := s.dispatcher.Catalog().GetJob(jobID)
		if err != nil {
			s.jobError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, job)

	case action == "cancel" && r.Method == http.MethodPost:
		job, err := s.dispatcher.CancelJob(jobID)
		if err != nil {
			s.jobError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, job)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) jobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, store.ErrConflict):
		s.writeError(w, http.StatusBadRequest, "job is not in a cancellable state")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleHandlers implements GET|POST /handlers.
func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		handlers, err := s.dispatcher.Catalog().GetAllHandlers()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if handlers == nil {
			handlers = []models.Handler{}
		}
		s.writeJSON(w, http.StatusOK, handlers)

	case http.MethodPost:
		var req createHandlerRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.EventType == "" {
			s.writeError(w, http.StatusBadRequest, "event_type is required")
			return
		}
		shell, err := models.ParseShellType(req.Shell)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Timeout != nil && *req.Timeout == 0 {
			s.writeError(w, http.StatusBadRequest, "timeout must be greater than zero")
			return
		}
		if req.Env == nil {
			req.Env = map[string]string{}
		}
		handler, err := s.dispatcher.CreateHandler(req.EventType, shell, req.Command, req.Timeout, req.Env)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, handler)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleHandlerByType implements GET|PUT|DELETE /handlers/{event_type}.
func (s *Server) handleHandlerByType(w http.ResponseWriter, r *http.Request) {
	eventType := strings.TrimPrefix(r.URL.Path, "/handlers/")
	if eventType == "" || strings.Contains(eventType, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		handler, err := s.dispatcher.Catalog().GetHandler(eventType)
		if err != nil {
			s.entityError(w, err, "handler")
			return
		}
		s.writeJSON(w, http.StatusOK, handler)

	case http.MethodPut:
		var req updateHandlerRequest
		if !s.decode(w, r, &req) {
			return
		}
		var shell *models.ShellType
		if req.Shell != nil {
			parsed, err := models.ParseShellType(*req.Shell)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			shell = &parsed
		}
		if req.Timeout != nil && *req.Timeout == 0 {
			s.writeError(w, http.StatusBadRequest, "timeout must be greater than zero")
			return
		}
		var timeout **uint32
		if req.Timeout != nil {
			timeout = &req.Timeout
		}
		handler, err := s.dispatcher.UpdateHandler(eventType, shell, req.Command, timeout, req.Env)
		if err != nil {
			s.entityError(w, err, "handler")
			return
		}
		s.writeJSON(w, http.StatusOK, handler)

	case http.MethodDelete:
		deleted, err := s.dispatcher.DeleteHandler(eventType)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !deleted {
			s.writeError(w, http.StatusNotFound, "handler not found")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) entityError(w http.ResponseWriter, err error, kind string) {
	if errors.Is(err, catalog.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, kind+" not found")
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

// handleTimers implements GET|POST /timers.
func (s *Server) handleTimers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		timers, err := s.dispatcher.Catalog().GetAllTimers()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if timers == nil {
			timers = []models.TimerRecord{}
		}
		s.writeJSON(w, http.StatusOK, timers)

	case http.MethodPost:
		var req createTimerRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.EventType == "" {
			s.writeError(w, http.StatusBadRequest, "event_type is required")
			return
		}
		if req.IntervalSecs == 0 {
			s.writeError(w, http.StatusBadRequest, "interval_secs must be greater than zero")
			return
		}
		rec, err := s.dispatcher.CreateTimer(req.EventType, req.Context, req.IntervalSecs)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, rec)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTimerByType implements GET|PUT|DELETE /timers/{event_type} and
// POST /timers/{event_type}/trigger.
func (s *Server) handleTimerByType(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/timers/")
	eventType, action, _ := strings.Cut(rest, "/")
	if eventType == "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	if action == "trigger" {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		triggered, msg := s.dispatcher.TriggerTimer(eventType)
		s.writeJSON(w, http.StatusOK, triggerEventResponse{Triggered: triggered, Message: msg})
		return
	}
	if action != "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.dispatcher.Catalog().GetTimer(eventType)
		if err != nil {
			s.entityError(w, err, "timer")
			return
		}
		s.writeJSON(w, http.StatusOK, rec)

	case http.MethodPut:
		var req updateTimerRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.IntervalSecs != nil && *req.IntervalSecs == 0 {
			s.writeError(w, http.StatusBadRequest, "interval_secs must be greater than zero")
			return
		}
		rec, err := s.dispatcher.UpdateTimer(eventType, req.IntervalSecs, req.Context)
		if err != nil {
			s.entityError(w, err, "timer")
			return
		}
		s.writeJSON(w, http.StatusOK, rec)

	case http.MethodDelete:
		deleted, err := s.dispatcher.DeleteTimer(eventType)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !deleted {
			s.writeError(w, http.StatusNotFound, "timer not found")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSchedules implements GET|POST /schedules.
func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		schedules, err := s.dispatcher.Catalog().GetAllSchedules()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if schedules == nil {
			schedules = []models.ScheduleRecord{}
		}
		s.writeJSON(w, http.StatusOK, schedules)

	case http.MethodPost:
		var req createScheduleRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.EventType == "" {
			s.writeError(w, http.StatusBadRequest, "event_type is required")
			return
		}
		if req.ScheduledTime.IsZero() {
			s.writeError(w, http.StatusBadRequest, "scheduled_time is required")
			return
		}
		rec, err := s.dispatcher.CreateSchedule(req.EventType, req.Context, req.ScheduledTime, req.Periodic)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, rec)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleScheduleByType implements GET|PUT|DELETE /schedules/{event_type}.
func (s *Server) handleScheduleByType(w http.ResponseWriter, r *http.Request) {
	eventType := strings.TrimPrefix(r.URL.Path, "/schedules/")
	if eventType == "" || strings.Contains(eventType, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.dispatcher.Catalog().GetSchedule(eventType)
		if err != nil {
			s.entityError(w, err, "schedule")
			return
		}
		s.writeJSON(w, http.StatusOK, rec)

	case http.MethodPut:
		var req updateScheduleRequest
		if !s.decode(w, r, &req) {
			return
		}
		rec, err := s.dispatcher.UpdateSchedule(eventType, req.ScheduledTime, req.Context, req.Periodic)
		if err != nil {
			s.entityError(w, err, "schedule")
			return
		}
		s.writeJSON(w, http.StatusOK, rec)

	case http.MethodDelete:
		deleted, err := s.dispatcher.DeleteSchedule(eventType)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !deleted {
			s.writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleEvents implements POST /events: direct enqueue of an ad-hoc
// event. A registered timer for the same event type is unaffected.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req triggerEventRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.EventType == "" {
		s.writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	if !s.dispatcher.Store().HasHandler(req.EventType) {
		s.writeJSON(w, http.StatusOK, triggerEventResponse{
			Triggered: false,
			Message:   fmt.Sprintf("no handler registered for %q", req.EventType),
		})
		return
	}

	event, err := s.dispatcher.InjectEvent(req.EventType, req.Context)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, triggerEventResponse{
		Triggered: true,
		Message:   fmt.Sprintf("event %s queued", event.ID),
	})
}

// handleConfig implements GET|PUT /config. Values take effect on the
// next process start.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cat := s.dispatcher.Catalog()

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, configResponse{Port: cat.Port(), QueueSize: cat.QueueSize()})

	case http.MethodPut:
		var req updateConfigRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Port != nil {
			port, err := strconv.ParseUint(*req.Port, 10, 16)
			if err != nil || port == 0 {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid port %q", *req.Port))
				return
			}
			if err := cat.SetConfig("port", *req.Port); err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		if req.QueueSize != nil {
			size, err := strconv.Atoi(*req.QueueSize)
			if err != nil || size <= 0 {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid queue_size %q", *req.QueueSize))
				return
			}
			if err := cat.SetConfig("queue_size", *req.QueueSize); err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		s.writeJSON(w, http.StatusOK, configResponse{Port: cat.Port(), QueueSize: cat.QueueSize()})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleReload implements POST /reload.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	handlers, timers, schedules, err := s.dispatcher.Reload()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, reloadResponse{
		HandlersLoaded:  handlers,
		TimersLoaded:    timers,
		SchedulesLoaded: schedules,
	})
}

// Package store keeps an in-memory mirror of the catalog for the hot
// paths (handler resolution, producer registration checks) plus the job
// lifecycle helpers and the warnings list. Mutations are write-through:
// the catalog is written first and the mirror only updates on success.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhkang/shev/pkg/shev/catalog"
	"github.com/rhkang/shev/pkg/shev/models"
)

// ErrConflict is returned when a job cannot be cancelled because it is
// already in a terminal state.
var ErrConflict = fmt.Errorf("job is not cancellable")

// Store is the in-memory mirror plus job lifecycle orchestration.
type Store struct {
	catalog *catalog.Catalog
	logger  *slog.Logger

	mu        sync.RWMutex
	handlers  map[string]models.Handler
	timers    map[string]models.TimerRecord
	schedules map[string]models.ScheduleRecord
	warnings  []models.Warning
}

// New creates an empty store over the given catalog. Call LoadAll to
// populate the mirror.
func New(cat *catalog.Catalog, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog:   cat,
		logger:    logger.With("component", "store"),
		handlers:  make(map[string]models.Handler),
		timers:    make(map[string]models.TimerRecord),
		schedules: make(map[string]models.ScheduleRecord),
	}
}

// Catalog exposes the backing catalog for callers that need direct
// point queries (producer staleness checks, job reads).
func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

// LoadAll refreshes the mirror from the catalog. Handlers are replaced
// wholesale. Timer and schedule entries are only pruned here: an entry
// in those maps means "a loop for this record version is live", so
// adding or rotating entries is the producer managers' job (Register).
// Safe to call repeatedly; the result is identical either way.
func (s *Store) LoadAll() (handlers, timers, schedules int, err error) {
	hs, err := s.catalog.GetAllHandlers()
	if err != nil {
		return 0, 0, 0, err
	}
	ts, err := s.catalog.GetAllTimers()
	if err != nil {
		return 0, 0, 0, err
	}
	scs, err := s.catalog.GetAllSchedules()
	if err != nil {
		return 0, 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = make(map[string]models.Handler, len(hs))
	for _, h := range hs {
		s.handlers[h.EventType] = h
	}
	current := make(map[string]bool, len(ts))
	for _, t := range ts {
		current[t.EventType] = true
	}
	for et := range s.timers {
		if !current[et] {
			delete(s.timers, et)
		}
	}
	current = make(map[string]bool, len(scs))
	for _, sc := range scs {
		current[sc.EventType] = true
	}
	for et := range s.schedules {
		if !current[et] {
			delete(s.schedules, et)
		}
	}
	return len(hs), len(ts), len(scs), nil
}

// ---------- Handlers ----------

// UpsertHandler writes through to the catalog and refreshes the mirror.
func (s *Store) UpsertHandler(eventType string, shell models.ShellType, command string, timeout *uint32, env map[string]string) (models.Handler, error) {
	h, err := s.catalog.UpsertHandler(eventType, shell, command, timeout, env)
	if err != nil {
		return models.Handler{}, err
	}
	s.mu.Lock()
	s.handlers[eventType] = h
	s.mu.Unlock()
	return h, nil
}

// UpdateHandler writes through to the catalog and refreshes the mirror.
func (s *Store) UpdateHandler(eventType string, shell *models.ShellType, command *string, timeout **uint32, env map[string]string) (models.Handler, error) {
	h, err := s.catalog.UpdateHandler(eventType, shell, command, timeout, env)
	if err != nil {
		return models.Handler{}, err
	}
	s.mu.Lock()
	s.handlers[eventType] = h
	s.mu.Unlock()
	return h, nil
}

// DeleteHandler removes the handler from catalog and mirror. When a
// timer or schedule still references the event type, a missing_handler
// warning is recorded.
func (s *Store) DeleteHandler(eventType string) (bool, error) {
	deleted, err := s.catalog.DeleteHandler(eventType)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	s.mu.Lock()
	delete(s.handlers, eventType)
	_, hasTimer := s.timers[eventType]
	_, hasSchedule := s.schedules[eventType]
	s.mu.Unlock()

	if hasTimer || hasSchedule {
		s.AddWarning(models.WarnMissingHandler, eventType,
			fmt.Sprintf("timer or schedule for %q has no handler", eventType))
	}
	return true, nil
}

// GetHandler returns the handler for eventType from the mirror.
func (s *Store) GetHandler(eventType string) (models.Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[eventType]
	return h, ok
}

// HasHandler reports whether a handler exists for eventType.
func (s *Store) HasHandler(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.handlers[eventType]
	return ok
}

// GetAllHandlers lists the mirrored handlers.
func (s *Store) GetAllHandlers() []models.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		out = append(out, h)
	}
	return out
}

// ---------- Timers ----------

// RegisterTimer installs a timer record in the mirror. Called by the
// timer manager after the catalog row exists.
func (s *Store) RegisterTimer(rec models.TimerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[rec.EventType] = rec
}

// GetTimer returns the mirrored timer for eventType.
func (s *Store) GetTimer(eventType string) (models.TimerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timers[eventType]
	return t, ok
}

// DeleteTimer removes the timer from catalog and mirror. The live loop,
// if any, retires on its next wake because the catalog id is gone.
func (s *Store) DeleteTimer(eventType string) (bool, error) {
	deleted, err := s.catalog.DeleteTimer(eventType)
	if err != nil {
		return false, err
	}
	if deleted {
		s.mu.Lock()
		delete(s.timers, eventType)
		s.mu.Unlock()
	}
	return deleted, nil
}

// GetAllTimers lists the mirrored timers.
func (s *Store) GetAllTimers() []models.TimerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TimerRecord, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t)
	}
	return out
}

// ---------- Schedules ----------

// RegisterSchedule installs a schedule record in the mirror.
func (s *Store) RegisterSchedule(rec models.ScheduleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[rec.EventType] = rec
}

// GetSchedule returns the mirrored schedule for eventType.
func (s *Store) GetSchedule(eventType string) (models.ScheduleRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[eventType]
	return sc, ok
}

// DeleteSchedule removes the schedule from catalog and mirror.
func (s *Store) DeleteSchedule(eventType string) (bool, error) {
	deleted, err := s.catalog.DeleteSchedule(eventType)
	if err != nil {
		return false, err
	}
	if deleted {
		s.mu.Lock()
		delete(s.schedules, eventType)
		s.mu.Unlock()
	}
	return deleted, nil
}

// GetAllSchedules lists the mirrored schedules.
func (s *Store) GetAllSchedules() []models.ScheduleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ScheduleRecord, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, sc)
	}
	return out
}

// ---------- Jobs ----------

// CreateJob persists a new pending job for the event and handler version.
func (s *Store) CreateJob(event models.Event, handler models.Handler) (models.Job, error) {
	job := models.NewJob(event, handler.ID)
	if err := s.catalog.InsertJob(job); err != nil {
		return models.Job{}, err
	}
	return job, nil
}

// GetJob reads a job from the catalog.
func (s *Store) GetJob(jobID uuid.UUID) (models.Job, error) {
	return s.catalog.GetJob(jobID)
}

// MarkRunning transitions a pending job to running.
func (s *Store) MarkRunning(jobID uuid.UUID) error {
	job, err := s.catalog.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusPending {
		s.logger.Warn("refusing to mark non-pending job running", "job", jobID, "status", job.Status)
		return nil
	}
	now := time.Now().UTC()
	job.Status = models.StatusRunning
	job.StartedAt = &now
	return s.catalog.UpdateJob(job)
}

// MarkCompleted transitions a running job to completed with its captured
// output. A job already in a terminal state (a client cancelled it while
// the process ran) is left untouched.
func (s *Store) MarkCompleted(jobID uuid.UUID, output string) error {
	job, err := s.catalog.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		s.logger.Warn("dropping completion for terminal job", "job", jobID, "status", job.Status)
		return nil
	}
	now := time.Now().UTC()
	job.Status = models.StatusCompleted
	job.Output = &output
	job.FinishedAt = &now
	return s.catalog.UpdateJob(job)
}

// MarkFailed transitions a running job to failed with the error message.
// Terminal jobs are left untouched, like MarkCompleted.
func (s *Store) MarkFailed(jobID uuid.UUID, errMsg string) error {
	job, err := s.catalog.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		s.logger.Warn("dropping failure for terminal job", "job", jobID, "status", job.Status)
		return nil
	}
	now := time.Now().UTC()
	job.Status = models.StatusFailed
	job.Error = &errMsg
	job.FinishedAt = &now
	return s.catalog.UpdateJob(job)
}

// CancelJob transitions a pending or running job to cancelled. Returns
// ErrConflict when the job is already terminal. The running process, if
// any, is not killed; its eventual result is dropped by MarkCompleted/
// MarkFailed.
func (s *Store) CancelJob(jobID uuid.UUID) (models.Job, error) {
	job, err := s.catalog.GetJob(jobID)
	if err != nil {
		return models.Job{}, err
	}
	if !job.Status.Active() {
		return models.Job{}, ErrConflict
	}
	now := time.Now().UTC()
	job.Status = models.StatusCancelled
	job.FinishedAt = &now
	if err := s.catalog.UpdateJob(job); err != nil {
		return models.Job{}, err
	}
	return job, nil
}

// ---------- Warnings ----------

// AddWarning appends a warning unless one with the same kind and event
// type already exists.
func (s *Store) AddWarning(kind models.WarningKind, eventType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.warnings {
		if w.Kind == kind && w.EventType == eventType {
			return
		}
	}
	s.warnings = append(s.warnings, models.Warning{
		Kind:      kind,
		EventType: eventType,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}

// GetWarnings returns the warnings still applicable against the current
// handler set. Resolved warnings are pruned as a side effect.
func (s *Store) GetWarnings() []models.Warning {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.warnings[:0]
	for _, w := range s.warnings {
		if w.Kind == models.WarnMissingHandler {
			if _, ok := s.handlers[w.EventType]; ok {
				continue
			}
		}
		kept = append(kept, w)
	}
	s.warnings = kept

	out := make([]models.Warning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Package dispatcher wires the engine together and exposes the
// control-plane surface the HTTP layer consumes. Every catalog-mutating
// call persists first, then updates the in-memory mirror, and — for
// timers and schedules — re-registers the producer so the versioned-id
// supersession takes effect.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rhkang/shev/pkg/shev/catalog"
	"github.com/rhkang/shev/pkg/shev/consumer"
	"github.com/rhkang/shev/pkg/shev/executor"
	"github.com/rhkang/shev/pkg/shev/models"
	"github.com/rhkang/shev/pkg/shev/producer"
	"github.com/rhkang/shev/pkg/shev/queue"
	"github.com/rhkang/shev/pkg/shev/store"
)

// Dispatcher owns the catalog, the mirror, the queue, the producer
// managers and the consumer.
type Dispatcher struct {
	catalog   *catalog.Catalog
	store     *store.Store
	queue     *queue.Queue
	timers    *producer.TimerManager
	schedules *producer.ScheduleManager
	consumer  *consumer.Consumer
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Open opens the catalog at dbPath, runs crash recovery, loads the
// mirror and prepares (but does not start) the engine.
func Open(dbPath string, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}

	stale, err := cat.CancelStaleJobs()
	if err != nil {
		cat.Close()
		return nil, err
	}
	if stale > 0 {
		logger.Info("cancelled stale jobs from previous run", "count", stale)
	}

	st := store.New(cat, logger)
	if _, _, _, err := st.LoadAll(); err != nil {
		cat.Close()
		return nil, err
	}

	q := queue.New(cat.QueueSize())
	d := &Dispatcher{
		catalog:   cat,
		store:     st,
		queue:     q,
		timers:    producer.NewTimerManager(st, q, logger),
		schedules: producer.NewScheduleManager(st, q, logger),
		logger:    logger.With("component", "dispatcher"),
	}
	d.consumer = consumer.New(st, q, executor.New(), logger)
	return d, nil
}

// Start launches the consumer and one producer loop per catalog record.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	go d.consumer.Run(d.ctx)

	timers, err := d.catalog.GetAllTimers()
	if err != nil {
		return err
	}
	for _, t := range timers {
		d.timers.Register(d.ctx, t)
	}

	schedules, err := d.catalog.GetAllSchedules()
	if err != nil {
		return err
	}
	for _, s := range schedules {
		d.schedules.Register(d.ctx, s)
	}

	d.logger.Info("dispatcher started", "timers", len(timers), "schedules", len(schedules))
	return nil
}

// Stop shuts the queue and producers down and closes the catalog.
func (d *Dispatcher) Stop() {
	d.queue.Close()
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.catalog.Close(); err != nil {
		d.logger.Error("close catalog", "error", err)
	}
	d.logger.Info("dispatcher stopped")
}

// Store exposes the in-memory store (read paths, warnings).
func (d *Dispatcher) Store() *store.Store {
	return d.store
}

// Catalog exposes the persistent catalog (job queries, config).
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

// ---------- Handlers ----------

// CreateHandler upserts a handler definition.
func (d *Dispatcher) CreateHandler(eventType string, shell models.ShellType, command string, timeout *uint32, env map[string]string) (models.Handler, error) {
	return d.store.UpsertHandler(eventType, shell, command, timeout, env)
}

// UpdateHandler rewrites an existing handler, regenerating its id.
func (d *Dispatcher) UpdateHandler(eventType string, shell *models.ShellType, command *string, timeout **uint32, env map[string]string) (models.Handler, error) {
	return d.store.UpdateHandler(eventType, shell, command, timeout, env)
}

// DeleteHandler removes a handler.
func (d *Dispatcher) DeleteHandler(eventType string) (bool, error) {
	return d.store.DeleteHandler(eventType)
}

// ---------- Timers ----------

// CreateTimer persists a timer and starts its producer loop.
func (d *Dispatcher) CreateTimer(eventType, context string, intervalSecs uint32) (models.TimerRecord, error) {
	rec, err := d.catalog.InsertTimer(eventType, context, intervalSecs)
	if err != nil {
		return models.TimerRecord{}, err
	}
	d.timers.Register(d.ctx, rec)
	return rec, nil
}

// UpdateTimer rewrites a timer and registers the new version; the old
// loop retires on its next wake.
func (d *Dispatcher) UpdateTimer(eventType string, intervalSecs *uint32, context *string) (models.TimerRecord, error) {
	rec, err := d.catalog.UpdateTimer(eventType, intervalSecs, context)
	if err != nil {
		return models.TimerRecord{}, err
	}
	d.timers.Register(d.ctx, rec)
	return rec, nil
}

// DeleteTimer removes a timer; its loop retires on the next wake.
func (d *Dispatcher) DeleteTimer(eventType string) (bool, error) {
	return d.store.DeleteTimer(eventType)
}

// TriggerTimer wakes a timer loop immediately, unless a job for the
// event type is in flight.
func (d *Dispatcher) TriggerTimer(eventType string) (bool, string) {
	return d.timers.Trigger(eventType)
}

// ---------- Schedules ----------

// CreateSchedule persists a schedule and starts its producer loop.
func (d *Dispatcher) CreateSchedule(eventType, context string, scheduledTime time.Time, periodic bool) (models.ScheduleRecord, error) {
	rec, err := d.catalog.InsertSchedule(eventType, context, scheduledTime, periodic)
	if err != nil {
		return models.ScheduleRecord{}, err
	}
	d.schedules.Register(d.ctx, rec)
	return rec, nil
}

// UpdateSchedule rewrites a schedule and registers the new version.
func (d *Dispatcher) UpdateSchedule(eventType string, scheduledTime *time.Time, context *string, periodic *bool) (models.ScheduleRecord, error) {
	rec, err := d.catalog.UpdateSchedule(eventType, scheduledTime, context, periodic)
	if err != nil {
		return models.ScheduleRecord{}, err
	}
	d.schedules.Register(d.ctx, rec)
	return rec, nil
}

// DeleteSchedule removes a schedule; its loop retires on the next wake.
func (d *Dispatcher) DeleteSchedule(eventType string) (bool, error) {
	return d.store.DeleteSchedule(eventType)
}

// ---------- Events & jobs ----------

// InjectEvent enqueues an ad-hoc event. HTTP-sourced events bypass
// active-job exclusion on purpose, so an operator can force a run.
func (d *Dispatcher) InjectEvent(eventType, context string) (models.Event, error) {
	event := models.NewEvent(eventType, context)
	if err := d.queue.Send(event); err != nil {
		return models.Event{}, fmt.Errorf("enqueue event: %w", err)
	}
	return event, nil
}

// CancelJob cancels a pending or running job.
func (d *Dispatcher) CancelJob(jobID uuid.UUID) (models.Job, error) {
	return d.store.CancelJob(jobID)
}

// ---------- Reload ----------

// Reload re-reads the catalog into the mirror and re-registers every
// producer. Registration is idempotent, so live loops survive and only
// new or rotated records spawn loops. Calling it repeatedly converges
// to the same state.
func (d *Dispatcher) Reload() (handlers, timers, schedules int, err error) {
	handlers, timers, schedules, err = d.store.LoadAll()
	if err != nil {
		return 0, 0, 0, err
	}
	trecs, err := d.catalog.GetAllTimers()
	if err != nil {
		return 0, 0, 0, err
	}
	for _, t := range trecs {
		d.timers.Register(d.ctx, t)
	}
	srecs, err := d.catalog.GetAllSchedules()
	if err != nil {
		return 0, 0, 0, err
	}
	for _, s := range srecs {
		d.schedules.Register(d.ctx, s)
	}
	d.logger.Info("reloaded catalog", "handlers", handlers, "timers", timers, "schedules", schedules)
	return handlers, timers, schedules, nil
}

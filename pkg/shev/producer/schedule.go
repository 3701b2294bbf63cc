package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rhkang/shev/pkg/shev/models"
	"github.com/rhkang/shev/pkg/shev/queue"
	"github.com/rhkang/shev/pkg/shev/store"
)

// daily steps a periodic schedule's anchor forward by one day.
var daily cron.Schedule = cron.Every(24 * time.Hour)

// NextFiring steps anchor forward one day at a time until it is strictly
// after now; an anchor already in the future is returned unchanged.
// Missed days collapse: they produce no firing of their own, and the
// result is the next future anchor.
func NextFiring(anchor, now time.Time) time.Time {
	next := anchor
	for !next.After(now) {
		next = daily.Next(next)
	}
	return next
}

// ScheduleManager starts and tracks wall-clock producer loops.
type ScheduleManager struct {
	store  *store.Store
	queue  *queue.Queue
	logger *slog.Logger

	mu       sync.Mutex
	triggers map[string]*Trigger
}

// NewScheduleManager creates a schedule manager producing into q.
func NewScheduleManager(st *store.Store, q *queue.Queue, logger *slog.Logger) *ScheduleManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleManager{
		store:    st,
		queue:    q,
		logger:   logger.With("component", "schedule"),
		triggers: make(map[string]*Trigger),
	}
}

// Register starts a loop for the record, with the same idempotency and
// supersession rules as timer registration.
func (m *ScheduleManager) Register(ctx context.Context, rec models.ScheduleRecord) {
	if existing, ok := m.store.GetSchedule(rec.EventType); ok {
		if existing.ID == rec.ID {
			m.logger.Info("schedule already running, skipping", "event_type", rec.EventType, "id", rec.ID)
			return
		}
		m.logger.Info("schedule updated, old loop will stop on next cycle",
			"event_type", rec.EventType, "old_id", existing.ID, "new_id", rec.ID)
	}

	m.store.RegisterSchedule(rec)
	trig := m.triggerFor(rec.EventType)

	mode := "one-shot"
	if rec.Periodic {
		mode = "periodic"
	}
	m.logger.Info("starting schedule", "event_type", rec.EventType, "id", rec.ID,
		"at", rec.ScheduledTime.Format(time.RFC3339), "mode", mode)
	go m.run(ctx, rec, trig)
}

func (m *ScheduleManager) triggerFor(eventType string) *Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	trig, ok := m.triggers[eventType]
	if !ok {
		trig = newTrigger()
		m.triggers[eventType] = trig
	}
	return trig
}

func (m *ScheduleManager) run(ctx context.Context, rec models.ScheduleRecord, trig *Trigger) {
	cat := m.store.Catalog()
	next := rec.ScheduledTime

	for {
		now := time.Now().UTC()
		if rec.Periodic {
			next = NextFiring(next, now)
		}

		if wait := time.Until(next); wait > 0 {
			m.logger.Info("schedule waiting", "event_type", rec.EventType,
				"until", next.Format(time.RFC3339), "wait", wait.Round(time.Second).String())
			select {
			case <-time.After(wait):
			case <-trig.C():
				m.logger.Info("schedule woken by manual trigger", "event_type", rec.EventType)
			case <-ctx.Done():
				return
			}
		}

		currentID, err := cat.GetScheduleID(rec.EventType)
		if err != nil {
			m.logger.Error("schedule id check failed", "event_type", rec.EventType, "error", err)
			continue
		}
		if currentID != rec.ID {
			m.logger.Info("schedule outdated or removed, stopping", "event_type", rec.EventType, "id", rec.ID)
			return
		}

		if !m.store.HasHandler(rec.EventType) {
			m.logger.Warn("no handler for schedule event, skipping", "event_type", rec.EventType)
			m.store.AddWarning(models.WarnMissingHandler, rec.EventType,
				fmt.Sprintf("schedule for %q has no handler", rec.EventType))
			if rec.Periodic {
				next = daily.Next(next)
				continue
			}
			return
		}

		if cat.HasActiveJob(rec.EventType) {
			if rec.Periodic {
				m.logger.Info("active job, skipping firing", "event_type", rec.EventType)
				next = daily.Next(next)
				continue
			}
			// One-shot: keep the firing owed. Pace until the active job
			// clears, re-checking staleness each round, then fire once.
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		event := models.NewEvent(rec.EventType, rec.Context)
		m.logger.Info("schedule producing event", "event_type", rec.EventType, "event_id", event.ID)
		if err := m.queue.Send(event); err != nil {
			m.logger.Warn("event queue closed, stopping schedule", "event_type", rec.EventType)
			return
		}

		if !rec.Periodic {
			m.logger.Info("one-shot schedule fired, stopping", "event_type", rec.EventType)
			return
		}
		next = daily.Next(next)
	}
}

// Package producer runs the event-producing loops: one per timer record
// (interval ticks) and one per schedule record (wall-clock firings).
// Loops carry no stop channel; they retire themselves by noticing that
// the catalog id for their event type no longer matches their snapshot.
// Updates and deletes therefore supersede a live loop without any
// teardown handshake.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhkang/shev/pkg/shev/models"
	"github.com/rhkang/shev/pkg/shev/queue"
	"github.com/rhkang/shev/pkg/shev/store"
)

// pollInterval paces the wait for an active job to clear before the next
// interval sleep, and the one-shot schedule's blocked retry.
const pollInterval = 100 * time.Millisecond

// TimerManager starts and tracks interval producer loops.
type TimerManager struct {
	store  *store.Store
	queue  *queue.Queue
	logger *slog.Logger

	mu       sync.Mutex
	triggers map[string]*Trigger
}

// NewTimerManager creates a timer manager producing into q.
func NewTimerManager(st *store.Store, q *queue.Queue, logger *slog.Logger) *TimerManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerManager{
		store:    st,
		queue:    q,
		logger:   logger.With("component", "timer"),
		triggers: make(map[string]*Trigger),
	}
}

// Register starts a loop for the record. Registration is idempotent: a
// record whose id is already live is a no-op. When the id differs, the
// mirror is updated and the superseded loop retires on its next wake.
func (m *TimerManager) Register(ctx context.Context, rec models.TimerRecord) {
	if existing, ok := m.store.GetTimer(rec.EventType); ok {
		if existing.ID == rec.ID {
			m.logger.Info("timer already running, skipping", "event_type", rec.EventType, "id", rec.ID)
			return
		}
		m.logger.Info("timer updated, old loop will stop on next cycle",
			"event_type", rec.EventType, "old_id", existing.ID, "new_id", rec.ID)
	}

	m.store.RegisterTimer(rec)
	trig := m.triggerFor(rec.EventType)

	m.logger.Info("starting timer", "event_type", rec.EventType, "id", rec.ID, "interval_secs", rec.IntervalSecs)
	go m.run(ctx, rec, trig)
}

// Trigger wakes the loop for eventType immediately. The wake is refused
// (ignored) while a job for the event type is in flight — a manual
// trigger does not override active-job exclusion.
func (m *TimerManager) Trigger(eventType string) (bool, string) {
	if _, ok := m.store.GetTimer(eventType); !ok {
		return false, fmt.Sprintf("no timer registered for %q", eventType)
	}
	if m.store.Catalog().HasActiveJob(eventType) {
		m.logger.Info("manual trigger ignored, job in flight", "event_type", eventType)
		return false, "ignored: a job for this event type is still active"
	}

	m.mu.Lock()
	trig := m.triggers[eventType]
	m.mu.Unlock()
	if trig == nil {
		return false, fmt.Sprintf("no timer loop running for %q", eventType)
	}
	trig.Notify()
	return true, "timer triggered"
}

func (m *TimerManager) triggerFor(eventType string) *Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	trig, ok := m.triggers[eventType]
	if !ok {
		trig = newTrigger()
		m.triggers[eventType] = trig
	}
	return trig
}

func (m *TimerManager) run(ctx context.Context, rec models.TimerRecord, trig *Trigger) {
	interval := time.Duration(rec.IntervalSecs) * time.Second
	cat := m.store.Catalog()

	for {
		select {
		case <-time.After(interval):
		case <-trig.C():
			m.logger.Info("timer woken by manual trigger", "event_type", rec.EventType)
		case <-ctx.Done():
			return
		}

		currentID, err := cat.GetTimerID(rec.EventType)
		if err != nil {
			m.logger.Error("timer id check failed", "event_type", rec.EventType, "error", err)
			continue
		}
		if currentID != rec.ID {
			m.logger.Info("timer outdated or removed, stopping", "event_type", rec.EventType, "id", rec.ID)
			return
		}

		if !m.store.HasHandler(rec.EventType) {
			m.logger.Warn("no handler for timer event, skipping", "event_type", rec.EventType)
			m.store.AddWarning(models.WarnMissingHandler, rec.EventType,
				fmt.Sprintf("timer for %q has no handler", rec.EventType))
			continue
		}

		if cat.HasActiveJob(rec.EventType) {
			m.logger.Info("active job, skipping tick", "event_type", rec.EventType)
			continue
		}

		event := models.NewEvent(rec.EventType, rec.Context)
		m.logger.Info("timer producing event", "event_type", rec.EventType, "event_id", event.ID)
		if err := m.queue.Send(event); err != nil {
			m.logger.Warn("event queue closed, stopping timer", "event_type", rec.EventType)
			return
		}

		// Serialize with job completion so the next interval starts
		// only after this tick's job has left the active set.
		if !waitForIdle(ctx, cat.HasActiveJob, rec.EventType) {
			return
		}
	}
}

func waitForIdle(ctx context.Context, hasActiveJob func(string) bool, eventType string) bool {
	for hasActiveJob(eventType) {
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return false
		}
	}
	return true
}

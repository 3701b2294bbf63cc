package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rhkang/shev/pkg/shev/models"
)

// InsertTimer creates a timer record for eventType. The event type must
// not already have a timer.
func (c *Catalog) InsertTimer(eventType, context string, intervalSecs uint32) (models.TimerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.Exec(
		`INSERT INTO timers (id, event_type, context, interval_secs, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), eventType, context, int64(intervalSecs), now, now,
	)
	if err != nil {
		return models.TimerRecord{}, fmt.Errorf("insert timer: %w", err)
	}
	return models.TimerRecord{ID: id, EventType: eventType, Context: context, IntervalSecs: intervalSecs}, nil
}

// UpdateTimer rewrites an existing timer with a fresh id. Nil fields
// retain their previous values.
func (c *Catalog) UpdateTimer(eventType string, intervalSecs *uint32, context *string) (models.TimerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.getTimer(eventType)
	if err != nil {
		return models.TimerRecord{}, err
	}

	if intervalSecs != nil {
		existing.IntervalSecs = *intervalSecs
	}
	if context != nil {
		existing.Context = *context
	}

	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = c.db.Exec(
		`UPDATE timers SET id = ?, context = ?, interval_secs = ?, updated_at = ? WHERE event_type = ?`,
		id.String(), existing.Context, int64(existing.IntervalSecs), now, eventType,
	)
	if err != nil {
		return models.TimerRecord{}, fmt.Errorf("update timer: %w", err)
	}

	existing.ID = id
	return existing, nil
}

// DeleteTimer removes a timer, reporting whether a row was deleted.
func (c *Catalog) DeleteTimer(eventType string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.Exec("DELETE FROM timers WHERE event_type = ?", eventType)
	if err != nil {
		return false, fmt.Errorf("delete timer: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetTimer returns the timer for eventType, or ErrNotFound.
func (c *Catalog) GetTimer(eventType string) (models.TimerRecord, error) {
	return c.getTimer(eventType)
}

func (c *Catalog) getTimer(eventType string) (models.TimerRecord, error) {
	var (
		t        models.TimerRecord
		id       string
		interval int64
	)
	err := c.db.QueryRow(
		"SELECT id, event_type, context, interval_secs FROM timers WHERE event_type = ?",
		eventType,
	).Scan(&id, &t.EventType, &t.Context, &interval)
	if err == sql.ErrNoRows {
		return models.TimerRecord{}, ErrNotFound
	}
	if err != nil {
		return models.TimerRecord{}, fmt.Errorf("get timer: %w", err)
	}
	t.ID, _ = uuid.Parse(id)
	t.IntervalSecs = uint32(interval)
	return t, nil
}

// GetTimerID returns the current authoritative timer id for eventType,
// or uuid.Nil when none exists. Producer loops compare against this to
// detect their own staleness.
func (c *Catalog) GetTimerID(eventType string) (uuid.UUID, error) {
	return c.getEntityID("timers", eventType)
}

// GetAllTimers lists timers ordered by event type.
func (c *Catalog) GetAllTimers() ([]models.TimerRecord, error) {
	rows, err := c.db.Query("SELECT id, event_type, context, interval_secs FROM timers ORDER BY event_type")
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	var timers []models.TimerRecord
	for rows.Next() {
		var (
			t        models.TimerRecord
			id       string
			interval int64
		)
		if err := rows.Scan(&id, &t.EventType, &t.Context, &interval); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		t.ID, _ = uuid.Parse(id)
		t.IntervalSecs = uint32(interval)
		timers = append(timers, t)
	}
	return timers, rows.Err()
}

package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rhkang/shev/pkg/shev/models"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertSchedule creates a schedule record for eventType. The event type
// must not already have a schedule.
func (c *Catalog) InsertSchedule(eventType, context string, scheduledTime time.Time, periodic bool) (models.ScheduleRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.Exec(
		`INSERT INTO schedules (id, event_type, context, scheduled_time, periodic, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), eventType, context, scheduledTime.UTC().Format(time.RFC3339), boolToInt(periodic), now, now,
	)
	if err != nil {
		return models.ScheduleRecord{}, fmt.Errorf("insert schedule: %w", err)
	}
	return models.ScheduleRecord{
		ID: id, EventType: eventType, Context: context,
		ScheduledTime: scheduledTime.UTC(), Periodic: periodic,
	}, nil
}

// UpdateSchedule rewrites an existing schedule with a fresh id. Nil
// fields retain their previous values.
func (c *Catalog) UpdateSchedule(eventType string, scheduledTime *time.Time, context *string, periodic *bool) (models.ScheduleRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.getSchedule(eventType)
	if err != nil {
		return models.ScheduleRecord{}, err
	}

	if scheduledTime != nil {
		existing.ScheduledTime = scheduledTime.UTC()
	}
	if context != nil {
		existing.Context = *context
	}
	if periodic != nil {
		existing.Periodic = *periodic
	}

	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = c.db.Exec(
		`UPDATE schedules SET id = ?, context = ?, scheduled_time = ?, periodic = ?, updated_at = ?
		 WHERE event_type = ?`,
		id.String(), existing.Context, existing.ScheduledTime.Format(time.RFC3339),
		boolToInt(existing.Periodic), now, eventType,
	)
	if err != nil {
		return models.ScheduleRecord{}, fmt.Errorf("update schedule: %w", err)
	}

	existing.ID = id
	return existing, nil
}

// DeleteSchedule removes a schedule, reporting whether a row was deleted.
func (c *Catalog) DeleteSchedule(eventType string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.Exec("DELETE FROM schedules WHERE event_type = ?", eventType)
	if err != nil {
		return false, fmt.Errorf("delete schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetSchedule returns the schedule for eventType, or ErrNotFound.
func (c *Catalog) GetSchedule(eventType string) (models.ScheduleRecord, error) {
	return c.getSchedule(eventType)
}

func (c *Catalog) getSchedule(eventType string) (models.ScheduleRecord, error) {
	var (
		s         models.ScheduleRecord
		id        string
		scheduled string
		periodic  int
	)
	err := c.db.QueryRow(
		"SELECT id, event_type, context, scheduled_time, periodic FROM schedules WHERE event_type = ?",
		eventType,
	).Scan(&id, &s.EventType, &s.Context, &scheduled, &periodic)
	if err == sql.ErrNoRows {
		return models.ScheduleRecord{}, ErrNotFound
	}
	if err != nil {
		return models.ScheduleRecord{}, fmt.Errorf("get schedule: %w", err)
	}
	s.ID, _ = uuid.Parse(id)
	s.ScheduledTime, _ = time.Parse(time.RFC3339, scheduled)
	s.Periodic = periodic != 0
	return s, nil
}

// GetScheduleID returns the current authoritative schedule id for
// eventType, or uuid.Nil when none exists.
func (c *Catalog) GetScheduleID(eventType string) (uuid.UUID, error) {
	return c.getEntityID("schedules", eventType)
}

// GetAllSchedules lists schedules ordered by event type.
func (c *Catalog) GetAllSchedules() ([]models.ScheduleRecord, error) {
	rows, err := c.db.Query("SELECT id, event_type, context, scheduled_time, periodic FROM schedules ORDER BY event_type")
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.ScheduleRecord
	for rows.Next() {
		var (
			s         models.ScheduleRecord
			id        string
			scheduled string
			periodic  int
		)
		if err := rows.Scan(&id, &s.EventType, &s.Context, &scheduled, &periodic); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		s.ID, _ = uuid.Parse(id)
		s.ScheduledTime, _ = time.Parse(time.RFC3339, scheduled)
		s.Periodic = periodic != 0
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

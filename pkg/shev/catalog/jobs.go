package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rhkang/shev/pkg/shev/models"
)

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// InsertJob persists a freshly created (pending) job row.
func (c *Catalog) InsertJob(job models.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		`INSERT INTO jobs (id, event_id, event_type, event_context, event_timestamp,
		                   handler_id, status, output, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Event.ID.String(), job.Event.EventType, job.Event.Context,
		job.Event.Timestamp.UTC().Format(time.RFC3339), job.HandlerID.String(),
		string(job.Status), job.Output, job.Error,
		nullableTime(job.StartedAt), nullableTime(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob writes a job's mutable fields (status, output, error,
// started_at, finished_at).
func (c *Catalog) UpdateJob(job models.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		`UPDATE jobs SET status = ?, output = ?, error = ?, started_at = ?, finished_at = ?
		 WHERE id = ?`,
		string(job.Status), job.Output, job.Error,
		nullableTime(job.StartedAt), nullableTime(job.FinishedAt), job.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given id, or ErrNotFound.
func (c *Catalog) GetJob(jobID uuid.UUID) (models.Job, error) {
	row := c.db.QueryRow(
		`SELECT id, event_id, event_type, event_context, event_timestamp,
		        handler_id, status, output, error, started_at, finished_at
		 FROM jobs WHERE id = ?`, jobID.String())
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// GetAllJobs lists jobs newest-first by event timestamp, optionally
// filtered by status, capped at limit.
func (c *Catalog) GetAllJobs(status *models.JobStatus, limit int) ([]models.Job, error) {
	query := `SELECT id, event_id, event_type, event_context, event_timestamp,
	                 handler_id, status, output, error, started_at, finished_at
	          FROM jobs`
	args := []any{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY event_timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountJobsByStatus returns job counts keyed by status.
func (c *Catalog) CountJobsByStatus() (map[models.JobStatus]int, error) {
	rows, err := c.db.Query("SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := map[models.JobStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[models.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

// HasActiveJob reports whether any job for eventType is pending or
// running. Producers consult this before emitting.
func (c *Catalog) HasActiveJob(eventType string) bool {
	var count int64
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM jobs WHERE event_type = ? AND (status = 'pending' OR status = 'running')",
		eventType,
	).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// CancelStaleJobs transitions every pending or running job to cancelled.
// Called once at startup: any job still active in the catalog was left
// behind by a previous process.
func (c *Catalog) CancelStaleJobs() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := c.db.Exec(
		`UPDATE jobs SET status = 'cancelled', error = 'Backend restarted', finished_at = ?
		 WHERE status = 'pending' OR status = 'running'`, now)
	if err != nil {
		return 0, fmt.Errorf("cancel stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		j          models.Job
		id         string
		eventID    string
		eventTS    string
		handlerID  string
		status     string
		output     sql.NullString
		errMsg     sql.NullString
		startedAt  sql.NullString
		finishedAt sql.NullString
	)
	if err := row.Scan(&id, &eventID, &j.Event.EventType, &j.Event.Context, &eventTS,
		&handlerID, &status, &output, &errMsg, &startedAt, &finishedAt); err != nil {
		return models.Job{}, err
	}
	j.ID, _ = uuid.Parse(id)
	j.Event.ID, _ = uuid.Parse(eventID)
	j.Event.Timestamp, _ = time.Parse(time.RFC3339, eventTS)
	j.HandlerID, _ = uuid.Parse(handlerID)
	j.Status = models.JobStatus(status)
	if output.Valid {
		j.Output = &output.String
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			j.StartedAt = &t
		}
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			j.FinishedAt = &t
		}
	}
	return j, nil
}

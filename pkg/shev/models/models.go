// Package models defines the domain types shared by the catalog, the
// producers and the HTTP surface: handlers, timers, schedules, events,
// jobs and warnings.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ShellType selects the shell program a handler command runs under.
type ShellType string

const (
	ShellPwsh ShellType = "pwsh"
	ShellBash ShellType = "bash"
	ShellSh   ShellType = "sh"
)

// ParseShellType parses a shell name. "powershell" is accepted as an
// alias for pwsh.
func ParseShellType(s string) (ShellType, error) {
	switch s {
	case "pwsh", "powershell":
		return ShellPwsh, nil
	case "bash":
		return ShellBash, nil
	case "sh":
		return ShellSh, nil
	}
	return "", fmt.Errorf("invalid shell type %q (want pwsh, bash or sh)", s)
}

// CommandArgs returns the shell binary and argument vector that execute
// the given command string under this shell.
func (s ShellType) CommandArgs(command string) (string, []string) {
	switch s {
	case ShellPwsh:
		return "pwsh", []string{"-Command", command}
	case ShellBash:
		return "bash", []string{"-c", command}
	default:
		return "sh", []string{"-c", command}
	}
}

// Handler is the durable spec of a shell command bound to an event type.
// Every mutation regenerates ID, so a job's handler_id identifies the
// exact handler version it ran against.
type Handler struct {
	ID        uuid.UUID         `json:"id"`
	EventType string            `json:"event_type"`
	Shell     ShellType         `json:"shell"`
	Command   string            `json:"command"`
	Timeout   *uint32           `json:"timeout,omitempty"`
	Env       map[string]string `json:"env"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TimerRecord is the durable spec of an interval producer. Unique by
// event type; updates regenerate ID.
type TimerRecord struct {
	ID           uuid.UUID `json:"id"`
	EventType    string    `json:"event_type"`
	Context      string    `json:"context"`
	IntervalSecs uint32    `json:"interval_secs"`
}

// ScheduleRecord is the durable spec of a wall-clock producer. When
// Periodic is set the schedule fires daily at the same wall-clock time,
// anchored at ScheduledTime.
type ScheduleRecord struct {
	ID            uuid.UUID `json:"id"`
	EventType     string    `json:"event_type"`
	Context       string    `json:"context"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Periodic      bool      `json:"periodic"`
}

// Event is one occurrence of an event type, produced by a timer, a
// schedule or the HTTP boundary. Events are not persisted on their own;
// they survive embedded in the job that consumed them.
type Event struct {
	ID        uuid.UUID `json:"id"`
	EventType string    `json:"event_type"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event with a fresh id stamped at the current UTC time.
func NewEvent(eventType, context string) Event {
	return Event{
		ID:        uuid.New(),
		EventType: eventType,
		Context:   context,
		Timestamp: time.Now().UTC(),
	}
}

// JobStatus is the lifecycle state of a job. Valid transitions are
// pending -> running|cancelled and running -> completed|failed|cancelled.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus parses a status name.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return JobStatus(s), nil
	}
	return "", fmt.Errorf("invalid job status %q", s)
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the status is pending or running.
func (s JobStatus) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Job is the durable record of one attempted execution of a handler
// against one event. HandlerID is captured at dispatch time; later
// handler updates do not rewrite history.
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Event      Event      `json:"event"`
	HandlerID  uuid.UUID  `json:"handler_id"`
	Status     JobStatus  `json:"status"`
	Output     *string    `json:"output,omitempty"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a pending job binding an event to a handler version.
func NewJob(event Event, handlerID uuid.UUID) Job {
	return Job{
		ID:        uuid.New(),
		Event:     event,
		HandlerID: handlerID,
		Status:    StatusPending,
	}
}

// WarningKind classifies operator warnings surfaced on /health.
type WarningKind string

// WarnMissingHandler flags a timer or schedule whose event type has no
// registered handler.
const WarnMissingHandler WarningKind = "missing_handler"

// Warning is an in-memory operator notice. Warnings are recomputed on
// read, so a warning disappears once its cause is resolved.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	EventType string      `json:"event_type"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}

package api

import (
	"time"

	"github.com/rhkang/shev/pkg/shev/models"
)

// Requests.

type createHandlerRequest struct {
	EventType string            `json:"event_type"`
	Shell     string            `json:"shell"`
	Command   string            `json:"command"`
	Timeout   *uint32           `json:"timeout,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

type updateHandlerRequest struct {
	Shell   *string           `json:"shell,omitempty"`
	Command *string           `json:"command,omitempty"`
	Timeout *uint32           `json:"timeout,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type createTimerRequest struct {
	EventType    string `json:"event_type"`
	Context      string `json:"context"`
	IntervalSecs uint32 `json:"interval_secs"`
}

type updateTimerRequest struct {
	IntervalSecs *uint32 `json:"interval_secs,omitempty"`
	Context      *string `json:"context,omitempty"`
}

type createScheduleRequest struct {
	EventType     string    `json:"event_type"`
	Context       string    `json:"context"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Periodic      bool      `json:"periodic"`
}

type updateScheduleRequest struct {
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Context       *string    `json:"context,omitempty"`
	Periodic      *bool      `json:"periodic,omitempty"`
}

type triggerEventRequest struct {
	EventType string `json:"event_type"`
	Context   string `json:"context"`
}

type updateConfigRequest struct {
	Port      *string `json:"port,omitempty"`
	QueueSize *string `json:"queue_size,omitempty"`
}

// Responses.

type statusResponse struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	CancelledJobs int `json:"cancelled_jobs"`
}

type healthResponse struct {
	Healthy  bool             `json:"healthy"`
	Warnings []models.Warning `json:"warnings"`
}

type triggerEventResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

type reloadResponse struct {
	HandlersLoaded  int `json:"handlers_loaded"`
	TimersLoaded    int `json:"timers_loaded"`
	SchedulesLoaded int `json:"schedules_loaded"`
}

type configResponse struct {
	Port      uint16 `json:"port"`
	QueueSize int    `json:"queue_size"`
}

type errorResponse struct {
	Error string `json:"error"`
}

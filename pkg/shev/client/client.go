// Package client is the typed HTTP client the CLI uses against a
// running backend.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rhkang/shev/pkg/shev/models"
)

// DefaultURL is the backend address used when SHEV_URL is unset.
const DefaultURL = "http://127.0.0.1:3000"

// Request and response bodies shared with the backend.

type CreateHandlerRequest struct {
	EventType string            `json:"event_type"`
	Shell     string            `json:"shell"`
	Command   string            `json:"command"`
	Timeout   *uint32           `json:"timeout,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

type UpdateHandlerRequest struct {
	Shell   *string           `json:"shell,omitempty"`
	Command *string           `json:"command,omitempty"`
	Timeout *uint32           `json:"timeout,omitempty"`
	Env     map[string]string `json:"env"`
}

type CreateTimerRequest struct {
	EventType    string `json:"event_type"`
	Context      string `json:"context"`
	IntervalSecs uint32 `json:"interval_secs"`
}

type UpdateTimerRequest struct {
	IntervalSecs *uint32 `json:"interval_secs,omitempty"`
	Context      *string `json:"context,omitempty"`
}

type CreateScheduleRequest struct {
	EventType     string    `json:"event_type"`
	Context       string    `json:"context"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Periodic      bool      `json:"periodic"`
}

type UpdateScheduleRequest struct {
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Context       *string    `json:"context,omitempty"`
	Periodic      *bool      `json:"periodic,omitempty"`
}

type TriggerEventRequest struct {
	EventType string `json:"event_type"`
	Context   string `json:"context"`
}

type TriggerEventResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

type UpdateConfigRequest struct {
	Port      *string `json:"port,omitempty"`
	QueueSize *string `json:"queue_size,omitempty"`
}

type ConfigResponse struct {
	Port      uint16 `json:"port"`
	QueueSize int    `json:"queue_size"`
}

type StatusResponse struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	CancelledJobs int `json:"cancelled_jobs"`
}

type HealthResponse struct {
	Healthy  bool             `json:"healthy"`
	Warnings []models.Warning `json:"warnings"`
}

type ReloadResponse struct {
	HandlersLoaded  int `json:"handlers_loaded"`
	TimersLoaded    int `json:"timers_loaded"`
	SchedulesLoaded int `json:"schedules_loaded"`
}

// Client talks to one backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// BaseURL resolves the backend URL: explicit value, SHEV_URL, default.
func BaseURL(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if url := os.Getenv("SHEV_URL"); url != "" {
		return url
	}
	return DefaultURL
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		msg := string(raw)
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// Handlers.

func (c *Client) CreateHandler(req CreateHandlerRequest) (models.Handler, error) {
	var h models.Handler
	err := c.do(http.MethodPost, "/handlers", req, &h)
	return h, err
}

func (c *Client) UpdateHandler(eventType string, req UpdateHandlerRequest) (models.Handler, error) {
	var h models.Handler
	err := c.do(http.MethodPut, "/handlers/"+eventType, req, &h)
	return h, err
}

func (c *Client) DeleteHandler(eventType string) error {
	return c.do(http.MethodDelete, "/handlers/"+eventType, nil, nil)
}

func (c *Client) ListHandlers() ([]models.Handler, error) {
	var hs []models.Handler
	err := c.do(http.MethodGet, "/handlers", nil, &hs)
	return hs, err
}

func (c *Client) GetHandler(eventType string) (models.Handler, error) {
	var h models.Handler
	err := c.do(http.MethodGet, "/handlers/"+eventType, nil, &h)
	return h, err
}

// Timers.

func (c *Client) CreateTimer(req CreateTimerRequest) (models.TimerRecord, error) {
	var t models.TimerRecord
	err := c.do(http.MethodPost, "/timers", req, &t)
	return t, err
}

func (c *Client) UpdateTimer(eventType string, req UpdateTimerRequest) (models.TimerRecord, error) {
	var t models.TimerRecord
	err := c.do(http.MethodPut, "/timers/"+eventType, req, &t)
	return t, err
}

func (c *Client) DeleteTimer(eventType string) error {
	return c.do(http.MethodDelete, "/timers/"+eventType, nil, nil)
}

func (c *Client) ListTimers() ([]models.TimerRecord, error) {
	var ts []models.TimerRecord
	err := c.do(http.MethodGet, "/timers", nil, &ts)
	return ts, err
}

func (c *Client) GetTimer(eventType string) (models.TimerRecord, error) {
	var t models.TimerRecord
	err := c.do(http.MethodGet, "/timers/"+eventType, nil, &t)
	return t, err
}

func (c *Client) TriggerTimer(eventType string) (TriggerEventResponse, error) {
	var resp TriggerEventResponse
	err := c.do(http.MethodPost, "/timers/"+eventType+"/trigger", nil, &resp)
	return resp, err
}

// Schedules.

func (c *Client) CreateSchedule(req CreateScheduleRequest) (models.ScheduleRecord, error) {
	var s models.ScheduleRecord
	err := c.do(http.MethodPost, "/schedules", req, &s)
	return s, err
}

func (c *Client) UpdateSchedule(eventType string, req UpdateScheduleRequest) (models.ScheduleRecord, error) {
	var s models.ScheduleRecord
	err := c.do(http.MethodPut, "/schedules/"+eventType, req, &s)
	return s, err
}

func (c *Client) DeleteSchedule(eventType string) error {
	return c.do(http.MethodDelete, "/schedules/"+eventType, nil, nil)
}

func (c *Client) ListSchedules() ([]models.ScheduleRecord, error) {
	var ss []models.ScheduleRecord
	err := c.do(http.MethodGet, "/schedules", nil, &ss)
	return ss, err
}

func (c *Client) GetSchedule(eventType string) (models.ScheduleRecord, error) {
	var s models.ScheduleRecord
	err := c.do(http.MethodGet, "/schedules/"+eventType, nil, &s)
	return s, err
}

// Jobs.

func (c *Client) ListJobs(status string, limit int) ([]models.Job, error) {
	path := fmt.Sprintf("/jobs?limit=%d", limit)
	if status != "" {
		path += "&status=" + status
	}
	var jobs []models.Job
	err := c.do(http.MethodGet, path, nil, &jobs)
	return jobs, err
}

func (c *Client) GetJob(id string) (models.Job, error) {
	var j models.Job
	err := c.do(http.MethodGet, "/jobs/"+id, nil, &j)
	return j, err
}

func (c *Client) CancelJob(id string) (models.Job, error) {
	var j models.Job
	err := c.do(http.MethodPost, "/jobs/"+id+"/cancel", nil, &j)
	return j, err
}

// Events, config, status.

func (c *Client) TriggerEvent(eventType, context string) (TriggerEventResponse, error) {
	var resp TriggerEventResponse
	err := c.do(http.MethodPost, "/events", TriggerEventRequest{EventType: eventType, Context: context}, &resp)
	return resp, err
}

func (c *Client) GetConfig() (ConfigResponse, error) {
	var cfg ConfigResponse
	err := c.do(http.MethodGet, "/config", nil, &cfg)
	return cfg, err
}

func (c *Client) UpdateConfig(req UpdateConfigRequest) (ConfigResponse, error) {
	var cfg ConfigResponse
	err := c.do(http.MethodPut, "/config", req, &cfg)
	return cfg, err
}

func (c *Client) Status() (StatusResponse, error) {
	var st StatusResponse
	err := c.do(http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Health() (HealthResponse, error) {
	var h HealthResponse
	err := c.do(http.MethodGet, "/health", nil, &h)
	return h, err
}

func (c *Client) Reload() (ReloadResponse, error) {
	var resp ReloadResponse
	err := c.do(http.MethodPost, "/reload", nil, &resp)
	return resp, err
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rhkang/shev/pkg/shev/dispatcher"
	"github.com/rhkang/shev/pkg/shev/models"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	d, err := dispatcher.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open dispatcher: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}

	ts := httptest.NewServer(New(d, nil, nil).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHandlerCRUD(t *testing.T) {
	ts := startTestServer(t)

	var created models.Handler
	code := doJSON(t, http.MethodPost, ts.URL+"/handlers", map[string]any{
		"event_type": "deploy",
		"shell":      "sh",
		"command":    "echo hi",
		"env":        map[string]string{"A": "1"},
	}, &created)
	if code != http.StatusOK {
		t.Fatalf("create = %d", code)
	}
	if created.EventType != "deploy" || created.Shell != models.ShellSh {
		t.Fatalf("created = %+v", created)
	}

	var listed []models.Handler
	if code := doJSON(t, http.MethodGet, ts.URL+"/handlers", nil, &listed); code != http.StatusOK {
		t.Fatalf("list = %d", code)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d handlers", len(listed))
	}

	var fetched models.Handler
	if code := doJSON(t, http.MethodGet, ts.URL+"/handlers/deploy", nil, &fetched); code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	if fetched.ID != created.ID {
		t.Errorf("fetched id %s, want %s", fetched.ID, created.ID)
	}

	var updated models.Handler
	if code := doJSON(t, http.MethodPut, ts.URL+"/handlers/deploy", map[string]any{
		"command": "echo bye",
	}, &updated); code != http.StatusOK {
		t.Fatalf("update = %d", code)
	}
	if updated.ID == created.ID {
		t.Error("update must rotate the id")
	}
	if updated.Env["A"] != "1" {
		t.Errorf("env lost on partial update: %v", updated.Env)
	}

	if code := doJSON(t, http.MethodDelete, ts.URL+"/handlers/deploy", nil, nil); code != http.StatusOK {
		t.Fatalf("delete = %d", code)
	}
	if code := doJSON(t, http.MethodDelete, ts.URL+"/handlers/deploy", nil, nil); code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", code)
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/handlers/deploy", nil, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", code)
	}
}

func TestHandlerValidation(t *testing.T) {
	ts := startTestServer(t)

	code := doJSON(t, http.MethodPost, ts.URL+"/handlers", map[string]any{
		"event_type": "x", "shell": "zsh", "command": "true",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("invalid shell = %d, want 400", code)
	}

	code = doJSON(t, http.MethodPost, ts.URL+"/handlers", map[string]any{
		"shell": "sh", "command": "true",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("missing event_type = %d, want 400", code)
	}

	code = doJSON(t, http.MethodPost, ts.URL+"/handlers", map[string]any{
		"event_type": "x", "shell": "sh", "command": "true", "timeout": 0,
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("zero timeout = %d, want 400", code)
	}
}

func TestTimerValidation(t *testing.T) {
	ts := startTestServer(t)

	code := doJSON(t, http.MethodPost, ts.URL+"/timers", map[string]any{
		"event_type": "tick", "interval_secs": 0,
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("zero interval = %d, want 400", code)
	}

	var created models.TimerRecord
	code = doJSON(t, http.MethodPost, ts.URL+"/timers", map[string]any{
		"event_type": "tick", "interval_secs": 3600, "context": "c",
	}, &created)
	if code != http.StatusOK {
		t.Fatalf("create = %d", code)
	}

	var updated models.TimerRecord
	if code := doJSON(t, http.MethodPut, ts.URL+"/timers/tick", map[string]any{
		"interval_secs": 7200,
	}, &updated); code != http.StatusOK {
		t.Fatalf("update = %d", code)
	}
	if updated.ID == created.ID {
		t.Error("update must rotate the id")
	}
	if updated.Context != "c" {
		t.Errorf("context lost: %q", updated.Context)
	}
}

func TestScheduleValidation(t *testing.T) {
	ts := startTestServer(t)

	// Malformed RFC3339 is rejected at decode time.
	code := doJSON(t, http.MethodPost, ts.URL+"/schedules", map[string]any{
		"event_type": "report", "scheduled_time": "tomorrow",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad time = %d, want 400", code)
	}

	var created models.ScheduleRecord
	code = doJSON(t, http.MethodPost, ts.URL+"/schedules", map[string]any{
		"event_type":     "report",
		"scheduled_time": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"periodic":       true,
	}, &created)
	if code != http.StatusOK {
		t.Fatalf("create = %d", code)
	}
	if !created.Periodic {
		t.Error("periodic flag lost")
	}
}

func TestJobEndpoints(t *testing.T) {
	ts := startTestServer(t)

	var jobs []models.Job
	if code := doJSON(t, http.MethodGet, ts.URL+"/jobs", nil, &jobs); code != http.StatusOK {
		t.Fatalf("list = %d", code)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(jobs))
	}

	if code := doJSON(t, http.MethodGet, ts.URL+"/jobs?status=bogus", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", code)
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/jobs/not-a-uuid", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad job id = %d, want 400", code)
	}
	code := doJSON(t, http.MethodPost,
		ts.URL+"/jobs/00000000-0000-0000-0000-000000000001/cancel", nil, nil)
	if code != http.StatusNotFound {
		t.Errorf("cancel missing = %d, want 404", code)
	}
}

func TestStatusCounts(t *testing.T) {
	ts := startTestServer(t)

	var status statusResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/status", nil, &status); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if status.TotalJobs != 0 {
		t.Errorf("total = %d, want 0", status.TotalJobs)
	}
}

func TestHealthWarningFlow(t *testing.T) {
	ts := startTestServer(t)

	mustOK := func(method, path string, body any) {
		t.Helper()
		if code := doJSON(t, method, ts.URL+path, body, nil); code != http.StatusOK {
			t.Fatalf("%s %s = %d", method, path, code)
		}
	}

	mustOK(http.MethodPost, "/handlers", map[string]any{"event_type": "e", "shell": "sh", "command": "true"})
	mustOK(http.MethodPost, "/timers", map[string]any{"event_type": "e", "interval_secs": 3600})
	mustOK(http.MethodDelete, "/handlers/e", nil)

	var health healthResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/health", nil, &health); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
	if health.Healthy {
		t.Fatal("health should be degraded after deleting a referenced handler")
	}
	if len(health.Warnings) != 1 || health.Warnings[0].Kind != models.WarnMissingHandler {
		t.Fatalf("warnings = %+v", health.Warnings)
	}

	// Re-creating the handler resolves the warning.
	mustOK(http.MethodPost, "/handlers", map[string]any{"event_type": "e", "shell": "sh", "command": "true"})
	if code := doJSON(t, http.MethodGet, ts.URL+"/health", nil, &health); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
	if !health.Healthy {
		t.Fatalf("health still degraded: %+v", health.Warnings)
	}
}

func TestEventInjection(t *testing.T) {
	ts := startTestServer(t)

	var resp triggerEventResponse
	if code := doJSON(t, http.MethodPost, ts.URL+"/events", map[string]any{
		"event_type": "missing",
	}, &resp); code != http.StatusOK {
		t.Fatalf("events = %d", code)
	}
	if resp.Triggered {
		t.Error("event without handler should not trigger")
	}
}

func TestEventRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ts := startTestServer(t)

	if code := doJSON(t, http.MethodPost, ts.URL+"/handlers", map[string]any{
		"event_type": "echo", "shell": "sh", "command": "echo hi",
	}, nil); code != http.StatusOK {
		t.Fatalf("create handler = %d", code)
	}

	var resp triggerEventResponse
	if code := doJSON(t, http.MethodPost, ts.URL+"/events", map[string]any{
		"event_type": "echo",
	}, &resp); code != http.StatusOK || !resp.Triggered {
		t.Fatalf("trigger = %d, %+v", code, resp)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var jobs []models.Job
		if code := doJSON(t, http.MethodGet, ts.URL+"/jobs", nil, &jobs); code != http.StatusOK {
			t.Fatalf("list = %d", code)
		}
		if len(jobs) == 1 && jobs[0].Status == models.StatusCompleted {
			if jobs[0].Output == nil || *jobs[0].Output != "hi\n" {
				t.Fatalf("output = %v", jobs[0].Output)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestConfigEndpoint(t *testing.T) {
	ts := startTestServer(t)

	var cfg configResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/config", nil, &cfg); code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	if cfg.Port != 3000 || cfg.QueueSize != 100 {
		t.Errorf("defaults = %+v", cfg)
	}

	if code := doJSON(t, http.MethodPut, ts.URL+"/config", map[string]any{"port": "0"}, nil); code != http.StatusBadRequest {
		t.Errorf("zero port = %d, want 400", code)
	}
	if code := doJSON(t, http.MethodPut, ts.URL+"/config", map[string]any{"port": "words"}, nil); code != http.StatusBadRequest {
		t.Errorf("bad port = %d, want 400", code)
	}
	if code := doJSON(t, http.MethodPut, ts.URL+"/config", map[string]any{"queue_size": "-1"}, nil); code != http.StatusBadRequest {
		t.Errorf("bad queue_size = %d, want 400", code)
	}

	if code := doJSON(t, http.MethodPut, ts.URL+"/config", map[string]any{"port": "8080", "queue_size": "10"}, &cfg); code != http.StatusOK {
		t.Fatalf("put = %d", code)
	}
	if cfg.Port != 8080 || cfg.QueueSize != 10 {
		t.Errorf("updated = %+v", cfg)
	}
}

func TestReloadIdempotent(t *testing.T) {
	ts := startTestServer(t)

	if code := doJSON(t, http.MethodPost, ts.URL+"/handlers", map[string]any{
		"event_type": "a", "shell": "sh", "command": "true",
	}, nil); code != http.StatusOK {
		t.Fatalf("create = %d", code)
	}
	if code := doJSON(t, http.MethodPost, ts.URL+"/timers", map[string]any{
		"event_type": "a", "interval_secs": 3600,
	}, nil); code != http.StatusOK {
		t.Fatalf("timer = %d", code)
	}

	for i := 0; i < 3; i++ {
		var resp reloadResponse
		if code := doJSON(t, http.MethodPost, ts.URL+"/reload", nil, &resp); code != http.StatusOK {
			t.Fatalf("reload %d = %d", i, code)
		}
		if resp.HandlersLoaded != 1 || resp.TimersLoaded != 1 || resp.SchedulesLoaded != 0 {
			t.Fatalf("reload %d = %+v", i, resp)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := startTestServer(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/status"},
		{http.MethodPut, "/events"},
		{http.MethodGet, "/reload"},
	} {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestIPFilter(t *testing.T) {
	filter := NewIPFilter(nil, nil)

	if !filter.Allowed(mustIP("127.0.0.1"), http.MethodDelete) {
		t.Error("loopback must always be allowed")
	}
	if filter.Allowed(mustIP("10.0.0.9"), http.MethodPost) {
		t.Error("non-loopback write without allowlist must be refused")
	}
	if !filter.Allowed(mustIP("10.0.0.9"), http.MethodGet) {
		t.Error("read with empty read list must be allowed")
	}

	filter = NewIPFilter([]net.IP{mustIP("10.0.0.8")}, []net.IP{mustIP("10.0.0.9")})
	if !filter.Allowed(mustIP("10.0.0.9"), http.MethodDelete) {
		t.Error("write-listed address must write")
	}
	if filter.Allowed(mustIP("10.0.0.8"), http.MethodPost) {
		t.Error("read-listed address must not write")
	}
	if !filter.Allowed(mustIP("10.0.0.8"), http.MethodGet) {
		t.Error("read-listed address must read")
	}
	if filter.Allowed(mustIP("10.0.0.7"), http.MethodGet) {
		t.Error("unlisted address must not read once a read list exists")
	}
}

func mustIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic(fmt.Sprintf("bad test ip %q", s))
	}
	return ip
}

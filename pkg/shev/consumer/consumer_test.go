package consumer

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rhkang/shev/pkg/shev/catalog"
	"github.com/rhkang/shev/pkg/shev/executor"
	"github.com/rhkang/shev/pkg/shev/models"
	"github.com/rhkang/shev/pkg/shev/queue"
	"github.com/rhkang/shev/pkg/shev/store"
)

func setup(t *testing.T) (*store.Store, *queue.Queue) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	st := store.New(cat, nil)
	q := queue.New(16)
	t.Cleanup(q.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := New(st, q, executor.New(), nil)
	go c.Run(ctx)
	return st, q
}

// waitForJob polls until a job for eventType reaches a terminal status.
func waitForJob(t *testing.T, st *store.Store, eventType string, within time.Duration) models.Job {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		jobs, err := st.Catalog().GetAllJobs(nil, 50)
		if err != nil {
			t.Fatalf("list jobs: %v", err)
		}
		for _, j := range jobs {
			if j.Event.EventType == eventType && j.Status.Terminal() {
				return j
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("no terminal job for %q within %s", eventType, within)
	return models.Job{}
}

func TestEventRunsToCompletion(t *testing.T) {
	st, q := setup(t)

	handler, err := st.UpsertHandler("echo", models.ShellSh, "echo hi", nil, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	if err := q.Send(models.NewEvent("echo", "")); err != nil {
		t.Fatalf("send: %v", err)
	}

	job := waitForJob(t, st, "echo", 5*time.Second)
	if job.Status != models.StatusCompleted {
		t.Fatalf("status = %s, error = %v", job.Status, job.Error)
	}
	if job.Output == nil || *job.Output != "hi\n" {
		t.Errorf("output = %v, want \"hi\\n\"", job.Output)
	}
	if job.HandlerID != handler.ID {
		t.Errorf("handler_id = %s, want %s", job.HandlerID, handler.ID)
	}
	if job.StartedAt == nil || job.FinishedAt == nil {
		t.Error("lifecycle timestamps missing")
	}
}

func TestEventWithoutHandlerCreatesNoJob(t *testing.T) {
	st, q := setup(t)

	if err := q.Send(models.NewEvent("unknown", "")); err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	jobs, err := st.Catalog().GetAllJobs(nil, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("jobs = %d, want 0", len(jobs))
	}
}

func TestFailureMapsExitCode(t *testing.T) {
	st, q := setup(t)

	if _, err := st.UpsertHandler("bad", models.ShellSh, "exit 3", nil, nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := q.Send(models.NewEvent("bad", "")); err != nil {
		t.Fatalf("send: %v", err)
	}

	job := waitForJob(t, st, "bad", 5*time.Second)
	if job.Status != models.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Error == nil || *job.Error != "Exit code: 3" {
		t.Errorf("error = %v, want \"Exit code: 3\"", job.Error)
	}
}

func TestFailurePrefersStderr(t *testing.T) {
	st, q := setup(t)

	if _, err := st.UpsertHandler("bad", models.ShellSh, "echo boom >&2; exit 1", nil, nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := q.Send(models.NewEvent("bad", "")); err != nil {
		t.Fatalf("send: %v", err)
	}

	job := waitForJob(t, st, "bad", 5*time.Second)
	if job.Status != models.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "boom") {
		t.Errorf("error = %v", job.Error)
	}
}

func TestTimeoutRecordedOnJob(t *testing.T) {
	st, q := setup(t)

	timeout := uint32(1)
	if _, err := st.UpsertHandler("slow", models.ShellSh, "sleep 5", &timeout, nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := q.Send(models.NewEvent("slow", "")); err != nil {
		t.Fatalf("send: %v", err)
	}

	job := waitForJob(t, st, "slow", 5*time.Second)
	if job.Status != models.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "timed out after 1") {
		t.Errorf("error = %v", job.Error)
	}
}

func TestCancelDuringRunWins(t *testing.T) {
	st, q := setup(t)

	if _, err := st.UpsertHandler("slow", models.ShellSh, "sleep 2", nil, nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := q.Send(models.NewEvent("slow", "")); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Find the job while it is still active and cancel it.
	var cancelled bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		jobs, _ := st.Catalog().GetAllJobs(nil, 50)
		for _, j := range jobs {
			if j.Event.EventType == "slow" && j.Status.Active() {
				if _, err := st.CancelJob(j.ID); err == nil {
					cancelled = true
				}
			}
		}
		if cancelled {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !cancelled {
		t.Fatal("never caught the job in an active state")
	}

	// The sleep finishes after the cancel; the terminal status must
	// stay cancelled.
	time.Sleep(2500 * time.Millisecond)
	job := waitForJob(t, st, "slow", time.Second)
	if job.Status != models.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", job.Status)
	}
	if job.Output != nil {
		t.Error("cancelled job must not gain output")
	}
}

package executor

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rhkang/shev/pkg/shev/models"
)

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecuteSuccess(t *testing.T) {
	requireSh(t)

	handler := models.Handler{Shell: models.ShellSh, Command: "echo hi"}
	result, err := New().Execute(context.Background(), handler, "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Errorf("success = false, stderr = %q", result.Stderr)
	}
	if result.Stdout != "hi\n" {
		t.Errorf("stdout = %q, want \"hi\\n\"", result.Stdout)
	}
}

func TestExecuteExitCode(t *testing.T) {
	requireSh(t)

	handler := models.Handler{Shell: models.ShellSh, Command: "exit 3"}
	result, err := New().Execute(context.Background(), handler, "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success {
		t.Error("success = true for non-zero exit")
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestExecuteCapturesStderr(t *testing.T) {
	requireSh(t)

	handler := models.Handler{Shell: models.ShellSh, Command: "echo boom >&2; exit 1"}
	result, err := New().Execute(context.Background(), handler, "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(result.Stderr, "boom") {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestExecuteEventContextAndEnv(t *testing.T) {
	requireSh(t)

	handler := models.Handler{
		Shell:   models.ShellSh,
		Command: "echo \"$EVENT_CONTEXT:$EXTRA\"",
		Env:     map[string]string{"EXTRA": "v"},
	}
	result, err := New().Execute(context.Background(), handler, "payload")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Stdout != "payload:v\n" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestExecuteTimeout(t *testing.T) {
	requireSh(t)

	timeout := uint32(1)
	handler := models.Handler{Shell: models.ShellSh, Command: "sleep 5", Timeout: &timeout}

	start := time.Now()
	_, err := New().Execute(context.Background(), handler, "")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !strings.Contains(err.Error(), "timed out after 1 seconds") {
		t.Errorf("error = %q", err)
	}
	if elapsed > 3*time.Second {
		t.Errorf("took %s, the process was not killed", elapsed)
	}
}

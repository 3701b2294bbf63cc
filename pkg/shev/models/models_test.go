package models

import "testing"

func TestParseShellType(t *testing.T) {
	cases := []struct {
		in      string
		want    ShellType
		wantErr bool
	}{
		{"sh", ShellSh, false},
		{"bash", ShellBash, false},
		{"pwsh", ShellPwsh, false},
		{"powershell", ShellPwsh, false},
		{"zsh", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseShellType(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseShellType(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseShellType(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseShellType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCommandArgs(t *testing.T) {
	bin, args := ShellSh.CommandArgs("echo hi")
	if bin != "sh" || len(args) != 2 || args[0] != "-c" || args[1] != "echo hi" {
		t.Errorf("sh args = %q %v", bin, args)
	}
	bin, args = ShellBash.CommandArgs("ls")
	if bin != "bash" || args[0] != "-c" {
		t.Errorf("bash args = %q %v", bin, args)
	}
	bin, args = ShellPwsh.CommandArgs("Get-Date")
	if bin != "pwsh" || args[0] != "-Command" {
		t.Errorf("pwsh args = %q %v", bin, args)
	}
}

func TestParseJobStatus(t *testing.T) {
	for _, valid := range []string{"pending", "running", "completed", "failed", "cancelled"} {
		if _, err := ParseJobStatus(valid); err != nil {
			t.Errorf("ParseJobStatus(%q): %v", valid, err)
		}
	}
	if _, err := ParseJobStatus("done"); err == nil {
		t.Error("ParseJobStatus(\"done\"): expected error")
	}
}

func TestJobStatusPredicates(t *testing.T) {
	if !StatusPending.Active() || !StatusRunning.Active() {
		t.Error("pending and running should be active")
	}
	if StatusCompleted.Active() {
		t.Error("completed should not be active")
	}
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusRunning.Terminal() {
		t.Error("running should not be terminal")
	}
}

func TestNewJob(t *testing.T) {
	event := NewEvent("deploy", "ctx")
	handler := Handler{EventType: "deploy"}
	job := NewJob(event, handler.ID)

	if job.Status != StatusPending {
		t.Errorf("new job status = %s, want pending", job.Status)
	}
	if job.Event.EventType != "deploy" {
		t.Errorf("job event type = %s", job.Event.EventType)
	}
	if job.StartedAt != nil || job.FinishedAt != nil || job.Output != nil || job.Error != nil {
		t.Error("new job should have no lifecycle fields set")
	}
}

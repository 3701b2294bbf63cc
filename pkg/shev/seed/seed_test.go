package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rhkang/shev/pkg/shev/catalog"
	"github.com/rhkang/shev/pkg/shev/models"
)

const sampleSeed = `
handlers:
  - event_type: backup
    shell: sh
    command: tar czf /tmp/backup.tgz /data
    timeout: 300
    env:
      TARGET: /data
timers:
  - event_type: backup
    interval_secs: 3600
schedules:
  - event_type: backup
    time: 2026-06-01T03:00:00Z
    periodic: true
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shev.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func openCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLoadAndApply(t *testing.T) {
	cat := openCatalog(t)

	f, err := Load(writeSeed(t, sampleSeed))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := f.Apply(cat); err != nil {
		t.Fatalf("apply: %v", err)
	}

	h, err := cat.GetHandler("backup")
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if h.Shell != models.ShellSh || h.Timeout == nil || *h.Timeout != 300 || h.Env["TARGET"] != "/data" {
		t.Errorf("handler = %+v", h)
	}

	timer, err := cat.GetTimer("backup")
	if err != nil {
		t.Fatalf("timer: %v", err)
	}
	if timer.IntervalSecs != 3600 {
		t.Errorf("timer = %+v", timer)
	}

	sched, err := cat.GetSchedule("backup")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !sched.Periodic {
		t.Errorf("schedule = %+v", sched)
	}
}

func TestApplyKeepsOperatorTimers(t *testing.T) {
	cat := openCatalog(t)

	// An operator-tuned interval must survive a re-seed.
	existing, err := cat.InsertTimer("backup", "", 60)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	f, err := Load(writeSeed(t, sampleSeed))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := f.Apply(cat); err != nil {
		t.Fatalf("apply: %v", err)
	}

	timer, err := cat.GetTimer("backup")
	if err != nil {
		t.Fatalf("timer: %v", err)
	}
	if timer.ID != existing.ID || timer.IntervalSecs != 60 {
		t.Errorf("seed overwrote the operator's timer: %+v", timer)
	}
}

func TestApplyRejectsInvalidEntries(t *testing.T) {
	cat := openCatalog(t)

	bad := []string{
		"handlers:\n  - event_type: x\n    shell: zsh\n    command: true\n",
		"timers:\n  - event_type: x\n    interval_secs: 0\n",
		"schedules:\n  - event_type: x\n    time: tomorrow\n",
	}
	for _, content := range bad {
		f, err := Load(writeSeed(t, content))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if err := f.Apply(cat); err == nil {
			t.Errorf("apply accepted invalid seed: %q", content)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

// Package seed loads a YAML bootstrap file of handlers, timers and
// schedules and writes them into the catalog before the engine starts:
// handlers are upserted, timers and schedules are only inserted when
// their event type has none yet.
package seed

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rhkang/shev/pkg/shev/catalog"
	"github.com/rhkang/shev/pkg/shev/models"
)

// File is the seed file layout.
type File struct {
	Handlers  []HandlerSpec  `yaml:"handlers"`
	Timers    []TimerSpec    `yaml:"timers"`
	Schedules []ScheduleSpec `yaml:"schedules"`
}

// HandlerSpec declares one handler to upsert.
type HandlerSpec struct {
	EventType string            `yaml:"event_type"`
	Shell     string            `yaml:"shell"`
	Command   string            `yaml:"command"`
	Timeout   *uint32           `yaml:"timeout"`
	Env       map[string]string `yaml:"env"`
}

// TimerSpec declares one timer to ensure.
type TimerSpec struct {
	EventType    string `yaml:"event_type"`
	Context      string `yaml:"context"`
	IntervalSecs uint32 `yaml:"interval_secs"`
}

// ScheduleSpec declares one schedule to ensure. Time is RFC3339.
type ScheduleSpec struct {
	EventType string `yaml:"event_type"`
	Context   string `yaml:"context"`
	Time      string `yaml:"time"`
	Periodic  bool   `yaml:"periodic"`
}

// Load parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %q: %w", path, err)
	}
	return &f, nil
}

// Apply upserts the seed file's entries into the catalog. Handlers are
// always upserted (a changed seed wins); timers and schedules are only
// created when their event type has none yet, so a running installation
// keeps operator edits.
func (f *File) Apply(cat *catalog.Catalog) error {
	for _, h := range f.Handlers {
		shell, err := models.ParseShellType(h.Shell)
		if err != nil {
			return fmt.Errorf("seed handler %q: %w", h.EventType, err)
		}
		if h.Timeout != nil && *h.Timeout == 0 {
			return fmt.Errorf("seed handler %q: timeout must be greater than zero", h.EventType)
		}
		env := h.Env
		if env == nil {
			env = map[string]string{}
		}
		if _, err := cat.UpsertHandler(h.EventType, shell, h.Command, h.Timeout, env); err != nil {
			return err
		}
	}

	for _, t := range f.Timers {
		if t.IntervalSecs == 0 {
			return fmt.Errorf("seed timer %q: interval_secs must be greater than zero", t.EventType)
		}
		if id, err := cat.GetTimerID(t.EventType); err != nil {
			return err
		} else if id != uuid.Nil {
			continue
		}
		if _, err := cat.InsertTimer(t.EventType, t.Context, t.IntervalSecs); err != nil {
			return err
		}
	}

	for _, s := range f.Schedules {
		when, err := time.Parse(time.RFC3339, s.Time)
		if err != nil {
			return fmt.Errorf("seed schedule %q: invalid time %q (want RFC3339)", s.EventType, s.Time)
		}
		if id, err := cat.GetScheduleID(s.EventType); err != nil {
			return err
		} else if id != uuid.Nil {
			continue
		}
		if _, err := cat.InsertSchedule(s.EventType, s.Context, when, s.Periodic); err != nil {
			return err
		}
	}
	return nil
}

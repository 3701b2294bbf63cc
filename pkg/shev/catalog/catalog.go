// Package catalog implements the persistent catalog: a single embedded
// SQLite file holding handlers, timers, schedules, jobs and runtime
// config. The catalog is the authority for entity ids — producer loops
// decide whether they are still current by comparing their snapshot id
// against the catalog's.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rhkang/shev/pkg/shev/models"
)

// DefaultDBName is the database filename used when SHEV_DB is unset.
const DefaultDBName = "shev.db"

const schema = `
CREATE TABLE IF NOT EXISTS handlers (
    id TEXT PRIMARY KEY,
    event_type TEXT UNIQUE NOT NULL,
    shell TEXT NOT NULL,
    command TEXT NOT NULL,
    timeout INTEGER,
    env TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS timers (
    id TEXT PRIMARY KEY,
    event_type TEXT UNIQUE NOT NULL,
    context TEXT DEFAULT '',
    interval_secs INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
    id TEXT PRIMARY KEY,
    event_type TEXT UNIQUE NOT NULL,
    context TEXT DEFAULT '',
    scheduled_time TEXT NOT NULL,
    periodic INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    event_context TEXT,
    event_timestamp TEXT NOT NULL,
    handler_id TEXT NOT NULL,
    status TEXT NOT NULL,
    output TEXT,
    error TEXT,
    started_at TEXT,
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

INSERT OR IGNORE INTO config (key, value) VALUES ('port', '3000');
INSERT OR IGNORE INTO config (key, value) VALUES ('queue_size', '100');
`

// ErrNotFound is returned when no row exists for the given key.
var ErrNotFound = fmt.Errorf("not found")

// Catalog wraps the SQLite connection. Writers are serialized by a
// process-wide mutex; SQLite's own busy timeout covers the rest.
type Catalog struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// DBPath resolves the database file path: SHEV_DB if set, otherwise
// shev.db next to the running executable.
func DBPath() string {
	if path := os.Getenv("SHEV_DB"); path != "" {
		return path
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), DefaultDBName)
	}
	return DefaultDBName
}

// Open opens (or creates) the catalog at path and initializes the schema.
func Open(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c := &Catalog{db: db, logger: logger.With("component", "catalog")}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) initSchema() error {
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// ---------- Config ----------

// GetConfig returns the value for key, or "" when absent.
func (c *Catalog) GetConfig(key string) string {
	var value string
	err := c.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetConfig writes a config value.
func (c *Catalog) SetConfig(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec("INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// Port returns the configured listen port, defaulting to 3000.
func (c *Catalog) Port() uint16 {
	var port uint16
	if _, err := fmt.Sscanf(c.GetConfig("port"), "%d", &port); err != nil || port == 0 {
		return 3000
	}
	return port
}

// QueueSize returns the configured event queue capacity, defaulting to 100.
func (c *Catalog) QueueSize() int {
	var size int
	if _, err := fmt.Sscanf(c.GetConfig("queue_size"), "%d", &size); err != nil || size <= 0 {
		return 100
	}
	return size
}

// ---------- Handlers ----------

func nullableTimeout(t *uint32) any {
	if t == nil {
		return nil
	}
	return int64(*t)
}

// UpsertHandler inserts a handler for eventType, or rewrites the existing
// row with a fresh id when one exists. Every call yields a new handler
// version.
func (c *Catalog) UpsertHandler(eventType string, shell models.ShellType, command string, timeout *uint32, env map[string]string) (models.Handler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.getHandler(eventType)
	if err != nil && err != ErrNotFound {
		return models.Handler{}, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	envJSON, _ := json.Marshal(env)

	if err == ErrNotFound {
		_, err = c.db.Exec(
			`INSERT INTO handlers (id, event_type, shell, command, timeout, env, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id.String(), eventType, string(shell), command, nullableTimeout(timeout),
			string(envJSON), now.Format(time.RFC3339), now.Format(time.RFC3339),
		)
		if err != nil {
			return models.Handler{}, fmt.Errorf("insert handler: %w", err)
		}
		return models.Handler{
			ID: id, EventType: eventType, Shell: shell, Command: command,
			Timeout: timeout, Env: env, CreatedAt: now, UpdatedAt: now,
		}, nil
	}

	_, err = c.db.Exec(
		`UPDATE handlers SET id = ?, shell = ?, command = ?, timeout = ?, env = ?, updated_at = ?
		 WHERE event_type = ?`,
		id.String(), string(shell), command, nullableTimeout(timeout),
		string(envJSON), now.Format(time.RFC3339), eventType,
	)
	if err != nil {
		return models.Handler{}, fmt.Errorf("update handler: %w", err)
	}
	return models.Handler{
		ID: id, EventType: eventType, Shell: shell, Command: command,
		Timeout: timeout, Env: env, CreatedAt: existing.CreatedAt, UpdatedAt: now,
	}, nil
}

// UpdateHandler rewrites an existing handler with a fresh id. Nil fields
// retain their previous values; a non-nil env replaces the whole map.
func (c *Catalog) UpdateHandler(eventType string, shell *models.ShellType, command *string, timeout **uint32, env map[string]string) (models.Handler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.getHandler(eventType)
	if err != nil {
		return models.Handler{}, err
	}

	if shell != nil {
		existing.Shell = *shell
	}
	if command != nil {
		existing.Command = *command
	}
	if timeout != nil {
		existing.Timeout = *timeout
	}
	if env != nil {
		existing.Env = env
	}

	id := uuid.New()
	now := time.Now().UTC()
	envJSON, _ := json.Marshal(existing.Env)

	_, err = c.db.Exec(
		`UPDATE handlers SET id = ?, shell = ?, command = ?, timeout = ?, env = ?, updated_at = ?
		 WHERE event_type = ?`,
		id.String(), string(existing.Shell), existing.Command, nullableTimeout(existing.Timeout),
		string(envJSON), now.Format(time.RFC3339), eventType,
	)
	if err != nil {
		return models.Handler{}, fmt.Errorf("update handler: %w", err)
	}

	existing.ID = id
	existing.UpdatedAt = now
	return existing, nil
}

// DeleteHandler removes a handler, reporting whether a row was deleted.
func (c *Catalog) DeleteHandler(eventType string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.Exec("DELETE FROM handlers WHERE event_type = ?", eventType)
	if err != nil {
		return false, fmt.Errorf("delete handler: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetHandler returns the handler for eventType, or ErrNotFound.
func (c *Catalog) GetHandler(eventType string) (models.Handler, error) {
	return c.getHandler(eventType)
}

func (c *Catalog) getHandler(eventType string) (models.Handler, error) {
	row := c.db.QueryRow(
		`SELECT id, event_type, shell, command, timeout, env, created_at, updated_at
		 FROM handlers WHERE event_type = ?`, eventType)
	h, err := scanHandler(row)
	if err == sql.ErrNoRows {
		return models.Handler{}, ErrNotFound
	}
	if err != nil {
		return models.Handler{}, fmt.Errorf("get handler: %w", err)
	}
	return h, nil
}

// GetHandlerID returns the current authoritative handler id for
// eventType, or uuid.Nil when none exists.
func (c *Catalog) GetHandlerID(eventType string) (uuid.UUID, error) {
	return c.getEntityID("handlers", eventType)
}

// GetAllHandlers lists handlers ordered by event type.
func (c *Catalog) GetAllHandlers() ([]models.Handler, error) {
	rows, err := c.db.Query(
		`SELECT id, event_type, shell, command, timeout, env, created_at, updated_at
		 FROM handlers ORDER BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("query handlers: %w", err)
	}
	defer rows.Close()

	var handlers []models.Handler
	for rows.Next() {
		h, err := scanHandler(rows)
		if err != nil {
			return nil, fmt.Errorf("scan handler: %w", err)
		}
		handlers = append(handlers, h)
	}
	return handlers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHandler(row rowScanner) (models.Handler, error) {
	var (
		h          models.Handler
		id         string
		shell      string
		timeout    sql.NullInt64
		envJSON    sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&id, &h.EventType, &shell, &h.Command, &timeout, &envJSON, &createdAt, &updatedAt); err != nil {
		return models.Handler{}, err
	}
	h.ID, _ = uuid.Parse(id)
	h.Shell = models.ShellType(shell)
	if timeout.Valid {
		t := uint32(timeout.Int64)
		h.Timeout = &t
	}
	h.Env = map[string]string{}
	if envJSON.Valid && envJSON.String != "" {
		_ = json.Unmarshal([]byte(envJSON.String), &h.Env)
	}
	h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	h.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return h, nil
}

func (c *Catalog) getEntityID(table, eventType string) (uuid.UUID, error) {
	var id string
	err := c.db.QueryRow("SELECT id FROM "+table+" WHERE event_type = ?", eventType).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get %s id: %w", table, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, nil
	}
	return parsed, nil
}

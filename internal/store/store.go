// Package store persists conversation history, tasks, reminders, and
// activity logs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Task statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Turn is one conversation message, user or assistant.
type Turn struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a user to-do item.
type Task struct {
	ID          int64      `json:"id"`
	Text        string     `json:"text"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Reminder fires once at its trigger time.
type Reminder struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	TriggerAt time.Time `json:"trigger_at"`
	Fired     bool      `json:"fired"`
	CreatedAt time.Time `json:"created_at"`
}

// LogEntry is one append-only activity record.
type LogEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the main assistant database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewStoreWithDB wraps an existing database handle. Used by tests and by
// callers that share one connection across stores.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			language TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			due_at TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			completed_at TEXT
		);

		CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			trigger_at TEXT NOT NULL,
			fired INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS activity_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reminders_pending ON reminders(fired, trigger_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_logs_created ON activity_logs(created_at);
	`)
	return err
}

// DB exposes the underlying handle so capability stores can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- conversations ---

// AppendTurn records one conversation message.
func (s *Store) AppendTurn(ctx context.Context, role, content, language string) (*Turn, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (role, content, language, created_at) VALUES (?, ?, ?, ?)`,
		role, content, nullStr(language), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Turn{ID: id, Role: role, Content: content, Language: language, CreatedAt: now}, nil
}

// RecentTurns returns the last limit turns in chronological order.
func (s *Store) RecentTurns(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, language, created_at FROM (
			SELECT id, role, content, language, created_at
			FROM conversations ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// SearchTurns returns turns whose content matches the query, newest first.
func (s *Store) SearchTurns(ctx context.Context, query string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, language, created_at FROM conversations
		 WHERE content LIKE ? ORDER BY id DESC LIMIT ?`,
		"%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		var language sql.NullString
		var created string
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &language, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Language = language.String
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// --- tasks ---

// CreateTask inserts a pending task. dueAt may be nil.
func (s *Store) CreateTask(ctx context.Context, text string, dueAt *time.Time) (*Task, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (text, due_at, status, created_at) VALUES (?, ?, ?, ?)`,
		text, nullTimePtr(dueAt), StatusPending, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Task{ID: id, Text: text, DueAt: dueAt, Status: StatusPending, CreatedAt: now}, nil
}

// GetTask retrieves one task by id. Returns sql.ErrNoRows if missing.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	return scanTask(s.db.QueryRowContext(ctx,
		`SELECT id, text, due_at, status, created_at, completed_at FROM tasks WHERE id = ?`, id))
}

// ListTasks returns all tasks in insertion order.
func (s *Store) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, due_at, status, created_at, completed_at FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// ToggleTask flips a task between pending and completed. Completing sets
// completed_at; reopening clears it, leaving every other field untouched.
func (s *Store) ToggleTask(ctx context.Context, id int64) (*Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", id, err)
	}

	now := time.Now().UTC()
	if t.Status == StatusPending {
		_, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?`,
			StatusCompleted, now.Format(time.RFC3339Nano), id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = NULL WHERE id = ?`,
			StatusPending, id)
	}
	if err != nil {
		return nil, fmt.Errorf("toggle task %d: %w", id, err)
	}
	return s.GetTask(ctx, id)
}

// DeleteTask removes a task. Returns an error when the id does not exist.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("task not found: %d", id)
	}
	return nil
}

func scanTask(row *sql.Row) (*Task, error) {
	var t Task
	var due, completed sql.NullString
	var created string
	if err := row.Scan(&t.ID, &t.Text, &due, &t.Status, &created, &completed); err != nil {
		return nil, err
	}
	populateTaskTimes(&t, due, created, completed)
	return &t, nil
}

func scanTaskRow(rows *sql.Rows) (*Task, error) {
	var t Task
	var due, completed sql.NullString
	var created string
	if err := rows.Scan(&t.ID, &t.Text, &due, &t.Status, &created, &completed); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	populateTaskTimes(&t, due, created, completed)
	return &t, nil
}

func populateTaskTimes(t *Task, due sql.NullString, created string, completed sql.NullString) {
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if due.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, due.String); err == nil {
			t.DueAt = &ts
		}
	}
	if completed.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, completed.String); err == nil {
			t.CompletedAt = &ts
		}
	}
}

// --- reminders ---

// CreateReminder inserts an unfired reminder.
func (s *Store) CreateReminder(ctx context.Context, text string, triggerAt time.Time) (*Reminder, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (text, trigger_at, fired, created_at) VALUES (?, ?, 0, ?)`,
		text, triggerAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Reminder{ID: id, Text: text, TriggerAt: triggerAt.UTC(), CreatedAt: now}, nil
}

// ListReminders returns all reminders in insertion order.
func (s *Store) ListReminders(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, trigger_at, fired, created_at FROM reminders ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// DueReminders returns unfired reminders whose trigger time has passed.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, trigger_at, fired, created_at FROM reminders
		 WHERE fired = 0 AND trigger_at <= ? ORDER BY trigger_at ASC`,
		now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkFired sets a reminder's fired flag. The flag, not the timestamp,
// gates delivery, so marking is what makes firing idempotent.
func (s *Store) MarkFired(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET fired = 1 WHERE id = ? AND fired = 0`, id)
	if err != nil {
		return fmt.Errorf("mark fired: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("reminder %d already fired or missing", id)
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var reminders []Reminder
	for rows.Next() {
		var r Reminder
		var trigger, created string
		var fired int
		if err := rows.Scan(&r.ID, &r.Text, &trigger, &fired, &created); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.Fired = fired != 0
		r.TriggerAt, _ = time.Parse(time.RFC3339Nano, trigger)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// --- activity logs ---

// LogActivity appends one activity record. Logging failures are
// returned so callers can decide whether they matter; most ignore them.
func (s *Store) LogActivity(ctx context.Context, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_logs (action, details, created_at) VALUES (?, ?, ?)`,
		action, nullStr(details), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

// RecentLogs returns the last limit activity entries, newest first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, details, created_at FROM activity_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var details sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Action, &details, &created); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Details = details.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- SQL helpers ---

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

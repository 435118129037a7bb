// Package productivity tracks pomodoro focus sessions and daily habits.
// Session state lives in the database, not in process memory, so an
// active pomodoro survives a restart.
package productivity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aide-agent/aide/internal/actions"
)

const dayFormat = "2006-01-02"

// Pomodoro is one focus session. EndedAt is nil while running.
type Pomodoro struct {
	ID          int64      `json:"id"`
	Task        string     `json:"task"`
	DurationMin int        `json:"duration_min"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// HabitStat is one habit's standing for the stats report.
type HabitStat struct {
	Name         string `json:"name"`
	Streak       int    `json:"streak"`
	CheckedToday bool   `json:"checked_today"`
}

// Stats is the productivity summary served over the API.
type Stats struct {
	PomodorosToday    int         `json:"pomodoros_today"`
	PomodorosTotal    int         `json:"pomodoros_total"`
	FocusMinutesToday int         `json:"focus_minutes_today"`
	ActiveTask        string      `json:"active_task,omitempty"`
	Habits            []HabitStat `json:"habits"`
}

// Store owns the pomodoro and habit tables.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore wraps a shared database handle and runs migrations.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate productivity: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pomodoros (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task TEXT NOT NULL,
			duration_min INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);

		CREATE TABLE IF NOT EXISTS habits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS habit_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			habit_id INTEGER NOT NULL REFERENCES habits(id),
			checked_on TEXT NOT NULL,
			UNIQUE(habit_id, checked_on)
		);
	`)
	return err
}

// activePomodoro returns the running session, or nil when none is.
func (s *Store) activePomodoro(ctx context.Context) (*Pomodoro, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task, duration_min, started_at FROM pomodoros
		 WHERE ended_at IS NULL ORDER BY id DESC LIMIT 1`)

	var p Pomodoro
	var started string
	if err := row.Scan(&p.ID, &p.Task, &p.DurationMin, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query active pomodoro: %w", err)
	}
	p.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	return &p, nil
}

// StartPomodoro begins a focus session. Only one may run at a time.
func (s *Store) StartPomodoro(ctx context.Context, task string, minutes int) (*Pomodoro, error) {
	if minutes <= 0 {
		minutes = 25
	}

	active, err := s.activePomodoro(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("a pomodoro for %q is already running", active.Task)
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pomodoros (task, duration_min, started_at) VALUES (?, ?, ?)`,
		task, minutes, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert pomodoro: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Pomodoro{ID: id, Task: task, DurationMin: minutes, StartedAt: now}, nil
}

// StopPomodoro ends the running session and returns it with the
// elapsed time filled in.
func (s *Store) StopPomodoro(ctx context.Context) (*Pomodoro, time.Duration, error) {
	active, err := s.activePomodoro(ctx)
	if err != nil {
		return nil, 0, err
	}
	if active == nil {
		return nil, 0, fmt.Errorf("no pomodoro is running")
	}

	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE pomodoros SET ended_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), active.ID); err != nil {
		return nil, 0, fmt.Errorf("end pomodoro: %w", err)
	}
	active.EndedAt = &now
	return active, now.Sub(active.StartedAt), nil
}

// AddHabit registers a habit to track.
func (s *Store) AddHabit(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO habits (name, created_at) VALUES (?, ?)`,
		name, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add habit %q: %w", name, err)
	}
	return nil
}

// CheckHabit marks a habit done for today. Checking twice on the same
// day is a no-op reported to the caller.
func (s *Store) CheckHabit(ctx context.Context, name string) (already bool, err error) {
	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM habits WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("unknown habit %q", name)
	}
	if err != nil {
		return false, fmt.Errorf("lookup habit: %w", err)
	}

	today := s.now().Format(dayFormat)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO habit_checks (habit_id, checked_on) VALUES (?, ?)`, id, today)
	if err != nil {
		return false, fmt.Errorf("check habit: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected == 0, nil
}

// streak counts consecutive checked days ending today (or yesterday,
// when today is not yet checked).
func (s *Store) streak(ctx context.Context, habitID int64) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checked_on FROM habit_checks WHERE habit_id = ? ORDER BY checked_on DESC`, habitID)
	if err != nil {
		return 0, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	checked := map[string]bool{}
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return 0, fmt.Errorf("scan check: %w", err)
		}
		checked[day] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	day := s.now()
	if !checked[day.Format(dayFormat)] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for checked[day.Format(dayFormat)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, nil
}

// CollectStats builds the productivity summary.
func (s *Store) CollectStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Habits: []HabitStat{}}
	today := s.now().Format(dayFormat)

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration_min), 0) FROM pomodoros
		 WHERE started_at LIKE ? || '%' AND ended_at IS NOT NULL`, today).
		Scan(&stats.PomodorosToday, &stats.FocusMinutesToday)
	if err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pomodoros WHERE ended_at IS NOT NULL`).
		Scan(&stats.PomodorosTotal); err != nil {
		return nil, fmt.Errorf("count total: %w", err)
	}

	if active, err := s.activePomodoro(ctx); err == nil && active != nil {
		stats.ActiveTask = active.Task
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM habits ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query habits: %w", err)
	}
	defer rows.Close()

	type habit struct {
		id   int64
		name string
	}
	var habits []habit
	for rows.Next() {
		var h habit
		if err := rows.Scan(&h.id, &h.name); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, h := range habits {
		streak, err := s.streak(ctx, h.id)
		if err != nil {
			return nil, err
		}
		var checkedToday bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM habit_checks WHERE habit_id = ? AND checked_on = ?)`,
			h.id, today).Scan(&checkedToday); err != nil {
			return nil, fmt.Errorf("check today: %w", err)
		}
		stats.Habits = append(stats.Habits, HabitStat{Name: h.name, Streak: streak, CheckedToday: checkedToday})
	}

	return stats, nil
}

// --- actions ---

func (s *Store) startPomodoroAction(ctx context.Context, p actions.Params) (string, error) {
	task, err := p.String("task")
	if err != nil {
		return "", err
	}
	minutes := p.IntOr("minutes", 25)

	pom, err := s.StartPomodoro(ctx, task, minutes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Pomodoro started: %s for %d minutes", pom.Task, pom.DurationMin), nil
}

func (s *Store) stopPomodoroAction(ctx context.Context, p actions.Params) (string, error) {
	pom, elapsed, err := s.StopPomodoro(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Pomodoro stopped: %s after %d minutes", pom.Task, int(elapsed.Minutes())), nil
}

func (s *Store) addHabitAction(ctx context.Context, p actions.Params) (string, error) {
	name, err := p.String("habit")
	if err != nil {
		return "", err
	}
	if err := s.AddHabit(ctx, name); err != nil {
		return "", err
	}
	return "Now tracking habit: " + name, nil
}

func (s *Store) checkHabitAction(ctx context.Context, p actions.Params) (string, error) {
	name, err := p.String("habit")
	if err != nil {
		return "", err
	}
	already, err := s.CheckHabit(ctx, name)
	if err != nil {
		return "", err
	}
	if already {
		return fmt.Sprintf("%s was already checked today.", name), nil
	}
	return fmt.Sprintf("Checked %s for today.", name), nil
}

func (s *Store) habitStreaksAction(ctx context.Context, p actions.Params) (string, error) {
	stats, err := s.CollectStats(ctx)
	if err != nil {
		return "", err
	}
	if len(stats.Habits) == 0 {
		return "No habits tracked yet.", nil
	}
	var b strings.Builder
	for _, h := range stats.Habits {
		fmt.Fprintf(&b, "%s: %d day streak\n", h.Name, h.Streak)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Store) statsAction(ctx context.Context, p actions.Params) (string, error) {
	stats, err := s.CollectStats(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Today: %d pomodoros (%d focus minutes). All time: %d pomodoros. %d habits tracked.",
		stats.PomodorosToday, stats.FocusMinutesToday, stats.PomodorosTotal, len(stats.Habits)), nil
}

// Actions returns the productivity action set.
func (s *Store) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "start_pomodoro", Description: "Start a focus session for a task (default 25 minutes)", Handler: s.startPomodoroAction},
		{Name: "stop_pomodoro", Description: "Stop the running focus session", Handler: s.stopPomodoroAction},
		{Name: "add_habit", Description: "Start tracking a daily habit", Handler: s.addHabitAction},
		{Name: "check_habit", Description: "Mark a habit done for today", Handler: s.checkHabitAction},
		{Name: "habit_streaks", Description: "Show current streaks for all habits", Handler: s.habitStreaksAction},
		{Name: "productivity_stats", Description: "Summarize focus sessions and habits", Handler: s.statsAction},
	}
}

// Package health tracks water intake and exercise.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aide-agent/aide/internal/actions"
)

const dayFormat = "2006-01-02"

// Stats is the health summary served over the API.
type Stats struct {
	WaterToday           int      `json:"water_today"`
	WaterWeek            int      `json:"water_week"`
	ExerciseMinutesToday int      `json:"exercise_minutes_today"`
	ExerciseMinutesWeek  int      `json:"exercise_minutes_week"`
	RecentActivities     []string `json:"recent_activities"`
}

// Store owns the water and exercise tables.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore wraps a shared database handle and runs migrations.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate health: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS water_intake (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			glasses INTEGER NOT NULL,
			logged_on TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS exercise_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			activity TEXT NOT NULL,
			minutes INTEGER NOT NULL,
			logged_on TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	return err
}

// LogWater records glasses of water for today and returns the new
// daily total.
func (s *Store) LogWater(ctx context.Context, glasses int) (int, error) {
	if glasses <= 0 {
		glasses = 1
	}
	today := s.now().Format(dayFormat)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO water_intake (glasses, logged_on) VALUES (?, ?)`, glasses, today); err != nil {
		return 0, fmt.Errorf("log water: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(glasses), 0) FROM water_intake WHERE logged_on = ?`, today).
		Scan(&total); err != nil {
		return 0, fmt.Errorf("sum water: %w", err)
	}
	return total, nil
}

// LogExercise records an activity with its duration.
func (s *Store) LogExercise(ctx context.Context, activity string, minutes int) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exercise_log (activity, minutes, logged_on, created_at) VALUES (?, ?, ?, ?)`,
		activity, minutes, now.Format(dayFormat), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("log exercise: %w", err)
	}
	return nil
}

// CollectStats builds the health summary for today and the trailing
// seven days.
func (s *Store) CollectStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{RecentActivities: []string{}}
	today := s.now().Format(dayFormat)
	weekAgo := s.now().AddDate(0, 0, -6).Format(dayFormat)

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(glasses), 0) FROM water_intake WHERE logged_on = ?`, today).
		Scan(&stats.WaterToday); err != nil {
		return nil, fmt.Errorf("water today: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(glasses), 0) FROM water_intake WHERE logged_on >= ?`, weekAgo).
		Scan(&stats.WaterWeek); err != nil {
		return nil, fmt.Errorf("water week: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(minutes), 0) FROM exercise_log WHERE logged_on = ?`, today).
		Scan(&stats.ExerciseMinutesToday); err != nil {
		return nil, fmt.Errorf("exercise today: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(minutes), 0) FROM exercise_log WHERE logged_on >= ?`, weekAgo).
		Scan(&stats.ExerciseMinutesWeek); err != nil {
		return nil, fmt.Errorf("exercise week: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT activity, minutes, logged_on FROM exercise_log ORDER BY id DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("recent activities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var activity, day string
		var minutes int
		if err := rows.Scan(&activity, &minutes, &day); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		stats.RecentActivities = append(stats.RecentActivities,
			fmt.Sprintf("%s: %s (%d min)", day, activity, minutes))
	}
	return stats, rows.Err()
}

// --- actions ---

func (s *Store) logWaterAction(ctx context.Context, p actions.Params) (string, error) {
	glasses := p.IntOr("glasses", 1)
	total, err := s.LogWater(ctx, glasses)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Logged %d glass(es) of water. Today's total: %d.", glasses, total), nil
}

func (s *Store) logExerciseAction(ctx context.Context, p actions.Params) (string, error) {
	activity, err := p.String("activity")
	if err != nil {
		return "", err
	}
	minutes := p.IntOr("minutes", 30)

	if err := s.LogExercise(ctx, activity, minutes); err != nil {
		return "", err
	}
	return fmt.Sprintf("Logged %s for %d minutes.", activity, minutes), nil
}

func (s *Store) statsAction(ctx context.Context, p actions.Params) (string, error) {
	stats, err := s.CollectStats(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Water: %d today, %d this week. Exercise: %d min today, %d min this week.",
		stats.WaterToday, stats.WaterWeek, stats.ExerciseMinutesToday, stats.ExerciseMinutesWeek), nil
}

// Actions returns the health tracking action set.
func (s *Store) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "log_water", Description: "Log a glass of water", Handler: s.logWaterAction},
		{Name: "log_exercise", Description: "Log an exercise activity with its duration", Handler: s.logExerciseAction},
		{Name: "health_stats", Description: "Summarize water and exercise for today and the week", Handler: s.statsAction},
	}
}

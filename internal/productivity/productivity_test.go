package productivity

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aide-agent/aide/internal/actions"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "prod_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s, err := NewStore(db, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return s
}

func findAction(t *testing.T, set []*actions.Action, name string) *actions.Action {
	t.Helper()
	for _, a := range set {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("action %q not found", name)
	return nil
}

func TestPomodoroLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }

	pom, err := s.StartPomodoro(ctx, "write report", 25)
	if err != nil {
		t.Fatalf("StartPomodoro: %v", err)
	}
	if pom.Task != "write report" || pom.DurationMin != 25 {
		t.Errorf("pomodoro = %+v", pom)
	}

	// A second session cannot start while one runs.
	if _, err := s.StartPomodoro(ctx, "other", 25); err == nil {
		t.Fatal("expected error while a pomodoro is running")
	}

	s.now = func() time.Time { return start.Add(25 * time.Minute) }
	stopped, elapsed, err := s.StopPomodoro(ctx)
	if err != nil {
		t.Fatalf("StopPomodoro: %v", err)
	}
	if stopped.ID != pom.ID || elapsed != 25*time.Minute {
		t.Errorf("stopped = %+v, elapsed = %v", stopped, elapsed)
	}

	// Stopping again fails: nothing is running.
	if _, _, err := s.StopPomodoro(ctx); err == nil {
		t.Fatal("expected error with no running pomodoro")
	}
}

func TestStartPomodoro_DefaultDuration(t *testing.T) {
	s := newTestStore(t)

	pom, err := s.StartPomodoro(context.Background(), "quick", 0)
	if err != nil {
		t.Fatalf("StartPomodoro: %v", err)
	}
	if pom.DurationMin != 25 {
		t.Errorf("duration = %d, want default 25", pom.DurationMin)
	}
}

func TestCheckHabit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddHabit(ctx, "meditate"); err != nil {
		t.Fatalf("AddHabit: %v", err)
	}

	already, err := s.CheckHabit(ctx, "meditate")
	if err != nil {
		t.Fatalf("CheckHabit: %v", err)
	}
	if already {
		t.Error("first check reported as duplicate")
	}

	already, err = s.CheckHabit(ctx, "meditate")
	if err != nil {
		t.Fatalf("CheckHabit again: %v", err)
	}
	if !already {
		t.Error("second check on the same day not reported as duplicate")
	}

	if _, err := s.CheckHabit(ctx, "nonexistent"); err == nil {
		t.Fatal("expected error for unknown habit")
	}
}

func TestHabitStreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddHabit(ctx, "run"); err != nil {
		t.Fatalf("AddHabit: %v", err)
	}

	today := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	// Check three consecutive days ending today, with a gap before.
	for _, daysAgo := range []int{5, 2, 1, 0} {
		s.now = func() time.Time { return today.AddDate(0, 0, -daysAgo) }
		if _, err := s.CheckHabit(ctx, "run"); err != nil {
			t.Fatalf("CheckHabit day -%d: %v", daysAgo, err)
		}
	}

	s.now = func() time.Time { return today }
	stats, err := s.CollectStats(ctx)
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if len(stats.Habits) != 1 {
		t.Fatalf("habits = %+v", stats.Habits)
	}
	if stats.Habits[0].Streak != 3 {
		t.Errorf("streak = %d, want 3", stats.Habits[0].Streak)
	}
	if !stats.Habits[0].CheckedToday {
		t.Error("CheckedToday = false")
	}
}

func TestHabitStreak_UncheckedTodayCountsFromYesterday(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddHabit(ctx, "read"); err != nil {
		t.Fatalf("AddHabit: %v", err)
	}

	today := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	for _, daysAgo := range []int{2, 1} {
		s.now = func() time.Time { return today.AddDate(0, 0, -daysAgo) }
		s.CheckHabit(ctx, "read")
	}

	s.now = func() time.Time { return today }
	stats, err := s.CollectStats(ctx)
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if stats.Habits[0].Streak != 2 {
		t.Errorf("streak = %d, want 2 (today pending does not break it)", stats.Habits[0].Streak)
	}
}

func TestCollectStats_CountsTodayOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	today := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

	// One finished yesterday, one finished today.
	s.now = func() time.Time { return today.AddDate(0, 0, -1) }
	s.StartPomodoro(ctx, "old", 25)
	s.StopPomodoro(ctx)

	s.now = func() time.Time { return today }
	s.StartPomodoro(ctx, "new", 30)
	s.now = func() time.Time { return today.Add(30 * time.Minute) }
	s.StopPomodoro(ctx)

	stats, err := s.CollectStats(ctx)
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if stats.PomodorosToday != 1 {
		t.Errorf("PomodorosToday = %d, want 1", stats.PomodorosToday)
	}
	if stats.PomodorosTotal != 2 {
		t.Errorf("PomodorosTotal = %d, want 2", stats.PomodorosTotal)
	}
	if stats.FocusMinutesToday != 30 {
		t.Errorf("FocusMinutesToday = %d, want 30", stats.FocusMinutesToday)
	}
}

func TestActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := findAction(t, s.Actions(), "start_pomodoro")
	got, err := start.Handler(ctx, actions.Params{"task": "study", "minutes": float64(50)})
	if err != nil {
		t.Fatalf("start_pomodoro: %v", err)
	}
	if !strings.Contains(got, "50 minutes") {
		t.Errorf("result = %q", got)
	}

	stop := findAction(t, s.Actions(), "stop_pomodoro")
	if _, err := stop.Handler(ctx, actions.Params{}); err != nil {
		t.Fatalf("stop_pomodoro: %v", err)
	}

	add := findAction(t, s.Actions(), "add_habit")
	if _, err := add.Handler(ctx, actions.Params{"habit": "stretch"}); err != nil {
		t.Fatalf("add_habit: %v", err)
	}

	check := findAction(t, s.Actions(), "check_habit")
	got, err = check.Handler(ctx, actions.Params{"habit": "stretch"})
	if err != nil {
		t.Fatalf("check_habit: %v", err)
	}
	if !strings.Contains(got, "Checked stretch") {
		t.Errorf("result = %q", got)
	}

	streaks := findAction(t, s.Actions(), "habit_streaks")
	got, err = streaks.Handler(ctx, actions.Params{})
	if err != nil {
		t.Fatalf("habit_streaks: %v", err)
	}
	if !strings.Contains(got, "stretch: 1 day streak") {
		t.Errorf("result = %q", got)
	}
}

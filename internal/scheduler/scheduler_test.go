package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aide-agent/aide/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sched_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s, err := store.NewStoreWithDB(db)
	if err != nil {
		t.Fatalf("NewStoreWithDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recordingNotifier captures every notification text.
type recordingNotifier struct {
	texts []string
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) error {
	n.texts = append(n.texts, text)
	return n.err
}

func TestPoll_FiresDueReminder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateReminder(ctx, "stand up", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	notifier := &recordingNotifier{}
	s := New(st, time.Minute, nil, slog.New(slog.DiscardHandler), notifier)

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(notifier.texts) != 1 || notifier.texts[0] != "stand up" {
		t.Errorf("notifications = %v, want [stand up]", notifier.texts)
	}

	logs, err := st.RecentLogs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "reminder_fired" {
		t.Errorf("logs = %+v, want one reminder_fired entry", logs)
	}
}

func TestPoll_AtMostOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateReminder(ctx, "once only", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	notifier := &recordingNotifier{}
	s := New(st, time.Minute, nil, slog.New(slog.DiscardHandler), notifier)

	// Any number of polls delivers exactly once.
	for range 5 {
		if err := s.Poll(ctx); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	if len(notifier.texts) != 1 {
		t.Errorf("notified %d times, want 1", len(notifier.texts))
	}
}

func TestPoll_FutureReminderNotFired(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateReminder(ctx, "later", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	notifier := &recordingNotifier{}
	s := New(st, time.Minute, nil, slog.New(slog.DiscardHandler), notifier)

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(notifier.texts) != 0 {
		t.Errorf("future reminder fired early: %v", notifier.texts)
	}
}

func TestPoll_NotifierFailureStillMarksFired(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateReminder(ctx, "flaky", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	notifier := &recordingNotifier{err: errors.New("speaker offline")}
	s := New(st, time.Minute, nil, slog.New(slog.DiscardHandler), notifier)

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// Marked fired before notification: no redelivery on the next poll.
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(notifier.texts) != 1 {
		t.Errorf("notified %d times, want 1 despite notifier error", len(notifier.texts))
	}
}

func TestPoll_MultipleDueOrderedByTrigger(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	st.CreateReminder(ctx, "second", now.Add(-time.Minute))
	st.CreateReminder(ctx, "first", now.Add(-2*time.Minute))

	notifier := &recordingNotifier{}
	s := New(st, time.Minute, nil, slog.New(slog.DiscardHandler), notifier)

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(notifier.texts) != 2 {
		t.Fatalf("notifications = %v, want 2", notifier.texts)
	}
	if notifier.texts[0] != "first" || notifier.texts[1] != "second" {
		t.Errorf("order = %v, want trigger-time order", notifier.texts)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	st := newTestStore(t)
	s := New(st, 10*time.Millisecond, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

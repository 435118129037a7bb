package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "aide_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s, err := NewStoreWithDB(db)
	if err != nil {
		t.Fatalf("NewStoreWithDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		if _, err := s.AppendTurn(ctx, "user", msg, ""); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	turns, err := s.RecentTurns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	// Chronological order within the window.
	if turns[0].Content != "two" || turns[1].Content != "three" {
		t.Errorf("turns = %q, %q; want two, three", turns[0].Content, turns[1].Content)
	}
}

func TestSearchTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AppendTurn(ctx, "user", "remember to water the plants", "")
	s.AppendTurn(ctx, "assistant", "noted", "")
	s.AppendTurn(ctx, "user", "what about the car", "")

	got, err := s.SearchTurns(ctx, "plants", 10)
	if err != nil {
		t.Fatalf("SearchTurns: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Role != "user" {
		t.Errorf("role = %q, want user", got[0].Role)
	}
}

func TestTaskToggleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	created, err := s.CreateTask(ctx, "Buy milk", &due)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("status = %q, want pending", created.Status)
	}

	completed, err := s.ToggleTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("ToggleTask (complete): %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Error("completed_at not set after completion")
	}

	restored, err := s.ToggleTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("ToggleTask (reopen): %v", err)
	}
	if restored.Status != StatusPending {
		t.Errorf("status = %q, want pending after double toggle", restored.Status)
	}
	if restored.CompletedAt != nil {
		t.Error("completed_at should be cleared after reopening")
	}
	if restored.Text != created.Text {
		t.Errorf("text changed: %q -> %q", created.Text, restored.Text)
	}
	if restored.DueAt == nil || !restored.DueAt.Equal(due) {
		t.Errorf("due_at changed: want %v, got %v", due, restored.DueAt)
	}
	if !restored.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", created.CreatedAt, restored.CreatedAt)
	}
}

func TestDeleteTask_Missing(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteTask(context.Background(), 9999); err == nil {
		t.Fatal("expected error deleting nonexistent task")
	}
}

func TestDueReminders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past, err := s.CreateReminder(ctx, "past", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if _, err := s.CreateReminder(ctx, "future", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	due, err := s.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 1 || due[0].ID != past.ID {
		t.Fatalf("due = %+v, want only the past reminder", due)
	}
}

func TestMarkFired_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r, err := s.CreateReminder(ctx, "ping", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	if err := s.MarkFired(ctx, r.ID); err != nil {
		t.Fatalf("MarkFired: %v", err)
	}
	// Second mark fails: the fired flag already gates delivery.
	if err := s.MarkFired(ctx, r.ID); err == nil {
		t.Fatal("second MarkFired should error")
	}

	due, err := s.DueReminders(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("fired reminder still reported due: %+v", due)
	}
}

func TestActivityLogs_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.LogActivity(ctx, "task_created", "Buy milk")
	s.LogActivity(ctx, "reminder_fired", "ping")

	logs, err := s.RecentLogs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len(logs) = %d, want 2", len(logs))
	}
	if logs[0].Action != "reminder_fired" {
		t.Errorf("logs[0] = %q, want newest first", logs[0].Action)
	}
}

package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aide-agent/aide/internal/actions"
)

// Actions returns the task, reminder, and memory action set backed by
// this store.
func (s *Store) Actions() []*actions.Action {
	return []*actions.Action{
		{
			Name:        "create_task",
			Description: "Add a task to the to-do list, optionally with a due time",
			Handler:     s.createTaskAction,
		},
		{
			Name:        "list_tasks",
			Description: "List all tasks with their status",
			Handler:     s.listTasksAction,
		},
		{
			Name:        "complete_task",
			Description: "Mark a task as completed by its id",
			Handler:     s.completeTaskAction,
		},
		{
			Name:        "delete_task",
			Description: "Delete a task by its id",
			Handler:     s.deleteTaskAction,
		},
		{
			Name:        "set_reminder",
			Description: "Set a one-shot reminder for a given time",
			Handler:     s.setReminderAction,
		},
		{
			Name:        "list_reminders",
			Description: "List all reminders and whether they have fired",
			Handler:     s.listRemindersAction,
		},
		{
			Name:        "log_activity",
			Description: "Record an activity in the activity log",
			Handler:     s.logActivityAction,
		},
		{
			Name:        "search_memory",
			Description: "Search past conversation history for a phrase",
			Handler:     s.searchMemoryAction,
		},
	}
}

func (s *Store) createTaskAction(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("task")
	if err != nil {
		return "", err
	}

	var dueAt *time.Time
	if due := p.StringOr("due", ""); due != "" {
		ts, err := ParseWhen(due, time.Now())
		if err != nil {
			return "", fmt.Errorf("due time: %w", err)
		}
		dueAt = &ts
	}

	t, err := s.CreateTask(ctx, text, dueAt)
	if err != nil {
		return "", err
	}
	if t.DueAt != nil {
		return fmt.Sprintf("Task %d added: %s (due %s)", t.ID, t.Text, t.DueAt.Local().Format("Jan 2 15:04")), nil
	}
	return fmt.Sprintf("Task %d added: %s", t.ID, t.Text), nil
}

func (s *Store) listTasksAction(ctx context.Context, p actions.Params) (string, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks yet.", nil
	}

	var b strings.Builder
	for _, t := range tasks {
		mark := " "
		if t.Status == StatusCompleted {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %d: %s", mark, t.ID, t.Text)
		if t.DueAt != nil {
			fmt.Fprintf(&b, " (due %s)", t.DueAt.Local().Format("Jan 2 15:04"))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Store) completeTaskAction(ctx context.Context, p actions.Params) (string, error) {
	id, err := p.Int("task_id")
	if err != nil {
		return "", err
	}

	t, err := s.GetTask(ctx, int64(id))
	if err != nil {
		return "", fmt.Errorf("task %d: %w", id, err)
	}
	if t.Status == StatusCompleted {
		return fmt.Sprintf("Task %d is already completed.", id), nil
	}

	if _, err := s.ToggleTask(ctx, int64(id)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Task %d completed: %s", id, t.Text), nil
}

func (s *Store) deleteTaskAction(ctx context.Context, p actions.Params) (string, error) {
	id, err := p.Int("task_id")
	if err != nil {
		return "", err
	}
	if err := s.DeleteTask(ctx, int64(id)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Task %d deleted.", id), nil
}

func (s *Store) setReminderAction(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("text")
	if err != nil {
		return "", err
	}
	when, err := p.String("time")
	if err != nil {
		return "", err
	}

	triggerAt, err := ParseWhen(when, time.Now())
	if err != nil {
		return "", fmt.Errorf("reminder time: %w", err)
	}

	r, err := s.CreateReminder(ctx, text, triggerAt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Reminder %d set for %s: %s", r.ID, triggerAt.Local().Format("Jan 2 15:04"), text), nil
}

func (s *Store) listRemindersAction(ctx context.Context, p actions.Params) (string, error) {
	reminders, err := s.ListReminders(ctx)
	if err != nil {
		return "", err
	}
	if len(reminders) == 0 {
		return "No reminders set.", nil
	}

	var b strings.Builder
	for _, r := range reminders {
		state := "pending"
		if r.Fired {
			state = "fired"
		}
		fmt.Fprintf(&b, "%d: %s at %s (%s)\n", r.ID, r.Text, r.TriggerAt.Local().Format("Jan 2 15:04"), state)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Store) logActivityAction(ctx context.Context, p actions.Params) (string, error) {
	activity, err := p.String("activity")
	if err != nil {
		return "", err
	}
	if err := s.LogActivity(ctx, "user_activity", activity); err != nil {
		return "", err
	}
	return "Logged: " + activity, nil
}

func (s *Store) searchMemoryAction(ctx context.Context, p actions.Params) (string, error) {
	query, err := p.String("query")
	if err != nil {
		return "", err
	}

	turns, err := s.SearchTurns(ctx, query, 10)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return fmt.Sprintf("No conversation matches %q.", query), nil
	}

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s] %s: %s\n", t.CreatedAt.Local().Format("Jan 2 15:04"), t.Role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ParseWhen turns a user-supplied time expression into an absolute
// time. Accepted forms: RFC3339, "2006-01-02 15:04", a bare clock time
// "15:04" (today, or tomorrow if already past), and relative
// "in N minutes|hours|seconds|days".
func ParseWhen(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)

	if ts, err := time.Parse(time.RFC3339, expr); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04", expr, now.Location()); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation("15:04", expr, now.Location()); err == nil {
		ts = time.Date(now.Year(), now.Month(), now.Day(), ts.Hour(), ts.Minute(), 0, 0, now.Location())
		if !ts.After(now) {
			ts = ts.AddDate(0, 0, 1)
		}
		return ts, nil
	}

	lower := strings.ToLower(expr)
	if rest, ok := strings.CutPrefix(lower, "in "); ok {
		fields := strings.Fields(rest)
		if len(fields) == 2 {
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return time.Time{}, fmt.Errorf("bad duration %q", expr)
			}
			switch strings.TrimSuffix(fields[1], "s") {
			case "second", "sec":
				return now.Add(time.Duration(n) * time.Second), nil
			case "minute", "min":
				return now.Add(time.Duration(n) * time.Minute), nil
			case "hour", "hr":
				return now.Add(time.Duration(n) * time.Hour), nil
			case "day":
				return now.AddDate(0, 0, n), nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time %q", expr)
}

// Package scheduler polls the store for due reminders and delivers
// them. Delivery is gated by the reminder's fired flag, not its
// timestamp: reminders missed while the process was down fire on the
// first poll after restart, and a fired reminder never fires again.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aide-agent/aide/internal/events"
	"github.com/aide-agent/aide/internal/store"
)

// Notifier delivers a fired reminder to the user. The voice engine
// implements it; additional sinks (MQTT) can be chained.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, text string) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Scheduler runs the reminder polling loop.
type Scheduler struct {
	store     *store.Store
	interval  time.Duration
	notifiers []Notifier
	bus       *events.Bus
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Scheduler. interval <= 0 defaults to one minute.
// notifiers and bus may be nil/empty.
func New(st *store.Store, interval time.Duration, bus *events.Bus, logger *slog.Logger, notifiers ...Notifier) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:     st,
		interval:  interval,
		notifiers: notifiers,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately
// so reminders that came due while the process was down are not delayed
// by a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reminder scheduler started", "interval", s.interval)

	if err := s.Poll(ctx); err != nil {
		s.logger.Warn("reminder poll failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				s.logger.Warn("reminder poll failed", "error", err)
			}
		}
	}
}

// Poll delivers every due, unfired reminder exactly once. Each reminder
// is marked fired before notification; a reminder that cannot be marked
// (already fired by a concurrent poll) is skipped.
func (s *Scheduler) Poll(ctx context.Context) error {
	due, err := s.store.DueReminders(ctx, s.now())
	if err != nil {
		return fmt.Errorf("query due reminders: %w", err)
	}

	for _, r := range due {
		if err := s.store.MarkFired(ctx, r.ID); err != nil {
			s.logger.Debug("skipping reminder", "id", r.ID, "error", err)
			continue
		}

		s.logger.Info("reminder fired", "id", r.ID, "text", r.Text)

		if err := s.store.LogActivity(ctx, "reminder_fired", r.Text); err != nil {
			s.logger.Warn("logging fired reminder failed", "id", r.ID, "error", err)
		}

		s.bus.Emit(events.SourceScheduler, events.KindReminderFired, map[string]any{
			"reminder_id": r.ID,
			"text":        r.Text,
		})

		for _, n := range s.notifiers {
			if err := n.Notify(ctx, r.Text); err != nil {
				s.logger.Warn("reminder notification failed", "id", r.ID, "error", err)
			}
		}
	}

	return nil
}

package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// MetricsSink records created reminders. Optional, nil = disabled.
type MetricsSink interface {
	ReminderCreated()
}

// Scheduler evaluates all reminder users once per tick. It is driven from the
// outside (a cron entry on minute 5 of every hour) and is independent of the
// job orchestrator.
type Scheduler struct {
	users    UserSource
	holidays HolidayProvider
	notes    NotificationWriter
	loc      Localizer
	metrics  MetricsSink
	now      func() time.Time
}

type SchedulerOption func(*Scheduler)

// WithMetrics attaches a metrics sink.
func WithMetrics(sink MetricsSink) SchedulerOption {
	return func(s *Scheduler) { s.metrics = sink }
}

func withNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(users UserSource, holidays HolidayProvider, notes NotificationWriter, loc Localizer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		users:    users,
		holidays: holidays,
		notes:    notes,
		loc:      loc,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Tick evaluates every user once. Per-user failures are logged and do not
// stop the pass.
func (s *Scheduler) Tick(ctx context.Context) error {
	users, err := s.users.ReminderUsers(ctx)
	if err != nil {
		return fmt.Errorf("list reminder users: %w", err)
	}

	created := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := s.evaluate(ctx, u)
		if err != nil {
			slog.Error("reminder evaluation failed", "user", u.ID, "error", err)
			continue
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		slog.Info("month-end reminders created", "count", created, "users", len(users))
	}
	return nil
}

// evaluate fires at most one reminder for the user and reports whether it did.
func (s *Scheduler) evaluate(ctx context.Context, u User) (bool, error) {
	now := s.now()

	// On a missing or invalid zone the reference instant is treated as
	// already local: its UTC wall-clock fields double as the user's local
	// fields and the dedupe key falls back to the plain UTC date.
	local := now.UTC()
	loc, err := time.LoadLocation(u.TimeZone)
	zoneValid := u.TimeZone != "" && err == nil
	if zoneValid {
		local = now.In(loc)
	}

	lastBiz := lastBusinessDay(ctx, s.holidays, local.Year(), local.Month(), local.Location(), u.Country, u.Subdivision)
	ly, lm, ld := local.Date()
	by, bm, bd := lastBiz.Date()
	if ly != by || lm != bm || ld != bd {
		return false, nil
	}

	hour, minute := parseTriggerTime(u.TriggerTime)
	if local.Hour()*60+local.Minute() < hour*60+minute {
		return false, nil
	}

	dedupeKey := local.Format(time.DateOnly)
	if zoneValid {
		dedupeKey = time.Date(ly, lm, ld, 0, 0, 0, 0, loc).UTC().Format(time.DateOnly)
	}

	exists, err := s.notes.Exists(ctx, u.ID, KindMonthEnd, dedupeKey)
	if err != nil {
		return false, fmt.Errorf("check existing reminder: %w", err)
	}
	if exists {
		return false, nil
	}

	n := Notification{
		UserID:      u.ID,
		Kind:        KindMonthEnd,
		Title:       s.loc.Text(u.Locale, "reminder.monthend.title"),
		Message:     s.loc.Text(u.Locale, "reminder.monthend.message", lastBiz.Format(time.DateOnly)),
		Target:      "/statements/drafts",
		DedupeKey:   dedupeKey,
		ScheduledAt: now.UTC(),
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return false, fmt.Errorf("create reminder: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ReminderCreated()
	}
	slog.Info("month-end reminder created", "user", u.ID, "dedupeKey", dedupeKey)
	return true, nil
}

// parseTriggerTime parses "HH:MM", falling back to the default on any problem.
func parseTriggerTime(v string) (hour, minute int) {
	if v == "" {
		v = DefaultTriggerTime
	}
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 9, 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 9, 0
	}
	return h, m
}

package widget

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/models"
	"github.com/tkaraca/prayer-widget-service/internal/observability"
	"github.com/tkaraca/prayer-widget-service/internal/schedule"
)

// RefreshScheduler is the recurring background job that keeps the widget
// snapshot current while the app is not driving it. Every fire re-derives
// state from persisted data only; it never touches the network or the app
// cache. Fires may be delayed or skipped by the host, so everything is
// recomputed from absolute wall-clock time on each wake.
type RefreshScheduler struct {
	sched    *gocron.Scheduler
	store    *Store
	register Register
	bridge   *Bridge
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

// NewRefreshScheduler creates a scheduler firing at the given interval
// (~60s in production).
func NewRefreshScheduler(store *Store, register Register, bridge *Bridge, interval time.Duration, logger *zap.Logger) *RefreshScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RefreshScheduler{
		sched:    gocron.NewScheduler(time.Local),
		store:    store,
		register: register,
		bridge:   bridge,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start schedules the recurring wake. Called when the first widget instance
// is placed.
func (s *RefreshScheduler) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	if _, err := s.sched.Every(seconds).Seconds().Do(s.fire); err != nil {
		return fmt.Errorf("schedule widget refresh: %w", err)
	}
	s.sched.StartAsync()
	s.logger.Info("widget refresh scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the pending wake. Called when the last widget instance is
// removed and during shutdown.
func (s *RefreshScheduler) Stop() {
	s.sched.Stop()
	s.logger.Info("widget refresh scheduler stopped")
}

// fire is the job boundary: any panic or error is contained here so a bad
// fire can never kill the schedule. A missed update is recoverable, a dead
// scheduler is not.
func (s *RefreshScheduler) fire() {
	defer func() {
		if r := recover(); r != nil {
			observability.WidgetJobRunsTotal.WithLabelValues("error").Inc()
			s.logger.Error("widget refresh job panicked", zap.Any("panic", r))
		}
	}()

	result, err := s.runOnce(s.now())
	if err != nil {
		observability.WidgetJobRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("widget refresh job failed", zap.Error(err))
		return
	}
	observability.WidgetJobRunsTotal.WithLabelValues(result).Inc()
	s.logger.Debug("widget refresh job fired", zap.String("result", result))
}

// runOnce performs one wake: rescan the persisted schedule when the stored
// snapshot's clock time is at or before now (or the snapshot is missing),
// otherwise just recompute the displayed remaining time. Returns the outcome
// label used for metrics.
func (s *RefreshScheduler) runOnce(now time.Time) (string, error) {
	snap, ok, err := ReadSnapshot(s.register)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	rescan := !ok
	if ok {
		m, valid := schedule.MinutesOfDay(snap.Time)
		nowMin := now.Hour()*60 + now.Minute()
		// At or before now means the recorded prayer has passed. A clock time
		// smaller than now also covers a snapshot pointing at tomorrow's
		// Fajr; rescanning converges on the same answer, which is harmless.
		if !valid || m <= nowMin {
			rescan = true
		}
	}

	if rescan {
		today, _, err := s.store.Day(models.DateKey(now))
		if err != nil {
			return "", fmt.Errorf("read today's schedule: %w", err)
		}
		tomorrow, _, err := s.store.Day(models.DateKey(now.AddDate(0, 0, 1)))
		if err != nil {
			return "", fmt.Errorf("read tomorrow's schedule: %w", err)
		}

		next, err := schedule.FindNext(today, tomorrow, now)
		if err != nil {
			// No usable data for either day: show the placeholder instead of
			// stale numbers.
			if perr := WritePlaceholder(s.register); perr != nil {
				return "", fmt.Errorf("write placeholder: %w", perr)
			}
			s.bridge.RequestRepaint()
			return "no_data", nil
		}

		remaining := schedule.Remaining(next, now)
		if err := WriteSnapshot(s.register, models.NextPrayerSnapshot{
			Name:       next.Name,
			Time:       next.Time,
			Remaining:  schedule.FormatCountdown(remaining, false),
			CapturedAt: now,
		}); err != nil {
			return "", fmt.Errorf("write snapshot: %w", err)
		}
		s.bridge.RequestRepaint()
		return "refreshed", nil
	}

	// Snapshot still ahead of now: recompute the displayed countdown from
	// wall clock and overwrite in place.
	m, _ := schedule.MinutesOfDay(snap.Time)
	target := time.Date(now.Year(), now.Month(), now.Day(), m/60, m%60, 0, 0, now.Location())
	snap.Remaining = schedule.FormatCountdown(target.Sub(now), false)
	snap.CapturedAt = now
	if err := WriteSnapshot(s.register, snap); err != nil {
		return "", fmt.Errorf("update snapshot countdown: %w", err)
	}
	s.bridge.RequestRepaint()
	return "unchanged", nil
}

// Package refresh orchestrates the prayer-time pipeline: freshness check,
// full-window remote fetch, cache replacement, and widget push. Data flows
// one direction: client -> cache -> widget storage.
package refresh

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/cache"
	"github.com/tkaraca/prayer-widget-service/internal/client"
	"github.com/tkaraca/prayer-widget-service/internal/models"
	"github.com/tkaraca/prayer-widget-service/internal/observability"
)

// Pusher receives the refreshed window for the widget surface. Implemented by
// the widget bridge; failures are logged, never fatal to the refresh.
type Pusher interface {
	PushSchedule(city string, days models.CitySchedule) error
}

// Refresher drives full-window refreshes for cities.
type Refresher struct {
	client    client.CalendarClient
	store     cache.Store
	pusher    Pusher
	freshness cache.Freshness
	months    int
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.RWMutex
	lastSuccess time.Time
	lastErr     error
}

// New creates a Refresher fetching the given number of months per window.
func New(calClient client.CalendarClient, store cache.Store, pusher Pusher, freshness cache.Freshness, months int, logger *zap.Logger) *Refresher {
	if months <= 0 {
		months = 12
	}
	return &Refresher{
		client:    calClient,
		store:     store,
		pusher:    pusher,
		freshness: freshness,
		months:    months,
		logger:    logger,
		now:       time.Now,
	}
}

// EnsureFresh returns the city's schedule window, refreshing from the remote
// source when the cached window fails the freshness check (or force is set).
// A total fetch failure falls back to whatever is cached; the caller gets an
// error only when there is no data at all.
func (r *Refresher) EnsureFresh(ctx context.Context, city string, force bool) (models.CitySchedule, error) {
	now := r.now()
	start := now

	if !force && r.freshness.IsFresh(ctx, r.store, city, now) {
		cached, ok, err := r.store.GetCity(ctx, city)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
			return nil, fmt.Errorf("read cached schedule for %s: %w", city, err)
		}
		if ok {
			observability.RefreshTotal.WithLabelValues("skipped_fresh").Inc()
			observability.CacheHitsTotal.WithLabelValues("schedule").Inc()
			r.logger.Debug("schedule cache fresh", zap.String("city", city), zap.Int("days", len(cached)))
			return cached, nil
		}
		// The window vanished between the freshness check and the read
		// (eviction, TTL expiry). Fall through to the fetch path.
	}
	observability.CacheMissesTotal.WithLabelValues("schedule").Inc()

	r.logger.Info("refreshing schedule window",
		zap.String("city", city),
		zap.Int("months", r.months),
		zap.Bool("force", force))

	days, err := r.client.FetchWindow(ctx, city, now, r.months)
	if err != nil {
		r.recordFailure(err)
		observability.RefreshTotal.WithLabelValues("failed").Inc()

		// No new data; fall back to the last valid cached window if present.
		cached, ok, cacheErr := r.store.GetCity(ctx, city)
		if cacheErr == nil && ok {
			r.logger.Warn("refresh failed, serving cached window",
				zap.String("city", city),
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err))
			return cached, nil
		}
		return nil, fmt.Errorf("refresh schedule for %s: %w", city, err)
	}

	// Drop dates already behind us so the stored window starts today.
	today := models.DateKey(now)
	for date := range days {
		if date < today {
			delete(days, date)
		}
	}

	if err := r.store.PutCity(ctx, city, days); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		r.logger.Warn("cache write failed", zap.String("city", city), zap.Error(err))
	}

	if err := r.pusher.PushSchedule(city, days); err != nil {
		r.logger.Warn("widget schedule push failed", zap.String("city", city), zap.Error(err))
	}

	r.recordSuccess(now)
	result := "success"
	if len(days) < expectedMinDays(r.months) {
		// At least one month request was dropped from the fan-in.
		result = "partial"
	}
	observability.RefreshTotal.WithLabelValues(result).Inc()
	observability.RefreshDurationSeconds.Observe(time.Since(start).Seconds())
	r.logger.Info("schedule window refreshed",
		zap.String("city", city),
		zap.Int("days", len(days)),
		zap.String("result", result))
	return days, nil
}

// expectedMinDays is a floor on the day count of a fully merged window:
// 28 per month, minus the partial current month.
func expectedMinDays(months int) int {
	return (months-1)*28 + 1
}

func (r *Refresher) recordSuccess(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSuccess = t
	r.lastErr = nil
}

func (r *Refresher) recordFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
}

// RefreshAll runs EnsureFresh for each tracked city concurrently. Returns an
// aggregated error when any city failed; the other cities still refresh.
func (r *Refresher) RefreshAll(ctx context.Context, cities []string, force bool) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.EnsureFresh(ctx, city, force); err != nil {
				errCh <- fmt.Errorf("refresh %s: %w", city, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("refresh cities: %v", errs)
	}
	return nil
}

// RunPeriodic runs an initial RefreshAll, then re-checks at the given interval
// until ctx is done. The freshness check makes the steady-state ticks cheap;
// the remote API is only hit when the window has actually decayed.
func (r *Refresher) RunPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	if err := r.RefreshAll(ctx, cities, false); err != nil {
		r.logger.Warn("initial refresh failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshAll(ctx, cities, false); err != nil {
				r.logger.Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}

// Status reports the last successful refresh time and the last error, for
// the health endpoint.
func (r *Refresher) Status() (lastSuccess time.Time, lastErr error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSuccess, r.lastErr
}

func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"):
		return "connection"
	default:
		return "unknown"
	}
}

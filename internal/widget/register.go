package widget

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

// Register is the flat key-value store shared between the foreground app and
// the background widget job. Both writers overwrite whole snapshots and never
// merge fields; last write wins and both writers converge on the same value.
type Register interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Register keys. The names follow the keys the widget host reads.
const (
	KeyNextPrayer   = "NEXT_PRAYER"
	KeyPrayerTime   = "PRAYER_TIME"
	KeyTimeToNext   = "TIME_TO_NEXT_PRAYER"
	KeyLastUpdate   = "LAST_UPDATE_TIME"
	KeySelectedCity = "SELECTED_CITY"
)

// PlaceholderValue marks the visible "no data" state. The widget host renders
// it as-is instead of stale numbers.
const PlaceholderValue = "..."

// ReadSnapshot reads the stored next-prayer snapshot. A placeholder or
// missing register reads as not-ok.
func ReadSnapshot(r Register) (models.NextPrayerSnapshot, bool, error) {
	name, ok, err := r.Get(KeyNextPrayer)
	if err != nil || !ok || name == PlaceholderValue || name == "" {
		return models.NextPrayerSnapshot{}, false, err
	}
	clock, ok, err := r.Get(KeyPrayerTime)
	if err != nil || !ok || clock == PlaceholderValue {
		return models.NextPrayerSnapshot{}, false, err
	}
	remaining, _, err := r.Get(KeyTimeToNext)
	if err != nil {
		return models.NextPrayerSnapshot{}, false, err
	}

	snap := models.NextPrayerSnapshot{
		Name:      models.PrayerName(name),
		Time:      clock,
		Remaining: remaining,
	}
	if rawTS, ok, err := r.Get(KeyLastUpdate); err == nil && ok {
		if unix, perr := strconv.ParseInt(rawTS, 10, 64); perr == nil {
			snap.CapturedAt = time.Unix(unix, 0)
		}
	}
	return snap, true, nil
}

// WriteSnapshot overwrites the whole snapshot, stamping the wall-clock
// last-update time the refresh scheduler uses to detect staleness.
func WriteSnapshot(r Register, snap models.NextPrayerSnapshot) error {
	if err := r.Set(KeyNextPrayer, string(snap.Name)); err != nil {
		return fmt.Errorf("write snapshot name: %w", err)
	}
	if err := r.Set(KeyPrayerTime, snap.Time); err != nil {
		return fmt.Errorf("write snapshot time: %w", err)
	}
	if err := r.Set(KeyTimeToNext, snap.Remaining); err != nil {
		return fmt.Errorf("write snapshot remaining: %w", err)
	}
	capturedAt := snap.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	if err := r.Set(KeyLastUpdate, strconv.FormatInt(capturedAt.Unix(), 10)); err != nil {
		return fmt.Errorf("write snapshot timestamp: %w", err)
	}
	return nil
}

// WritePlaceholder overwrites the snapshot with the visible "no data" state.
func WritePlaceholder(r Register) error {
	for _, key := range []string{KeyNextPrayer, KeyPrayerTime, KeyTimeToNext} {
		if err := r.Set(key, PlaceholderValue); err != nil {
			return fmt.Errorf("write placeholder: %w", err)
		}
	}
	return r.Set(KeyLastUpdate, strconv.FormatInt(time.Now().Unix(), 10))
}

// Package schedule derives "next prayer" state from a day's six-entry
// schedule and a wall-clock instant. All comparisons parse clock strings into
// minutes since midnight; lexicographic HH:mm ordering happens to agree for
// zero-padded values but is not relied on.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

// ErrScheduleUnavailable is returned when no entry of the day is usable.
// Callers must surface an explicit unavailable state rather than guessing.
var ErrScheduleUnavailable = errors.New("no usable prayer times for the day")

// Next describes the upcoming prayer resolved against a specific instant.
type Next struct {
	Name     models.PrayerName
	Time     string    // HH:mm clock time of the prayer
	Target   time.Time // absolute instant the prayer occurs
	Tomorrow bool      // target falls on the following calendar day
}

// MinutesOfDay parses an HH:mm string into minutes since midnight. Returns
// false for anything that is not a valid 24-hour clock time; such entries are
// excluded from next-prayer scans.
func MinutesOfDay(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, false
	}
	return hour*60 + min, true
}

// FindNext scans today's entries in canonical order and returns the first one
// strictly after now. An entry equal to the current minute counts as already
// past. When every entry has passed, the result rolls over to tomorrow's Fajr
// if available, otherwise to today's Fajr value shifted onto the following
// day. Malformed entries are skipped; a day with no usable entry at all (and
// no usable rollover) yields ErrScheduleUnavailable.
func FindNext(today, tomorrow models.PrayerDay, now time.Time) (Next, error) {
	nowMin := now.Hour()*60 + now.Minute()

	for _, name := range models.CanonicalOrder {
		raw := today.At(name)
		m, ok := MinutesOfDay(raw)
		if !ok {
			continue
		}
		if m > nowMin {
			return Next{
				Name:   name,
				Time:   raw,
				Target: atMinute(now, m, 0),
			}, nil
		}
	}

	// All of today's prayers have passed (or were unusable). Roll to Fajr of
	// the following day, preferring tomorrow's actual value.
	if m, ok := MinutesOfDay(tomorrow.Fajr); ok {
		return Next{
			Name:     models.Fajr,
			Time:     tomorrow.Fajr,
			Target:   atMinute(now, m, 1),
			Tomorrow: true,
		}, nil
	}
	if m, ok := MinutesOfDay(today.Fajr); ok {
		// Tomorrow's data is absent; reuse today's Fajr with the target
		// shifted 24h so the remaining duration stays positive.
		return Next{
			Name:     models.Fajr,
			Time:     today.Fajr,
			Target:   atMinute(now, m, 1),
			Tomorrow: true,
		}, nil
	}

	return Next{}, ErrScheduleUnavailable
}

// atMinute returns the instant at the given minutes-since-midnight, dayOffset
// days after now's calendar day, in now's location.
func atMinute(now time.Time, minutes, dayOffset int) time.Time {
	base := now.AddDate(0, 0, dayOffset)
	return time.Date(base.Year(), base.Month(), base.Day(), minutes/60, minutes%60, 0, 0, now.Location())
}

// Remaining returns the duration until the next prayer, floored to whole
// seconds. Never negative.
func Remaining(next Next, now time.Time) time.Duration {
	d := next.Target.Sub(now)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// FormatCountdown renders a duration as zero-padded HH:MM:SS (foreground
// resolution) or HH:MM (widget resolution).
func FormatCountdown(d time.Duration, withSeconds bool) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if withSeconds {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

package models

import (
	"fmt"
	"time"
)

// PrayerName identifies one of the six daily prayers tracked by the service.
type PrayerName string

const (
	Fajr    PrayerName = "Fajr"
	Sunrise PrayerName = "Sunrise"
	Dhuhr   PrayerName = "Dhuhr"
	Asr     PrayerName = "Asr"
	Maghrib PrayerName = "Maghrib"
	Isha    PrayerName = "Isha"
)

// CanonicalOrder is the fixed chronological order used for next-prayer scans.
var CanonicalOrder = [6]PrayerName{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// DisplayNames maps canonical prayer names to their Turkish labels, which are
// also the keys used in the widget schedule store.
var DisplayNames = map[PrayerName]string{
	Fajr:    "İmsak",
	Sunrise: "Güneş",
	Dhuhr:   "Öğle",
	Asr:     "İkindi",
	Maghrib: "Akşam",
	Isha:    "Yatsı",
}

// DateKeyLayout is the canonical date key format (calendar-local, locale-invariant).
const DateKeyLayout = "2006-01-02"

// DateKey formats t as a canonical YYYY-MM-DD key.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey parses a canonical YYYY-MM-DD key in the given location.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", key, err)
	}
	return t, nil
}

// PrayerDay holds the six prayer times for one calendar day as zero-padded
// 24-hour HH:mm strings. Field names match the upstream timings object so a
// day round-trips through JSON unchanged.
type PrayerDay struct {
	Fajr    string `json:"Fajr"`
	Sunrise string `json:"Sunrise"`
	Dhuhr   string `json:"Dhuhr"`
	Asr     string `json:"Asr"`
	Maghrib string `json:"Maghrib"`
	Isha    string `json:"Isha"`
}

// At returns the stored time string for the named prayer.
func (d PrayerDay) At(name PrayerName) string {
	switch name {
	case Fajr:
		return d.Fajr
	case Sunrise:
		return d.Sunrise
	case Dhuhr:
		return d.Dhuhr
	case Asr:
		return d.Asr
	case Maghrib:
		return d.Maghrib
	case Isha:
		return d.Isha
	}
	return ""
}

// IsZero reports whether no prayer time is set.
func (d PrayerDay) IsZero() bool {
	return d == PrayerDay{}
}

// CitySchedule maps canonical date keys to prayer days for one city.
type CitySchedule map[string]PrayerDay

// NextPrayerSnapshot is the derived next-prayer state mirrored into the widget
// register. It is overwritten whole by whichever writer computed it last; the
// foreground app and the background widget job never merge fields.
type NextPrayerSnapshot struct {
	Name       PrayerName `json:"name"`
	Time       string     `json:"time"`      // HH:mm clock time of the prayer
	Remaining  string     `json:"remaining"` // HH:MM at widget resolution
	CapturedAt time.Time  `json:"capturedAt"`
}

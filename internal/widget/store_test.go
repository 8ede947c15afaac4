package widget

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "widget.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDay(fajr string) models.PrayerDay {
	return models.PrayerDay{
		Fajr: fajr, Sunrise: "07:01", Dhuhr: "13:05",
		Asr: "16:40", Maghrib: "19:55", Isha: "21:20",
	}
}

func sampleWindow(start time.Time, n int) models.CitySchedule {
	days := models.CitySchedule{}
	for i := 0; i < n; i++ {
		days[models.DateKey(start.AddDate(0, 0, i))] = sampleDay("05:32")
	}
	return days
}

func TestStore_DayRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.Day("2026-08-31"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	if err := s.PutDays(models.CitySchedule{"2026-08-31": sampleDay("05:32")}); err != nil {
		t.Fatalf("PutDays: %v", err)
	}

	d, ok, err := s.Day("2026-08-31")
	if err != nil || !ok {
		t.Fatalf("Day: ok=%v err=%v", ok, err)
	}
	if d.Fajr != "05:32" || d.Isha != "21:20" {
		t.Errorf("day = %+v", d)
	}
}

func TestStore_PutDaysOverwritesExistingDates(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutDays(models.CitySchedule{"2026-08-31": sampleDay("05:32")}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutDays(models.CitySchedule{"2026-08-31": sampleDay("05:40")}); err != nil {
		t.Fatal(err)
	}

	d, _, _ := s.Day("2026-08-31")
	if d.Fajr != "05:40" {
		t.Errorf("Fajr = %q, want overwritten 05:40", d.Fajr)
	}
}

func TestStore_PutDaysLeavesOtherDatesUntouched(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if err := s.PutDays(sampleWindow(start, 10)); err != nil {
		t.Fatal(err)
	}
	// Partial update covering only two dates.
	if err := s.PutDays(models.CitySchedule{"2026-08-03": sampleDay("05:50")}); err != nil {
		t.Fatal(err)
	}

	if d, _, _ := s.Day("2026-08-03"); d.Fajr != "05:50" {
		t.Errorf("updated date Fajr = %q", d.Fajr)
	}
	if _, ok, _ := s.Day("2026-08-07"); !ok {
		t.Error("untouched date lost by partial update")
	}
}

func TestStore_PruneBefore(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if err := s.PutDays(sampleWindow(start, 10)); err != nil {
		t.Fatal(err)
	}
	if err := s.PruneBefore("2026-08-05"); err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}

	if _, ok, _ := s.Day("2026-08-04"); ok {
		t.Error("date before cutoff survived prune")
	}
	if _, ok, _ := s.Day("2026-08-05"); !ok {
		t.Error("cutoff date itself was pruned")
	}
}

func TestStore_RegisterRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.Get(KeyNextPrayer); ok || err != nil {
		t.Fatalf("empty register: ok=%v err=%v", ok, err)
	}
	if err := s.Set(KeyNextPrayer, "Maghrib"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(KeyNextPrayer, "Isha"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, ok, err := s.Get(KeyNextPrayer)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if v != "Isha" {
		t.Errorf("value = %q, want last write Isha", v)
	}
}

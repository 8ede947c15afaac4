package widget

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

func newTestScheduler(t *testing.T) (*RefreshScheduler, *Store, *mapRegister) {
	t.Helper()
	store := newTestStore(t)
	register := newMapRegister()
	bridge := NewBridge(store, register, NoopBroadcaster{}, zap.NewNop())
	s := NewRefreshScheduler(store, register, bridge, time.Minute, zap.NewNop())
	return s, store, register
}

func seedDays(t *testing.T, store *Store, now time.Time) {
	t.Helper()
	err := store.PutDays(models.CitySchedule{
		models.DateKey(now): {
			Fajr: "05:32", Sunrise: "07:01", Dhuhr: "13:05",
			Asr: "16:40", Maghrib: "19:55", Isha: "21:20",
		},
		models.DateKey(now.AddDate(0, 0, 1)): {
			Fajr: "05:33", Sunrise: "07:02", Dhuhr: "13:05",
			Asr: "16:40", Maghrib: "19:55", Isha: "21:20",
		},
	})
	if err != nil {
		t.Fatalf("seed widget store: %v", err)
	}
}

func TestRunOnce_MissingSnapshotRescans(t *testing.T) {
	s, store, register := newTestScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	seedDays(t, store, now)

	result, err := s.runOnce(now)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if result != "refreshed" {
		t.Errorf("result = %q, want refreshed", result)
	}

	snap, ok, err := ReadSnapshot(register)
	if err != nil || !ok {
		t.Fatalf("snapshot: ok=%v err=%v", ok, err)
	}
	if snap.Name != models.Dhuhr || snap.Time != "13:05" {
		t.Errorf("snapshot = %+v, want Dhuhr at 13:05", snap)
	}
	if snap.Remaining != "01:05" {
		t.Errorf("remaining = %q, want 01:05", snap.Remaining)
	}
}

func TestRunOnce_FutureSnapshotOnlyRecomputesCountdown(t *testing.T) {
	s, store, register := newTestScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	seedDays(t, store, now)

	if err := WriteSnapshot(register, models.NextPrayerSnapshot{
		Name: models.Dhuhr, Time: "13:05", Remaining: "09:99", CapturedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	result, err := s.runOnce(now)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if result != "unchanged" {
		t.Errorf("result = %q, want unchanged", result)
	}

	snap, _, _ := ReadSnapshot(register)
	if snap.Name != models.Dhuhr {
		t.Errorf("name changed to %s", snap.Name)
	}
	if snap.Remaining != "01:05" {
		t.Errorf("remaining = %q, want recomputed 01:05", snap.Remaining)
	}
}

func TestRunOnce_PassedSnapshotRescans(t *testing.T) {
	s, store, register := newTestScheduler(t)
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	seedDays(t, store, now)

	// Dhuhr already passed at 14:00.
	if err := WriteSnapshot(register, models.NextPrayerSnapshot{
		Name: models.Dhuhr, Time: "13:05", Remaining: "00:00",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := s.runOnce(now)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if result != "refreshed" {
		t.Errorf("result = %q, want refreshed", result)
	}
	snap, _, _ := ReadSnapshot(register)
	if snap.Name != models.Asr || snap.Time != "16:40" {
		t.Errorf("snapshot = %+v, want Asr at 16:40", snap)
	}
}

func TestRunOnce_SnapshotAtCurrentMinuteRescans(t *testing.T) {
	s, store, register := newTestScheduler(t)
	now := time.Date(2026, 8, 31, 13, 5, 30, 0, time.UTC)
	seedDays(t, store, now)

	if err := WriteSnapshot(register, models.NextPrayerSnapshot{
		Name: models.Dhuhr, Time: "13:05", Remaining: "00:00",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := s.runOnce(now)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if result != "refreshed" {
		t.Errorf("result = %q, want rescan at boundary minute", result)
	}
	snap, _, _ := ReadSnapshot(register)
	if snap.Name != models.Asr {
		t.Errorf("name = %s, want Asr", snap.Name)
	}
}

func TestRunOnce_InvalidSnapshotTimeRescans(t *testing.T) {
	s, store, register := newTestScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	seedDays(t, store, now)

	if err := WriteSnapshot(register, models.NextPrayerSnapshot{
		Name: models.Dhuhr, Time: "garbage", Remaining: "01:00",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := s.runOnce(now)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if result != "refreshed" {
		t.Errorf("result = %q, want refreshed", result)
	}
}

func TestRunOnce_NoDataWritesPlaceholder(t *testing.T) {
	s, _, register := newTestScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	result, err := s.runOnce(now)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if result != "no_data" {
		t.Errorf("result = %q, want no_data", result)
	}
	if v, _, _ := register.Get(KeyNextPrayer); v != PlaceholderValue {
		t.Errorf("register = %q, want placeholder", v)
	}
}

func TestRunOnce_LateNightRollsToTomorrow(t *testing.T) {
	s, store, register := newTestScheduler(t)
	now := time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC)
	seedDays(t, store, now)

	result, err := s.runOnce(now)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if result != "refreshed" {
		t.Errorf("result = %q", result)
	}
	snap, _, _ := ReadSnapshot(register)
	if snap.Name != models.Fajr || snap.Time != "05:33" {
		t.Errorf("snapshot = %+v, want tomorrow's Fajr 05:33", snap)
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

func seedStore(t *testing.T, days models.CitySchedule) Store {
	t.Helper()
	s := NewInMemoryStore()
	if err := s.PutCity(context.Background(), "Istanbul", days); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestIsFresh_FullWindow(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	s := seedStore(t, window(now, 30))
	if !DefaultFreshness.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("30 covered days should be fresh")
	}
}

func TestIsFresh_ExactThreshold(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	s := seedStore(t, window(now, 20))
	if !DefaultFreshness.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("exactly 20 of 30 covered days should be fresh")
	}
}

func TestIsFresh_BelowThreshold(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	s := seedStore(t, window(now, 15))
	if DefaultFreshness.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("15 of 30 covered days should be stale")
	}
}

func TestIsFresh_ToleratesGaps(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	days := window(now, 30)
	// Punch 5 holes; 25 covered days still clear the 20-day bar.
	for i := 1; i <= 5; i++ {
		delete(days, models.DateKey(now.AddDate(0, 0, i*2)))
	}
	s := seedStore(t, days)
	if !DefaultFreshness.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("25 of 30 covered days should be fresh despite gaps")
	}
}

func TestIsFresh_RequiresToday(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	// Plenty of future coverage but today itself is missing.
	s := seedStore(t, window(now.AddDate(0, 0, 1), 30))
	if DefaultFreshness.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("window without today's entry should be stale")
	}
}

func TestIsFresh_EmptyCache(t *testing.T) {
	now := time.Now()
	s := NewInMemoryStore()
	if DefaultFreshness.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("empty cache should be stale")
	}
}

func TestIsFresh_CustomWindow(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	f := Freshness{WindowDays: 7, MinDays: 7}
	s := seedStore(t, window(now, 6))
	if f.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("6 of 7 required days should be stale")
	}
	s = seedStore(t, window(now, 7))
	if !f.IsFresh(context.Background(), s, "Istanbul", now) {
		t.Error("7 of 7 days should be fresh")
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

func day(fajr string) models.PrayerDay {
	return models.PrayerDay{
		Fajr: fajr, Sunrise: "07:01", Dhuhr: "13:05",
		Asr: "16:40", Maghrib: "19:55", Isha: "21:20",
	}
}

func window(start time.Time, n int) models.CitySchedule {
	days := models.CitySchedule{}
	for i := 0; i < n; i++ {
		days[models.DateKey(start.AddDate(0, 0, i))] = day("05:32")
	}
	return days
}

func TestInMemoryStore_RoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if _, ok, err := s.GetCity(ctx, "Istanbul"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	if err := s.PutCity(ctx, "Istanbul", window(now, 5)); err != nil {
		t.Fatalf("PutCity: %v", err)
	}

	got, ok, err := s.GetCity(ctx, "Istanbul")
	if err != nil || !ok {
		t.Fatalf("GetCity: ok=%v err=%v", ok, err)
	}
	if len(got) != 5 {
		t.Errorf("days = %d, want 5", len(got))
	}

	d, ok, err := s.GetDay(ctx, "Istanbul", models.DateKey(now))
	if err != nil || !ok {
		t.Fatalf("GetDay: ok=%v err=%v", ok, err)
	}
	if d.Fajr != "05:32" {
		t.Errorf("Fajr = %q", d.Fajr)
	}

	if _, ok, _ := s.GetDay(ctx, "Istanbul", "1999-01-01"); ok {
		t.Error("unexpected hit for absent date")
	}
}

func TestInMemoryStore_PutCityReplacesWindow(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.PutCity(ctx, "Istanbul", window(now, 10)); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCity(ctx, "Istanbul", window(now.AddDate(0, 0, 20), 3)); err != nil {
		t.Fatal(err)
	}

	got, _, _ := s.GetCity(ctx, "Istanbul")
	if len(got) != 3 {
		t.Errorf("days = %d, want 3 (old window replaced whole)", len(got))
	}
}

func TestInMemoryStore_RetainsOtherCities(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.PutCity(ctx, "Istanbul", window(now, 5)); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCity(ctx, "Ankara", window(now, 7)); err != nil {
		t.Fatal(err)
	}

	ist, ok, _ := s.GetCity(ctx, "Istanbul")
	if !ok || len(ist) != 5 {
		t.Errorf("Istanbul window disturbed: ok=%v len=%d", ok, len(ist))
	}
	ank, ok, _ := s.GetCity(ctx, "Ankara")
	if !ok || len(ank) != 7 {
		t.Errorf("Ankara window wrong: ok=%v len=%d", ok, len(ank))
	}
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()
	key := models.DateKey(now)

	if err := s.PutCity(ctx, "Istanbul", window(now, 2)); err != nil {
		t.Fatal(err)
	}
	got, _, _ := s.GetCity(ctx, "Istanbul")
	got[key] = day("00:00")

	fresh, _, _ := s.GetCity(ctx, "Istanbul")
	if fresh[key].Fajr != "05:32" {
		t.Error("mutating a returned window leaked into the store")
	}
}

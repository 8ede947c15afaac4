package cache

import (
	"context"
	"sync"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

// Store defines the interface for prayer schedule cache implementations.
// GetDay returns one day's schedule, GetCity the whole cached window for a
// city, and PutCity replaces that city's window wholesale. Implementations
// never fail reads on corrupt data; a blob that cannot be decoded is a miss.
type Store interface {
	GetDay(ctx context.Context, city, date string) (models.PrayerDay, bool, error)
	GetCity(ctx context.Context, city string) (models.CitySchedule, bool, error)
	PutCity(ctx context.Context, city string, days models.CitySchedule) error
}

// InMemoryStore implements Store using a map guarded by a RWMutex. The
// foreground refresh path and the widget job both read it, so unlike a
// single-goroutine cache it must be safe for concurrent use.
type InMemoryStore struct {
	mu     sync.RWMutex
	cities map[string]models.CitySchedule
}

// NewInMemoryStore creates a new in-memory store instance.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		cities: make(map[string]models.CitySchedule),
	}
}

// GetDay retrieves the schedule for one city/date.
// Returns (day, true, nil) on hit, (zero, false, nil) on miss.
func (s *InMemoryStore) GetDay(ctx context.Context, city, date string) (models.PrayerDay, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days, ok := s.cities[city]
	if !ok {
		return models.PrayerDay{}, false, nil
	}
	day, ok := days[date]
	if !ok {
		return models.PrayerDay{}, false, nil
	}
	return day, true, nil
}

// GetCity returns a copy of the city's cached window.
func (s *InMemoryStore) GetCity(ctx context.Context, city string) (models.CitySchedule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days, ok := s.cities[city]
	if !ok || len(days) == 0 {
		return nil, false, nil
	}
	out := make(models.CitySchedule, len(days))
	for k, v := range days {
		out[k] = v
	}
	return out, true, nil
}

// PutCity replaces the stored window for one city. Other cities are retained
// so switching back is instant.
func (s *InMemoryStore) PutCity(ctx context.Context, city string, days models.CitySchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(models.CitySchedule, len(days))
	for k, v := range days {
		copied[k] = v
	}
	s.cities[city] = copied
	return nil
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

const cacheFileName = "prayer_times_cache.json"

// FileStore implements Store as a single JSON blob on disk keyed by city, then
// by canonical date. This mirrors the app-side persisted cache: one document,
// replaced per city, surviving restarts. A corrupt or unreadable blob is
// treated as an empty cache and never surfaces as an error to callers.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore rooted at dir, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &FileStore{
		path: filepath.Join(dir, cacheFileName),
		now:  time.Now,
	}, nil
}

// load reads the whole blob. Missing or corrupt files yield an empty map.
func (s *FileStore) load() map[string]models.CitySchedule {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]models.CitySchedule{}
	}
	var all map[string]models.CitySchedule
	if err := json.Unmarshal(data, &all); err != nil {
		return map[string]models.CitySchedule{}
	}
	if all == nil {
		all = map[string]models.CitySchedule{}
	}
	return all
}

func (s *FileStore) save(all map[string]models.CitySchedule) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// GetDay retrieves one city/date entry. Corrupt blobs read as a miss.
func (s *FileStore) GetDay(ctx context.Context, city, date string) (models.PrayerDay, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, ok := s.load()[city]
	if !ok {
		return models.PrayerDay{}, false, nil
	}
	day, ok := days[date]
	if !ok {
		return models.PrayerDay{}, false, nil
	}
	return day, true, nil
}

// GetCity returns the cached window for a city.
func (s *FileStore) GetCity(ctx context.Context, city string) (models.CitySchedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, ok := s.load()[city]
	if !ok || len(days) == 0 {
		return nil, false, nil
	}
	return days, true, nil
}

// PutCity replaces the city's window, pruning dates before today so the blob
// does not grow without bound. Other cities' windows are retained.
func (s *FileStore) PutCity(ctx context.Context, city string, days models.CitySchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := models.DateKey(s.now())
	pruned := make(models.CitySchedule, len(days))
	for date, day := range days {
		if date >= today {
			pruned[date] = day
		}
	}

	all := s.load()
	all[city] = pruned
	return s.save(all)
}

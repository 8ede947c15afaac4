package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

const keyPrefix = "prayer:schedule:"

// MemcachedStore implements Store using memcached, one blob per city.
type MemcachedStore struct {
	client *memcache.Client
	ttl    time.Duration
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero. ttl bounds how long
// a city blob survives without a refresh.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int, ttl time.Duration) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client, ttl: ttl}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(city string) string {
	return keyPrefix + city
}

// GetCity implements Store.GetCity. An undecodable blob reads as a miss.
func (s *MemcachedStore) GetCity(ctx context.Context, city string) (models.CitySchedule, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(city))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, err
	}
	var days models.CitySchedule
	if err := json.Unmarshal(item.Value, &days); err != nil {
		return nil, false, nil
	}
	if len(days) == 0 {
		return nil, false, nil
	}
	return days, true, nil
}

// GetDay implements Store.GetDay via the city blob.
func (s *MemcachedStore) GetDay(ctx context.Context, city, date string) (models.PrayerDay, bool, error) {
	days, ok, err := s.GetCity(ctx, city)
	if err != nil || !ok {
		return models.PrayerDay{}, false, err
	}
	day, ok := days[date]
	if !ok {
		return models.PrayerDay{}, false, nil
	}
	return day, true, nil
}

// PutCity implements Store.PutCity.
func (s *MemcachedStore) PutCity(ctx context.Context, city string, days models.CitySchedule) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(days)
	if err != nil {
		return err
	}
	expSec := int32(s.ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = maxRelativeExp
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(city),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}

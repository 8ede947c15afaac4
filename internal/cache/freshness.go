package cache

import (
	"context"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

// Freshness decides whether a city's cached window still covers enough of the
// upcoming days to skip a remote refresh. A window is fresh when today's entry
// exists and at least MinDays of the next WindowDays are present. Gaps are
// tolerated up to that threshold.
type Freshness struct {
	WindowDays int
	MinDays    int
}

// DefaultFreshness matches the 20-of-30-day validity rule the mobile cache
// used before the full-year window existed.
var DefaultFreshness = Freshness{WindowDays: 30, MinDays: 20}

// IsFresh reports whether the city's cached window passes the coverage check.
// Read errors count as stale; a refresh is the safe response to both.
func (f Freshness) IsFresh(ctx context.Context, store Store, city string, now time.Time) bool {
	days, ok, err := store.GetCity(ctx, city)
	if err != nil || !ok {
		return false
	}

	if _, ok := days[models.DateKey(now)]; !ok {
		return false
	}

	covered := 0
	for i := 0; i < f.WindowDays; i++ {
		key := models.DateKey(now.AddDate(0, 0, i))
		if _, ok := days[key]; ok {
			covered++
		}
	}
	return covered >= f.MinDays
}

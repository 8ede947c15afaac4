package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

// Countdown drives the foreground 1-second tick. Each tick recomputes the
// remaining duration from absolute wall-clock time against an in-memory
// window; it never touches the cache store or the network. When the resolved
// next prayer changes (a prayer passes, or midnight rolls the schedule over),
// OnChange fires so the caller can overwrite the widget snapshot.
type Countdown struct {
	Interval time.Duration // defaults to 1s
	Logger   *zap.Logger

	// OnTick receives the live countdown each interval, formatted HH:MM:SS.
	OnTick func(next Next, remaining string)
	// OnChange fires when the next prayer's identity or target changed.
	OnChange func(next Next, remaining time.Duration)
	// OnUnavailable fires when no usable schedule exists for the current day.
	OnUnavailable func()

	mu     sync.RWMutex
	window models.CitySchedule
}

// SetWindow swaps the in-memory schedule window the ticker reads from.
// Called after a successful refresh or a city change.
func (c *Countdown) SetWindow(window models.CitySchedule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = window
}

func (c *Countdown) days(now time.Time) (today, tomorrow models.PrayerDay) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	today = c.window[models.DateKey(now)]
	tomorrow = c.window[models.DateKey(now.AddDate(0, 0, 1))]
	return today, tomorrow
}

// Run ticks until ctx is done. Returns ctx.Err().
func (c *Countdown) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}

	var last Next
	var havePrev bool

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := time.Now()
		today, tomorrow := c.days(now)
		next, err := FindNext(today, tomorrow, now)
		if err != nil {
			havePrev = false
			if c.OnUnavailable != nil {
				c.OnUnavailable()
			}
			continue
		}

		remaining := Remaining(next, now)
		if c.OnTick != nil {
			c.OnTick(next, FormatCountdown(remaining, true))
		}

		changed := !havePrev || next.Name != last.Name || !next.Target.Equal(last.Target)
		if changed {
			if c.Logger != nil {
				c.Logger.Debug("next prayer changed",
					zap.String("name", string(next.Name)),
					zap.String("time", next.Time),
					zap.Bool("tomorrow", next.Tomorrow))
			}
			if c.OnChange != nil {
				c.OnChange(next, remaining)
			}
			last = next
			havePrev = true
		}
	}
}

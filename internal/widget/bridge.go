package widget

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/models"
	"github.com/tkaraca/prayer-widget-service/internal/observability"
)

// Bridge pushes derived state into widget storage and requests repaints.
// Pushes are one-way: callers log failures but never block the pipeline on
// the widget surface.
type Bridge struct {
	store       *Store
	register    Register
	broadcaster Broadcaster
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	instances map[string]struct{}

	// OnFirstInstance and OnLastRemoved fire when the active-instance set
	// becomes non-empty or empty. Wired to the refresh scheduler's
	// enable/disable in main.
	OnFirstInstance func()
	OnLastRemoved   func()
}

// NewBridge creates a Bridge over the given storage and broadcaster.
func NewBridge(store *Store, register Register, broadcaster Broadcaster, logger *zap.Logger) *Bridge {
	return &Bridge{
		store:       store,
		register:    register,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
		instances:   make(map[string]struct{}),
	}
}

// Register exposes the underlying key-value register (selected-city
// persistence reads and writes it directly).
func (b *Bridge) Register() Register {
	return b.register
}

// PushSchedule writes the city's window into the schedule store, prunes dates
// that are already past, and requests a repaint.
func (b *Bridge) PushSchedule(city string, days models.CitySchedule) error {
	if err := b.store.PutDays(days); err != nil {
		return fmt.Errorf("push schedule: %w", err)
	}
	if err := b.store.PruneBefore(models.DateKey(b.now())); err != nil {
		b.logger.Warn("prune widget schedule", zap.Error(err))
	}
	observability.WidgetPushesTotal.WithLabelValues("schedule").Inc()
	b.logger.Debug("widget schedule pushed",
		zap.String("city", city),
		zap.Int("days", len(days)))
	b.RequestRepaint()
	return nil
}

// PushNextPrayer overwrites the snapshot register (whole value, stamped with
// the wall-clock update time) and requests a repaint.
func (b *Bridge) PushNextPrayer(snap models.NextPrayerSnapshot) error {
	if err := WriteSnapshot(b.register, snap); err != nil {
		return fmt.Errorf("push next prayer: %w", err)
	}
	observability.WidgetPushesTotal.WithLabelValues("snapshot").Inc()
	b.RequestRepaint()
	return nil
}

// PushPlaceholder writes the visible "no data" state and requests a repaint.
func (b *Bridge) PushPlaceholder() error {
	if err := WritePlaceholder(b.register); err != nil {
		return fmt.Errorf("push placeholder: %w", err)
	}
	observability.WidgetPushesTotal.WithLabelValues("placeholder").Inc()
	b.RequestRepaint()
	return nil
}

// RequestRepaint broadcasts to the widget host with the active instance set.
// Failures are logged, never propagated: a missed repaint self-heals on the
// next scheduler fire.
func (b *Bridge) RequestRepaint() {
	ids := b.Instances()
	if err := b.broadcaster.RequestRepaint(ids); err != nil {
		b.logger.Warn("widget repaint broadcast failed", zap.Error(err))
	}
}

// AddInstance registers a newly placed widget surface and returns its ID.
func (b *Bridge) AddInstance() string {
	id := uuid.New().String()
	b.mu.Lock()
	b.instances[id] = struct{}{}
	first := len(b.instances) == 1
	b.mu.Unlock()

	b.logger.Info("widget instance added", zap.String("instance_id", id))
	if first && b.OnFirstInstance != nil {
		b.OnFirstInstance()
	}
	return id
}

// RemoveInstance unregisters a removed widget surface. Returns false when the
// ID was unknown.
func (b *Bridge) RemoveInstance(id string) bool {
	b.mu.Lock()
	_, ok := b.instances[id]
	if ok {
		delete(b.instances, id)
	}
	empty := len(b.instances) == 0
	b.mu.Unlock()

	if !ok {
		return false
	}
	b.logger.Info("widget instance removed", zap.String("instance_id", id))
	if empty && b.OnLastRemoved != nil {
		b.OnLastRemoved()
	}
	return true
}

// Instances returns the active widget instance IDs.
func (b *Bridge) Instances() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.instances))
	for id := range b.instances {
		ids = append(ids, id)
	}
	return ids
}

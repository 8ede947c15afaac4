package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/client"
	"github.com/tkaraca/prayer-widget-service/internal/lifecycle"
	"github.com/tkaraca/prayer-widget-service/internal/models"
	"github.com/tkaraca/prayer-widget-service/internal/observability"
	"github.com/tkaraca/prayer-widget-service/internal/refresh"
	"github.com/tkaraca/prayer-widget-service/internal/schedule"
	"github.com/tkaraca/prayer-widget-service/internal/validation"
	"github.com/tkaraca/prayer-widget-service/internal/widget"
)

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	// StaleAfter marks the service degraded when the last successful refresh
	// is older than this. Zero disables the check.
	StaleAfter time.Duration
	StartTime  time.Time
	// CachePing, when set, checks schedule cache reachability (memcached backend).
	CachePing func() error
	// RegisterPing, when set, checks widget register reachability (redis backend).
	RegisterPing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	refresher    *refresh.Refresher
	bridge       *widget.Bridge
	healthConfig *HealthConfig
	logger       *zap.Logger
	now          func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(refresher *refresh.Refresher, bridge *widget.Bridge, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		refresher:    refresher,
		bridge:       bridge,
		healthConfig: healthConfig,
		logger:       logger,
		now:          time.Now,
	}
}

// cityFromRequest validates the {city} path variable.
func cityFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], 2, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return "", false
	}
	return city, true
}

// GetTimes handles GET /times/{city}. Returns the whole cached window,
// refreshing first if the window fails the freshness check.
func (h *Handler) GetTimes(w http.ResponseWriter, r *http.Request) {
	city, ok := cityFromRequest(w, r)
	if !ok {
		return
	}
	observability.RecordScheduleQuery(city)

	days, err := h.refresher.EnsureFresh(r.Context(), city, false)
	if err != nil {
		writeCalendarError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"city": city,
		"days": days,
	})
}

// GetToday handles GET /times/{city}/today.
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	city, ok := cityFromRequest(w, r)
	if !ok {
		return
	}
	observability.RecordScheduleQuery(city)

	days, err := h.refresher.EnsureFresh(r.Context(), city, false)
	if err != nil {
		writeCalendarError(w, r, err)
		return
	}

	today := models.DateKey(h.now())
	day, found := days[today]
	if !found {
		writeError(w, r, http.StatusNotFound, "NO_DATA", "no schedule for today")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"city":    city,
		"date":    today,
		"timings": day,
	})
}

// GetNext handles GET /next/{city}. Computes the next upcoming prayer from the
// cached window and the current wall clock.
func (h *Handler) GetNext(w http.ResponseWriter, r *http.Request) {
	city, ok := cityFromRequest(w, r)
	if !ok {
		return
	}
	observability.RecordScheduleQuery(city)

	days, err := h.refresher.EnsureFresh(r.Context(), city, false)
	if err != nil {
		writeCalendarError(w, r, err)
		return
	}

	now := h.now()
	today := days[models.DateKey(now)]
	tomorrow := days[models.DateKey(now.AddDate(0, 0, 1))]

	next, err := schedule.FindNext(today, tomorrow, now)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "NO_DATA", "no usable schedule for today or tomorrow")
		return
	}

	remaining := schedule.Remaining(next, now)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"city":             city,
		"name":             next.Name,
		"displayName":      models.DisplayNames[next.Name],
		"time":             next.Time,
		"target":           next.Target.Format(time.RFC3339),
		"tomorrow":         next.Tomorrow,
		"remaining":        schedule.FormatCountdown(remaining, true),
		"remainingSeconds": int(remaining.Seconds()),
	})
}

// PostRefresh handles POST /refresh/{city}. Forces a full-window refresh,
// bypassing the freshness check.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	city, ok := cityFromRequest(w, r)
	if !ok {
		return
	}

	days, err := h.refresher.EnsureFresh(r.Context(), city, true)
	if err != nil {
		writeCalendarError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"city": city,
		"days": len(days),
	})
}

// GetCity handles GET /city. Returns the persisted selected city.
func (h *Handler) GetCity(w http.ResponseWriter, r *http.Request) {
	city, found, err := h.bridge.Register().Get(widget.KeySelectedCity)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "REGISTER_UNAVAILABLE", "unable to read selected city")
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, "NO_CITY", "no city selected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"city": city})
}

// PutCity handles PUT /city. Persists the selection, then refreshes the new
// city's window so the widget converges without waiting for the next job fire.
// A failed refresh does not undo the selection; the register write is the
// source of truth and the next refresh pass retries.
func (h *Handler) PutCity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		City string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "expected JSON body with city field")
		return
	}
	city, err := validation.ValidateCity(body.City, 2, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	if err := h.bridge.Register().Set(widget.KeySelectedCity, city); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "REGISTER_UNAVAILABLE", "unable to persist selected city")
		return
	}

	refreshState := "ok"
	if _, err := h.refresher.EnsureFresh(r.Context(), city, false); err != nil {
		refreshState = "failed"
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Warn("refresh after city switch failed", zap.String("city", city), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"city":    city,
		"refresh": refreshState,
	})
}

// PostWidgetInstance handles POST /widgets. Registers a newly placed widget
// surface and returns its instance ID.
func (h *Handler) PostWidgetInstance(w http.ResponseWriter, r *http.Request) {
	id := h.bridge.AddInstance()
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// DeleteWidgetInstance handles DELETE /widgets/{id}.
func (h *Handler) DeleteWidgetInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.bridge.RemoveInstance(id) {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_INSTANCE", "unknown widget instance: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	lastSuccess, lastErr := h.refresher.Status()
	if lastErr != nil {
		checks["calendarApi"] = "unhealthy"
	} else {
		checks["calendarApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.RegisterPing != nil {
		if h.healthConfig.RegisterPing() == nil {
			checks["widgetRegister"] = "healthy"
		} else {
			checks["widgetRegister"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "prayer-widget-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if !lastSuccess.IsZero() {
		resp["lastRefresh"] = lastSuccess.UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > stale schedule > healthy. A refresh error alone does not
// degrade the service while the cached window is still current.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}

	lastSuccess, lastErr := h.refresher.Status()
	if h.healthConfig != nil && h.healthConfig.StaleAfter > 0 {
		ref := lastSuccess
		if ref.IsZero() {
			ref = h.healthConfig.StartTime
		}
		if !ref.IsZero() && time.Since(ref) > h.healthConfig.StaleAfter {
			return healthResult{"degraded", http.StatusServiceUnavailable, "schedule_stale"}
		}
	}
	if lastErr != nil && lastSuccess.IsZero() {
		return healthResult{"degraded", http.StatusServiceUnavailable, "refresh_never_succeeded"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeCalendarError maps refresh/client errors onto HTTP status codes.
func writeCalendarError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, client.ErrCityNotFound):
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", "unknown city")
	case errors.Is(err, client.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", "calendar API rate limited")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "unable to fetch prayer times")
	}
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("calendar error", zap.Error(err))
	}
}

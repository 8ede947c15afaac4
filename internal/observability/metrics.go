package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Calendar API call rate. Watch for: error vs success ratio.
	CalendarAPICallsTotal *prometheus.CounterVec

	// Calendar API latency per request. Watch for: p95 > 2s (upstream degradation).
	CalendarAPIDuration *prometheus.HistogramVec

	// Retry attempts for calendar API calls. High retries = unstable upstream.
	CalendarAPIRetriesTotal prometheus.Counter

	// Month requests that failed after retries and were excluded from fan-in.
	MonthFetchFailuresTotal prometheus.Counter

	// Cache hits per store kind. Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	// Cache misses per store kind.
	CacheMissesTotal *prometheus.CounterVec

	// Cache read/write errors by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Full-window refresh outcomes: success, partial, failed, skipped_fresh.
	RefreshTotal *prometheus.CounterVec

	// Full-window refresh latency, dominated by the slowest month request.
	RefreshDurationSeconds prometheus.Histogram

	// Widget storage pushes by kind (schedule, snapshot, placeholder).
	WidgetPushesTotal *prometheus.CounterVec

	// Repaint broadcasts sent to the widget host.
	WidgetRepaintsTotal prometheus.Counter

	// Background widget job outcomes: refreshed, unchanged, no_data, error.
	WidgetJobRunsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// trackedCities is built from config; used to resolve city label cardinality.
	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}

	// Per-city schedule lookups (allow-list; others go to "other").
	ScheduleQueriesByCityTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	CalendarAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendarApiCallsTotal",
			Help: "Total number of calendar API month requests",
		},
		[]string{"status"},
	)
	CalendarAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calendarApiDurationSeconds",
			Help:    "Calendar API latency in seconds (per month request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CalendarAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calendarApiRetriesTotal",
			Help: "Total number of retry attempts for calendar API calls",
		},
	)
	MonthFetchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monthFetchFailuresTotal",
			Help: "Month requests dropped from the fan-in merge after exhausting retries",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of schedule cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of schedule cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduleRefreshTotal",
			Help: "Full-window schedule refresh outcomes (success, partial, failed, skipped_fresh)",
		},
		[]string{"result"},
	)
	RefreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduleRefreshDurationSeconds",
			Help:    "Full-window schedule refresh latency in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)
	WidgetPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetPushesTotal",
			Help: "Writes into widget-facing storage by kind (schedule, snapshot, placeholder)",
		},
		[]string{"kind"},
	)
	WidgetRepaintsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "widgetRepaintsTotal",
			Help: "Repaint broadcasts sent to the widget host",
		},
	)
	WidgetJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetJobRunsTotal",
			Help: "Background widget job fires by outcome (refreshed, unchanged, no_data, error)",
		},
		[]string{"result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions per component",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per component (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	ScheduleQueriesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduleQueriesByCityTotal",
			Help: "Schedule lookups by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		CalendarAPICallsTotal, CalendarAPIDuration, CalendarAPIRetriesTotal, MonthFetchFailuresTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		RefreshTotal, RefreshDurationSeconds,
		WidgetPushesTotal, WidgetRepaintsTotal, WidgetJobRunsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
		ScheduleQueriesByCityTotal,
	)
}

// SetTrackedCities sets the allow-list for city metrics. Non-tracked cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordScheduleQuery records a schedule lookup for the given city.
func RecordScheduleQuery(city string) {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c] // nil map read is safe in Go
	trackedCitiesMu.RUnlock()
	if ok {
		ScheduleQueriesByCityTotal.WithLabelValues(c).Inc()
	} else {
		ScheduleQueriesByCityTotal.WithLabelValues("other").Inc()
	}
}

// RecordCircuitBreakerTransition records a breaker state change for metrics.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

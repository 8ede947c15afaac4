package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tkaraca/prayer-widget-service/internal/circuitbreaker"
	"github.com/tkaraca/prayer-widget-service/internal/models"
	"github.com/tkaraca/prayer-widget-service/internal/observability"
)

// CalendarClient fetches normalized prayer schedules from the upstream
// calendar API. FetchMonth covers one Gregorian month; FetchWindow fans out
// one request per month and merges whatever succeeded.
type CalendarClient interface {
	FetchMonth(ctx context.Context, city string, year int, month time.Month) (models.CitySchedule, error)
	FetchWindow(ctx context.Context, city string, from time.Time, months int) (models.CitySchedule, error)
}

var (
	ErrCityNotFound    = errors.New("city not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrNoData means every month request in a window failed.
	ErrNoData = errors.New("no calendar data fetched")
)

// AladhanClient calls the Aladhan calendar-by-city endpoint.
type AladhanClient struct {
	apiURL         string
	country        string
	method         int // computation method, 13 = Diyanet
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewAladhanClient creates a client with default retry settings.
func NewAladhanClient(apiURL, country string, method int, timeout time.Duration) (*AladhanClient, error) {
	return NewAladhanClientWithRetry(apiURL, country, method, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewAladhanClientWithRetry creates a client with explicit retry settings.
func NewAladhanClientWithRetry(apiURL, country string, method int, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*AladhanClient, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("calendar API URL is required")
	}
	if country == "" {
		return nil, fmt.Errorf("country is required")
	}

	return &AladhanClient{
		apiURL:         apiURL,
		country:        country,
		method:         method,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker installs a breaker around month requests.
func (c *AladhanClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// calendarResponse mirrors the upstream calendar payload. Only the fields the
// pipeline consumes are mapped.
type calendarResponse struct {
	Code   int        `json:"code"`
	Status string     `json:"status"`
	Data   []dayEntry `json:"data"`
}

type dayEntry struct {
	Timings rawTimings `json:"timings"`
	Date    struct {
		Gregorian struct {
			Date string `json:"date"` // DD-MM-YYYY
		} `json:"gregorian"`
	} `json:"date"`
}

// rawTimings holds upstream time strings, HH:mm optionally suffixed with a
// timezone annotation such as " (+03)".
type rawTimings struct {
	Fajr    string `json:"Fajr"`
	Sunrise string `json:"Sunrise"`
	Dhuhr   string `json:"Dhuhr"`
	Asr     string `json:"Asr"`
	Maghrib string `json:"Maghrib"`
	Isha    string `json:"Isha"`
}

// FetchMonth fetches and normalizes one month of prayer days. Retries
// transient failures with exponential backoff; a month that still fails is
// reported as an error and isolated by FetchWindow.
func (c *AladhanClient) FetchMonth(ctx context.Context, city string, year int, month time.Month) (models.CitySchedule, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.CalendarAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var result models.CitySchedule
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, func() error {
				result, err = c.callAPI(ctx, city, year, month)
				return err
			})
		} else {
			result, err = c.callAPI(ctx, city, year, month)
		}
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

// FetchWindow issues one FetchMonth per month starting at from, all
// concurrently, and merges the successful results. A failed month is logged by
// the caller via the returned count semantics: the merged map simply omits its
// dates. Only a fully failed window is an error.
func (c *AladhanClient) FetchWindow(ctx context.Context, city string, from time.Time, months int) (models.CitySchedule, error) {
	if months <= 0 {
		months = 12
	}

	type monthResult struct {
		days models.CitySchedule
		err  error
	}

	results := make([]monthResult, months)
	var wg sync.WaitGroup
	for i := 0; i < months; i++ {
		// Anchor to the first of the month. AddDate on from itself would
		// normalize past short months (Aug 31 + 1 month = Oct 1) and skip
		// them from the window entirely.
		target := time.Date(from.Year(), from.Month()+time.Month(i), 1, 0, 0, 0, 0, from.Location())
		wg.Add(1)
		go func(idx int, year int, month time.Month) {
			defer wg.Done()
			days, err := c.FetchMonth(ctx, city, year, month)
			results[idx] = monthResult{days: days, err: err}
		}(i, target.Year(), target.Month())
	}
	wg.Wait()

	merged := models.CitySchedule{}
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			observability.MonthFetchFailuresTotal.Inc()
			continue
		}
		for date, day := range r.days {
			merged[date] = day
		}
	}

	if failed == months {
		return nil, fmt.Errorf("%w: all %d month requests failed", ErrNoData, months)
	}
	return merged, nil
}

func (c *AladhanClient) callAPI(ctx context.Context, city string, year int, month time.Month) (models.CitySchedule, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city, year, month)
	if err != nil {
		observability.CalendarAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.CalendarAPICallsTotal.WithLabelValues("error").Inc()
		observability.CalendarAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.CalendarAPICallsTotal.WithLabelValues(status).Inc()
	observability.CalendarAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiResp calendarResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: API code %d (%s)", ErrUpstreamFailure, apiResp.Code, apiResp.Status)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("parse response: empty calendar data")
	}

	return mapResponse(apiResp), nil
}

// mapResponse converts upstream day entries to canonical date keys and
// normalized HH:mm strings. Entries with unparseable dates are dropped.
func mapResponse(apiResp calendarResponse) models.CitySchedule {
	days := models.CitySchedule{}
	for _, entry := range apiResp.Data {
		key, err := normalizeDate(entry.Date.Gregorian.Date)
		if err != nil {
			continue
		}
		days[key] = models.PrayerDay{
			Fajr:    NormalizeClock(entry.Timings.Fajr),
			Sunrise: NormalizeClock(entry.Timings.Sunrise),
			Dhuhr:   NormalizeClock(entry.Timings.Dhuhr),
			Asr:     NormalizeClock(entry.Timings.Asr),
			Maghrib: NormalizeClock(entry.Timings.Maghrib),
			Isha:    NormalizeClock(entry.Timings.Isha),
		}
	}
	return days
}

// NormalizeClock strips a trailing timezone annotation (anything after the
// first space) and zero-pads to HH:mm. Strings that do not look like a clock
// time are passed through unchanged; the schedule engine excludes them.
func NormalizeClock(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, " "); idx != -1 {
		s = s[:idx]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return s
	}
	hour, err1 := strconv.Atoi(parts[0])
	min, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return s
	}
	return fmt.Sprintf("%02d:%02d", hour, min)
}

// normalizeDate reformats the source DD-MM-YYYY date into YYYY-MM-DD.
func normalizeDate(raw string) (string, error) {
	t, err := time.Parse("02-01-2006", strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse gregorian date %q: %w", raw, err)
	}
	return t.Format(models.DateKeyLayout), nil
}

func (c *AladhanClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func (c *AladhanClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *AladhanClient) buildRequest(ctx context.Context, city string, year int, month time.Month) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("city", city)
	params.Set("country", c.country)
	params.Set("method", strconv.Itoa(c.method))
	params.Set("year", strconv.Itoa(year))
	params.Set("month", strconv.Itoa(int(month)))
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *AladhanClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusBadRequest:
		// The calendar API reports unknown cities as 404 or 400.
		return fmt.Errorf("%w", ErrCityNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

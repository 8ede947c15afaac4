package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/cache"
	"github.com/tkaraca/prayer-widget-service/internal/client"
	"github.com/tkaraca/prayer-widget-service/internal/models"
	"github.com/tkaraca/prayer-widget-service/internal/refresh"
	"github.com/tkaraca/prayer-widget-service/internal/widget"
)

type stubCalendarClient struct {
	days models.CitySchedule
	err  error
}

func (s *stubCalendarClient) FetchMonth(ctx context.Context, city string, year int, month time.Month) (models.CitySchedule, error) {
	return nil, s.err
}

func (s *stubCalendarClient) FetchWindow(ctx context.Context, city string, from time.Time, months int) (models.CitySchedule, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(models.CitySchedule, len(s.days))
	for k, v := range s.days {
		out[k] = v
	}
	return out, nil
}

func fullWindow(t *testing.T, start time.Time, n int) models.CitySchedule {
	t.Helper()
	days := models.CitySchedule{}
	for i := 0; i < n; i++ {
		days[models.DateKey(start.AddDate(0, 0, i))] = models.PrayerDay{
			Fajr: "05:32", Sunrise: "07:01", Dhuhr: "13:05",
			Asr: "16:40", Maghrib: "19:55", Isha: "21:20",
		}
	}
	return days
}

// testHandler wires a Handler over a stub client, an in-memory schedule cache,
// and a real SQLite widget store in a temp dir.
func testHandler(t *testing.T, calClient client.CalendarClient) (*Handler, *widget.Bridge) {
	t.Helper()

	store, err := widget.NewStore(filepath.Join(t.TempDir(), "widget.db"))
	if err != nil {
		t.Fatalf("open widget store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	bridge := widget.NewBridge(store, store, widget.NoopBroadcaster{}, logger)
	refresher := refresh.New(calClient, cache.NewInMemoryStore(), bridge, cache.DefaultFreshness, 12, logger)
	return NewHandler(refresher, bridge, nil, logger), bridge
}

func newRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/times/{city}", h.GetTimes).Methods("GET")
	router.HandleFunc("/times/{city}/today", h.GetToday).Methods("GET")
	router.HandleFunc("/next/{city}", h.GetNext).Methods("GET")
	router.HandleFunc("/refresh/{city}", h.PostRefresh).Methods("POST")
	router.HandleFunc("/city", h.GetCity).Methods("GET")
	router.HandleFunc("/city", h.PutCity).Methods("PUT")
	router.HandleFunc("/widgets", h.PostWidgetInstance).Methods("POST")
	router.HandleFunc("/widgets/{id}", h.DeleteWidgetInstance).Methods("DELETE")
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	return router
}

func TestGetTimes_ReturnsWindow(t *testing.T) {
	now := time.Now()
	h, _ := testHandler(t, &stubCalendarClient{days: fullWindow(t, now, 30)})
	router := newRouter(h)

	req := httptest.NewRequest("GET", "/times/Istanbul", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		City string                     `json:"city"`
		Days map[string]models.PrayerDay `json:"days"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.City != "Istanbul" {
		t.Errorf("city = %q, want Istanbul", resp.City)
	}
	if len(resp.Days) != 30 {
		t.Errorf("days = %d, want 30", len(resp.Days))
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestGetTimes_InvalidCity(t *testing.T) {
	h, _ := testHandler(t, &stubCalendarClient{})
	router := newRouter(h)

	req := httptest.NewRequest("GET", "/times/Ista%23nbul", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INVALID_CITY") {
		t.Errorf("body missing INVALID_CITY: %s", w.Body.String())
	}
}

func TestGetTimes_CityNotFound(t *testing.T) {
	h, _ := testHandler(t, &stubCalendarClient{err: client.ErrCityNotFound})
	router := newRouter(h)

	req := httptest.NewRequest("GET", "/times/Atlantis", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "CITY_NOT_FOUND") {
		t.Errorf("body missing CITY_NOT_FOUND: %s", w.Body.String())
	}
}

func TestGetTimes_UpstreamDown(t *testing.T) {
	h, _ := testHandler(t, &stubCalendarClient{err: client.ErrNoData})
	router := newRouter(h)

	req := httptest.NewRequest("GET", "/times/Istanbul", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestGetToday_ReturnsSingleDay(t *testing.T) {
	now := time.Now()
	h, _ := testHandler(t, &stubCalendarClient{days: fullWindow(t, now, 30)})
	router := newRouter(h)

	req := httptest.NewRequest("GET", "/times/Istanbul/today", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Date    string           `json:"date"`
		Timings models.PrayerDay `json:"timings"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Date != models.DateKey(now) {
		t.Errorf("date = %q, want %q", resp.Date, models.DateKey(now))
	}
	if resp.Timings.Fajr != "05:32" {
		t.Errorf("fajr = %q, want 05:32", resp.Timings.Fajr)
	}
}

func TestGetNext_ComputesUpcomingPrayer(t *testing.T) {
	now := time.Now()
	h, _ := testHandler(t, &stubCalendarClient{days: fullWindow(t, now, 30)})
	router := newRouter(h)

	req := httptest.NewRequest("GET", "/next/Istanbul", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Name      string `json:"name"`
		Time      string `json:"time"`
		Remaining string `json:"remaining"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Name == "" || resp.Time == "" || resp.Remaining == "" {
		t.Errorf("incomplete next-prayer response: %+v", resp)
	}
}

func TestPostRefresh_ForcesFetch(t *testing.T) {
	now := time.Now()
	h, _ := testHandler(t, &stubCalendarClient{days: fullWindow(t, now, 45)})
	router := newRouter(h)

	req := httptest.NewRequest("POST", "/refresh/Istanbul", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Days != 45 {
		t.Errorf("days = %d, want 45", resp.Days)
	}
}

func TestCitySelection_RoundTrip(t *testing.T) {
	now := time.Now()
	h, _ := testHandler(t, &stubCalendarClient{days: fullWindow(t, now, 30)})
	router := newRouter(h)

	// No selection yet.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/city", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET before PUT: status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/city", strings.NewReader(`{"city":"İzmir"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /city: status = %d, body: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/city", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET after PUT: status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["city"] != "İzmir" {
		t.Errorf("city = %q, want İzmir", resp["city"])
	}
}

func TestPutCity_InvalidBody(t *testing.T) {
	h, _ := testHandler(t, &stubCalendarClient{})
	router := newRouter(h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/city", strings.NewReader("not json")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWidgetInstances_AddAndRemove(t *testing.T) {
	h, bridge := testHandler(t, &stubCalendarClient{})
	router := newRouter(h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/widgets", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /widgets: status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	id := resp["id"]
	if id == "" {
		t.Fatal("empty instance id")
	}
	if len(bridge.Instances()) != 1 {
		t.Errorf("instances = %d, want 1", len(bridge.Instances()))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/widgets/"+id, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /widgets/%s: status = %d", id, w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/widgets/"+id, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("second DELETE: status = %d, want 404", w.Code)
	}
}

func TestGetHealth_Healthy(t *testing.T) {
	h, _ := testHandler(t, &stubCalendarClient{})
	router := newRouter(h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Service != "prayer-widget-service" {
		t.Errorf("service = %q", resp.Service)
	}
}

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tkaraca/prayer-widget-service/internal/lifecycle"
)

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	now := time.Now()
	h, _ := testHandler(t, &stubCalendarClient{days: fullWindow(t, now, 30)})
	router := newRouter(h)

	req := httptest.NewRequest("GET", "/times/Istanbul", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

func TestRateLimitMiddleware_DeniesWhenExhausted(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(RateLimitMiddleware(limiter))
	router.HandleFunc("/times/{city}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// First request consumes the single token.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/times/Istanbul", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/times/Istanbul", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil))
	router.HandleFunc("/times/{city}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/times/Istanbul", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestTimeoutMiddleware_CancelsSlowHandler(t *testing.T) {
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(20 * time.Millisecond))
	done := make(chan error, 1)
	router.HandleFunc("/times/{city}", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		done <- r.Context().Err()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/times/Istanbul", nil))

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected context error after timeout")
		}
	case <-time.After(time.Second):
		t.Fatal("handler never observed the deadline")
	}
}

func TestGetHealth_ShuttingDown(t *testing.T) {
	h, _ := testHandler(t, &stubCalendarClient{days: fullWindow(t, time.Now(), 30)})
	router := newRouter(h)

	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestGetRoute_Patterns(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/city", "/city"},
		{"/times/Istanbul", "/times/{city}"},
		{"/times/Istanbul/today", "/times/{city}/today"},
		{"/next/Ankara", "/next/{city}"},
		{"/refresh/Bursa", "/refresh/{city}"},
		{"/widgets", "/widgets"},
		{"/widgets/abc-123", "/widgets/{id}"},
		{"/unknown", "/unknown"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", tc.path, nil)
		if got := getRoute(req); got != tc.want {
			t.Errorf("getRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tkaraca/prayer-widget-service/internal/cache"
	"github.com/tkaraca/prayer-widget-service/internal/circuitbreaker"
	"github.com/tkaraca/prayer-widget-service/internal/client"
	"github.com/tkaraca/prayer-widget-service/internal/config"
	httphandler "github.com/tkaraca/prayer-widget-service/internal/http"
	"github.com/tkaraca/prayer-widget-service/internal/lifecycle"
	"github.com/tkaraca/prayer-widget-service/internal/models"
	"github.com/tkaraca/prayer-widget-service/internal/observability"
	"github.com/tkaraca/prayer-widget-service/internal/refresh"
	"github.com/tkaraca/prayer-widget-service/internal/schedule"
	"github.com/tkaraca/prayer-widget-service/internal/widget"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	calClient, err := client.NewAladhanClientWithRetry(
		cfg.CalendarAPIURL,
		cfg.CalendarCountry,
		cfg.CalendarMethod,
		cfg.CalendarTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("calendar client", zap.Error(err))
	}

	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        "calendar_api",
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition("calendar_api", from.String(), to.String())
			observability.CircuitBreakerState.WithLabelValues("calendar_api").Set(float64(to))
		},
	})
	calClient.SetCircuitBreaker(cb)
	observability.CircuitBreakerState.WithLabelValues("calendar_api").Set(0)

	var scheduleCache cache.Store
	var memcacheCloser *cache.MemcachedStore
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		scheduleCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "in_memory":
		scheduleCache = cache.NewInMemoryStore()
		logger.Info("cache backend: in_memory")
	default:
		fs, err := cache.NewFileStore(cfg.CacheDir)
		if err != nil {
			logger.Fatal("file cache", zap.Error(err))
		}
		scheduleCache = fs
		logger.Info("cache backend: file", zap.String("dir", cfg.CacheDir))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.WidgetDBPath), 0o755); err != nil {
		logger.Fatal("widget db dir", zap.Error(err))
	}
	widgetStore, err := widget.NewStore(cfg.WidgetDBPath)
	if err != nil {
		logger.Fatal("widget store", zap.Error(err))
	}

	var register widget.Register = widgetStore
	var redisCloser *widget.RedisRegister
	if cfg.RegisterBackend == "redis" {
		rr := widget.NewRedisRegister(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		redisCloser = rr
		register = rr
		logger.Info("widget register backend: redis", zap.String("addr", cfg.RedisAddr))
	} else {
		logger.Info("widget register backend: sqlite", zap.String("path", cfg.WidgetDBPath))
	}

	var broadcaster widget.Broadcaster = widget.NoopBroadcaster{}
	var mqttCloser *widget.MQTTBroadcaster
	if cfg.MQTTBroker != "" {
		mb, err := widget.NewMQTTBroadcaster(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, logger)
		if err != nil {
			logger.Fatal("mqtt broadcaster", zap.Error(err))
		}
		mqttCloser = mb
		broadcaster = mb
	}

	bridge := widget.NewBridge(widgetStore, register, broadcaster, logger)

	jobScheduler := widget.NewRefreshScheduler(widgetStore, register, bridge, cfg.WidgetJobInterval, logger)
	bridge.OnFirstInstance = func() {
		if err := jobScheduler.Start(); err != nil {
			logger.Error("widget job start", zap.Error(err))
		}
	}
	bridge.OnLastRemoved = jobScheduler.Stop

	freshness := cache.Freshness{WindowDays: cfg.FreshnessWindowDays, MinDays: cfg.FreshnessMinDays}
	refresher := refresh.New(calClient, scheduleCache, bridge, freshness, cfg.WindowMonths, logger)

	observability.SetTrackedCities(cfg.TrackedCities)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	go func() {
		if err := refresher.RunPeriodic(rootCtx, cfg.TrackedCities, cfg.RefreshInterval); err != nil && err != context.Canceled {
			logger.Error("periodic refresh stopped", zap.Error(err))
		}
	}()

	// Resolve the selected city; first boot falls back to the configured default.
	selectedCity, found, err := register.Get(widget.KeySelectedCity)
	if err != nil || !found || selectedCity == "" {
		selectedCity = cfg.DefaultCity
		if err := register.Set(widget.KeySelectedCity, selectedCity); err != nil {
			logger.Warn("persist default city", zap.Error(err))
		}
	}

	countdown := &schedule.Countdown{
		Logger: logger,
		OnChange: func(next schedule.Next, remaining time.Duration) {
			err := bridge.PushNextPrayer(models.NextPrayerSnapshot{
				Name:      next.Name,
				Time:      next.Time,
				Remaining: schedule.FormatCountdown(remaining, false),
			})
			if err != nil {
				logger.Warn("push next prayer", zap.Error(err))
			}
		},
	}
	unavailable := false
	countdown.OnUnavailable = func() {
		if unavailable {
			return
		}
		unavailable = true
		if err := bridge.PushPlaceholder(); err != nil {
			logger.Warn("push placeholder", zap.Error(err))
		}
	}
	countdown.OnTick = func(next schedule.Next, remaining string) {
		unavailable = false
	}
	go func() {
		bootCtx, cancel := context.WithTimeout(rootCtx, 2*time.Minute)
		days, err := refresher.EnsureFresh(bootCtx, selectedCity, false)
		cancel()
		if err != nil {
			logger.Warn("initial schedule load failed", zap.String("city", selectedCity), zap.Error(err))
		} else {
			countdown.SetWindow(days)
		}
		if err := countdown.Run(rootCtx); err != nil && err != context.Canceled {
			logger.Error("countdown stopped", zap.Error(err))
		}
	}()

	healthConfig := &httphandler.HealthConfig{
		StaleAfter: cfg.StaleAfter,
		StartTime:  time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	if redisCloser != nil {
		healthConfig.RegisterPing = redisCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(refresher, bridge, healthConfig, logger)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/times/{city}/today", handler.GetToday).Methods("GET")
	api.HandleFunc("/times/{city}", handler.GetTimes).Methods("GET")
	api.HandleFunc("/next/{city}", handler.GetNext).Methods("GET")
	api.HandleFunc("/refresh/{city}", handler.PostRefresh).Methods("POST")
	api.HandleFunc("/city", handler.GetCity).Methods("GET")
	api.HandleFunc("/city", handler.PutCity).Methods("PUT")
	api.HandleFunc("/widgets", handler.PostWidgetInstance).Methods("POST")
	api.HandleFunc("/widgets/{id}", handler.DeleteWidgetInstance).Methods("DELETE")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	rootCancel()
	jobScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	if inFlight > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
		waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
		waitCancel()
	}

	if err := widgetStore.Close(); err != nil {
		logger.Error("widget store close", zap.Error(err))
	}
	if redisCloser != nil {
		if err := redisCloser.Close(); err != nil {
			logger.Error("redis close", zap.Error(err))
		}
	}
	if mqttCloser != nil {
		mqttCloser.Close()
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

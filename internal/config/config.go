package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	CalendarAPIURL  string
	CalendarCountry string
	CalendarMethod  int
	CalendarTimeout time.Duration

	RequestTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	CacheBackend string // "file", "in_memory" or "memcached"
	CacheDir     string
	CacheTTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	FreshnessWindowDays int
	FreshnessMinDays    int
	WindowMonths        int
	RefreshInterval     time.Duration
	StaleAfter          time.Duration

	DefaultCity   string
	TrackedCities []string

	WidgetDBPath      string
	WidgetJobInterval time.Duration
	RegisterBackend   string // "sqlite" or "redis"
	RedisAddr         string
	RedisUsername     string
	RedisPassword     string

	MQTTBroker   string // empty disables repaint broadcasts
	MQTTTopic    string
	MQTTClientID string

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	CalendarAPI struct {
		URL     string `yaml:"url"`
		Country string `yaml:"country"`
		Method  int    `yaml:"method"`
		Timeout string `yaml:"timeout"`
	} `yaml:"calendar_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int    `yaml:"breaker_success_threshold"`
		BreakerTimeout          string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Dir       string `yaml:"dir"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Schedule struct {
		FreshnessWindowDays int      `yaml:"freshness_window_days"`
		FreshnessMinDays    int      `yaml:"freshness_min_days"`
		WindowMonths        int      `yaml:"window_months"`
		RefreshInterval     string   `yaml:"refresh_interval"`
		StaleAfter          string   `yaml:"stale_after"`
		DefaultCity         string   `yaml:"default_city"`
		TrackedCities       []string `yaml:"tracked_cities"`
	} `yaml:"schedule"`

	Widget struct {
		DBPath          string `yaml:"db_path"`
		JobInterval     string `yaml:"job_interval"`
		RegisterBackend string `yaml:"register_backend"`
		Redis           struct {
			Addr     string `yaml:"addr"`
			Username string `yaml:"username"`
		} `yaml:"redis"`
		MQTT struct {
			Broker   string `yaml:"broker"`
			Topic    string `yaml:"topic"`
			ClientID string `yaml:"client_id"`
		} `yaml:"mqtt"`
	} `yaml:"widget"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), with a
// .env file and process env overriding selected values. Call from project root.
func Load() (*Config, error) {
	// Optional; real env always wins over .env entries.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.CalendarAPIURL = strings.TrimSpace(os.Getenv("CALENDAR_API_URL"))
	if cfg.CalendarAPIURL == "" {
		cfg.CalendarAPIURL = fc.CalendarAPI.URL
	}
	if cfg.CalendarAPIURL == "" {
		cfg.CalendarAPIURL = "https://api.aladhan.com/v1/calendarByCity"
	}
	cfg.CalendarCountry = fc.CalendarAPI.Country
	if cfg.CalendarCountry == "" {
		cfg.CalendarCountry = "Turkey"
	}
	cfg.CalendarMethod = fc.CalendarAPI.Method
	if cfg.CalendarMethod <= 0 {
		// 13 = Diyanet İşleri Başkanlığı.
		cfg.CalendarMethod = 13
	}
	cfg.CalendarTimeout = parseDuration(fc.CalendarAPI.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.BreakerSuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 2
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "file"
	}
	cfg.CacheDir = fc.Cache.Dir
	if cfg.CacheDir == "" {
		cfg.CacheDir = "data"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*24*time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.FreshnessWindowDays = fc.Schedule.FreshnessWindowDays
	if cfg.FreshnessWindowDays <= 0 {
		cfg.FreshnessWindowDays = 30
	}
	cfg.FreshnessMinDays = fc.Schedule.FreshnessMinDays
	if cfg.FreshnessMinDays <= 0 {
		cfg.FreshnessMinDays = 20
	}
	cfg.WindowMonths = fc.Schedule.WindowMonths
	if cfg.WindowMonths <= 0 {
		cfg.WindowMonths = 12
	}
	cfg.RefreshInterval = parseDuration(fc.Schedule.RefreshInterval, 6*time.Hour)
	cfg.StaleAfter = parseDuration(fc.Schedule.StaleAfter, 48*time.Hour)
	cfg.DefaultCity = fc.Schedule.DefaultCity
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "Istanbul"
	}
	cfg.TrackedCities = fc.Schedule.TrackedCities
	if len(cfg.TrackedCities) == 0 {
		cfg.TrackedCities = []string{cfg.DefaultCity}
	}

	cfg.WidgetDBPath = fc.Widget.DBPath
	if cfg.WidgetDBPath == "" {
		cfg.WidgetDBPath = filepath.Join(cfg.CacheDir, "widget.db")
	}
	cfg.WidgetJobInterval = parseDuration(fc.Widget.JobInterval, time.Minute)
	cfg.RegisterBackend = strings.TrimSpace(strings.ToLower(os.Getenv("REGISTER_BACKEND")))
	if cfg.RegisterBackend == "" {
		cfg.RegisterBackend = strings.TrimSpace(strings.ToLower(fc.Widget.RegisterBackend))
	}
	if cfg.RegisterBackend == "" {
		cfg.RegisterBackend = "sqlite"
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Widget.Redis.Addr)
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisUsername = fc.Widget.Redis.Username
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.MQTTBroker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if cfg.MQTTBroker == "" {
		cfg.MQTTBroker = strings.TrimSpace(fc.Widget.MQTT.Broker)
	}
	cfg.MQTTTopic = fc.Widget.MQTT.Topic
	if cfg.MQTTTopic == "" {
		cfg.MQTTTopic = "widgets/prayer/repaint"
	}
	cfg.MQTTClientID = fc.Widget.MQTT.ClientID
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "prayer-widget-service"
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Ensures timeouts are coherent and backend selections are known values.
// Auto-adjusts RequestTimeout to exceed the upstream timeout when needed.
func validate(cfg *Config) error {
	if cfg.CalendarTimeout <= 0 {
		return fmt.Errorf("calendar_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.CalendarTimeout {
		cfg.RequestTimeout = cfg.CalendarTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "file", "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be file, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.RegisterBackend {
	case "sqlite", "redis":
		// valid
	default:
		return fmt.Errorf("widget.register_backend must be sqlite or redis, got %q", cfg.RegisterBackend)
	}
	if cfg.FreshnessMinDays > cfg.FreshnessWindowDays {
		return fmt.Errorf("schedule.freshness_min_days (%d) cannot exceed freshness_window_days (%d)",
			cfg.FreshnessMinDays, cfg.FreshnessWindowDays)
	}
	return nil
}

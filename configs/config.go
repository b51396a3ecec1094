package configs

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
)

const (
	KVBackendRedis  = "redis"
	KVBackendMemory = "memory"

	FallbackNone   = "none"
	FallbackNoData = "no_data"
)

type Config struct {
	Server       ServerConfig
	Redis        RedisConfig
	KV           KVConfig
	Log          LogConfig
	Cache        CacheConfig
	Breaker      BreakerConfig
	RateLimit    RateLimitConfig
	ScriptureAPI ScriptureAPIConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	TLSCertFile     string
	TLSKeyFile      string
	AllowedOrigins  []string
	Environment     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KVConfig selects the backing key/value store shared by the rate limiter
// and the second cache tier.
type KVConfig struct {
	Backend string
	Prefix  string
	// SharedCache enables the KV store as a second tier behind the in-process cache.
	SharedCache bool
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type CacheConfig struct {
	MaxSize         int
	DefaultTTL      time.Duration
	SweepInterval   time.Duration
	SingleFlight    bool
	Fallback        string
	WarmOnStart     bool
	WarmConcurrency int
	// TTLs holds CACHE_TTL_<CATEGORY> overrides.
	TTLs       map[cacheaside.Category]time.Duration
	PolicyFile string
}

type BreakerConfig struct {
	FailureThreshold  int
	VolumeThreshold   int
	RecoveryTimeout   time.Duration
	MonitoringPeriod  time.Duration
	ExpectedLatency   time.Duration
	SlowFailureRatio  float64
	LatencyMultiplier float64
}

type ClassLimit struct {
	MaxRequests int
	Window      time.Duration
}

type RateLimitConfig struct {
	CountMode string
	KeyPrefix string
	Classes   map[ratelimit.Class]ClassLimit
}

type ScriptureAPIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

var rateLimitClasses = []ratelimit.Class{ratelimit.ClassGeneral, ratelimit.ClassInvalidation, ratelimit.ClassWarming}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLSCertFile:     getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:      getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins:  getListEnv("SERVER_ALLOWED_ORIGINS"),
			Environment:     getEnv("SERVER_ENVIRONMENT", "development"),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KV: KVConfig{
			Backend:     strings.ToLower(getEnv("KV_BACKEND", KVBackendMemory)),
			Prefix:      getEnv("KV_PREFIX", "scripture-cache"),
			SharedCache: getBoolEnv("KV_SHARED_CACHE", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Cache: CacheConfig{
			MaxSize:         getIntEnv("CACHE_MAX_SIZE", 1000),
			DefaultTTL:      getDurationEnv("CACHE_DEFAULT_TTL", 5*time.Minute),
			SweepInterval:   getDurationEnv("CACHE_SWEEP_INTERVAL", time.Minute),
			SingleFlight:    getBoolEnv("CACHE_SINGLE_FLIGHT", true),
			Fallback:        strings.ToLower(getEnv("CACHE_FALLBACK", FallbackNone)),
			WarmOnStart:     getBoolEnv("CACHE_WARM_ON_START", false),
			WarmConcurrency: getIntEnv("CACHE_WARM_CONCURRENCY", 4),
			TTLs:            categoryTTLs(),
			PolicyFile:      getEnv("CACHE_POLICY_FILE", ""),
		},
		Breaker: BreakerConfig{
			FailureThreshold:  getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),
			VolumeThreshold:   getIntEnv("BREAKER_VOLUME_THRESHOLD", 10),
			RecoveryTimeout:   getDurationEnv("BREAKER_RECOVERY_TIMEOUT", 60*time.Second),
			MonitoringPeriod:  getDurationEnv("BREAKER_MONITORING_PERIOD", 2*time.Minute),
			ExpectedLatency:   getDurationEnv("BREAKER_EXPECTED_LATENCY", 500*time.Millisecond),
			SlowFailureRatio:  getFloatEnv("BREAKER_SLOW_FAILURE_RATIO", 0.5),
			LatencyMultiplier: getFloatEnv("BREAKER_LATENCY_MULTIPLIER", 2),
		},
		RateLimit: RateLimitConfig{
			CountMode: strings.ToLower(getEnv("RATE_LIMIT_COUNT_MODE", string(ratelimit.CountAll))),
			KeyPrefix: getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
			Classes:   classLimits(),
		},
		ScriptureAPI: ScriptureAPIConfig{
			BaseURL: getEnv("SCRIPTURE_API_BASE_URL", ""),
			APIKey:  getEnv("SCRIPTURE_API_KEY", ""),
			Timeout: getDurationEnv("SCRIPTURE_API_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// categoryTTLs reads CACHE_TTL_<CATEGORY> for every known category.
func categoryTTLs() map[cacheaside.Category]time.Duration {
	out := make(map[cacheaside.Category]time.Duration)
	for cat := range cacheaside.DefaultTTLs() {
		if ttl := getDurationEnv("CACHE_TTL_"+strings.ToUpper(string(cat)), 0); ttl > 0 {
			out[cat] = ttl
		}
	}
	return out
}

// classLimits reads RATE_LIMIT_<CLASS>_MAX and RATE_LIMIT_<CLASS>_WINDOW.
// Zero values are filled in by the limiter defaults.
func classLimits() map[ratelimit.Class]ClassLimit {
	out := make(map[ratelimit.Class]ClassLimit, len(rateLimitClasses))
	for _, class := range rateLimitClasses {
		prefix := "RATE_LIMIT_" + strings.ToUpper(string(class))
		out[class] = ClassLimit{
			MaxRequests: getIntEnv(prefix+"_MAX", 0),
			Window:      getDurationEnv(prefix+"_WINDOW", 0),
		}
	}
	return out
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.KV),
		validation.Field(&c.Log),
		validation.Field(&c.Cache),
		validation.Field(&c.Breaker),
		validation.Field(&c.RateLimit),
		validation.Field(&c.ScriptureAPI),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.By(isPort)),
		validation.Field(&s.ShutdownTimeout, validation.Min(time.Second)),
	)
}

func (k KVConfig) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.Backend, validation.Required, validation.In(KVBackendRedis, KVBackendMemory)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("panic", "fatal", "error", "warn", "warning", "info", "debug", "trace")),
		validation.Field(&l.Format, validation.In("json", "text")),
	)
}

func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Fallback, validation.In(FallbackNone, FallbackNoData)),
		validation.Field(&c.WarmConcurrency, validation.Min(1)),
	)
}

func (b BreakerConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&b.VolumeThreshold, validation.Required, validation.Min(1)),
		validation.Field(&b.RecoveryTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&b.MonitoringPeriod, validation.Min(time.Duration(0))),
		validation.Field(&b.SlowFailureRatio, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&b.LatencyMultiplier, validation.Min(1.0)),
	)
}

func (r RateLimitConfig) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.CountMode, validation.Required, validation.By(func(v interface{}) error {
			if !ratelimit.CountMode(v.(string)).Valid() {
				return fmt.Errorf("must be one of all, successful, failed")
			}
			return nil
		})),
		validation.Field(&r.KeyPrefix, validation.Required),
	); err != nil {
		return err
	}
	for class, l := range r.Classes {
		if l.MaxRequests < 0 || l.Window < 0 {
			return fmt.Errorf("rate limit %s: max and window must not be negative", class)
		}
	}
	return nil
}

func (s ScriptureAPIConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.BaseURL, validation.Required, validation.By(isHTTPURL)),
		validation.Field(&s.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

func isPort(v interface{}) error {
	n, err := strconv.Atoi(v.(string))
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("must be a valid port")
	}
	return nil
}

func isHTTPURL(v interface{}) error {
	u, err := url.Parse(v.(string))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

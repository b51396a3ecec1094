package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/scripture-cache/configs"
	"github.com/avatarctic/scripture-cache/internal/application/services"
	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/health"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/memstore"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/monitoring"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/redis"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/repositories"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/scriptureapi"
)

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := newLogger(cfg.Log)
	logger.Info("Starting scripture cache...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitoring.New(prometheus.DefaultRegisterer, logger)
	hcSlice := []ports.HealthChecker{}

	// Backing key/value store for rate-limit windows and the optional shared tier
	var kv ports.KVStore
	switch cfg.KV.Backend {
	case config.KVBackendRedis:
		redisClient, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis:", err)
		}
		defer redisClient.Close()
		logger.Info("Connected to Redis successfully")

		kv = redis.NewStore(redisClient, redis.StoreOptions{Prefix: cfg.KV.Prefix, Logger: logger})
		hcSlice = append(hcSlice, health.NewRedisHealthChecker(redisClient))
	default:
		kvStore := cache.New(cache.Options[[]byte]{MaxSize: 10 * cfg.Cache.MaxSize, SweepInterval: cfg.Cache.SweepInterval})
		defer kvStore.Stop()
		mem := memstore.New(kvStore)
		if err := monitoring.RegisterStore(prometheus.DefaultRegisterer, "kv", mem.Stats); err != nil {
			logger.WithError(err).Warn("Failed to register kv store metrics")
		}
		kv = mem
		logger.Info("Using in-process key/value store")
	}

	// Circuit breaker around the upstream scripture provider
	breakerConfig := breaker.Config{
		Name:              "scripture-api",
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		VolumeThreshold:   cfg.Breaker.VolumeThreshold,
		RecoveryTimeout:   cfg.Breaker.RecoveryTimeout,
		MonitoringPeriod:  cfg.Breaker.MonitoringPeriod,
		ExpectedLatency:   cfg.Breaker.ExpectedLatency,
		SlowFailureRatio:  cfg.Breaker.SlowFailureRatio,
		LatencyMultiplier: cfg.Breaker.LatencyMultiplier,
	}
	if err := breakerConfig.Validate(); err != nil {
		logger.Fatal("Invalid circuit breaker configuration:", err)
	}
	upstreamBreaker := breaker.New(breakerConfig, breaker.WithLogger(logger))
	defer upstreamBreaker.Close()
	breakers := breaker.NewRegistry()
	if err := breakers.Register(upstreamBreaker); err != nil {
		logger.Fatal("Failed to register circuit breaker:", err)
	}
	metrics.WatchBreaker(ctx, upstreamBreaker)

	// Cache policy: defaults, then CACHE_TTL_* overrides, then the policy file
	policy := cacheaside.NewPolicy(cfg.Cache.TTLs)
	var seeds []cacheaside.Query
	if cfg.Cache.PolicyFile != "" {
		p, err := config.LoadPolicyFile(cfg.Cache.PolicyFile)
		if err != nil {
			logger.Fatal("Failed to load cache policy:", err)
		}
		policy.Apply(p.TTLs)
		seeds = p.Seeds
	}

	store := cache.New(cache.Options[any]{
		MaxSize:       cfg.Cache.MaxSize,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer store.Stop()
	if err := monitoring.RegisterStore(prometheus.DefaultRegisterer, "scripture", store.Stats); err != nil {
		logger.WithError(err).Warn("Failed to register cache store metrics")
	}

	fallback := cacheaside.FallbackNone
	if cfg.Cache.Fallback == config.FallbackNoData {
		fallback = cacheaside.FallbackNoData
	}
	provider := cacheaside.New(cacheaside.Options{
		Store:           store,
		Breaker:         upstreamBreaker,
		Policy:          policy,
		Fallback:        fallback,
		SingleFlight:    cfg.Cache.SingleFlight,
		Seeds:           seeds,
		WarmConcurrency: cfg.Cache.WarmConcurrency,
		Recorder:        metrics,
		Logger:          logger,
	})

	if cfg.Cache.PolicyFile != "" {
		err := config.WatchPolicyFile(ctx, cfg.Cache.PolicyFile, logger, func(p *config.CachePolicy) {
			policy.Apply(p.TTLs)
			provider.SetSeeds(p.Seeds)
		})
		if err != nil {
			logger.WithError(err).Warn("Cache policy hot reload disabled")
		}
	}

	// Upstream provider decorated with cache-aside reads
	upstream := scriptureapi.NewClient(scriptureapi.Options{
		BaseURL: cfg.ScriptureAPI.BaseURL,
		Timeout: cfg.ScriptureAPI.Timeout,
		APIKey:  cfg.ScriptureAPI.APIKey,
	})
	var shared ports.KVStore
	if cfg.KV.SharedCache {
		shared = kv
	}
	scriptureRepo := repositories.NewCachingScriptureRepository(upstream, provider, shared)

	// One limiter per operation class, sharing the window repository
	windowRepo := repositories.NewRateLimitKVRepository(kv)
	limiters := make(map[ratelimit.Class]ports.RateLimiterService, len(cfg.RateLimit.Classes))
	for class, l := range cfg.RateLimit.Classes {
		rateLimiterConfig := &services.RateLimiterConfig{
			Class:       class,
			MaxRequests: l.MaxRequests,
			Window:      l.Window,
			CountMode:   ratelimit.CountMode(cfg.RateLimit.CountMode),
			KeyPrefix:   cfg.RateLimit.KeyPrefix,
		}
		limiters[class] = services.NewRateLimiterService(windowRepo, rateLimiterConfig, logger)
	}

	hcSlice = append(hcSlice, health.BreakerCheckers(breakers)...)

	if cfg.Cache.WarmOnStart {
		go func() {
			report := provider.WarmCache(ctx, nil)
			logger.WithFields(logrus.Fields{
				"loaded":   report.Loaded,
				"failed":   report.Failed,
				"duration": report.Duration.String(),
			}).Info("Cache warmed")
		}()
	}

	// Create server configuration
	serverConfig := &httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Environment:    cfg.Server.Environment,
	}

	deps := httpserver.ServerDeps{
		Scripture:      scriptureRepo,
		Cache:          provider,
		Breakers:       breakers,
		RateLimiters:   limiters,
		ClientKey:      services.ResolveClientKey,
		Decisions:      metrics,
		HealthCheckers: hcSlice,
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

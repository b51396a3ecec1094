package httpserver

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/scripture-cache/internal/application/services"
	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
	customMiddleware "github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
}

// ScriptureReader is the cached read surface behind the public API.
type ScriptureReader interface {
	TranslationsResult(ctx context.Context) (cacheaside.Result[[]scripture.Translation], error)
	BooksResult(ctx context.Context, translation string) (cacheaside.Result[[]scripture.Book], error)
	ChapterResult(ctx context.Context, translation, book string, chapter int) (cacheaside.Result[*scripture.Chapter], error)
	VerseResult(ctx context.Context, translation string, ref scripture.VerseRef) (cacheaside.Result[*scripture.Verse], error)
	SearchResult(ctx context.Context, q scripture.SearchQuery) (cacheaside.Result[*scripture.SearchResult], error)
	CrossRefResult(ctx context.Context, ref scripture.VerseRef) (cacheaside.Result[*scripture.CrossReference], error)
	ParallelResult(ctx context.Context, translations []string, ref scripture.VerseRef) (cacheaside.Result[*scripture.ParallelVerse], error)
	// Invalidate drops a key or pattern ("" for everything) from every cache tier.
	Invalidate(ctx context.Context, keyOrPattern string) (int, error)
}

type ServerDeps struct {
	Scripture      ScriptureReader
	Cache          *cacheaside.Provider
	Breakers       *breaker.Registry
	RateLimiters   map[ratelimit.Class]ports.RateLimiterService
	ClientKey      customMiddleware.KeyFunc
	Decisions      customMiddleware.DecisionObserver
	HealthCheckers []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	scripture      ScriptureReader
	cache          *cacheaside.Provider
	breakers       *breaker.Registry
	limiters       map[ratelimit.Class]ports.RateLimiterService
	clientKey      customMiddleware.KeyFunc
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = newRequestValidator()

	if deps.ClientKey == nil {
		deps.ClientKey = services.ResolveClientKey
	}
	if deps.Breakers == nil {
		deps.Breakers = breaker.NewRegistry()
	}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		scripture:      deps.Scripture,
		cache:          deps.Cache,
		breakers:       deps.Breakers,
		limiters:       deps.RateLimiters,
		clientKey:      deps.ClientKey,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.RateLimiters,
			deps.ClientKey,
			deps.Decisions,
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

package httpserver

import (
	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
)

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	api.Use(s.middleware.RateLimit.Handler(ratelimit.ClassGeneral))
	api.GET("/translations", s.listTranslations)
	api.GET("/translations/:translation/books", s.listBooks)
	api.GET("/translations/:translation/books/:book/chapters/:chapter", s.getChapter)
	api.GET("/translations/:translation/books/:book/chapters/:chapter/verses/:verse", s.getVerse)
	api.GET("/translations/:translation/search", s.search)
	api.GET("/parallel/:book/:chapter/:verse", s.getParallel)
	api.GET("/crossrefs/:book/:chapter/:verse", s.getCrossReferences)

	admin := s.echo.Group("/admin")

	breakers := admin.Group("/breakers")
	breakers.GET("", s.listBreakers)
	breakers.GET("/:name", s.getBreaker)
	breakers.POST("/:name/:action", s.controlBreaker)

	cache := admin.Group("/cache")
	cache.GET("/stats", s.cacheStats)
	cache.GET("/stats/detailed", s.detailedCacheStats)
	cache.GET("/policy", s.getCachePolicy)
	cache.PUT("/policy/:category", s.setCategoryTTL)

	invalidation := s.middleware.RateLimit.Handler(ratelimit.ClassInvalidation)
	cache.POST("/invalidate", s.invalidateCache, invalidation)
	cache.DELETE("/categories/:category", s.clearCategory, invalidation)

	warming := s.middleware.RateLimit.Handler(ratelimit.ClassWarming)
	cache.POST("/warm", s.warmCache, warming)
	cache.POST("/prefetch", s.prefetch, warming)

	limits := admin.Group("/ratelimits")
	limits.GET("/:class", s.getRateLimit)
	limits.DELETE("/:class", s.resetRateLimit)
}

package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
)

type queryRequest struct {
	Category string   `json:"category" validate:"required"`
	Args     []string `json:"args" validate:"dive,required"`
}

type warmRequest struct {
	Queries []queryRequest `json:"queries" validate:"omitempty,dive"`
}

type prefetchRequest struct {
	Queries []queryRequest `json:"queries" validate:"required,min=1,max=500,dive"`
}

type invalidateRequest struct {
	Pattern string `json:"pattern" validate:"required_without=All,max=512"`
	All     bool   `json:"all"`
}

type ttlRequest struct {
	TTL string `json:"ttl" validate:"required"`
}

func (s *Server) toQueries(reqs []queryRequest) ([]cacheaside.Query, error) {
	out := make([]cacheaside.Query, 0, len(reqs))
	for _, r := range reqs {
		cat := cacheaside.Category(r.Category)
		if _, ok := s.cache.Policy().TTL(cat); !ok {
			return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown cache category %q", r.Category))
		}
		out = append(out, cacheaside.Query{Category: cat, Args: r.Args})
	}
	return out, nil
}

func (s *Server) cacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.CacheStats())
}

func (s *Server) detailedCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.DetailedCacheStats())
}

func (s *Server) getCachePolicy(c echo.Context) error {
	ttls := make(map[string]string)
	for cat, ttl := range s.cache.Policy().Snapshot() {
		ttls[string(cat)] = ttl.String()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ttls": ttls})
}

func (s *Server) setCategoryTTL(c echo.Context) error {
	cat := cacheaside.Category(c.Param("category"))
	if _, ok := s.cache.Policy().TTL(cat); !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown cache category %q", cat))
	}
	var req ttlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ttl, err := time.ParseDuration(req.TTL)
	if err != nil || ttl <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ttl must be a positive duration")
	}
	s.cache.Policy().Set(cat, ttl)
	if s.logger != nil {
		s.logger.WithFields(logFields(c)).WithField("category", cat).WithField("ttl", ttl.String()).Info("Cache TTL updated")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"category": cat, "ttl": ttl.String()})
}

func (s *Server) invalidateCache(c echo.Context) error {
	var req invalidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pattern := req.Pattern
	if req.All {
		pattern = ""
	}
	removed, err := s.scripture.Invalidate(c.Request().Context(), pattern)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithFields(logFields(c)).Warn("shared cache invalidation failed")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if s.logger != nil {
		s.logger.WithFields(logFields(c)).WithField("pattern", pattern).WithField("removed", removed).Info("Cache invalidated")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"pattern": pattern, "removed": removed})
}

func (s *Server) clearCategory(c echo.Context) error {
	cat := cacheaside.Category(c.Param("category"))
	if _, ok := s.cache.Policy().TTL(cat); !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown cache category %q", cat))
	}
	removed, err := s.scripture.Invalidate(c.Request().Context(), string(cat)+cacheaside.KeySeparator+"*")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"category": cat, "removed": removed})
}

// warmCache loads the given queries, or the configured seed list when the
// body is empty.
func (s *Server) warmCache(c echo.Context) error {
	var req warmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	queries, err := s.toQueries(req.Queries)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		queries = nil
	}
	report := s.cache.WarmCache(c.Request().Context(), queries)
	return c.JSON(http.StatusOK, report)
}

func (s *Server) prefetch(c echo.Context) error {
	var req prefetchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	queries, err := s.toQueries(req.Queries)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.cache.Prefetch(c.Request().Context(), queries))
}

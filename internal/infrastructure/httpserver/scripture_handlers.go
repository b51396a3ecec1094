package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver/helpers"
	customMiddleware "github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver/middleware"
)

const defaultSearchLimit = 20

type searchRequest struct {
	Translation string `param:"translation" validate:"required"`
	Text        string `query:"q" validate:"required,max=200"`
	Limit       int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

type parallelRequest struct {
	Translations string `query:"translations" validate:"required"`
}

// writeResult renders a cache-aside result. A degraded (fallback) result
// means the provider is unavailable and nothing was cached.
func writeResult[T any](s *Server, c echo.Context, res cacheaside.Result[T], err error) error {
	h := c.Response().Header()
	if err != nil {
		return s.upstreamError(c, err)
	}
	if res.Degraded {
		h.Set(customMiddleware.CacheHeader, "BYPASS")
		h.Set("Retry-After", "1")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scripture provider unavailable")
	}
	if res.Cached {
		h.Set(customMiddleware.CacheHeader, "HIT")
	} else {
		h.Set(customMiddleware.CacheHeader, "MISS")
		h.Set("X-Fetch-Latency-Ms", strconv.FormatInt(res.Latency.Milliseconds(), 10))
	}
	h.Set("X-Cache-Key", res.Key)
	return c.JSON(http.StatusOK, res.Value)
}

func translationParam(c echo.Context) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(c.Param("translation")))
	if t == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "translation is required")
	}
	return t, nil
}

func (s *Server) listTranslations(c echo.Context) error {
	res, err := s.scripture.TranslationsResult(c.Request().Context())
	return writeResult(s, c, res, err)
}

func (s *Server) listBooks(c echo.Context) error {
	translation, err := translationParam(c)
	if err != nil {
		return err
	}
	res, err := s.scripture.BooksResult(c.Request().Context(), translation)
	return writeResult(s, c, res, err)
}

func (s *Server) getChapter(c echo.Context) error {
	translation, err := translationParam(c)
	if err != nil {
		return err
	}
	chapter, err := helpers.PositiveIntParam(c, "chapter")
	if err != nil {
		return err
	}
	book := strings.ToUpper(c.Param("book"))
	res, err := s.scripture.ChapterResult(c.Request().Context(), translation, book, chapter)
	return writeResult(s, c, res, err)
}

func (s *Server) getVerse(c echo.Context) error {
	translation, err := translationParam(c)
	if err != nil {
		return err
	}
	ref, err := helpers.VerseRefFromPath(c)
	if err != nil {
		return err
	}
	res, err := s.scripture.VerseResult(c.Request().Context(), translation, ref)
	return writeResult(s, c, res, err)
}

func (s *Server) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid search parameters")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Limit == 0 {
		req.Limit = defaultSearchLimit
	}
	q := scripture.SearchQuery{Translation: strings.ToUpper(req.Translation), Text: req.Text, Limit: req.Limit}
	res, err := s.scripture.SearchResult(c.Request().Context(), q)
	return writeResult(s, c, res, err)
}

func (s *Server) getParallel(c echo.Context) error {
	var req parallelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid parallel parameters")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	translations := helpers.SplitList(strings.ToUpper(req.Translations))
	if len(translations) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one translation is required")
	}
	ref, err := helpers.VerseRefFromPath(c)
	if err != nil {
		return err
	}
	res, err := s.scripture.ParallelResult(c.Request().Context(), translations, ref)
	return writeResult(s, c, res, err)
}

func (s *Server) getCrossReferences(c echo.Context) error {
	ref, err := helpers.VerseRefFromPath(c)
	if err != nil {
		return err
	}
	res, err := s.scripture.CrossRefResult(c.Request().Context(), ref)
	return writeResult(s, c, res, err)
}

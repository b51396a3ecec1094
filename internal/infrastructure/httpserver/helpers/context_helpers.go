package helpers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
)

const (
	HeaderAPIKey = "X-API-Key"
	HeaderUserID = "X-User-ID"
)

// ClientIdentityFromRequest collects every caller signal the rate limiter can
// key on. The remote address honours echo's IP extractor.
func ClientIdentityFromRequest(c echo.Context) ratelimit.ClientIdentity {
	req := c.Request()
	return ratelimit.ClientIdentity{
		APIKey:        strings.TrimSpace(req.Header.Get(HeaderAPIKey)),
		UserID:        strings.TrimSpace(req.Header.Get(HeaderUserID)),
		RemoteAddress: c.RealIP(),
	}
}

func GetClientKeyFromContext(c echo.Context) (string, error) {
	key, ok := GetClientKeyRaw(c)
	if !ok || key == "" {
		return "", echo.NewHTTPError(http.StatusInternalServerError, "client key not resolved")
	}
	return key, nil
}

// PositiveIntParam parses a path parameter that must be a positive integer.
func PositiveIntParam(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, nil
}

// VerseRefFromPath reads :book, :chapter and :verse.
func VerseRefFromPath(c echo.Context) (scripture.VerseRef, error) {
	chapter, err := PositiveIntParam(c, "chapter")
	if err != nil {
		return scripture.VerseRef{}, err
	}
	verse, err := PositiveIntParam(c, "verse")
	if err != nil {
		return scripture.VerseRef{}, err
	}
	ref := scripture.VerseRef{Book: strings.ToUpper(c.Param("book")), Chapter: chapter, Verse: verse}
	if err := ref.Validate(); err != nil {
		return scripture.VerseRef{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return ref, nil
}

// SplitList splits a comma separated query value, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package scriptureapi is the HTTP client for the upstream scripture provider.
package scriptureapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
)

// ErrNotFound is returned when the provider has no such resource.
var ErrNotFound = scripture.ErrNotFound

// StatusError carries a non-2xx, non-404 provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scripture api: http %d: %s", e.Code, e.Body)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
	// Headers are sent on every request.
	Headers map[string]string
}

type Client struct {
	resty *resty.Client
}

var _ ports.ScriptureRepository = (*Client)(nil)

func NewClient(opts Options) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if len(opts.Headers) > 0 {
		rc.SetHeaders(opts.Headers)
	}
	if k := strings.TrimSpace(opts.APIKey); k != "" {
		rc.SetHeader("X-API-Key", k)
	}
	return &Client{resty: rc}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	req := c.resty.R().SetContext(ctx).SetResult(result)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("scripture api %s: %w", path, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.IsError():
		return &StatusError{Code: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}

func seg(s string) string { return url.PathEscape(s) }

func (c *Client) ListTranslations(ctx context.Context) ([]scripture.Translation, error) {
	var out []scripture.Translation
	if err := c.get(ctx, "/translations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListBooks(ctx context.Context, translation string) ([]scripture.Book, error) {
	var out []scripture.Book
	if err := c.get(ctx, "/translations/"+seg(translation)+"/books", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetChapter(ctx context.Context, translation, book string, chapter int) (*scripture.Chapter, error) {
	var out scripture.Chapter
	path := fmt.Sprintf("/translations/%s/books/%s/chapters/%d", seg(translation), seg(book), chapter)
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetVerse(ctx context.Context, translation string, ref scripture.VerseRef) (*scripture.Verse, error) {
	var out scripture.Verse
	path := fmt.Sprintf("/translations/%s/books/%s/chapters/%d/verses/%d", seg(translation), seg(ref.Book), ref.Chapter, ref.Verse)
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Search(ctx context.Context, q scripture.SearchQuery) (*scripture.SearchResult, error) {
	var out scripture.SearchResult
	params := url.Values{"q": {q.Text}}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if err := c.get(ctx, "/translations/"+seg(q.Translation)+"/search", params, &out); err != nil {
		return nil, err
	}
	out.Query = q
	return &out, nil
}

func (c *Client) GetCrossReferences(ctx context.Context, ref scripture.VerseRef) (*scripture.CrossReference, error) {
	var out scripture.CrossReference
	path := fmt.Sprintf("/crossrefs/%s/%d/%d", seg(ref.Book), ref.Chapter, ref.Verse)
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	out.From = ref
	return &out, nil
}

// GetParallel fetches ref in every translation concurrently. Any failure
// fails the whole lookup.
func (c *Client) GetParallel(ctx context.Context, translations []string, ref scripture.VerseRef) (*scripture.ParallelVerse, error) {
	if len(translations) == 0 {
		return nil, fmt.Errorf("parallel lookup needs at least one translation")
	}
	verses := make([]*scripture.Verse, len(translations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, t := range translations {
		g.Go(func() error {
			v, err := c.GetVerse(gctx, t, ref)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			verses[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := &scripture.ParallelVerse{Ref: ref, Versions: make(map[string]scripture.Verse, len(verses))}
	for i, v := range verses {
		out.Versions[translations[i]] = *v
	}
	return out, nil
}

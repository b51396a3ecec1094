package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
)

// ErrNoData is returned by the port methods when the provider is unavailable
// and the lookup was answered with the no-data fallback.
var ErrNoData = errors.New("no data available while the scripture provider is unavailable")

const (
	refTranslations = "translations"
	refBooks        = "books"
	sharedPrefix    = "scripture:"
)

// Utility helpers
func cacheSetSilently(c ports.KVStore, ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, b, ttl)
}

func cacheGet[T any](c ports.KVStore, ctx context.Context, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// Query builders. Argument order is the canonical key order of each category.

func TranslationsQuery() cacheaside.Query {
	return cacheaside.Query{Category: cacheaside.CategoryReference, Args: []string{refTranslations}}
}

func BooksQuery(translation string) cacheaside.Query {
	return cacheaside.Query{Category: cacheaside.CategoryReference, Args: []string{refBooks, translation}}
}

func ChapterQuery(translation, book string, chapter int) cacheaside.Query {
	return cacheaside.Query{Category: cacheaside.CategoryChapter, Args: []string{translation, book, cacheaside.IntArg(chapter)}}
}

func VerseQuery(translation string, ref scripture.VerseRef) cacheaside.Query {
	return cacheaside.Query{Category: cacheaside.CategoryVerse, Args: append([]string{translation}, refArgs(ref)...)}
}

func SearchQuery(q scripture.SearchQuery) cacheaside.Query {
	return cacheaside.Query{Category: cacheaside.CategorySearch, Args: []string{q.Translation, cacheaside.TextArg(q.Text), cacheaside.IntArg(q.Limit)}}
}

func CrossRefQuery(ref scripture.VerseRef) cacheaside.Query {
	return cacheaside.Query{Category: cacheaside.CategoryCrossRef, Args: refArgs(ref)}
}

func ParallelQuery(translations []string, ref scripture.VerseRef) cacheaside.Query {
	return cacheaside.Query{Category: cacheaside.CategoryParallel, Args: append([]string{cacheaside.SetArg(translations)}, refArgs(ref)...)}
}

func refArgs(ref scripture.VerseRef) []string {
	return []string{ref.Book, cacheaside.IntArg(ref.Chapter), cacheaside.IntArg(ref.Verse)}
}

// CachingScriptureRepository decorates a ScriptureRepository with cache-aside
// reads. The in-process provider is the first tier; an optional shared
// KVStore (e.g. Redis) is consulted before the upstream call.
type CachingScriptureRepository struct {
	inner    ports.ScriptureRepository
	provider *cacheaside.Provider
	shared   ports.KVStore
}

var _ ports.ScriptureRepository = (*CachingScriptureRepository)(nil)

// NewCachingScriptureRepository registers a fetcher for every category on p.
func NewCachingScriptureRepository(inner ports.ScriptureRepository, p *cacheaside.Provider, shared ports.KVStore) *CachingScriptureRepository {
	c := &CachingScriptureRepository{inner: inner, provider: p, shared: shared}
	p.Register(cacheaside.CategoryReference, c.fetchReference)
	p.Register(cacheaside.CategoryChapter, c.fetchChapter)
	p.Register(cacheaside.CategoryVerse, c.fetchVerse)
	p.Register(cacheaside.CategorySearch, c.fetchSearch)
	p.Register(cacheaside.CategoryCrossRef, c.fetchCrossRef)
	p.Register(cacheaside.CategoryParallel, c.fetchParallel)
	return c
}

// Provider returns the cache-aside provider backing this repository.
func (c *CachingScriptureRepository) Provider() *cacheaside.Provider { return c.provider }

// sharedLoad consults the shared tier before calling loader.
func sharedLoad[T any](c *CachingScriptureRepository, ctx context.Context, q cacheaside.Query, loader func() (T, error)) (any, error) {
	key := sharedPrefix + q.Key()
	if v, ok := cacheGet[T](c.shared, ctx, key); ok {
		return *v, nil
	}
	v, err := loader()
	if err != nil {
		return nil, err
	}
	if ttl, ok := c.provider.Policy().TTL(q.Category); ok {
		cacheSetSilently(c.shared, ctx, key, v, ttl)
	}
	return v, nil
}

// Invalidate drops keyOrPattern ("" for everything) from both tiers and
// returns the number of in-process entries removed.
func (c *CachingScriptureRepository) Invalidate(ctx context.Context, keyOrPattern string) (int, error) {
	n := c.provider.ClearCache(keyOrPattern)
	if c.shared == nil {
		return n, nil
	}
	pattern := sharedPrefix + keyOrPattern
	if keyOrPattern == "" {
		pattern = sharedPrefix + "*"
	}
	if _, err := c.shared.Delete(ctx, pattern); err != nil {
		return n, fmt.Errorf("invalidate shared cache: %w", err)
	}
	return n, nil
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric argument %q: %w", a, err)
		}
		out[i] = n
	}
	return out, nil
}

func parseRef(args []string) (scripture.VerseRef, error) {
	if len(args) != 3 {
		return scripture.VerseRef{}, fmt.Errorf("verse reference needs book, chapter and verse, got %d args", len(args))
	}
	nums, err := parseInts(args[1:])
	if err != nil {
		return scripture.VerseRef{}, err
	}
	return scripture.VerseRef{Book: args[0], Chapter: nums[0], Verse: nums[1]}, nil
}

func argCount(q cacheaside.Query, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s query needs %d args, got %d", q.Category, n, len(args))
	}
	return nil
}

func (c *CachingScriptureRepository) fetchReference(ctx context.Context, args []string) (any, error) {
	q := cacheaside.Query{Category: cacheaside.CategoryReference, Args: args}
	switch {
	case len(args) == 1 && args[0] == refTranslations:
		return sharedLoad(c, ctx, q, func() ([]scripture.Translation, error) { return c.inner.ListTranslations(ctx) })
	case len(args) == 2 && args[0] == refBooks:
		return sharedLoad(c, ctx, q, func() ([]scripture.Book, error) { return c.inner.ListBooks(ctx, args[1]) })
	default:
		return nil, fmt.Errorf("unsupported reference query %v", args)
	}
}

func (c *CachingScriptureRepository) fetchChapter(ctx context.Context, args []string) (any, error) {
	q := cacheaside.Query{Category: cacheaside.CategoryChapter, Args: args}
	if err := argCount(q, args, 3); err != nil {
		return nil, err
	}
	nums, err := parseInts(args[2:])
	if err != nil {
		return nil, err
	}
	return sharedLoad(c, ctx, q, func() (*scripture.Chapter, error) { return c.inner.GetChapter(ctx, args[0], args[1], nums[0]) })
}

func (c *CachingScriptureRepository) fetchVerse(ctx context.Context, args []string) (any, error) {
	q := cacheaside.Query{Category: cacheaside.CategoryVerse, Args: args}
	if err := argCount(q, args, 4); err != nil {
		return nil, err
	}
	ref, err := parseRef(args[1:])
	if err != nil {
		return nil, err
	}
	return sharedLoad(c, ctx, q, func() (*scripture.Verse, error) { return c.inner.GetVerse(ctx, args[0], ref) })
}

func (c *CachingScriptureRepository) fetchSearch(ctx context.Context, args []string) (any, error) {
	q := cacheaside.Query{Category: cacheaside.CategorySearch, Args: args}
	if err := argCount(q, args, 3); err != nil {
		return nil, err
	}
	nums, err := parseInts(args[2:])
	if err != nil {
		return nil, err
	}
	sq := scripture.SearchQuery{Translation: args[0], Text: args[1], Limit: nums[0]}
	return sharedLoad(c, ctx, q, func() (*scripture.SearchResult, error) { return c.inner.Search(ctx, sq) })
}

func (c *CachingScriptureRepository) fetchCrossRef(ctx context.Context, args []string) (any, error) {
	q := cacheaside.Query{Category: cacheaside.CategoryCrossRef, Args: args}
	ref, err := parseRef(args)
	if err != nil {
		return nil, err
	}
	return sharedLoad(c, ctx, q, func() (*scripture.CrossReference, error) { return c.inner.GetCrossReferences(ctx, ref) })
}

func (c *CachingScriptureRepository) fetchParallel(ctx context.Context, args []string) (any, error) {
	q := cacheaside.Query{Category: cacheaside.CategoryParallel, Args: args}
	if err := argCount(q, args, 4); err != nil {
		return nil, err
	}
	ref, err := parseRef(args[1:])
	if err != nil {
		return nil, err
	}
	translations := cacheaside.ParseSetArg(args[0])
	return sharedLoad(c, ctx, q, func() (*scripture.ParallelVerse, error) { return c.inner.GetParallel(ctx, translations, ref) })
}

// Result-returning reads, used where cache metadata matters.

func (c *CachingScriptureRepository) TranslationsResult(ctx context.Context) (cacheaside.Result[[]scripture.Translation], error) {
	return cacheaside.Lookup[[]scripture.Translation](ctx, c.provider, TranslationsQuery())
}

func (c *CachingScriptureRepository) BooksResult(ctx context.Context, translation string) (cacheaside.Result[[]scripture.Book], error) {
	return cacheaside.Lookup[[]scripture.Book](ctx, c.provider, BooksQuery(translation))
}

func (c *CachingScriptureRepository) ChapterResult(ctx context.Context, translation, book string, chapter int) (cacheaside.Result[*scripture.Chapter], error) {
	return cacheaside.Lookup[*scripture.Chapter](ctx, c.provider, ChapterQuery(translation, book, chapter))
}

func (c *CachingScriptureRepository) VerseResult(ctx context.Context, translation string, ref scripture.VerseRef) (cacheaside.Result[*scripture.Verse], error) {
	return cacheaside.Lookup[*scripture.Verse](ctx, c.provider, VerseQuery(translation, ref))
}

func (c *CachingScriptureRepository) SearchResult(ctx context.Context, q scripture.SearchQuery) (cacheaside.Result[*scripture.SearchResult], error) {
	return cacheaside.Lookup[*scripture.SearchResult](ctx, c.provider, SearchQuery(q))
}

func (c *CachingScriptureRepository) CrossRefResult(ctx context.Context, ref scripture.VerseRef) (cacheaside.Result[*scripture.CrossReference], error) {
	return cacheaside.Lookup[*scripture.CrossReference](ctx, c.provider, CrossRefQuery(ref))
}

func (c *CachingScriptureRepository) ParallelResult(ctx context.Context, translations []string, ref scripture.VerseRef) (cacheaside.Result[*scripture.ParallelVerse], error) {
	return cacheaside.Lookup[*scripture.ParallelVerse](ctx, c.provider, ParallelQuery(translations, ref))
}

func unwrap[T any](res cacheaside.Result[T], err error) (T, error) {
	if err == nil && res.Degraded {
		var zero T
		return zero, ErrNoData
	}
	return res.Value, err
}

func (c *CachingScriptureRepository) ListTranslations(ctx context.Context) ([]scripture.Translation, error) {
	return unwrap(c.TranslationsResult(ctx))
}

func (c *CachingScriptureRepository) ListBooks(ctx context.Context, translation string) ([]scripture.Book, error) {
	return unwrap(c.BooksResult(ctx, translation))
}

func (c *CachingScriptureRepository) GetChapter(ctx context.Context, translation, book string, chapter int) (*scripture.Chapter, error) {
	return unwrap(c.ChapterResult(ctx, translation, book, chapter))
}

func (c *CachingScriptureRepository) GetVerse(ctx context.Context, translation string, ref scripture.VerseRef) (*scripture.Verse, error) {
	return unwrap(c.VerseResult(ctx, translation, ref))
}

func (c *CachingScriptureRepository) Search(ctx context.Context, q scripture.SearchQuery) (*scripture.SearchResult, error) {
	return unwrap(c.SearchResult(ctx, q))
}

func (c *CachingScriptureRepository) GetCrossReferences(ctx context.Context, ref scripture.VerseRef) (*scripture.CrossReference, error) {
	return unwrap(c.CrossRefResult(ctx, ref))
}

func (c *CachingScriptureRepository) GetParallel(ctx context.Context, translations []string, ref scripture.VerseRef) (*scripture.ParallelVerse, error) {
	return unwrap(c.ParallelResult(ctx, translations, ref))
}

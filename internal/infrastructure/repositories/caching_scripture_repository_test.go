package repositories_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/memstore"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/repositories"
	"github.com/avatarctic/scripture-cache/test/mocks"
)

var gen11 = scripture.VerseRef{Book: "GEN", Chapter: 1, Verse: 1}

func verseMock(calls *atomic.Int32) *mocks.ScriptureRepositoryMock {
	return &mocks.ScriptureRepositoryMock{
		GetVerseFn: func(_ context.Context, translation string, ref scripture.VerseRef) (*scripture.Verse, error) {
			calls.Add(1)
			return &scripture.Verse{Translation: translation, VerseRef: ref, Text: "In the beginning"}, nil
		},
	}
}

func TestCachingScriptureRepository_VerseCached(t *testing.T) {
	var calls atomic.Int32
	p := cacheaside.New(cacheaside.Options{})
	repo := repositories.NewCachingScriptureRepository(verseMock(&calls), p, nil)
	ctx := context.Background()

	first, err := repo.VerseResult(ctx, "KJV", gen11)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, "verse:KJV:GEN:1:1", first.Key)

	v, err := repo.GetVerse(ctx, "KJV", gen11)
	require.NoError(t, err)
	require.Equal(t, "In the beginning", v.Text)
	require.Equal(t, int32(1), calls.Load())
}

func TestCachingScriptureRepository_SharedTier(t *testing.T) {
	var calls atomic.Int32
	shared := memstore.New(cache.New(cache.Options[[]byte]{}))
	inner := verseMock(&calls)
	ctx := context.Background()

	a := repositories.NewCachingScriptureRepository(inner, cacheaside.New(cacheaside.Options{}), shared)
	_, err := a.GetVerse(ctx, "KJV", gen11)
	require.NoError(t, err)

	// A second process with a cold local tier is served from the shared tier.
	b := repositories.NewCachingScriptureRepository(inner, cacheaside.New(cacheaside.Options{}), shared)
	v, err := b.GetVerse(ctx, "KJV", gen11)
	require.NoError(t, err)
	require.Equal(t, "In the beginning", v.Text)
	require.Equal(t, int32(1), calls.Load())

	n, err := b.Invalidate(ctx, "verse:*")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	keys, err := shared.Scan(ctx, "*")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestCachingScriptureRepository_SuffixInvalidationReachesSharedTier(t *testing.T) {
	var calls atomic.Int32
	shared := memstore.New(cache.New(cache.Options[[]byte]{}))
	repo := repositories.NewCachingScriptureRepository(verseMock(&calls), cacheaside.New(cacheaside.Options{}), shared)
	ctx := context.Background()

	_, err := repo.GetVerse(ctx, "KJV", gen11)
	require.NoError(t, err)
	_, err = repo.GetVerse(ctx, "KJV", scripture.VerseRef{Book: "EXO", Chapter: 1, Verse: 1})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())

	n, err := repo.Invalidate(ctx, "*:GEN:1:1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	keys, err := shared.Scan(ctx, "*")
	require.NoError(t, err)
	require.Equal(t, []string{"scripture:verse:KJV:EXO:1:1"}, keys)

	_, err = repo.GetVerse(ctx, "KJV", gen11)
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestCachingScriptureRepository_ErrorsPropagateUncached(t *testing.T) {
	upstream := errors.New("timeout")
	fail := true
	inner := &mocks.ScriptureRepositoryMock{
		GetChapterFn: func(_ context.Context, translation, book string, chapter int) (*scripture.Chapter, error) {
			if fail {
				return nil, upstream
			}
			return &scripture.Chapter{Translation: translation, Book: book, Number: chapter}, nil
		},
	}
	p := cacheaside.New(cacheaside.Options{})
	repo := repositories.NewCachingScriptureRepository(inner, p, nil)
	ctx := context.Background()

	_, err := repo.GetChapter(ctx, "KJV", "PSA", 23)
	require.ErrorIs(t, err, upstream)
	require.Zero(t, p.CacheStats().Size)

	fail = false
	ch, err := repo.GetChapter(ctx, "KJV", "PSA", 23)
	require.NoError(t, err)
	require.Equal(t, 23, ch.Number)
}

func TestCachingScriptureRepository_DegradedMapsToErrNoData(t *testing.T) {
	b := breaker.New(breaker.Config{Name: "scripture-api"})
	b.ForceOpen()
	p := cacheaside.New(cacheaside.Options{Breaker: b, Fallback: cacheaside.FallbackNoData})
	repo := repositories.NewCachingScriptureRepository(&mocks.ScriptureRepositoryMock{}, p, nil)

	res, err := repo.TranslationsResult(context.Background())
	require.NoError(t, err)
	require.True(t, res.Degraded)

	_, err = repo.ListTranslations(context.Background())
	require.ErrorIs(t, err, repositories.ErrNoData)
}

func TestCachingScriptureRepository_ParallelKeyIgnoresOrder(t *testing.T) {
	var got []string
	inner := &mocks.ScriptureRepositoryMock{
		GetParallelFn: func(_ context.Context, translations []string, ref scripture.VerseRef) (*scripture.ParallelVerse, error) {
			got = translations
			return &scripture.ParallelVerse{Ref: ref}, nil
		},
	}
	repo := repositories.NewCachingScriptureRepository(inner, cacheaside.New(cacheaside.Options{}), nil)
	ctx := context.Background()

	r1, err := repo.ParallelResult(ctx, []string{"NIV", "KJV"}, gen11)
	require.NoError(t, err)
	require.Equal(t, []string{"KJV", "NIV"}, got)

	r2, err := repo.ParallelResult(ctx, []string{"KJV", "NIV", "KJV"}, gen11)
	require.NoError(t, err)
	require.True(t, r2.Cached)
	require.Equal(t, r1.Key, r2.Key)
}

func TestCachingScriptureRepository_SearchNormalizesText(t *testing.T) {
	var got scripture.SearchQuery
	inner := &mocks.ScriptureRepositoryMock{
		SearchFn: func(_ context.Context, q scripture.SearchQuery) (*scripture.SearchResult, error) {
			got = q
			return &scripture.SearchResult{Query: q, Total: 3}, nil
		},
	}
	repo := repositories.NewCachingScriptureRepository(inner, cacheaside.New(cacheaside.Options{}), nil)
	ctx := context.Background()

	_, err := repo.Search(ctx, scripture.SearchQuery{Translation: "KJV", Text: "  Love  One Another", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, "love one another", got.Text)
	require.Equal(t, 10, got.Limit)

	res, err := repo.SearchResult(ctx, scripture.SearchQuery{Translation: "KJV", Text: "love one another", Limit: 10})
	require.NoError(t, err)
	require.True(t, res.Cached)
}

func TestCachingScriptureRepository_WarmDispatchesThroughFetchers(t *testing.T) {
	var calls atomic.Int32
	p := cacheaside.New(cacheaside.Options{})
	repo := repositories.NewCachingScriptureRepository(verseMock(&calls), p, nil)

	rep := p.WarmCache(context.Background(), []cacheaside.Query{
		repositories.VerseQuery("KJV", gen11),
		repositories.VerseQuery("KJV", scripture.VerseRef{Book: "JHN", Chapter: 3, Verse: 16}),
		{Category: cacheaside.CategoryVerse, Args: []string{"KJV", "GEN", "x", "1"}},
	})
	require.Equal(t, 2, rep.Loaded)
	require.Equal(t, 1, rep.Failed)

	res, err := repo.VerseResult(context.Background(), "KJV", gen11)
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, int32(2), calls.Load())
}

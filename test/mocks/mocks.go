package mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
)

// KVStoreMock is a lightweight mock for KVStore
type KVStoreMock struct {
	GetFn    func(ctx context.Context, key string) ([]byte, bool, error)
	SetFn    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFn func(ctx context.Context, keyOrPattern string) (int, error)
	ScanFn   func(ctx context.Context, pattern string) ([]string, error)
}

func (m *KVStoreMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	return nil, false, nil
}
func (m *KVStoreMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, key, value, ttl)
	}
	return nil
}
func (m *KVStoreMock) Delete(ctx context.Context, keyOrPattern string) (int, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, keyOrPattern)
	}
	return 0, nil
}
func (m *KVStoreMock) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.ScanFn != nil {
		return m.ScanFn(ctx, pattern)
	}
	return nil, nil
}

// RateLimitRepositoryMock is a lightweight mock for RateLimitRepository
type RateLimitRepositoryMock struct {
	LoadWindowFn   func(ctx context.Context, key string) (*ratelimit.Window, bool, error)
	SaveWindowFn   func(ctx context.Context, key string, w *ratelimit.Window, ttl time.Duration) error
	DeleteWindowFn func(ctx context.Context, key string) error
}

func (m *RateLimitRepositoryMock) LoadWindow(ctx context.Context, key string) (*ratelimit.Window, bool, error) {
	if m.LoadWindowFn != nil {
		return m.LoadWindowFn(ctx, key)
	}
	return nil, false, nil
}
func (m *RateLimitRepositoryMock) SaveWindow(ctx context.Context, key string, w *ratelimit.Window, ttl time.Duration) error {
	if m.SaveWindowFn != nil {
		return m.SaveWindowFn(ctx, key, w, ttl)
	}
	return nil
}
func (m *RateLimitRepositoryMock) DeleteWindow(ctx context.Context, key string) error {
	if m.DeleteWindowFn != nil {
		return m.DeleteWindowFn(ctx, key)
	}
	return nil
}

// ScriptureRepositoryMock is a lightweight mock for ScriptureRepository
type ScriptureRepositoryMock struct {
	ListTranslationsFn   func(ctx context.Context) ([]scripture.Translation, error)
	ListBooksFn          func(ctx context.Context, translation string) ([]scripture.Book, error)
	GetChapterFn         func(ctx context.Context, translation, book string, chapter int) (*scripture.Chapter, error)
	GetVerseFn           func(ctx context.Context, translation string, ref scripture.VerseRef) (*scripture.Verse, error)
	SearchFn             func(ctx context.Context, q scripture.SearchQuery) (*scripture.SearchResult, error)
	GetCrossReferencesFn func(ctx context.Context, ref scripture.VerseRef) (*scripture.CrossReference, error)
	GetParallelFn        func(ctx context.Context, translations []string, ref scripture.VerseRef) (*scripture.ParallelVerse, error)
}

func (m *ScriptureRepositoryMock) ListTranslations(ctx context.Context) ([]scripture.Translation, error) {
	if m.ListTranslationsFn != nil {
		return m.ListTranslationsFn(ctx)
	}
	return nil, nil
}
func (m *ScriptureRepositoryMock) ListBooks(ctx context.Context, translation string) ([]scripture.Book, error) {
	if m.ListBooksFn != nil {
		return m.ListBooksFn(ctx, translation)
	}
	return nil, nil
}
func (m *ScriptureRepositoryMock) GetChapter(ctx context.Context, translation, book string, chapter int) (*scripture.Chapter, error) {
	if m.GetChapterFn != nil {
		return m.GetChapterFn(ctx, translation, book, chapter)
	}
	return nil, fmt.Errorf("not found")
}
func (m *ScriptureRepositoryMock) GetVerse(ctx context.Context, translation string, ref scripture.VerseRef) (*scripture.Verse, error) {
	if m.GetVerseFn != nil {
		return m.GetVerseFn(ctx, translation, ref)
	}
	return nil, fmt.Errorf("not found")
}
func (m *ScriptureRepositoryMock) Search(ctx context.Context, q scripture.SearchQuery) (*scripture.SearchResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, q)
	}
	return &scripture.SearchResult{Query: q}, nil
}
func (m *ScriptureRepositoryMock) GetCrossReferences(ctx context.Context, ref scripture.VerseRef) (*scripture.CrossReference, error) {
	if m.GetCrossReferencesFn != nil {
		return m.GetCrossReferencesFn(ctx, ref)
	}
	return &scripture.CrossReference{From: ref}, nil
}
func (m *ScriptureRepositoryMock) GetParallel(ctx context.Context, translations []string, ref scripture.VerseRef) (*scripture.ParallelVerse, error) {
	if m.GetParallelFn != nil {
		return m.GetParallelFn(ctx, translations, ref)
	}
	return nil, fmt.Errorf("not found")
}

// AdmissionMock is a fixed admission decision.
type AdmissionMock struct {
	D          ratelimit.Decision
	CompleteFn func(ctx context.Context, success bool)
}

func (a *AdmissionMock) Decision() ratelimit.Decision { return a.D }
func (a *AdmissionMock) Complete(ctx context.Context, success bool) {
	if a.CompleteFn != nil {
		a.CompleteFn(ctx, success)
	}
}

// RateLimiterServiceMock is a lightweight mock for RateLimiterService
type RateLimiterServiceMock struct {
	ClassV  ratelimit.Class
	AdmitFn func(ctx context.Context, clientKey string) (ports.Admission, error)
	PeekFn  func(ctx context.Context, clientKey string) (ratelimit.Decision, error)
	ResetFn func(ctx context.Context, clientKey string) error
}

func (m *RateLimiterServiceMock) Class() ratelimit.Class { return m.ClassV }
func (m *RateLimiterServiceMock) Admit(ctx context.Context, clientKey string) (ports.Admission, error) {
	if m.AdmitFn != nil {
		return m.AdmitFn(ctx, clientKey)
	}
	return &AdmissionMock{D: ratelimit.Decision{Allowed: true, Limit: 100, Remaining: 99, ResetAt: time.Now().Add(time.Minute)}}, nil
}
func (m *RateLimiterServiceMock) Peek(ctx context.Context, clientKey string) (ratelimit.Decision, error) {
	if m.PeekFn != nil {
		return m.PeekFn(ctx, clientKey)
	}
	return ratelimit.Decision{Allowed: true, Limit: 100, Remaining: 100}, nil
}
func (m *RateLimiterServiceMock) Reset(ctx context.Context, clientKey string) error {
	if m.ResetFn != nil {
		return m.ResetFn(ctx, clientKey)
	}
	return nil
}

// HealthCheckerMock is a lightweight mock for HealthChecker
type HealthCheckerMock struct {
	NameV   string
	CheckFn func(ctx context.Context) error
}

func (m *HealthCheckerMock) Name() string { return m.NameV }
func (m *HealthCheckerMock) Check(ctx context.Context) error {
	if m.CheckFn != nil {
		return m.CheckFn(ctx)
	}
	return nil
}

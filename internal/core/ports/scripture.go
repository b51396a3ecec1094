package ports

import (
	"context"

	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
)

// ScriptureRepository is the underlying data provider the cache sits in front of.
type ScriptureRepository interface {
	ListTranslations(ctx context.Context) ([]scripture.Translation, error)
	ListBooks(ctx context.Context, translation string) ([]scripture.Book, error)
	GetChapter(ctx context.Context, translation, book string, chapter int) (*scripture.Chapter, error)
	GetVerse(ctx context.Context, translation string, ref scripture.VerseRef) (*scripture.Verse, error)
	Search(ctx context.Context, q scripture.SearchQuery) (*scripture.SearchResult, error)
	GetCrossReferences(ctx context.Context, ref scripture.VerseRef) (*scripture.CrossReference, error)
	GetParallel(ctx context.Context, translations []string, ref scripture.VerseRef) (*scripture.ParallelVerse, error)
}

package scripture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports that the provider has no such translation, book or verse.
var ErrNotFound = errors.New("scripture resource not found")

type Testament string

const (
	TestamentOld Testament = "OT"
	TestamentNew Testament = "NT"
)

type Translation struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

type Book struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Testament Testament `json:"testament"`
	Chapters  int       `json:"chapters"`
}

// VerseRef identifies a verse independent of translation.
type VerseRef struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
}

func (r VerseRef) String() string {
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.Verse)
}

// Validate checks that the reference can address a verse.
func (r VerseRef) Validate() error {
	if strings.TrimSpace(r.Book) == "" {
		return fmt.Errorf("book is required")
	}
	if r.Chapter <= 0 {
		return fmt.Errorf("chapter must be positive")
	}
	if r.Verse <= 0 {
		return fmt.Errorf("verse must be positive")
	}
	return nil
}

type Verse struct {
	Translation string `json:"translation"`
	VerseRef
	Text string `json:"text"`
}

type Chapter struct {
	Translation string  `json:"translation"`
	Book        string  `json:"book"`
	Number      int     `json:"number"`
	Verses      []Verse `json:"verses"`
}

type SearchQuery struct {
	Translation string `json:"translation"`
	Text        string `json:"text"`
	Limit       int    `json:"limit"`
}

type SearchResult struct {
	Query SearchQuery `json:"query"`
	Total int         `json:"total"`
	Hits  []Verse     `json:"hits"`
}

type CrossReference struct {
	From VerseRef   `json:"from"`
	To   []VerseRef `json:"to"`
}

// ParallelVerse is one verse rendered in several translations.
type ParallelVerse struct {
	Ref      VerseRef         `json:"ref"`
	Versions map[string]Verse `json:"versions"`
}

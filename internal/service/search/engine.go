// Package search resolves user queries against the catalog.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"movievault/internal/errs"
	"movievault/internal/models"
)

const (
	DefaultDirectLimit     = 10
	DefaultSuggestionLimit = 5
	DefaultSuggestionChars = 3
)

// Kind tells the caller how to present a Result.
type Kind int

const (
	KindDirect Kind = iota
	KindSuggestions
	KindTooShort
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindSuggestions:
		return "suggestions"
	case KindTooShort:
		return "too_short"
	default:
		return "unknown"
	}
}

// Result of one search. Direct holds full matches, Suggestions holds
// candidates found by prefix when nothing matched directly (possibly none).
type Result struct {
	Kind        Kind
	Query       string
	Direct      []*models.CatalogEntry
	Suggestions []*models.CatalogEntry
}

// Catalog is the read side of the catalog store.
type Catalog interface {
	FindByNameSubstring(ctx context.Context, text string, limit int) ([]*models.CatalogEntry, error)
	FindByID(ctx context.Context, id string) (*models.CatalogEntry, error)
}

type Options struct {
	DirectLimit     int
	SuggestionLimit int
	SuggestionChars int
}

type Engine struct {
	catalog Catalog
	opts    Options
}

func NewEngine(catalog Catalog, opts Options) *Engine {
	if opts.DirectLimit <= 0 {
		opts.DirectLimit = DefaultDirectLimit
	}
	if opts.SuggestionLimit <= 0 {
		opts.SuggestionLimit = DefaultSuggestionLimit
	}
	if opts.SuggestionChars <= 0 {
		opts.SuggestionChars = DefaultSuggestionChars
	}
	return &Engine{catalog: catalog, opts: opts}
}

// Search looks query up as a case-insensitive substring. When nothing
// matches and the query is long enough, entries sharing its first few
// characters are offered instead.
func (e *Engine) Search(ctx context.Context, query string) (Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Result{}, errs.New(errs.CodeInvalidQuery, "empty query")
	}

	direct, err := e.catalog.FindByNameSubstring(ctx, q, e.opts.DirectLimit)
	if err != nil {
		return Result{}, fmt.Errorf("direct search: %w", err)
	}
	if len(direct) > 0 {
		return Result{Kind: KindDirect, Query: q, Direct: direct}, nil
	}

	if utf8.RuneCountInString(q) < e.opts.SuggestionChars {
		return Result{Kind: KindTooShort, Query: q}, nil
	}
	prefix := string([]rune(q)[:e.opts.SuggestionChars])
	suggestions, err := e.catalog.FindByNameSubstring(ctx, prefix, e.opts.SuggestionLimit)
	if err != nil {
		return Result{}, fmt.Errorf("suggestion search: %w", err)
	}
	return Result{Kind: KindSuggestions, Query: q, Suggestions: suggestions}, nil
}

// Lookup resolves a previously offered suggestion.
func (e *Engine) Lookup(ctx context.Context, id string) (*models.CatalogEntry, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.New(errs.CodeInvalidQuery, "empty entry id")
	}
	return e.catalog.FindByID(ctx, id)
}

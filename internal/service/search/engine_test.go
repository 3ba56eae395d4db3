package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"movievault/internal/errs"
	"movievault/internal/models"
)

type fakeCatalog struct {
	entries []*models.CatalogEntry
	queries []string
	err     error
}

func (f *fakeCatalog) FindByNameSubstring(_ context.Context, text string, limit int) ([]*models.CatalogEntry, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.CatalogEntry
	for _, e := range f.entries {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(e.Name), strings.ToLower(text)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCatalog) FindByID(_ context.Context, id string) (*models.CatalogEntry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errs.New(errs.CodeNotFound, id)
}

func catalogOf(names ...string) *fakeCatalog {
	f := &fakeCatalog{}
	for i, n := range names {
		f.entries = append(f.entries, &models.CatalogEntry{ID: fmt.Sprintf("id-%d", i), Name: n})
	}
	return f
}

func TestSearchDirect(t *testing.T) {
	cat := catalogOf("Avengers (2012)", "Avatar (2009)", "The Avengers Again")
	engine := NewEngine(cat, Options{})

	res, err := engine.Search(context.Background(), "  avengers ")
	require.NoError(t, err)
	require.Equal(t, KindDirect, res.Kind)
	require.Len(t, res.Direct, 2)
	require.Equal(t, "Avengers (2012)", res.Direct[0].Name)
	require.Equal(t, []string{"avengers"}, cat.queries)
}

func TestSearchDirectIsCapped(t *testing.T) {
	var names []string
	for i := 0; i < 25; i++ {
		names = append(names, fmt.Sprintf("Batman %d", i))
	}
	engine := NewEngine(catalogOf(names...), Options{})

	res, err := engine.Search(context.Background(), "batman")
	require.NoError(t, err)
	require.Len(t, res.Direct, 10)
}

func TestSearchFallsBackToSuggestions(t *testing.T) {
	cat := catalogOf("Avengers (2012)", "Avatar (2009)", "Avenue Five", "Up (2009)", "Brave Heart")
	engine := NewEngine(cat, Options{})

	res, err := engine.Search(context.Background(), "Avenjers")
	require.NoError(t, err)
	require.Equal(t, KindSuggestions, res.Kind)
	require.Empty(t, res.Direct)
	require.Len(t, res.Suggestions, 3, "prefix is matched anywhere in the name")
	require.Equal(t, "Avengers (2012)", res.Suggestions[0].Name)
	require.Equal(t, []string{"Avenjers", "Ave"}, cat.queries)
}

func TestSearchSuggestionsCappedAndMayBeEmpty(t *testing.T) {
	var names []string
	for i := 0; i < 8; i++ {
		names = append(names, fmt.Sprintf("Star Saga %d", i))
	}
	engine := NewEngine(catalogOf(names...), Options{})

	res, err := engine.Search(context.Background(), "Starz Wars")
	require.NoError(t, err)
	require.Equal(t, KindSuggestions, res.Kind)
	require.Len(t, res.Suggestions, 5)

	res, err = engine.Search(context.Background(), "zzzz")
	require.NoError(t, err)
	require.Equal(t, KindSuggestions, res.Kind)
	require.Empty(t, res.Suggestions)
}

func TestSearchTooShortSkipsSuggestions(t *testing.T) {
	cat := catalogOf("Up (2009)")
	engine := NewEngine(cat, Options{})

	res, err := engine.Search(context.Background(), "ab")
	require.NoError(t, err)
	require.Equal(t, KindTooShort, res.Kind)
	require.Equal(t, []string{"ab"}, cat.queries, "only the direct lookup runs")

	res, err = engine.Search(context.Background(), "up")
	require.NoError(t, err)
	require.Equal(t, KindDirect, res.Kind, "short queries can still match directly")
}

func TestSearchCountsRunes(t *testing.T) {
	cat := catalogOf("Amélie (2001)")
	engine := NewEngine(cat, Options{})

	res, err := engine.Search(context.Background(), "éléphant")
	require.NoError(t, err)
	require.Equal(t, KindSuggestions, res.Kind)
	require.Equal(t, "élé", cat.queries[1])
}

func TestSearchInvalidQuery(t *testing.T) {
	cat := catalogOf("Anything")
	engine := NewEngine(cat, Options{})

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := engine.Search(context.Background(), q)
		require.ErrorIs(t, err, errs.ErrInvalidQuery)
	}
	require.Empty(t, cat.queries)
}

func TestSearchStoreError(t *testing.T) {
	cat := catalogOf()
	cat.err = errors.New("db down")
	engine := NewEngine(cat, Options{})

	_, err := engine.Search(context.Background(), "anything")
	require.ErrorContains(t, err, "db down")
}

func TestLookup(t *testing.T) {
	engine := NewEngine(catalogOf("Avatar (2009)"), Options{})

	e, err := engine.Lookup(context.Background(), "id-0")
	require.NoError(t, err)
	require.Equal(t, "Avatar (2009)", e.Name)

	_, err = engine.Lookup(context.Background(), "id-9")
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = engine.Lookup(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrInvalidQuery)
}

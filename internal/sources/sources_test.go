package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
)

func testCatalog() *Catalog {
	return NewCatalog(
		"focus",
		[]Category{
			{ID: "tech", Name: "Tech", Defaults: []newsnow.SourceID{"a", "b"}},
		},
		[]Source{
			{ID: "a", Name: "Source A", RefreshInterval: 10 * time.Minute},
			{ID: "b", Name: "Source B", RefreshInterval: 10 * time.Minute},
			{ID: "old-a", RedirectTo: "a"},
			{ID: "gone", Name: "Gone", Disabled: true},
		},
	)
}

func TestCanonical(t *testing.T) {
	c := testCatalog()

	id, ok := c.Canonical("a")
	require.True(t, ok)
	assert.Equal(t, newsnow.SourceID("a"), id)

	id, ok = c.Canonical("old-a")
	require.True(t, ok)
	assert.Equal(t, newsnow.SourceID("a"), id)

	_, ok = c.Canonical("gone")
	assert.False(t, ok, "disabled sources do not resolve")

	_, ok = c.Canonical("nope")
	assert.False(t, ok)
}

func TestDefaultRecord(t *testing.T) {
	rec := testCatalog().DefaultRecord(123)

	assert.Equal(t, int64(123), rec.UpdatedAt)
	assert.Equal(t, newsnow.ActionInit, rec.Action)
	assert.Equal(t, []newsnow.SourceID{"a", "b"}, rec.CategorySources["tech"])
	assert.Empty(t, rec.CategorySources["focus"])
	assert.NotNil(t, rec.PinnedCategories)
	assert.NotNil(t, rec.AggregatedViews)
}

func TestDefaultCatalogHasFetchers(t *testing.T) {
	catalog, registry := Default()

	for _, cat := range catalog.Categories() {
		for _, id := range cat.Defaults {
			src, ok := catalog.Resolve(id)
			require.True(t, ok, "default %s must resolve", id)
			_, ok = registry.Lookup(src.ID)
			assert.True(t, ok, "default %s must have a fetcher", id)
		}
	}
}

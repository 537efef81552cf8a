package store

import (
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
)

// Preprocess normalizes a recovered or pulled record against the catalog so
// the store only ever holds a complete, valid shape:
//
//   - source ids the catalog no longer knows are dropped
//   - redirected ids are rewritten to their canonical form
//   - fixed categories missing from the record are seeded with defaults,
//     and newly introduced defaults are appended after the stored order
//   - absent optional collections become empty ones
//
// Preprocess is idempotent.
func Preprocess(catalog *sources.Catalog, rec newsnow.ConfigRecord) newsnow.ConfigRecord {
	out := rec
	out.CategorySources = make(map[newsnow.CategoryID][]newsnow.SourceID)

	known := map[newsnow.CategoryID]bool{catalog.FavoritesID(): true}
	for _, cat := range catalog.Categories() {
		known[cat.ID] = true
		out.CategorySources[cat.ID] = normalizeIDs(catalog, rec.CategorySources[cat.ID], cat.Defaults)
	}
	out.CategorySources[catalog.FavoritesID()] = normalizeIDs(catalog, rec.CategorySources[catalog.FavoritesID()], nil)

	out.PinnedCategories = []newsnow.CategoryID{}
	for _, cat := range rec.PinnedCategories {
		if known[cat] {
			out.PinnedCategories = append(out.PinnedCategories, cat)
		}
	}

	out.AggregatedViews = make([]newsnow.AggregatedView, 0, len(rec.AggregatedViews))
	for _, view := range rec.AggregatedViews {
		view.Sources = normalizeIDs(catalog, view.Sources, nil)
		out.AggregatedViews = append(out.AggregatedViews, view)
	}

	return out
}

// normalizeIDs keeps valid ids in stored order, rewrites redirects, drops
// the rest, and appends any defaults not already present.
func normalizeIDs(catalog *sources.Catalog, stored, defaults []newsnow.SourceID) []newsnow.SourceID {
	seen := make(map[newsnow.SourceID]bool, len(stored)+len(defaults))
	out := make([]newsnow.SourceID, 0, len(stored)+len(defaults))
	for _, id := range stored {
		canonical, ok := catalog.Canonical(id)
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	for _, id := range defaults {
		canonical, ok := catalog.Canonical(id)
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out
}

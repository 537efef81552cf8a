package sources

import (
	"time"

	"github.com/Shangzhi-shi/newsnow-fork/internal/fetcher"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
)

// FavoritesCategory is the synthetic column holding favorited sources.
const FavoritesCategory newsnow.CategoryID = "focus"

type defaultSource struct {
	Source
	feedURL string
}

var defaultSources = []defaultSource{
	{Source{ID: "hackernews", Name: "Hacker News", RefreshInterval: 10 * time.Minute}, "https://hnrss.org/frontpage"},
	{Source{ID: "lobsters", Name: "Lobsters", RefreshInterval: 15 * time.Minute}, "https://lobste.rs/rss"},
	{Source{ID: "theverge", Name: "The Verge", RefreshInterval: 10 * time.Minute}, "https://www.theverge.com/rss/index.xml"},
	{Source{ID: "arstechnica", Name: "Ars Technica", RefreshInterval: 15 * time.Minute}, "https://feeds.arstechnica.com/arstechnica/index"},
	{Source{ID: "bbc-world", Name: "BBC World", RefreshInterval: 5 * time.Minute}, "https://feeds.bbci.co.uk/news/world/rss.xml"},
	{Source{ID: "guardian-world", Name: "The Guardian", RefreshInterval: 5 * time.Minute}, "https://www.theguardian.com/world/rss"},

	// Retired ids kept for records written by older clients.
	{Source{ID: "the-verge", RedirectTo: "theverge"}, ""},
	{Source{ID: "digg", Name: "Digg", Disabled: true}, ""},
}

var defaultCategories = []Category{
	{ID: "tech", Name: "Tech", Defaults: []newsnow.SourceID{"hackernews", "lobsters", "theverge", "arstechnica"}},
	{ID: "world", Name: "World", Defaults: []newsnow.SourceID{"bbc-world", "guardian-world"}},
}

// Default builds the built-in catalog and a registry with an RSS fetcher
// wired for every fetchable source.
func Default() (*Catalog, *Registry) {
	srcs := make([]Source, 0, len(defaultSources))
	registry := NewRegistry()
	for _, ds := range defaultSources {
		srcs = append(srcs, ds.Source)
		if ds.feedURL != "" {
			registry.Register(ds.ID, fetcher.NewRSS(ds.feedURL))
		}
	}

	return NewCatalog(FavoritesCategory, defaultCategories, srcs), registry
}

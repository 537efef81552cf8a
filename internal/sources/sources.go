// Package sources holds the canonical source catalog: which upstream
// sources exist, how often each may be refreshed, which fixed categories
// they belong to, and the registry mapping source ids to fetchers.
package sources

import (
	"sync"
	"time"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
)

// Source describes one upstream source.
type Source struct {
	ID   newsnow.SourceID
	Name string

	// RefreshInterval is how long a cache entry counts as just-fetched.
	// Each upstream has its own tolerance for being hammered.
	RefreshInterval time.Duration

	// RedirectTo is set when this id is a retired alias for another source.
	RedirectTo newsnow.SourceID

	// Disabled sources stay in the catalog so old records can be cleaned
	// up, but resolve to nothing.
	Disabled bool
}

// Category is one fixed column of the reader with its default source order.
type Category struct {
	ID       newsnow.CategoryID
	Name     string
	Defaults []newsnow.SourceID
}

// Catalog is the immutable source-of-truth for source and category lookups.
type Catalog struct {
	sources    map[newsnow.SourceID]Source
	categories []Category
	favorites  newsnow.CategoryID
}

func NewCatalog(favorites newsnow.CategoryID, categories []Category, srcs []Source) *Catalog {
	byID := make(map[newsnow.SourceID]Source, len(srcs))
	for _, s := range srcs {
		byID[s.ID] = s
	}
	return &Catalog{
		sources:    byID,
		categories: categories,
		favorites:  favorites,
	}
}

// Canonical follows redirects to the id lookups should use. Returns false
// for ids that are unknown or resolve to a disabled source.
func (c *Catalog) Canonical(id newsnow.SourceID) (newsnow.SourceID, bool) {
	// Redirect chains are short; the bound guards against a cycle in the
	// catalog data.
	for range 4 {
		s, ok := c.sources[id]
		if !ok {
			return "", false
		}
		if s.RedirectTo != "" {
			id = s.RedirectTo
			continue
		}
		if s.Disabled {
			return "", false
		}
		return s.ID, true
	}
	return "", false
}

// Resolve returns the canonical source definition for an id.
func (c *Catalog) Resolve(id newsnow.SourceID) (Source, bool) {
	canonical, ok := c.Canonical(id)
	if !ok {
		return Source{}, false
	}
	return c.sources[canonical], true
}

// Categories returns the fixed categories in display order, favorites
// excluded.
func (c *Catalog) Categories() []Category {
	return c.categories
}

// FavoritesID is the synthetic category holding the user's favorited
// sources across all columns.
func (c *Catalog) FavoritesID() newsnow.CategoryID {
	return c.favorites
}

// DefaultRecord seeds a fresh ConfigRecord from the catalog defaults.
func (c *Catalog) DefaultRecord(now int64) newsnow.ConfigRecord {
	data := make(map[newsnow.CategoryID][]newsnow.SourceID, len(c.categories)+1)
	for _, cat := range c.categories {
		data[cat.ID] = append([]newsnow.SourceID(nil), cat.Defaults...)
	}
	data[c.favorites] = []newsnow.SourceID{}

	return newsnow.ConfigRecord{
		UpdatedAt:        now,
		Action:           newsnow.ActionInit,
		CategorySources:  data,
		PinnedCategories: []newsnow.CategoryID{},
		AggregatedViews:  []newsnow.AggregatedView{},
	}
}

// Registry maps source ids to their fetchers. Sources without a registered
// fetcher are filtered out of aggregation requests.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[newsnow.SourceID]newsnow.Fetcher
}

func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[newsnow.SourceID]newsnow.Fetcher)}
}

func (r *Registry) Register(id newsnow.SourceID, f newsnow.Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[id] = f
}

func (r *Registry) Lookup(id newsnow.SourceID) (newsnow.Fetcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[id]
	return f, ok
}

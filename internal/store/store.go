// Package store owns the single local-first ConfigRecord. Every mutation
// funnels through Write, which enforces the monotonic-timestamp acceptance
// rule, so concurrent writers (a background pull racing a user edit) are
// safe without field-level locking.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
)

// Fixed storage keys. The collapsed map and active view are presentation
// state, not part of the sync contract.
const (
	configKey     = "newsnow.config"
	columnsKey    = "newsnow.columns"
	activeViewKey = "newsnow.active-view"
)

// Store holds exactly one ConfigRecord.
type Store struct {
	catalog *sources.Catalog
	kv      KV

	mu       sync.Mutex
	record   newsnow.ConfigRecord
	watchers []chan newsnow.ConfigRecord
}

// Open loads the record from durable storage, runs it through Preprocess,
// and seeds the catalog defaults when nothing was stored.
func Open(catalog *sources.Catalog, kv KV) (*Store, error) {
	s := &Store{catalog: catalog, kv: kv}

	byts, ok, err := kv.Get(configKey)
	if err != nil {
		return nil, fmt.Errorf("error loading config record: %w", err)
	}
	if !ok {
		s.record = catalog.DefaultRecord(time.Now().UnixMilli())
		return s, nil
	}

	var rec newsnow.ConfigRecord
	if err := json.Unmarshal(byts, &rec); err != nil {
		// A corrupt record is unrecoverable; start over from defaults.
		slog.Warn("discarding unreadable config record", "error", err)
		s.record = catalog.DefaultRecord(time.Now().UnixMilli())
		return s, nil
	}

	s.record = Preprocess(catalog, rec)
	return s, nil
}

// Read returns a copy of the current record.
func (s *Store) Read() newsnow.ConfigRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Write applies the candidate iff its UpdatedAt is strictly greater than the
// held record's, persists it, and notifies watchers. Returns whether the
// candidate was applied. This is the sole conflict-resolution rule.
func (s *Store) Write(candidate newsnow.ConfigRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if candidate.UpdatedAt <= s.record.UpdatedAt {
		return false, nil
	}

	accepted := candidate.Clone()
	byts, err := json.Marshal(accepted)
	if err != nil {
		return false, fmt.Errorf("error serializing config record: %w", err)
	}
	if err := s.kv.Set(configKey, byts); err != nil {
		return false, fmt.Errorf("error persisting config record: %w", err)
	}

	s.record = accepted
	for _, w := range s.watchers {
		select {
		case w <- accepted.Clone():
		default:
			// A slow watcher only misses intermediate states; it reads the
			// latest record when it gets around to it.
		}
	}
	return true, nil
}

// Watch returns a channel receiving a copy of every accepted write.
func (s *Store) Watch() <-chan newsnow.ConfigRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan newsnow.ConfigRecord, 16)
	s.watchers = append(s.watchers, ch)
	return ch
}

// EffectiveSources computes the ordered source list for a category:
// favorited sources first (in the category's stored order, then any
// favorites not yet listed there), the rest after. The favorites category
// itself is returned verbatim.
func (s *Store) EffectiveSources(category newsnow.CategoryID) []newsnow.SourceID {
	rec := s.Read()

	favoritesID := s.catalog.FavoritesID()
	if category == favoritesID {
		return rec.CategorySources[favoritesID]
	}

	favorited := make(map[newsnow.SourceID]bool)
	for _, id := range rec.CategorySources[favoritesID] {
		favorited[id] = true
	}

	var first, rest []newsnow.SourceID
	stored := rec.CategorySources[category]
	for _, id := range stored {
		if favorited[id] {
			first = append(first, id)
		} else {
			rest = append(rest, id)
		}
	}

	// Sources favorited elsewhere that belong to this category's defaults
	// but aren't in the stored order yet.
	var defaults []newsnow.SourceID
	for _, cat := range s.catalog.Categories() {
		if cat.ID == category {
			defaults = cat.Defaults
			break
		}
	}
	for _, id := range rec.CategorySources[favoritesID] {
		if slices.Contains(defaults, id) && !slices.Contains(stored, id) {
			first = append(first, id)
		}
	}

	return append(first, rest...)
}

// SetCategorySources replaces one category's source list as a manual edit.
func (s *Store) SetCategorySources(category newsnow.CategoryID, ids []newsnow.SourceID, at int64) (bool, error) {
	rec := s.Read()
	rec.CategorySources[category] = append([]newsnow.SourceID(nil), ids...)
	rec.UpdatedAt = at
	rec.Action = newsnow.ActionManual
	return s.Write(rec)
}

// TogglePinned flips a category's pinned state as a manual edit.
func (s *Store) TogglePinned(category newsnow.CategoryID, at int64) (bool, error) {
	rec := s.Read()
	if i := slices.Index(rec.PinnedCategories, category); i >= 0 {
		rec.PinnedCategories = slices.Delete(rec.PinnedCategories, i, i+1)
	} else {
		rec.PinnedCategories = append(rec.PinnedCategories, category)
	}
	rec.UpdatedAt = at
	rec.Action = newsnow.ActionManual
	return s.Write(rec)
}

// CollapsedCategories reads the per-category expanded/collapsed map.
func (s *Store) CollapsedCategories() (map[newsnow.CategoryID]bool, error) {
	byts, ok, err := s.kv.Get(columnsKey)
	if err != nil {
		return nil, err
	}
	out := map[newsnow.CategoryID]bool{}
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal(byts, &out); err != nil {
		return nil, fmt.Errorf("error decoding collapsed map: %w", err)
	}
	return out, nil
}

func (s *Store) SetCollapsedCategories(m map[newsnow.CategoryID]bool) error {
	byts, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.kv.Set(columnsKey, byts)
}

// ActiveView reads the currently displayed aggregated-view id, empty when
// none is selected.
func (s *Store) ActiveView() string {
	byts, ok, err := s.kv.Get(activeViewKey)
	if err != nil || !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(byts, &id); err != nil {
		return ""
	}
	return id
}

func (s *Store) SetActiveView(id string) error {
	byts, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.kv.Set(activeViewKey, byts)
}

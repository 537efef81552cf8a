// Package agg provides the aggregation orchestrator: it decides per-source
// freshness, fetches or reuses cache, and merges the results into one
// recency-ranked feed.
package agg

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
)

const (
	// PerSourceCap bounds what a single fetch writes to the cache.
	PerSourceCap = 30

	// AggregatedCap bounds the merged feed; Total reports the pre-cap count.
	AggregatedCap = 100

	// DefaultStaleTTL is how long past its refresh interval a cache entry
	// still counts as showable.
	DefaultStaleTTL = 30 * time.Minute

	writebackQueueSize = 64
)

type (
	// Orchestrator fans one aggregate call out to every requested source,
	// each evaluated independently so a failing upstream never aborts its
	// siblings.
	Orchestrator struct {
		catalog  *sources.Catalog
		registry *sources.Registry
		cache    newsnow.CacheStore

		staleTTL  time.Duration
		now       func() time.Time
		writeback chan writeJob
	}

	writeJob struct {
		id    newsnow.SourceID
		items []newsnow.NewsItem
	}

	// One source's contribution before the merge step.
	sourceResult struct {
		source    sources.Source
		items     []newsnow.NewsItem
		status    string
		updatedAt time.Time
	}
)

func New(catalog *sources.Catalog, registry *sources.Registry, cache newsnow.CacheStore) *Orchestrator {
	return &Orchestrator{
		catalog:   catalog,
		registry:  registry,
		cache:     cache,
		staleTTL:  DefaultStaleTTL,
		now:       time.Now,
		writeback: make(chan writeJob, writebackQueueSize),
	}
}

// Run drains the cache write-back queue until the context is done. Write
// failures are logged, never surfaced: the cache is best-effort.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-o.writeback:
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := o.cache.SetEntry(wctx, job.id, job.items); err != nil {
				slog.Error("error writing cache entry", "source", job.id, "error", err)
			}
			cancel()
		}
	}
}

// Aggregate merges the requested sources into one ranked feed.
//
// Ids that don't resolve to a source definition plus a registered fetcher
// are filtered; an empty remainder is the only hard failure. Per-source
// fetch failures degrade to stale cache or an empty list.
func (o *Orchestrator) Aggregate(ctx context.Context, ids []newsnow.SourceID, forceFresh bool) (newsnow.AggregatedResult, error) {
	resolved := o.resolve(ids)
	if len(resolved) == 0 {
		return newsnow.AggregatedResult{}, nnerrs.E("no valid sources requested", nnerrs.CodeNoValidSources, http.StatusBadRequest)
	}

	cacheIDs := make([]newsnow.SourceID, 0, len(resolved))
	for _, src := range resolved {
		cacheIDs = append(cacheIDs, src.ID)
	}
	entries, err := o.cache.Entries(ctx, cacheIDs)
	if err != nil {
		return newsnow.AggregatedResult{}, nnerrs.E(fmt.Errorf("cache store unreachable: %s", err), nnerrs.CodeCacheUnavailable)
	}

	// One goroutine per source, each with its own panic boundary.
	results := make([]sourceResult, len(resolved))
	var wg sync.WaitGroup
	for i, src := range resolved {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()
			entry, hasEntry := entries[src.ID]
			results[i] = o.collect(ctx, src, entry, hasEntry, forceFresh)
		}(i, src)
	}
	wg.Wait()

	return o.merge(cacheIDs, results), nil
}

// resolve filters the requested ids down to canonical sources that have
// both a catalog definition and a registered fetcher, deduplicated in
// request order.
func (o *Orchestrator) resolve(ids []newsnow.SourceID) []sources.Source {
	seen := make(map[newsnow.SourceID]bool, len(ids))
	out := make([]sources.Source, 0, len(ids))
	for _, id := range ids {
		src, ok := o.catalog.Resolve(id)
		if !ok || seen[src.ID] {
			continue
		}
		if _, ok := o.registry.Lookup(src.ID); !ok {
			continue
		}
		seen[src.ID] = true
		out = append(out, src)
	}
	return out
}

// collect evaluates the freshness ladder for one source.
func (o *Orchestrator) collect(ctx context.Context, src sources.Source, entry newsnow.CacheEntry, hasEntry, forceFresh bool) (res sourceResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("fetcher panicked", "source", src.ID, "panic", r)
			res = o.degrade(src, entry, hasEntry)
		}
	}()

	now := o.now()

	if !forceFresh && hasEntry {
		age := now.Sub(entry.UpdatedAt)
		if age < src.RefreshInterval {
			// Cache is authoritative and fresh: stamped with the current time.
			return sourceResult{source: src, items: entry.Items, status: newsnow.StatusSuccess, updatedAt: now}
		}
		if age < o.staleTTL {
			return sourceResult{source: src, items: entry.Items, status: newsnow.StatusCache, updatedAt: entry.UpdatedAt}
		}
	}

	fetcher, _ := o.registry.Lookup(src.ID)
	items, err := fetcher.Fetch(ctx, forceFresh)
	if err != nil {
		slog.Warn("fetch failed", "source", src.ID, "error", err)
		return o.degrade(src, entry, hasEntry)
	}

	if len(items) > PerSourceCap {
		items = items[:PerSourceCap]
	}
	o.enqueueWrite(src.ID, items)

	return sourceResult{source: src, items: items, status: newsnow.StatusSuccess, updatedAt: now}
}

// degrade is the recovery path after a failed fetch: stale cache however
// old, else an empty list. Never an error.
func (o *Orchestrator) degrade(src sources.Source, entry newsnow.CacheEntry, hasEntry bool) sourceResult {
	if hasEntry {
		return sourceResult{source: src, items: entry.Items, status: newsnow.StatusCache, updatedAt: entry.UpdatedAt}
	}
	return sourceResult{source: src, items: nil, status: newsnow.StatusSuccess, updatedAt: o.now()}
}

func (o *Orchestrator) merge(ids []newsnow.SourceID, results []sourceResult) newsnow.AggregatedResult {
	var (
		all      []newsnow.AggregatedItem
		latest   time.Time
		allCache = true
	)
	for _, res := range results {
		if res.status != newsnow.StatusCache {
			allCache = false
		}
		if res.updatedAt.After(latest) {
			latest = res.updatedAt
		}
		for _, item := range res.items {
			all = append(all, newsnow.AggregatedItem{
				NewsItem:           item,
				OriginalSourceID:   res.source.ID,
				OriginalSourceName: res.source.Name,
				Timestamp:          rankTimestamp(item, res.updatedAt).UnixMilli(),
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})

	total := len(all)
	if total > AggregatedCap {
		all = all[:AggregatedCap]
	}

	status := newsnow.StatusSuccess
	if allCache {
		status = newsnow.StatusCache
	}

	return newsnow.AggregatedResult{
		Status:    status,
		SourceIDs: ids,
		UpdatedAt: latest.UnixMilli(),
		Items:     all,
		Total:     total,
	}
}

// rankTimestamp resolves the ordering time for an item: publish date first,
// then a date carried in the extra payload, then the fetch time.
func rankTimestamp(item newsnow.NewsItem, fetchedAt time.Time) time.Time {
	if item.PublishedAt != nil && !item.PublishedAt.IsZero() {
		return item.PublishedAt.Time
	}
	if raw, ok := item.Extra["date"]; ok {
		if t, ok := newsnow.CoerceTime(raw); ok {
			return t
		}
	}
	return fetchedAt
}

func (o *Orchestrator) enqueueWrite(id newsnow.SourceID, items []newsnow.NewsItem) {
	select {
	case o.writeback <- writeJob{id: id, items: items}:
	default:
		slog.Warn("cache write-back queue full, dropping", "source", id)
	}
}

// CacheKey derives the outer response-cache key for a request: the sorted,
// deduplicated id set, plus a cache-busting marker when a forced refresh
// must bypass any cached response.
func CacheKey(ids []newsnow.SourceID, forceFresh bool) string {
	seen := make(map[newsnow.SourceID]bool, len(ids))
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		parts = append(parts, string(id))
	}
	sort.Strings(parts)

	key := strings.Join(parts, ",")
	if forceFresh {
		key += ":" + uuid.NewString()
	}
	return key
}

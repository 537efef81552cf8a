// Package newsnow holds the domain types shared between the API server and
// the local-first client kit, plus the repository surfaces implemented by
// the sqlite layer.
package newsnow

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

// SourceID identifies one upstream source. A sub-source of a parent uses a
// composed id, e.g. "github-trending-today". Lookups always go through the
// catalog first so redirected ids are resolved to their canonical form.
type SourceID string

// NewsItem is a single item produced by a fetcher. Immutable once produced.
type NewsItem struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	MobileURL   string         `json:"mobileUrl,omitempty"`
	PublishedAt *Timestamp     `json:"pubDate,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// CacheEntry is one source's cached fetch result. There is exactly one entry
// per source id and it is overwritten wholesale on each successful fetch.
type CacheEntry struct {
	SourceID  SourceID
	Items     []NewsItem
	UpdatedAt time.Time
}

// AggregatedItem is a NewsItem annotated with where it came from and the
// timestamp the merge step ranked it by.
type AggregatedItem struct {
	NewsItem
	OriginalSourceID   SourceID `json:"originalSourceId"`
	OriginalSourceName string   `json:"originalSourceName"`
	Timestamp          int64    `json:"timestamp"`
}

// Result statuses. StatusCache signals "fresh enough to show, not fresh
// enough to count as just-fetched".
const (
	StatusSuccess = "success"
	StatusCache   = "cache"
)

// AggregatedResult is the transient output of one aggregate call. Total is
// the pre-cap count; len(Items) may be smaller.
type AggregatedResult struct {
	Status    string           `json:"status"`
	SourceIDs []SourceID       `json:"sourceIds"`
	UpdatedAt int64            `json:"updatedTime"`
	Items     []AggregatedItem `json:"items"`
	Total     int              `json:"total"`
}

type (
	// Fetcher is the per-source getter. Implementations live outside the
	// orchestrator and carry their own upstream semantics.
	Fetcher interface {
		Fetch(ctx context.Context, forceFresh bool) ([]NewsItem, error)
	}

	FetcherFunc func(ctx context.Context, forceFresh bool) ([]NewsItem, error)

	// CacheStore is the durable per-source items store. Entries is a single
	// batched read; SetEntry replaces a source's row wholesale.
	CacheStore interface {
		Entries(ctx context.Context, ids []SourceID) (map[SourceID]CacheEntry, error)
		SetEntry(ctx context.Context, id SourceID, items []NewsItem) error
	}

	// SyncStore is the server-side per-user record store. The server
	// persists what the client sends verbatim; the freshness rule is the
	// client's job.
	SyncStore interface {
		Record(ctx context.Context, userID string) (SyncRecord, error)
		SaveRecord(ctx context.Context, userID string, rec SyncRecord) error
		UpdateRecord(ctx context.Context, userID string, args UpdateRecordArgs) error
	}
)

func (f FetcherFunc) Fetch(ctx context.Context, forceFresh bool) ([]NewsItem, error) {
	return f(ctx, forceFresh)
}

// SyncRecord is the wire and storage shape of one user's synced state.
type SyncRecord struct {
	Data            map[CategoryID][]SourceID `json:"data"`
	UpdatedAt       int64                     `json:"updatedTime"`
	AggregatedViews []AggregatedView          `json:"aggregatedViews"`
	PinnedColumns   []CategoryID              `json:"pinnedColumns"`
}

// UpdateRecordArgs holds the optional columns for a partial record update.
type UpdateRecordArgs struct {
	AggregatedViews []AggregatedView
	PinnedColumns   []CategoryID
	UpdatedAt       int64
}

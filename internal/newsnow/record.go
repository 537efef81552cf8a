package newsnow

// CategoryID names one fixed column of the reader, e.g. "tech" or "world".
type CategoryID string

// Action tags who produced a record write.
type Action string

const (
	ActionInit   Action = "init"
	ActionManual Action = "manual"
	ActionSync   Action = "sync"
)

// ConfigRecord is the single local-first document: everything a client needs
// to render its personalized reader. UpdatedAt is a unix-millisecond logical
// clock; a candidate record only replaces the held one when strictly newer.
type ConfigRecord struct {
	UpdatedAt        int64                     `json:"updatedTime"`
	Action           Action                    `json:"action"`
	CategorySources  map[CategoryID][]SourceID `json:"data"`
	PinnedCategories []CategoryID              `json:"pinnedColumns"`
	AggregatedViews  []AggregatedView          `json:"aggregatedViews"`
}

// AggregatedView is a user-defined feed combining several sources.
type AggregatedView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Sources   []SourceID `json:"sources"`
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

// Clone deep-copies the record so callers can hand out or mutate copies
// without aliasing the store's held value.
func (r ConfigRecord) Clone() ConfigRecord {
	out := r
	out.CategorySources = make(map[CategoryID][]SourceID, len(r.CategorySources))
	for cat, ids := range r.CategorySources {
		out.CategorySources[cat] = append([]SourceID(nil), ids...)
	}
	out.PinnedCategories = append([]CategoryID(nil), r.PinnedCategories...)
	out.AggregatedViews = make([]AggregatedView, len(r.AggregatedViews))
	for i, v := range r.AggregatedViews {
		v.Sources = append([]SourceID(nil), v.Sources...)
		out.AggregatedViews[i] = v
	}
	return out
}

// SyncPayload strips the local-only fields down to what travels over the
// sync endpoint. Also what the engine diffs against its baseline.
func (r ConfigRecord) SyncPayload() SyncRecord {
	return SyncRecord{
		Data:            r.CategorySources,
		UpdatedAt:       r.UpdatedAt,
		AggregatedViews: r.AggregatedViews,
		PinnedColumns:   r.PinnedCategories,
	}
}

package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
)

type cacheRow struct {
	SourceID  string `db:"source_id"`
	Items     string `db:"items"`
	UpdatedAt int64  `db:"updated_at"`
}

// Entries is the single batched read the orchestrator makes per aggregate
// call. Missing ids are simply absent from the result.
func (r *Repo) Entries(ctx context.Context, ids []newsnow.SourceID) (map[newsnow.SourceID]newsnow.CacheEntry, error) {
	out := make(map[newsnow.SourceID]newsnow.CacheEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	strIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, string(id))
	}
	query, args, err := sq.Select("source_id", "items", "updated_at").
		From("source_cache").
		Where(sq.Eq{"source_id": strIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var rows []cacheRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching cache entries: %s", err)
	}

	for _, row := range rows {
		var items []newsnow.NewsItem
		if err := json.Unmarshal([]byte(row.Items), &items); err != nil {
			return nil, fmt.Errorf("error decoding cached items for %s: %s", row.SourceID, err)
		}
		id := newsnow.SourceID(row.SourceID)
		out[id] = newsnow.CacheEntry{
			SourceID:  id,
			Items:     items,
			UpdatedAt: time.UnixMilli(row.UpdatedAt),
		}
	}

	return out, nil
}

// SetEntry overwrites a source's row wholesale; there is no partial merge
// at this layer.
func (r *Repo) SetEntry(ctx context.Context, id newsnow.SourceID, items []newsnow.NewsItem) error {
	byts, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("error encoding items: %s", err)
	}

	const q = `INSERT INTO source_cache (source_id, items, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(source_id) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at;`
	if _, err := r.db.ExecContext(ctx, q, string(id), string(byts), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("error writing cache entry: %s", err)
	}

	return nil
}

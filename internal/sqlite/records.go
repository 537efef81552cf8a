package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
)

type recordRow struct {
	UserID          string `db:"user_id"`
	Data            string `db:"data"`
	UpdatedAt       int64  `db:"updated_at"`
	AggregatedViews string `db:"aggregated_views"`
	PinnedColumns   string `db:"pinned_columns"`
}

func (r *Repo) Record(ctx context.Context, userID string) (newsnow.SyncRecord, error) {
	const q = `SELECT user_id, data, updated_at, aggregated_views, pinned_columns FROM sync_records WHERE user_id = ?;`

	var row recordRow
	err := r.db.GetContext(ctx, &row, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return newsnow.SyncRecord{}, newsnow.ErrNotFound
	}
	if err != nil {
		return newsnow.SyncRecord{}, fmt.Errorf("error fetching sync record: %s", err)
	}

	rec := newsnow.SyncRecord{UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal([]byte(row.Data), &rec.Data); err != nil {
		return newsnow.SyncRecord{}, fmt.Errorf("error decoding record data: %s", err)
	}
	if err := json.Unmarshal([]byte(row.AggregatedViews), &rec.AggregatedViews); err != nil {
		return newsnow.SyncRecord{}, fmt.Errorf("error decoding record views: %s", err)
	}
	if err := json.Unmarshal([]byte(row.PinnedColumns), &rec.PinnedColumns); err != nil {
		return newsnow.SyncRecord{}, fmt.Errorf("error decoding record pins: %s", err)
	}

	return rec, nil
}

// SaveRecord persists what the client sent verbatim. The server does not
// apply the freshness rule; the client only pushes when locally newer.
func (r *Repo) SaveRecord(ctx context.Context, userID string, rec newsnow.SyncRecord) error {
	data, views, pins, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	const q = `INSERT INTO sync_records (user_id, data, updated_at, aggregated_views, pinned_columns)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at,
		aggregated_views = excluded.aggregated_views,
		pinned_columns = excluded.pinned_columns;`
	if _, err := r.db.ExecContext(ctx, q, userID, data, rec.UpdatedAt, views, pins); err != nil {
		return fmt.Errorf("error saving sync record: %s", err)
	}

	return nil
}

// UpdateRecord writes only the supplied columns; the view resource
// endpoints use it so a view edit doesn't clobber category data.
func (r *Repo) UpdateRecord(ctx context.Context, userID string, args newsnow.UpdateRecordArgs) error {
	q := sq.Update("sync_records")
	if args.AggregatedViews != nil {
		byts, err := json.Marshal(args.AggregatedViews)
		if err != nil {
			return fmt.Errorf("error encoding views: %s", err)
		}
		q = q.Set("aggregated_views", string(byts))
	}
	if args.PinnedColumns != nil {
		byts, err := json.Marshal(args.PinnedColumns)
		if err != nil {
			return fmt.Errorf("error encoding pins: %s", err)
		}
		q = q.Set("pinned_columns", string(byts))
	}
	if args.UpdatedAt != 0 {
		q = q.Set("updated_at", args.UpdatedAt)
	}
	q = q.Where(sq.Eq{"user_id": userID})

	query, qArgs, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := r.db.ExecContext(ctx, query, qArgs...); err != nil {
		return fmt.Errorf("error executing record update: %s", err)
	}

	return nil
}

func encodeRecord(rec newsnow.SyncRecord) (data, views, pins string, err error) {
	if rec.Data == nil {
		rec.Data = map[newsnow.CategoryID][]newsnow.SourceID{}
	}
	if rec.AggregatedViews == nil {
		rec.AggregatedViews = []newsnow.AggregatedView{}
	}
	if rec.PinnedColumns == nil {
		rec.PinnedColumns = []newsnow.CategoryID{}
	}

	d, err := json.Marshal(rec.Data)
	if err != nil {
		return "", "", "", fmt.Errorf("error encoding record data: %s", err)
	}
	v, err := json.Marshal(rec.AggregatedViews)
	if err != nil {
		return "", "", "", fmt.Errorf("error encoding record views: %s", err)
	}
	p, err := json.Marshal(rec.PinnedColumns)
	if err != nil {
		return "", "", "", fmt.Errorf("error encoding record pins: %s", err)
	}
	return string(d), string(v), string(p), nil
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
)

func testRepo(t *testing.T) *Repo {
	t.Helper()
	dbx, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, Migrate(dbx))
	return New(dbx)
}

func TestCacheRoundTrip(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = testRepo(t)
	)

	published := newsnow.Timestamp{Time: time.UnixMilli(1700000000000)}
	items := []newsnow.NewsItem{
		{ID: "i1", Title: "First", URL: "https://example.com/1", PublishedAt: &published},
		{ID: "i2", Title: "Second", URL: "https://example.com/2"},
	}
	require.NoError(t, repo.SetEntry(ctx, "hackernews", items))

	entries, err := repo.Entries(ctx, []newsnow.SourceID{"hackernews", "missing"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries["hackernews"]
	assert.Equal(t, newsnow.SourceID("hackernews"), entry.SourceID)
	require.Len(t, entry.Items, 2)
	assert.Equal(t, "First", entry.Items[0].Title)
	assert.Equal(t, published.UnixMilli(), entry.Items[0].PublishedAt.UnixMilli())
	assert.WithinDuration(t, time.Now(), entry.UpdatedAt, 5*time.Second)
}

func TestSetEntry_OverwritesWholesale(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = testRepo(t)
	)

	require.NoError(t, repo.SetEntry(ctx, "x", []newsnow.NewsItem{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, repo.SetEntry(ctx, "x", []newsnow.NewsItem{{ID: "c"}}))

	entries, err := repo.Entries(ctx, []newsnow.SourceID{"x"})
	require.NoError(t, err)
	require.Len(t, entries["x"].Items, 1)
	assert.Equal(t, "c", entries["x"].Items[0].ID)
}

func TestEntries_EmptyIDs(t *testing.T) {
	entries, err := testRepo(t).Entries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecord_NotFound(t *testing.T) {
	_, err := testRepo(t).Record(context.Background(), "nobody")
	assert.ErrorIs(t, err, newsnow.ErrNotFound)
}

func TestSaveAndUpdateRecord(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = testRepo(t)
	)

	rec := newsnow.SyncRecord{
		Data:      map[newsnow.CategoryID][]newsnow.SourceID{"tech": {"a", "b"}},
		UpdatedAt: 1000,
		AggregatedViews: []newsnow.AggregatedView{
			{ID: "v1", Name: "Mine", Sources: []newsnow.SourceID{"a"}, CreatedAt: 1, UpdatedAt: 1},
		},
		PinnedColumns: []newsnow.CategoryID{"tech"},
	}
	require.NoError(t, repo.SaveRecord(ctx, "user-1", rec))

	got, err := repo.Record(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Partial update touches only the views column.
	err = repo.UpdateRecord(ctx, "user-1", newsnow.UpdateRecordArgs{
		AggregatedViews: []newsnow.AggregatedView{},
		UpdatedAt:       2000,
	})
	require.NoError(t, err)

	got, err = repo.Record(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, got.AggregatedViews)
	assert.Equal(t, int64(2000), got.UpdatedAt)
	assert.Equal(t, rec.Data, got.Data, "untouched columns keep their values")
	assert.Equal(t, rec.PinnedColumns, got.PinnedColumns)
}

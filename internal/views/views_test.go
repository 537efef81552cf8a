package views

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
	"github.com/Shangzhi-shi/newsnow-fork/internal/store"
)

func testFacade(t *testing.T) (*Facade, *store.Store) {
	t.Helper()
	catalog := sources.NewCatalog(
		"focus",
		[]sources.Category{{ID: "tech", Defaults: []newsnow.SourceID{"a", "b"}}},
		[]sources.Source{
			{ID: "a", Name: "A", RefreshInterval: time.Minute},
			{ID: "b", Name: "B", RefreshInterval: time.Minute},
		},
	)
	kv, err := store.NewFileKV(t.TempDir())
	require.NoError(t, err)
	st, err := store.Open(catalog, kv)
	require.NoError(t, err)
	return New(st), st
}

func errCode(t *testing.T, err error) nnerrs.Code {
	t.Helper()
	var nerr *nnerrs.Error
	require.ErrorAs(t, err, &nerr)
	return nerr.Code
}

func TestCreate(t *testing.T) {
	f, st := testFacade(t)
	before := st.Read().UpdatedAt

	view, err := f.Create("Tech Roundup", []newsnow.SourceID{"a", "b"})
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "Tech Roundup", view.Name)
	assert.Equal(t, view.CreatedAt, view.UpdatedAt)

	rec := st.Read()
	require.Len(t, rec.AggregatedViews, 1)
	assert.Equal(t, newsnow.ActionManual, rec.Action)
	assert.Greater(t, rec.UpdatedAt, before)
}

func TestCreate_NameConflict_ScenarioB(t *testing.T) {
	f, st := testFacade(t)

	_, err := f.Create("Tech Roundup", []newsnow.SourceID{"a"})
	require.NoError(t, err)

	_, err = f.Create("Tech Roundup", []newsnow.SourceID{"b"})
	require.Error(t, err)
	assert.Equal(t, nnerrs.CodeNameConflict, errCode(t, err))
	assert.Len(t, st.Read().AggregatedViews, 1, "collection unchanged on conflict")

	// Case-sensitive: a different casing is a different name.
	_, err = f.Create("tech roundup", []newsnow.SourceID{"b"})
	require.NoError(t, err)
}

func TestCreate_Validation(t *testing.T) {
	f, _ := testFacade(t)

	_, err := f.Create("", nil)
	require.Error(t, err)
	var nerr *nnerrs.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, nnerrs.CodeValidationFailure, nerr.Code)
	assert.Equal(t, http.StatusBadRequest, nerr.Status)
	assert.Len(t, nerr.Details, 2)

	_, err = f.Create(strings.Repeat("x", MaxNameLength+1), []newsnow.SourceID{"a"})
	require.Error(t, err)

	tooMany := make([]newsnow.SourceID, MaxSources+1)
	for i := range tooMany {
		tooMany[i] = "a"
	}
	_, err = f.Create("ok", tooMany)
	require.Error(t, err)
}

func TestUpdate(t *testing.T) {
	f, _ := testFacade(t)
	created, err := f.Create("Original", []newsnow.SourceID{"a"})
	require.NoError(t, err)

	// Partial: only sources change, name stays.
	updated, err := f.Update(created.ID, Update{Sources: []newsnow.SourceID{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "Original", updated.Name)
	assert.Equal(t, []newsnow.SourceID{"a", "b"}, updated.Sources)
	assert.Greater(t, updated.UpdatedAt, created.UpdatedAt)

	// Rename, keeping its own name is allowed.
	same := "Original"
	_, err = f.Update(created.ID, Update{Name: &same})
	require.NoError(t, err)

	// Renaming onto another view's name conflicts.
	_, err = f.Create("Other", []newsnow.SourceID{"b"})
	require.NoError(t, err)
	other := "Other"
	_, err = f.Update(created.ID, Update{Name: &other})
	require.Error(t, err)
	assert.Equal(t, nnerrs.CodeNameConflict, errCode(t, err))
}

func TestUpdate_NotFound(t *testing.T) {
	f, _ := testFacade(t)
	_, err := f.Update("ghost", Update{})
	require.Error(t, err)
	assert.Equal(t, nnerrs.CodeNotFound, errCode(t, err))
}

func TestDelete_ClearsActiveView(t *testing.T) {
	f, st := testFacade(t)
	created, err := f.Create("Doomed", []newsnow.SourceID{"a"})
	require.NoError(t, err)
	require.NoError(t, st.SetActiveView(created.ID))

	require.NoError(t, f.Delete(created.ID))
	assert.Empty(t, st.Read().AggregatedViews)
	assert.Empty(t, st.ActiveView(), "deleting the displayed view clears the selection")

	err = f.Delete(created.ID)
	require.Error(t, err)
	assert.Equal(t, nnerrs.CodeNotFound, errCode(t, err))
}

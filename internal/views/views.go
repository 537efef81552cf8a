// Package views is the mutation façade over aggregated-view definitions.
// All operations are optimistic: they write through the local store
// immediately and ride along on the sync engine's generic debounced push.
// The validation rules here are the same ones the server-side resource
// endpoints enforce.
package views

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/store"
)

const (
	MaxNameLength = 50
	MaxSources    = 100
)

// Facade mutates the store's aggregatedViews collection.
type Facade struct {
	store *store.Store
	now   func() time.Time
}

func New(st *store.Store) *Facade {
	return &Facade{store: st, now: time.Now}
}

// Update holds the optional fields for a partial view update.
type Update struct {
	Name    *string
	Sources []newsnow.SourceID
}

func (f *Facade) List() []newsnow.AggregatedView {
	return f.store.Read().AggregatedViews
}

func (f *Facade) Get(id string) (newsnow.AggregatedView, error) {
	for _, v := range f.store.Read().AggregatedViews {
		if v.ID == id {
			return v, nil
		}
	}
	return newsnow.AggregatedView{}, nnerrs.E(fmt.Sprintf("view %s not found", id), nnerrs.CodeNotFound, http.StatusNotFound)
}

// Create adds a new view and bumps the record as a manual edit.
func (f *Facade) Create(name string, srcs []newsnow.SourceID) (newsnow.AggregatedView, error) {
	if details := Validate(name, srcs); len(details) > 0 {
		return newsnow.AggregatedView{}, nnerrs.E("invalid view", nnerrs.CodeValidationFailure, http.StatusBadRequest, details)
	}

	rec := f.store.Read()
	if err := CheckNameUnique(name, rec.AggregatedViews, ""); err != nil {
		return newsnow.AggregatedView{}, err
	}

	at := nextClock(rec.UpdatedAt, f.now)
	view := newsnow.AggregatedView{
		ID:        uuid.NewString(),
		Name:      name,
		Sources:   append([]newsnow.SourceID(nil), srcs...),
		CreatedAt: at,
		UpdatedAt: at,
	}

	rec.AggregatedViews = append(rec.AggregatedViews, view)
	rec.UpdatedAt = at
	rec.Action = newsnow.ActionManual
	if _, err := f.store.Write(rec); err != nil {
		return newsnow.AggregatedView{}, err
	}
	return view, nil
}

// Update applies a partial change; fields not supplied are left unchanged.
func (f *Facade) Update(id string, upd Update) (newsnow.AggregatedView, error) {
	rec := f.store.Read()

	idx := -1
	for i, v := range rec.AggregatedViews {
		if v.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newsnow.AggregatedView{}, nnerrs.E(fmt.Sprintf("view %s not found", id), nnerrs.CodeNotFound, http.StatusNotFound)
	}

	view := rec.AggregatedViews[idx]
	if upd.Name != nil {
		view.Name = *upd.Name
	}
	if upd.Sources != nil {
		view.Sources = append([]newsnow.SourceID(nil), upd.Sources...)
	}

	if details := Validate(view.Name, view.Sources); len(details) > 0 {
		return newsnow.AggregatedView{}, nnerrs.E("invalid view", nnerrs.CodeValidationFailure, http.StatusBadRequest, details)
	}
	if upd.Name != nil {
		if err := CheckNameUnique(view.Name, rec.AggregatedViews, id); err != nil {
			return newsnow.AggregatedView{}, err
		}
	}

	at := nextClock(rec.UpdatedAt, f.now)
	view.UpdatedAt = at
	rec.AggregatedViews[idx] = view
	rec.UpdatedAt = at
	rec.Action = newsnow.ActionManual
	if _, err := f.store.Write(rec); err != nil {
		return newsnow.AggregatedView{}, err
	}
	return view, nil
}

// Delete removes a view; deleting the currently displayed view also clears
// that selection so nothing references the dead id.
func (f *Facade) Delete(id string) error {
	rec := f.store.Read()

	kept := rec.AggregatedViews[:0:0]
	found := false
	for _, v := range rec.AggregatedViews {
		if v.ID == id {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return nnerrs.E(fmt.Sprintf("view %s not found", id), nnerrs.CodeNotFound, http.StatusNotFound)
	}

	rec.AggregatedViews = kept
	rec.UpdatedAt = nextClock(rec.UpdatedAt, f.now)
	rec.Action = newsnow.ActionManual
	if _, err := f.store.Write(rec); err != nil {
		return err
	}

	if f.store.ActiveView() == id {
		if err := f.store.SetActiveView(""); err != nil {
			return err
		}
	}
	return nil
}

// Validate runs the schema checks shared by the client façade and the
// server resource endpoints.
func Validate(name string, srcs []newsnow.SourceID) []nnerrs.Detail {
	var details []nnerrs.Detail
	if name == "" {
		details = append(details, nnerrs.Detail{Field: "name", Error: "must not be empty"})
	}
	if len(name) > MaxNameLength {
		details = append(details, nnerrs.Detail{Field: "name", Error: fmt.Sprintf("must be %d characters or fewer", MaxNameLength)})
	}
	if len(srcs) == 0 {
		details = append(details, nnerrs.Detail{Field: "sources", Error: "must not be empty"})
	}
	if len(srcs) > MaxSources {
		details = append(details, nnerrs.Detail{Field: "sources", Error: fmt.Sprintf("must have %d entries or fewer", MaxSources)})
	}
	return details
}

// CheckNameUnique enforces case-sensitive name uniqueness among a user's
// views, excluding the record being renamed.
func CheckNameUnique(name string, existing []newsnow.AggregatedView, excludeID string) error {
	for _, v := range existing {
		if v.ID != excludeID && v.Name == name {
			return nnerrs.E(fmt.Sprintf("a view named %q already exists", name), nnerrs.CodeNameConflict, http.StatusConflict)
		}
	}
	return nil
}

// nextClock produces the logical write time: wall-clock ms, bumped past the
// record's current clock when two edits land in the same millisecond.
func nextClock(prev int64, now func() time.Time) int64 {
	at := now().UnixMilli()
	if at <= prev {
		at = prev + 1
	}
	return at
}

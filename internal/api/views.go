package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	goaway "github.com/TwiN/go-away"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/server"
	"github.com/Shangzhi-shi/newsnow-fork/internal/views"
)

// The view resource endpoints operate on the views embedded in the user's
// sync record. They share schema validation with the client façade and add
// a server-only profanity check, since names can end up on shared screens.

func (s *Server) userRecord(r *http.Request) (newsnow.SyncRecord, error) {
	rec, err := s.repo.Record(r.Context(), userID(r.Context()))
	if errors.Is(err, newsnow.ErrNotFound) {
		return newsnow.SyncRecord{
			Data:            map[newsnow.CategoryID][]newsnow.SourceID{},
			AggregatedViews: []newsnow.AggregatedView{},
			PinnedColumns:   []newsnow.CategoryID{},
		}, nil
	}
	return rec, err
}

func (s *Server) getViews(w http.ResponseWriter, r *http.Request) error {
	rec, err := s.userRecord(r)
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, rec.AggregatedViews)
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request) error {
	rec, err := s.userRecord(r)
	if err != nil {
		return err
	}

	id := mux.Vars(r)["viewID"]
	for _, v := range rec.AggregatedViews {
		if v.ID == id {
			return server.WriteJSON(w, http.StatusOK, v)
		}
	}
	return nnerrs.E(fmt.Sprintf("view %s not found", id), nnerrs.CodeNotFound, http.StatusNotFound)
}

type createViewReq struct {
	Name    string             `json:"name"`
	Sources []newsnow.SourceID `json:"sources"`
}

func (v createViewReq) Validate() error {
	details := views.Validate(v.Name, v.Sources)
	if goaway.IsProfane(v.Name) {
		details = append(details, nnerrs.Detail{Field: "name", Error: "contains disallowed language"})
	}
	if len(details) > 0 {
		return nnerrs.E("invalid view", nnerrs.CodeValidationFailure, http.StatusBadRequest, details)
	}
	return nil
}

func (s *Server) postView(w http.ResponseWriter, r *http.Request) error {
	req, err := server.DecodeValid[createViewReq](r.Body)
	if err != nil {
		return err
	}

	rec, err := s.userRecord(r)
	if err != nil {
		return err
	}
	if err := views.CheckNameUnique(req.Name, rec.AggregatedViews, ""); err != nil {
		return err
	}

	at := bumpClock(rec.UpdatedAt)
	view := newsnow.AggregatedView{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Sources:   req.Sources,
		CreatedAt: at,
		UpdatedAt: at,
	}
	rec.AggregatedViews = append(rec.AggregatedViews, view)
	rec.UpdatedAt = at

	// SaveRecord rather than a partial update: the record may not exist yet
	// for this user.
	if err := s.repo.SaveRecord(r.Context(), userID(r.Context()), rec); err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusCreated, view)
}

type updateViewReq struct {
	Name    *string            `json:"name"`
	Sources []newsnow.SourceID `json:"sources"`
}

func (v updateViewReq) Validate() error {
	if v.Name != nil && goaway.IsProfane(*v.Name) {
		return nnerrs.E("invalid view", nnerrs.CodeValidationFailure, http.StatusBadRequest,
			nnerrs.Detail{Field: "name", Error: "contains disallowed language"})
	}
	return nil
}

func (s *Server) putView(w http.ResponseWriter, r *http.Request) error {
	req, err := server.DecodeValid[updateViewReq](r.Body)
	if err != nil {
		return err
	}

	rec, err := s.userRecord(r)
	if err != nil {
		return err
	}

	id := mux.Vars(r)["viewID"]
	idx := -1
	for i, v := range rec.AggregatedViews {
		if v.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nnerrs.E(fmt.Sprintf("view %s not found", id), nnerrs.CodeNotFound, http.StatusNotFound)
	}

	view := rec.AggregatedViews[idx]
	if req.Name != nil {
		view.Name = *req.Name
	}
	if req.Sources != nil {
		view.Sources = req.Sources
	}

	// Validate the merged result, not the partial request.
	if details := views.Validate(view.Name, view.Sources); len(details) > 0 {
		return nnerrs.E("invalid view", nnerrs.CodeValidationFailure, http.StatusBadRequest, details)
	}
	if req.Name != nil {
		if err := views.CheckNameUnique(view.Name, rec.AggregatedViews, id); err != nil {
			return err
		}
	}

	at := bumpClock(rec.UpdatedAt)
	view.UpdatedAt = at
	rec.AggregatedViews[idx] = view

	err = s.repo.UpdateRecord(r.Context(), userID(r.Context()), newsnow.UpdateRecordArgs{
		AggregatedViews: rec.AggregatedViews,
		UpdatedAt:       at,
	})
	if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) deleteView(w http.ResponseWriter, r *http.Request) error {
	rec, err := s.userRecord(r)
	if err != nil {
		return err
	}

	id := mux.Vars(r)["viewID"]
	kept := make([]newsnow.AggregatedView, 0, len(rec.AggregatedViews))
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

	err = s.repo.UpdateRecord(r.Context(), userID(r.Context()), newsnow.UpdateRecordArgs{
		AggregatedViews: kept,
		UpdatedAt:       bumpClock(rec.UpdatedAt),
	})
	if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, struct{}{})
}

// bumpClock keeps record clocks strictly increasing even when two edits
// land in the same millisecond.
func bumpClock(prev int64) int64 {
	at := time.Now().UnixMilli()
	if at <= prev {
		at = prev + 1
	}
	return at
}

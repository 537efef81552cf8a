package api

import (
	"errors"
	"net/http"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/server"
	nnsync "github.com/Shangzhi-shi/newsnow-fork/internal/sync"
)

// writeNotProvisioned emits the distinguished signal clients treat as
// "this deployment has no remote sync", not as a failure.
func writeNotProvisioned(w http.ResponseWriter) error {
	return server.WriteJSON(w, nnsync.NotProvisionedStatus, map[string]string{
		"message": nnsync.NotProvisionedBody,
	})
}

func (s *Server) getSync(w http.ResponseWriter, r *http.Request) error {
	if !s.syncEnabled {
		return writeNotProvisioned(w)
	}

	rec, err := s.repo.Record(r.Context(), userID(r.Context()))
	if errors.Is(err, newsnow.ErrNotFound) {
		// First pull from a device that has never pushed.
		rec = newsnow.SyncRecord{
			Data:            map[newsnow.CategoryID][]newsnow.SourceID{},
			AggregatedViews: []newsnow.AggregatedView{},
			PinnedColumns:   []newsnow.CategoryID{},
		}
	} else if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, rec)
}

type syncReq newsnow.SyncRecord

func (sr syncReq) Validate() error {
	if sr.UpdatedAt <= 0 {
		return nnerrs.E("updatedTime must be a positive timestamp", nnerrs.CodeValidationFailure, http.StatusBadRequest)
	}
	return nil
}

// postSync stores the pushed record verbatim. The client only pushes when
// its copy is newer, so the server does not re-apply the freshness rule.
func (s *Server) postSync(w http.ResponseWriter, r *http.Request) error {
	if !s.syncEnabled {
		return writeNotProvisioned(w)
	}

	req, err := server.DecodeValid[syncReq](r.Body)
	if err != nil {
		return err
	}

	rec := newsnow.SyncRecord(req)
	if err := s.repo.SaveRecord(r.Context(), userID(r.Context()), rec); err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, rec)
}

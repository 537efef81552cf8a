package api

import (
	"net/http"
	"strings"

	"github.com/Shangzhi-shi/newsnow-fork/internal/agg"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/server"
)

// getFeed serves the merged feed for a comma-separated source list. The
// refresh flag bypasses the response cache and forces upstream fetches, but
// only for authenticated callers so anonymous traffic can't hammer the
// upstreams.
func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx = r.Context()
		q   = r.URL.Query()
	)

	var ids []newsnow.SourceID
	for _, part := range strings.Split(q.Get("sources"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, newsnow.SourceID(part))
		}
	}

	force := q.Get("refresh") == "true" && s.identify(r) != ""

	// Cache results under the normalized id set; a forced refresh skips the
	// lookup but still repopulates the entry.
	key := agg.CacheKey(ids, false)
	if !force {
		if resp, ok := s.feedRespCache.Get(key); ok {
			return server.WriteJSON(w, http.StatusOK, resp)
		}
	}

	res, err := s.orch.Aggregate(ctx, ids, force)
	if err != nil {
		return err
	}
	s.feedRespCache.Add(key, res)

	return server.WriteJSON(w, http.StatusOK, res)
}

// Package api is the HTTP server: the aggregated feed endpoint, the sync
// record endpoints, the aggregated-view resource endpoints, and the
// reader-content endpoint.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Shangzhi-shi/newsnow-fork/internal/agg"
	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/server"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
)

const (
	feedCacheSize = 256
	feedCacheTTL  = 5 * time.Minute

	readerCacheSize = 1024
)

type (
	// Server handles feed aggregation requests and the per-user record
	// endpoints the client kit syncs against.
	Server struct {
		*http.Server

		orch    *agg.Orchestrator
		catalog *sources.Catalog
		repo    newsnow.SyncStore

		verifier TokenVerifier

		fetchClient   *http.Client
		feedRespCache *expirable.LRU[string, newsnow.AggregatedResult]
		readerCache   *lru.Cache[string, ReaderResp]

		secureCookie *securecookie.SecureCookie
		httpsCookies bool // Whether or not HTTPS should be used for cookies
		syncEnabled  bool
	}

	Config struct {
		Port           int
		CookieHashKey  []byte
		CookieBlockKey []byte
		HttpsCookies   bool
		CorsHeader     string

		// SyncEnabled gates the /api/me/sync endpoints; when off they answer
		// with the not-provisioned signal instead of an error.
		SyncEnabled bool

		DebugEndpoints bool
	}
)

func NewServer(config Config, orch *agg.Orchestrator, catalog *sources.Catalog, repo newsnow.SyncStore, verifier TokenVerifier) *Server {
	var (
		r              = server.ErrRouter{Router: mux.NewRouter()}
		readerCache, _ = lru.New[string, ReaderResp](readerCacheSize)
	)

	srvr := Server{
		orch:    orch,
		catalog: catalog,
		repo:    repo,

		verifier: verifier,

		fetchClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		feedRespCache: expirable.NewLRU[string, newsnow.AggregatedResult](feedCacheSize, nil, feedCacheTTL),
		readerCache:   readerCache,

		secureCookie: securecookie.New(config.CookieHashKey, config.CookieBlockKey),
		httpsCookies: config.HttpsCookies,
		syncEnabled:  config.SyncEnabled,

		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsHeader}),
				handlers.AllowCredentials(),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type", "authorization"}),
			)(r),
		},
	}

	r.Use(server.AccessLogMiddleware) // Log everything
	r.HandleFuncE("/api/sources", srvr.getSources).Methods(http.MethodGet)
	r.HandleFuncE("/api/feed", srvr.getFeed).Methods(http.MethodGet)

	if config.DebugEndpoints {
		// For local testing
		r.HandleFuncE("/api/login", srvr.handleDebugLogin).Methods(http.MethodPost)
	}

	authed := server.ErrRouter{Router: r.NewRoute().Subrouter()}
	authed.Use(srvr.requireAuth)

	// Sync record
	authed.HandleFuncE("/api/me/sync", srvr.getSync).Methods(http.MethodGet)
	authed.HandleFuncE("/api/me/sync", srvr.postSync).Methods(http.MethodPost)

	// Aggregated views
	authed.HandleFuncE("/api/me/views", srvr.getViews).Methods(http.MethodGet)
	authed.HandleFuncE("/api/me/views", srvr.postView).Methods(http.MethodPost)
	authed.HandleFuncE("/api/me/views/{viewID}", srvr.getView).Methods(http.MethodGet)
	authed.HandleFuncE("/api/me/views/{viewID}", srvr.putView).Methods(http.MethodPut)
	authed.HandleFuncE("/api/me/views/{viewID}", srvr.deleteView).Methods(http.MethodDelete)

	// Reader view
	authed.HandleFuncE("/api/reader-content", srvr.getReaderContent).Methods(http.MethodGet)

	slog.Debug("configured api server", "port", config.Port)

	return &srvr
}

type (
	// CatalogResp describes the fixed categories and their sources for the
	// frontend's settings surface.
	CatalogResp struct {
		Categories []CatalogCategory `json:"categories"`
	}

	CatalogCategory struct {
		ID      newsnow.CategoryID `json:"id"`
		Name    string             `json:"name"`
		Sources []CatalogSource    `json:"sources"`
	}

	CatalogSource struct {
		ID   newsnow.SourceID `json:"id"`
		Name string           `json:"name"`
	}
)

func (s *Server) getSources(w http.ResponseWriter, r *http.Request) error {
	cats := s.catalog.Categories()
	resp := CatalogResp{Categories: make([]CatalogCategory, 0, len(cats))}
	for _, cat := range cats {
		out := CatalogCategory{ID: cat.ID, Name: cat.Name}
		for _, id := range cat.Defaults {
			src, ok := s.catalog.Resolve(id)
			if !ok {
				continue
			}
			out.Sources = append(out.Sources, CatalogSource{ID: src.ID, Name: src.Name})
		}
		resp.Categories = append(resp.Categories, out)
	}

	return server.WriteJSON(w, http.StatusOK, resp)
}

// Newsnow-fork is the news aggregation server.
//
// It merges items from the configured upstream sources into ranked feeds
// and holds the per-user sync records the reader clients converge on.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/Shangzhi-shi/newsnow-fork/internal/agg"
	"github.com/Shangzhi-shi/newsnow-fork/internal/api"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sqlite"
	"github.com/Shangzhi-shi/newsnow-fork/logger"
)

type config struct {
	Port     int    `env:"PORT, default=4444"`
	Database string `env:"DATABASE, required"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	CorsHeader string `env:"CORS_HEADER, default=http://localhost:3000"`

	CookieHashKey  string `env:"COOKIE_HASH_KEY, required"`
	CookieBlockKey string `env:"COOKIE_BLOCK_KEY"`
	HttpsCookies   bool   `env:"HTTPS_COOKIES, default=false"`

	// Bearer tokens mapped to user ids, e.g. "tok1:alice,tok2:bob". Empty
	// leaves token auth off; the debug session login still works.
	AuthTokens map[string]string `env:"AUTH_TOKENS"`

	SyncEnabled    bool `env:"SYNC_ENABLED, default=true"`
	DebugEndpoints bool `env:"DEBUG_ENDPOINTS, default=false"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Local overrides, if present
	_ = godotenv.Load()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "port", cfg.Port, "database", cfg.Database)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}

	// Migrate, always
	if err := sqlite.Migrate(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}
	slog.Info("migrated")

	repo := sqlite.New(dbx)
	catalog, registry := sources.Default()
	orch := agg.New(catalog, registry, repo)

	var blockKey []byte
	if cfg.CookieBlockKey != "" {
		blockKey = []byte(cfg.CookieBlockKey)
	}
	s := api.NewServer(api.Config{
		Port:           cfg.Port,
		CookieHashKey:  []byte(cfg.CookieHashKey),
		CookieBlockKey: blockKey,
		HttpsCookies:   cfg.HttpsCookies,
		CorsHeader:     cfg.CorsHeader,
		SyncEnabled:    cfg.SyncEnabled,
		DebugEndpoints: cfg.DebugEndpoints,
	}, orch, catalog, repo, api.StaticTokens(cfg.AuthTokens))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})

	g.Go(func() error {
		// Drain cache write-backs until shutdown
		if err := orch.Run(gCtx); err != nil {
			return fmt.Errorf("error running orchestrator: %s", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}

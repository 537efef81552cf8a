// Reader is the headless client: it keeps a local-first copy of the user's
// reading configuration, reconciles it with the server when a credential is
// present, and prints the merged feed for a category or aggregated view.
//
// Usage:
//
//	reader                 print the first category's feed
//	reader <category>      print one category's feed
//	reader pin <category>  toggle a category's pinned state
//	reader views           list aggregated views
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
	"github.com/Shangzhi-shi/newsnow-fork/internal/store"
	nnsync "github.com/Shangzhi-shi/newsnow-fork/internal/sync"
	"github.com/Shangzhi-shi/newsnow-fork/internal/views"
	"github.com/Shangzhi-shi/newsnow-fork/logger"
)

type config struct {
	// ConfigDir defaults to the platform config dir under "newsnow".
	ConfigDir string `env:"NEWSNOW_CONFIG_DIR"`

	ServerURL string `env:"NEWSNOW_SERVER, default=http://localhost:4444"`

	// AuthToken is optional; without it the reader is purely local.
	AuthToken string `env:"NEWSNOW_TOKEN"`

	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(logger.NewContextHandler(handler)))

	if err := run(ctx, cfg, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "reader: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, args []string) error {
	dir := cfg.ConfigDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("error locating config dir: %s", err)
		}
		dir = filepath.Join(base, "newsnow")
	}

	kv, err := store.NewFileKV(dir)
	if err != nil {
		return err
	}

	catalog, _ := sources.Default()
	st, err := store.Open(catalog, kv)
	if err != nil {
		return err
	}

	// Reconcile with the server before rendering anything. Failures are
	// logged inside the engine; local state always wins over no state.
	engine := nnsync.New(st, catalog, nnsync.NewMemCredentials(cfg.AuthToken), cfg.ServerURL)
	if err := engine.Pull(ctx); err != nil {
		slog.Warn("continuing with local record", "error", err)
	}

	switch {
	case len(args) == 0:
		return printFeed(ctx, cfg, st, catalog, catalog.Categories()[0].ID)
	case args[0] == "views":
		return printViews(st)
	case args[0] == "pin" && len(args) > 1:
		return togglePin(ctx, st, engine, newsnow.CategoryID(args[1]))
	default:
		return printFeed(ctx, cfg, st, catalog, newsnow.CategoryID(args[0]))
	}
}

func printFeed(ctx context.Context, cfg config, st *store.Store, catalog *sources.Catalog, category newsnow.CategoryID) error {
	ids := st.EffectiveSources(category)
	if len(ids) == 0 {
		return fmt.Errorf("no sources configured for %q", category)
	}

	res, err := fetchFeed(ctx, cfg, ids)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d items, status %s)\n", category, res.Total, res.Status)
	for _, item := range res.Items {
		fmt.Printf("  %-14s %s\n%17s%s\n", item.OriginalSourceName, item.Title, "", item.URL)
	}
	return nil
}

func fetchFeed(ctx context.Context, cfg config, ids []newsnow.SourceID) (newsnow.AggregatedResult, error) {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, string(id))
	}
	u := fmt.Sprintf("%s/api/feed?sources=%s",
		strings.TrimSuffix(cfg.ServerURL, "/"), url.QueryEscape(strings.Join(parts, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return newsnow.AggregatedResult{}, err
	}
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return newsnow.AggregatedResult{}, fmt.Errorf("error fetching feed: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		byts, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return newsnow.AggregatedResult{}, fmt.Errorf("feed request failed with %d: %s", resp.StatusCode, byts)
	}

	var res newsnow.AggregatedResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return newsnow.AggregatedResult{}, fmt.Errorf("error decoding feed: %s", err)
	}
	return res, nil
}

func printViews(st *store.Store) error {
	facade := views.New(st)
	list := facade.List()
	if len(list) == 0 {
		fmt.Println("no aggregated views")
		return nil
	}
	active := st.ActiveView()
	for _, v := range list {
		marker := " "
		if v.ID == active {
			marker = "*"
		}
		parts := make([]string, 0, len(v.Sources))
		for _, id := range v.Sources {
			parts = append(parts, string(id))
		}
		fmt.Printf("%s %s  %s  [%s]\n", marker, v.ID, v.Name, strings.Join(parts, ", "))
	}
	return nil
}

// togglePin flips the pin locally, then pushes the edit straight away: a
// one-shot process can't sit out the usual debounce window.
func togglePin(ctx context.Context, st *store.Store, engine *nnsync.Engine, category newsnow.CategoryID) error {
	applied, err := st.TogglePinned(category, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("edit rejected as stale; pull first")
	}

	engine.PushNow(ctx)
	fmt.Printf("toggled pin on %s\n", category)
	return nil
}

// Package sync reconciles the local config store with the server copy. The
// server never needs to be reachable for local use to function: pulls and
// pushes are opportunistic, credential-gated, and the store's freshness
// rule decides every merge.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
	"github.com/Shangzhi-shi/newsnow-fork/internal/store"
)

const (
	// DefaultDebounce is the quiet window coalescing bursts of local edits
	// into one push.
	DefaultDebounce = 10 * time.Second

	// The distinguished "remote sync not provisioned for this deployment"
	// signal: this exact status plus this body substring is a no-op, never
	// a credential problem.
	NotProvisionedStatus = http.StatusVariantAlsoNegotiates
	NotProvisionedBody   = "sync not provisioned"
)

// Credentials supplies the bearer credential and absorbs invalidation when
// a sync failure indicates the credential has gone bad.
type Credentials interface {
	Token() string
	Invalidate(reason error)
}

// MemCredentials is the in-memory Credentials used by the headless client.
type MemCredentials struct {
	mu    sync.Mutex
	token string
}

func NewMemCredentials(token string) *MemCredentials {
	return &MemCredentials{token: token}
}

func (c *MemCredentials) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *MemCredentials) Invalidate(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return
	}
	c.token = ""
	slog.Warn("sync credential invalidated, re-authentication required", "reason", reason)
}

// Engine runs the pull-once, push-debounced reconciliation loop.
type Engine struct {
	store   *store.Store
	catalog *sources.Catalog
	creds   Credentials

	baseURL  string
	client   *http.Client
	debounce time.Duration

	mu       sync.Mutex
	baseline []byte // serialized snapshot of the last synced state
}

func New(st *store.Store, catalog *sources.Catalog, creds Credentials, baseURL string) *Engine {
	return &Engine{
		store:    st,
		catalog:  catalog,
		creds:    creds,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		debounce: DefaultDebounce,
	}
}

// Run pulls the server record once, then watches the store and pushes
// manual edits after the debounce window. The loop is serial, so at most
// one push is ever in flight; edits landing mid-push re-arm the timer.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Pull(ctx); err != nil {
		slog.Error("error pulling remote record", "error", err)
	}

	var (
		ch     = e.store.Watch()
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-ch:
			if rec.Action != newsnow.ActionManual {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(e.debounce)
				timerC = timer.C
			} else {
				timer.Reset(e.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			e.push(ctx)
		}
	}
}

// Pull fetches the server record and merges it through the store's
// freshness rule. A pulled record older than the local one is silently
// discarded: offline edits with a newer clock win over a stale server copy.
func (e *Engine) Pull(ctx context.Context) error {
	token := e.creds.Token()
	if token == "" {
		return nil
	}

	var remote newsnow.SyncRecord
	status, body, err := e.request(ctx, http.MethodGet, "/api/me/sync", token, nil)
	if err != nil {
		e.creds.Invalidate(err)
		return fmt.Errorf("sync pull failed: %w", err)
	}
	if notProvisioned(status, body) {
		return nil
	}
	if status != http.StatusOK {
		err := fmt.Errorf("sync pull failed with status %d", status)
		e.creds.Invalidate(err)
		return err
	}
	if err := json.Unmarshal(body, &remote); err != nil {
		err := fmt.Errorf("error decoding remote record: %w", err)
		e.creds.Invalidate(err)
		return err
	}

	candidate := store.Preprocess(e.catalog, newsnow.ConfigRecord{
		UpdatedAt:        remote.UpdatedAt,
		Action:           newsnow.ActionSync,
		CategorySources:  remote.Data,
		PinnedCategories: remote.PinnedColumns,
		AggregatedViews:  remote.AggregatedViews,
	})
	applied, err := e.store.Write(candidate)
	if err != nil {
		return fmt.Errorf("error merging remote record: %w", err)
	}
	slog.Info("pulled remote record", "applied", applied, "remote_time", remote.UpdatedAt)

	e.setBaseline(snapshot(e.store.Read()))
	return nil
}

// PushNow pushes immediately, bypassing the debounce window. One-shot
// clients call it before exiting since they never outlive the quiet period.
func (e *Engine) PushNow(ctx context.Context) {
	e.push(ctx)
}

// push sends the full record when it is a manual edit whose content differs
// from the last synced baseline. Failures never roll the local record back.
func (e *Engine) push(ctx context.Context) {
	token := e.creds.Token()
	if token == "" {
		return
	}

	rec := e.store.Read()
	if rec.Action != newsnow.ActionManual {
		return
	}
	snap := snapshot(rec)
	if bytes.Equal(snap, e.getBaseline()) {
		return
	}

	payload, err := json.Marshal(rec.SyncPayload())
	if err != nil {
		slog.Error("error serializing record for push", "error", err)
		return
	}

	status, body, err := e.request(ctx, http.MethodPost, "/api/me/sync", token, payload)
	if err != nil {
		e.creds.Invalidate(err)
		slog.Error("sync push failed", "error", err)
		return
	}
	if notProvisioned(status, body) {
		return
	}
	if status < 200 || status > 299 {
		err := fmt.Errorf("sync push failed with status %d", status)
		e.creds.Invalidate(err)
		slog.Error("sync push failed", "error", err)
		return
	}

	e.setBaseline(snap)
	slog.Info("pushed local record", "updated_time", rec.UpdatedAt)
}

// request performs one authenticated exchange, retrying transport-level
// failures with a short fibonacci backoff.
func (e *Engine) request(ctx context.Context, method, path, token string, payload []byte) (int, []byte, error) {
	var (
		status int
		body   []byte
	)
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return status, body, err
}

func notProvisioned(status int, body []byte) bool {
	return status == NotProvisionedStatus && strings.Contains(string(body), NotProvisionedBody)
}

func (e *Engine) getBaseline() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline
}

func (e *Engine) setBaseline(b []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseline = b
}

// snapshot serializes the syncable content of a record, without its clock,
// for baseline comparison.
func snapshot(rec newsnow.ConfigRecord) []byte {
	byts, err := json.Marshal(struct {
		Data   map[newsnow.CategoryID][]newsnow.SourceID `json:"data"`
		Views  []newsnow.AggregatedView                  `json:"views"`
		Pinned []newsnow.CategoryID                      `json:"pinned"`
	}{
		Data:   rec.CategorySources,
		Views:  rec.AggregatedViews,
		Pinned: rec.PinnedCategories,
	})
	if err != nil {
		return nil
	}
	return byts
}

package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
	"github.com/Shangzhi-shi/newsnow-fork/internal/sources"
	"github.com/Shangzhi-shi/newsnow-fork/internal/store"
)

func testCatalog() *sources.Catalog {
	return sources.NewCatalog(
		"focus",
		[]sources.Category{{ID: "tech", Defaults: []newsnow.SourceID{"a", "b"}}},
		[]sources.Source{
			{ID: "a", Name: "A", RefreshInterval: time.Minute},
			{ID: "b", Name: "B", RefreshInterval: time.Minute},
		},
	)
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	kv, err := store.NewFileKV(t.TempDir())
	require.NoError(t, err)
	st, err := store.Open(testCatalog(), kv)
	require.NoError(t, err)
	return st
}

func testEngine(t *testing.T, st *store.Store, creds Credentials, url string) *Engine {
	t.Helper()
	e := New(st, testCatalog(), creds, url)
	e.debounce = 50 * time.Millisecond
	return e
}

func TestPull_MergesNewerRecord(t *testing.T) {
	st := testStore(t)
	local := st.Read()

	remote := newsnow.SyncRecord{
		Data: map[newsnow.CategoryID][]newsnow.SourceID{
			"tech": {"b"},
		},
		UpdatedAt:     local.UpdatedAt + 1000,
		PinnedColumns: []newsnow.CategoryID{"tech"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(remote)
	}))
	defer srv.Close()

	creds := NewMemCredentials("tok")
	e := testEngine(t, st, creds, srv.URL)
	require.NoError(t, e.Pull(context.Background()))

	got := st.Read()
	assert.Equal(t, remote.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, newsnow.ActionSync, got.Action)
	// Preprocessed on the way in: default b kept, default a appended back.
	assert.Equal(t, []newsnow.SourceID{"b", "a"}, got.CategorySources["tech"])
	assert.Equal(t, []newsnow.CategoryID{"tech"}, got.PinnedCategories)
	assert.Equal(t, "tok", creds.Token(), "successful pull keeps the credential")
}

func TestPull_DiscardsStaleRemote(t *testing.T) {
	st := testStore(t)
	local := st.Read()

	remote := newsnow.SyncRecord{
		Data:      map[newsnow.CategoryID][]newsnow.SourceID{"tech": {"b"}},
		UpdatedAt: local.UpdatedAt - 1000,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remote)
	}))
	defer srv.Close()

	e := testEngine(t, st, NewMemCredentials("tok"), srv.URL)
	require.NoError(t, e.Pull(context.Background()))

	assert.Equal(t, local, st.Read(), "stale server copy must not clobber newer local edits")
}

func TestPull_SkippedWithoutCredential(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	e := testEngine(t, testStore(t), NewMemCredentials(""), srv.URL)
	require.NoError(t, e.Pull(context.Background()))
	assert.Equal(t, int32(0), hits.Load())
}

func TestPull_NotProvisionedIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(NotProvisionedStatus)
		w.Write([]byte(`{"message":"sync not provisioned"}`))
	}))
	defer srv.Close()

	creds := NewMemCredentials("tok")
	e := testEngine(t, testStore(t), creds, srv.URL)
	require.NoError(t, e.Pull(context.Background()))
	assert.Equal(t, "tok", creds.Token(), "not-provisioned must not invalidate the credential")
}

func TestPull_FailureInvalidatesCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := testStore(t)
	before := st.Read()
	creds := NewMemCredentials("tok")
	e := testEngine(t, st, creds, srv.URL)

	require.Error(t, e.Pull(context.Background()))
	assert.Empty(t, creds.Token())
	assert.Equal(t, before, st.Read(), "local record stays intact on sync failure")
}

func TestRun_DebouncedSinglePush_ScenarioD(t *testing.T) {
	var (
		pushes  atomic.Int32
		lastReq atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(newsnow.SyncRecord{})
			return
		}
		pushes.Add(1)
		var rec newsnow.SyncRecord
		json.NewDecoder(r.Body).Decode(&rec)
		lastReq.Store(rec)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := testStore(t)
	creds := NewMemCredentials("tok")
	e := testEngine(t, st, creds, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	// Give Run a moment to pull and subscribe before editing.
	time.Sleep(20 * time.Millisecond)

	// A burst of edits inside the quiet window coalesces into one push.
	at := st.Read().UpdatedAt
	for i := range 3 {
		_, err := st.TogglePinned("tech", at+int64(i)+1)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return pushes.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// And nothing further without new edits.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), pushes.Load())

	got, ok := lastReq.Load().(newsnow.SyncRecord)
	require.True(t, ok)
	assert.Equal(t, []newsnow.CategoryID{"tech"}, got.PinnedColumns, "the final state of the burst is what gets pushed")
	assert.Equal(t, "tok", creds.Token())

	cancel()
	<-done
}

func TestPush_SkippedWhenContentMatchesBaseline(t *testing.T) {
	var pushes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			pushes.Add(1)
		}
		json.NewEncoder(w).Encode(newsnow.SyncRecord{})
	}))
	defer srv.Close()

	st := testStore(t)
	e := testEngine(t, st, NewMemCredentials("tok"), srv.URL)
	require.NoError(t, e.Pull(context.Background()))

	// Bump the clock without changing content: baseline matches, no push.
	rec := st.Read()
	rec.UpdatedAt++
	rec.Action = newsnow.ActionManual
	_, err := st.Write(rec)
	require.NoError(t, err)

	e.push(context.Background())
	assert.Equal(t, int32(0), pushes.Load())
}

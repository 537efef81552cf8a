package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test RSS Feed</title>
    <link>https://example.com</link>
    <item>
      <title>RSS Post &lt;b&gt;One&lt;/b&gt;</title>
      <link>https://example.com/post-1</link>
      <guid>rss-guid-1</guid>
      <pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>RSS Post Two</title>
      <link>https://example.com/post-2</link>
      <pubDate>Tue, 02 Jan 2024 12:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSSFeed))
	}))
	defer srv.Close()

	items, err := NewRSS(srv.URL).Fetch(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "rss-guid-1", items[0].ID)
	assert.Equal(t, "RSS Post One", items[0].Title, "html should be stripped")
	assert.Equal(t, "https://example.com/post-1", items[0].URL)
	require.NotNil(t, items[0].PublishedAt)
	assert.False(t, items[0].PublishedAt.IsZero())

	// Missing guid falls back to the link.
	assert.Equal(t, "https://example.com/post-2", items[1].ID)
}

func TestFetch_ForceFreshSendsNoCache(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Cache-Control")
		w.Write([]byte(testRSSFeed))
	}))
	defer srv.Close()

	_, err := NewRSS(srv.URL).Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "no-cache", gotHeader)
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRSS(srv.URL).Fetch(context.Background(), false)
	require.Error(t, err)
}

// Package fetcher provides the built-in RSS getter used by the default
// catalog. Custom getters only need to satisfy [newsnow.Fetcher].
package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Shangzhi-shi/newsnow-fork/internal/newsnow"
)

// Represents a response from an RSS feed fetch.
type rssFeedResp struct {
	XMLName xml.Name `xml:"rss"`
	Channel []struct {
		Title string `xml:"title"`
		Link  string `xml:"link"`
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			GUID    string `xml:"guid"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

var fetchClient = &http.Client{
	Timeout: time.Second * 3,
}

// RSS fetches items from a single RSS feed url.
type RSS struct {
	url string
}

func NewRSS(url string) RSS {
	return RSS{url: url}
}

func (f RSS) Fetch(ctx context.Context, forceFresh bool) ([]newsnow.NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building feed request: %w", err)
	}
	if forceFresh {
		// Ask intermediaries to skip their copies too.
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error getting feed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var feedResp rssFeedResp
	if err := xml.NewDecoder(resp.Body).Decode(&feedResp); err != nil {
		return nil, fmt.Errorf("error decoding feed: %w", err)
	}

	items := []newsnow.NewsItem{}
	for _, channel := range feedResp.Channel {
		for _, item := range channel.Items {
			id := item.GUID
			if id == "" {
				id = item.Link
			}

			var published *newsnow.Timestamp
			if t, ok := newsnow.CoerceTime(item.PubDate); ok {
				published = &newsnow.Timestamp{Time: t}
			}

			items = append(items, newsnow.NewsItem{
				ID:          id,
				Title:       sanitize(item.Title),
				URL:         item.Link,
				PublishedAt: published,
			})
		}
	}

	return items, nil
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from the string, usually a title.
//
// Also limits the length of the string so there's not a massive chunk of text being output.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = stripPolicy.Sanitize(s)
	if len(s) > 512 {
		s = s[:512]
	}

	return s
}

package api

import (
	"fmt"
	"net/http"
	"net/url"

	readability "github.com/go-shiori/go-readability"
	"github.com/sym01/htmlsanitizer"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
	"github.com/Shangzhi-shi/newsnow-fork/internal/server"
)

type ReaderResp struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// getReaderContent fetches an article and returns a stripped, sanitized
// reading view of it.
func (s *Server) getReaderContent(w http.ResponseWriter, r *http.Request) error {
	raw := r.URL.Query().Get("url")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nnerrs.E("url must be an absolute http or https url", nnerrs.CodeValidationFailure, http.StatusBadRequest)
	}

	// Cache results for less processing and to prevent refetches
	if resp, ok := s.readerCache.Get(u.String()); ok {
		return server.WriteJSON(w, http.StatusOK, resp)
	}

	// Fetch the actual site
	resp, err := s.fetchClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned %d for %s", resp.StatusCode, u)
	}

	// Strip it for readability and sanitize
	parser := readability.NewParser()
	article, err := parser.Parse(resp.Body, u)
	if err != nil {
		return err
	}

	sanitizer := htmlsanitizer.NewHTMLSanitizer()
	contents, err := sanitizer.SanitizeString(article.Content)
	if err != nil {
		return err
	}

	ret := ReaderResp{
		URL:     u.String(),
		Title:   article.Title,
		Content: contents,
	}
	// Add to the cache for next time
	s.readerCache.Add(u.String(), ret)

	return server.WriteJSON(w, http.StatusOK, ret)
}

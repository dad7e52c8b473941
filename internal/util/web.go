// Package util holds the assistant's system and web helpers: web
// search, weather lookup, and launching browsers, applications, and
// shell commands.
package util

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	searchBaseURL  = "https://duckduckgo.com/html/"
	weatherURL     = "https://wttr.in/?format=3"
	youtubeBaseURL = "https://www.youtube.com/results"

	// Some endpoints 403 the default Go user agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// SearchResult is one hit from a web search.
type SearchResult struct {
	Title string
	URL   string
}

// WebClient performs the assistant's outbound HTTP lookups.
type WebClient struct {
	http      *http.Client
	searchURL string
	wttrURL   string
}

// WebOption configures a WebClient.
type WebOption func(*WebClient)

// WithSearchURL overrides the search endpoint.
func WithSearchURL(u string) WebOption {
	return func(w *WebClient) { w.searchURL = u }
}

// WithWeatherURL overrides the weather endpoint.
func WithWeatherURL(u string) WebOption {
	return func(w *WebClient) { w.wttrURL = u }
}

// NewWebClient builds a client with a short timeout; the caller is a
// voice loop and a slow lookup reads as the assistant hanging.
func NewWebClient(opts ...WebOption) *WebClient {
	w := &WebClient{
		http:      &http.Client{Timeout: 5 * time.Second},
		searchURL: searchBaseURL,
		wttrURL:   weatherURL,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Search queries DuckDuckGo's HTML endpoint and scrapes up to n
// results. The endpoint needs no API key.
func (w *WebClient) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	u := w.searchURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return parseSearchResults(string(body), n), nil
}

// parseSearchResults extracts result links from DuckDuckGo's HTML.
// Each hit is an anchor with class "result__a"; the markup is stable
// enough that a scanner beats pulling in a full HTML parser.
func parseSearchResults(page string, n int) []SearchResult {
	var results []SearchResult
	rest := page
	for len(results) < n {
		idx := strings.Index(rest, `class="result__a"`)
		if idx < 0 {
			break
		}
		// Walk back to the opening tag to find href.
		open := strings.LastIndex(rest[:idx], "<a")
		if open < 0 {
			rest = rest[idx+1:]
			continue
		}
		tagEnd := strings.Index(rest[idx:], ">")
		if tagEnd < 0 {
			break
		}
		tag := rest[open : idx+tagEnd]
		href := extractAttr(tag, "href")

		after := rest[idx+tagEnd+1:]
		close := strings.Index(after, "</a>")
		if close < 0 {
			break
		}
		title := html.UnescapeString(stripTags(after[:close]))
		rest = after[close+4:]

		href = resolveRedirect(href)
		title = strings.TrimSpace(title)
		if href == "" || title == "" {
			continue
		}
		results = append(results, SearchResult{Title: title, URL: href})
	}
	return results
}

func extractAttr(tag, name string) string {
	marker := name + `="`
	i := strings.Index(tag, marker)
	if i < 0 {
		return ""
	}
	rest := tag[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		return ""
	}
	return html.UnescapeString(rest[:j])
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links to the
// destination URL.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if dest, err := url.QueryUnescape(target); err == nil {
			return dest
		}
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}

// Weather fetches a one-line current-conditions summary from wttr.in,
// keyed off the caller's IP. Returns text ready to be spoken.
func (w *WebClient) Weather(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.wttrURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("weather: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// YouTubeSearchURL builds a results-page link for a spoken query.
func YouTubeSearchURL(query string) string {
	return youtubeBaseURL + "?search_query=" + url.QueryEscape(query)
}

// OpenURL launches the default browser on the given URL. A bare
// domain gets an https scheme first.
func OpenURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open url: %w", err)
	}
	// Detach; the browser outlives us.
	go func() { _ = cmd.Wait() }()
	return nil
}

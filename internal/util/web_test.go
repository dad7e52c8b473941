package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const samplePage = `<html><body>
<div class="result">
  <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc">The Go Programming Language</a>
  <a class="result__snippet" href="#">Go is an open source language</a>
</div>
<div class="result">
  <a rel="nofollow" class="result__a" href="https://example.com/tour">A Tour of <b>Go</b></a>
</div>
<div class="result">
  <a rel="nofollow" class="result__a" href="https://example.com/amp">Tips &amp; Tricks</a>
</div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	results := parseSearchResults(samplePage, 10)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %v", len(results), results)
	}

	if results[0].Title != "The Go Programming Language" {
		t.Errorf("title[0] = %q", results[0].Title)
	}
	if results[0].URL != "https://go.dev/" {
		t.Errorf("redirect not unwrapped: %q", results[0].URL)
	}
	if results[1].Title != "A Tour of Go" {
		t.Errorf("nested tags not stripped: %q", results[1].Title)
	}
	if results[2].Title != "Tips & Tricks" {
		t.Errorf("entities not unescaped: %q", results[2].Title)
	}
}

func TestParseSearchResultsLimit(t *testing.T) {
	if got := len(parseSearchResults(samplePage, 2)); got != 2 {
		t.Fatalf("expected 2 results, got %d", got)
	}
	if got := len(parseSearchResults("<html><body>no hits</body></html>", 5)); got != 0 {
		t.Fatalf("expected no results, got %d", got)
	}
}

func TestSearchAgainstServer(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		io.WriteString(w, samplePage)
	}))
	defer srv.Close()

	w := NewWebClient(WithSearchURL(srv.URL))
	results, err := w.Search(context.Background(), "go tutorials", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "go tutorials" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestSearchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWebClient(WithSearchURL(srv.URL))
	if _, err := w.Search(context.Background(), "anything", 3); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Paris: Sunny +22°C")
	}))
	defer srv.Close()

	w := NewWebClient(WithWeatherURL(srv.URL))
	report, err := w.Weather(context.Background())
	if err != nil {
		t.Fatalf("weather: %v", err)
	}
	if report != "Paris: Sunny +22°C" {
		t.Fatalf("report = %q", report)
	}
}

func TestResolveRedirect(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=abc", "https://go.dev/"},
		{"https://example.com/page", "https://example.com/page"},
		{"//example.com/schemeless", "https://example.com/schemeless"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := resolveRedirect(tc.in); got != tc.want {
			t.Errorf("resolveRedirect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestYouTubeSearchURL(t *testing.T) {
	got := YouTubeSearchURL("lofi hip hop")
	want := "https://www.youtube.com/results?search_query=lofi+hip+hop"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

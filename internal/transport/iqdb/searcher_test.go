package iqdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kailas-cloud/saucebot/internal/domain"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

func page(bestMatch string) string {
	return `<html><body><div id="pages">
<div><table><tr><th>Your image</th></tr><tr><td><img src="/thu/x.jpg"></td></tr></table></div>
<div>` + bestMatch + `</div>
<div><table><tr><th>Additional match</th></tr><tr><td><a href="//other.example/2">x</a></td></tr></table></div>
</div></body></html>`
}

const bestMatchTable = `<table>
<tr><th>Best match</th></tr>
<tr><td class="image"><a href="//danbooru.donmai.us/posts/42"><img src="/danbooru/x.jpg"></a></td></tr>
<tr><td>Danbooru</td></tr>
<tr><td>850×1200 [Safe]</td></tr>
<tr><td>93% similarity</td></tr>
</table>`

type request struct {
	query string
	ua    string
}

func newTestSearcher(t *testing.T, status int, body string, minSimilarity float64) (*Searcher, <-chan request) {
	t.Helper()
	requests := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case requests <- request{query: r.URL.Query().Get("url"), ua: r.Header.Get("User-Agent")}:
		default:
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, MinSimilarity: minSimilarity}), requests
}

func TestSearch_BestMatch(t *testing.T) {
	s, requests := newTestSearcher(t, http.StatusOK, page(bestMatchTable), 80)

	img, err := s.Search(context.Background(), "https://img.example/a.jpg?s=1")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if img == nil {
		t.Fatal("expected a result")
	}
	if img.URL() != "https://danbooru.donmai.us/posts/42" {
		t.Errorf("url = %q", img.URL())
	}
	if got := img.Metadata()[source.MetaSimilarity]; got != "93%" {
		t.Errorf("similarity = %q", got)
	}

	req := <-requests
	if req.query != "https://img.example/a.jpg?s=1" {
		t.Errorf("url param = %q", req.query)
	}
	if req.ua != defaultUserAgent {
		t.Errorf("user agent = %q", req.ua)
	}
}

func TestSearch_NotFound(t *testing.T) {
	tests := []struct {
		name          string
		bestMatch     string
		minSimilarity float64
	}{
		{"no relevant matches", `<table><tr><th>No relevant matches</th></tr></table>`, 0},
		{"below threshold", bestMatchTable, 95},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestSearcher(t, http.StatusOK, page(tc.bestMatch), tc.minSimilarity)
			img, err := s.Search(context.Background(), "https://img.example/a.jpg")
			if err != nil {
				t.Fatalf("expected not found, got %v", err)
			}
			if img != nil {
				t.Fatalf("expected nil image, got %q", img.URL())
			}
		})
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"upstream 503", http.StatusServiceUnavailable, "busy", domain.ErrRequestFailed},
		{"no pages container", http.StatusOK, "<html><body>Upload failed</body></html>", domain.ErrSourceNotLocatable},
		{"best match without link", http.StatusOK,
			page(`<table><tr><th>Best match</th></tr><tr><td>gone</td></tr></table>`), domain.ErrSourceNotLocatable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestSearcher(t, tc.status, tc.body, 0)
			img, err := s.Search(context.Background(), "https://img.example/a.jpg")
			if img != nil {
				t.Errorf("expected nil image")
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

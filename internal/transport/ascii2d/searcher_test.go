package ascii2d

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/saucebot/internal/domain"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

const resultPage = `<html><body>
<div class="item-box"><div class="detail-box">query image</div></div>
<div class="item-box">
  <div class="detail-box">
    <h6><a href="https://www.pixiv.net/artworks/12345">Some title</a>
    <a href="https://www.pixiv.net/users/1"> Alice </a></h6>
  </div>
</div>
<div class="item-box">
  <div class="detail-box"><a href="https://twitter.com/x/status/1">later</a></div>
</div>
</body></html>`

func newTestSearcher(t *testing.T, h http.HandlerFunc) *Searcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, UserAgent: "test"})
}

func TestSearch_Found(t *testing.T) {
	paths := make(chan string, 1)
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.EscapedPath()
		_, _ = w.Write([]byte(resultPage))
	})

	img, err := s.Search(context.Background(), "https://img.example/a.jpg")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if img == nil {
		t.Fatal("expected a result")
	}
	if img.URL() != "https://www.pixiv.net/artworks/12345" {
		t.Errorf("url = %q", img.URL())
	}
	if img.Searcher() != Name {
		t.Errorf("searcher = %q", img.Searcher())
	}
	if got := img.Metadata()[source.MetaAuthor]; got != "Alice" {
		t.Errorf("author = %q, want Alice", got)
	}
	gotPath := <-paths
	if !strings.HasPrefix(gotPath, "/search/url/") || strings.Contains(gotPath[len("/search/url/"):], "/") {
		t.Errorf("image url not path-escaped: %q", gotPath)
	}
}

func TestSearch_RelativeLinkAndNoAuthor(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div class="item-box"></div>
<div class="item-box"><div class="detail-box"><a href="//seiga.example/im1">x</a></div></div>`))
	})

	img, err := s.Search(context.Background(), "https://img.example/a.jpg")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if img.URL() != "https://seiga.example/im1" {
		t.Errorf("url = %q", img.URL())
	}
	if _, ok := img.Metadata()[source.MetaAuthor]; ok {
		t.Error("author must be absent")
	}
}

func TestSearch_SkipsResultBoxWithoutLink(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div class="item-box">query</div>
<div class="item-box"><div class="detail-box">no link here</div></div>
<div class="item-box"><div class="detail-box">
  <a href="https://www.pixiv.net/artworks/42">art</a><a href="https://www.pixiv.net/users/7">Bob</a>
</div></div>`))
	})

	img, err := s.Search(context.Background(), "https://img.example/a.jpg")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if img.URL() != "https://www.pixiv.net/artworks/42" {
		t.Errorf("url = %q", img.URL())
	}
	if got := img.Metadata()[source.MetaAuthor]; got != "Bob" {
		t.Errorf("author = %q", got)
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"upstream 500", http.StatusInternalServerError, "boom", domain.ErrRequestFailed},
		{"no result box", http.StatusOK, `<div class="item-box">only query</div>`, domain.ErrSourceNotLocatable},
		{"link without href", http.StatusOK,
			`<div class="item-box"></div><div class="item-box"><div class="detail-box"><a>x</a></div></div>`,
			domain.ErrSourceNotLocatable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			img, err := s.Search(context.Background(), "https://img.example/a.jpg")
			if img != nil {
				t.Errorf("expected nil image, got %v", img.URL())
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			var se *domain.SearchError
			if !errors.As(err, &se) || se.Searcher != Name || se.Body != tc.body {
				t.Errorf("unexpected search error: %+v", se)
			}
		})
	}
}

func TestSearch_ContextCanceled(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(resultPage))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, "https://img.example/a.jpg")
	if !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("expected request failure, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

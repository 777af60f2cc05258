// Package ascii2d implements the ascii2d.net reverse image searcher.
package ascii2d

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/kailas-cloud/saucebot/internal/domain"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
	"github.com/kailas-cloud/saucebot/internal/transport/scrape"
)

// Name is the searcher identity reported in results.
const Name = "ascii2d"

const (
	defaultBaseURL = "https://ascii2d.net"
	defaultTimeout = 15 * time.Second
)

var (
	// The first box holds the query image; results follow it.
	resultBoxSel  = cascadia.MustCompile(".item-box ~ .item-box")
	detailLinkSel = cascadia.MustCompile(".detail-box a")
)

// Config holds ascii2d client settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Searcher queries ascii2d by image URL.
type Searcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// New creates an ascii2d searcher.
func New(cfg Config) *Searcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Searcher{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns "ascii2d".
func (s *Searcher) Name() string { return Name }

// Search looks up imageURL. The first result box after the query box that
// carries a detail link is taken as the source: its first detail link is the
// URL, the second one names the author.
func (s *Searcher) Search(ctx context.Context, imageURL string) (*source.Image, error) {
	target := s.baseURL + "/search/url/" + url.PathEscape(imageURL)

	body, err := scrape.Get(ctx, s.client, target, s.userAgent)
	if err != nil {
		var se *scrape.StatusError
		if errors.As(err, &se) {
			return nil, domain.NewSearchError(Name, imageURL, domain.RequestFailed, se.Body, err)
		}
		return nil, domain.NewSearchError(Name, imageURL, domain.RequestFailed, nil, err)
	}

	doc, err := scrape.Parse(body)
	if err != nil {
		return nil, domain.NewSearchError(Name, imageURL, domain.ResponseUnparseable, body, err)
	}

	var links []*html.Node
	var href string
	for _, box := range scrape.All(doc, resultBoxSel) {
		links = scrape.All(box, detailLinkSel)
		if len(links) > 0 {
			if href = scrape.Attr(links[0], "href"); href != "" {
				break
			}
		}
	}
	if href == "" {
		return nil, domain.NewSearchError(Name, imageURL, domain.SourceNotLocatable, body, nil)
	}

	md := map[string]string{}
	if len(links) > 1 {
		if author := scrape.Text(links[1]); author != "" {
			md[source.MetaAuthor] = author
		}
	}
	img := source.New(scrape.AbsoluteURL(s.baseURL, href), Name, md)
	return &img, nil
}

// Package iqdb implements the iqdb.org multi-booru searcher.
package iqdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"

	"github.com/kailas-cloud/saucebot/internal/domain"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
	"github.com/kailas-cloud/saucebot/internal/transport/scrape"
)

// Name is the searcher identity reported in results.
const Name = "iqdb"

const (
	defaultBaseURL = "https://iqdb.org"
	defaultTimeout = 20 * time.Second
	// iqdb rejects requests without a browser-like agent.
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/102.0.0.0 Safari/537.36"
	noMatchText = "No relevant matches"
)

var (
	// The first table is the uploaded image; the second is the best match.
	bestMatchSel = cascadia.MustCompile("#pages > div + div")
	linkSel      = cascadia.MustCompile("tr:nth-of-type(2) a")
	similarityRe = regexp.MustCompile(`(\d+(?:\.\d+)?)% similarity`)
)

// Config holds iqdb client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	UserAgent     string
	MinSimilarity float64 // percent; 0 accepts any best match
}

// Searcher queries iqdb by image URL.
type Searcher struct {
	baseURL       string
	userAgent     string
	minSimilarity float64
	client        *http.Client
}

// New creates an iqdb searcher.
func New(cfg Config) *Searcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Searcher{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:     cfg.UserAgent,
		minSimilarity: cfg.MinSimilarity,
		client:        &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns "iqdb".
func (s *Searcher) Name() string { return Name }

// Search looks up imageURL and returns the best match.
func (s *Searcher) Search(ctx context.Context, imageURL string) (*source.Image, error) {
	target := s.baseURL + "/?url=" + url.QueryEscape(imageURL)

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

	best := scrape.First(doc, bestMatchSel)
	if best == nil {
		return nil, domain.NewSearchError(Name, imageURL, domain.SourceNotLocatable, body, nil)
	}
	text := scrape.Text(best)
	if strings.Contains(text, noMatchText) {
		return nil, nil
	}

	md := map[string]string{}
	if m := similarityRe.FindStringSubmatch(text); m != nil {
		similarity, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, domain.NewSearchError(Name, imageURL, domain.ResponseUnparseable, body,
				fmt.Errorf("similarity %q: %w", m[1], err))
		}
		if similarity < s.minSimilarity {
			return nil, nil
		}
		md[source.MetaSimilarity] = m[1] + "%"
	}

	href := scrape.Attr(scrape.First(best, linkSel), "href")
	if href == "" {
		return nil, domain.NewSearchError(Name, imageURL, domain.SourceNotLocatable, body, nil)
	}
	img := source.New(scrape.AbsoluteURL(s.baseURL, href), Name, md)
	return &img, nil
}

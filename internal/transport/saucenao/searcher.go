// Package saucenao implements the SauceNAO JSON API searcher.
package saucenao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/saucebot/internal/domain"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
	"github.com/kailas-cloud/saucebot/internal/transport/scrape"
)

// Name is the searcher identity reported in results.
const Name = "saucenao"

const (
	defaultBaseURL = "https://saucenao.com"
	defaultTimeout = 15 * time.Second
)

// Config holds SauceNAO client settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	UserAgent     string
	MinSimilarity float64 // percent; 0 accepts any best match
}

// Searcher queries the SauceNAO search API.
type Searcher struct {
	baseURL       string
	apiKey        string
	userAgent     string
	minSimilarity float64
	client        *http.Client
}

// New creates a SauceNAO searcher.
func New(cfg Config) *Searcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Searcher{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		userAgent:     cfg.UserAgent,
		minSimilarity: cfg.MinSimilarity,
		client:        &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns "saucenao".
func (s *Searcher) Name() string { return Name }

// searchResponse is the output_type=2 envelope. Header.Status is 0 on
// success, negative for client-side errors and positive for server-side ones.
type searchResponse struct {
	Header struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"header"`
	Results *[]searchResult `json:"results"`
}

type searchResult struct {
	Header struct {
		Similarity string `json:"similarity"`
	} `json:"header"`
	Data struct {
		ExtURLs    []string        `json:"ext_urls"`
		Title      string          `json:"title"`
		AuthorName string          `json:"author_name"`
		MemberName string          `json:"member_name"`
		Creator    json.RawMessage `json:"creator"` // string or array of strings
	} `json:"data"`
}

// Search looks up imageURL and keeps the best result if it is similar enough
// and links to at least one external page.
func (s *Searcher) Search(ctx context.Context, imageURL string) (*source.Image, error) {
	q := url.Values{}
	q.Set("db", "999")
	q.Set("numres", "3")
	q.Set("output_type", "2")
	q.Set("api_key", s.apiKey)
	q.Set("url", imageURL)

	body, err := scrape.Get(ctx, s.client, s.baseURL+"/search.php?"+q.Encode(), s.userAgent)
	if err != nil {
		var se *scrape.StatusError
		if errors.As(err, &se) {
			return nil, domain.NewSearchError(Name, imageURL, domain.RequestFailed, se.Body, err)
		}
		return nil, domain.NewSearchError(Name, imageURL, domain.RequestFailed, nil, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewSearchError(Name, imageURL, domain.ResponseUnparseable, body, err)
	}
	if resp.Header.Status != 0 {
		return nil, domain.NewSearchError(Name, imageURL, domain.RequestFailed, body,
			fmt.Errorf("status %d: %s", resp.Header.Status, resp.Header.Message))
	}
	if resp.Results == nil {
		return nil, domain.NewSearchError(Name, imageURL, domain.ResponseUnparseable, body,
			errors.New("results missing"))
	}
	if len(*resp.Results) == 0 {
		return nil, nil
	}

	best := (*resp.Results)[0]
	similarity, err := strconv.ParseFloat(strings.TrimSpace(best.Header.Similarity), 64)
	if err != nil {
		return nil, domain.NewSearchError(Name, imageURL, domain.ResponseUnparseable, body,
			fmt.Errorf("similarity %q: %w", best.Header.Similarity, err))
	}
	if similarity < s.minSimilarity || len(best.Data.ExtURLs) == 0 || best.Data.ExtURLs[0] == "" {
		return nil, nil
	}

	md := map[string]string{
		source.MetaSimilarity: strconv.FormatFloat(similarity, 'f', -1, 64) + "%",
	}
	if author := best.author(); author != "" {
		md[source.MetaAuthor] = author
	}
	if best.Data.Title != "" {
		md[source.MetaTitle] = best.Data.Title
	}
	img := source.New(scrape.AbsoluteURL(s.baseURL, best.Data.ExtURLs[0]), Name, md)
	return &img, nil
}

// author picks the first populated attribution field. Index-specific fields
// differ between databases.
func (r *searchResult) author() string {
	if r.Data.AuthorName != "" {
		return r.Data.AuthorName
	}
	if r.Data.MemberName != "" {
		return r.Data.MemberName
	}
	if len(r.Data.Creator) == 0 {
		return ""
	}
	var one string
	if err := json.Unmarshal(r.Data.Creator, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(r.Data.Creator, &many); err == nil {
		return strings.Join(many, ", ")
	}
	return ""
}

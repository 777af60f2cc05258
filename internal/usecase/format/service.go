// Package format renders provenance results as chat reply text.
package format

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

// Default reply texts.
const (
	DefaultNotFoundText = "并没有找到出处"
	DefaultHeaderText   = "找到了 %d 个出处"
	DefaultMirrorHost   = "pixiv.re"
)

// Config holds the reply texts.
type Config struct {
	NotFoundText string
	HeaderText   string // printf pattern with one %d for the result count
	MirrorHost   string
}

// Service renders results. It is stateless and safe for concurrent use.
type Service struct {
	notFound   string
	header     string
	mirrorHost string
}

// New creates a formatter, filling empty settings with defaults.
func New(cfg Config) *Service {
	if cfg.NotFoundText == "" {
		cfg.NotFoundText = DefaultNotFoundText
	}
	if cfg.HeaderText == "" {
		cfg.HeaderText = DefaultHeaderText
	}
	if cfg.MirrorHost == "" {
		cfg.MirrorHost = DefaultMirrorHost
	}
	return &Service{notFound: cfg.NotFoundText, header: cfg.HeaderText, mirrorHost: cfg.MirrorHost}
}

// Format renders images as one reply. No images yields the not-found text.
func (s *Service) Format(images []source.Image) string {
	if len(images) == 0 {
		return s.notFound
	}

	var sb strings.Builder
	sb.WriteString(s.headerLine(len(images)))
	for i := range images {
		img := &images[i]
		fmt.Fprintf(&sb, "\n\n[%d] %s", i+1, img.Searcher())
		for _, f := range img.SortedMetadata() {
			fmt.Fprintf(&sb, "\n%s：%s", f.Key, f.Value)
		}
		sb.WriteString("\n")
		sb.WriteString(img.URL())
		if id, ok := PixivArtworkID(img.URL()); ok {
			fmt.Fprintf(&sb, "\nhttps://%s/%s.jpg", s.mirrorHost, id)
		}
	}
	return sb.String()
}

func (s *Service) headerLine(n int) string {
	if !strings.Contains(s.header, "%d") {
		return s.header
	}
	return fmt.Sprintf(s.header, n)
}

// PixivArtworkID extracts the artwork id from a pixiv URL, either from the
// illust_id query parameter or an /artworks/<id> path.
func PixivArtworkID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if host := u.Hostname(); host != "pixiv.net" && !strings.HasSuffix(host, ".pixiv.net") {
		return "", false
	}
	if id := u.Query().Get("illust_id"); isNumeric(id) {
		return id, true
	}
	segs := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	if n := len(segs); n >= 2 && segs[n-2] == "artworks" && isNumeric(segs[n-1]) {
		return segs[n-1], true
	}
	return "", false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

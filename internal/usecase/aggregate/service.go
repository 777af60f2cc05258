// Package aggregate fans a source lookup out to every configured searcher.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/saucebot/internal/domain/source"
	"github.com/kailas-cloud/saucebot/internal/metrics"
)

// Service queries all searchers concurrently and collects what they found.
type Service struct {
	searchers []Searcher
	logger    *zap.Logger
}

// New creates an aggregator. Results keep the order of searchers.
func New(logger *zap.Logger, searchers ...Searcher) *Service {
	return &Service{searchers: searchers, logger: logger}
}

// Searchers returns the registered backend names in registration order.
func (s *Service) Searchers() []string {
	names := make([]string, len(s.searchers))
	for i, sr := range s.searchers {
		names[i] = sr.Name()
	}
	return names
}

// SearchImage asks every searcher about imageURL and returns the found sources
// in registration order. Failures and misses are logged, never returned; an
// empty slice means nobody knew the image.
func (s *Service) SearchImage(ctx context.Context, imageURL string) []source.Image {
	outcomes := make([]source.Outcome, len(s.searchers))

	// Workers never return an error so one failing backend cannot cancel the rest.
	var g errgroup.Group
	for i, sr := range s.searchers {
		g.Go(func() error {
			outcomes[i] = s.run(ctx, sr, imageURL)
			return nil
		})
	}
	_ = g.Wait()

	found := make([]source.Image, 0, len(outcomes))
	for i := range outcomes {
		o := &outcomes[i]
		switch o.Kind() {
		case source.Found:
			found = append(found, o.Image())
		case source.NotFound:
			s.logger.Info("No source found",
				zap.String("searcher", o.Searcher()),
				zap.String("image_url", imageURL),
			)
		case source.Failed:
			s.logger.Warn("Searcher failed",
				zap.String("searcher", o.Searcher()),
				zap.String("image_url", imageURL),
				zap.Error(o.Err()),
			)
		}
	}
	return found
}

func (s *Service) run(ctx context.Context, sr Searcher, imageURL string) (out source.Outcome) {
	name := sr.Name()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = source.NewOutcome(name, nil, fmt.Errorf("searcher panicked: %v", r))
		}
		metrics.SearchRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		metrics.SearchRequestsTotal.WithLabelValues(name, string(out.Kind())).Inc()
	}()

	img, err := sr.Search(ctx, imageURL)
	return source.NewOutcome(name, img, err)
}

package aggregate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/saucebot/internal/domain"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
	"github.com/kailas-cloud/saucebot/internal/metrics"
)

// defaultMaxWait caps the time a call may queue for a rate-limit token.
const defaultMaxWait = 15 * time.Second

// Instrumented wraps a Searcher with a token-bucket limiter, debug logging
// and per-kind error metrics.
type Instrumented struct {
	inner   Searcher
	limiter *rate.Limiter
	maxWait time.Duration
	logger  *zap.Logger
}

// NewInstrumented wraps inner. ratePerSec <= 0 disables throttling.
func NewInstrumented(inner Searcher, ratePerSec float64, burst int, logger *zap.Logger) *Instrumented {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Instrumented{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		maxWait: defaultMaxWait,
		logger:  logger,
	}
}

// WithMaxWait sets how long a call may wait for a token before it fails
// as RequestFailed. Non-positive values keep the default.
func (s *Instrumented) WithMaxWait(d time.Duration) *Instrumented {
	if d > 0 {
		s.maxWait = d
	}
	return s
}

// Name returns the wrapped searcher's name.
func (s *Instrumented) Name() string { return s.inner.Name() }

// Search waits up to maxWait for a rate-limit token, then delegates.
func (s *Instrumented) Search(ctx context.Context, imageURL string) (*source.Image, error) {
	name := s.inner.Name()

	waitCtx, cancel := context.WithTimeout(ctx, s.maxWait)
	err := s.limiter.Wait(waitCtx)
	cancel()
	if err != nil {
		metrics.SearchErrorsTotal.WithLabelValues(name, domain.RequestFailed.String()).Inc()
		return nil, domain.NewSearchError(name, imageURL, domain.RequestFailed, nil, err)
	}

	start := time.Now()
	img, err := s.inner.Search(ctx, imageURL)
	duration := time.Since(start)

	if err != nil {
		kind := domain.SearchErrorKindOf(err)
		metrics.SearchErrorsTotal.WithLabelValues(name, kind.String()).Inc()
		s.logger.Debug("Search request failed",
			zap.String("searcher", name),
			zap.String("image_url", imageURL),
			zap.String("error_type", kind.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Debug("Search request completed",
		zap.String("searcher", name),
		zap.String("image_url", imageURL),
		zap.Bool("found", img != nil),
		zap.Duration("duration", duration),
	)
	return img, nil
}

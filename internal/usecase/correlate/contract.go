package correlate

import (
	"context"

	"github.com/kailas-cloud/saucebot/internal/domain/message"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

// CorrelationStore remembers which image a message carried.
type CorrelationStore interface {
	Put(ctx context.Context, messageID int64, imageURL string) error
	Get(ctx context.Context, messageID int64) (string, bool, error)
}

// Aggregator resolves image provenance across all searchers.
type Aggregator interface {
	SearchImage(ctx context.Context, imageURL string) []source.Image
}

// Formatter renders results as reply text.
type Formatter interface {
	Format(images []source.Image) string
}

// Classifier decides what role a message plays.
type Classifier interface {
	Classify(text string) message.Classification
}

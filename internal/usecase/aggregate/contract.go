package aggregate

import (
	"context"

	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

// Searcher is a reverse image search backend.
// A nil image with a nil error means the backend found no source.
type Searcher interface {
	Name() string
	Search(ctx context.Context, imageURL string) (*source.Image, error)
}

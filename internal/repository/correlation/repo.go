package correlation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/saucebot/internal/db"
)

// KeyPrefix namespaces correlation entries: "image_url:" + message id.
const KeyPrefix = "image_url:"

// store is the consumer interface for correlation entries (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) error
}

// Repo maps chat message ids to the image URL they carried.
type Repo struct {
	store    store
	ttl      time.Duration
	opsTotal *prometheus.CounterVec
}

// New creates a correlation repository.
// opsTotal is a counter vec with labels "op" and "result", passed explicitly; may be nil.
func New(s store, opsTotal *prometheus.CounterVec) *Repo {
	return &Repo{store: s, opsTotal: opsTotal}
}

// WithTTL makes entries expire after ttl. Zero keeps them forever.
func (r *Repo) WithTTL(ttl time.Duration) *Repo {
	if ttl > 0 {
		r.ttl = ttl
	}
	return r
}

// Put records the image URL of a message, overwriting any previous entry.
func (r *Repo) Put(ctx context.Context, messageID int64, imageURL string) error {
	key := Key(messageID)

	var err error
	if r.ttl > 0 {
		err = r.store.SetWithTTL(ctx, key, []byte(imageURL), r.ttl)
	} else {
		err = r.store.Set(ctx, key, []byte(imageURL))
	}
	if err != nil {
		r.inc("put", "error")
		return fmt.Errorf("correlation put %s: %w", key, err)
	}

	r.inc("put", "ok")
	return nil
}

// Get returns the image URL stored for a message. ok is false when the id is
// unknown; that is not an error.
func (r *Repo) Get(ctx context.Context, messageID int64) (string, bool, error) {
	key := Key(messageID)

	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			r.inc("get", "miss")
			return "", false, nil
		}
		r.inc("get", "error")
		return "", false, fmt.Errorf("correlation get %s: %w", key, err)
	}

	r.inc("get", "hit")
	return string(data), true, nil
}

// Flush forces pending writes to stable storage.
func (r *Repo) Flush(ctx context.Context) error {
	if err := r.store.Flush(ctx); err != nil {
		r.inc("flush", "error")
		return fmt.Errorf("correlation flush: %w", err)
	}
	r.inc("flush", "ok")
	return nil
}

// Key returns the storage key for a message id.
func Key(messageID int64) string {
	return KeyPrefix + strconv.FormatInt(messageID, 10)
}

func (r *Repo) inc(op, result string) {
	if r.opsTotal != nil {
		r.opsTotal.WithLabelValues(op, result).Inc()
	}
}

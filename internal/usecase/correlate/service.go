// Package correlate turns inbound chat messages into source lookups.
package correlate

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/saucebot/internal/domain/message"
	"github.com/kailas-cloud/saucebot/internal/logger"
	"github.com/kailas-cloud/saucebot/internal/metrics"
)

// Service remembers posted images and answers "find source" replies.
type Service struct {
	store      CorrelationStore
	aggregator Aggregator
	formatter  Formatter
	classifier Classifier
	logger     *zap.Logger
}

// New creates a message correlator.
func New(
	store CorrelationStore, aggregator Aggregator, formatter Formatter,
	classifier Classifier, logger *zap.Logger,
) *Service {
	return &Service{
		store:      store,
		aggregator: aggregator,
		formatter:  formatter,
		classifier: classifier,
		logger:     logger,
	}
}

// Handle processes one inbound message. It returns a reply only for source
// requests whose target message is known; everything else is silent.
func (s *Service) Handle(ctx context.Context, ev message.Event) (message.Action, bool) {
	c := s.classifier.Classify(ev.Text)
	metrics.EventsTotal.WithLabelValues(c.Class.String()).Inc()

	ctx, _ = logger.WithFields(ctx, s.logger,
		zap.String("event_id", uuid.NewString()),
		zap.String("kind", string(ev.Kind)),
		zap.Int64("message_id", ev.MessageID),
		zap.Int64("group_id", ev.GroupID),
		zap.Int64("user_id", ev.UserID),
	)

	switch c.Class {
	case message.ImageAttachment:
		s.remember(ctx, ev.MessageID, c.ImageURL)
		return message.Action{}, false
	case message.SourceRequestReply:
		return s.answer(ctx, ev, c.ReplyID)
	default:
		return message.Action{}, false
	}
}

func (s *Service) remember(ctx context.Context, messageID int64, imageURL string) {
	log := logger.FromContext(ctx)
	if err := s.store.Put(ctx, messageID, imageURL); err != nil {
		log.Error("Failed to remember image", zap.String("image_url", imageURL), zap.Error(err))
		return
	}
	log.Debug("Image remembered", zap.String("image_url", imageURL))
}

func (s *Service) answer(ctx context.Context, ev message.Event, replyID int64) (message.Action, bool) {
	log := logger.FromContext(ctx).With(zap.Int64("reply_to", replyID))

	imageURL, ok, err := s.store.Get(ctx, replyID)
	if err != nil {
		log.Error("Failed to look up replied message", zap.Error(err))
		return message.Action{}, false
	}
	if !ok {
		log.Info("Replied message carries no known image")
		return message.Action{}, false
	}

	log.Info("Searching image source", zap.String("image_url", imageURL))
	images := s.aggregator.SearchImage(ctx, imageURL)
	log.Info("Image source search finished",
		zap.String("image_url", imageURL),
		zap.Int("found", len(images)),
	)

	return message.ReplyTo(ev, s.formatter.Format(images)), true
}

package nats_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/config"
	"github.com/karthikraju391/go-nats-chat-sync/models"
)

// NatsService owns the gateway's own NATS connection: the history stream, the
// snapshot provider and the relay publish through it.
type NatsService struct {
	js         jetstream.JetStream
	nc         *nats.Conn
	streamName string
	fetchWait  time.Duration
	log        *zap.Logger
}

// NewNatsService connects to NATS and makes sure the history stream exists.
func NewNatsService(ctx context.Context, cfg *config.Config, log *zap.Logger) (*NatsService, error) {
	nc, err := nats.Connect(cfg.Nats.URL,
		nats.Name("chat-sync-gateway"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.RetryInterval),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	s := &NatsService{
		js:         js,
		nc:         nc,
		streamName: cfg.Nats.StreamName,
		fetchWait:  time.Second,
		log:        log,
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.ensureStream(ensureCtx, cfg.HistoryMaxAge); err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

func (s *NatsService) ensureStream(ctx context.Context, maxAge time.Duration) error {
	stream, err := s.js.Stream(ctx, s.streamName)
	if err == nil {
		s.log.Info("Found existing stream", zap.String("stream", stream.CachedInfo().Config.Name))
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream '%s': %w", s.streamName, err)
	}

	s.log.Info("Stream not found, creating", zap.String("stream", s.streamName))
	_, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        s.streamName,
		Description: "Conversation message and deletion events",
		Subjects:    models.HistorySubjects(),
		MaxAge:      maxAge,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", s.streamName, err)
	}
	s.log.Info("Stream created", zap.String("stream", s.streamName))
	return nil
}

// Conn exposes the underlying connection for the relay.
func (s *NatsService) Conn() *nats.Conn {
	return s.nc
}

// Close NATS connection
func (s *NatsService) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// PublishEvent appends a message lifecycle event to the conversation's events subject.
func (s *NatsService) PublishEvent(ctx context.Context, ev models.MessageEvent) error {
	return s.publish(ctx, models.EventsSubject(ev.ConversationID), ev)
}

// PublishDeletion appends a deletion event to the conversation's deletions subject.
func (s *NatsService) PublishDeletion(ctx context.Context, conversationID string, ev models.DeletionEvent) error {
	return s.publish(ctx, models.DeletionsSubject(conversationID), ev)
}

func (s *NatsService) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject '%s': %w", subject, err)
	}
	s.log.Debug("Published event", zap.String("subject", subject))
	return nil
}

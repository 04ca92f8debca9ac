package nats_service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/models"
	"github.com/karthikraju391/go-nats-chat-sync/reconcile"
)

const historyBatch = 256

// Snapshot replays a conversation's stored events and deletions through the
// reconciliation engine and returns the resulting list. It implements
// session.SnapshotProvider.
func (s *NatsService) Snapshot(ctx context.Context, conversationID string) ([]models.Message, error) {
	if err := models.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}
	eventsSubject := models.EventsSubject(conversationID)
	deletionsSubject := models.DeletionsSubject(conversationID)

	stream, err := s.js.Stream(ctx, s.streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up stream '%s': %w", s.streamName, err)
	}
	info, err := stream.Info(ctx, jetstream.WithSubjectFilter(models.ConversationWildcard(conversationID)))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream info for '%s': %w", conversationID, err)
	}
	if info.State.Subjects[eventsSubject]+info.State.Subjects[deletionsSubject] == 0 {
		return []models.Message{}, nil
	}

	cons, err := s.js.OrderedConsumer(ctx, s.streamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{eventsSubject, deletionsSubject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history consumer for '%s': %w", conversationID, err)
	}

	state := reconcile.State{}
	for {
		batch, err := cons.Fetch(historyBatch, jetstream.FetchMaxWait(s.fetchWait))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history for '%s': %w", conversationID, err)
		}

		received, caughtUp := 0, false
		for msg := range batch.Messages() {
			received++
			state = s.replay(state, msg, deletionsSubject)
			if meta, err := msg.Metadata(); err == nil && meta.NumPending == 0 {
				caughtUp = true
			}
		}
		if err := batch.Error(); err != nil && received == 0 && !errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("failed to fetch history for '%s': %w", conversationID, err)
		}
		if caughtUp || received == 0 {
			break
		}
	}

	s.log.Debug("Loaded history",
		zap.String("conversation", conversationID),
		zap.Int("messages", state.Len()))
	return state.Messages, nil
}

func (s *NatsService) replay(state reconcile.State, msg jetstream.Msg, deletionsSubject string) reconcile.State {
	if msg.Subject() == deletionsSubject {
		ev, err := models.DecodeDeletionEvent(msg.Data())
		if err != nil {
			s.log.Warn("Skipping stored deletion", zap.String("subject", msg.Subject()), zap.Error(err))
			return state
		}
		return reconcile.Reduce(state, reconcile.DeletionReceived{ID: ev.ID})
	}

	ev, err := models.DecodeMessageEvent(msg.Data())
	if err != nil {
		s.log.Warn("Skipping stored event", zap.String("subject", msg.Subject()), zap.Error(err))
		return state
	}
	return reconcile.Reduce(state, reconcile.MessageReceived{Message: ev.Message()})
}

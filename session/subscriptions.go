package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

// SubscriptionSet holds the events and deletions subscriptions of one conversation.
// It is owned by a single goroutine and is not safe for concurrent use.
type SubscriptionSet struct {
	log *zap.Logger

	conversationID string
	events         Subscription
	deletions      Subscription
}

func NewSubscriptionSet(log *zap.Logger) *SubscriptionSet {
	return &SubscriptionSet{log: log}
}

// Subscribe binds both streams of conversationID on conn. Whatever the set held
// before is released first, so each stream has at most one live subscription.
func (s *SubscriptionSet) Subscribe(
	conn Conn,
	conversationID string,
	onMessage func(models.MessageEvent),
	onDeletion func(models.DeletionEvent),
) error {
	s.Unsubscribe()

	eventsSubject := models.EventsSubject(conversationID)
	events, err := conn.Subscribe(eventsSubject, func(data []byte) {
		ev, err := models.DecodeMessageEvent(data)
		if err != nil {
			s.log.Warn("Dropping message event", zap.String("subject", eventsSubject), zap.Error(err))
			return
		}
		onMessage(ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", eventsSubject, err)
	}

	deletionsSubject := models.DeletionsSubject(conversationID)
	deletions, err := conn.Subscribe(deletionsSubject, func(data []byte) {
		ev, err := models.DecodeDeletionEvent(data)
		if err != nil {
			s.log.Warn("Dropping deletion event", zap.String("subject", deletionsSubject), zap.Error(err))
			return
		}
		onDeletion(ev)
	})
	if err != nil {
		s.release(events)
		return fmt.Errorf("failed to subscribe to '%s': %w", deletionsSubject, err)
	}

	s.conversationID = conversationID
	s.events = events
	s.deletions = deletions
	s.log.Info("Subscribed", zap.String("conversation", conversationID))
	return nil
}

// Unsubscribe releases both streams. Errors are logged and otherwise ignored.
func (s *SubscriptionSet) Unsubscribe() {
	if s.events == nil && s.deletions == nil {
		return
	}
	s.release(s.events)
	s.release(s.deletions)
	s.log.Info("Unsubscribed", zap.String("conversation", s.conversationID))
	s.events = nil
	s.deletions = nil
	s.conversationID = ""
}

// Active reports whether the set currently holds subscriptions.
func (s *SubscriptionSet) Active() bool {
	return s.events != nil
}

func (s *SubscriptionSet) release(sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		s.log.Debug("Unsubscribe failed", zap.String("conversation", s.conversationID), zap.Error(err))
	}
}

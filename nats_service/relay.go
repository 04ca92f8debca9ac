package nats_service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

// EventStore is what the relay needs from the history stream.
type EventStore interface {
	PublishEvent(ctx context.Context, ev models.MessageEvent) error
	PublishDeletion(ctx context.Context, conversationID string, ev models.DeletionEvent) error
	Snapshot(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Relay turns commands into events. It stands in for the messaging service
// during development: it assigns ids, echoes correlation ids and enforces
// authorship on edits and deletes.
type Relay struct {
	nc      *nats.Conn
	store   EventStore
	queue   string
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
	timeout time.Duration
	sub     *nats.Subscription

	// recently seen messages by id; misses fall back to the history stream
	known *lru.Cache
}

const knownMessages = 4096

func NewRelay(nc *nats.Conn, store EventStore, queue string, log *zap.Logger) (*Relay, error) {
	return newRelay(nc, store, queue, knownMessages, log)
}

func newRelay(nc *nats.Conn, store EventStore, queue string, cacheSize int, log *zap.Logger) (*Relay, error) {
	known, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay cache: %w", err)
	}
	return &Relay{
		nc:      nc,
		store:   store,
		queue:   queue,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		timeout: 5 * time.Second,
		known:   known,
	}, nil
}

// Start queue-subscribes to the commands subject of every conversation.
func (r *Relay) Start() error {
	sub, err := r.nc.QueueSubscribe(models.AllCommandsSubject(), r.queue, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.Handle(ctx, msg.Subject, msg.Data); err != nil {
			r.log.Warn("Rejected command", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", models.AllCommandsSubject(), err)
	}
	r.sub = sub
	r.log.Info("Relay started", zap.String("subject", sub.Subject), zap.String("queue", r.queue))
	return nil
}

func (r *Relay) Stop() {
	if r.sub == nil {
		return
	}
	if err := r.sub.Drain(); err != nil {
		r.log.Debug("Relay drain failed", zap.Error(err))
	}
	r.sub = nil
}

// Handle applies one command received on subject.
func (r *Relay) Handle(ctx context.Context, subject string, data []byte) error {
	conversationID, ok := models.ConversationFromSubject(subject)
	if !ok {
		return fmt.Errorf("%w: subject %q", models.ErrInvalidConversation, subject)
	}
	cmd, err := models.DecodeCommand(data)
	if err != nil {
		return err
	}
	if cmd.ConversationID != conversationID {
		return fmt.Errorf("%w: command for %q on %q", models.ErrMalformedEvent, cmd.ConversationID, subject)
	}

	switch cmd.Kind {
	case models.CommandCreate:
		return r.create(ctx, cmd)
	case models.CommandEdit:
		return r.edit(ctx, cmd)
	default:
		return r.delete(ctx, cmd)
	}
}

func (r *Relay) create(ctx context.Context, cmd models.Command) error {
	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	msg := models.Message{
		ID:                  r.newID(),
		ClientCorrelationID: cmd.ClientCorrelationID,
		ConversationID:      cmd.ConversationID,
		SenderID:            cmd.SenderID,
		SenderDisplayName:   cmd.SenderDisplayName,
		Content:             cmd.Content,
		Attachment:          cmd.Attachment,
		Timestamp:           ts,
	}
	if err := r.store.PublishEvent(ctx, models.EventFromMessage(msg)); err != nil {
		return err
	}
	r.remember(msg)
	return nil
}

// edit follows the publisher's rule: a message with an attachment may lose its caption.
func (r *Relay) edit(ctx context.Context, cmd models.Command) error {
	msg, err := r.owned(ctx, cmd)
	if err != nil {
		return err
	}
	if !models.HasBody(cmd.Content, msg.Attachment) {
		return models.ErrEmptyMessage
	}
	msg.Content = cmd.Content
	msg.Edited = true
	if err := r.store.PublishEvent(ctx, models.EventFromMessage(msg)); err != nil {
		return err
	}
	r.remember(msg)
	return nil
}

func (r *Relay) delete(ctx context.Context, cmd models.Command) error {
	if _, err := r.owned(ctx, cmd); err != nil {
		return err
	}
	ev := models.DeletionEvent{ID: cmd.MessageID, Timestamp: r.now()}
	if err := r.store.PublishDeletion(ctx, cmd.ConversationID, ev); err != nil {
		return err
	}
	r.forget(cmd.MessageID)
	return nil
}

// owned returns the stored message a command targets once its author matches.
func (r *Relay) owned(ctx context.Context, cmd models.Command) (models.Message, error) {
	msg, ok := r.lookup(cmd.MessageID)
	if !ok {
		history, err := r.store.Snapshot(ctx, cmd.ConversationID)
		if err != nil {
			return models.Message{}, err
		}
		for _, m := range history {
			if m.ID == cmd.MessageID {
				msg, ok = m, true
				r.remember(m)
				break
			}
		}
	}
	if !ok || msg.ConversationID != "" && msg.ConversationID != cmd.ConversationID {
		return models.Message{}, fmt.Errorf("%w: %s", models.ErrUnknownMessage, cmd.MessageID)
	}
	if msg.SenderID != cmd.SenderID {
		return models.Message{}, models.ErrNotAuthor
	}
	return msg, nil
}

func (r *Relay) lookup(id string) (models.Message, bool) {
	v, ok := r.known.Get(id)
	if !ok {
		return models.Message{}, false
	}
	return v.(models.Message), true
}

func (r *Relay) remember(m models.Message) {
	r.known.Add(m.ID, m)
}

func (r *Relay) forget(id string) {
	r.known.Remove(id)
}

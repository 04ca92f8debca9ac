package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

// Outbound is the slice of the connection the publisher needs.
type Outbound interface {
	State() ConnState
	Publish(subject string, payload []byte) error
}

// Publisher turns user intents into commands on a conversation's commands subject.
// It never touches a message list: confirmations come back as inbound events.
type Publisher struct {
	out      Outbound
	identity IdentityProvider
	log      *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewPublisher(out Outbound, identity IdentityProvider, log *zap.Logger) *Publisher {
	return &Publisher{
		out:      out,
		identity: identity,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Send publishes a new message and returns the optimistic entry for it.
// attachment may be nil; content may be empty only when attachment is set.
// A publish error after the checks is logged and the entry is still returned.
func (p *Publisher) Send(conversationID, content string, attachment *models.Attachment) (models.Message, error) {
	if p.out.State() != StateOpen {
		return models.Message{}, models.ErrNotConnected
	}
	if !models.HasBody(content, attachment) {
		return models.Message{}, models.ErrEmptyMessage
	}

	self := p.identity.Identity()
	msg := models.Message{
		ClientCorrelationID: p.newID(),
		ConversationID:      conversationID,
		SenderID:            self.UserID,
		SenderDisplayName:   self.DisplayName,
		Content:             content,
		Attachment:          attachment,
		Timestamp:           p.now().UTC(),
		Pending:             true,
	}

	p.publish(models.Command{
		Kind:                models.CommandCreate,
		ClientCorrelationID: msg.ClientCorrelationID,
		ConversationID:      conversationID,
		SenderID:            msg.SenderID,
		SenderDisplayName:   msg.SenderDisplayName,
		Content:             msg.Content,
		Attachment:          msg.Attachment,
		Timestamp:           msg.Timestamp,
	})
	return msg, nil
}

// Edit asks the backbone to replace the content of a confirmed, locally authored message.
func (p *Publisher) Edit(conversationID string, target models.Message, content string) error {
	if err := p.checkOwned(target); err != nil {
		return err
	}
	if !models.HasBody(content, target.Attachment) {
		return models.ErrEmptyMessage
	}

	self := p.identity.Identity()
	p.publish(models.Command{
		Kind:              models.CommandEdit,
		MessageID:         target.ID,
		ConversationID:    conversationID,
		SenderID:          self.UserID,
		SenderDisplayName: self.DisplayName,
		Content:           content,
		Timestamp:         p.now().UTC(),
	})
	return nil
}

// Delete asks the backbone to remove a confirmed, locally authored message.
func (p *Publisher) Delete(conversationID string, target models.Message) error {
	if err := p.checkOwned(target); err != nil {
		return err
	}

	self := p.identity.Identity()
	p.publish(models.Command{
		Kind:           models.CommandDelete,
		MessageID:      target.ID,
		ConversationID: conversationID,
		SenderID:       self.UserID,
		Timestamp:      p.now().UTC(),
	})
	return nil
}

func (p *Publisher) checkOwned(target models.Message) error {
	if p.out.State() != StateOpen {
		return models.ErrNotConnected
	}
	if !target.Confirmed() {
		return models.ErrUnknownMessage
	}
	if self := p.identity.Identity(); self.UserID == "" || target.SenderID != self.UserID {
		return models.ErrNotAuthor
	}
	return nil
}

func (p *Publisher) publish(cmd models.Command) {
	subject := models.CommandsSubject(cmd.ConversationID)
	data, err := json.Marshal(cmd)
	if err != nil {
		p.log.Error("Failed to marshal command", zap.String("kind", string(cmd.Kind)), zap.Error(err))
		return
	}
	if err := p.out.Publish(subject, data); err != nil {
		p.log.Warn("Failed to publish command",
			zap.String("subject", subject),
			zap.String("kind", string(cmd.Kind)),
			zap.Error(err))
		return
	}
	p.log.Debug("Published command",
		zap.String("subject", subject),
		zap.String("kind", string(cmd.Kind)),
		zap.String("correlation", cmd.ClientCorrelationID),
		zap.String("message", cmd.MessageID))
}

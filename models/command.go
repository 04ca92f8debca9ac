package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type CommandKind string

const (
	CommandCreate CommandKind = "create"
	CommandEdit   CommandKind = "edit"
	CommandDelete CommandKind = "delete"
)

// Command is an outbound user intent published to a conversation's commands subject.
type Command struct {
	Kind                CommandKind `json:"kind"`
	ClientCorrelationID string      `json:"clientCorrelationId,omitempty"` // create only
	MessageID           string      `json:"messageId,omitempty"`           // edit and delete
	ConversationID      string      `json:"conversationId"`
	SenderID            string      `json:"senderId"`
	SenderDisplayName   string      `json:"senderDisplayName,omitempty"`
	Content             string      `json:"content,omitempty"`
	Attachment          *Attachment `json:"attachment,omitempty"`
	Timestamp           time.Time   `json:"timestamp"`
}

func (c *Command) Validate() error {
	if c.SenderID == "" || c.ConversationID == "" {
		return fmt.Errorf("%w: command without sender or conversation", ErrMalformedEvent)
	}
	switch c.Kind {
	case CommandCreate:
		if c.ClientCorrelationID == "" {
			return fmt.Errorf("%w: create without clientCorrelationId", ErrMalformedEvent)
		}
		if !HasBody(c.Content, c.Attachment) {
			return fmt.Errorf("%w: create without content", ErrMalformedEvent)
		}
	case CommandEdit:
		if c.MessageID == "" {
			return fmt.Errorf("%w: edit without messageId", ErrMalformedEvent)
		}
	case CommandDelete:
		if c.MessageID == "" {
			return fmt.Errorf("%w: delete without messageId", ErrMalformedEvent)
		}
	default:
		return fmt.Errorf("%w: unknown command kind %q", ErrMalformedEvent, c.Kind)
	}
	return nil
}

func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageEvent is the inbound message lifecycle payload (create, confirm, edit).
type MessageEvent struct {
	ID                  string      `json:"id,omitempty"`
	ClientCorrelationID string      `json:"clientCorrelationId,omitempty"`
	ConversationID      string      `json:"conversationId,omitempty"`
	SenderID            string      `json:"senderId"`
	SenderDisplayName   string      `json:"senderDisplayName,omitempty"`
	Content             string      `json:"content"`
	Attachment          *Attachment `json:"attachment,omitempty"`
	Timestamp           time.Time   `json:"timestamp"`
	Edited              bool        `json:"edited,omitempty"`
}

// Validate rejects events that cannot be placed in a message list.
func (e *MessageEvent) Validate() error {
	if e.SenderID == "" {
		return fmt.Errorf("%w: missing senderId", ErrMalformedEvent)
	}
	if e.ID == "" && e.ClientCorrelationID == "" {
		return fmt.Errorf("%w: neither id nor clientCorrelationId", ErrMalformedEvent)
	}
	return nil
}

// Message converts the event into a confirmed list entry.
func (e *MessageEvent) Message() Message {
	return Message{
		ID:                  e.ID,
		ClientCorrelationID: e.ClientCorrelationID,
		ConversationID:      e.ConversationID,
		SenderID:            e.SenderID,
		SenderDisplayName:   e.SenderDisplayName,
		Content:             e.Content,
		Attachment:          e.Attachment,
		Timestamp:           e.Timestamp,
		Edited:              e.Edited,
	}
}

// EventFromMessage builds the wire form of a list entry.
func EventFromMessage(m Message) MessageEvent {
	return MessageEvent{
		ID:                  m.ID,
		ClientCorrelationID: m.ClientCorrelationID,
		ConversationID:      m.ConversationID,
		SenderID:            m.SenderID,
		SenderDisplayName:   m.SenderDisplayName,
		Content:             m.Content,
		Attachment:          m.Attachment,
		Timestamp:           m.Timestamp,
		Edited:              m.Edited,
	}
}

// DeletionEvent removes a confirmed message from every list that holds it.
type DeletionEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *DeletionEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	return nil
}

// DecodeMessageEvent parses and validates an inbound message payload.
func DecodeMessageEvent(data []byte) (MessageEvent, error) {
	var ev MessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return MessageEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return MessageEvent{}, err
	}
	return ev, nil
}

// DecodeDeletionEvent parses and validates an inbound deletion payload.
func DecodeDeletionEvent(data []byte) (DeletionEvent, error) {
	var ev DeletionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return DeletionEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return DeletionEvent{}, err
	}
	return ev, nil
}

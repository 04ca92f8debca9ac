package models

import (
	"strings"
	"time"
)

// Attachment describes a file carried by a message. The sync layer treats it as opaque.
type Attachment struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"` // declared media kind, e.g. "image", "pdf"
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Message is one entry of a conversation's message list
type Message struct {
	ID                  string      `json:"id,omitempty"`                  // Server-assigned; empty until confirmed
	ClientCorrelationID string      `json:"clientCorrelationId,omitempty"` // Client-generated for local sends
	ConversationID      string      `json:"conversationId,omitempty"`      // Conversation the message belongs to
	SenderID            string      `json:"senderId"`                      // ID of the author
	SenderDisplayName   string      `json:"senderDisplayName,omitempty"`   // Display name of the author
	Content             string      `json:"content"`                       // Text body, may be empty with an attachment
	Attachment          *Attachment `json:"attachment,omitempty"`
	Timestamp           time.Time   `json:"timestamp"`
	Edited              bool        `json:"edited,omitempty"`
	Pending             bool        `json:"pending,omitempty"` // Local send not yet confirmed
}

// Confirmed reports whether the server has assigned the message an id.
func (m *Message) Confirmed() bool {
	return m.ID != ""
}

// HasBody reports whether the message carries anything worth sending.
func HasBody(content string, attachment *Attachment) bool {
	return strings.TrimSpace(content) != "" || attachment != nil
}

// Identity is the local user as seen by the sync layer.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

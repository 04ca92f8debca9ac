// Package reconcile folds inbound events and local sends into a conversation's
// message list. Reduce is pure: it never mutates the State it is given, so a
// State handed to an observer stays valid after later events are applied.
package reconcile

import (
	"github.com/karthikraju391/go-nats-chat-sync/models"
)

// State is the canonical message list of one conversation plus the local identity
// used for sender-name backfill.
type State struct {
	Self     models.Identity
	Messages []models.Message
}

// Action is one input to Reduce.
type Action interface {
	isAction()
}

// MessageReceived is an inbound create, confirm, or edit event.
type MessageReceived struct {
	Message models.Message
}

// DeletionReceived is an inbound deletion event.
type DeletionReceived struct {
	ID string
}

// LocalSent is an optimistic message built for a local send.
type LocalSent struct {
	Message models.Message
}

func (MessageReceived) isAction()  {}
func (DeletionReceived) isAction() {}
func (LocalSent) isAction()        {}

// Seed builds the state for a freshly selected conversation. Snapshot order is kept.
func Seed(self models.Identity, snapshot []models.Message) State {
	msgs := make([]models.Message, 0, len(snapshot))
	for _, m := range snapshot {
		m.Pending = false
		msgs = append(msgs, backfill(self, m))
	}
	return State{Self: self, Messages: msgs}
}

// Reduce applies one action and returns the resulting state.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case MessageReceived:
		return applyMessage(s, a.Message)
	case DeletionReceived:
		return applyDeletion(s, a.ID)
	case LocalSent:
		return applyLocal(s, a.Message)
	default:
		return s
	}
}

func applyMessage(s State, m models.Message) State {
	m.Pending = false
	m = backfill(s.Self, m)

	if m.ClientCorrelationID != "" {
		if i := s.indexByCorrelation(m.ClientCorrelationID); i >= 0 {
			merged := merge(s.Messages[i], m)
			out := s.clone()
			out.Messages[i] = merged
			if merged.ID != "" {
				out.Messages = dropDuplicateID(out.Messages, i, merged.ID)
			}
			return out
		}
	}

	if m.ID != "" {
		if i := s.indexByID(m.ID); i >= 0 {
			out := s.clone()
			out.Messages[i] = m
			return out
		}
	}

	// Unknown message, or an edit of a message this list has never seen. Appended
	// in receipt order; the list is never re-sorted by timestamp.
	out := s.clone()
	out.Messages = append(out.Messages, m)
	return out
}

func applyDeletion(s State, id string) State {
	if id == "" {
		return s
	}
	i := s.indexByID(id)
	if i < 0 {
		return s
	}
	msgs := make([]models.Message, 0, len(s.Messages)-1)
	msgs = append(msgs, s.Messages[:i]...)
	msgs = append(msgs, s.Messages[i+1:]...)
	return State{Self: s.Self, Messages: msgs}
}

func applyLocal(s State, m models.Message) State {
	// correlation ids are never reused
	if m.ClientCorrelationID == "" || s.indexByCorrelation(m.ClientCorrelationID) >= 0 {
		return s
	}
	m.ID = ""
	m.Pending = true
	out := s.clone()
	out.Messages = append(out.Messages, backfill(s.Self, m))
	return out
}

// merge overlays the confirmed event onto the optimistic entry it confirms.
func merge(e, m models.Message) models.Message {
	if m.ID != "" {
		e.ID = m.ID
	}
	if m.ConversationID != "" {
		e.ConversationID = m.ConversationID
	}
	if m.SenderID != "" {
		e.SenderID = m.SenderID
	}
	if m.SenderDisplayName != "" {
		e.SenderDisplayName = m.SenderDisplayName
	}
	if m.Attachment != nil {
		e.Attachment = m.Attachment
	}
	if !m.Timestamp.IsZero() {
		e.Timestamp = m.Timestamp
	}
	e.Content = m.Content
	e.Edited = e.Edited || m.Edited
	e.Pending = false
	return e
}

func backfill(self models.Identity, m models.Message) models.Message {
	if m.SenderDisplayName == "" && self.UserID != "" && m.SenderID == self.UserID {
		m.SenderDisplayName = self.DisplayName
	}
	return m
}

// dropDuplicateID removes every entry other than keep that carries id.
func dropDuplicateID(msgs []models.Message, keep int, id string) []models.Message {
	out := msgs[:0]
	for i, m := range msgs {
		if i != keep && m.ID == id {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s State) clone() State {
	msgs := make([]models.Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	return State{Self: s.Self, Messages: msgs}
}

func (s State) indexByCorrelation(cid string) int {
	for i := range s.Messages {
		if s.Messages[i].ClientCorrelationID == cid {
			return i
		}
	}
	return -1
}

func (s State) indexByID(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the entry with the given server id.
func (s State) Find(id string) (models.Message, bool) {
	if id == "" {
		return models.Message{}, false
	}
	if i := s.indexByID(id); i >= 0 {
		return s.Messages[i], true
	}
	return models.Message{}, false
}

func (s State) Len() int {
	return len(s.Messages)
}

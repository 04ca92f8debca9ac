package models

import (
	"fmt"
	"strings"
)

// SubjectPrefix roots every conversation subject: conversation.<id>.<stream>.
const SubjectPrefix = "conversation"

const (
	streamCommands  = "commands"
	streamEvents    = "events"
	streamDeletions = "deletions"
)

func CommandsSubject(conversationID string) string {
	return subject(conversationID, streamCommands)
}

func EventsSubject(conversationID string) string {
	return subject(conversationID, streamEvents)
}

func DeletionsSubject(conversationID string) string {
	return subject(conversationID, streamDeletions)
}

// AllCommandsSubject matches the commands subject of every conversation.
func AllCommandsSubject() string {
	return subject("*", streamCommands)
}

func subject(conversationID, stream string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, conversationID, stream)
}

// ConversationFromSubject extracts the conversation id from a conversation subject.
func ConversationFromSubject(subj string) (string, bool) {
	parts := strings.Split(subj, ".")
	if len(parts) != 3 || parts[0] != SubjectPrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ValidateConversationID checks that id is usable as a single subject token.
func ValidateConversationID(id string) error {
	if id == "" || strings.ContainsAny(id, ".*> \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidConversation, id)
	}
	return nil
}

// ConversationWildcard matches every stream subject of one conversation.
func ConversationWildcard(conversationID string) string {
	return subject(conversationID, ">")
}

// HistorySubjects lists the per-conversation subjects kept in the history stream.
func HistorySubjects() []string {
	return []string{subject("*", streamEvents), subject("*", streamDeletions)}
}

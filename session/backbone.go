package session

import (
	"context"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

// ConnEvent is a signal raised by a live backbone connection.
type ConnEvent int

const (
	// ConnUp means the connection (re)gained its link to the backbone.
	ConnUp ConnEvent = iota
	// ConnDown means the link dropped; the handle may still recover on its own.
	ConnDown
	// ConnLost means the handle is unusable and must be dialed again.
	ConnLost
)

func (e ConnEvent) String() string {
	switch e {
	case ConnUp:
		return "up"
	case ConnDown:
		return "down"
	case ConnLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Dialer establishes a backbone connection. notify may be called from any goroutine
// for as long as the returned Conn lives.
type Dialer interface {
	Dial(ctx context.Context, url string, notify func(ConnEvent)) (Conn, error)
}

// Conn is a live backbone connection handle.
type Conn interface {
	Publish(subject string, payload []byte) error
	Subscribe(subject string, handler func(payload []byte)) (Subscription, error)
	Close()
}

type Subscription interface {
	Unsubscribe() error
}

// SnapshotProvider returns the initial message list of a conversation.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, conversationID string) ([]models.Message, error)
}

// SnapshotFunc adapts a function to SnapshotProvider.
type SnapshotFunc func(ctx context.Context, conversationID string) ([]models.Message, error)

func (f SnapshotFunc) Snapshot(ctx context.Context, conversationID string) ([]models.Message, error) {
	return f(ctx, conversationID)
}

// IdentityProvider exposes the local user.
type IdentityProvider interface {
	Identity() models.Identity
}

// StaticIdentity is an IdentityProvider for a fixed user.
type StaticIdentity models.Identity

func (s StaticIdentity) Identity() models.Identity {
	return models.Identity(s)
}

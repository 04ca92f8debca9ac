package handlers

import (
	"errors"

	"github.com/karthikraju391/go-nats-chat-sync/models"
	"github.com/karthikraju391/go-nats-chat-sync/session"
)

// Client frame types.
const (
	FrameSelect = "select"
	FrameSend   = "send"
	FrameEdit   = "edit"
	FrameDelete = "delete"
)

// Server frame types.
const (
	FrameView  = "view"
	FrameError = "error"
)

// ClientFrame is a user intent read from the browser socket.
type ClientFrame struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversationId,omitempty"`
	MessageID      string             `json:"messageId,omitempty"`
	Content        string             `json:"content,omitempty"`
	Attachment     *models.Attachment `json:"attachment,omitempty"`
}

// ServerFrame is written to the browser socket: either the full current view
// or the rejection of a client frame.
type ServerFrame struct {
	Type    string        `json:"type"`
	View    *session.View `json:"view,omitempty"`
	Request string        `json:"request,omitempty"`
	Code    string        `json:"code,omitempty"`
	Error   string        `json:"error,omitempty"`
}

var errUnknownFrame = errors.New("unknown frame type")

func viewFrame(v session.View) ServerFrame {
	return ServerFrame{Type: FrameView, View: &v}
}

func errorFrame(request string, err error) ServerFrame {
	return ServerFrame{
		Type:    FrameError,
		Request: request,
		Code:    errorCode(err),
		Error:   err.Error(),
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, models.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, models.ErrNotAuthor):
		return "not_author"
	case errors.Is(err, models.ErrUnknownMessage):
		return "unknown_message"
	case errors.Is(err, models.ErrInvalidConversation):
		return "invalid_conversation"
	case errors.Is(err, models.ErrTornDown):
		return "closed"
	case errors.Is(err, errUnknownFrame):
		return "unknown_frame"
	default:
		return "internal"
	}
}

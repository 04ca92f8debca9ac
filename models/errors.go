package models

import "errors"

var (
	ErrNotConnected        = errors.New("not connected")
	ErrEmptyMessage        = errors.New("empty message")
	ErrNotAuthor           = errors.New("message not authored by local user")
	ErrUnknownMessage      = errors.New("unknown message")
	ErrInvalidConversation = errors.New("invalid conversation id")
	ErrTornDown            = errors.New("session torn down")
	ErrMalformedEvent      = errors.New("malformed event")
)

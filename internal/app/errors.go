package app

import "errors"

var (
	ErrRoomIDExhausted    = errors.New("could not allocate a unique room id")
	ErrRoomNameInvalid    = errors.New("room name must be 1-64 characters")
	ErrEmptyMessage       = errors.New("message content empty")
	ErrMessageTooLong     = errors.New("message content too long")
	ErrInvalidMessageType = errors.New("unknown message type")
	ErrNotInRoom          = errors.New("connection has no text session in room")
	ErrAccessDenied       = errors.New("room access denied")
)

package orch

import (
	"errors"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

var (
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrNotVoiceChannel  = errors.New("not a voice channel of an existing room")
	ErrAgentUnavailable = errors.New("agent not enabled")
)

// ErrorCode maps an error to the code carried in error envelopes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, app.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrNotVoiceChannel):
		return "not_voice_channel"
	case errors.Is(err, domain.ErrDisplayNameEmpty), errors.Is(err, domain.ErrDisplayNameTooLong):
		return "invalid_name"
	case errors.Is(err, app.ErrRoomNameInvalid):
		return "invalid_room_name"
	case errors.Is(err, app.ErrRoomIDExhausted):
		return "room_id_exhausted"
	case errors.Is(err, app.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, app.ErrEmptyMessage), errors.Is(err, app.ErrMessageTooLong), errors.Is(err, app.ErrInvalidMessageType):
		return "invalid_message"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrAgentUnavailable):
		return "agent_unavailable"
	}
	return "internal"
}

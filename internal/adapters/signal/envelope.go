package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

var ErrBadEnvelope = errors.New("bad envelope")

// envelope is the inbound wire shape. Which fields matter depends on Type.
type envelope struct {
	Type        core.EventType  `json:"type" validate:"required,oneof=join-text join-voice leave-voice heartbeat rename create-room send-message signal-offer signal-answer signal-candidates"`
	Room        string          `json:"room" validate:"max=128"`
	Name        string          `json:"name" validate:"max=64"`
	To          string          `json:"to" validate:"max=64"`
	Payload     json.RawMessage `json:"payload"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type" validate:"omitempty,oneof=text image file"`
	Secret      *string         `json:"secret" validate:"omitempty,max=128"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(envelopeRules, envelope{})
	return v
}

// envelopeRules enforces per-type required fields.
func envelopeRules(sl validator.StructLevel) {
	e := sl.Current().Interface().(envelope)
	switch e.Type {
	case core.EventJoinText, core.EventJoinVoice, core.EventSendMessage:
		if e.Room == "" {
			sl.ReportError(e.Room, "Room", "room", "required", "")
		}
	case core.EventRename, core.EventCreateRoom:
		if e.Name == "" {
			sl.ReportError(e.Name, "Name", "name", "required", "")
		}
	case core.EventSignalOffer, core.EventSignalAnswer, core.EventSignalCandidates:
		if e.To == "" {
			sl.ReportError(e.To, "To", "to", "required", "")
		}
		if len(e.Payload) == 0 {
			sl.ReportError(e.Payload, "Payload", "payload", "required", "")
		}
	}
}

// decodeEvent parses and validates one inbound frame.
func decodeEvent(data []byte) (core.Event, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return core.Event{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if err := validate.Struct(e); err != nil {
		return core.Event{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return core.Event{
		Type:        e.Type,
		Room:        domain.RoomID(e.Room),
		DisplayName: e.Name,
		To:          domain.ConnectionID(e.To),
		Payload:     e.Payload,
		Content:     e.Content,
		MessageType: domain.MessageType(e.MessageType),
		Secret:      e.Secret,
	}, nil
}

package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Lounge/internal/domain"
)

type SignalKind string

const (
	SignalOffer      SignalKind = "offer"
	SignalAnswer     SignalKind = "answer"
	SignalCandidates SignalKind = "candidate-batch"
)

// Signal is an opaque peer negotiation envelope between two connections.
type Signal struct {
	Kind     SignalKind          `json:"kind"`
	From     domain.ConnectionID `json:"from"`
	FromName string              `json:"display_name"`
	To       domain.ConnectionID `json:"-"`
	Payload  json.RawMessage     `json:"payload"`
}

// ReplyFunc lets an in-process participant answer the sender of a Signal.
type ReplyFunc func(ctx context.Context, kind SignalKind, payload json.RawMessage)

// Participant is a non-human service peer reachable under a reserved
// connection id. Delivery is an in-process call instead of a network send.
type Participant interface {
	ID() domain.ConnectionID
	DisplayName() string
	Deliver(ctx context.Context, sig Signal, reply ReplyFunc) error
	// Channel is the voice channel the participant is attached to, if any.
	Channel() (domain.RoomID, bool)
}

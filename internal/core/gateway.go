package core

import (
	"encoding/json"

	"github.com/dkeye/Lounge/internal/domain"
)

// Frame is a raw encoded outbound envelope.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Notifier is the broadcast surface the gateway exposes to the core.
// Both methods are fire-and-forget and must not block.
type Notifier interface {
	Broadcast(msg Outbound)
	// SendTo returns ErrNotConnected for unknown connections.
	SendTo(conn domain.ConnectionID, msg Outbound) error
}

type EventType string

const (
	EventJoinText         EventType = "join-text"
	EventJoinVoice        EventType = "join-voice"
	EventLeaveVoice       EventType = "leave-voice"
	EventHeartbeat        EventType = "heartbeat"
	EventRename           EventType = "rename"
	EventCreateRoom       EventType = "create-room"
	EventSendMessage      EventType = "send-message"
	EventSignalOffer      EventType = "signal-offer"
	EventSignalAnswer     EventType = "signal-answer"
	EventSignalCandidates EventType = "signal-candidates"
)

// Event is the normalized inbound gateway event. Which fields are set
// depends on Type; the gateway validates before the core sees it.
type Event struct {
	Type        EventType
	Room        domain.RoomID
	DisplayName string
	To          domain.ConnectionID
	Payload     json.RawMessage
	Content     string
	MessageType domain.MessageType
	Secret      *string
}

const (
	OutHello            = "hello"
	OutRoomCreated      = "room-created"
	OutRoomDeleted      = "room-deleted"
	OutRoomList         = "room-list"
	OutPresenceSnapshot = "presence-snapshot"
	OutVoicePeers       = "voice-peers"
	OutMessageReceived  = "message-received"
	OutMessageHistory   = "message-history"
	OutPeerOffer        = "peer-offer"
	OutPeerAnswer       = "peer-answer"
	OutPeerCandidates   = "peer-candidates"
	OutError            = "error"
)

// Outbound is the envelope every produced event travels in.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type RoomDeleted struct {
	RoomID domain.RoomID `json:"room_id"`
}

// PresenceSnapshot maps raw channel ids (text rooms and voice sub-channels)
// to their occupants.
type PresenceSnapshot map[domain.RoomID][]domain.Occupant

type VoicePeers struct {
	RoomID domain.RoomID     `json:"room_id"`
	Peers  []domain.Occupant `json:"peers"`
}

type MessageHistory struct {
	RoomID   domain.RoomID    `json:"room_id"`
	Messages []domain.Message `json:"messages"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ErrorEnvelope(code, msg string) Outbound {
	return Outbound{Type: OutError, Data: ErrorData{Code: code, Message: msg}}
}

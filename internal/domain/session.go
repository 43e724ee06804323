package domain

import (
	"fmt"
	"time"
)

// Kind separates text presence from voice presence.
type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
)

var Kinds = []Kind{KindText, KindVoice}

func (k Kind) Valid() bool { return k == KindText || k == KindVoice }

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown session kind %q", s)
	}
	return k, nil
}

// PresenceSession is one (room, connection, kind) presence record.
type PresenceSession struct {
	RoomID        RoomID       `json:"room_id"`
	ConnectionID  ConnectionID `json:"connection_id"`
	DisplayName   string       `json:"display_name"`
	Kind          Kind         `json:"kind"`
	JoinedAt      time.Time    `json:"joined_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// SessionKey is the uniqueness key of a PresenceSession.
type SessionKey struct {
	RoomID       RoomID
	ConnectionID ConnectionID
	Kind         Kind
}

func (s PresenceSession) Key() SessionKey {
	return SessionKey{RoomID: s.RoomID, ConnectionID: s.ConnectionID, Kind: s.Kind}
}

func (s PresenceSession) StaleAt(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastHeartbeat) > maxAge
}

package core

import (
	"context"
	"time"

	"github.com/dkeye/Lounge/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_core.go -package=mocks . SessionStore,RoomStore,MessageStore,Notifier,Participant

// SessionStore is the durable source of truth for who is present where.
// Implementations must keep (room, connection, kind) unique.
type SessionStore interface {
	// Upsert creates the session or refreshes its display name and heartbeat.
	Upsert(ctx context.Context, room domain.RoomID, conn domain.ConnectionID, name string, kind domain.Kind, at time.Time) error
	// Remove deletes the connection's sessions of the given kinds, or of every
	// kind when none are given, and returns what was removed.
	Remove(ctx context.Context, conn domain.ConnectionID, kinds ...domain.Kind) ([]domain.PresenceSession, error)
	Heartbeat(ctx context.Context, conn domain.ConnectionID, at time.Time) error
	// Occupancy folds voice sub-channels ("<room>-*") into room.
	Occupancy(ctx context.Context, room domain.RoomID) (domain.Occupancy, error)
	// SweepStale deletes sessions whose last heartbeat is older than maxAge at
	// now and returns what was removed.
	SweepStale(ctx context.Context, maxAge time.Duration, now time.Time) ([]domain.PresenceSession, error)
	List(ctx context.Context) ([]domain.PresenceSession, error)
}

// RoomStore owns room row existence.
type RoomStore interface {
	Create(ctx context.Context, room domain.Room) error
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
	List(ctx context.Context) ([]domain.Room, error)
	// Delete removes the room and its message history.
	Delete(ctx context.Context, id domain.RoomID) error
}

type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) error
	// Recent returns up to limit latest messages, oldest first.
	Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

// Package memory keeps sessions, rooms and chat history in process memory.
// It is the default driver and what the tests run against.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// Sessions is a threadsafe in-memory SessionStore.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[domain.SessionKey]domain.PresenceSession
	byConn   map[domain.ConnectionID]map[domain.SessionKey]struct{}
}

// Rooms is a threadsafe in-memory RoomStore and MessageStore.
type Rooms struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]domain.Room
	messages map[domain.RoomID][]domain.Message
}

var (
	_ core.SessionStore = (*Sessions)(nil)
	_ core.RoomStore    = (*Rooms)(nil)
	_ core.MessageStore = (*Rooms)(nil)
)

func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[domain.SessionKey]domain.PresenceSession),
		byConn:   make(map[domain.ConnectionID]map[domain.SessionKey]struct{}),
	}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:    make(map[domain.RoomID]domain.Room),
		messages: make(map[domain.RoomID][]domain.Message),
	}
}

func (s *Sessions) Upsert(_ context.Context, room domain.RoomID, conn domain.ConnectionID, name string, kind domain.Kind, at time.Time) error {
	key := domain.SessionKey{RoomID: room, ConnectionID: conn, Kind: kind}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		sess = domain.PresenceSession{RoomID: room, ConnectionID: conn, Kind: kind, JoinedAt: at}
	}
	sess.DisplayName = name
	sess.LastHeartbeat = at
	s.sessions[key] = sess
	keys, ok := s.byConn[conn]
	if !ok {
		keys = make(map[domain.SessionKey]struct{})
		s.byConn[conn] = keys
	}
	keys[key] = struct{}{}
	return nil
}

func (s *Sessions) Remove(_ context.Context, conn domain.ConnectionID, kinds ...domain.Kind) ([]domain.PresenceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []domain.PresenceSession
	for key := range s.byConn[conn] {
		if len(kinds) > 0 && !slices.Contains(kinds, key.Kind) {
			continue
		}
		removed = append(removed, s.sessions[key])
		s.deleteLocked(key)
	}
	return removed, nil
}

func (s *Sessions) Heartbeat(_ context.Context, conn domain.ConnectionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.byConn[conn] {
		sess := s.sessions[key]
		sess.LastHeartbeat = at
		s.sessions[key] = sess
	}
	return nil
}

func (s *Sessions) Occupancy(_ context.Context, room domain.RoomID) (domain.Occupancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]domain.PresenceSession, 0)
	for key, sess := range s.sessions {
		if room.Contains(key.RoomID) {
			matched = append(matched, sess)
		}
	}
	return domain.FoldOccupancy(room, matched), nil
}

func (s *Sessions) SweepStale(_ context.Context, maxAge time.Duration, now time.Time) ([]domain.PresenceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []domain.PresenceSession
	for key, sess := range s.sessions {
		if sess.StaleAt(now, maxAge) {
			s.deleteLocked(key)
			removed = append(removed, sess)
		}
	}
	return removed, nil
}

func (s *Sessions) List(_ context.Context) ([]domain.PresenceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PresenceSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *Sessions) deleteLocked(key domain.SessionKey) {
	delete(s.sessions, key)
	if keys, ok := s.byConn[key.ConnectionID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.byConn, key.ConnectionID)
		}
	}
}

func (s *Rooms) Create(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return core.ErrRoomExists
	}
	s.rooms[room.ID] = room
	return nil
}

func (s *Rooms) Get(_ context.Context, id domain.RoomID) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, core.ErrRoomNotFound
	}
	return room, nil
}

// List is ordered by creation time.
func (s *Rooms) List(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Rooms) Delete(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return core.ErrRoomNotFound
	}
	delete(s.rooms, id)
	delete(s.messages, id)
	return nil
}

func (s *Rooms) Append(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return nil
}

func (s *Rooms) Recent(_ context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[room]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

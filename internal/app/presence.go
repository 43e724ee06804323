package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// OccupancyObserver is told which channels just gained or lost a session.
type OccupancyObserver func(ctx context.Context, channels []domain.RoomID)

// Tracker mirrors the SessionStore in memory, indexed by connection and by
// channel. Every mutation writes through to the store first; the cache is
// only touched once the store accepted the change.
type Tracker struct {
	store core.SessionStore
	now   func() time.Time

	mu     sync.RWMutex
	byConn map[domain.ConnectionID]map[domain.SessionKey]domain.PresenceSession
	byRoom map[domain.RoomID]map[domain.SessionKey]struct{}

	observer OccupancyObserver
	changed  chan struct{}
}

func NewTracker(store core.SessionStore, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:   store,
		now:     now,
		byConn:  make(map[domain.ConnectionID]map[domain.SessionKey]domain.PresenceSession),
		byRoom:  make(map[domain.RoomID]map[domain.SessionKey]struct{}),
		changed: make(chan struct{}, 1),
	}
}

func (t *Tracker) observe(o OccupancyObserver) {
	t.mu.Lock()
	t.observer = o
	t.mu.Unlock()
}

// Rebuild replaces the cache with what the store holds.
func (t *Tracker) Rebuild(ctx context.Context) error {
	sessions, err := t.store.List(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.byConn = make(map[domain.ConnectionID]map[domain.SessionKey]domain.PresenceSession)
	t.byRoom = make(map[domain.RoomID]map[domain.SessionKey]struct{})
	for _, s := range sessions {
		t.putLocked(s)
	}
	t.mu.Unlock()
	log.Info().Str("module", "app.presence").Int("sessions", len(sessions)).Msg("rebuilt presence cache")
	return nil
}

// Join records a session of kind for conn in channel. A previous session of
// the same kind in another channel is ended first.
func (t *Tracker) Join(ctx context.Context, channel domain.RoomID, conn domain.ConnectionID, name string, kind domain.Kind) error {
	var ended []domain.RoomID
	if prev, ok := t.Current(conn, kind); ok && prev.RoomID != channel {
		removed, err := t.store.Remove(ctx, conn, kind)
		if err != nil {
			log.Error().Err(err).Str("module", "app.presence").Str("conn", string(conn)).Msg("end previous session")
			return err
		}
		t.dropCached(removed)
		ended = roomsOf(removed)
	}

	at := t.now()
	if err := t.store.Upsert(ctx, channel, conn, name, kind, at); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("conn", string(conn)).Str("room", string(channel)).Msg("upsert session")
		if len(ended) > 0 {
			// the previous session is gone either way
			t.touch(ctx, ended)
		}
		return err
	}

	t.mu.Lock()
	key := domain.SessionKey{RoomID: channel, ConnectionID: conn, Kind: kind}
	sess, ok := t.byConn[conn][key]
	if !ok {
		sess = domain.PresenceSession{RoomID: channel, ConnectionID: conn, Kind: kind, JoinedAt: at}
	}
	sess.DisplayName = name
	sess.LastHeartbeat = at
	t.putLocked(sess)
	t.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("conn", string(conn)).Str("room", string(channel)).Str("kind", string(kind)).Msg("joined")
	t.touch(ctx, append([]domain.RoomID{channel}, ended...))
	return nil
}

// Leave ends conn's sessions of the given kinds, or all of them.
func (t *Tracker) Leave(ctx context.Context, conn domain.ConnectionID, kinds ...domain.Kind) ([]domain.PresenceSession, error) {
	removed, err := t.store.Remove(ctx, conn, kinds...)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("conn", string(conn)).Msg("remove sessions")
		return nil, err
	}
	t.dropCached(removed)
	if len(removed) > 0 {
		log.Info().Str("module", "app.presence").Str("conn", string(conn)).Int("sessions", len(removed)).Msg("left")
		t.touch(ctx, roomsOf(removed))
	}
	return removed, nil
}

// Disconnect drops every session of conn. The gateway calls it once per
// connection.
func (t *Tracker) Disconnect(ctx context.Context, conn domain.ConnectionID) ([]domain.PresenceSession, error) {
	return t.Leave(ctx, conn)
}

func (t *Tracker) Heartbeat(ctx context.Context, conn domain.ConnectionID) error {
	at := t.now()
	if err := t.store.Heartbeat(ctx, conn, at); err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Str("conn", string(conn)).Msg("heartbeat")
		return err
	}
	t.mu.Lock()
	for key, sess := range t.byConn[conn] {
		sess.LastHeartbeat = at
		t.byConn[conn][key] = sess
	}
	t.mu.Unlock()
	return nil
}

// Rename rewrites the display name on every session conn holds.
func (t *Tracker) Rename(ctx context.Context, conn domain.ConnectionID, name string) error {
	at := t.now()
	for _, sess := range t.Sessions(conn) {
		if err := t.store.Upsert(ctx, sess.RoomID, conn, name, sess.Kind, at); err != nil {
			log.Error().Err(err).Str("module", "app.presence").Str("conn", string(conn)).Msg("rename session")
			return err
		}
		t.mu.Lock()
		sess.DisplayName = name
		sess.LastHeartbeat = at
		t.putLocked(sess)
		t.mu.Unlock()
	}
	t.notifyChanged()
	return nil
}

// Occupancy always asks the store.
func (t *Tracker) Occupancy(ctx context.Context, room domain.RoomID) (domain.Occupancy, error) {
	return t.store.Occupancy(ctx, room)
}

// SweepStale removes orphaned sessions from the store and drops exactly
// those from the cache. Sessions rejoined or refreshed meanwhile stay.
func (t *Tracker) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := t.store.SweepStale(ctx, maxAge, t.now())
	if err != nil {
		return 0, err
	}
	if len(removed) == 0 {
		return 0, nil
	}
	t.dropSwept(removed)
	log.Info().Str("module", "app.presence").Int("removed", len(removed)).Msg("swept stale sessions")
	t.touch(ctx, roomsOf(removed))
	return len(removed), nil
}

func (t *Tracker) Sessions(conn domain.ConnectionID) []domain.PresenceSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.PresenceSession, 0, len(t.byConn[conn]))
	for _, s := range t.byConn[conn] {
		out = append(out, s)
	}
	return out
}

// Current returns conn's session of kind, if any.
func (t *Tracker) Current(conn domain.ConnectionID, kind domain.Kind) (domain.PresenceSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for key, s := range t.byConn[conn] {
		if key.Kind == kind {
			return s, true
		}
	}
	return domain.PresenceSession{}, false
}

// Known reports whether conn holds any session.
func (t *Tracker) Known(conn domain.ConnectionID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byConn[conn]) > 0
}

func (t *Tracker) DisplayName(conn domain.ConnectionID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.byConn[conn] {
		return s.DisplayName
	}
	return ""
}

// Members lists who is in exactly this channel with the given kind.
func (t *Tracker) Members(channel domain.RoomID, kind domain.Kind) []domain.Occupant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Occupant, 0, len(t.byRoom[channel]))
	for key := range t.byRoom[channel] {
		if key.Kind != kind {
			continue
		}
		s := t.byConn[key.ConnectionID][key]
		out = append(out, domain.Occupant{ConnectionID: s.ConnectionID, DisplayName: s.DisplayName, Kind: s.Kind})
	}
	sortOccupants(out)
	return out
}

// Snapshot groups every cached session by channel.
func (t *Tracker) Snapshot() core.PresenceSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := make(core.PresenceSnapshot, len(t.byRoom))
	for room, keys := range t.byRoom {
		occ := make([]domain.Occupant, 0, len(keys))
		for key := range keys {
			s := t.byConn[key.ConnectionID][key]
			occ = append(occ, domain.Occupant{ConnectionID: s.ConnectionID, DisplayName: s.DisplayName, Kind: s.Kind})
		}
		sortOccupants(occ)
		snap[room] = occ
	}
	return snap
}

// Changes fires at most once per burst of mutations.
func (t *Tracker) Changes() <-chan struct{} { return t.changed }

// RunNotifier broadcasts a presence snapshot after every burst of changes
// until ctx is done.
func (t *Tracker) RunNotifier(ctx context.Context, n core.Notifier) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.changed:
			n.Broadcast(core.Outbound{Type: core.OutPresenceSnapshot, Data: t.Snapshot()})
		}
	}
}

func (t *Tracker) notifyChanged() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

func (t *Tracker) touch(ctx context.Context, channels []domain.RoomID) {
	t.notifyChanged()
	t.mu.RLock()
	o := t.observer
	t.mu.RUnlock()
	if o != nil {
		o(ctx, channels)
	}
}

func (t *Tracker) putLocked(s domain.PresenceSession) {
	key := s.Key()
	sessions, ok := t.byConn[s.ConnectionID]
	if !ok {
		sessions = make(map[domain.SessionKey]domain.PresenceSession)
		t.byConn[s.ConnectionID] = sessions
	}
	sessions[key] = s
	keys, ok := t.byRoom[s.RoomID]
	if !ok {
		keys = make(map[domain.SessionKey]struct{})
		t.byRoom[s.RoomID] = keys
	}
	keys[key] = struct{}{}
}

func (t *Tracker) dropCached(removed []domain.PresenceSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range removed {
		key := s.Key()
		if sessions, ok := t.byConn[key.ConnectionID]; ok {
			delete(sessions, key)
			if len(sessions) == 0 {
				delete(t.byConn, key.ConnectionID)
			}
		}
		if keys, ok := t.byRoom[key.RoomID]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(t.byRoom, key.RoomID)
			}
		}
	}
}

// dropSwept forgets swept sessions unless the cached copy carries a newer
// heartbeat than the one the store swept.
func (t *Tracker) dropSwept(swept []domain.PresenceSession) {
	drop := make([]domain.PresenceSession, 0, len(swept))
	t.mu.RLock()
	for _, s := range swept {
		cached, ok := t.byConn[s.ConnectionID][s.Key()]
		if ok && cached.LastHeartbeat.After(s.LastHeartbeat) {
			continue
		}
		drop = append(drop, s)
	}
	t.mu.RUnlock()
	t.dropCached(drop)
}

func roomsOf(sessions []domain.PresenceSession) []domain.RoomID {
	out := make([]domain.RoomID, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.RoomID)
	}
	return out
}

func sortOccupants(o []domain.Occupant) {
	sort.Slice(o, func(i, j int) bool {
		if o[i].DisplayName != o[j].DisplayName {
			return o[i].DisplayName < o[j].DisplayName
		}
		return o[i].ConnectionID < o[j].ConnectionID
	})
}

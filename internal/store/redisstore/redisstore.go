// Package redisstore shares presence sessions between gateway instances
// through Redis.
//
// Layout under the configured prefix:
//
//	conn:<id>   hash  member -> session JSON
//	chan:<id>   set   members present in that channel
//	chans       set   channel ids with at least one member
//	beats       zset  member scored by last heartbeat (unix ms)
//
// A member is "<kind>\x1f<connection>\x1f<channel>".
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

const sep = "\x1f"

// pruneChannel drops a channel from the index once its member set is empty.
var pruneChannel = redis.NewScript(`
if redis.call('SCARD', KEYS[1]) == 0 then
	redis.call('SREM', KEYS[2], ARGV[1])
end
return 'OK'
`)

type Sessions struct {
	rdb    *redis.Client
	prefix string
}

var _ core.SessionStore = (*Sessions)(nil)

func New(rdb *redis.Client, prefix string) *Sessions {
	return &Sessions{rdb: rdb, prefix: prefix}
}

// Dial connects and pings, so a wrong address fails at startup.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *Sessions) connKey(conn domain.ConnectionID) string { return s.prefix + "conn:" + string(conn) }
func (s *Sessions) chanKey(room domain.RoomID) string       { return s.prefix + "chan:" + string(room) }
func (s *Sessions) chansKey() string                        { return s.prefix + "chans" }
func (s *Sessions) beatsKey() string                        { return s.prefix + "beats" }

func member(k domain.SessionKey) string {
	return string(k.Kind) + sep + string(k.ConnectionID) + sep + string(k.RoomID)
}

func parseMember(m string) (domain.SessionKey, bool) {
	parts := strings.SplitN(m, sep, 3)
	if len(parts) != 3 {
		return domain.SessionKey{}, false
	}
	return domain.SessionKey{Kind: domain.Kind(parts[0]), ConnectionID: domain.ConnectionID(parts[1]), RoomID: domain.RoomID(parts[2])}, true
}

func (s *Sessions) Upsert(ctx context.Context, room domain.RoomID, conn domain.ConnectionID, name string, kind domain.Kind, at time.Time) error {
	key := domain.SessionKey{RoomID: room, ConnectionID: conn, Kind: kind}
	m := member(key)

	sess := domain.PresenceSession{RoomID: room, ConnectionID: conn, Kind: kind, JoinedAt: at}
	raw, err := s.rdb.HGet(ctx, s.connKey(conn), m).Bytes()
	switch {
	case err == redis.Nil:
	case err != nil:
		return fmt.Errorf("redis: read session: %w", err)
	default:
		var prev domain.PresenceSession
		if json.Unmarshal(raw, &prev) == nil {
			sess.JoinedAt = prev.JoinedAt
		}
	}
	sess.DisplayName = name
	sess.LastHeartbeat = at

	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.connKey(conn), m, b)
	pipe.SAdd(ctx, s.chanKey(room), m)
	pipe.SAdd(ctx, s.chansKey(), string(room))
	pipe.ZAdd(ctx, s.beatsKey(), redis.Z{Score: float64(at.UnixMilli()), Member: m})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert session: %w", err)
	}
	return nil
}

func (s *Sessions) Remove(ctx context.Context, conn domain.ConnectionID, kinds ...domain.Kind) ([]domain.PresenceSession, error) {
	all, err := s.rdb.HGetAll(ctx, s.connKey(conn)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read sessions: %w", err)
	}
	var removed []domain.PresenceSession
	var keys []domain.SessionKey
	for m, raw := range all {
		key, ok := parseMember(m)
		if !ok {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, key.Kind) {
			continue
		}
		var sess domain.PresenceSession
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			sess = domain.PresenceSession{RoomID: key.RoomID, ConnectionID: key.ConnectionID, Kind: key.Kind}
		}
		removed = append(removed, sess)
		keys = append(keys, key)
	}
	if err := s.drop(ctx, keys); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Sessions) Heartbeat(ctx context.Context, conn domain.ConnectionID, at time.Time) error {
	all, err := s.rdb.HGetAll(ctx, s.connKey(conn)).Result()
	if err != nil {
		return fmt.Errorf("redis: read sessions: %w", err)
	}
	if len(all) == 0 {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	for m, raw := range all {
		var sess domain.PresenceSession
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			continue
		}
		sess.LastHeartbeat = at
		b, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, s.connKey(conn), m, b)
		pipe.ZAdd(ctx, s.beatsKey(), redis.Z{Score: float64(at.UnixMilli()), Member: m})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: heartbeat: %w", err)
	}
	return nil
}

func (s *Sessions) Occupancy(ctx context.Context, room domain.RoomID) (domain.Occupancy, error) {
	chans, err := s.rdb.SMembers(ctx, s.chansKey()).Result()
	if err != nil {
		return domain.Occupancy{}, fmt.Errorf("redis: list channels: %w", err)
	}
	var members []string
	for _, ch := range chans {
		if !room.Contains(domain.RoomID(ch)) {
			continue
		}
		ms, err := s.rdb.SMembers(ctx, s.chanKey(domain.RoomID(ch))).Result()
		if err != nil {
			return domain.Occupancy{}, fmt.Errorf("redis: channel members: %w", err)
		}
		members = append(members, ms...)
	}
	sessions, err := s.load(ctx, members)
	if err != nil {
		return domain.Occupancy{}, err
	}
	return domain.FoldOccupancy(room, sessions), nil
}

func (s *Sessions) SweepStale(ctx context.Context, maxAge time.Duration, now time.Time) ([]domain.PresenceSession, error) {
	cutoff := now.Add(-maxAge).UnixMilli()
	stale, err := s.rdb.ZRangeByScore(ctx, s.beatsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stale scan: %w", err)
	}
	loaded, err := s.load(ctx, stale)
	if err != nil {
		return nil, err
	}
	byKey := make(map[domain.SessionKey]domain.PresenceSession, len(loaded))
	for _, sess := range loaded {
		byKey[sess.Key()] = sess
	}

	keys := make([]domain.SessionKey, 0, len(stale))
	removed := make([]domain.PresenceSession, 0, len(stale))
	for _, m := range stale {
		key, ok := parseMember(m)
		if !ok {
			continue
		}
		sess, ok := byKey[key]
		if !ok {
			sess = domain.PresenceSession{RoomID: key.RoomID, ConnectionID: key.ConnectionID, Kind: key.Kind}
		}
		keys = append(keys, key)
		removed = append(removed, sess)
	}
	if err := s.drop(ctx, keys); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Sessions) List(ctx context.Context) ([]domain.PresenceSession, error) {
	members, err := s.rdb.ZRange(ctx, s.beatsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list sessions: %w", err)
	}
	return s.load(ctx, members)
}

// load resolves members to sessions, grouped per connection hash.
func (s *Sessions) load(ctx context.Context, members []string) ([]domain.PresenceSession, error) {
	byConn := make(map[domain.ConnectionID][]string)
	for _, m := range members {
		key, ok := parseMember(m)
		if !ok {
			continue
		}
		byConn[key.ConnectionID] = append(byConn[key.ConnectionID], m)
	}
	out := make([]domain.PresenceSession, 0, len(members))
	for conn, fields := range byConn {
		vals, err := s.rdb.HMGet(ctx, s.connKey(conn), fields...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: load sessions: %w", err)
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var sess domain.PresenceSession
			if json.Unmarshal([]byte(raw), &sess) == nil {
				out = append(out, sess)
			}
		}
	}
	return out, nil
}

func (s *Sessions) drop(ctx context.Context, keys []domain.SessionKey) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	rooms := make(map[domain.RoomID]struct{})
	for _, k := range keys {
		m := member(k)
		pipe.HDel(ctx, s.connKey(k.ConnectionID), m)
		pipe.SRem(ctx, s.chanKey(k.RoomID), m)
		pipe.ZRem(ctx, s.beatsKey(), m)
		rooms[k.RoomID] = struct{}{}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove sessions: %w", err)
	}
	for room := range rooms {
		if err := pruneChannel.Run(ctx, s.rdb, []string{s.chanKey(room), s.chansKey()}, string(room)).Err(); err != nil {
			return fmt.Errorf("redis: prune channel: %w", err)
		}
	}
	return nil
}

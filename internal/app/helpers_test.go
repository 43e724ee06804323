package app_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
	"github.com/dkeye/Lounge/internal/store/memory"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder is a Notifier that keeps everything it was asked to send.
type recorder struct {
	mu         sync.Mutex
	broadcasts []core.Outbound
	direct     map[domain.ConnectionID][]core.Outbound
	online     map[domain.ConnectionID]bool
}

func newRecorder(online ...domain.ConnectionID) *recorder {
	r := &recorder{direct: make(map[domain.ConnectionID][]core.Outbound), online: make(map[domain.ConnectionID]bool)}
	for _, c := range online {
		r.online[c] = true
	}
	return r
}

func (r *recorder) Broadcast(msg core.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, msg)
}

func (r *recorder) SendTo(conn domain.ConnectionID, msg core.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[conn] {
		return core.ErrNotConnected
	}
	r.direct[conn] = append(r.direct[conn], msg)
	return nil
}

func (r *recorder) ofType(typ string) []core.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Outbound
	for _, m := range r.broadcasts {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) sentTo(conn domain.ConnectionID) []core.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Outbound(nil), r.direct[conn]...)
}

func (r *recorder) deletions(id domain.RoomID) int {
	n := 0
	for _, m := range r.ofType(core.OutRoomDeleted) {
		if m.Data.(core.RoomDeleted).RoomID == id {
			n++
		}
	}
	return n
}

type fixture struct {
	clock     *clock
	notes     *recorder
	sessions  *memory.Sessions
	rooms     *memory.Rooms
	tracker   *app.Tracker
	registry  *app.Registry
	lifecycle *app.Lifecycle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newClock(),
		notes:    newRecorder(),
		sessions: memory.NewSessions(),
		rooms:    memory.NewRooms(),
	}
	f.tracker = app.NewTracker(f.sessions, f.clock.Now)
	f.registry = app.NewRegistry(f.rooms, f.notes, f.clock.Now)
	f.lifecycle = app.NewLifecycle(app.DefaultLifecycleConfig(), f.tracker, f.registry, f.clock.Now)
	return f
}

func (f *fixture) exists(t *testing.T, id domain.RoomID) bool {
	t.Helper()
	_, err := f.rooms.Get(t.Context(), id)
	return err == nil
}

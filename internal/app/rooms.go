package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

const (
	maxRoomNameLen = 64
	maxRoomIDTries = 10
)

// Registry is the catalog of rooms. It owns room existence and tells every
// connection when a room appears or goes away.
type Registry struct {
	store    core.RoomStore
	notifier core.Notifier
	now      func() time.Time

	// serializes id allocation
	createMu sync.Mutex

	hookMu    sync.RWMutex
	onDeleted []func(ctx context.Context, id domain.RoomID)
}

func NewRegistry(store core.RoomStore, notifier core.Notifier, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, notifier: notifier, now: now}
}

// Create persists a new room and broadcasts it. An empty secret makes the
// room public.
func (r *Registry) Create(ctx context.Context, name, createdBy string, secret *string) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameLen {
		return domain.Room{}, ErrRoomNameInvalid
	}
	if secret != nil && *secret == "" {
		secret = nil
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	existing, err := r.store.List(ctx)
	if err != nil {
		return domain.Room{}, err
	}
	at := r.now()
	slug := Slugify(name)
	for attempt := 0; attempt < maxRoomIDTries; attempt++ {
		id := roomIDCandidate(slug, at, attempt)
		if foldsInto(id, existing) {
			continue
		}
		room := domain.Room{ID: id, Name: name, CreatedBy: createdBy, CreatedAt: at, AccessSecret: secret}
		err := r.store.Create(ctx, room)
		if errors.Is(err, core.ErrRoomExists) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("module", "app.rooms").Str("room", string(id)).Msg("create room")
			return domain.Room{}, err
		}
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("name", name).Bool("protected", secret != nil).Msg("room created")
		r.notifier.Broadcast(core.Outbound{Type: core.OutRoomCreated, Data: room.View()})
		return room, nil
	}
	return domain.Room{}, ErrRoomIDExhausted
}

// foldsInto reports whether id would share occupancy with an existing room
// under the "<room>-" sub-channel fold.
func foldsInto(id domain.RoomID, rooms []domain.Room) bool {
	for _, room := range rooms {
		if room.ID == id || room.ID.Contains(id) || id.Contains(room.ID) {
			return true
		}
	}
	return false
}

// VerifyAccess checks secret against the room. Public rooms always pass.
func (r *Registry) VerifyAccess(ctx context.Context, id domain.RoomID, secret string) (bool, error) {
	room, err := r.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return room.Allows(secret), nil
}

func (r *Registry) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]domain.Room, error) {
	return r.store.List(ctx)
}

// Views is List without secrets.
func (r *Registry) Views(ctx context.Context) ([]domain.RoomView, error) {
	rooms, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoomView, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.View())
	}
	return out, nil
}

// Delete removes the room with its history and broadcasts the id.
func (r *Registry) Delete(ctx context.Context, id domain.RoomID) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
	r.notifier.Broadcast(core.Outbound{Type: core.OutRoomDeleted, Data: core.RoomDeleted{RoomID: id}})

	r.hookMu.RLock()
	hooks := r.onDeleted
	r.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, id)
	}
	return nil
}

// OnDeleted registers fn to run after every successful Delete.
func (r *Registry) OnDeleted(fn func(ctx context.Context, id domain.RoomID)) {
	r.hookMu.Lock()
	r.onDeleted = append(r.onDeleted, fn)
	r.hookMu.Unlock()
}

// ServerOf finds the room a channel belongs to.
func ServerOf(channel domain.RoomID, rooms []domain.Room) (domain.Room, bool) {
	for _, room := range rooms {
		if room.ID.Contains(channel) {
			return room, true
		}
	}
	return domain.Room{}, false
}

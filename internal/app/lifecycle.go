package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

type LifecycleConfig struct {
	DeleteAfter        time.Duration
	GracePeriod        time.Duration
	StaleSessionMaxAge time.Duration
	SweepInterval      time.Duration
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		DeleteAfter:        30 * time.Second,
		GracePeriod:        5 * time.Minute,
		StaleSessionMaxAge: 5 * time.Minute,
		SweepInterval:      10 * time.Second,
	}
}

type RoomState int

const (
	StateOccupied RoomState = iota
	StateEmptyPending
)

func (s RoomState) String() string {
	if s == StateEmptyPending {
		return "empty_pending"
	}
	return "occupied"
}

// TickReport summarizes one reconciliation pass.
type TickReport struct {
	InGrace bool
	Swept   int
	Pending []domain.RoomID
	Deleted []domain.RoomID
	Failed  []domain.RoomID
}

// Lifecycle deletes rooms that stayed empty long enough. A room is deleted
// only when it has been empty for DeleteAfter, the process is past its
// startup grace period, and a final occupancy check still reads zero.
type Lifecycle struct {
	cfg     LifecycleConfig
	tracker *Tracker
	rooms   *Registry
	now     func() time.Time
	started time.Time

	mu         sync.Mutex
	emptySince map[domain.RoomID]time.Time
}

// NewLifecycle starts the grace window at construction and subscribes to
// the tracker's occupancy changes.
func NewLifecycle(cfg LifecycleConfig, tracker *Tracker, rooms *Registry, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	l := &Lifecycle{
		cfg:        cfg,
		tracker:    tracker,
		rooms:      rooms,
		now:        now,
		started:    now(),
		emptySince: make(map[domain.RoomID]time.Time),
	}
	tracker.observe(l.Recompute)
	return l
}

// Run ticks every SweepInterval until ctx is done. A panicking tick is
// logged and the loop keeps going.
func (l *Lifecycle) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	log.Info().Str("module", "app.lifecycle").
		Dur("delete_after", l.cfg.DeleteAfter).
		Dur("grace_period", l.cfg.GracePeriod).
		Dur("sweep_interval", l.cfg.SweepInterval).
		Msg("lifecycle started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.lifecycle").Msg("lifecycle stopped")
			return nil
		case <-ticker.C:
			if r := panics.Try(func() { l.Tick(ctx) }); r != nil {
				log.Error().Err(r.AsError()).Str("module", "app.lifecycle").Msg("tick panicked")
			}
		}
	}
}

func (l *Lifecycle) InGrace() bool {
	return l.now().Sub(l.started) < l.cfg.GracePeriod
}

// Tick sweeps stale sessions, then evaluates every room.
func (l *Lifecycle) Tick(ctx context.Context) TickReport {
	now := l.now()
	if now.Sub(l.started) < l.cfg.GracePeriod {
		log.Debug().Str("module", "app.lifecycle").
			Dur("remaining", l.cfg.GracePeriod-now.Sub(l.started)).
			Msg("within startup grace, skipping sweep")
		return TickReport{InGrace: true}
	}

	var report TickReport
	n, err := l.tracker.SweepStale(ctx, l.cfg.StaleSessionMaxAge)
	if err != nil {
		log.Error().Err(err).Str("module", "app.lifecycle").Msg("stale sweep failed")
	}
	report.Swept = n

	rooms, err := l.rooms.List(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.lifecycle").Msg("list rooms failed")
		return report
	}
	l.forgetMissing(rooms)

	for _, room := range rooms {
		var deleted, pending bool
		var evalErr error
		if r := panics.Try(func() { pending, deleted, evalErr = l.evaluate(ctx, room.ID, now) }); r != nil {
			evalErr = r.AsError()
		}
		switch {
		case evalErr != nil:
			log.Error().Err(evalErr).Str("module", "app.lifecycle").Str("room", string(room.ID)).Msg("evaluate room")
			report.Failed = append(report.Failed, room.ID)
		case deleted:
			report.Deleted = append(report.Deleted, room.ID)
		case pending:
			report.Pending = append(report.Pending, room.ID)
		}
	}
	return report
}

func (l *Lifecycle) evaluate(ctx context.Context, id domain.RoomID, now time.Time) (pending, deleted bool, err error) {
	occ, err := l.tracker.Occupancy(ctx, id)
	if err != nil {
		return false, false, err
	}
	if !occ.Empty() {
		l.clear(id)
		return false, false, nil
	}

	l.mu.Lock()
	since, ok := l.emptySince[id]
	if !ok {
		l.emptySince[id] = now
		l.mu.Unlock()
		log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Msg("room empty, countdown started")
		return true, false, nil
	}
	l.mu.Unlock()

	if now.Sub(since) < l.cfg.DeleteAfter {
		return true, false, nil
	}

	occ, err = l.tracker.Occupancy(ctx, id)
	if err != nil {
		return true, false, err
	}
	if !occ.Empty() {
		l.clear(id)
		log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Msg("room reoccupied before delete")
		return false, false, nil
	}

	err = l.rooms.Delete(ctx, id)
	if errors.Is(err, core.ErrRoomNotFound) {
		l.clear(id)
		return false, false, nil
	}
	if err != nil {
		return true, false, err
	}
	l.clear(id)
	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Dur("empty_for", now.Sub(since)).Msg("room deleted after countdown")
	return false, true, nil
}

// Recompute refreshes EmptySince for the rooms owning channels. It never
// deletes.
func (l *Lifecycle) Recompute(ctx context.Context, channels []domain.RoomID) {
	if len(channels) == 0 {
		return
	}
	rooms, err := l.rooms.List(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.lifecycle").Msg("recompute: list rooms")
		return
	}
	seen := make(map[domain.RoomID]struct{})
	for _, ch := range channels {
		room, ok := ServerOf(ch, rooms)
		if !ok {
			continue
		}
		if _, dup := seen[room.ID]; dup {
			continue
		}
		seen[room.ID] = struct{}{}

		occ, err := l.tracker.Occupancy(ctx, room.ID)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.lifecycle").Str("room", string(room.ID)).Msg("recompute: occupancy")
			continue
		}
		if !occ.Empty() {
			l.clear(room.ID)
			continue
		}
		l.mu.Lock()
		if _, ok := l.emptySince[room.ID]; !ok {
			l.emptySince[room.ID] = l.now()
			log.Info().Str("module", "app.lifecycle").Str("room", string(room.ID)).Msg("room empty, countdown started")
		}
		l.mu.Unlock()
	}
}

// State reports the room's lifecycle state and, when empty, since when.
func (l *Lifecycle) State(id domain.RoomID) (RoomState, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if since, ok := l.emptySince[id]; ok {
		return StateEmptyPending, since
	}
	return StateOccupied, time.Time{}
}

func (l *Lifecycle) clear(id domain.RoomID) {
	l.mu.Lock()
	delete(l.emptySince, id)
	l.mu.Unlock()
}

func (l *Lifecycle) forgetMissing(rooms []domain.Room) {
	known := make(map[domain.RoomID]struct{}, len(rooms))
	for _, r := range rooms {
		known[r.ID] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.emptySince {
		if _, ok := known[id]; !ok {
			delete(l.emptySince, id)
		}
	}
}

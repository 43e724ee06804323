package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
	"github.com/dkeye/Lounge/internal/store/memory"
)

func TestSessionsUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.NewSessions()
	t0 := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Upsert(ctx, "gaming-1234", "c1", "Alice", domain.KindText, t0))
	require.NoError(t, s.Upsert(ctx, "gaming-1234", "c1", "Alicia", domain.KindText, t0.Add(time.Minute)))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Alicia", all[0].DisplayName)
	assert.Equal(t, t0, all[0].JoinedAt)
	assert.Equal(t, t0.Add(time.Minute), all[0].LastHeartbeat)

	occ, err := s.Occupancy(ctx, "gaming-1234")
	require.NoError(t, err)
	assert.Equal(t, 1, occ.Count)
	assert.Equal(t, []string{"Alicia"}, occ.OccupantNames)
}

func TestSessionsOccupancyFoldsVoiceSubChannels(t *testing.T) {
	ctx := context.Background()
	s := memory.NewSessions()
	now := time.Now()

	require.NoError(t, s.Upsert(ctx, "gaming-1234-general", "bob", "Bob", domain.KindVoice, now))
	require.NoError(t, s.Upsert(ctx, "gaming-12345", "eve", "Eve", domain.KindText, now))

	occ, err := s.Occupancy(ctx, "gaming-1234")
	require.NoError(t, err)
	assert.Equal(t, 1, occ.Count)
	assert.Equal(t, []string{"Bob"}, occ.OccupantNames)
}

func TestSessionsRemoveByKind(t *testing.T) {
	ctx := context.Background()
	s := memory.NewSessions()
	now := time.Now()
	require.NoError(t, s.Upsert(ctx, "r-1", "c1", "Alice", domain.KindText, now))
	require.NoError(t, s.Upsert(ctx, "r-1-voice", "c1", "Alice", domain.KindVoice, now))

	removed, err := s.Remove(ctx, "c1", domain.KindVoice)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, domain.RoomID("r-1-voice"), removed[0].RoomID)

	removed, err = s.Remove(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, domain.KindText, removed[0].Kind)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSessionsSweepStale(t *testing.T) {
	ctx := context.Background()
	s := memory.NewSessions()
	t0 := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.Upsert(ctx, "r-1", "old", "Old", domain.KindText, t0))
	require.NoError(t, s.Upsert(ctx, "r-1", "fresh", "Fresh", domain.KindText, t0))
	require.NoError(t, s.Heartbeat(ctx, "fresh", t0.Add(4*time.Minute)))

	swept, err := s.SweepStale(ctx, 5*time.Minute, t0.Add(6*time.Minute))
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, domain.ConnectionID("old"), swept[0].ConnectionID)

	occ, err := s.Occupancy(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fresh"}, occ.OccupantNames)
}

func TestRoomsLifecycle(t *testing.T) {
	ctx := context.Background()
	r := memory.NewRooms()
	room := domain.Room{ID: "gaming-1234", Name: "Gaming", CreatedAt: time.Now()}

	require.NoError(t, r.Create(ctx, room))
	assert.ErrorIs(t, r.Create(ctx, room), core.ErrRoomExists)

	got, err := r.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gaming", got.Name)

	require.NoError(t, r.Append(ctx, domain.Message{ID: "1", RoomID: room.ID, Content: "hi"}))
	require.NoError(t, r.Append(ctx, domain.Message{ID: "2", RoomID: room.ID, Content: "there"}))
	msgs, err := r.Recent(ctx, room.ID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "2", msgs[0].ID)

	require.NoError(t, r.Delete(ctx, room.ID))
	_, err = r.Get(ctx, room.ID)
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
	assert.ErrorIs(t, r.Delete(ctx, room.ID), core.ErrRoomNotFound)
	msgs, err = r.Recent(ctx, room.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

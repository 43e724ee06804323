package app_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

func TestSendDeliversToTextMembers(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	notes := newRecorder("a", "b")
	chat := app.NewChat(f.rooms, f.tracker, notes, f.clock.Now)

	require.NoError(t, f.tracker.Join(ctx, "r-1", "a", "Alice", domain.KindText))
	require.NoError(t, f.tracker.Join(ctx, "r-1", "b", "Bob", domain.KindText))
	require.NoError(t, f.tracker.Join(ctx, "r-1", "c", "Carol", domain.KindText))
	require.NoError(t, f.tracker.Join(ctx, "r-1-general", "d", "Dan", domain.KindVoice))

	msg, err := chat.Send(ctx, "r-1", "a", "  hello  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "Alice", msg.AuthorName)
	assert.Equal(t, domain.MessageText, msg.Type)
	assert.Len(t, msg.ID, 26)

	for _, conn := range []domain.ConnectionID{"a", "b"} {
		got := notes.sentTo(conn)
		require.Len(t, got, 1, "conn %s", conn)
		assert.Equal(t, core.OutMessageReceived, got[0].Type)
	}
	assert.Empty(t, notes.sentTo("d"))
}

func TestSendValidation(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	chat := app.NewChat(f.rooms, f.tracker, f.notes, f.clock.Now)
	require.NoError(t, f.tracker.Join(ctx, "r-1", "a", "Alice", domain.KindText))

	_, err := chat.Send(ctx, "r-2", "a", "hi", domain.MessageText)
	assert.ErrorIs(t, err, app.ErrNotInRoom)

	_, err = chat.Send(ctx, "r-1", "a", "   ", domain.MessageText)
	assert.ErrorIs(t, err, app.ErrEmptyMessage)

	_, err = chat.Send(ctx, "r-1", "a", strings.Repeat("x", domain.MaxMessageLen+1), domain.MessageText)
	assert.ErrorIs(t, err, app.ErrMessageTooLong)

	_, err = chat.Send(ctx, "r-1", "a", "hi", domain.MessageType("video"))
	assert.ErrorIs(t, err, app.ErrInvalidMessageType)
}

func TestHistoryIsOldestFirstAndCapped(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	chat := app.NewChat(f.rooms, f.tracker, f.notes, f.clock.Now)
	require.NoError(t, f.tracker.Join(ctx, "r-1", "a", "Alice", domain.KindText))

	for i := 0; i < app.MaxHistory+10; i++ {
		f.clock.Advance(time.Millisecond)
		_, err := chat.Send(ctx, "r-1", "a", fmt.Sprintf("m%d", i), domain.MessageText)
		require.NoError(t, err)
	}

	msgs, err := chat.History(ctx, "r-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, app.DefaultHistory)
	assert.Equal(t, fmt.Sprintf("m%d", app.MaxHistory+10-app.DefaultHistory), msgs[0].Content)

	msgs, err = chat.History(ctx, "r-1", 10_000)
	require.NoError(t, err)
	assert.Len(t, msgs, app.MaxHistory)
	assert.Equal(t, fmt.Sprintf("m%d", app.MaxHistory+9), msgs[len(msgs)-1].Content)
}

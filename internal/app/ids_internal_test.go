package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Lounge/internal/domain"
)

func TestFoldsInto(t *testing.T) {
	rooms := []domain.Room{{ID: "foo-abc"}, {ID: "bar-1-x"}}

	assert.True(t, foldsInto("foo-abc", rooms))
	assert.True(t, foldsInto("foo-abc-1", rooms))
	assert.True(t, foldsInto("bar-1", rooms))
	assert.False(t, foldsInto("foo-abcd", rooms))
	assert.False(t, foldsInto("baz-1", rooms))
}

func TestRoomIDCandidateFallsBackToULIDTail(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)

	first := roomIDCandidate("gaming-abc123", at, 0)
	assert.Equal(t, domain.RoomID("gaming-abc123-"+timeSuffix(at, 0)), first)

	late := roomIDCandidate("gaming-abc123", at, maxRoomIDTries-1)
	assert.Regexp(t, `^gaming-[0-9a-z]{10}$`, string(late))
	assert.False(t, foldsInto(late, []domain.Room{{ID: "gaming-abc123"}}))
}

func TestTimeSuffix(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)

	a := timeSuffix(at, 0)
	b := timeSuffix(at, 1)
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a), 6)
	assert.Regexp(t, `^[0-9a-z]+$`, a)
}

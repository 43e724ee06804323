package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"type":"join-voice","room":"lobby-x1-voice-1","name":"Ann","secret":"s3"}`))
	require.NoError(t, err)
	assert.Equal(t, core.EventJoinVoice, ev.Type)
	assert.Equal(t, domain.RoomID("lobby-x1-voice-1"), ev.Room)
	assert.Equal(t, "Ann", ev.DisplayName)
	require.NotNil(t, ev.Secret)
	assert.Equal(t, "s3", *ev.Secret)

	ev, err = decodeEvent([]byte(`{"type":"signal-offer","to":"conn-b","payload":{"type":"offer","sdp":"v=0"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionID("conn-b"), ev.To)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(ev.Payload))

	ev, err = decodeEvent([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, core.EventHeartbeat, ev.Type)
}

func TestDecodeEventRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing type", `{"room":"lobby-x1"}`},
		{"unknown type", `{"type":"explode"}`},
		{"join without room", `{"type":"join-text","name":"Ann"}`},
		{"create without name", `{"type":"create-room"}`},
		{"signal without recipient", `{"type":"signal-answer","payload":{}}`},
		{"signal without payload", `{"type":"signal-candidates","to":"conn-b"}`},
		{"bad message type", `{"type":"send-message","room":"lobby-x1","content":"hi","message_type":"video"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeEvent(json.RawMessage(tc.raw))
			assert.ErrorIs(t, err, ErrBadEnvelope)
		})
	}
}

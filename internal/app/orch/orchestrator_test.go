package orch_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/app/orch"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
	"github.com/dkeye/Lounge/internal/store/memory"
)

type outbox struct {
	mu         sync.Mutex
	direct     map[domain.ConnectionID][]core.Outbound
	broadcasts []core.Outbound
}

func (o *outbox) Broadcast(msg core.Outbound) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.broadcasts = append(o.broadcasts, msg)
}

func (o *outbox) SendTo(conn domain.ConnectionID, msg core.Outbound) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.direct[conn] = append(o.direct[conn], msg)
	return nil
}

func (o *outbox) last(conn domain.ConnectionID) core.Outbound {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.direct[conn]
	if len(msgs) == 0 {
		return core.Outbound{}
	}
	return msgs[len(msgs)-1]
}

func (o *outbox) types(conn domain.ConnectionID) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, m := range o.direct[conn] {
		out = append(out, m.Type)
	}
	return out
}

type stubAgent struct {
	channel domain.RoomID
	hungUp  []domain.ConnectionID
}

func (a *stubAgent) ID() domain.ConnectionID { return "music-bot" }
func (a *stubAgent) DisplayName() string     { return "Music Bot" }
func (a *stubAgent) Deliver(context.Context, core.Signal, core.ReplyFunc) error {
	return nil
}
func (a *stubAgent) Channel() (domain.RoomID, bool) { return a.channel, a.channel != "" }
func (a *stubAgent) AttachTo(channel domain.RoomID) { a.channel = channel }
func (a *stubAgent) Detach()                        { a.channel = "" }

func (a *stubAgent) Hangup(conn domain.ConnectionID) {
	a.hungUp = append(a.hungUp, conn)
}

func newOrchestrator(t *testing.T) (*orch.Orchestrator, *outbox) {
	t.Helper()
	box := &outbox{direct: make(map[domain.ConnectionID][]core.Outbound)}
	rooms := memory.NewRooms()
	tracker := app.NewTracker(memory.NewSessions(), nil)
	agent := &stubAgent{}
	o := &orch.Orchestrator{
		Presence: tracker,
		Rooms:    app.NewRegistry(rooms, box, nil),
		Chat:     app.NewChat(rooms, tracker, box, nil),
		Relay:    app.NewRelay(tracker, box, agent),
		Notifier: box,
		Agent:    agent,
	}
	o.WatchRooms()
	return o, box
}

var alice = orch.Client{Conn: "conn-a", Token: "token-a"}
var bob = orch.Client{Conn: "conn-b", Token: "token-b"}

func TestConnectHandshake(t *testing.T) {
	o, box := newOrchestrator(t)
	_, err := o.CreateRoom(t.Context(), alice, "Gaming", nil)
	require.NoError(t, err)

	o.Connect(t.Context(), bob)

	assert.Equal(t, []string{core.OutHello, core.OutRoomList, core.OutPresenceSnapshot}, box.types(bob.Conn))
	views := box.direct[bob.Conn][1].Data.([]domain.RoomView)
	require.Len(t, views, 1)
	assert.Equal(t, "Gaming", views[0].Name)
}

func TestJoinTextChecksSecretAndSendsHistory(t *testing.T) {
	ctx := t.Context()
	o, box := newOrchestrator(t)
	secret := "abc123"
	room, err := o.CreateRoom(ctx, alice, "Vault", &secret)
	require.NoError(t, err)

	o.Handle(ctx, bob, core.Event{Type: core.EventJoinText, Room: room.ID, DisplayName: "Bob"})
	errMsg := box.last(bob.Conn)
	require.Equal(t, core.OutError, errMsg.Type)
	assert.Equal(t, "access_denied", errMsg.Data.(core.ErrorData).Code)
	assert.False(t, o.Presence.Known(bob.Conn))

	wrong := "nope"
	o.Handle(ctx, bob, core.Event{Type: core.EventJoinText, Room: room.ID, DisplayName: "Bob", Secret: &wrong})
	assert.Equal(t, core.OutError, box.last(bob.Conn).Type)

	o.Handle(ctx, bob, core.Event{Type: core.EventJoinText, Room: room.ID, DisplayName: "Bob", Secret: &secret})
	history := box.last(bob.Conn)
	require.Equal(t, core.OutMessageHistory, history.Type)
	assert.Equal(t, room.ID, history.Data.(core.MessageHistory).RoomID)

	// the creator is already granted
	o.Handle(ctx, alice, core.Event{Type: core.EventJoinText, Room: room.ID, DisplayName: "Alice"})
	assert.Equal(t, core.OutMessageHistory, box.last(alice.Conn).Type)
}

func TestJoinVoiceListsPeersAndAgent(t *testing.T) {
	ctx := t.Context()
	o, box := newOrchestrator(t)
	room, err := o.CreateRoom(ctx, alice, "Gaming", nil)
	require.NoError(t, err)
	channel := domain.VoiceChannelID(room.ID, "general")

	_, err = o.AttachAgent(ctx, room.ID, "general")
	require.NoError(t, err)

	o.Handle(ctx, alice, core.Event{Type: core.EventJoinVoice, Room: channel, DisplayName: "Alice"})
	o.Handle(ctx, bob, core.Event{Type: core.EventJoinVoice, Room: channel, DisplayName: "Bob"})

	peers := box.last(bob.Conn)
	require.Equal(t, core.OutVoicePeers, peers.Type)
	got := peers.Data.(core.VoicePeers)
	assert.Equal(t, channel, got.RoomID)
	require.Len(t, got.Peers, 2)
	assert.Equal(t, "Alice", got.Peers[0].DisplayName)
	assert.Equal(t, domain.ConnectionID("music-bot"), got.Peers[1].ConnectionID)

	occ, err := o.Presence.Occupancy(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, occ.Count, "the agent does not count as an occupant")

	o.Handle(ctx, bob, core.Event{Type: core.EventLeaveVoice})
	_, inVoice := o.Presence.Current(bob.Conn, domain.KindVoice)
	assert.False(t, inVoice)
}

func TestJoinVoiceRejectsTextRoomID(t *testing.T) {
	ctx := t.Context()
	o, box := newOrchestrator(t)
	room, err := o.CreateRoom(ctx, alice, "Gaming", nil)
	require.NoError(t, err)

	o.Handle(ctx, bob, core.Event{Type: core.EventJoinVoice, Room: room.ID, DisplayName: "Bob"})
	assert.Equal(t, "not_voice_channel", box.last(bob.Conn).Data.(core.ErrorData).Code)
}

func TestSendMessageAndSignalThroughHandle(t *testing.T) {
	ctx := t.Context()
	o, box := newOrchestrator(t)
	room, err := o.CreateRoom(ctx, alice, "Gaming", nil)
	require.NoError(t, err)
	channel := domain.VoiceChannelID(room.ID, "general")

	o.Handle(ctx, alice, core.Event{Type: core.EventJoinText, Room: room.ID, DisplayName: "Alice"})
	o.Handle(ctx, bob, core.Event{Type: core.EventJoinText, Room: room.ID, DisplayName: "Bob"})
	o.Handle(ctx, alice, core.Event{Type: core.EventSendMessage, Room: room.ID, Content: "hi bob"})

	got := box.last(bob.Conn)
	require.Equal(t, core.OutMessageReceived, got.Type)
	assert.Equal(t, "hi bob", got.Data.(domain.Message).Content)

	o.Handle(ctx, bob, core.Event{Type: core.EventJoinVoice, Room: channel, DisplayName: "Bob"})
	o.Handle(ctx, alice, core.Event{Type: core.EventSignalOffer, To: bob.Conn, Payload: json.RawMessage(`{"sdp":"x"}`)})
	offer := box.last(bob.Conn)
	require.Equal(t, core.OutPeerOffer, offer.Type)
	assert.Equal(t, "Alice", offer.Data.(core.Signal).FromName)
}

func TestRenameAndDisconnect(t *testing.T) {
	ctx := t.Context()
	o, box := newOrchestrator(t)
	room, err := o.CreateRoom(ctx, alice, "Gaming", nil)
	require.NoError(t, err)

	o.Handle(ctx, alice, core.Event{Type: core.EventJoinText, Room: room.ID, DisplayName: "Alice"})
	o.Handle(ctx, alice, core.Event{Type: core.EventRename, DisplayName: "   "})
	assert.Equal(t, "invalid_name", box.last(alice.Conn).Data.(core.ErrorData).Code)

	o.Handle(ctx, alice, core.Event{Type: core.EventRename, DisplayName: "Ally"})
	assert.Equal(t, "Ally", o.Presence.DisplayName(alice.Conn))

	o.Disconnect(ctx, alice)
	assert.False(t, o.Presence.Known(alice.Conn))
}

func TestUnknownEvent(t *testing.T) {
	o, box := newOrchestrator(t)
	o.Handle(t.Context(), alice, core.Event{Type: "dance"})
	assert.Equal(t, "unknown_event", box.last(alice.Conn).Data.(core.ErrorData).Code)
}

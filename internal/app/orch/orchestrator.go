// Package orch wires gateway events to presence, rooms, chat and signaling.
package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// Client identifies who sent an event: the live connection and the
// long-lived client token from the session cookie.
type Client struct {
	Conn  domain.ConnectionID
	Token string
}

// Agent is a synthetic participant that can be placed in a voice channel.
type Agent interface {
	core.Participant
	AttachTo(channel domain.RoomID)
	Detach()
	// Hangup tears down whatever media state the agent holds for conn.
	Hangup(conn domain.ConnectionID)
}

type Orchestrator struct {
	Presence *app.Tracker
	Rooms    *app.Registry
	Chat     *app.Chat
	Relay    *app.Relay
	Notifier core.Notifier
	Agent    Agent

	mu     sync.Mutex
	grants map[domain.ConnectionID]map[domain.RoomID]struct{}
}

type Hello struct {
	ConnectionID domain.ConnectionID `json:"connection_id"`
}

// Connect sends the initial handshake: identity, rooms and presence.
func (o *Orchestrator) Connect(ctx context.Context, c Client) {
	log.Info().Str("module", "orch").Str("conn", string(c.Conn)).Msg("connected")
	o.send(c.Conn, core.Outbound{Type: core.OutHello, Data: Hello{ConnectionID: c.Conn}})

	views, err := o.Rooms.Views(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("list rooms for handshake")
		views = []domain.RoomView{}
	}
	o.send(c.Conn, core.Outbound{Type: core.OutRoomList, Data: views})
	o.send(c.Conn, core.Outbound{Type: core.OutPresenceSnapshot, Data: o.Presence.Snapshot()})
}

// Handle dispatches one normalized event. Failures are reported to the
// sender only.
func (o *Orchestrator) Handle(ctx context.Context, c Client, ev core.Event) {
	var err error
	switch ev.Type {
	case core.EventJoinText:
		err = o.JoinText(ctx, c, ev.Room, ev.DisplayName, ev.Secret)
	case core.EventJoinVoice:
		err = o.JoinVoice(ctx, c, ev.Room, ev.DisplayName, ev.Secret)
	case core.EventLeaveVoice:
		err = o.LeaveVoice(ctx, c)
	case core.EventHeartbeat:
		err = o.Presence.Heartbeat(ctx, c.Conn)
	case core.EventRename:
		err = o.Rename(ctx, c, ev.DisplayName)
	case core.EventCreateRoom:
		_, err = o.CreateRoom(ctx, c, ev.DisplayName, ev.Secret)
	case core.EventSendMessage:
		_, err = o.Chat.Send(ctx, ev.Room, c.Conn, ev.Content, ev.MessageType)
	case core.EventSignalOffer:
		o.Relay.Relay(ctx, core.SignalOffer, c.Conn, ev.To, ev.Payload)
	case core.EventSignalAnswer:
		o.Relay.Relay(ctx, core.SignalAnswer, c.Conn, ev.To, ev.Payload)
	case core.EventSignalCandidates:
		o.Relay.Relay(ctx, core.SignalCandidates, c.Conn, ev.To, ev.Payload)
	default:
		err = ErrUnknownEvent
	}
	if err != nil {
		o.fail(c.Conn, ev.Type, err)
	}
}

// Disconnect drops every session the connection held. The gateway calls it
// exactly once per connection.
func (o *Orchestrator) Disconnect(ctx context.Context, c Client) {
	o.hangup(c.Conn)
	if _, err := o.Presence.Disconnect(ctx, c.Conn); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(c.Conn)).Msg("disconnect cleanup")
	}
	o.mu.Lock()
	delete(o.grants, c.Conn)
	o.mu.Unlock()
	log.Info().Str("module", "orch").Str("conn", string(c.Conn)).Msg("disconnected")
}

func (o *Orchestrator) send(conn domain.ConnectionID, msg core.Outbound) {
	if err := o.Notifier.SendTo(conn, msg); err != nil && !errors.Is(err, core.ErrNotConnected) {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("type", msg.Type).Msg("send")
	}
}

func (o *Orchestrator) fail(conn domain.ConnectionID, ev core.EventType, err error) {
	code := ErrorCode(err)
	log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("event", string(ev)).Str("code", code).Msg("event rejected")
	o.send(conn, core.ErrorEnvelope(code, err.Error()))
}

func (o *Orchestrator) grant(conn domain.ConnectionID, room domain.RoomID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.grants == nil {
		o.grants = make(map[domain.ConnectionID]map[domain.RoomID]struct{})
	}
	rooms, ok := o.grants[conn]
	if !ok {
		rooms = make(map[domain.RoomID]struct{})
		o.grants[conn] = rooms
	}
	rooms[room] = struct{}{}
}

func (o *Orchestrator) granted(conn domain.ConnectionID, room domain.RoomID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.grants[conn][room]
	return ok
}

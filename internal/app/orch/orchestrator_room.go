package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// JoinText enters the room's text channel and replies with its history.
func (o *Orchestrator) JoinText(ctx context.Context, c Client, id domain.RoomID, name string, secret *string) error {
	room, err := o.Rooms.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := o.authorize(c, room, secret); err != nil {
		return err
	}
	if name, err = domain.NormalizeDisplayName(name); err != nil {
		return err
	}
	if err := o.Presence.Join(ctx, room.ID, c.Conn, name, domain.KindText); err != nil {
		return err
	}

	history, err := o.Chat.History(ctx, room.ID, app.DefaultHistory)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("load history")
		history = []domain.Message{}
	}
	o.send(c.Conn, core.Outbound{Type: core.OutMessageHistory, Data: core.MessageHistory{RoomID: room.ID, Messages: history}})
	return nil
}

// JoinVoice enters a "<room>-<channel>" voice channel and tells the joiner
// who is already there.
func (o *Orchestrator) JoinVoice(ctx context.Context, c Client, channel domain.RoomID, name string, secret *string) error {
	rooms, err := o.Rooms.List(ctx)
	if err != nil {
		return err
	}
	room, ok := app.ServerOf(channel, rooms)
	if !ok || room.ID == channel {
		return ErrNotVoiceChannel
	}
	if err := o.authorize(c, room, secret); err != nil {
		return err
	}
	if name, err = domain.NormalizeDisplayName(name); err != nil {
		return err
	}
	if prev, ok := o.Presence.Current(c.Conn, domain.KindVoice); ok && prev.RoomID != channel {
		o.hangup(c.Conn)
	}
	if err := o.Presence.Join(ctx, channel, c.Conn, name, domain.KindVoice); err != nil {
		return err
	}

	peers := make([]domain.Occupant, 0)
	for _, m := range o.Presence.Members(channel, domain.KindVoice) {
		if m.ConnectionID != c.Conn {
			peers = append(peers, m)
		}
	}
	peers = append(peers, o.Relay.ParticipantsIn(channel)...)
	o.send(c.Conn, core.Outbound{Type: core.OutVoicePeers, Data: core.VoicePeers{RoomID: channel, Peers: peers}})
	return nil
}

func (o *Orchestrator) LeaveVoice(ctx context.Context, c Client) error {
	o.hangup(c.Conn)
	_, err := o.Presence.Leave(ctx, c.Conn, domain.KindVoice)
	return err
}

func (o *Orchestrator) Rename(ctx context.Context, c Client, name string) error {
	name, err := domain.NormalizeDisplayName(name)
	if err != nil {
		return err
	}
	return o.Presence.Rename(ctx, c.Conn, name)
}

// CreateRoom creates a room owned by the client token. The creator is
// granted access without presenting the secret again.
func (o *Orchestrator) CreateRoom(ctx context.Context, c Client, name string, secret *string) (domain.Room, error) {
	room, err := o.Rooms.Create(ctx, name, c.Token, secret)
	if err != nil {
		return domain.Room{}, err
	}
	o.grant(c.Conn, room.ID)
	return room, nil
}

func (o *Orchestrator) authorize(c Client, room domain.Room, secret *string) error {
	if room.AccessSecret == nil || o.granted(c.Conn, room.ID) {
		return nil
	}
	var s string
	if secret != nil {
		s = *secret
	}
	if !room.Allows(s) {
		return app.ErrAccessDenied
	}
	o.grant(c.Conn, room.ID)
	return nil
}

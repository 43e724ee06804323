package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/domain"
)

// AttachAgent places the agent in a voice channel of room and announces it
// in the room's text channel.
func (o *Orchestrator) AttachAgent(ctx context.Context, room domain.RoomID, channel string) (domain.RoomID, error) {
	if o.Agent == nil {
		return "", ErrAgentUnavailable
	}
	if _, err := o.Rooms.Get(ctx, room); err != nil {
		return "", err
	}
	if channel == "" {
		return "", ErrNotVoiceChannel
	}
	id := domain.VoiceChannelID(room, channel)
	o.Agent.AttachTo(id)
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("agent attached")

	text := fmt.Sprintf("%s joined voice channel %s", o.Agent.DisplayName(), channel)
	if _, err := o.Chat.Post(ctx, room, o.Agent.ID(), o.Agent.DisplayName(), text, domain.MessageText); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Msg("agent announcement")
	}
	return id, nil
}

func (o *Orchestrator) DetachAgent() {
	if o.Agent != nil {
		o.Agent.Detach()
	}
}

// WatchRooms subscribes the orchestrator to room deletions so the agent
// never stays in a channel of a room that is gone.
func (o *Orchestrator) WatchRooms() {
	o.Rooms.OnDeleted(o.roomDeleted)
}

func (o *Orchestrator) roomDeleted(_ context.Context, id domain.RoomID) {
	o.mu.Lock()
	for _, rooms := range o.grants {
		delete(rooms, id)
	}
	o.mu.Unlock()

	if o.Agent == nil {
		return
	}
	if ch, ok := o.Agent.Channel(); ok && id.Contains(ch) {
		o.Agent.Detach()
		log.Info().Str("module", "orch").Str("room", string(id)).Msg("agent detached, room deleted")
	}
}

func (o *Orchestrator) hangup(conn domain.ConnectionID) {
	if o.Agent != nil {
		o.Agent.Hangup(conn)
	}
}

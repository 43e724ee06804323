package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// Relay forwards opaque peer negotiation envelopes between connections.
// Payloads are never inspected. Participants registered at construction are
// reached by an in-process call instead of a network send.
type Relay struct {
	tracker      *Tracker
	notifier     core.Notifier
	participants map[domain.ConnectionID]core.Participant
}

func NewRelay(tracker *Tracker, notifier core.Notifier, participants ...core.Participant) *Relay {
	r := &Relay{
		tracker:      tracker,
		notifier:     notifier,
		participants: make(map[domain.ConnectionID]core.Participant, len(participants)),
	}
	for _, p := range participants {
		r.participants[p.ID()] = p
		log.Info().Str("module", "app.relay").Str("participant", string(p.ID())).Msg("synthetic participant registered")
	}
	return r
}

func outboundType(kind core.SignalKind) (string, bool) {
	switch kind {
	case core.SignalOffer:
		return core.OutPeerOffer, true
	case core.SignalAnswer:
		return core.OutPeerAnswer, true
	case core.SignalCandidates:
		return core.OutPeerCandidates, true
	}
	return "", false
}

// Relay delivers payload from one connection to another. Unknown or gone
// recipients are a silent no-op.
func (r *Relay) Relay(ctx context.Context, kind core.SignalKind, from, to domain.ConnectionID, payload json.RawMessage) {
	typ, ok := outboundType(kind)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("kind", string(kind)).Msg("unknown signal kind")
		return
	}
	sig := core.Signal{Kind: kind, From: from, FromName: r.nameOf(from), To: to, Payload: payload}

	if p, ok := r.participants[to]; ok {
		reply := func(ctx context.Context, kind core.SignalKind, payload json.RawMessage) {
			r.Relay(ctx, kind, p.ID(), from, payload)
		}
		if err := p.Deliver(ctx, sig, reply); err != nil {
			log.Warn().Err(err).Str("module", "app.relay").Str("participant", string(to)).Str("kind", string(kind)).Msg("participant rejected signal")
		}
		return
	}

	if !r.tracker.Known(to) {
		log.Debug().Str("module", "app.relay").Str("to", string(to)).Msg("recipient unknown, dropping signal")
		return
	}
	err := r.notifier.SendTo(to, core.Outbound{Type: typ, Data: sig})
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotConnected):
		log.Debug().Str("module", "app.relay").Str("to", string(to)).Msg("recipient gone, dropping signal")
	default:
		log.Warn().Err(err).Str("module", "app.relay").Str("to", string(to)).Msg("forward signal")
	}
}

func (r *Relay) nameOf(conn domain.ConnectionID) string {
	if p, ok := r.participants[conn]; ok {
		return p.DisplayName()
	}
	return r.tracker.DisplayName(conn)
}

// ParticipantsIn lists synthetic participants attached to channel.
func (r *Relay) ParticipantsIn(channel domain.RoomID) []domain.Occupant {
	var out []domain.Occupant
	for _, p := range r.participants {
		if ch, ok := p.Channel(); ok && ch == channel {
			out = append(out, domain.Occupant{ConnectionID: p.ID(), DisplayName: p.DisplayName(), Kind: domain.KindVoice})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

func (r *Relay) Participant(id domain.ConnectionID) (core.Participant, bool) {
	p, ok := r.participants[id]
	return p, ok
}

// IsReserved reports whether id belongs to a synthetic participant.
func (r *Relay) IsReserved(id domain.ConnectionID) bool {
	_, ok := r.participants[id]
	return ok
}

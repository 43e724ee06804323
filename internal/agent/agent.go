// Package agent is the in-process "Music Bot" voice participant. It answers
// peer offers with a pion peer connection carrying one Opus track.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

const (
	ID          domain.ConnectionID = "music-bot"
	DisplayName                     = "Music Bot"
)

var ErrUnexpectedSignal = errors.New("agent does not accept this signal")

type MusicBot struct {
	cfg   webrtc.Configuration
	track *webrtc.TrackLocalStaticRTP

	mu      sync.Mutex
	peers   map[domain.ConnectionID]*peer
	channel domain.RoomID
}

var _ core.Participant = (*MusicBot)(nil)

func New(cfg webrtc.Configuration) (*MusicBot, error) {
	track, err := newAudioTrack()
	if err != nil {
		return nil, fmt.Errorf("agent track: %w", err)
	}
	return &MusicBot{cfg: cfg, track: track, peers: make(map[domain.ConnectionID]*peer)}, nil
}

// Run feeds the audio track until ctx is done, then closes every peer.
func (b *MusicBot) Run(ctx context.Context) error {
	pumpSilence(ctx, b.track)
	b.Close()
	return nil
}

func (b *MusicBot) ID() domain.ConnectionID { return ID }
func (b *MusicBot) DisplayName() string     { return DisplayName }

func (b *MusicBot) Channel() (domain.RoomID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel, b.channel != ""
}

func (b *MusicBot) AttachTo(channel domain.RoomID) {
	b.mu.Lock()
	b.channel = channel
	b.mu.Unlock()
}

// Detach leaves the channel and hangs up on everyone.
func (b *MusicBot) Detach() {
	b.mu.Lock()
	b.channel = ""
	b.mu.Unlock()
	b.Close()
}

func (b *MusicBot) Deliver(ctx context.Context, sig core.Signal, reply core.ReplyFunc) error {
	switch sig.Kind {
	case core.SignalOffer:
		return b.onOffer(ctx, sig, reply)
	case core.SignalCandidates:
		return b.onCandidates(sig)
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedSignal, sig.Kind)
	}
}

func (b *MusicBot) onOffer(ctx context.Context, sig core.Signal, reply core.ReplyFunc) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(sig.Payload, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: sdp type %s", ErrUnexpectedSignal, offer.Type)
	}

	p, err := newPeer(b.cfg, sig.From)
	if err != nil {
		return err
	}
	p.onICE = func(c webrtc.ICECandidateInit) {
		raw, err := json.Marshal([]webrtc.ICECandidateInit{c})
		if err != nil {
			return
		}
		reply(ctx, core.SignalCandidates, raw)
	}
	p.onClosed = func() { b.forget(sig.From, p) }
	p.start()

	if err := p.addTrack(b.track); err != nil {
		p.close()
		return err
	}
	answer, err := p.answer(offer)
	if err != nil {
		p.close()
		return err
	}

	b.mu.Lock()
	old := b.peers[sig.From]
	b.peers[sig.From] = p
	b.mu.Unlock()
	if old != nil {
		old.close()
	}

	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	log.Info().Str("module", "agent").Str("conn", string(sig.From)).Msg("answered offer")
	reply(ctx, core.SignalAnswer, raw)
	return nil
}

func (b *MusicBot) onCandidates(sig core.Signal) error {
	var batch []webrtc.ICECandidateInit
	if err := json.Unmarshal(sig.Payload, &batch); err != nil {
		return fmt.Errorf("decode candidates: %w", err)
	}
	b.mu.Lock()
	p, ok := b.peers[sig.From]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no peer for %s", ErrUnexpectedSignal, sig.From)
	}
	for _, c := range batch {
		if err := p.addCandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "agent").Str("conn", string(sig.From)).Msg("add candidate")
		}
	}
	return nil
}

// Hangup closes the peer connection held for conn, if any.
func (b *MusicBot) Hangup(conn domain.ConnectionID) {
	b.mu.Lock()
	p, ok := b.peers[conn]
	delete(b.peers, conn)
	b.mu.Unlock()
	if ok {
		p.close()
		log.Info().Str("module", "agent").Str("conn", string(conn)).Msg("hung up")
	}
}

// Peers lists connections the bot currently has a peer connection with.
func (b *MusicBot) Peers() []domain.ConnectionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.ConnectionID, 0, len(b.peers))
	for id := range b.peers {
		out = append(out, id)
	}
	return out
}

func (b *MusicBot) forget(conn domain.ConnectionID, p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peers[conn] == p {
		delete(b.peers, conn)
	}
}

func (b *MusicBot) Close() {
	b.mu.Lock()
	peers := b.peers
	b.peers = make(map[domain.ConnectionID]*peer)
	b.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

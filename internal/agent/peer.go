package agent

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/domain"
)

// peer is the bot's side of one peer connection with a remote connection.
type peer struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnectionID

	onICE    func(webrtc.ICECandidateInit)
	onClosed func()
}

func DefaultWebRTCConfig(stunURLs ...string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

func newPeer(cfg webrtc.Configuration, remote domain.ConnectionID) (*peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &peer{pc: pc, remote: remote}, nil
}

func (p *peer) start() {
	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "agent").Str("conn", string(p.remote)).Str("ice_state", s.String()).Msg("ICE state")
	})
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "agent").Str("conn", string(p.remote)).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			if p.onClosed != nil {
				p.onClosed()
			}
		}
	})
	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && p.onICE != nil {
			p.onICE(cand.ToJSON())
		}
	})
}

func (p *peer) answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return p.pc.LocalDescription(), nil
}

func (p *peer) addTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}
	// drain RTCP so interceptors keep running
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *peer) addCandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *peer) close() {
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "agent").Str("conn", string(p.remote)).Msg("close error")
	}
}

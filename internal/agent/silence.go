package agent

import (
	"context"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	opusFrame      = 20 * time.Millisecond
	opusClockRate  = 48000
	samplesPerTick = opusClockRate / 1000 * 20
)

// opusSilence is one 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func newAudioTrack() (*webrtc.TrackLocalStaticRTP, error) {
	return webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", "music-bot",
	)
}

// pumpSilence writes silence frames until ctx is done. The track fans each
// packet out to every peer it is bound to.
func pumpSilence(ctx context.Context, track *webrtc.TrackLocalStaticRTP) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: 111,
			SSRC:        0x4d42,
		},
		Payload: opusSilence,
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "agent").Msg("silence pump stopped")
			return
		case <-ticker.C:
			pkt.SequenceNumber++
			pkt.Timestamp += samplesPerTick
			if err := track.WriteRTP(pkt); err != nil {
				log.Warn().Err(err).Str("module", "agent").Msg("write RTP")
			}
		}
	}
}

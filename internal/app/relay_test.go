package app_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/core/mocks"
	"github.com/dkeye/Lounge/internal/domain"
	"github.com/dkeye/Lounge/internal/store/memory"
)

func voiceTracker(t *testing.T) *app.Tracker {
	t.Helper()
	tracker := app.NewTracker(memory.NewSessions(), newClock().Now)
	require.NoError(t, tracker.Join(t.Context(), "r-1-general", "a", "Alice", domain.KindVoice))
	require.NoError(t, tracker.Join(t.Context(), "r-1-general", "b", "Bob", domain.KindVoice))
	return tracker
}

func TestRelayForwardsWithSenderIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	relay := app.NewRelay(voiceTracker(t), notifier)
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	notifier.EXPECT().SendTo(domain.ConnectionID("b"), core.Outbound{
		Type: core.OutPeerOffer,
		Data: core.Signal{Kind: core.SignalOffer, From: "a", FromName: "Alice", To: "b", Payload: payload},
	}).Return(nil)

	relay.Relay(t.Context(), core.SignalOffer, "a", "b", payload)
}

func TestRelayMapsKindsToOutboundTypes(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	relay := app.NewRelay(voiceTracker(t), notifier)

	var got []string
	notifier.EXPECT().SendTo(domain.ConnectionID("a"), gomock.Any()).DoAndReturn(
		func(_ domain.ConnectionID, msg core.Outbound) error {
			got = append(got, msg.Type)
			return nil
		}).Times(2)

	relay.Relay(t.Context(), core.SignalAnswer, "b", "a", json.RawMessage(`{}`))
	relay.Relay(t.Context(), core.SignalCandidates, "b", "a", json.RawMessage(`[]`))
	relay.Relay(t.Context(), core.SignalKind("bogus"), "b", "a", json.RawMessage(`[]`))

	assert.Equal(t, []string{core.OutPeerAnswer, core.OutPeerCandidates}, got)
}

func TestRelayToUnknownRecipientIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	relay := app.NewRelay(voiceTracker(t), notifier)

	// no SendTo expected
	relay.Relay(t.Context(), core.SignalOffer, "a", "ghost", json.RawMessage(`{}`))
}

func TestRelayToDisconnectedRecipientIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	relay := app.NewRelay(voiceTracker(t), notifier)

	notifier.EXPECT().SendTo(domain.ConnectionID("b"), gomock.Any()).Return(core.ErrNotConnected)

	assert.NotPanics(t, func() {
		relay.Relay(t.Context(), core.SignalOffer, "a", "b", json.RawMessage(`{}`))
	})
}

func TestRelayDeliversToSyntheticParticipantInProcess(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	bot := mocks.NewMockParticipant(ctrl)
	bot.EXPECT().ID().Return(domain.ConnectionID("music-bot")).AnyTimes()
	bot.EXPECT().DisplayName().Return("Music Bot").AnyTimes()
	bot.EXPECT().Channel().Return(domain.RoomID("r-1-general"), true).AnyTimes()

	relay := app.NewRelay(voiceTracker(t), notifier, bot)
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)

	bot.EXPECT().Deliver(gomock.Any(), core.Signal{Kind: core.SignalOffer, From: "a", FromName: "Alice", To: "music-bot", Payload: offer}, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ core.Signal, reply core.ReplyFunc) error {
			reply(ctx, core.SignalAnswer, answer)
			return nil
		})
	notifier.EXPECT().SendTo(domain.ConnectionID("a"), core.Outbound{
		Type: core.OutPeerAnswer,
		Data: core.Signal{Kind: core.SignalAnswer, From: "music-bot", FromName: "Music Bot", To: "a", Payload: answer},
	}).Return(nil)

	relay.Relay(t.Context(), core.SignalOffer, "a", "music-bot", offer)

	assert.True(t, relay.IsReserved("music-bot"))
	assert.Equal(t, []domain.Occupant{{ConnectionID: "music-bot", DisplayName: "Music Bot", Kind: domain.KindVoice}},
		relay.ParticipantsIn("r-1-general"))
	assert.Empty(t, relay.ParticipantsIn("r-1-afk"))
}

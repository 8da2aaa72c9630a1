package lksdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/livekit"
)

func speakers(sids ...string) *ActiveSpeakersChangedEvent {
	ev := &ActiveSpeakersChangedEvent{}
	for i, sid := range sids {
		ev.Speakers = append(ev.Speakers, &livekit.SpeakerInfo{
			Sid:    sid,
			Level:  1 - float32(i)*0.1,
			Active: true,
		})
	}
	return ev
}

func TestActiveSpeakers(t *testing.T) {
	setup := func(t *testing.T, cb *RoomCallback) *testRoom {
		tr := newTestRoom(t, cb)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		tr.join("PA_carol", "carol")
		return tr
	}

	t.Run("full diff over known participants", func(t *testing.T) {
		tr := setup(t, nil)
		bob := tr.GetRemoteParticipant("PA_bob")
		carol := tr.GetRemoteParticipant("PA_carol")

		tr.apply(speakers("PA_bob", "PA_alice"))
		require.True(t, bob.IsSpeaking())
		require.True(t, tr.LocalParticipant.IsSpeaking())
		require.False(t, carol.IsSpeaking())
		require.Equal(t, float32(1), bob.AudioLevel())

		active := tr.ActiveSpeakers()
		require.Len(t, active, 2)
		require.Equal(t, "PA_bob", active[0].SID())
		require.Equal(t, "PA_alice", active[1].SID())

		tr.apply(speakers("PA_carol"))
		require.False(t, bob.IsSpeaking())
		require.False(t, tr.LocalParticipant.IsSpeaking())
		require.True(t, carol.IsSpeaking())
		require.Zero(t, bob.AudioLevel())
	})

	t.Run("empty snapshot silences everyone", func(t *testing.T) {
		tr := setup(t, nil)
		tr.apply(speakers("PA_bob", "PA_carol", "PA_alice"))

		tr.apply(speakers())
		for _, p := range tr.Participants() {
			require.False(t, p.IsSpeaking(), p.Identity())
		}
		require.Empty(t, tr.ActiveSpeakers())
	})

	t.Run("repeated snapshot is a no-op", func(t *testing.T) {
		var speakingChanged, activeChanged atomic.Int32
		cb := NewRoomCallback()
		cb.OnIsSpeakingChanged = func(Participant) {
			speakingChanged.Inc()
		}
		cb.OnActiveSpeakersChanged = func([]Participant) {
			activeChanged.Inc()
		}
		tr := setup(t, cb)

		tr.apply(speakers("PA_bob"))
		tr.apply(speakers("PA_bob"))
		tr.apply(speakers("PA_bob"))

		waitFor(t, func() bool {
			return speakingChanged.Load() == 1 && activeChanged.Load() == 1
		}, "first snapshot callbacks")
		time.Sleep(50 * time.Millisecond)
		require.EqualValues(t, 1, speakingChanged.Load())
		require.EqualValues(t, 1, activeChanged.Load())
	})

	t.Run("unknown speakers are ignored", func(t *testing.T) {
		tr := setup(t, nil)
		tr.apply(speakers("PA_nobody", "PA_bob"))
		active := tr.ActiveSpeakers()
		require.Len(t, active, 1)
		require.Equal(t, "PA_bob", active[0].SID())
	})

	t.Run("late joiner is not speaking until listed", func(t *testing.T) {
		tr := setup(t, nil)
		tr.apply(speakers("PA_bob"))
		tr.join("PA_dave", "dave")

		dave := tr.GetRemoteParticipant("PA_dave")
		require.False(t, dave.IsSpeaking())

		tr.apply(speakers("PA_bob", "PA_dave"))
		require.True(t, dave.IsSpeaking())
	})

	t.Run("speaking highlights sinks", func(t *testing.T) {
		tr := setup(t, nil)
		tr.apply(&TrackSubscribedEvent{
			ParticipantSID: "PA_bob",
			Info:           &livekit.TrackInfo{Sid: "TR_bob", Type: livekit.TrackType_VIDEO},
			Track:          newVideoTrack("bob-video"),
		})
		ref := tr.GetRemoteParticipant("PA_bob").getRemotePublication("TR_bob").Handle().SinkRefs()[0]

		tr.apply(speakers("PA_bob"))
		require.True(t, tr.sink.isHighlighted(ref))
		tr.apply(speakers())
		require.False(t, tr.sink.isHighlighted(ref))
	})

	t.Run("participant leaving drops out of active speakers", func(t *testing.T) {
		tr := setup(t, nil)
		tr.apply(speakers("PA_bob", "PA_carol"))
		tr.apply(&ParticipantLeftEvent{ParticipantSID: "PA_bob"})

		active := tr.ActiveSpeakers()
		require.Len(t, active, 1)
		require.Equal(t, "PA_carol", active[0].SID())
	})
}

package lksdk

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/livekit"
)

func TestParticipantMembership(t *testing.T) {
	t.Run("set equals joined minus left", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)

		rng := rand.New(rand.NewSource(42))
		expected := make(map[string]struct{})
		for i := 0; i < 500; i++ {
			sid := fmt.Sprintf("PA_%d", rng.Intn(8))
			if rng.Intn(2) == 0 {
				tr.join(sid, "user-"+sid)
				expected[sid] = struct{}{}
			} else {
				tr.apply(&ParticipantLeftEvent{ParticipantSID: sid})
				delete(expected, sid)
			}

			var want []string
			for sid := range expected {
				want = append(want, sid)
			}
			require.ElementsMatch(t, want, tr.remoteSIDs())
		}
	})

	t.Run("duplicate join is a no-op", func(t *testing.T) {
		var connected atomic.Int32
		cb := NewRoomCallback()
		cb.OnParticipantConnected = func(*RemoteParticipant) {
			connected.Inc()
		}

		tr := newTestRoom(t, cb)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		first := tr.GetRemoteParticipant("PA_bob")
		tr.join("PA_bob", "bob")

		require.Equal(t, []string{"PA_bob"}, tr.remoteSIDs())
		require.Same(t, first, tr.GetRemoteParticipant("PA_bob"))
		waitFor(t, func() bool { return connected.Load() == 1 }, "connected once")
		time.Sleep(50 * time.Millisecond)
		require.EqualValues(t, 1, connected.Load())
	})

	t.Run("leave of unknown participant is a no-op", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		tr.apply(&ParticipantLeftEvent{ParticipantSID: "PA_nobody"})
		require.Equal(t, []string{"PA_bob"}, tr.remoteSIDs())
	})

	t.Run("local participant is not a remote", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_alice", "alice")
		require.Empty(t, tr.remoteSIDs())
	})

	t.Run("disconnected state in update removes participant", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		tr.apply(&ParticipantUpdatedEvent{Info: &livekit.ParticipantInfo{
			Sid:   "PA_bob",
			State: livekit.ParticipantInfo_DISCONNECTED,
		}})
		require.Empty(t, tr.remoteSIDs())
	})
}

func TestParticipantLeftDetachesTracks(t *testing.T) {
	var unsubscribed, disconnected atomic.Int32
	cb := NewRoomCallback()
	cb.OnTrackUnsubscribed = func(MediaTrack, *RemoteTrackPublication, *RemoteParticipant) {
		unsubscribed.Inc()
	}
	cb.OnParticipantDisconnected = func(*RemoteParticipant) {
		disconnected.Inc()
	}

	tr := newTestRoom(t, cb)
	tr.connect(t)
	tr.join("PA_bob", "bob",
		&livekit.TrackInfo{Sid: "TR_video", Type: livekit.TrackType_VIDEO},
		&livekit.TrackInfo{Sid: "TR_audio", Type: livekit.TrackType_AUDIO},
	)
	tr.apply(&TrackSubscribedEvent{
		ParticipantSID: "PA_bob",
		Info:           &livekit.TrackInfo{Sid: "TR_video", Type: livekit.TrackType_VIDEO},
		Track:          newVideoTrack("bob-video"),
	})
	bob := tr.GetRemoteParticipant("PA_bob")
	require.Len(t, bob.TrackPublications(), 2)
	require.Equal(t, 1, tr.sink.attachedCount("bob-video"))

	tr.sink.lock.Lock()
	tr.sink.detachErr = errors.New("surface gone")
	tr.sink.lock.Unlock()

	tr.apply(&ParticipantLeftEvent{ParticipantSID: "PA_bob"})

	require.Nil(t, tr.GetRemoteParticipant("PA_bob"))
	require.Empty(t, bob.TrackPublications())
	require.Zero(t, tr.sink.attachedCount("bob-video"))
	require.Empty(t, tr.capture.releasedTracks(), "remote tracks are never stopped")
	waitFor(t, func() bool {
		return unsubscribed.Load() == 1 && disconnected.Load() == 1
	}, "unsubscribe and disconnect callbacks")
}

func TestTrackSubscription(t *testing.T) {
	videoInfo := func() *livekit.TrackInfo {
		return &livekit.TrackInfo{Sid: "TR_video", Name: "camera", Type: livekit.TrackType_VIDEO, Source: livekit.TrackSource_CAMERA}
	}

	t.Run("published then subscribed", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		tr.apply(&TrackPublishedEvent{ParticipantSID: "PA_bob", Info: videoInfo()})

		bob := tr.GetRemoteParticipant("PA_bob")
		pub := bob.getRemotePublication("TR_video")
		require.NotNil(t, pub)
		require.False(t, pub.IsSubscribed())
		require.Equal(t, TrackKindVideo, pub.Kind())
		require.Equal(t, livekit.TrackSource_CAMERA, pub.Source())

		track := newVideoTrack("bob-video")
		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: track})
		require.True(t, pub.IsSubscribed())
		require.Equal(t, track, pub.Track())
		require.Equal(t, 1, tr.sink.attachedCount("bob-video"))

		// delivered again
		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: track})
		require.Equal(t, 1, tr.sink.attachedCount("bob-video"))
		require.Len(t, bob.TrackPublications(), 1)
	})

	t.Run("unsubscribed keeps publication until the track ends", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: newVideoTrack("bob-video")})
		bob := tr.GetRemoteParticipant("PA_bob")

		tr.apply(&TrackUnsubscribedEvent{ParticipantSID: "PA_bob", TrackSID: "TR_video"})
		pub := bob.getRemotePublication("TR_video")
		require.NotNil(t, pub)
		require.False(t, pub.IsSubscribed())
		require.Nil(t, pub.Track())
		require.Zero(t, tr.sink.totalAttached())

		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: newVideoTrack("bob-video")})
		require.True(t, pub.IsSubscribed())
		tr.apply(&TrackUnsubscribedEvent{ParticipantSID: "PA_bob", TrackSID: "TR_video", Ended: true})
		require.Nil(t, bob.getRemotePublication("TR_video"))
		require.Zero(t, tr.sink.totalAttached())
	})

	t.Run("unknown participant is created", func(t *testing.T) {
		var connected atomic.Int32
		cb := NewRoomCallback()
		cb.OnParticipantConnected = func(*RemoteParticipant) {
			connected.Inc()
		}
		tr := newTestRoom(t, cb)
		tr.connect(t)

		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: newVideoTrack("bob-video")})
		require.NotNil(t, tr.GetRemoteParticipant("PA_bob"))

		tr.join("PA_bob", "bob")
		require.Equal(t, "bob", tr.GetRemoteParticipant("PA_bob").Identity())
		require.True(t, tr.GetRemoteParticipant("PA_bob").getRemotePublication("TR_video").IsSubscribed())

		waitFor(t, func() bool { return connected.Load() == 1 }, "connected once")
		time.Sleep(50 * time.Millisecond)
		require.EqualValues(t, 1, connected.Load())
	})

	t.Run("local participant tracks are not remote", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_bob", "bob")

		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_alice", Info: videoInfo(), Track: newVideoTrack("alice-video")})
		tr.apply(&TrackSubscribedEvent{Info: videoInfo(), Track: newVideoTrack("nobody-video")})
		require.Equal(t, []string{"PA_bob"}, tr.remoteSIDs())
		require.Len(t, tr.Participants(), 2)
		require.Zero(t, tr.sink.totalAttached())
	})

	t.Run("late subscribe after leave is dropped", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		tr.apply(&ParticipantLeftEvent{ParticipantSID: "PA_bob"})

		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: newVideoTrack("bob-video")})
		require.Empty(t, tr.remoteSIDs())
		require.Zero(t, tr.sink.totalAttached())

		// joining again makes its tracks welcome
		tr.join("PA_bob", "bob")
		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: newVideoTrack("bob-video")})
		require.Equal(t, []string{"PA_bob"}, tr.remoteSIDs())
		require.True(t, tr.GetRemoteParticipant("PA_bob").getRemotePublication("TR_video").IsSubscribed())
	})

	t.Run("already subscribed tracks are replayed once", func(t *testing.T) {
		var subscribed atomic.Int32
		cb := NewRoomCallback()
		cb.OnTrackSubscribed = func(MediaTrack, *RemoteTrackPublication, *RemoteParticipant) {
			subscribed.Inc()
		}

		tr := newTestRoom(t, cb)
		track := newVideoTrack("bob-video")
		ev := &TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: track}
		tr.engine.joinResult.OtherParticipants = []*livekit.ParticipantInfo{
			{Sid: "PA_bob", Identity: "bob", Tracks: []*livekit.TrackInfo{videoInfo()}},
		}
		tr.engine.joinResult.SubscribedTracks = []*TrackSubscribedEvent{ev}
		s := tr.connect(t)

		// the engine also delivers it as a regular event
		s.events <- ev
		waitFor(t, func() bool { return subscribed.Load() == 1 }, "subscribed callback")
		time.Sleep(50 * time.Millisecond)

		require.EqualValues(t, 1, subscribed.Load())
		require.Equal(t, 1, tr.sink.attachedCount("bob-video"))
		require.True(t, tr.GetRemoteParticipant("PA_bob").getRemotePublication("TR_video").IsSubscribed())
	})

	t.Run("set subscribed asks the engine", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		s := tr.connect(t)
		tr.join("PA_bob", "bob", videoInfo())

		pub := tr.GetRemoteParticipant("PA_bob").getRemotePublication("TR_video")
		require.NoError(t, pub.SetSubscribed(true))
		s.lock.Lock()
		require.True(t, s.subscriptions["TR_video"])
		s.lock.Unlock()
		// nothing changes until the engine reports the subscription
		require.False(t, pub.IsSubscribed())

		tr.Disconnect()
		var serr *SubscribeError
		require.ErrorAs(t, pub.SetSubscribed(false), &serr)
		require.ErrorIs(t, serr, ErrNotConnected)
	})

	t.Run("subscription failure is reported", func(t *testing.T) {
		failures := make(chan *SubscribeError, 1)
		cb := NewRoomCallback()
		cb.OnTrackSubscriptionFailed = func(err *SubscribeError, _ *RemoteParticipant) {
			failures <- err
		}
		tr := newTestRoom(t, cb)
		tr.connect(t)
		tr.join("PA_bob", "bob", videoInfo())

		tr.apply(&TrackSubscriptionFailedEvent{ParticipantSID: "PA_bob", TrackSID: "TR_video", Err: errors.New("no codec")})
		select {
		case err := <-failures:
			require.Equal(t, "TR_video", err.TrackSID)
		case <-time.After(5 * time.Second):
			t.Fatal("missing failure callback")
		}
		require.False(t, tr.GetRemoteParticipant("PA_bob").getRemotePublication("TR_video").IsSubscribed())
	})

	t.Run("unpublished track is removed", func(t *testing.T) {
		tr := newTestRoom(t, nil)
		tr.connect(t)
		tr.join("PA_bob", "bob")
		tr.apply(&TrackSubscribedEvent{ParticipantSID: "PA_bob", Info: videoInfo(), Track: newVideoTrack("bob-video")})

		tr.apply(&TrackUnpublishedEvent{ParticipantSID: "PA_bob", TrackSID: "TR_video"})
		require.Empty(t, tr.GetRemoteParticipant("PA_bob").TrackPublications())
		require.Zero(t, tr.sink.totalAttached())
	})
}

func TestRemoteTrackMuted(t *testing.T) {
	var muted, unmuted atomic.Int32
	cb := NewRoomCallback()
	cb.OnTrackMuted = func(TrackPublication, Participant) { muted.Inc() }
	cb.OnTrackUnmuted = func(TrackPublication, Participant) { unmuted.Inc() }

	tr := newTestRoom(t, cb)
	tr.connect(t)
	tr.join("PA_bob", "bob")
	tr.apply(&TrackSubscribedEvent{
		ParticipantSID: "PA_bob",
		Info:           &livekit.TrackInfo{Sid: "TR_video", Type: livekit.TrackType_VIDEO},
		Track:          newVideoTrack("bob-video"),
	})
	pub := tr.GetRemoteParticipant("PA_bob").getRemotePublication("TR_video")
	refs := pub.Handle().SinkRefs()
	require.Len(t, refs, 1)

	tr.apply(&TrackMutedEvent{ParticipantSID: "PA_bob", TrackSID: "TR_video", Muted: true})
	require.True(t, pub.IsMuted())
	require.False(t, tr.sink.isVisible(refs[0]))
	require.Equal(t, 1, tr.sink.attachedCount("bob-video"))

	// repeated mute is not a change
	tr.apply(&TrackMutedEvent{ParticipantSID: "PA_bob", TrackSID: "TR_video", Muted: true})

	tr.apply(&TrackMutedEvent{ParticipantSID: "PA_bob", TrackSID: "TR_video", Muted: false})
	require.False(t, pub.IsMuted())
	require.True(t, tr.sink.isVisible(refs[0]))

	waitFor(t, func() bool {
		return muted.Load() == 1 && unmuted.Load() == 1
	}, "mute callbacks")
}

func TestParticipantMetadata(t *testing.T) {
	changes := make(chan string, 2)
	cb := NewRoomCallback()
	cb.OnMetadataChanged = func(oldMetadata string, p Participant) {
		changes <- oldMetadata + "->" + p.Metadata()
	}

	tr := newTestRoom(t, cb)
	tr.connect(t)
	tr.join("PA_bob", "bob")
	tr.apply(&ParticipantUpdatedEvent{Info: &livekit.ParticipantInfo{Sid: "PA_bob", Identity: "bob", Metadata: "away"}})

	select {
	case c := <-changes:
		require.Equal(t, "->away", c)
	case <-time.After(5 * time.Second):
		t.Fatal("missing metadata callback")
	}
}

package lksdk_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/livekit"

	lksdk "github.com/livekit/session-sdk-go"
	"github.com/livekit/session-sdk-go/pkg/loopback"
)

// ExampleRoomCallback demonstrates usage of RoomCallback to follow a session
func ExampleRoomCallback() {
	cb := lksdk.NewRoomCallback()

	cb.OnParticipantConnected = func(rp *lksdk.RemoteParticipant) {
		fmt.Printf("%s joined\n", rp.Identity())
	}
	cb.OnTrackSubscribed = func(track lksdk.MediaTrack, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		fmt.Printf("subscribed to %s from %s\n", pub.Kind(), rp.Identity())
	}
	cb.OnActiveSpeakersChanged = func(speakers []lksdk.Participant) {
		for _, p := range speakers {
			fmt.Printf("%s is speaking\n", p.Identity())
		}
	}
	cb.OnDisconnectedWithReason = func(reason lksdk.DisconnectionReason) {
		fmt.Printf("disconnected from room: %s\n", reason)
	}

	engine := loopback.NewEngine()
	room := lksdk.NewRoom(lksdk.RoomParams{
		Engine:   engine,
		Capture:  loopback.NewCapture(),
		Sink:     loopback.NewSink(),
		Callback: cb,
	})
	if err := room.Connect(context.Background(), "loopback://local", loopback.Token("r1", "alice")); err != nil {
		fmt.Println(err)
		return
	}
	defer room.Disconnect()

	if _, err := room.LocalParticipant.EnableCamera(context.Background(), lksdk.CameraOptions{}); err != nil {
		fmt.Println(err)
	}
}

func TestCallbackMerge(t *testing.T) {
	var calls []string
	base := lksdk.NewRoomCallback()
	base.OnReconnecting = func() { calls = append(calls, "base reconnecting") }
	base.OnReconnected = func() { calls = append(calls, "base reconnected") }

	base.Merge(&lksdk.RoomCallback{
		OnReconnected: func() { calls = append(calls, "override reconnected") },
		ParticipantCallback: lksdk.ParticipantCallback{
			OnIsSpeakingChanged: func(lksdk.Participant) { calls = append(calls, "speaking") },
		},
	})
	base.Merge(nil)

	base.OnReconnecting()
	base.OnReconnected()
	base.OnIsSpeakingChanged(nil)
	// defaults are still callable
	base.OnDisconnected()
	base.OnTrackMuted(nil, nil)

	require.Equal(t, []string{"base reconnecting", "override reconnected", "speaking"}, calls)
}

func TestGetDisconnectionReason(t *testing.T) {
	require.Equal(t, lksdk.LeaveRequested, lksdk.GetDisconnectionReason(livekit.DisconnectReason_CLIENT_INITIATED))
	require.Equal(t, lksdk.RoomClosed, lksdk.GetDisconnectionReason(livekit.DisconnectReason_ROOM_DELETED))
	require.Equal(t, lksdk.ParticipantRemoved, lksdk.GetDisconnectionReason(livekit.DisconnectReason_PARTICIPANT_REMOVED))
	require.Equal(t, lksdk.ConnectionLost, lksdk.GetDisconnectionReason(livekit.DisconnectReason_UNKNOWN_REASON))
}

package lksdk

import (
	"context"

	"github.com/livekit/protocol/livekit"
)

// MediaEngine establishes sessions with the media server. Transport, signaling and
// negotiation all live behind it.
type MediaEngine interface {
	Establish(ctx context.Context, url string, token string, params *ConnectParams) (EngineSession, error)
	// Teardown closes a session previously returned by Establish. It is called at most
	// once per client initiated disconnect and must tolerate already closed sessions.
	Teardown(session EngineSession) error
}

// EngineSession is one established connection to a room.
type EngineSession interface {
	JoinResult() *JoinResult
	// Events delivers engine events in arrival order. The engine closes the channel
	// once the session is over.
	Events() <-chan EngineEvent

	Publish(ctx context.Context, track MediaTrack, opts *TrackPublicationOptions) (*livekit.TrackInfo, error)
	Unpublish(trackSID string) error
	// ReplaceTrack swaps the media under an existing publication without unpublishing it.
	ReplaceTrack(ctx context.Context, trackSID string, track MediaTrack) error
	SetTrackMuted(trackSID string, muted bool) error
	UpdateSubscription(trackSID string, subscribe bool) error
	// StartAudio attempts to start audio playback, which may be blocked by autoplay policy.
	StartAudio(ctx context.Context) error
}

// JoinResult describes the room as it was when the session was established.
type JoinResult struct {
	Room              *livekit.Room
	Participant       *livekit.ParticipantInfo
	OtherParticipants []*livekit.ParticipantInfo
	// SubscribedTracks are remote tracks that were already subscribed at connect time.
	SubscribedTracks []*TrackSubscribedEvent
	CanPlaybackAudio bool
}

// Capture acquires local media.
type Capture interface {
	AcquireCamera(ctx context.Context, opts CameraOptions) (MediaTrack, error)
	AcquireMicrophone(ctx context.Context) (MediaTrack, error)
	// AcquireScreen returns the screen video track, followed by an audio track when
	// audio was requested and is available.
	AcquireScreen(ctx context.Context, opts ScreenShareOptions) ([]MediaTrack, error)
	Release(track MediaTrack) error
}

type SinkRef string

// Sink renders tracks. SetVisible and SetHighlighted are the styling side channel
// used for mute and speaking indication.
type Sink interface {
	Attach(track MediaTrack) (SinkRef, error)
	Detach(ref SinkRef) error
	SetVisible(ref SinkRef, visible bool)
	SetHighlighted(ref SinkRef, highlighted bool)
}

type nopSink struct{}

func (nopSink) Attach(track MediaTrack) (SinkRef, error) { return SinkRef(track.ID()), nil }
func (nopSink) Detach(SinkRef) error                     { return nil }
func (nopSink) SetVisible(SinkRef, bool)                 {}
func (nopSink) SetHighlighted(SinkRef, bool)             {}

type nopCapture struct{}

func (nopCapture) AcquireCamera(context.Context, CameraOptions) (MediaTrack, error) {
	return nil, ErrCaptureUnavailable
}

func (nopCapture) AcquireMicrophone(context.Context) (MediaTrack, error) {
	return nil, ErrCaptureUnavailable
}

func (nopCapture) AcquireScreen(context.Context, ScreenShareOptions) ([]MediaTrack, error) {
	return nil, ErrCaptureUnavailable
}

func (nopCapture) Release(MediaTrack) error { return nil }

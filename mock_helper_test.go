package lksdk

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/livekit"
)

const (
	testURL   = "ws://localhost:7880"
	testToken = "token"
)

type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t *fakeTrack) ID() string { return t.id }

func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func newVideoTrack(id string) *fakeTrack {
	return &fakeTrack{id: id, kind: webrtc.RTPCodecTypeVideo}
}

func newAudioTrack(id string) *fakeTrack {
	return &fakeTrack{id: id, kind: webrtc.RTPCodecTypeAudio}
}

// ---------------------------------------------

type fakeEngine struct {
	lock         sync.Mutex
	joinResult   *JoinResult
	establishErr error
	// Establish returns neither a session nor an error
	nilSession bool
	// when set, Establish waits for it to be closed and ignores ctx
	gate      chan struct{}
	sessions  []*fakeSession
	teardowns int
	lastToken string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		joinResult: &JoinResult{
			Room:             &livekit.Room{Name: "r1", Sid: "RM_r1"},
			Participant:      &livekit.ParticipantInfo{Sid: "PA_alice", Identity: "alice"},
			CanPlaybackAudio: true,
		},
	}
}

func (e *fakeEngine) Establish(_ context.Context, _ string, token string, _ *ConnectParams) (EngineSession, error) {
	e.lock.Lock()
	e.lastToken = token
	gate, err, jr, nilSession := e.gate, e.establishErr, e.joinResult, e.nilSession
	e.lock.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil || nilSession {
		return nil, err
	}

	s := newFakeSession(jr)
	e.lock.Lock()
	e.sessions = append(e.sessions, s)
	e.lock.Unlock()
	return s, nil
}

func (e *fakeEngine) Teardown(session EngineSession) error {
	e.lock.Lock()
	e.teardowns++
	e.lock.Unlock()
	session.(*fakeSession).close()
	return nil
}

func (e *fakeEngine) lastSession() *fakeSession {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

func (e *fakeEngine) teardownCount() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.teardowns
}

// ---------------------------------------------

type fakeSession struct {
	jr        *JoinResult
	events    chan EngineEvent
	closeOnce sync.Once

	lock          sync.Mutex
	nextSID       int
	published     map[string]MediaTrack
	unpublished   []string
	muted         map[string]bool
	subscriptions map[string]bool
	publishErr    func(track MediaTrack, opts *TrackPublicationOptions) error
	muteErr       error
	startAudioErr error
}

func newFakeSession(jr *JoinResult) *fakeSession {
	return &fakeSession{
		jr:            jr,
		events:        make(chan EngineEvent, 64),
		published:     make(map[string]MediaTrack),
		muted:         make(map[string]bool),
		subscriptions: make(map[string]bool),
	}
}

func (s *fakeSession) JoinResult() *JoinResult { return s.jr }

func (s *fakeSession) Events() <-chan EngineEvent { return s.events }

func (s *fakeSession) close() { s.closeOnce.Do(func() { close(s.events) }) }

func (s *fakeSession) StartAudio(context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.startAudioErr
}

func (s *fakeSession) Publish(_ context.Context, track MediaTrack, opts *TrackPublicationOptions) (*livekit.TrackInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.publishErr != nil {
		if err := s.publishErr(track, opts); err != nil {
			return nil, err
		}
	}
	s.nextSID++
	sid := fmt.Sprintf("TR_%d", s.nextSID)
	s.published[sid] = track
	return &livekit.TrackInfo{
		Sid:    sid,
		Name:   opts.Name,
		Source: opts.Source,
		Type:   KindFromRTPType(track.Kind()).ProtoType(),
	}, nil
}

func (s *fakeSession) Unpublish(trackSID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.published, trackSID)
	s.unpublished = append(s.unpublished, trackSID)
	return nil
}

func (s *fakeSession) ReplaceTrack(_ context.Context, trackSID string, track MediaTrack) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.published[trackSID]; !ok {
		return ErrCannotFindTrack
	}
	s.published[trackSID] = track
	return nil
}

func (s *fakeSession) SetTrackMuted(trackSID string, muted bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.muteErr != nil {
		return s.muteErr
	}
	s.muted[trackSID] = muted
	return nil
}

func (s *fakeSession) UpdateSubscription(trackSID string, subscribe bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subscriptions[trackSID] = subscribe
	return nil
}

func (s *fakeSession) publishedCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.published)
}

func (s *fakeSession) publishedTrack(sid string) MediaTrack {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.published[sid]
}

// ---------------------------------------------

type fakeCapture struct {
	lock     sync.Mutex
	next     int
	released []string
	cameras  []CameraOptions
	// screen capture provides an audio track when requested
	screenAudio bool
	// screen capture provides nothing but an audio track
	screenAudioOnly bool
	screenGate      chan struct{}
	screenCalls     int
	cameraErr       error
}

func (c *fakeCapture) newID(prefix string) string {
	c.next++
	return fmt.Sprintf("%s-%d", prefix, c.next)
}

func (c *fakeCapture) AcquireCamera(_ context.Context, opts CameraOptions) (MediaTrack, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cameraErr != nil {
		return nil, c.cameraErr
	}
	c.cameras = append(c.cameras, opts)
	return newVideoTrack(c.newID("camera")), nil
}

func (c *fakeCapture) AcquireMicrophone(context.Context) (MediaTrack, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return newAudioTrack(c.newID("mic")), nil
}

func (c *fakeCapture) AcquireScreen(_ context.Context, opts ScreenShareOptions) ([]MediaTrack, error) {
	c.lock.Lock()
	gate := c.screenGate
	c.screenCalls++
	c.lock.Unlock()
	if gate != nil {
		<-gate
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.screenAudioOnly {
		return []MediaTrack{newAudioTrack(c.newID("screen-audio"))}, nil
	}
	tracks := []MediaTrack{newVideoTrack(c.newID("screen"))}
	if opts.Audio && c.screenAudio {
		tracks = append(tracks, newAudioTrack(c.newID("screen-audio")))
	}
	return tracks, nil
}

func (c *fakeCapture) Release(track MediaTrack) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.released = append(c.released, track.ID())
	return nil
}

func (c *fakeCapture) releasedTracks() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.released...)
}

// ---------------------------------------------

type fakeSink struct {
	lock        sync.Mutex
	next        int
	attached    map[SinkRef]string
	visible     map[SinkRef]bool
	highlighted map[SinkRef]bool
	detachErr   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		attached:    make(map[SinkRef]string),
		visible:     make(map[SinkRef]bool),
		highlighted: make(map[SinkRef]bool),
	}
}

func (s *fakeSink) Attach(track MediaTrack) (SinkRef, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.next++
	ref := SinkRef(fmt.Sprintf("ref-%d", s.next))
	s.attached[ref] = track.ID()
	s.visible[ref] = true
	return ref, nil
}

func (s *fakeSink) Detach(ref SinkRef) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.attached, ref)
	return s.detachErr
}

func (s *fakeSink) SetVisible(ref SinkRef, visible bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.visible[ref] = visible
}

func (s *fakeSink) SetHighlighted(ref SinkRef, highlighted bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.highlighted[ref] = highlighted
}

func (s *fakeSink) attachedCount(trackID string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := 0
	for _, id := range s.attached {
		if id == trackID {
			n++
		}
	}
	return n
}

func (s *fakeSink) totalAttached() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.attached)
}

func (s *fakeSink) isVisible(ref SinkRef) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.visible[ref]
}

func (s *fakeSink) isHighlighted(ref SinkRef) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.highlighted[ref]
}

// ---------------------------------------------

type testRoom struct {
	*Room
	engine  *fakeEngine
	capture *fakeCapture
	sink    *fakeSink
}

func newTestRoom(t *testing.T, cb *RoomCallback) *testRoom {
	t.Helper()
	tr := &testRoom{
		engine:  newFakeEngine(),
		capture: &fakeCapture{},
		sink:    newFakeSink(),
	}
	tr.Room = NewRoom(RoomParams{
		Engine:   tr.engine,
		Capture:  tr.capture,
		Sink:     tr.sink,
		Callback: cb,
	})
	t.Cleanup(tr.Disconnect)
	return tr
}

func (tr *testRoom) connect(t *testing.T) *fakeSession {
	t.Helper()
	require.NoError(t, tr.Connect(context.Background(), testURL, testToken))
	require.Equal(t, ConnectionStateConnected, tr.ConnectionState())
	return tr.engine.lastSession()
}

// apply runs an engine event synchronously, the way the event loop would.
func (tr *testRoom) apply(ev EngineEvent) {
	tr.handleEvent(tr.currentSession(), ev)
}

func (tr *testRoom) join(sid, identity string, tracks ...*livekit.TrackInfo) {
	tr.apply(&ParticipantJoinedEvent{Info: &livekit.ParticipantInfo{
		Sid:      sid,
		Identity: identity,
		Tracks:   tracks,
	}})
}

func (tr *testRoom) remoteSIDs() []string {
	var sids []string
	for _, rp := range tr.GetRemoteParticipants() {
		sids = append(sids, rp.SID())
	}
	return sids
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, msg)
}

package lksdk

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	protoLogger "github.com/livekit/protocol/logger"

	"github.com/livekit/session-sdk-go/pkg/opsqueue"
)

type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

type ConnectInfo struct {
	APIKey              string
	APISecret           string
	RoomName            string
	ParticipantName     string
	ParticipantIdentity string
	ParticipantMetadata string
}

type ConnectParams struct {
	AutoSubscribe bool
	Metadata      string
	Callback      *RoomCallback
}

type ConnectOption func(*ConnectParams)

func WithAutoSubscribe(val bool) ConnectOption {
	return func(p *ConnectParams) {
		p.AutoSubscribe = val
	}
}

// WithMetadata sets the metadata requested for the local participant.
func WithMetadata(metadata string) ConnectOption {
	return func(p *ConnectParams) {
		p.Metadata = metadata
	}
}

// WithCallback adds callbacks for the duration of one session. They take precedence
// over the callbacks the room was created with.
func WithCallback(cb *RoomCallback) ConnectOption {
	return func(p *ConnectParams) {
		p.Callback = cb
	}
}

type RoomParams struct {
	Engine   MediaEngine
	Capture  Capture
	Sink     Sink
	Callback *RoomCallback
}

// roomSession is the state of one established connection. It is created by Connect
// and dropped when the room disconnects.
type roomSession struct {
	id     string
	engine EngineSession

	name     string
	sid      string
	metadata string

	participants   map[string]*RemoteParticipant
	activeSpeakers []Participant
	// SIDs of participants that left, guarded by opLock
	departed map[string]struct{}

	tornDown atomic.Bool
	done     core.Fuse
}

// Room controls the connection to a single room at a time. A Room may be connected
// again after it was disconnected.
type Room struct {
	engine   MediaEngine
	capture  Capture
	sink     Sink
	log      protoLogger.Logger
	callback *RoomCallback

	// opLock serializes all mutations of room, participant and publication state.
	// Engine round trips are never made while holding it.
	opLock sync.Mutex

	lock           sync.RWMutex
	state          ConnectionState
	session        *roomSession
	cancelConnect  context.CancelFunc
	connectAttempt uint64
	// callbacks of the current or pending session
	sessionCallback *RoomCallback

	canPlaybackAudio atomic.Bool
	cbQueue          atomic.Pointer[opsqueue.OpsQueue]

	LocalParticipant *LocalParticipant
}

func NewRoom(params RoomParams) *Room {
	r := &Room{
		engine:   params.Engine,
		capture:  params.Capture,
		sink:     params.Sink,
		log:      logger,
		callback: NewRoomCallback(),
		state:    ConnectionStateDisconnected,
	}
	if r.capture == nil {
		r.capture = nopCapture{}
	}
	if r.sink == nil {
		r.sink = nopSink{}
	}
	r.callback.Merge(params.Callback)
	r.LocalParticipant = newLocalParticipant(r)
	return r
}

// ConnectToRoom creates a room and joins it using credentials minted from info
func ConnectToRoom(ctx context.Context, url string, info ConnectInfo, params RoomParams, opts ...ConnectOption) (*Room, error) {
	room := NewRoom(params)
	if err := room.ConnectWithInfo(ctx, url, info, opts...); err != nil {
		return nil, err
	}
	return room, nil
}

// ConnectToRoomWithToken creates a room and joins it
func ConnectToRoomWithToken(ctx context.Context, url, token string, params RoomParams, opts ...ConnectOption) (*Room, error) {
	room := NewRoom(params)
	if err := room.Connect(ctx, url, token, opts...); err != nil {
		return nil, err
	}
	return room, nil
}

// ConnectWithInfo generates a join token and connects with it.
func (r *Room) ConnectWithInfo(ctx context.Context, url string, info ConnectInfo, opts ...ConnectOption) error {
	at := auth.NewAccessToken(info.APIKey, info.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     info.RoomName,
	}
	at.AddGrant(grant).
		SetIdentity(info.ParticipantIdentity).
		SetMetadata(info.ParticipantMetadata).
		SetName(info.ParticipantName)

	token, err := at.ToJWT()
	if err != nil {
		return &ConnectionError{Reason: ConnectionFailureAuth, Err: err}
	}

	return r.Connect(ctx, url, token, opts...)
}

// Connect establishes a session with the media engine. It is only valid while the room is
// disconnected. Failures are returned as *ConnectionError and leave the room disconnected.
func (r *Room) Connect(ctx context.Context, url, token string, opts ...ConnectOption) error {
	if url == "" {
		return ErrURLNotProvided
	}
	params := &ConnectParams{
		AutoSubscribe: true,
	}
	for _, opt := range opts {
		opt(params)
	}

	r.opLock.Lock()
	if r.ConnectionState() != ConnectionStateDisconnected {
		r.opLock.Unlock()
		return ErrAlreadyConnected
	}

	cb := NewRoomCallback()
	cb.Merge(r.callback)
	cb.Merge(params.Callback)

	q := opsqueue.NewOpsQueue(r.log, "room-callbacks")
	q.Start()
	r.cbQueue.Store(q)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.lock.Lock()
	r.connectAttempt++
	attempt := r.connectAttempt
	r.cancelConnect = cancel
	r.sessionCallback = cb
	r.lock.Unlock()
	r.setState(ConnectionStateConnecting)
	r.opLock.Unlock()

	es, err := r.engine.Establish(ctx, url, token, params)
	if err == nil && es == nil {
		err = &ConnectionError{Reason: ConnectionFailureNetwork, Err: ErrNoSession}
	}

	r.opLock.Lock()
	r.lock.Lock()
	aborted := r.connectAttempt != attempt || r.state != ConnectionStateConnecting
	if !aborted {
		r.cancelConnect = nil
	}
	r.lock.Unlock()

	if aborted {
		r.opLock.Unlock()
		if err == nil {
			r.log.Infow("discarding session established after disconnect")
			if terr := r.engine.Teardown(es); terr != nil {
				r.log.Warnw("could not tear down discarded session", terr)
			}
		}
		return &ConnectionError{Reason: ConnectionFailureAborted, Err: ErrConnectionAborted}
	}

	if err != nil {
		r.setState(ConnectionStateDisconnected)
		r.stopCallbackQueue()
		r.opLock.Unlock()
		cerr := newConnectionError(err)
		r.log.Infow("could not connect", "reason", cerr.Reason, "error", err)
		return cerr
	}
	defer r.opLock.Unlock()

	jr := es.JoinResult()
	if jr == nil {
		jr = &JoinResult{}
	}

	s := &roomSession{
		id:           uuid.NewString(),
		engine:       es,
		participants: make(map[string]*RemoteParticipant),
		departed:     make(map[string]struct{}),
	}
	if jr.Room != nil {
		s.name = jr.Room.Name
		s.sid = jr.Room.Sid
		s.metadata = jr.Room.Metadata
	}

	r.lock.Lock()
	r.session = s
	r.lock.Unlock()

	r.canPlaybackAudio.Store(jr.CanPlaybackAudio)
	if jr.Participant != nil {
		r.LocalParticipant.updateInfo(jr.Participant)
	}
	for _, pi := range jr.OtherParticipants {
		r.addRemoteParticipant(pi)
	}
	r.setState(ConnectionStateConnected)

	// tracks already subscribed at join time go through the regular subscribe path once
	for _, ts := range jr.SubscribedTracks {
		r.handleTrackSubscribed(ts)
	}

	r.log.Infow("connected to room",
		"room", s.name,
		"roomID", s.sid,
		"participant", r.LocalParticipant.Identity(),
		"sessionID", s.id,
		"remoteParticipants", len(jr.OtherParticipants),
	)

	go r.runEventLoop(s)
	return nil
}

// Disconnect leaves the room. It is a no-op while already disconnected.
func (r *Room) Disconnect() {
	r.DisconnectWithReason(livekit.DisconnectReason_CLIENT_INITIATED)
}

func (r *Room) DisconnectWithReason(reason livekit.DisconnectReason) {
	r.opLock.Lock()
	switch r.ConnectionState() {
	case ConnectionStateDisconnected:
		r.opLock.Unlock()
		return

	case ConnectionStateConnecting:
		r.abortConnect()
		r.opLock.Unlock()
		return
	}
	s := r.session
	r.opLock.Unlock()

	if s == nil {
		return
	}
	// events arriving during teardown are not applied
	s.done.Break()
	if !s.tornDown.Swap(true) {
		if err := r.engine.Teardown(s.engine); err != nil {
			r.log.Warnw("could not tear down session", err, "sessionID", s.id)
		}
	}

	r.opLock.Lock()
	r.closeSession(s, reason)
	r.opLock.Unlock()
}

// abortConnect cancels a pending Connect. Called with opLock held.
func (r *Room) abortConnect() {
	r.lock.Lock()
	r.connectAttempt++
	cancel := r.cancelConnect
	r.cancelConnect = nil
	r.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	r.log.Infow("connection attempt aborted")
	r.setState(ConnectionStateDisconnected)
	r.stopCallbackQueue()
}

// closeSession releases everything the session owns and moves the room to disconnected.
// Called with opLock held, it is a no-op for a session that is no longer current.
func (r *Room) closeSession(s *roomSession, reason livekit.DisconnectReason) {
	if r.session != s {
		return
	}
	s.done.Break()

	r.lock.Lock()
	r.session = nil
	participants := make([]*RemoteParticipant, 0, len(s.participants))
	for _, rp := range s.participants {
		participants = append(participants, rp)
	}
	s.participants = nil
	s.activeSpeakers = nil
	r.lock.Unlock()

	for _, rp := range participants {
		rp.unpublishAllTracks()
		rp.setSpeaking(false, 0)
	}
	r.LocalParticipant.cleanup()
	r.LocalParticipant.setSpeaking(false, 0)

	dr := GetDisconnectionReason(reason)
	r.log.Infow("disconnected from room", "room", s.name, "sessionID", s.id, "reason", dr)
	r.enqueueCallback(func(cb *RoomCallback) {
		cb.OnDisconnected()
		cb.OnDisconnectedWithReason(dr)
	})
	r.setState(ConnectionStateDisconnected)
	r.stopCallbackQueue()
}

func (r *Room) handleDisconnect(s *roomSession, reason livekit.DisconnectReason) {
	// the engine session is already gone, no teardown
	s.tornDown.Store(true)
	r.closeSession(s, reason)
}

func (r *Room) handleReconnecting() {
	if r.ConnectionState() != ConnectionStateConnected {
		return
	}
	r.setState(ConnectionStateReconnecting)
	r.enqueueCallback(func(cb *RoomCallback) {
		cb.OnReconnecting()
	})
}

func (r *Room) handleReconnected() {
	if r.ConnectionState() != ConnectionStateReconnecting {
		return
	}
	r.setState(ConnectionStateConnected)
	r.enqueueCallback(func(cb *RoomCallback) {
		cb.OnReconnected()
	})
}

func (r *Room) handlePlaybackStatusChanged(canPlayback bool) {
	if r.canPlaybackAudio.Swap(canPlayback) == canPlayback {
		return
	}
	r.enqueueCallback(func(cb *RoomCallback) {
		cb.OnAudioPlaybackChanged(canPlayback)
	})
}

// ResumePlayback asks the engine to start audio playback. While playback is still
// blocked it returns an error wrapping ErrPlaybackNotPermitted, and may be retried.
func (r *Room) ResumePlayback(ctx context.Context) error {
	s := r.currentSession()
	if s == nil {
		return ErrNotConnected
	}
	if r.canPlaybackAudio.Load() {
		return nil
	}
	if err := s.engine.StartAudio(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackNotPermitted, err)
	}

	r.opLock.Lock()
	defer r.opLock.Unlock()
	if r.session == s {
		r.handlePlaybackStatusChanged(true)
	}
	return nil
}

func (r *Room) handleRoomUpdate(room *livekit.Room) {
	s := r.session
	if s == nil || room == nil {
		return
	}

	r.lock.Lock()
	if room.Name != "" {
		s.name = room.Name
	}
	if room.Sid != "" {
		s.sid = room.Sid
	}
	changed := s.metadata != room.Metadata
	s.metadata = room.Metadata
	r.lock.Unlock()

	if changed {
		metadata := room.Metadata
		r.enqueueCallback(func(cb *RoomCallback) {
			cb.OnRoomMetadataChanged(metadata)
		})
	}
}

// setState is called with opLock held.
func (r *Room) setState(state ConnectionState) {
	r.lock.Lock()
	if r.state == state {
		r.lock.Unlock()
		return
	}
	r.state = state
	r.lock.Unlock()

	r.log.Debugw("connection state changed", "state", state)
	r.enqueueCallback(func(cb *RoomCallback) {
		cb.OnConnectionStateChanged(state)
	})
}

// enqueueCallback schedules fn on the callback queue of the current session. Callbacks run
// one at a time in the order they were enqueued, and never while room locks are held.
func (r *Room) enqueueCallback(fn func(cb *RoomCallback)) {
	q := r.cbQueue.Load()
	if q == nil {
		return
	}
	r.lock.RLock()
	cb := r.sessionCallback
	r.lock.RUnlock()
	if cb == nil {
		return
	}
	q.Enqueue(func() {
		fn(cb)
	})
}

// stopCallbackQueue lets already queued callbacks run, nothing is accepted afterwards.
func (r *Room) stopCallbackQueue() {
	if q := r.cbQueue.Swap(nil); q != nil {
		q.Stop()
	}
}

func (r *Room) currentSession() *roomSession {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.session
}

func (r *Room) ConnectionState() ConnectionState {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.state
}

func (r *Room) Name() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.session == nil {
		return ""
	}
	return r.session.name
}

func (r *Room) SID() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.session == nil {
		return ""
	}
	return r.session.sid
}

func (r *Room) Metadata() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.session == nil {
		return ""
	}
	return r.session.metadata
}

// SessionID identifies the current connection, it changes on every Connect.
func (r *Room) SessionID() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.session == nil {
		return ""
	}
	return r.session.id
}

func (r *Room) CanPlaybackAudio() bool {
	return r.canPlaybackAudio.Load()
}

func (r *Room) GetRemoteParticipant(sid string) *RemoteParticipant {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.session == nil {
		return nil
	}
	return r.session.participants[sid]
}

func (r *Room) GetRemoteParticipantByIdentity(identity string) *RemoteParticipant {
	for _, rp := range r.GetRemoteParticipants() {
		if rp.Identity() == identity {
			return rp
		}
	}
	return nil
}

func (r *Room) GetRemoteParticipants() []*RemoteParticipant {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.session == nil {
		return nil
	}

	participants := make([]*RemoteParticipant, 0, len(r.session.participants))
	for _, rp := range r.session.participants {
		participants = append(participants, rp)
	}
	return participants
}

// Participants returns the local participant followed by all remote participants.
// It is empty while disconnected.
func (r *Room) Participants() []Participant {
	if r.currentSession() == nil {
		return nil
	}
	remotes := r.GetRemoteParticipants()
	participants := make([]Participant, 0, len(remotes)+1)
	participants = append(participants, r.LocalParticipant)
	for _, rp := range remotes {
		participants = append(participants, rp)
	}
	return participants
}

func (r *Room) ActiveSpeakers() []Participant {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.session == nil {
		return nil
	}
	return slices.Clone(r.session.activeSpeakers)
}

// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loopback implements the session collaborators in memory. Every Room connected
// to the same Engine behaves as if it joined a media server shared with the others.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils/guid"

	lksdk "github.com/livekit/session-sdk-go"
)

const (
	Scheme = "loopback://"

	APIKey    = "devkey"
	APISecret = "loopback-secret-loopback-secret-0000"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrRoomNotFound    = errors.New("room not found")
	ErrAutoplayBlocked = errors.New("autoplay blocked")
)

// Token mints a join token accepted by Engine.
func Token(room, identity string) string {
	at := auth.NewAccessToken(APIKey, APISecret)
	at.AddGrant(&auth.VideoGrant{RoomJoin: true, Room: room}).
		SetIdentity(identity).
		SetName(identity)
	token, err := at.ToJWT()
	if err != nil {
		return ""
	}
	return token
}

type Option func(*Engine)

// WithAutoplayBlocked makes sessions start without audio playback permission until
// AllowAutoplay is called.
func WithAutoplayBlocked() Option {
	return func(e *Engine) {
		e.autoplayBlocked = true
	}
}

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

type Engine struct {
	log logger.Logger

	lock            sync.Mutex
	rooms           map[string]*room
	autoplayBlocked bool
}

type room struct {
	info     *livekit.Room
	sessions map[string]*Session
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:   logger.GetLogger(),
		rooms: make(map[string]*room),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithValues("engine", "loopback")
	return e
}

func (e *Engine) Establish(ctx context.Context, url string, token string, params *lksdk.ConnectParams) (lksdk.EngineSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(url, Scheme) {
		return nil, &lksdk.ConnectionError{
			Reason: lksdk.ConnectionFailureNetwork,
			Err:    fmt.Errorf("unsupported url %q", url),
		}
	}
	grants, err := verifyToken(token)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = &lksdk.ConnectParams{AutoSubscribe: true}
	}

	metadata := grants.Metadata
	if params.Metadata != "" {
		metadata = params.Metadata
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	name := grants.Video.Room
	rm := e.rooms[name]
	if rm == nil {
		rm = &room{
			info: &livekit.Room{
				Sid:          guid.New("RM_"),
				Name:         name,
				CreationTime: time.Now().Unix(),
			},
			sessions: make(map[string]*Session),
		}
		e.rooms[name] = rm
	}
	if old := rm.byIdentity(grants.Identity); old != nil {
		e.removeLocked(rm, old, livekit.DisconnectReason_DUPLICATE_IDENTITY, true)
		e.rooms[name] = rm
	}

	s := newSession(e, rm, &livekit.ParticipantInfo{
		Sid:      guid.New("PA_"),
		Identity: grants.Identity,
		Name:     grants.Name,
		Metadata: metadata,
		State:    livekit.ParticipantInfo_ACTIVE,
		JoinedAt: time.Now().Unix(),
	}, params.AutoSubscribe)

	jr := &lksdk.JoinResult{
		Room:             cloneRoom(rm.info),
		Participant:      s.participantInfo(),
		CanPlaybackAudio: !e.autoplayBlocked,
	}
	for _, other := range rm.sessions {
		jr.OtherParticipants = append(jr.OtherParticipants, other.participantInfo())
		if !s.autoSubscribe {
			continue
		}
		for _, pt := range other.tracks {
			s.subscriptions[pt.info.Sid] = true
			jr.SubscribedTracks = append(jr.SubscribedTracks, &lksdk.TrackSubscribedEvent{
				ParticipantSID: other.info.Sid,
				Info:           cloneTrack(pt.info),
				Track:          pt.forwarded,
			})
		}
	}
	s.joinResult = jr

	joined := s.participantInfo()
	for _, other := range rm.sessions {
		other.emit(&lksdk.ParticipantJoinedEvent{Info: cloneParticipant(joined)})
	}
	rm.sessions[s.info.Sid] = s

	e.log.Infow("participant joined", "room", name, "participant", grants.Identity, "participantID", s.info.Sid)
	return s, nil
}

func verifyToken(token string) (*auth.ClaimGrants, error) {
	v, err := auth.ParseAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lksdk.ErrUnauthorized, err)
	}
	if v.APIKey() != APIKey {
		return nil, fmt.Errorf("%w: unknown api key %s", lksdk.ErrUnauthorized, v.APIKey())
	}
	grants, err := v.Verify(APISecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lksdk.ErrUnauthorized, err)
	}
	if grants.Video == nil || !grants.Video.RoomJoin || grants.Video.Room == "" || grants.Identity == "" {
		return nil, fmt.Errorf("%w: token does not grant joining a room", lksdk.ErrUnauthorized)
	}
	return grants, nil
}

func (e *Engine) Teardown(session lksdk.EngineSession) error {
	s, ok := session.(*Session)
	if !ok {
		return fmt.Errorf("not a loopback session: %T", session)
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	if s.ended {
		return nil
	}
	e.removeLocked(s.room, s, livekit.DisconnectReason_CLIENT_INITIATED, false)
	return nil
}

// removeLocked takes the session out of its room. The session is told why only when
// the server initiated the removal.
func (e *Engine) removeLocked(rm *room, s *Session, reason livekit.DisconnectReason, notify bool) {
	delete(rm.sessions, s.info.Sid)
	for _, other := range rm.sessions {
		for sid := range s.tracks {
			delete(other.subscriptions, sid)
		}
		other.emit(&lksdk.ParticipantLeftEvent{ParticipantSID: s.info.Sid})
	}
	if len(rm.sessions) == 0 {
		delete(e.rooms, rm.info.Name)
	}

	e.log.Infow("participant left", "room", rm.info.Name, "participant", s.info.Identity, "reason", reason)
	if notify {
		s.emit(&lksdk.DisconnectedEvent{Reason: reason})
	}
	s.end(!notify)
}

// RemoveParticipant disconnects a participant the way a server admin would.
func (e *Engine) RemoveParticipant(roomName, identity string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	rm := e.rooms[roomName]
	if rm == nil {
		return ErrRoomNotFound
	}
	s := rm.byIdentity(identity)
	if s == nil {
		return fmt.Errorf("participant %s not in room %s", identity, roomName)
	}
	e.removeLocked(rm, s, livekit.DisconnectReason_PARTICIPANT_REMOVED, true)
	return nil
}

func (e *Engine) DeleteRoom(roomName string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	rm := e.rooms[roomName]
	if rm == nil {
		return ErrRoomNotFound
	}
	for _, s := range rm.sessions {
		e.removeLocked(rm, s, livekit.DisconnectReason_ROOM_DELETED, true)
	}
	delete(e.rooms, roomName)
	return nil
}

// SetActiveSpeakers sends a speaker snapshot to everyone in the room, loudest first.
func (e *Engine) SetActiveSpeakers(roomName string, identities ...string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	rm := e.rooms[roomName]
	if rm == nil {
		return ErrRoomNotFound
	}
	speakers := make([]*livekit.SpeakerInfo, 0, len(identities))
	for i, identity := range identities {
		s := rm.byIdentity(identity)
		if s == nil {
			continue
		}
		level := 1 - float32(i)*0.1
		if level < 0.1 {
			level = 0.1
		}
		speakers = append(speakers, &livekit.SpeakerInfo{Sid: s.info.Sid, Level: level, Active: true})
	}
	for _, s := range rm.sessions {
		s.emit(&lksdk.ActiveSpeakersChangedEvent{Speakers: speakers})
	}
	return nil
}

func (e *Engine) UpdateRoomMetadata(roomName, metadata string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	rm := e.rooms[roomName]
	if rm == nil {
		return ErrRoomNotFound
	}
	rm.info.Metadata = metadata
	for _, s := range rm.sessions {
		s.emit(&lksdk.RoomUpdatedEvent{Room: cloneRoom(rm.info)})
	}
	return nil
}

// SimulateReconnect makes the participant's session go through a reconnect cycle.
func (e *Engine) SimulateReconnect(roomName, identity string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	rm := e.rooms[roomName]
	if rm == nil {
		return ErrRoomNotFound
	}
	s := rm.byIdentity(identity)
	if s == nil {
		return fmt.Errorf("participant %s not in room %s", identity, roomName)
	}
	s.emit(&lksdk.ReconnectingEvent{})
	s.emit(&lksdk.ReconnectedEvent{})
	return nil
}

// AllowAutoplay lifts the autoplay restriction for new and existing sessions.
func (e *Engine) AllowAutoplay() {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.autoplayBlocked {
		return
	}
	e.autoplayBlocked = false
	for _, rm := range e.rooms {
		for _, s := range rm.sessions {
			s.emit(&lksdk.PlaybackStatusChangedEvent{CanPlaybackAudio: true})
		}
	}
}

// Participants lists the participants the server knows of in a room.
func (e *Engine) Participants(roomName string) []*livekit.ParticipantInfo {
	e.lock.Lock()
	defer e.lock.Unlock()

	rm := e.rooms[roomName]
	if rm == nil {
		return nil
	}
	infos := make([]*livekit.ParticipantInfo, 0, len(rm.sessions))
	for _, s := range rm.sessions {
		infos = append(infos, s.participantInfo())
	}
	return infos
}

func (rm *room) byIdentity(identity string) *Session {
	for _, s := range rm.sessions {
		if s.info.Identity == identity {
			return s
		}
	}
	return nil
}

// publisherOf returns the session that published the track.
func (rm *room) publisherOf(trackSID string) (*Session, *publishedTrack) {
	for _, s := range rm.sessions {
		if pt, ok := s.tracks[trackSID]; ok {
			return s, pt
		}
	}
	return nil, nil
}

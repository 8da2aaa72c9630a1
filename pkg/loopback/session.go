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

package loopback

import (
	"context"
	"fmt"

	"github.com/frostbyte73/core"
	"github.com/pion/webrtc/v4"
	"google.golang.org/protobuf/proto"

	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/utils/guid"

	lksdk "github.com/livekit/session-sdk-go"
	"github.com/livekit/session-sdk-go/pkg/opsqueue"
)

// Session is one participant's connection to a loopback room. All state is guarded by
// the engine lock; events are delivered through a queue so the engine never blocks on
// a slow reader.
type Session struct {
	engine *Engine
	room   *room
	info   *livekit.ParticipantInfo

	joinResult    *lksdk.JoinResult
	autoSubscribe bool
	tracks        map[string]*publishedTrack
	subscriptions map[string]bool
	ended         bool

	events chan lksdk.EngineEvent
	queue  *opsqueue.OpsQueue
	closed core.Fuse
}

type publishedTrack struct {
	info      *livekit.TrackInfo
	source    lksdk.MediaTrack
	forwarded *Track
}

func newSession(e *Engine, rm *room, info *livekit.ParticipantInfo, autoSubscribe bool) *Session {
	s := &Session{
		engine:        e,
		room:          rm,
		info:          info,
		autoSubscribe: autoSubscribe,
		tracks:        make(map[string]*publishedTrack),
		subscriptions: make(map[string]bool),
		events:        make(chan lksdk.EngineEvent, 16),
		queue:         opsqueue.NewOpsQueue(e.log, "loopback-"+info.Identity),
	}
	s.queue.Start()
	return s
}

func (s *Session) JoinResult() *lksdk.JoinResult {
	return s.joinResult
}

func (s *Session) Events() <-chan lksdk.EngineEvent {
	return s.events
}

// ParticipantSID is the server assigned id of the session's participant.
func (s *Session) ParticipantSID() string {
	return s.info.Sid
}

func (s *Session) emit(ev lksdk.EngineEvent) {
	s.queue.Enqueue(func() {
		select {
		case s.events <- ev:
		case <-s.closed.Watch():
		}
	})
}

// end stops event delivery. When the reader is already gone pending sends are dropped.
func (s *Session) end(readerGone bool) {
	s.ended = true
	if readerGone {
		s.closed.Break()
	}
	s.queue.Enqueue(func() {
		close(s.events)
	})
	s.queue.Stop()
}

func (s *Session) participantInfo() *livekit.ParticipantInfo {
	info := cloneParticipant(s.info)
	info.Tracks = make([]*livekit.TrackInfo, 0, len(s.tracks))
	for _, pt := range s.tracks {
		info.Tracks = append(info.Tracks, cloneTrack(pt.info))
	}
	return info
}

func (s *Session) Publish(ctx context.Context, track lksdk.MediaTrack, opts *lksdk.TrackPublicationOptions) (*livekit.TrackInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if track == nil {
		return nil, lksdk.ErrInvalidParameter
	}
	if opts == nil {
		opts = &lksdk.TrackPublicationOptions{}
	}

	e := s.engine
	e.lock.Lock()
	defer e.lock.Unlock()
	if s.ended {
		return nil, ErrSessionClosed
	}

	kind := lksdk.KindFromRTPType(track.Kind())
	info := &livekit.TrackInfo{
		Sid:    guid.New("TR_"),
		Name:   opts.Name,
		Type:   kind.ProtoType(),
		Source: opts.Source,
		Stream: opts.Stream,
	}
	if info.Source == livekit.TrackSource_UNKNOWN {
		if kind == lksdk.TrackKindAudio {
			info.Source = livekit.TrackSource_MICROPHONE
		} else {
			info.Source = livekit.TrackSource_CAMERA
		}
	}
	pt := &publishedTrack{
		info:      info,
		source:    track,
		forwarded: &Track{sid: info.Sid, kind: track.Kind()},
	}
	s.tracks[info.Sid] = pt

	for _, other := range s.room.sessions {
		if other == s {
			continue
		}
		other.emit(&lksdk.TrackPublishedEvent{ParticipantSID: s.info.Sid, Info: cloneTrack(info)})
		if other.autoSubscribe {
			other.subscriptions[info.Sid] = true
			other.emit(&lksdk.TrackSubscribedEvent{
				ParticipantSID: s.info.Sid,
				Info:           cloneTrack(info),
				Track:          pt.forwarded,
			})
		}
	}

	e.log.Debugw("track published", "participant", s.info.Identity, "trackID", info.Sid, "source", info.Source)
	return cloneTrack(info), nil
}

func (s *Session) Unpublish(trackSID string) error {
	e := s.engine
	e.lock.Lock()
	defer e.lock.Unlock()
	if s.ended {
		return ErrSessionClosed
	}
	if _, ok := s.tracks[trackSID]; !ok {
		return lksdk.ErrCannotFindTrack
	}
	delete(s.tracks, trackSID)

	for _, other := range s.room.sessions {
		if other == s {
			continue
		}
		if other.subscriptions[trackSID] {
			delete(other.subscriptions, trackSID)
			other.emit(&lksdk.TrackUnsubscribedEvent{ParticipantSID: s.info.Sid, TrackSID: trackSID, Ended: true})
		}
		other.emit(&lksdk.TrackUnpublishedEvent{ParticipantSID: s.info.Sid, TrackSID: trackSID})
	}
	return nil
}

// ReplaceTrack swaps the source of a publication. Subscribers keep receiving the same
// forwarded track.
func (s *Session) ReplaceTrack(ctx context.Context, trackSID string, track lksdk.MediaTrack) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.engine
	e.lock.Lock()
	defer e.lock.Unlock()
	if s.ended {
		return ErrSessionClosed
	}
	pt, ok := s.tracks[trackSID]
	if !ok {
		return lksdk.ErrCannotFindTrack
	}
	if track == nil || track.Kind() != pt.source.Kind() {
		return fmt.Errorf("%w: replacement must be a %s track", lksdk.ErrInvalidParameter, pt.source.Kind())
	}
	pt.source = track
	return nil
}

func (s *Session) SetTrackMuted(trackSID string, muted bool) error {
	e := s.engine
	e.lock.Lock()
	defer e.lock.Unlock()
	if s.ended {
		return ErrSessionClosed
	}
	pt, ok := s.tracks[trackSID]
	if !ok {
		return lksdk.ErrCannotFindTrack
	}
	if pt.info.Muted == muted {
		return nil
	}
	pt.info.Muted = muted

	for _, other := range s.room.sessions {
		if other == s {
			continue
		}
		other.emit(&lksdk.TrackMutedEvent{ParticipantSID: s.info.Sid, TrackSID: trackSID, Muted: muted})
	}
	return nil
}

func (s *Session) UpdateSubscription(trackSID string, subscribe bool) error {
	e := s.engine
	e.lock.Lock()
	defer e.lock.Unlock()
	if s.ended {
		return ErrSessionClosed
	}
	publisher, pt := s.room.publisherOf(trackSID)
	if pt == nil || publisher == s {
		return lksdk.ErrCannotFindTrack
	}
	if s.subscriptions[trackSID] == subscribe {
		return nil
	}

	if subscribe {
		s.subscriptions[trackSID] = true
		s.emit(&lksdk.TrackSubscribedEvent{
			ParticipantSID: publisher.info.Sid,
			Info:           cloneTrack(pt.info),
			Track:          pt.forwarded,
		})
	} else {
		delete(s.subscriptions, trackSID)
		s.emit(&lksdk.TrackUnsubscribedEvent{ParticipantSID: publisher.info.Sid, TrackSID: trackSID})
	}
	return nil
}

func (s *Session) StartAudio(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.engine
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.autoplayBlocked {
		return ErrAutoplayBlocked
	}
	return nil
}

// Track is what subscribers receive for a published track.
type Track struct {
	sid  string
	kind webrtc.RTPCodecType
}

func (t *Track) ID() string {
	return t.sid
}

func (t *Track) Kind() webrtc.RTPCodecType {
	return t.kind
}

func cloneRoom(r *livekit.Room) *livekit.Room {
	return proto.Clone(r).(*livekit.Room)
}

func cloneParticipant(p *livekit.ParticipantInfo) *livekit.ParticipantInfo {
	return proto.Clone(p).(*livekit.ParticipantInfo)
}

func cloneTrack(t *livekit.TrackInfo) *livekit.TrackInfo {
	return proto.Clone(t).(*livekit.TrackInfo)
}

package lksdk

import (
	"github.com/livekit/protocol/livekit"
)

// EngineEvent is delivered by EngineSession.Events. The set of event types is closed.
type EngineEvent interface {
	isEngineEvent()
}

type ParticipantJoinedEvent struct {
	Info *livekit.ParticipantInfo
}

// ParticipantUpdatedEvent carries changed metadata or name of a participant.
type ParticipantUpdatedEvent struct {
	Info *livekit.ParticipantInfo
}

type ParticipantLeftEvent struct {
	ParticipantSID string
}

type TrackPublishedEvent struct {
	ParticipantSID string
	Info           *livekit.TrackInfo
}

type TrackUnpublishedEvent struct {
	ParticipantSID string
	TrackSID       string
}

type TrackSubscribedEvent struct {
	ParticipantSID string
	Info           *livekit.TrackInfo
	Track          MediaTrack
}

type TrackUnsubscribedEvent struct {
	ParticipantSID string
	TrackSID       string
	// Ended is set when the underlying track is gone, not just the subscription
	Ended bool
}

type TrackSubscriptionFailedEvent struct {
	ParticipantSID string
	TrackSID       string
	Err            error
}

// TrackMutedEvent reports a remote track being muted or unmuted by its publisher.
type TrackMutedEvent struct {
	ParticipantSID string
	TrackSID       string
	Muted          bool
}

// LocalTrackUnpublishedEvent is sent when the server removed one of our publications.
type LocalTrackUnpublishedEvent struct {
	TrackSID string
}

type ActiveSpeakersChangedEvent struct {
	Speakers []*livekit.SpeakerInfo
}

type RoomUpdatedEvent struct {
	Room *livekit.Room
}

type DisconnectedEvent struct {
	Reason livekit.DisconnectReason
}

type ReconnectingEvent struct{}

type ReconnectedEvent struct{}

type PlaybackStatusChangedEvent struct {
	CanPlaybackAudio bool
}

func (*ParticipantJoinedEvent) isEngineEvent()       {}
func (*ParticipantUpdatedEvent) isEngineEvent()      {}
func (*ParticipantLeftEvent) isEngineEvent()         {}
func (*TrackPublishedEvent) isEngineEvent()          {}
func (*TrackUnpublishedEvent) isEngineEvent()        {}
func (*TrackSubscribedEvent) isEngineEvent()         {}
func (*TrackUnsubscribedEvent) isEngineEvent()       {}
func (*TrackSubscriptionFailedEvent) isEngineEvent() {}
func (*TrackMutedEvent) isEngineEvent()              {}
func (*LocalTrackUnpublishedEvent) isEngineEvent()   {}
func (*ActiveSpeakersChangedEvent) isEngineEvent()   {}
func (*RoomUpdatedEvent) isEngineEvent()             {}
func (*DisconnectedEvent) isEngineEvent()            {}
func (*ReconnectingEvent) isEngineEvent()            {}
func (*ReconnectedEvent) isEngineEvent()             {}
func (*PlaybackStatusChangedEvent) isEngineEvent()   {}

func (r *Room) runEventLoop(s *roomSession) {
	events := s.engine.Events()
	for {
		select {
		case <-s.done.Watch():
			return

		case ev, ok := <-events:
			if !ok {
				// engine went away without telling us why
				r.handleEvent(s, &DisconnectedEvent{Reason: livekit.DisconnectReason_UNKNOWN_REASON})
				return
			}
			r.handleEvent(s, ev)
		}
	}
}

func (r *Room) handleEvent(s *roomSession, ev EngineEvent) {
	r.opLock.Lock()
	defer r.opLock.Unlock()

	if s == nil || r.session != s || s.done.IsBroken() {
		return
	}

	switch e := ev.(type) {
	case *ParticipantJoinedEvent:
		r.handleParticipantJoined(e.Info)
	case *ParticipantUpdatedEvent:
		r.handleParticipantUpdated(e.Info)
	case *ParticipantLeftEvent:
		r.handleParticipantLeft(e.ParticipantSID)
	case *TrackPublishedEvent:
		r.handleTrackPublished(e.ParticipantSID, e.Info)
	case *TrackUnpublishedEvent:
		r.handleTrackUnpublished(e.ParticipantSID, e.TrackSID)
	case *TrackSubscribedEvent:
		r.handleTrackSubscribed(e)
	case *TrackUnsubscribedEvent:
		r.handleTrackUnsubscribed(e.ParticipantSID, e.TrackSID, e.Ended)
	case *TrackSubscriptionFailedEvent:
		r.handleTrackSubscriptionFailed(e)
	case *TrackMutedEvent:
		r.handleTrackMuted(e.ParticipantSID, e.TrackSID, e.Muted)
	case *LocalTrackUnpublishedEvent:
		r.handleLocalTrackUnpublished(e.TrackSID)
	case *ActiveSpeakersChangedEvent:
		r.handleActiveSpeakersChanged(e.Speakers)
	case *RoomUpdatedEvent:
		r.handleRoomUpdate(e.Room)
	case *DisconnectedEvent:
		r.handleDisconnect(s, e.Reason)
	case *ReconnectingEvent:
		r.handleReconnecting()
	case *ReconnectedEvent:
		r.handleReconnected()
	case *PlaybackStatusChangedEvent:
		r.handlePlaybackStatusChanged(e.CanPlaybackAudio)
	default:
		r.log.Warnw("unhandled engine event", nil, "event", ev)
	}
}

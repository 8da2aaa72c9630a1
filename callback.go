package lksdk

import (
	"github.com/livekit/protocol/livekit"
)

type ParticipantCallback struct {
	// for all participants
	OnTrackMuted        func(pub TrackPublication, p Participant)
	OnTrackUnmuted      func(pub TrackPublication, p Participant)
	OnMetadataChanged   func(oldMetadata string, p Participant)
	OnIsSpeakingChanged func(p Participant)

	// for local participants
	OnLocalTrackPublished   func(publication *LocalTrackPublication, lp *LocalParticipant)
	OnLocalTrackUnpublished func(publication *LocalTrackPublication, lp *LocalParticipant)

	// for remote participants
	OnTrackSubscribed         func(track MediaTrack, publication *RemoteTrackPublication, rp *RemoteParticipant)
	OnTrackUnsubscribed       func(track MediaTrack, publication *RemoteTrackPublication, rp *RemoteParticipant)
	OnTrackSubscriptionFailed func(err *SubscribeError, rp *RemoteParticipant)
	OnTrackPublished          func(publication *RemoteTrackPublication, rp *RemoteParticipant)
	OnTrackUnpublished        func(publication *RemoteTrackPublication, rp *RemoteParticipant)
}

func NewParticipantCallback() *ParticipantCallback {
	return &ParticipantCallback{
		OnTrackMuted:              func(pub TrackPublication, p Participant) {},
		OnTrackUnmuted:            func(pub TrackPublication, p Participant) {},
		OnMetadataChanged:         func(oldMetadata string, p Participant) {},
		OnIsSpeakingChanged:       func(p Participant) {},
		OnLocalTrackPublished:     func(publication *LocalTrackPublication, lp *LocalParticipant) {},
		OnLocalTrackUnpublished:   func(publication *LocalTrackPublication, lp *LocalParticipant) {},
		OnTrackSubscribed:         func(track MediaTrack, publication *RemoteTrackPublication, rp *RemoteParticipant) {},
		OnTrackUnsubscribed:       func(track MediaTrack, publication *RemoteTrackPublication, rp *RemoteParticipant) {},
		OnTrackSubscriptionFailed: func(err *SubscribeError, rp *RemoteParticipant) {},
		OnTrackPublished:          func(publication *RemoteTrackPublication, rp *RemoteParticipant) {},
		OnTrackUnpublished:        func(publication *RemoteTrackPublication, rp *RemoteParticipant) {},
	}
}

func (cb *ParticipantCallback) Merge(other *ParticipantCallback) {
	if other == nil {
		return
	}

	if other.OnTrackMuted != nil {
		cb.OnTrackMuted = other.OnTrackMuted
	}
	if other.OnTrackUnmuted != nil {
		cb.OnTrackUnmuted = other.OnTrackUnmuted
	}
	if other.OnMetadataChanged != nil {
		cb.OnMetadataChanged = other.OnMetadataChanged
	}
	if other.OnIsSpeakingChanged != nil {
		cb.OnIsSpeakingChanged = other.OnIsSpeakingChanged
	}
	if other.OnLocalTrackPublished != nil {
		cb.OnLocalTrackPublished = other.OnLocalTrackPublished
	}
	if other.OnLocalTrackUnpublished != nil {
		cb.OnLocalTrackUnpublished = other.OnLocalTrackUnpublished
	}
	if other.OnTrackSubscribed != nil {
		cb.OnTrackSubscribed = other.OnTrackSubscribed
	}
	if other.OnTrackUnsubscribed != nil {
		cb.OnTrackUnsubscribed = other.OnTrackUnsubscribed
	}
	if other.OnTrackSubscriptionFailed != nil {
		cb.OnTrackSubscriptionFailed = other.OnTrackSubscriptionFailed
	}
	if other.OnTrackPublished != nil {
		cb.OnTrackPublished = other.OnTrackPublished
	}
	if other.OnTrackUnpublished != nil {
		cb.OnTrackUnpublished = other.OnTrackUnpublished
	}
}

type DisconnectionReason string

const (
	LeaveRequested     DisconnectionReason = "leave requested"
	DuplicateIdentity  DisconnectionReason = "duplicate identity"
	ParticipantRemoved DisconnectionReason = "participant removed"
	RoomClosed         DisconnectionReason = "room closed"
	ServerShutdown     DisconnectionReason = "server shutdown"
	SignalingFailed    DisconnectionReason = "signaling failed"
	ConnectionLost     DisconnectionReason = "connection lost"
)

func GetDisconnectionReason(reason livekit.DisconnectReason) DisconnectionReason {
	switch reason {
	case livekit.DisconnectReason_CLIENT_INITIATED:
		return LeaveRequested
	case livekit.DisconnectReason_DUPLICATE_IDENTITY:
		return DuplicateIdentity
	case livekit.DisconnectReason_PARTICIPANT_REMOVED:
		return ParticipantRemoved
	case livekit.DisconnectReason_ROOM_DELETED, livekit.DisconnectReason_ROOM_CLOSED:
		return RoomClosed
	case livekit.DisconnectReason_SERVER_SHUTDOWN:
		return ServerShutdown
	case livekit.DisconnectReason_SIGNAL_CLOSE:
		return SignalingFailed
	}
	return ConnectionLost
}

type RoomCallback struct {
	OnDisconnected            func()
	OnDisconnectedWithReason  func(reason DisconnectionReason)
	OnConnectionStateChanged  func(state ConnectionState)
	OnParticipantConnected    func(*RemoteParticipant)
	OnParticipantDisconnected func(*RemoteParticipant)
	OnActiveSpeakersChanged   func([]Participant)
	OnRoomMetadataChanged     func(metadata string)
	OnReconnecting            func()
	OnReconnected             func()
	OnAudioPlaybackChanged    func(canPlayback bool)

	ParticipantCallback
}

func NewRoomCallback() *RoomCallback {
	pc := NewParticipantCallback()
	return &RoomCallback{
		ParticipantCallback: *pc,

		OnDisconnected:            func() {},
		OnDisconnectedWithReason:  func(reason DisconnectionReason) {},
		OnConnectionStateChanged:  func(state ConnectionState) {},
		OnParticipantConnected:    func(participant *RemoteParticipant) {},
		OnParticipantDisconnected: func(participant *RemoteParticipant) {},
		OnActiveSpeakersChanged:   func(participants []Participant) {},
		OnRoomMetadataChanged:     func(metadata string) {},
		OnReconnecting:            func() {},
		OnReconnected:             func() {},
		OnAudioPlaybackChanged:    func(canPlayback bool) {},
	}
}

func (cb *RoomCallback) Merge(other *RoomCallback) {
	if other == nil {
		return
	}

	if other.OnDisconnected != nil {
		cb.OnDisconnected = other.OnDisconnected
	}
	if other.OnDisconnectedWithReason != nil {
		cb.OnDisconnectedWithReason = other.OnDisconnectedWithReason
	}
	if other.OnConnectionStateChanged != nil {
		cb.OnConnectionStateChanged = other.OnConnectionStateChanged
	}
	if other.OnParticipantConnected != nil {
		cb.OnParticipantConnected = other.OnParticipantConnected
	}
	if other.OnParticipantDisconnected != nil {
		cb.OnParticipantDisconnected = other.OnParticipantDisconnected
	}
	if other.OnActiveSpeakersChanged != nil {
		cb.OnActiveSpeakersChanged = other.OnActiveSpeakersChanged
	}
	if other.OnRoomMetadataChanged != nil {
		cb.OnRoomMetadataChanged = other.OnRoomMetadataChanged
	}
	if other.OnReconnecting != nil {
		cb.OnReconnecting = other.OnReconnecting
	}
	if other.OnReconnected != nil {
		cb.OnReconnected = other.OnReconnected
	}
	if other.OnAudioPlaybackChanged != nil {
		cb.OnAudioPlaybackChanged = other.OnAudioPlaybackChanged
	}

	cb.ParticipantCallback.Merge(&other.ParticipantCallback)
}

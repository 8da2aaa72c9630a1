package lksdk

import (
	"github.com/livekit/protocol/livekit"
)

// The handlers in this file run with opLock held, on the event loop or while connecting.

// addRemoteParticipant returns the participant with the SID of pi, creating it when unknown.
// The second return value is true when it was created.
func (r *Room) addRemoteParticipant(pi *livekit.ParticipantInfo) (*RemoteParticipant, bool) {
	s := r.session
	if s == nil {
		return nil, false
	}

	r.lock.RLock()
	rp, ok := s.participants[pi.Sid]
	r.lock.RUnlock()
	if ok {
		return rp, false
	}

	rp = newRemoteParticipant(r, pi)
	r.lock.Lock()
	s.participants[pi.Sid] = rp
	r.lock.Unlock()
	return rp, true
}

func (r *Room) handleParticipantJoined(pi *livekit.ParticipantInfo) {
	if pi == nil || pi.Sid == "" || pi.Sid == r.LocalParticipant.SID() {
		return
	}

	rp, isNew := r.addRemoteParticipant(pi)
	if rp == nil {
		return
	}
	delete(r.session.departed, pi.Sid)
	if !isNew {
		// known participant, membership is unchanged
		r.applyParticipantInfo(rp, pi)
		return
	}

	r.log.Debugw("participant joined", "participant", pi.Identity, "participantID", pi.Sid)
	r.enqueueCallback(func(cb *RoomCallback) {
		cb.OnParticipantConnected(rp)
	})
	for _, pub := range rp.RemoteTrackPublications() {
		r.notifyTrackPublished(rp, pub)
	}
}

func (r *Room) handleParticipantUpdated(pi *livekit.ParticipantInfo) {
	if pi == nil || pi.Sid == "" {
		return
	}
	if pi.Sid == r.LocalParticipant.SID() {
		r.LocalParticipant.handleInfoUpdate(pi)
		return
	}
	if pi.State == livekit.ParticipantInfo_DISCONNECTED {
		r.handleParticipantLeft(pi.Sid)
		return
	}

	rp := r.GetRemoteParticipant(pi.Sid)
	if rp == nil {
		r.handleParticipantJoined(pi)
		return
	}
	r.applyParticipantInfo(rp, pi)
}

func (r *Room) applyParticipantInfo(rp *RemoteParticipant, pi *livekit.ParticipantInfo) {
	u := rp.updateInfo(pi)
	if u.metadataChanged {
		oldMetadata := u.oldMetadata
		r.enqueueCallback(func(cb *RoomCallback) {
			rp.Callback.OnMetadataChanged(oldMetadata, rp)
			cb.OnMetadataChanged(oldMetadata, rp)
		})
	}
	for _, pub := range u.published {
		r.notifyTrackPublished(rp, pub)
	}
}

// handleParticipantLeft removes the participant. Its tracks are detached from all sinks,
// never stopped. Unknown SIDs are ignored.
func (r *Room) handleParticipantLeft(sid string) {
	s := r.session
	if s == nil {
		return
	}

	r.lock.Lock()
	rp, ok := s.participants[sid]
	delete(s.participants, sid)
	if ok {
		s.activeSpeakers = removeParticipant(s.activeSpeakers, sid)
	}
	r.lock.Unlock()
	if !ok {
		return
	}
	s.departed[sid] = struct{}{}

	for _, st := range rp.unpublishAllTracks() {
		r.notifyTrackUnsubscribed(rp, st.pub, st.track)
	}
	rp.setSpeaking(false, 0)

	r.log.Debugw("participant left", "participant", rp.Identity(), "participantID", sid)
	r.enqueueCallback(func(cb *RoomCallback) {
		cb.OnParticipantDisconnected(rp)
	})
}

func (r *Room) handleTrackPublished(participantSID string, info *livekit.TrackInfo) {
	if info == nil {
		return
	}
	rp := r.GetRemoteParticipant(participantSID)
	if rp == nil {
		r.log.Debugw("track published by unknown participant", "participantID", participantSID, "trackID", info.Sid)
		return
	}
	if pub := rp.getRemotePublication(info.Sid); pub != nil {
		pub.updateInfo(info)
		return
	}

	pub := newRemoteTrackPublication(info, rp)
	rp.addPublication(pub)
	r.notifyTrackPublished(rp, pub)
}

func (r *Room) handleTrackUnpublished(participantSID, trackSID string) {
	rp := r.GetRemoteParticipant(participantSID)
	if rp == nil {
		return
	}
	pub, track := rp.unpublishTrack(trackSID)
	if pub == nil {
		return
	}
	if track != nil {
		r.notifyTrackUnsubscribed(rp, pub, track)
	}
	r.enqueueCallback(func(cb *RoomCallback) {
		rp.Callback.OnTrackUnpublished(pub, rp)
		cb.OnTrackUnpublished(pub, rp)
	})
}

// handleTrackSubscribed surfaces a subscribed remote track to the sink. Tracks of a
// participant we have not heard of yet create the participant, tracks of one that
// already left are dropped.
func (r *Room) handleTrackSubscribed(e *TrackSubscribedEvent) {
	if e == nil || e.Track == nil {
		return
	}
	if e.ParticipantSID == "" || e.ParticipantSID == r.LocalParticipant.SID() {
		return
	}
	s := r.session
	if s == nil {
		return
	}
	if _, left := s.departed[e.ParticipantSID]; left {
		r.log.Debugw("dropping track of departed participant", "participantID", e.ParticipantSID, "trackID", e.Track.ID())
		return
	}
	info := e.Info
	if info == nil {
		kind := KindFromRTPType(e.Track.Kind())
		info = &livekit.TrackInfo{Sid: e.Track.ID(), Type: kind.ProtoType()}
	}

	rp, isNew := r.addRemoteParticipant(&livekit.ParticipantInfo{Sid: e.ParticipantSID})
	if rp == nil {
		return
	}
	if isNew {
		r.enqueueCallback(func(cb *RoomCallback) {
			cb.OnParticipantConnected(rp)
		})
	}

	pub, added := rp.addSubscribedTrack(info, e.Track)
	if !added {
		return
	}
	r.log.Debugw("track subscribed", "participant", rp.Identity(), "trackID", info.Sid, "kind", pub.Kind())
	track := e.Track
	r.enqueueCallback(func(cb *RoomCallback) {
		rp.Callback.OnTrackSubscribed(track, pub, rp)
		cb.OnTrackSubscribed(track, pub, rp)
	})
}

func (r *Room) handleTrackUnsubscribed(participantSID, trackSID string, ended bool) {
	rp := r.GetRemoteParticipant(participantSID)
	if rp == nil {
		return
	}
	pub, track := rp.handleTrackUnsubscribed(trackSID, ended)
	if pub == nil || track == nil {
		return
	}
	r.notifyTrackUnsubscribed(rp, pub, track)
}

func (r *Room) handleTrackSubscriptionFailed(e *TrackSubscriptionFailedEvent) {
	rp := r.GetRemoteParticipant(e.ParticipantSID)
	if rp == nil {
		return
	}
	serr := &SubscribeError{TrackSID: e.TrackSID, Err: e.Err}
	r.log.Warnw("track subscription failed", e.Err, "participant", rp.Identity(), "trackID", e.TrackSID)
	r.enqueueCallback(func(cb *RoomCallback) {
		rp.Callback.OnTrackSubscriptionFailed(serr, rp)
		cb.OnTrackSubscriptionFailed(serr, rp)
	})
}

func (r *Room) handleTrackMuted(participantSID, trackSID string, muted bool) {
	rp := r.GetRemoteParticipant(participantSID)
	if rp == nil {
		return
	}
	pub, changed := rp.setTrackMuted(trackSID, muted)
	if !changed {
		return
	}
	r.enqueueCallback(func(cb *RoomCallback) {
		if muted {
			rp.Callback.OnTrackMuted(pub, rp)
			cb.OnTrackMuted(pub, rp)
		} else {
			rp.Callback.OnTrackUnmuted(pub, rp)
			cb.OnTrackUnmuted(pub, rp)
		}
	})
}

func (r *Room) handleLocalTrackUnpublished(trackSID string) {
	r.LocalParticipant.removeLocalPublication(trackSID)
}

func (r *Room) notifyTrackPublished(rp *RemoteParticipant, pub *RemoteTrackPublication) {
	r.enqueueCallback(func(cb *RoomCallback) {
		rp.Callback.OnTrackPublished(pub, rp)
		cb.OnTrackPublished(pub, rp)
	})
}

func (r *Room) notifyTrackUnsubscribed(rp *RemoteParticipant, pub *RemoteTrackPublication, track MediaTrack) {
	r.enqueueCallback(func(cb *RoomCallback) {
		rp.Callback.OnTrackUnsubscribed(track, pub, rp)
		cb.OnTrackUnsubscribed(track, pub, rp)
	})
}

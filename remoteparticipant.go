package lksdk

import (
	"github.com/livekit/protocol/livekit"
)

type RemoteParticipant struct {
	baseParticipant
}

func newRemoteParticipant(room *Room, pi *livekit.ParticipantInfo) *RemoteParticipant {
	p := &RemoteParticipant{}
	p.init(room)
	p.updateInfo(pi)
	return p
}

// participantUpdate describes what changed when new participant info was applied.
type participantUpdate struct {
	oldMetadata     string
	metadataChanged bool
	published       []*RemoteTrackPublication
}

type subscribedTrack struct {
	pub   *RemoteTrackPublication
	track MediaTrack
}

// updateInfo applies participant info. Announced tracks that are unknown become
// unsubscribed publications. Removal only happens through unpublish events.
func (p *RemoteParticipant) updateInfo(pi *livekit.ParticipantInfo) participantUpdate {
	var u participantUpdate
	u.oldMetadata, u.metadataChanged = p.baseParticipant.updateInfo(pi)

	for _, ti := range pi.Tracks {
		if pub := p.getRemotePublication(ti.Sid); pub != nil {
			pub.updateInfo(ti)
			continue
		}
		pub := newRemoteTrackPublication(ti, p)
		p.addPublication(pub)
		u.published = append(u.published, pub)
	}
	return u
}

func (p *RemoteParticipant) getRemotePublication(sid string) *RemoteTrackPublication {
	if pub, ok := p.getPublication(sid).(*RemoteTrackPublication); ok {
		return pub
	}
	return nil
}

func (p *RemoteParticipant) RemoteTrackPublications() []*RemoteTrackPublication {
	pubs := p.TrackPublications()
	remotes := make([]*RemoteTrackPublication, 0, len(pubs))
	for _, pub := range pubs {
		if rpub, ok := pub.(*RemoteTrackPublication); ok {
			remotes = append(remotes, rpub)
		}
	}
	return remotes
}

// addSubscribedTrack marks the publication subscribed and attaches the track to the sink.
// It returns false when the track was already subscribed, nothing is attached twice.
func (p *RemoteParticipant) addSubscribedTrack(info *livekit.TrackInfo, track MediaTrack) (*RemoteTrackPublication, bool) {
	pub := p.getRemotePublication(info.Sid)
	if pub == nil {
		pub = newRemoteTrackPublication(info, p)
		p.addPublication(pub)
	} else {
		pub.updateInfo(info)
	}

	if pub.isSubscribedTo(track) {
		return pub, false
	}

	handle := newTrackHandle(track, p.room.sink)
	handle.setMuted(pub.IsMuted())
	handle.setHighlighted(p.IsSpeaking())
	if prev := pub.setHandle(handle); prev != nil {
		prev.detach()
	}
	pub.subscribed.Store(true)

	if err := handle.attach(); err != nil {
		p.room.log.Warnw("could not attach remote track", err,
			"participant", p.Identity(),
			"trackID", info.Sid,
		)
	}
	return pub, true
}

// handleTrackUnsubscribed detaches the track from every sink. Remote tracks are owned by
// the engine and never stopped here. The returned track is nil if nothing was subscribed.
func (p *RemoteParticipant) handleTrackUnsubscribed(sid string, ended bool) (*RemoteTrackPublication, MediaTrack) {
	pub := p.getRemotePublication(sid)
	if pub == nil {
		return nil, nil
	}

	wasSubscribed := pub.subscribed.Swap(false)
	var track MediaTrack
	if h := pub.setHandle(nil); h != nil {
		track = h.Track()
		h.detach()
	}
	if ended {
		p.removePublication(sid)
	}
	if !wasSubscribed {
		track = nil
	}
	return pub, track
}

// unpublishTrack removes the publication, detaching its track if subscribed.
func (p *RemoteParticipant) unpublishTrack(sid string) (*RemoteTrackPublication, MediaTrack) {
	return p.handleTrackUnsubscribed(sid, true)
}

func (p *RemoteParticipant) setTrackMuted(sid string, muted bool) (*RemoteTrackPublication, bool) {
	pub := p.getRemotePublication(sid)
	if pub == nil {
		return nil, false
	}
	return pub, pub.setMuted(muted, pub.Handle())
}

// unpublishAllTracks detaches and removes every publication, returning the ones that
// were subscribed.
func (p *RemoteParticipant) unpublishAllTracks() []subscribedTrack {
	var subscribed []subscribedTrack
	for _, pub := range p.TrackPublications() {
		if rpub, track := p.unpublishTrack(pub.SID()); rpub != nil && track != nil {
			subscribed = append(subscribed, subscribedTrack{pub: rpub, track: track})
		}
	}
	return subscribed
}

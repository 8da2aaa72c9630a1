package lksdk

import (
	"sync"

	"go.uber.org/atomic"
	"google.golang.org/protobuf/proto"

	"github.com/livekit/protocol/livekit"
)

type TrackPublication interface {
	Name() string
	SID() string
	Source() livekit.TrackSource
	Kind() TrackKind
	IsMuted() bool
	IsSubscribed() bool
	TrackInfo() *livekit.TrackInfo
	// Track is the media track, nil when there is nothing to render
	Track() MediaTrack
	Handle() *TrackHandle
	updateInfo(info *livekit.TrackInfo)
}

type trackPublicationBase struct {
	lock   sync.RWMutex
	kind   TrackKind
	sid    string
	name   string
	source livekit.TrackSource
	info   *livekit.TrackInfo
	handle *TrackHandle

	isMuted atomic.Bool
}

func (p *trackPublicationBase) Name() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.name
}

func (p *trackPublicationBase) SID() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.sid
}

func (p *trackPublicationBase) Kind() TrackKind {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.kind
}

func (p *trackPublicationBase) Source() livekit.TrackSource {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.source
}

func (p *trackPublicationBase) IsMuted() bool {
	return p.isMuted.Load()
}

func (p *trackPublicationBase) IsSubscribed() bool {
	return p.Handle() != nil
}

func (p *trackPublicationBase) TrackInfo() *livekit.TrackInfo {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.info == nil {
		return nil
	}
	return proto.Clone(p.info).(*livekit.TrackInfo)
}

func (p *trackPublicationBase) Handle() *TrackHandle {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.handle
}

func (p *trackPublicationBase) Track() MediaTrack {
	if h := p.Handle(); h != nil {
		return h.Track()
	}
	return nil
}

func (p *trackPublicationBase) updateInfo(info *livekit.TrackInfo) {
	p.lock.Lock()
	p.info = proto.Clone(info).(*livekit.TrackInfo)
	p.sid = info.Sid
	if info.Name != "" {
		p.name = info.Name
	}
	if info.Source != livekit.TrackSource_UNKNOWN {
		p.source = info.Source
	}
	if kind := KindFromProtoType(info.Type); kind != "" {
		p.kind = kind
	}
	handle := p.handle
	p.lock.Unlock()

	p.setMuted(info.Muted, handle)
}

// setMuted updates the flag and the styling of the handle, if any.
func (p *trackPublicationBase) setMuted(muted bool, handle *TrackHandle) bool {
	changed := p.isMuted.Swap(muted) != muted
	if handle != nil {
		handle.setMuted(muted)
	}
	return changed
}

func (p *trackPublicationBase) setHandle(handle *TrackHandle) *TrackHandle {
	p.lock.Lock()
	defer p.lock.Unlock()

	prev := p.handle
	p.handle = handle
	return prev
}

// ---------------------------------------------

type RemoteTrackPublication struct {
	trackPublicationBase
	participant *RemoteParticipant

	subscribed atomic.Bool
}

func newRemoteTrackPublication(info *livekit.TrackInfo, participant *RemoteParticipant) *RemoteTrackPublication {
	pub := &RemoteTrackPublication{participant: participant}
	pub.updateInfo(info)
	return pub
}

// IsSubscribed is true only while the engine reports an active subscription and a
// track is available.
func (p *RemoteTrackPublication) IsSubscribed() bool {
	return p.subscribed.Load() && p.Handle() != nil
}

func (p *RemoteTrackPublication) Participant() *RemoteParticipant {
	return p.participant
}

// SetSubscribed asks the engine to subscribe to or unsubscribe from the track.
// The publication changes once the engine delivers the resulting subscription event.
func (p *RemoteTrackPublication) SetSubscribed(subscribed bool) error {
	s := p.participant.room.currentSession()
	if s == nil {
		return &SubscribeError{TrackSID: p.SID(), Err: ErrNotConnected}
	}
	if err := s.engine.UpdateSubscription(p.SID(), subscribed); err != nil {
		return &SubscribeError{TrackSID: p.SID(), Err: err}
	}
	return nil
}

func (p *RemoteTrackPublication) isSubscribedTo(track MediaTrack) bool {
	h := p.Handle()
	return p.subscribed.Load() && h != nil && h.isTrack(track)
}

// ---------------------------------------------

type LocalTrackPublication struct {
	trackPublicationBase
	participant *LocalParticipant
}

func newLocalTrackPublication(info *livekit.TrackInfo, handle *TrackHandle, participant *LocalParticipant) *LocalTrackPublication {
	pub := &LocalTrackPublication{participant: participant}
	pub.handle = handle
	pub.kind = handle.Kind()
	pub.updateInfo(info)
	return pub
}

// SetMuted mutes or unmutes the published track.
func (p *LocalTrackPublication) SetMuted(muted bool) error {
	return p.participant.SetTrackMuted(p.SID(), muted)
}

func (p *LocalTrackPublication) CameraOptions() (CameraOptions, bool) {
	if h := p.Handle(); h != nil {
		return h.CameraOptions()
	}
	return CameraOptions{}, false
}

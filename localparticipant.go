package lksdk

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"google.golang.org/protobuf/proto"

	"github.com/livekit/protocol/livekit"
)

type LocalParticipant struct {
	baseParticipant

	// captureSem serializes operations that acquire capture: screen share, camera and
	// microphone enable, camera flip. Waiting callers queue in order.
	captureSem *semaphore.Weighted
	muteLock   sync.Mutex
}

func newLocalParticipant(room *Room) *LocalParticipant {
	p := &LocalParticipant{
		captureSem: semaphore.NewWeighted(1),
	}
	p.init(room)
	return p
}

func (p *LocalParticipant) updateInfo(info *livekit.ParticipantInfo) {
	p.baseParticipant.updateInfo(info)
}

// handleInfoUpdate applies info about ourselves sent by the server, which may mute
// our tracks remotely. Called with opLock held.
func (p *LocalParticipant) handleInfoUpdate(info *livekit.ParticipantInfo) {
	oldMetadata, changed := p.baseParticipant.updateInfo(info)
	if changed {
		p.room.enqueueCallback(func(cb *RoomCallback) {
			p.Callback.OnMetadataChanged(oldMetadata, p)
			cb.OnMetadataChanged(oldMetadata, p)
		})
	}

	for _, ti := range info.Tracks {
		pub := p.getLocalPublication(ti.Sid)
		if pub == nil {
			continue
		}
		if pub.setMuted(ti.Muted, pub.Handle()) {
			p.notifyMuted(pub, ti.Muted)
		}
	}
}

func (p *LocalParticipant) getLocalPublication(sid string) *LocalTrackPublication {
	if pub, ok := p.getPublication(sid).(*LocalTrackPublication); ok {
		return pub
	}
	return nil
}

func (p *LocalParticipant) LocalTrackPublications() []*LocalTrackPublication {
	pubs := p.TrackPublications()
	locals := make([]*LocalTrackPublication, 0, len(pubs))
	for _, pub := range pubs {
		if lpub, ok := pub.(*LocalTrackPublication); ok {
			locals = append(locals, lpub)
		}
	}
	return locals
}

func (p *LocalParticipant) publicationBySource(source livekit.TrackSource) *LocalTrackPublication {
	if pub, ok := p.GetTrackPublication(source).(*LocalTrackPublication); ok {
		return pub
	}
	return nil
}

// PublishTrack publishes a local track and attaches it to the sink. On failure a
// *PublishError is returned and the participant is unchanged; the track stays owned
// by the caller.
func (p *LocalParticipant) PublishTrack(ctx context.Context, track MediaTrack, opts *TrackPublicationOptions) (*LocalTrackPublication, error) {
	return p.publishTrack(ctx, track, opts, nil)
}

func (p *LocalParticipant) publishTrack(ctx context.Context, track MediaTrack, opts *TrackPublicationOptions, camera *CameraOptions) (*LocalTrackPublication, error) {
	if opts == nil {
		opts = &TrackPublicationOptions{}
	}
	if track == nil {
		return nil, &PublishError{TrackName: opts.Name, Source: opts.Source, Err: ErrInvalidParameter}
	}
	s := p.room.currentSession()
	if s == nil {
		return nil, &PublishError{TrackName: opts.Name, Source: opts.Source, Err: ErrNotConnected}
	}

	info, err := s.engine.Publish(ctx, track, opts)
	if err != nil {
		p.room.log.Warnw("could not publish track", err, "track", opts.Name, "source", opts.Source)
		return nil, &PublishError{TrackName: opts.Name, Source: opts.Source, Err: err}
	}
	info = completeTrackInfo(info, track, opts)

	p.room.opLock.Lock()
	defer p.room.opLock.Unlock()

	if p.room.session != s {
		// disconnected while the engine was publishing
		return nil, &PublishError{TrackName: opts.Name, Source: opts.Source, Err: ErrNotConnected}
	}

	handle := newTrackHandle(track, p.room.sink)
	handle.setCameraOptions(camera)
	handle.setHighlighted(p.IsSpeaking())
	pub := newLocalTrackPublication(info, handle, p)
	if err := handle.attach(); err != nil {
		p.room.log.Warnw("could not attach local track", err, "trackID", info.Sid)
	}
	p.addPublication(pub)

	p.room.log.Infow("published track",
		"name", pub.Name(),
		"source", pub.Source(),
		"trackID", pub.SID(),
		"sessionID", s.id,
	)
	p.room.enqueueCallback(func(cb *RoomCallback) {
		p.Callback.OnLocalTrackPublished(pub, p)
		cb.OnLocalTrackPublished(pub, p)
	})
	return pub, nil
}

func completeTrackInfo(info *livekit.TrackInfo, track MediaTrack, opts *TrackPublicationOptions) *livekit.TrackInfo {
	if info == nil {
		info = &livekit.TrackInfo{Sid: track.ID()}
	} else {
		info = proto.Clone(info).(*livekit.TrackInfo)
	}
	if info.Name == "" {
		info.Name = opts.Name
	}
	if info.Source == livekit.TrackSource_UNKNOWN {
		info.Source = opts.Source
	}
	if KindFromProtoType(info.Type) == "" {
		info.Type = KindFromRTPType(track.Kind()).ProtoType()
	}
	return info
}

// UnpublishTrack stops publishing the track. The engine request is best effort, the
// publication is removed and its capture released regardless.
func (p *LocalParticipant) UnpublishTrack(sid string) error {
	s := p.room.currentSession()
	if s == nil {
		return ErrNotConnected
	}
	if p.getLocalPublication(sid) == nil {
		return ErrCannotFindTrack
	}

	if err := s.engine.Unpublish(sid); err != nil {
		p.room.log.Warnw("could not unpublish track", err, "trackID", sid)
	}

	p.room.opLock.Lock()
	defer p.room.opLock.Unlock()
	p.removeLocalPublication(sid)
	return nil
}

// removeLocalPublication is called with opLock held.
func (p *LocalParticipant) removeLocalPublication(sid string) {
	pub, ok := p.removePublication(sid).(*LocalTrackPublication)
	if !ok {
		return
	}

	if h := pub.Handle(); h != nil {
		h.detach()
		p.releaseIfUnused(h.Track())
	}

	p.room.log.Infow("unpublished track", "name", pub.Name(), "trackID", sid)
	p.room.enqueueCallback(func(cb *RoomCallback) {
		p.Callback.OnLocalTrackUnpublished(pub, p)
		cb.OnLocalTrackUnpublished(pub, p)
	})
}

// ToggleMute flips the muted flag of the track and returns the new value.
func (p *LocalParticipant) ToggleMute(sid string) (bool, error) {
	p.muteLock.Lock()
	defer p.muteLock.Unlock()

	pub := p.getLocalPublication(sid)
	if pub == nil {
		return false, ErrCannotFindTrack
	}
	muted := !pub.IsMuted()
	if err := p.setTrackMuted(pub, muted); err != nil {
		return !muted, err
	}
	return muted, nil
}

// SetTrackMuted mutes or unmutes a published track. Muted video is hidden on its sinks
// but stays attached.
func (p *LocalParticipant) SetTrackMuted(sid string, muted bool) error {
	p.muteLock.Lock()
	defer p.muteLock.Unlock()

	pub := p.getLocalPublication(sid)
	if pub == nil {
		return ErrCannotFindTrack
	}
	return p.setTrackMuted(pub, muted)
}

func (p *LocalParticipant) setTrackMuted(pub *LocalTrackPublication, muted bool) error {
	if pub.IsMuted() == muted {
		return nil
	}
	s := p.room.currentSession()
	if s == nil {
		return ErrNotConnected
	}
	if err := s.engine.SetTrackMuted(pub.SID(), muted); err != nil {
		return &PublishError{TrackName: pub.Name(), Source: pub.Source(), Err: err}
	}

	p.room.opLock.Lock()
	defer p.room.opLock.Unlock()
	if p.room.session != s {
		return ErrNotConnected
	}
	if p.getLocalPublication(pub.SID()) != pub {
		return ErrCannotFindTrack
	}
	if pub.setMuted(muted, pub.Handle()) {
		p.notifyMuted(pub, muted)
	}
	return nil
}

func (p *LocalParticipant) notifyMuted(pub *LocalTrackPublication, muted bool) {
	p.room.enqueueCallback(func(cb *RoomCallback) {
		if muted {
			p.Callback.OnTrackMuted(pub, p)
			cb.OnTrackMuted(pub, p)
		} else {
			p.Callback.OnTrackUnmuted(pub, p)
			cb.OnTrackUnmuted(pub, p)
		}
	})
}

// EnableCamera acquires the camera and publishes it. The existing publication is
// returned when the camera is already published.
func (p *LocalParticipant) EnableCamera(ctx context.Context, opts CameraOptions) (*LocalTrackPublication, error) {
	if err := p.captureSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.captureSem.Release(1)

	if pub := p.publicationBySource(livekit.TrackSource_CAMERA); pub != nil {
		return pub, nil
	}
	if p.room.currentSession() == nil {
		return nil, ErrNotConnected
	}
	if opts.FacingMode == "" {
		opts.FacingMode = FacingModeUser
	}
	if opts.Resolution.IsZero() {
		opts.Resolution = CameraRestartResolution
	}

	track, err := p.room.capture.AcquireCamera(ctx, opts)
	if err != nil {
		return nil, &CaptureError{Source: livekit.TrackSource_CAMERA, Err: err}
	}
	pub, err := p.publishTrack(ctx, track, &TrackPublicationOptions{
		Name:   "camera",
		Source: livekit.TrackSource_CAMERA,
	}, &opts)
	if err != nil {
		p.releaseCapture(track)
		return nil, err
	}
	return pub, nil
}

func (p *LocalParticipant) EnableMicrophone(ctx context.Context) (*LocalTrackPublication, error) {
	if err := p.captureSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.captureSem.Release(1)

	if pub := p.publicationBySource(livekit.TrackSource_MICROPHONE); pub != nil {
		return pub, nil
	}
	if p.room.currentSession() == nil {
		return nil, ErrNotConnected
	}

	track, err := p.room.capture.AcquireMicrophone(ctx)
	if err != nil {
		return nil, &CaptureError{Source: livekit.TrackSource_MICROPHONE, Err: err}
	}
	pub, err := p.publishTrack(ctx, track, &TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	}, nil)
	if err != nil {
		p.releaseCapture(track)
		return nil, err
	}
	return pub, nil
}

// usesTrack reports whether any publication still renders the track.
func (p *LocalParticipant) usesTrack(track MediaTrack) bool {
	for _, pub := range p.LocalTrackPublications() {
		if h := pub.Handle(); h != nil && h.isTrack(track) {
			return true
		}
	}
	return false
}

func (p *LocalParticipant) releaseIfUnused(track MediaTrack) {
	if track == nil || p.usesTrack(track) {
		return
	}
	p.releaseCapture(track)
}

func (p *LocalParticipant) releaseCapture(track MediaTrack) {
	if err := p.room.capture.Release(track); err != nil {
		p.room.log.Warnw("could not release capture", err, "trackID", track.ID())
	}
}

// cleanup detaches and releases every local track. Called with opLock held when the
// session ends, the engine is not involved.
func (p *LocalParticipant) cleanup() {
	for _, pub := range p.LocalTrackPublications() {
		p.removePublication(pub.SID())
		if h := pub.Handle(); h != nil {
			h.detach()
			p.releaseIfUnused(h.Track())
		}
	}
}

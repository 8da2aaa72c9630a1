package lksdk

import (
	"context"

	"github.com/livekit/protocol/livekit"
)

// FlipCamera switches the published camera between the user and environment facing
// modes. Capture is restarted at CameraRestartResolution and the new track replaces the
// old one under the same publication, there is no unpublish. It returns the facing mode
// in use afterwards.
func (p *LocalParticipant) FlipCamera(ctx context.Context) (FacingMode, error) {
	if err := p.captureSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.captureSem.Release(1)

	pub := p.publicationBySource(livekit.TrackSource_CAMERA)
	if pub == nil || pub.Handle() == nil || pub.Kind() != TrackKindVideo {
		return "", ErrNoCameraTrack
	}
	s := p.room.currentSession()
	if s == nil {
		return "", ErrNotConnected
	}

	handle := pub.Handle()
	current, ok := handle.CameraOptions()
	if !ok {
		current = CameraOptions{FacingMode: FacingModeUser}
	}
	next := CameraOptions{
		Resolution: CameraRestartResolution,
		FacingMode: current.FacingMode.Flip(),
	}

	track, err := p.room.capture.AcquireCamera(ctx, next)
	if err != nil {
		return current.FacingMode, &CaptureError{Source: livekit.TrackSource_CAMERA, Err: err}
	}
	if err := s.engine.ReplaceTrack(ctx, pub.SID(), track); err != nil {
		p.releaseCapture(track)
		return current.FacingMode, &PublishError{TrackName: pub.Name(), Source: pub.Source(), Err: err}
	}

	p.room.opLock.Lock()
	defer p.room.opLock.Unlock()
	if p.room.session != s || p.getLocalPublication(pub.SID()) != pub {
		p.releaseCapture(track)
		return current.FacingMode, ErrNotConnected
	}

	old := handle.swap(track, &next)
	p.releaseIfUnused(old)

	p.room.log.Debugw("camera flipped", "facingMode", next.FacingMode, "trackID", pub.SID())
	return next.FacingMode, nil
}

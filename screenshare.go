package lksdk

import (
	"context"

	"github.com/livekit/protocol/livekit"
)

const screenShareStream = "screen"

// ToggleScreenShare starts sharing the screen when it is not shared and stops sharing
// otherwise, returning whether the screen is shared afterwards. Concurrent calls are
// queued, so two calls in a row always end with the screen not shared.
func (p *LocalParticipant) ToggleScreenShare(ctx context.Context, opts ScreenShareOptions) (bool, error) {
	if err := p.captureSem.Acquire(ctx, 1); err != nil {
		return p.IsScreenSharing(), err
	}
	defer p.captureSem.Release(1)

	if pubs := p.screenSharePublications(); len(pubs) > 0 {
		var firstErr error
		for _, pub := range pubs {
			if err := p.UnpublishTrack(pub.SID()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return p.IsScreenSharing(), firstErr
	}

	if p.room.currentSession() == nil {
		return false, ErrNotConnected
	}
	tracks, err := p.room.capture.AcquireScreen(ctx, opts)
	if err != nil {
		return false, &CaptureError{Source: livekit.TrackSource_SCREEN_SHARE, Err: err}
	}
	if len(tracks) == 0 {
		return false, &CaptureError{Source: livekit.TrackSource_SCREEN_SHARE, Err: ErrCaptureUnavailable}
	}

	var published []*LocalTrackPublication
	for i, track := range tracks {
		popts := &TrackPublicationOptions{
			Name:   "screen",
			Source: livekit.TrackSource_SCREEN_SHARE,
			Stream: screenShareStream,
		}
		if KindFromRTPType(track.Kind()) == TrackKindAudio {
			if !opts.Audio {
				p.releaseCapture(track)
				continue
			}
			popts.Name = "screen_audio"
			popts.Source = livekit.TrackSource_SCREEN_SHARE_AUDIO
		}

		pub, err := p.publishTrack(ctx, track, popts, nil)
		if err != nil {
			// roll back to not sharing at all
			for _, pp := range published {
				if uerr := p.UnpublishTrack(pp.SID()); uerr != nil {
					p.room.log.Warnw("could not roll back screen share", uerr, "trackID", pp.SID())
				}
			}
			for _, t := range tracks[i:] {
				p.releaseCapture(t)
			}
			return false, err
		}
		published = append(published, pub)
	}
	if len(published) == 0 {
		return false, &CaptureError{Source: livekit.TrackSource_SCREEN_SHARE, Err: ErrCaptureUnavailable}
	}
	return true, nil
}

func (p *LocalParticipant) IsScreenSharing() bool {
	return len(p.screenSharePublications()) > 0
}

func (p *LocalParticipant) screenSharePublications() []*LocalTrackPublication {
	var pubs []*LocalTrackPublication
	for _, pub := range p.LocalTrackPublications() {
		switch pub.Source() {
		case livekit.TrackSource_SCREEN_SHARE, livekit.TrackSource_SCREEN_SHARE_AUDIO:
			pubs = append(pubs, pub)
		}
	}
	return pubs
}

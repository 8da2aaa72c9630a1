package lksdk

import (
	"slices"
	"sync"

	"go.uber.org/atomic"
)

// TrackHandle owns one media track together with the sink attachments rendering it.
// A handle belongs to exactly one publication.
type TrackHandle struct {
	sink Sink
	kind TrackKind

	lock        sync.Mutex
	track       MediaTrack
	refs        []SinkRef
	camera      *CameraOptions
	highlighted bool

	muted atomic.Bool
}

func newTrackHandle(track MediaTrack, sink Sink) *TrackHandle {
	if sink == nil {
		sink = nopSink{}
	}
	return &TrackHandle{
		sink:  sink,
		kind:  KindFromRTPType(track.Kind()),
		track: track,
	}
}

func (h *TrackHandle) Track() MediaTrack {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.track
}

func (h *TrackHandle) Kind() TrackKind {
	return h.kind
}

func (h *TrackHandle) IsMuted() bool {
	return h.muted.Load()
}

func (h *TrackHandle) SinkRefs() []SinkRef {
	h.lock.Lock()
	defer h.lock.Unlock()
	return slices.Clone(h.refs)
}

// CameraOptions returns the capture parameters of a local camera track.
func (h *TrackHandle) CameraOptions() (CameraOptions, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.camera == nil {
		return CameraOptions{}, false
	}
	return *h.camera, true
}

func (h *TrackHandle) setCameraOptions(opts *CameraOptions) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if opts == nil {
		h.camera = nil
		return
	}
	c := *opts
	h.camera = &c
}

func (h *TrackHandle) isTrack(track MediaTrack) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.track != nil && track != nil && h.track.ID() == track.ID()
}

// attach renders the track on the sink, keeping the current mute and highlight styling.
func (h *TrackHandle) attach() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.track == nil {
		return nil
	}
	ref, err := h.sink.Attach(h.track)
	if err != nil {
		return err
	}
	h.refs = append(h.refs, ref)

	if h.kind == TrackKindVideo && h.muted.Load() {
		h.sink.SetVisible(ref, false)
	}
	if h.highlighted {
		h.sink.SetHighlighted(ref, true)
	}
	return nil
}

// detach releases every sink attachment. Refs are dropped even when the sink fails.
func (h *TrackHandle) detach() {
	h.lock.Lock()
	refs := h.refs
	h.refs = nil
	trackID := ""
	if h.track != nil {
		trackID = h.track.ID()
	}
	h.lock.Unlock()

	for _, ref := range refs {
		if err := h.sink.Detach(ref); err != nil {
			logger.Warnw("could not detach track from sink", err, "trackID", trackID, "sinkRef", ref)
		}
	}
}

// setMuted returns true when the flag changed. Video sinks are hidden while muted,
// audio sinks are left alone.
func (h *TrackHandle) setMuted(muted bool) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.muted.Swap(muted) == muted {
		return false
	}
	if h.kind == TrackKindVideo {
		for _, ref := range h.refs {
			h.sink.SetVisible(ref, !muted)
		}
	}
	return true
}

func (h *TrackHandle) setHighlighted(highlighted bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.highlighted == highlighted {
		return
	}
	h.highlighted = highlighted
	for _, ref := range h.refs {
		h.sink.SetHighlighted(ref, highlighted)
	}
}

// swap replaces the underlying track. Sink attachments of the old track are released
// before the new track is attached. The old track is returned to be released by the caller.
func (h *TrackHandle) swap(track MediaTrack, camera *CameraOptions) MediaTrack {
	h.detach()

	h.lock.Lock()
	old := h.track
	h.track = track
	h.lock.Unlock()
	h.setCameraOptions(camera)

	if err := h.attach(); err != nil {
		logger.Warnw("could not attach track to sink", err, "trackID", track.ID())
	}
	return old
}

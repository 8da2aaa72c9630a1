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
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/livekit/protocol/utils/guid"

	lksdk "github.com/livekit/session-sdk-go"
)

var ErrNotCaptured = errors.New("track was not acquired from this capture")

// Capture hands out sample tracks in place of real devices.
type Capture struct {
	lock sync.Mutex
	live map[string]*CapturedTrack
	// screenAudio controls whether screen capture can include audio
	screenAudio bool
}

// CapturedTrack is a local sample track along with the parameters it was acquired with.
type CapturedTrack struct {
	*webrtc.TrackLocalStaticSample

	Source     string
	Resolution lksdk.VideoResolution
	FacingMode lksdk.FacingMode
}

func NewCapture() *Capture {
	return &Capture{
		live:        make(map[string]*CapturedTrack),
		screenAudio: true,
	}
}

// WithoutScreenAudio makes screen capture return video only, as on platforms that
// cannot capture system audio.
func (c *Capture) WithoutScreenAudio() *Capture {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.screenAudio = false
	return c
}

func (c *Capture) AcquireCamera(ctx context.Context, opts lksdk.CameraOptions) (lksdk.MediaTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := c.acquire(webrtc.MimeTypeVP8, "camera")
	if err != nil {
		return nil, err
	}
	t.Resolution = opts.Resolution
	t.FacingMode = opts.FacingMode
	return t, nil
}

func (c *Capture) AcquireMicrophone(ctx context.Context) (lksdk.MediaTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.acquire(webrtc.MimeTypeOpus, "microphone")
}

func (c *Capture) AcquireScreen(ctx context.Context, opts lksdk.ScreenShareOptions) ([]lksdk.MediaTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	video, err := c.acquire(webrtc.MimeTypeVP8, "screen")
	if err != nil {
		return nil, err
	}
	video.Resolution = opts.Resolution
	tracks := []lksdk.MediaTrack{video}

	c.lock.Lock()
	withAudio := opts.Audio && c.screenAudio
	c.lock.Unlock()
	if withAudio {
		audio, err := c.acquire(webrtc.MimeTypeOpus, "screen")
		if err != nil {
			_ = c.Release(video)
			return nil, err
		}
		tracks = append(tracks, audio)
	}
	return tracks, nil
}

func (c *Capture) acquire(mimeType string, source string) (*CapturedTrack, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		guid.New("TR_"),
		guid.New("ST_"),
	)
	if err != nil {
		return nil, err
	}
	t := &CapturedTrack{
		TrackLocalStaticSample: sample,
		Source:                 source,
	}

	c.lock.Lock()
	c.live[t.ID()] = t
	c.lock.Unlock()
	return t, nil
}

func (c *Capture) Release(track lksdk.MediaTrack) error {
	if track == nil {
		return nil
	}
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.live[track.ID()]; !ok {
		return ErrNotCaptured
	}
	delete(c.live, track.ID())
	return nil
}

// Live returns the tracks acquired and not yet released.
func (c *Capture) Live() []*CapturedTrack {
	c.lock.Lock()
	defer c.lock.Unlock()

	tracks := make([]*CapturedTrack, 0, len(c.live))
	for _, t := range c.live {
		tracks = append(tracks, t)
	}
	return tracks
}

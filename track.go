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

package lksdk

import (
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

// MediaTrack is a single audio or video stream. Both local pion tracks
// (webrtc.TrackLocal) and *webrtc.TrackRemote satisfy it.
type MediaTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
}

type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

func (k TrackKind) String() string {
	return string(k)
}

func (k TrackKind) RTPType() webrtc.RTPCodecType {
	return webrtc.NewRTPCodecType(k.String())
}

func (k TrackKind) ProtoType() livekit.TrackType {
	switch k {
	case TrackKindAudio:
		return livekit.TrackType_AUDIO
	case TrackKindVideo:
		return livekit.TrackType_VIDEO
	}
	return livekit.TrackType(0)
}

func KindFromRTPType(rt webrtc.RTPCodecType) TrackKind {
	return TrackKind(rt.String())
}

func KindFromProtoType(t livekit.TrackType) TrackKind {
	switch t {
	case livekit.TrackType_AUDIO:
		return TrackKindAudio
	case livekit.TrackType_VIDEO:
		return TrackKindVideo
	}
	return ""
}

type FacingMode string

const (
	FacingModeUser        FacingMode = "user"
	FacingModeEnvironment FacingMode = "environment"
)

// Flip returns the opposite camera facing mode.
func (m FacingMode) Flip() FacingMode {
	if m == FacingModeEnvironment {
		return FacingModeUser
	}
	return FacingModeEnvironment
}

type VideoResolution struct {
	Width  uint32
	Height uint32
}

func (r VideoResolution) IsZero() bool {
	return r.Width == 0 || r.Height == 0
}

// CameraRestartResolution is the capture resolution used when the camera is restarted by FlipCamera.
var CameraRestartResolution = VideoResolution{Width: 1280, Height: 720}

// CameraOptions are the capture parameters of a local camera track, kept on its
// handle so that capture can be restarted.
type CameraOptions struct {
	Resolution VideoResolution
	FacingMode FacingMode
}

type ScreenShareOptions struct {
	// Audio requests system/tab audio alongside the screen video when the capture supports it.
	Audio      bool
	Resolution VideoResolution
}

type TrackPublicationOptions struct {
	Name   string
	Source livekit.TrackSource
	// Stream groups tracks that belong together, such as screen share video and audio
	Stream string
}

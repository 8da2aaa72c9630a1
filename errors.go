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
	"context"
	"errors"
	"fmt"

	"github.com/livekit/protocol/livekit"
)

var (
	ErrURLNotProvided       = errors.New("URL was not provided")
	ErrAlreadyConnected     = errors.New("room is already connected")
	ErrNotConnected         = errors.New("room is not connected")
	ErrConnectionTimeout    = errors.New("could not connect after timeout")
	ErrConnectionAborted    = errors.New("connection attempt aborted")
	ErrNoSession            = errors.New("media engine returned no session")
	ErrUnauthorized         = errors.New("not authorized to join room")
	ErrCannotFindTrack      = errors.New("could not find the track")
	ErrNoCameraTrack        = errors.New("no local camera track published")
	ErrCaptureUnavailable   = errors.New("capture device unavailable")
	ErrPlaybackNotPermitted = errors.New("audio playback is not permitted")
	ErrInvalidParameter     = errors.New("invalid parameter")
)

type ConnectionFailureReason string

const (
	ConnectionFailureAuth    ConnectionFailureReason = "auth"
	ConnectionFailureNetwork ConnectionFailureReason = "network"
	ConnectionFailureTimeout ConnectionFailureReason = "timeout"
	ConnectionFailureAborted ConnectionFailureReason = "aborted"
)

// ConnectionError is returned by Connect when a session could not be established.
// The room is back in ConnectionStateDisconnected when it is returned.
type ConnectionError struct {
	Reason ConnectionFailureReason
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not connect: %s", e.Reason)
	}
	return fmt.Sprintf("could not connect (%s): %v", e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// newConnectionError classifies an error returned by the media engine.
// Engines may return a *ConnectionError themselves, which is kept as is.
func newConnectionError(err error) *ConnectionError {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce
	}

	reason := ConnectionFailureNetwork
	switch {
	case errors.Is(err, ErrUnauthorized):
		reason = ConnectionFailureAuth
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrConnectionTimeout):
		reason = ConnectionFailureTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrConnectionAborted):
		reason = ConnectionFailureAborted
	}
	return &ConnectionError{Reason: reason, Err: err}
}

// PublishError is returned by local track operations that the engine rejected.
// The participant's publications are unchanged when it is returned.
type PublishError struct {
	TrackName string
	Source    livekit.TrackSource
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("could not publish track %q (%s): %v", e.TrackName, e.Source, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

type SubscribeError struct {
	TrackSID string
	Err      error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("could not update subscription for track %s: %v", e.TrackSID, e.Err)
}

func (e *SubscribeError) Unwrap() error {
	return e.Err
}

// CaptureError is returned when a capture device is unavailable or access was denied.
type CaptureError struct {
	Source livekit.TrackSource
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("could not acquire %s: %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

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
	"sync"

	"github.com/google/uuid"

	lksdk "github.com/livekit/session-sdk-go"
)

// Sink records what would be on screen.
type Sink struct {
	lock     sync.Mutex
	attached map[lksdk.SinkRef]*Attachment
}

type Attachment struct {
	Track       lksdk.MediaTrack
	Visible     bool
	Highlighted bool
}

func NewSink() *Sink {
	return &Sink{
		attached: make(map[lksdk.SinkRef]*Attachment),
	}
}

func (s *Sink) Attach(track lksdk.MediaTrack) (lksdk.SinkRef, error) {
	if track == nil {
		return "", lksdk.ErrInvalidParameter
	}
	ref := lksdk.SinkRef(uuid.NewString())

	s.lock.Lock()
	defer s.lock.Unlock()
	s.attached[ref] = &Attachment{Track: track, Visible: true}
	return ref, nil
}

func (s *Sink) Detach(ref lksdk.SinkRef) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.attached, ref)
	return nil
}

func (s *Sink) SetVisible(ref lksdk.SinkRef, visible bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if a := s.attached[ref]; a != nil {
		a.Visible = visible
	}
}

func (s *Sink) SetHighlighted(ref lksdk.SinkRef, highlighted bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if a := s.attached[ref]; a != nil {
		a.Highlighted = highlighted
	}
}

// Attachments returns a copy of every attachment keyed by track id.
func (s *Sink) Attachments() map[string][]Attachment {
	s.lock.Lock()
	defer s.lock.Unlock()

	out := make(map[string][]Attachment)
	for _, a := range s.attached {
		out[a.Track.ID()] = append(out[a.Track.ID()], *a)
	}
	return out
}

func (s *Sink) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.attached)
}

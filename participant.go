package lksdk

import (
	"sync"

	"go.uber.org/atomic"
	"google.golang.org/protobuf/proto"

	"github.com/livekit/protocol/livekit"
)

// Participant is implemented by *LocalParticipant and *RemoteParticipant only.
type Participant interface {
	SID() string
	Identity() string
	Name() string
	Metadata() string
	IsSpeaking() bool
	AudioLevel() float32
	TrackPublications() []TrackPublication
	GetTrackPublication(source livekit.TrackSource) TrackPublication

	setSpeaking(speaking bool, level float32) bool
	callback() *ParticipantCallback
}

type baseParticipant struct {
	room *Room

	lock     sync.RWMutex
	info     *livekit.ParticipantInfo
	sid      string
	identity string
	name     string
	metadata string
	tracks   map[string]TrackPublication

	isSpeaking atomic.Bool
	audioLevel atomic.Float32

	Callback *ParticipantCallback
}

func (p *baseParticipant) init(room *Room) {
	p.room = room
	p.tracks = make(map[string]TrackPublication)
	p.Callback = NewParticipantCallback()
}

func (p *baseParticipant) SID() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.sid
}

func (p *baseParticipant) Identity() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.identity
}

func (p *baseParticipant) Name() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.name
}

func (p *baseParticipant) Metadata() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.metadata
}

func (p *baseParticipant) IsSpeaking() bool {
	return p.isSpeaking.Load()
}

func (p *baseParticipant) AudioLevel() float32 {
	return p.audioLevel.Load()
}

func (p *baseParticipant) TrackPublications() []TrackPublication {
	p.lock.RLock()
	defer p.lock.RUnlock()

	pubs := make([]TrackPublication, 0, len(p.tracks))
	for _, pub := range p.tracks {
		pubs = append(pubs, pub)
	}
	return pubs
}

func (p *baseParticipant) GetTrackPublication(source livekit.TrackSource) TrackPublication {
	p.lock.RLock()
	defer p.lock.RUnlock()

	for _, pub := range p.tracks {
		if pub.Source() == source {
			return pub
		}
	}
	return nil
}

func (p *baseParticipant) getPublication(sid string) TrackPublication {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.tracks[sid]
}

func (p *baseParticipant) addPublication(pub TrackPublication) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.tracks[pub.SID()] = pub
}

func (p *baseParticipant) removePublication(sid string) TrackPublication {
	p.lock.Lock()
	defer p.lock.Unlock()

	pub := p.tracks[sid]
	delete(p.tracks, sid)
	return pub
}

func (p *baseParticipant) callback() *ParticipantCallback {
	return p.Callback
}

// updateInfo returns the previous metadata and whether it changed.
func (p *baseParticipant) updateInfo(pi *livekit.ParticipantInfo) (string, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.info = proto.Clone(pi).(*livekit.ParticipantInfo)
	p.sid = pi.Sid
	if pi.Identity != "" {
		p.identity = pi.Identity
	}
	p.name = pi.Name
	oldMetadata := p.metadata
	p.metadata = pi.Metadata
	return oldMetadata, oldMetadata != pi.Metadata
}

// setSpeaking stores the audio level and returns true when the speaking flag changed.
// Sinks of the participant's tracks are highlighted while speaking.
func (p *baseParticipant) setSpeaking(speaking bool, level float32) bool {
	p.audioLevel.Store(level)
	if p.isSpeaking.Swap(speaking) == speaking {
		return false
	}

	for _, pub := range p.TrackPublications() {
		if h := pub.Handle(); h != nil {
			h.setHighlighted(speaking)
		}
	}
	return true
}

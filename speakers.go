package lksdk

import (
	"slices"

	"github.com/livekit/protocol/livekit"
)

// handleActiveSpeakersChanged applies a full snapshot of the active speakers. Every known
// participant is re-evaluated, a participant missing from the snapshot is not speaking.
// Participants that joined since the last snapshot stay not-speaking until a snapshot
// lists them.
func (r *Room) handleActiveSpeakersChanged(speakers []*livekit.SpeakerInfo) {
	s := r.session
	if s == nil {
		return
	}

	levels := make(map[string]float32, len(speakers))
	for _, si := range speakers {
		if si.GetSid() == "" {
			continue
		}
		if _, ok := levels[si.Sid]; !ok {
			levels[si.Sid] = si.Level
		}
	}

	var changed []Participant
	for _, p := range r.Participants() {
		level, speaking := levels[p.SID()]
		if p.setSpeaking(speaking, level) {
			changed = append(changed, p)
		}
	}

	// snapshot order is kept, it is the engine's loudest first ordering
	active := make([]Participant, 0, len(levels))
	seen := make(map[string]struct{}, len(levels))
	for _, si := range speakers {
		if _, ok := seen[si.GetSid()]; ok {
			continue
		}
		if p := r.participantBySID(si.GetSid()); p != nil {
			seen[si.Sid] = struct{}{}
			active = append(active, p)
		}
	}

	r.lock.Lock()
	prev := s.activeSpeakers
	s.activeSpeakers = active
	r.lock.Unlock()

	for _, p := range changed {
		r.enqueueCallback(func(cb *RoomCallback) {
			p.callback().OnIsSpeakingChanged(p)
			cb.OnIsSpeakingChanged(p)
		})
	}
	if !sameParticipants(prev, active) {
		speakers := slices.Clone(active)
		r.enqueueCallback(func(cb *RoomCallback) {
			cb.OnActiveSpeakersChanged(speakers)
		})
	}
}

func (r *Room) participantBySID(sid string) Participant {
	if sid == "" {
		return nil
	}
	if sid == r.LocalParticipant.SID() {
		return r.LocalParticipant
	}
	if rp := r.GetRemoteParticipant(sid); rp != nil {
		return rp
	}
	return nil
}

func sameParticipants(a, b []Participant) bool {
	return slices.EqualFunc(a, b, func(x, y Participant) bool {
		return x.SID() == y.SID()
	})
}

func removeParticipant(participants []Participant, sid string) []Participant {
	return slices.DeleteFunc(slices.Clone(participants), func(p Participant) bool {
		return p.SID() == sid
	})
}

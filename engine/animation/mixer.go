package animation

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

// Mixer plays actions on one skeleton and blends their poses. Every bone any
// of its actions has a track for is written on Update; missing weight is
// filled with the bind pose.
type Mixer struct {
	ID       uuid.UUID
	skeleton *character.Skeleton
	bus      *core.EventBus

	actions map[*character.Clip]*Action
	active  []*Action
	bound   map[*character.Bone]struct{}
	order   []*character.Bone
}

// NewMixer creates a mixer. bus may be nil, in which case no events are posted.
func NewMixer(skeleton *character.Skeleton, bus *core.EventBus) *Mixer {
	return &Mixer{
		ID:       core.NewID(),
		skeleton: skeleton,
		bus:      bus,
		actions:  make(map[*character.Clip]*Action),
		bound:    make(map[*character.Bone]struct{}),
	}
}

// ClipAction returns the action for clip, creating it on first use.
func (m *Mixer) ClipAction(clip *character.Clip) *Action {
	if a, ok := m.actions[clip]; ok {
		return a
	}
	a := &Action{ID: core.NewID(), clip: clip, mixer: m}
	for i := range clip.Tracks {
		tr := &clip.Tracks[i]
		if !tr.Valid() {
			continue
		}
		bone, ok := m.skeleton.Bone(tr.Bone)
		if !ok {
			continue
		}
		a.bindings = append(a.bindings, binding{bone: bone, track: tr})
		if _, seen := m.bound[bone]; !seen {
			m.bound[bone] = struct{}{}
			m.order = append(m.order, bone)
		}
	}
	m.actions[clip] = a
	return a
}

// Active returns the actions currently contributing to the pose.
func (m *Mixer) Active() []*Action {
	return append([]*Action(nil), m.active...)
}

// StopAll stops every action.
func (m *Mixer) StopAll() {
	for _, a := range m.Active() {
		a.Stop()
	}
}

// Update advances every active action by dt seconds and writes the blended pose.
func (m *Mixer) Update(dt float64) {
	step := float32(dt)
	for _, a := range m.Active() {
		finished, fadedOut := a.advance(step)
		if finished {
			m.post(core.EventClipFinished, a)
		}
		if fadedOut {
			a.Stop()
		}
	}
	m.apply()
}

type accum struct {
	rot    math.Quaternion
	rotW   float32
	pos    math.Vec3
	posW   float32
	scale  math.Vec3
	scaleW float32
}

func (m *Mixer) apply() {
	if len(m.order) == 0 {
		return
	}
	acc := make(map[*character.Bone]*accum, len(m.order))
	for _, a := range m.active {
		w := a.weight
		if w <= 0 {
			continue
		}
		for _, b := range a.bindings {
			st := acc[b.bone]
			if st == nil {
				st = &accum{}
				acc[b.bone] = st
			}
			switch b.track.Property {
			case character.TrackRotation:
				q := b.track.SampleQuat(a.time)
				// keep every sample in the same hemisphere as the bind pose
				if q.Dot(b.bone.BindRotation) < 0 {
					q = q.Scale(-1)
				}
				st.rot = st.rot.Add(q.Scale(w))
				st.rotW += w
			case character.TrackTranslation:
				st.pos = st.pos.Add(b.track.SampleVec3(a.time).MulScalar(w))
				st.posW += w
			case character.TrackScale:
				st.scale = st.scale.Add(b.track.SampleVec3(a.time).MulScalar(w))
				st.scaleW += w
			}
		}
	}

	for _, bone := range m.order {
		st := acc[bone]
		if st == nil {
			st = &accum{}
		}
		bone.Transform.SetRotation(blendQuat(st.rot, st.rotW, bone.BindRotation))
		bone.Transform.SetPosition(blendVec3(st.pos, st.posW, bone.BindPosition))
		bone.Transform.SetScale(blendVec3(st.scale, st.scaleW, bone.BindScale))
	}
}

func blendQuat(sum math.Quaternion, w float32, rest math.Quaternion) math.Quaternion {
	if w < 1 {
		sum = sum.Add(rest.Scale(1 - w))
	}
	return sum.Normalize()
}

func blendVec3(sum math.Vec3, w float32, rest math.Vec3) math.Vec3 {
	if w < 1 {
		return sum.Add(rest.MulScalar(1 - w))
	}
	return sum.MulScalar(1 / w)
}

func (m *Mixer) activate(a *Action) {
	for _, x := range m.active {
		if x == a {
			return
		}
	}
	m.active = append(m.active, a)
}

func (m *Mixer) deactivate(a *Action) {
	for i, x := range m.active {
		if x == a {
			m.active = append(m.active[:i], m.active[i+1:]...)
			return
		}
	}
}

func (m *Mixer) post(code core.EventCode, a *Action) {
	if m.bus == nil {
		return
	}
	m.bus.Post(core.Event{
		Code:   code,
		Sender: m,
		Data:   ActionEvent{Mixer: m.ID, Action: a, Clip: a.clip.Name},
	})
}

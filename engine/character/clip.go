package character

import (
	"github.com/spaghettifunk/marionette/engine/math"
)

type TrackProperty uint8

const (
	TrackTranslation TrackProperty = iota
	TrackRotation
	TrackScale
)

func (p TrackProperty) String() string {
	switch p {
	case TrackTranslation:
		return "translation"
	case TrackRotation:
		return "rotation"
	case TrackScale:
		return "scale"
	}
	return "unknown"
}

// Width is the number of floats per keyframe.
func (p TrackProperty) Width() int {
	if p == TrackRotation {
		return 4
	}
	return 3
}

type LoopMode uint8

const (
	// Repeat forever.
	LoopRepeat LoopMode = iota
	// Play once and clamp on the last frame.
	LoopOnce
)

// Track is the keyframes of one property of one bone. Values holds
// Property.Width() floats per key; Times is strictly increasing, in seconds.
type Track struct {
	Bone     string
	Property TrackProperty
	Times    []float32
	Values   []float32
}

// Clip is a timed set of tracks. Clips are not modified after creation;
// retargeting and loop changes produce copies.
type Clip struct {
	Name     string
	Duration float32
	Tracks   []Track
	Loop     LoopMode
}

// NewClip builds a clip whose duration is the last keyframe time of any track.
func NewClip(name string, loop LoopMode, tracks []Track) *Clip {
	var duration float32
	for _, t := range tracks {
		if n := len(t.Times); n > 0 && t.Times[n-1] > duration {
			duration = t.Times[n-1]
		}
	}
	return &Clip{Name: name, Duration: duration, Tracks: tracks, Loop: loop}
}

// Empty reports whether the clip drives nothing.
func (c *Clip) Empty() bool {
	return c == nil || len(c.Tracks) == 0
}

// WithLoop returns a shallow copy using another loop mode.
func (c *Clip) WithLoop(loop LoopMode) *Clip {
	cp := *c
	cp.Loop = loop
	return &cp
}

// Valid reports whether the track has matching times and values.
func (t *Track) Valid() bool {
	return len(t.Times) > 0 && len(t.Values) == len(t.Times)*t.Property.Width()
}

// keyframes returns the two keys surrounding time and the blend factor between them.
func (t *Track) keyframes(time float32) (int, int, float32) {
	n := len(t.Times)
	if time <= t.Times[0] {
		return 0, 0, 0
	}
	if time >= t.Times[n-1] {
		return n - 1, n - 1, 0
	}
	// binary search for the first key after time
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.Times[mid] <= time {
			lo = mid
		} else {
			hi = mid
		}
	}
	span := t.Times[hi] - t.Times[lo]
	if span <= 0 {
		return hi, hi, 0
	}
	return lo, hi, (time - t.Times[lo]) / span
}

// SampleVec3 linearly interpolates a translation or scale track.
func (t *Track) SampleVec3(time float32) math.Vec3 {
	a, b, f := t.keyframes(time)
	va := math.NewVec3(t.Values[a*3], t.Values[a*3+1], t.Values[a*3+2])
	if a == b {
		return va
	}
	vb := math.NewVec3(t.Values[b*3], t.Values[b*3+1], t.Values[b*3+2])
	return va.Lerp(vb, f)
}

// SampleQuat spherically interpolates a rotation track.
func (t *Track) SampleQuat(time float32) math.Quaternion {
	a, b, f := t.keyframes(time)
	qa := math.Quaternion{X: t.Values[a*4], Y: t.Values[a*4+1], Z: t.Values[a*4+2], W: t.Values[a*4+3]}
	if a == b {
		return qa.Normalize()
	}
	qb := math.Quaternion{X: t.Values[b*4], Y: t.Values[b*4+1], Z: t.Values[b*4+2], W: t.Values[b*4+3]}
	return qa.Slerp(qb, f)
}

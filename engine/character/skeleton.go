package character

import (
	"fmt"

	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

// BoneDef describes one bone in bind pose. Parent is the index of the parent
// bone in the same slice, or -1 for a root bone.
type BoneDef struct {
	Name     string
	Parent   int
	Position math.Vec3
	Rotation math.Quaternion
	Scale    math.Vec3
}

type Bone struct {
	Name      string
	Index     int
	Parent    *Bone
	Children  []*Bone
	Transform *math.Transform

	BindPosition math.Vec3
	BindRotation math.Quaternion
	BindScale    math.Vec3

	// World values in bind pose, captured by CaptureRest.
	RestWorldRotation math.Quaternion
	RestWorldPosition math.Vec3
}

// Skeleton is a bone hierarchy attached under an optional root transform.
type Skeleton struct {
	Bones  []*Bone
	Root   *math.Transform
	byName map[string]*Bone
}

// NewSkeleton builds a skeleton from definitions ordered parents first.
func NewSkeleton(defs []BoneDef) (*Skeleton, error) {
	s := &Skeleton{
		Bones:  make([]*Bone, 0, len(defs)),
		byName: make(map[string]*Bone, len(defs)),
	}
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("bone %d has no name", i)
		}
		if _, dup := s.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate bone %q", d.Name)
		}
		if d.Parent >= i {
			return nil, fmt.Errorf("bone %q: parent %d must precede it", d.Name, d.Parent)
		}
		scale := d.Scale
		if scale == (math.Vec3{}) {
			scale = math.NewVec3One()
		}
		b := &Bone{
			Name:         d.Name,
			Index:        i,
			Transform:    math.TransformFromPositionRotationScale(d.Position, d.Rotation.Normalize(), scale),
			BindPosition: d.Position,
			BindRotation: d.Rotation.Normalize(),
			BindScale:    scale,
		}
		if d.Parent >= 0 {
			b.Parent = s.Bones[d.Parent]
			b.Parent.Children = append(b.Parent.Children, b)
			b.Transform.Parent = b.Parent.Transform
		}
		s.Bones = append(s.Bones, b)
		s.byName[d.Name] = b
	}
	s.CaptureRest()
	return s, nil
}

// Bone looks a bone up by name.
func (s *Skeleton) Bone(name string) (*Bone, bool) {
	if s == nil || name == "" {
		return nil, false
	}
	b, ok := s.byName[name]
	return b, ok
}

// MustBone returns the named bone or ErrMissingBone.
func (s *Skeleton) MustBone(name string) (*Bone, error) {
	b, ok := s.Bone(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrMissingBone, name)
	}
	return b, nil
}

// Names lists bone names in hierarchy order.
func (s *Skeleton) Names() []string {
	out := make([]string, len(s.Bones))
	for i, b := range s.Bones {
		out[i] = b.Name
	}
	return out
}

// AttachTo parents every root bone under root.
func (s *Skeleton) AttachTo(root *math.Transform) {
	s.Root = root
	for _, b := range s.Bones {
		if b.Parent == nil {
			b.Transform.Parent = root
		}
	}
}

// ResetToBindPose restores every bone's local transform to bind pose.
func (s *Skeleton) ResetToBindPose() {
	for _, b := range s.Bones {
		b.Transform.SetPositionRotationScale(b.BindPosition, b.BindRotation, b.BindScale)
	}
}

// CaptureRest records the world rotation and position of every bone in bind
// pose. Procedural rotations are computed relative to these values, never
// relative to the previous frame.
func (s *Skeleton) CaptureRest() {
	saved := make([]math.Transform, len(s.Bones))
	for i, b := range s.Bones {
		saved[i] = *b.Transform
	}
	s.ResetToBindPose()
	for _, b := range s.Bones {
		b.RestWorldRotation = b.Transform.WorldRotation()
		b.RestWorldPosition = b.Transform.WorldPosition()
	}
	for i, b := range s.Bones {
		*b.Transform = saved[i]
	}
}

// RestHeight is the rest world height of the named bone, or 0 when missing.
func (s *Skeleton) RestHeight(name string) float32 {
	b, ok := s.Bone(name)
	if !ok {
		return 0
	}
	return b.RestWorldPosition.Y
}

package character

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

// Role is a bone the engine drives procedurally or follows with the camera.
type Role uint8

const (
	RoleHead Role = iota
	RoleSpine
	RoleLeftEye
	RoleRightEye
	RoleHips
)

func (r Role) String() string {
	switch r {
	case RoleHead:
		return "head"
	case RoleSpine:
		return "spine"
	case RoleLeftEye:
		return "leftEye"
	case RoleRightEye:
		return "rightEye"
	case RoleHips:
		return "hips"
	}
	return "unknown"
}

// Runtime is everything the controllers share about the loaded character.
// Selecting a character replaces the whole Runtime at once.
type Runtime struct {
	ID       uuid.UUID
	Profile  *Profile
	Root     *math.Transform
	Skeleton *Skeleton
	Meshes   []*MorphMesh
	Registry *Registry
	// Model animations by name.
	Clips map[string]*Clip
}

// NewRuntime assembles a runtime: the character root gets the profile scale
// and base rotation, the skeleton is attached under it, its rest pose is
// captured and morph names are resolved. skeleton may be nil.
func NewRuntime(profile *Profile, skeleton *Skeleton, meshes []*MorphMesh, clips map[string]*Clip) *Runtime {
	s := profile.Scale
	root := math.TransformFromPositionRotationScale(math.NewVec3Zero(), profile.BaseRotation(), math.NewVec3(s, s, s))
	if skeleton != nil {
		skeleton.AttachTo(root)
		skeleton.CaptureRest()
	}
	if clips == nil {
		clips = map[string]*Clip{}
	}
	return &Runtime{
		ID:       core.NewID(),
		Profile:  profile,
		Root:     root,
		Skeleton: skeleton,
		Meshes:   meshes,
		Registry: NewRegistry(profile, meshes),
		Clips:    clips,
	}
}

// Bone returns the bone playing role, if the skeleton has it.
func (r *Runtime) Bone(role Role) (*Bone, bool) {
	if r == nil || r.Skeleton == nil {
		return nil, false
	}
	var name string
	switch role {
	case RoleHead:
		name = r.Profile.Bones.Head
	case RoleSpine:
		name = r.Profile.Bones.Spine
	case RoleLeftEye:
		name = r.Profile.Bones.LeftEye
	case RoleRightEye:
		name = r.Profile.Bones.RightEye
	case RoleHips:
		name = r.Profile.Bones.Hips
	}
	return r.Skeleton.Bone(name)
}

// Clip returns a model animation by name.
func (r *Runtime) Clip(name string) (*Clip, bool) {
	if r == nil || name == "" {
		return nil, false
	}
	c, ok := r.Clips[name]
	return c, ok
}

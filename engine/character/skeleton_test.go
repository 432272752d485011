package character_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/character/chartest"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

func TestSkeletonRestCapture(t *testing.T) {
	s := chartest.Skeleton("")
	head, ok := s.Bone("Head")
	require.True(t, ok)

	assert.True(t, head.RestWorldPosition.Compare(math.NewVec3(0, 1.7, 0), 1e-5))
	assert.InDelta(t, 1.0, s.RestHeight("Hips"), 1e-6)

	_, err := s.MustBone("Tail")
	assert.ErrorIs(t, err, core.ErrMissingBone)
}

func TestSkeletonResetToBindPose(t *testing.T) {
	s := chartest.Skeleton("")
	spine, _ := s.Bone("Spine")
	spine.Transform.SetRotation(math.NewQuatFromAxisAngle(math.NewVec3Up(), 1, true))

	s.ResetToBindPose()
	assert.True(t, spine.Transform.Rotation.Compare(math.NewQuatIdentity(), 1e-5))
}

func TestSkeletonRejectsBadOrder(t *testing.T) {
	_, err := character.NewSkeleton([]character.BoneDef{
		{Name: "Child", Parent: 1},
		{Name: "Root", Parent: -1},
	})
	assert.Error(t, err)
}

func TestRuntimeAppliesProfileRoot(t *testing.T) {
	p := chartest.Profile()
	p.Scale = 2
	p.Rotation = [3]float32{0, 90, 0}
	rt := character.NewRuntime(p, chartest.Skeleton(""), nil, nil)

	eye, ok := rt.Bone(character.RoleLeftEye)
	require.True(t, ok)
	// x=0.03,z=0.08 rotated 90 degrees about Y then doubled
	assert.True(t, eye.RestWorldPosition.Compare(math.NewVec3(0.16, 3.6, -0.06), 1e-4), "got %v", eye.RestWorldPosition)
}

func TestTrackSampling(t *testing.T) {
	clip := chartest.SwayClip("Sway", "Spine", 1, 2, character.LoopRepeat)
	assert.Equal(t, float32(2), clip.Duration)

	tr := clip.Tracks[0]
	assert.InDelta(t, 0.5, tr.SampleQuat(0.5).Angle(math.NewQuatIdentity()), 1e-4)
	assert.InDelta(t, 1.0, tr.SampleQuat(1).Angle(math.NewQuatIdentity()), 1e-4)
	assert.True(t, tr.SampleQuat(5).Compare(math.NewQuatIdentity(), 1e-4), "clamped past the end")
}

package animation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/character/chartest"
	"github.com/spaghettifunk/marionette/engine/math"
)

func TestRetargetRenamesTracks(t *testing.T) {
	target := chartest.Skeleton("")
	source := chartest.Skeleton("src:")
	clip := chartest.SwayClip("wave", "src:Spine", 0.4, 1, character.LoopOnce)

	out := NameMapRetargeter{Hips: "Hips"}.Retarget(target, source, clip, map[string]string{"src:Spine": "Spine"})
	require.Len(t, out.Tracks, 1)
	assert.Equal(t, "Spine", out.Tracks[0].Bone)
	assert.Equal(t, clip.Duration, out.Duration)
	assert.InDelta(t, 0.4, out.Tracks[0].SampleQuat(0.5).Angle(math.NewQuatIdentity()), 1e-4)
}

func TestRetargetUnmappableYieldsEmptyClip(t *testing.T) {
	target := chartest.Skeleton("")
	source := chartest.Skeleton("src:")
	clip := chartest.SwayClip("tail", "src:Tail", 0.4, 1, character.LoopOnce)

	r := NameMapRetargeter{Hips: "Hips"}
	assert.True(t, r.Retarget(target, source, clip, nil).Empty())
	assert.True(t, r.Retarget(target, nil, clip, nil).Empty())
	assert.True(t, r.Retarget(nil, source, clip, nil).Empty())
}

func TestRetargetScalesHipsTranslation(t *testing.T) {
	target := chartest.Skeleton("")
	defs := chartest.BoneDefs("src:")
	defs[0].Position = math.NewVec3(0, 2, 0)
	source, err := character.NewSkeleton(defs)
	require.NoError(t, err)

	clip := character.NewClip("step", character.LoopOnce, []character.Track{
		{Bone: "src:Hips", Property: character.TrackTranslation, Times: []float32{0, 1}, Values: []float32{0, 2, 0, 1, 2, 0}},
		{Bone: "src:Spine", Property: character.TrackTranslation, Times: []float32{0}, Values: []float32{0, 5, 0}},
	})
	out := NameMapRetargeter{Hips: "Hips"}.Retarget(target, source, clip, map[string]string{"src:Hips": "Hips", "src:Spine": "Spine"})

	require.Len(t, out.Tracks, 1, "only the hips keep translation")
	end := out.Tracks[0].SampleVec3(1)
	assert.True(t, end.Compare(math.NewVec3(0.5, 1, 0), 1e-5), "got %v", end)
}

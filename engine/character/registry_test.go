package character_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/character/chartest"
)

func TestRegistryResolvesOnce(t *testing.T) {
	rt := chartest.Runtime()
	reg := rt.Registry

	assert.Len(t, reg.Resolve("viseme_aa"), 2, "face and teeth")
	assert.Len(t, reg.Resolve("eyeBlinkLeft"), 1)
	assert.False(t, reg.Supported("mouthPucker"))
	assert.Equal(t, []string{"mouthPucker"}, reg.Unsupported())
}

func TestClaimWithholdsContendedChannels(t *testing.T) {
	rt := chartest.Runtime()
	p := rt.Profile
	reg := rt.Registry

	blink := reg.Claim(character.OwnerBlink, p.Morphs.Blink...)
	lips := reg.Claim(character.OwnerLipSync, p.VowelMorphs()...)
	emotion := reg.Claim(character.OwnerEmotion, p.EmotionMorphs()...)

	assert.Equal(t, []string{"eyeBlinkLeft", "eyeBlinkRight"}, blink.Names())
	assert.True(t, lips.Has("viseme_O"))
	// viseme_O belongs to lip-sync, the surprised preset cannot write it
	assert.False(t, emotion.Has("viseme_O"))
	assert.True(t, emotion.Has("browInnerUp"))

	owner, ok := reg.Owner(reg.Resolve("viseme_O")[0])
	assert.True(t, ok)
	assert.Equal(t, character.OwnerLipSync, owner)
}

func TestMorphWriterScope(t *testing.T) {
	rt := chartest.Runtime()
	face := chartest.Face(rt)
	teeth := rt.Meshes[1]
	lips := rt.Registry.Claim(character.OwnerLipSync, rt.Profile.VowelMorphs()...)

	assert.True(t, lips.Set("viseme_aa", 2))
	assert.Equal(t, float32(1), face.Weight("viseme_aa"), "clamped")
	assert.Equal(t, float32(1), teeth.Weight("viseme_aa"), "every mesh")

	assert.False(t, lips.Set("eyeBlinkLeft", 1))
	assert.Equal(t, float32(0), face.Weight("eyeBlinkLeft"))

	lips.Reset()
	assert.Equal(t, float32(0), face.Weight("viseme_aa"))
	assert.Equal(t, float32(0), teeth.Weight("viseme_aa"))
}

// Package chartest builds small in-memory characters for tests.
package chartest

import (
	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/math"
)

const ProfileTOML = `
name = "Tester"
model = "models/tester.glb"
scale = 1.0
rotation = [0, 0, 0]
default_emotion = "neutral"
follow_offset = [0, 0.4, 2.0]

[clips]
idle = "Idle"
standing = "Standing"
talk = "Talk"

[bones]
head = "Head"
spine = "Spine"
left_eye = "LeftEye"
right_eye = "RightEye"
hips = "Hips"

[morphs]
blink = ["eyeBlinkLeft", "eyeBlinkRight"]

[morphs.vowels]
a = ["viseme_aa"]
e = ["viseme_E"]
i = ["viseme_I"]
o = ["viseme_O"]
u = ["viseme_U", "mouthPucker"]

[morphs.emotions]
neutral = {}
happy = { mouthSmile = 0.7, cheekSquint = 0.4 }
sad = { mouthFrown = 0.6, browInnerUp = 0.5 }
surprised = { browInnerUp = 0.9, viseme_O = 0.3 }

[retarget]
"src:Hips" = "Hips"
"src:Spine" = "Spine"
"src:Head" = "Head"
`

// FaceTargets are the morph targets of the face mesh. mouthPucker is
// deliberately absent.
var FaceTargets = []string{
	"eyeBlinkLeft", "eyeBlinkRight",
	"viseme_aa", "viseme_E", "viseme_I", "viseme_O", "viseme_U",
	"mouthSmile", "cheekSquint", "mouthFrown", "browInnerUp",
}

// Profile parses ProfileTOML and panics on error.
func Profile() *character.Profile {
	p, err := character.ParseProfile([]byte(ProfileTOML))
	if err != nil {
		panic(err)
	}
	return p
}

// BoneDefs is a five-bone humanoid: hips, spine, head and two eyes.
func BoneDefs(prefix string) []character.BoneDef {
	id := math.NewQuatIdentity()
	return []character.BoneDef{
		{Name: prefix + "Hips", Parent: -1, Position: math.NewVec3(0, 1, 0), Rotation: id},
		{Name: prefix + "Spine", Parent: 0, Position: math.NewVec3(0, 0.2, 0), Rotation: id},
		{Name: prefix + "Head", Parent: 1, Position: math.NewVec3(0, 0.5, 0), Rotation: id},
		{Name: prefix + "LeftEye", Parent: 2, Position: math.NewVec3(0.03, 0.1, 0.08), Rotation: id},
		{Name: prefix + "RightEye", Parent: 2, Position: math.NewVec3(-0.03, 0.1, 0.08), Rotation: id},
	}
}

// Skeleton builds the humanoid with bone names prefixed by prefix.
func Skeleton(prefix string) *character.Skeleton {
	s, err := character.NewSkeleton(BoneDefs(prefix))
	if err != nil {
		panic(err)
	}
	return s
}

// SwayClip rotates bone around Y by up to angle radians over duration seconds.
func SwayClip(name, bone string, angle, duration float32, loop character.LoopMode) *character.Clip {
	q0 := math.NewQuatIdentity()
	q1 := math.NewQuatFromAxisAngle(math.NewVec3Up(), angle, true)
	return character.NewClip(name, loop, []character.Track{{
		Bone:     bone,
		Property: character.TrackRotation,
		Times:    []float32{0, duration / 2, duration},
		Values: []float32{
			q0.X, q0.Y, q0.Z, q0.W,
			q1.X, q1.Y, q1.Z, q1.W,
			q0.X, q0.Y, q0.Z, q0.W,
		},
	}})
}

// Runtime builds a complete character: skeleton, a face mesh, a teeth mesh
// sharing one viseme, and idle/standing/talk clips.
func Runtime() *character.Runtime {
	p := Profile()
	face := character.NewMorphMesh("Face", FaceTargets)
	teeth := character.NewMorphMesh("Teeth", []string{"viseme_aa"})
	clips := map[string]*character.Clip{
		"Idle":     SwayClip("Idle", "Spine", 0.1, 2, character.LoopRepeat),
		"Standing": SwayClip("Standing", "Hips", 0.2, 3, character.LoopRepeat),
		"Talk":     SwayClip("Talk", "Head", 0.05, 1, character.LoopRepeat),
	}
	return character.NewRuntime(p, Skeleton(""), []*character.MorphMesh{face, teeth}, clips)
}

// Face returns the face mesh of a runtime built by Runtime.
func Face(rt *character.Runtime) *character.MorphMesh {
	return rt.Meshes[0]
}

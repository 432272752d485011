package expression

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/character/chartest"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

const frame = time.Second / 60

type face struct {
	rt      *character.Runtime
	mesh    *character.MorphMesh
	sched   *core.Scheduler
	blink   *Blink
	lips    *LipSync
	emotion *Emotion
	now     time.Duration
}

func newFace(t *testing.T) *face {
	rt := chartest.Runtime()
	p := rt.Profile
	f := &face{rt: rt, mesh: chartest.Face(rt), sched: core.NewScheduler()}

	blinkW := rt.Registry.Claim(character.OwnerBlink, p.Morphs.Blink...)
	lipsW := rt.Registry.Claim(character.OwnerLipSync, p.VowelMorphs()...)
	emotionW := rt.Registry.Claim(character.OwnerEmotion, p.EmotionMorphs()...)

	f.blink = NewBlink(DefaultBlinkConfig(), math.NewRand(1))
	f.blink.Bind(p, blinkW, 0)
	f.lips = NewLipSync(DefaultLipSyncConfig(), math.NewRand(2), f.sched)
	f.lips.Bind(p, lipsW)
	f.emotion = NewEmotion(f.sched)
	f.emotion.Bind(p, emotionW)
	f.lips.OnStop(f.emotion.Reapply)
	require.False(t, f.blink.Disabled())
	return f
}

func (f *face) step() {
	f.now += frame
	f.sched.Advance(f.now)
	f.blink.Update(core.Tick{Now: f.now, Delta: frame.Seconds()}, f.lips.IsTalking())
}

func (f *face) run(d time.Duration, each func()) {
	end := f.now + d
	for f.now < end {
		f.step()
		if each != nil {
			each()
		}
	}
}

func TestBlinkIntervalsWithinBounds(t *testing.T) {
	f := newFace(t)
	first := f.blink.NextBlinkAt()
	assert.GreaterOrEqual(t, first, 2*time.Second)
	assert.LessOrEqual(t, first, 8*time.Second)

	wasBlinking := false
	var peak float32
	f.run(3*time.Minute, func() {
		if f.blink.IsBlinking() {
			wasBlinking = true
			if w := f.blink.Weight(); w > peak {
				peak = w
			}
			return
		}
		if wasBlinking {
			delay := f.blink.NextBlinkAt() - f.now
			assert.GreaterOrEqual(t, delay, 2*time.Second)
			assert.LessOrEqual(t, delay, 8*time.Second)
			wasBlinking = false
		}
	})
	assert.Greater(t, f.blink.Count(), 15)
	assert.Greater(t, peak, float32(0.8))
	if !f.blink.IsBlinking() {
		assert.Equal(t, float32(0), f.mesh.Weight("eyeBlinkLeft"), "eyes open between blinks")
	}
}

func TestBlinkRampShape(t *testing.T) {
	f := newFace(t)
	f.now = f.blink.NextBlinkAt()
	f.blink.Update(core.Tick{Now: f.now}, false)
	require.True(t, f.blink.IsBlinking())
	assert.Equal(t, float32(0), f.blink.Weight())

	f.blink.Update(core.Tick{Now: f.now + 75*time.Millisecond}, false)
	assert.InDelta(t, 1.0, f.blink.Weight(), 1e-5)
	assert.InDelta(t, 1.0, f.mesh.Weight("eyeBlinkRight"), 1e-5)

	f.blink.Update(core.Tick{Now: f.now + 112500*time.Microsecond}, false)
	assert.InDelta(t, 0.5, f.blink.Weight(), 1e-5)

	f.blink.Update(core.Tick{Now: f.now + 150*time.Millisecond}, false)
	assert.False(t, f.blink.IsBlinking())
	assert.Equal(t, float32(0), f.mesh.Weight("eyeBlinkLeft"))
}

func TestNoBlinkWhileTalking(t *testing.T) {
	f := newFace(t)
	// start talking in the middle of a blink
	f.now = f.blink.NextBlinkAt() + 50*time.Millisecond
	f.blink.Update(core.Tick{Now: f.blink.NextBlinkAt()}, false)
	f.blink.Update(core.Tick{Now: f.now}, false)
	require.True(t, f.blink.IsBlinking())

	f.lips.Start()
	started := f.blink.Count()
	f.run(30*time.Second, func() {
		assert.False(t, f.blink.IsBlinking())
		assert.Equal(t, float32(0), f.mesh.Weight("eyeBlinkLeft"))
		assert.Equal(t, float32(0), f.mesh.Weight("eyeBlinkRight"))
	})
	assert.Equal(t, started, f.blink.Count())

	f.lips.Stop()
	f.run(10*time.Second, nil)
	assert.Greater(t, f.blink.Count(), started, "blinking resumes")
}

func TestLipSyncSteps(t *testing.T) {
	f := newFace(t)
	f.lips.Start()
	assert.True(t, f.lips.IsTalking())

	prev, _ := f.lips.Last()
	changes := 0
	steps := f.lips.Steps()
	f.run(1200*time.Millisecond, func() {
		v, w := f.lips.Last()
		if f.lips.Steps() != steps {
			assert.NotEqual(t, prev, v, "a different vowel every step")
			assert.GreaterOrEqual(t, w, float32(0.4))
			assert.LessOrEqual(t, w, float32(1.0))
			prev = v
			steps = f.lips.Steps()
			changes++
		}
		shown := 0
		for _, n := range []string{"viseme_aa", "viseme_E", "viseme_I", "viseme_O", "viseme_U"} {
			if f.mesh.Weight(n) > 0 {
				shown++
			}
		}
		assert.Equal(t, 1, shown, "previous shape is cleared")
	})
	assert.Equal(t, 11, f.lips.Steps())
	assert.Equal(t, 10, changes)

	f.lips.Stop()
	assert.False(t, f.lips.IsTalking())
	for _, n := range []string{"viseme_aa", "viseme_E", "viseme_I", "viseme_O", "viseme_U"} {
		assert.Equal(t, float32(0), f.mesh.Weight(n))
	}
	assert.Equal(t, float32(0), f.rt.Meshes[1].Weight("viseme_aa"))
}

func TestLipSyncStopRestoresEmotion(t *testing.T) {
	f := newFace(t)
	require.True(t, f.emotion.Apply("happy"))
	f.lips.Start()
	// something outside the emotion controller cleared the face
	f.mesh.Influences[f.mesh.Dictionary["mouthSmile"]] = 0

	f.lips.Stop()
	f.run(100*time.Millisecond, nil)
	assert.Equal(t, float32(0), f.mesh.Weight("mouthSmile"), "not before the delay")
	f.run(100*time.Millisecond, nil)
	assert.InDelta(t, 0.7, f.mesh.Weight("mouthSmile"), 1e-6)
}

func TestEmotionSwitchLeavesNoResidue(t *testing.T) {
	f := newFace(t)
	assert.Equal(t, "neutral", f.emotion.Current())

	require.True(t, f.emotion.Apply("happy"))
	assert.InDelta(t, 0.7, f.mesh.Weight("mouthSmile"), 1e-6)
	assert.InDelta(t, 0.4, f.mesh.Weight("cheekSquint"), 1e-6)

	require.True(t, f.emotion.Apply("sad"))
	assert.Equal(t, float32(0), f.mesh.Weight("mouthSmile"))
	assert.Equal(t, float32(0), f.mesh.Weight("cheekSquint"))
	assert.InDelta(t, 0.6, f.mesh.Weight("mouthFrown"), 1e-6)
	assert.Equal(t, "sad", f.emotion.Current())
}

func TestUnknownEmotionIsNoop(t *testing.T) {
	f := newFace(t)
	require.True(t, f.emotion.Apply("happy"))
	assert.False(t, f.emotion.Apply("ecstatic"))
	assert.Equal(t, "happy", f.emotion.Current())
	assert.InDelta(t, 0.7, f.mesh.Weight("mouthSmile"), 1e-6)
}

func TestEmotionDoesNotTouchLipSyncChannels(t *testing.T) {
	f := newFace(t)
	f.lips.Start()
	v, w := f.lips.Last()
	require.NotEmpty(t, v)

	// surprised lists viseme_O, which belongs to lip-sync
	require.True(t, f.emotion.Apply("surprised"))
	got, _ := f.lips.Last()
	assert.Equal(t, v, got)
	if v == "o" {
		assert.Equal(t, w, f.mesh.Weight("viseme_O"))
	} else {
		assert.Equal(t, float32(0), f.mesh.Weight("viseme_O"))
	}
}

func TestTransientEmotionReverts(t *testing.T) {
	f := newFace(t)
	require.True(t, f.emotion.Transient("happy", 2*time.Second, "neutral"))
	assert.True(t, f.emotion.Reverting())

	f.run(1900*time.Millisecond, nil)
	assert.Equal(t, "happy", f.emotion.Current())
	f.run(200*time.Millisecond, nil)
	assert.Equal(t, "neutral", f.emotion.Current())
	assert.Equal(t, float32(0), f.mesh.Weight("mouthSmile"))

	require.True(t, f.emotion.Transient("happy", time.Second, "neutral"))
	require.True(t, f.emotion.Apply("sad"))
	f.run(2*time.Second, nil)
	assert.Equal(t, "sad", f.emotion.Current(), "explicit apply cancels the reversion")
}

func TestTransientWithoutDefaultClearsFace(t *testing.T) {
	p, err := character.ParseProfile([]byte(strings.Replace(chartest.ProfileTOML, `default_emotion = "neutral"`, "", 1)))
	require.NoError(t, err)
	require.Empty(t, p.DefaultEmotion)

	rt := chartest.Runtime()
	mesh := chartest.Face(rt)
	sched := core.NewScheduler()
	emotion := NewEmotion(sched)
	emotion.Bind(p, rt.Registry.Claim(character.OwnerEmotion, p.EmotionMorphs()...))
	assert.Empty(t, emotion.Current())

	require.True(t, emotion.Transient("happy", 2*time.Second, p.DefaultEmotion))
	assert.InDelta(t, 0.7, mesh.Weight("mouthSmile"), 1e-6)

	sched.Advance(5 * time.Second)
	assert.Empty(t, emotion.Current())
	assert.False(t, emotion.Reverting())
	assert.Equal(t, float32(0), mesh.Weight("mouthSmile"))
	assert.Equal(t, float32(0), mesh.Weight("cheekSquint"))
}

func TestRebindKeepsTalkAndEmotion(t *testing.T) {
	f := newFace(t)
	require.True(t, f.emotion.Apply("sad"))
	f.lips.Start()

	rt := chartest.Runtime()
	p := rt.Profile
	mesh := chartest.Face(rt)
	rt.Registry.Claim(character.OwnerBlink, p.Morphs.Blink...)
	f.lips.Rebind(p, rt.Registry.Claim(character.OwnerLipSync, p.VowelMorphs()...))
	f.emotion.Rebind(p, rt.Registry.Claim(character.OwnerEmotion, p.EmotionMorphs()...))

	assert.True(t, f.lips.IsTalking())
	assert.Equal(t, "sad", f.emotion.Current())
	assert.InDelta(t, 0.6, mesh.Weight("mouthFrown"), 1e-6)

	f.run(130*time.Millisecond, nil)
	v, w := f.lips.Last()
	require.NotEmpty(t, v)
	moved := false
	for _, n := range p.Morphs.Vowels[v] {
		if _, ok := mesh.Index(n); ok && mesh.Weight(n) == w {
			moved = true
		}
	}
	assert.True(t, moved, "the mouth moves on the reloaded meshes")
}

package expression

import (
	"time"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
)

// Emotion holds the current facial expression preset.
type Emotion struct {
	sched   *core.Scheduler
	writer  *character.MorphWriter
	presets map[string]map[string]float32
	current string
	revert  core.TimerID
}

func NewEmotion(sched *core.Scheduler) *Emotion {
	return &Emotion{sched: sched}
}

// Bind attaches the presets of a character and applies its default emotion.
func (e *Emotion) Bind(profile *character.Profile, writer *character.MorphWriter) {
	e.cancelRevert()
	e.writer = writer
	e.presets = profile.Morphs.Emotions
	e.current = ""
	if profile.DefaultEmotion != "" {
		e.Apply(profile.DefaultEmotion)
	}
}

// Rebind moves the presets onto a reloaded copy of the same character. The
// current emotion and any pending reversion are kept.
func (e *Emotion) Rebind(profile *character.Profile, writer *character.MorphWriter) {
	e.writer = writer
	e.presets = profile.Morphs.Emotions
	if _, ok := e.presets[e.current]; !ok {
		e.cancelRevert()
		e.current = ""
		if profile.DefaultEmotion != "" {
			e.Apply(profile.DefaultEmotion)
		}
		return
	}
	e.Reapply()
}

func (e *Emotion) Current() string {
	return e.current
}

// Known reports whether name is a preset of the bound character.
func (e *Emotion) Known(name string) bool {
	_, ok := e.presets[name]
	return ok
}

// Apply resets every channel used by any preset, then applies the named one.
// Unknown names change nothing and return false. A pending transient
// reversion is cancelled.
func (e *Emotion) Apply(name string) bool {
	preset, ok := e.presets[name]
	if !ok {
		core.LogDebug("emotion %q is not defined, ignoring", name)
		return false
	}
	e.cancelRevert()
	e.write(preset)
	e.current = name
	return true
}

// Reapply writes the current preset again, e.g. after lip-sync cleared the mouth.
func (e *Emotion) Reapply() {
	if preset, ok := e.presets[e.current]; ok {
		e.write(preset)
	}
}

// Transient applies name now and reverts to revertTo after hold. An empty or
// unknown revertTo clears the face back to neutral.
func (e *Emotion) Transient(name string, hold time.Duration, revertTo string) bool {
	if !e.Apply(name) {
		return false
	}
	e.revert = e.sched.After(hold, func(time.Duration) {
		e.revert = 0
		if !e.Apply(revertTo) {
			e.Clear()
		}
	})
	return true
}

// Clear zeroes every preset channel and leaves no emotion current.
func (e *Emotion) Clear() {
	e.cancelRevert()
	if e.writer != nil {
		e.writer.Reset()
	}
	e.current = ""
}

// Reverting reports whether a transient reversion is pending.
func (e *Emotion) Reverting() bool {
	return e.revert != 0
}

func (e *Emotion) write(preset map[string]float32) {
	e.writer.Reset()
	for morph, w := range preset {
		e.writer.Set(morph, w)
	}
}

func (e *Emotion) cancelRevert() {
	if e.revert != 0 {
		e.sched.Cancel(e.revert)
		e.revert = 0
	}
}

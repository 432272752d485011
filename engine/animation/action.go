package animation

import (
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
)

// ActionEvent is the payload of EventClipStarted and EventClipFinished.
type ActionEvent struct {
	Mixer  uuid.UUID
	Action *Action
	Clip   string
}

type binding struct {
	bone  *character.Bone
	track *character.Track
}

// Action is a live binding of a clip to a mixer: a time cursor, a weight with
// an optional fade, and a running flag.
type Action struct {
	ID    uuid.UUID
	clip  *character.Clip
	mixer *Mixer

	bindings []binding

	time    float32
	weight  float32
	running bool
	enabled bool
	// set once per play when a LoopOnce clip reaches its end
	finished bool
	plays    int

	fading       bool
	fadeFrom     float32
	fadeTo       float32
	fadeElapsed  float32
	fadeDuration float32
}

func (a *Action) Clip() *character.Clip {
	return a.clip
}

func (a *Action) Time() float32 {
	return a.time
}

func (a *Action) Weight() float32 {
	return a.weight
}

// IsRunning reports whether time is advancing.
func (a *Action) IsRunning() bool {
	return a.enabled && a.running
}

// IsActive reports whether the action contributes to the pose.
func (a *Action) IsActive() bool {
	return a.enabled
}

// Finished reports whether a LoopOnce action reached its end in the current play.
func (a *Action) Finished() bool {
	return a.finished
}

// Plays counts how many times the action was started.
func (a *Action) Plays() int {
	return a.plays
}

// Reset rewinds the action without changing whether it plays.
func (a *Action) Reset() *Action {
	a.time = 0
	a.finished = false
	a.fading = false
	return a
}

// Play starts the action from the beginning at full weight.
func (a *Action) Play() *Action {
	a.start(1)
	return a
}

// FadeIn starts the action at zero weight and raises it to one over d.
func (a *Action) FadeIn(d time.Duration) *Action {
	if d <= 0 {
		return a.Play()
	}
	a.start(0)
	a.fade(1, d)
	return a
}

// FadeOut lowers the weight to zero over d, then stops the action.
func (a *Action) FadeOut(d time.Duration) *Action {
	if !a.enabled {
		return a
	}
	if d <= 0 {
		a.Stop()
		return a
	}
	a.fade(0, d)
	return a
}

// CrossFadeTo fades this action out and next in over the same window.
// An inactive next is restarted from its beginning; one that is still
// contributing (typically fading out) keeps its time and rises from its
// current weight.
func (a *Action) CrossFadeTo(next *Action, d time.Duration) *Action {
	if next == a {
		return a
	}
	a.FadeOut(d)
	if next.IsActive() {
		next.fadeUp(d)
		return next
	}
	next.Reset()
	next.FadeIn(d)
	return next
}

// Stop disables the action immediately.
func (a *Action) Stop() {
	a.enabled = false
	a.running = false
	a.fading = false
	a.weight = 0
	a.mixer.deactivate(a)
}

func (a *Action) start(weight float32) {
	a.Reset()
	a.weight = weight
	a.running = true
	a.enabled = true
	a.plays++
	a.mixer.activate(a)
	a.mixer.post(core.EventClipStarted, a)
}

func (a *Action) fadeUp(d time.Duration) {
	if a.finished {
		a.time = 0
		a.finished = false
	}
	a.running = true
	if d <= 0 {
		a.fading = false
		a.weight = 1
		return
	}
	a.fade(1, d)
}

func (a *Action) fade(to float32, d time.Duration) {
	a.fading = true
	a.fadeFrom = a.weight
	a.fadeTo = to
	a.fadeElapsed = 0
	a.fadeDuration = float32(d.Seconds())
}

// advance moves time and fades forward. It reports whether the action
// finished during this step and whether it faded out completely.
func (a *Action) advance(dt float32) (finishedNow, fadedOut bool) {
	if a.fading {
		a.fadeElapsed += dt
		f := a.fadeElapsed / a.fadeDuration
		if f >= 1 {
			a.weight = a.fadeTo
			a.fading = false
			if a.fadeTo == 0 {
				fadedOut = true
			}
		} else {
			a.weight = a.fadeFrom + (a.fadeTo-a.fadeFrom)*f
		}
	}

	if !a.running {
		return false, fadedOut
	}

	a.time += dt
	d := a.clip.Duration
	switch a.clip.Loop {
	case character.LoopRepeat:
		if d > 0 {
			for a.time >= d {
				a.time -= d
			}
		} else {
			a.time = 0
		}
	case character.LoopOnce:
		if a.time >= d {
			a.time = d
			a.running = false
			if !a.finished {
				a.finished = true
				finishedNow = true
			}
		}
	}
	return finishedNow, fadedOut
}

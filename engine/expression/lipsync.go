package expression

import (
	"time"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

type LipSyncConfig struct {
	Step      time.Duration
	WeightMin float32
	WeightMax float32
	// Delay before the resting expression is restored after Stop.
	RestoreDelay time.Duration
}

func DefaultLipSyncConfig() LipSyncConfig {
	return LipSyncConfig{
		Step:         120 * time.Millisecond,
		WeightMin:    0.4,
		WeightMax:    1.0,
		RestoreDelay: 150 * time.Millisecond,
	}
}

// LipSync fakes visemes from timing alone: every step the previous mouth
// shape is cleared and a different random vowel is raised.
type LipSync struct {
	cfg    LipSyncConfig
	rand   *math.Rand
	sched  *core.Scheduler
	writer *character.MorphWriter

	vowels map[string][]string
	order  []string

	talking    bool
	timer      core.TimerID
	restore    core.TimerID
	last       string
	lastWeight float32
	// last vowel picked, kept across clears
	prev   string
	steps  int
	onStop func()
}

func NewLipSync(cfg LipSyncConfig, rand *math.Rand, sched *core.Scheduler) *LipSync {
	return &LipSync{cfg: cfg, rand: rand, sched: sched, vowels: map[string][]string{}}
}

// Bind attaches the driver to a character. Vowels whose morphs are all
// missing are left out.
func (l *LipSync) Bind(profile *character.Profile, writer *character.MorphWriter) {
	l.Stop()
	l.cancelRestore()
	l.resolve(profile, writer)
}

// Rebind moves the driver onto a reloaded copy of the same character without
// interrupting a running talk. The shape shown on the old meshes is dropped.
func (l *LipSync) Rebind(profile *character.Profile, writer *character.MorphWriter) {
	l.last, l.lastWeight = "", 0
	l.resolve(profile, writer)
}

func (l *LipSync) resolve(profile *character.Profile, writer *character.MorphWriter) {
	l.writer = writer
	l.vowels = map[string][]string{}
	l.order = l.order[:0]
	for _, v := range profile.VowelNames() {
		var names []string
		for _, n := range profile.Morphs.Vowels[v] {
			if writer.Has(n) {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			core.LogOnce("lipsync.vowel."+profile.Name+"."+v, "character %s: vowel %q has no morph, skipping it", profile.Name, v)
			continue
		}
		l.vowels[v] = names
		l.order = append(l.order, v)
	}
	if len(l.order) == 0 {
		core.LogOnce("lipsync.disabled."+profile.Name, "character %s has no vowel morphs, mouth will not move", profile.Name)
	}
}

// OnStop registers the callback run RestoreDelay after Stop.
func (l *LipSync) OnStop(fn func()) {
	l.onStop = fn
}

func (l *LipSync) IsTalking() bool {
	return l.talking
}

// Last returns the shape currently shown and its weight.
func (l *LipSync) Last() (string, float32) {
	return l.last, l.lastWeight
}

// Steps counts the shapes shown since the last Start.
func (l *LipSync) Steps() int {
	return l.steps
}

// Start begins stepping mouth shapes. Starting twice is a no-op.
func (l *LipSync) Start() {
	if l.talking {
		return
	}
	l.cancelRestore()
	l.talking = true
	l.steps = 0
	l.prev = ""
	l.step()
	l.timer = l.sched.Every(l.cfg.Step, func(time.Duration) { l.step() })
}

// Stop clears the shape and, after a short delay, runs the OnStop callback.
func (l *LipSync) Stop() {
	if !l.talking {
		return
	}
	l.sched.Cancel(l.timer)
	l.timer = 0
	l.clearLast()
	l.talking = false
	l.cancelRestore()
	if l.onStop != nil {
		l.restore = l.sched.After(l.cfg.RestoreDelay, func(time.Duration) {
			l.restore = 0
			l.onStop()
		})
	}
}

func (l *LipSync) step() {
	l.clearLast()
	if len(l.order) == 0 {
		return
	}
	candidates := l.order
	if len(l.order) > 1 && l.prev != "" {
		candidates = make([]string, 0, len(l.order)-1)
		for _, v := range l.order {
			if v != l.prev {
				candidates = append(candidates, v)
			}
		}
	}
	v := candidates[l.rand.Intn(len(candidates))]
	w := l.rand.Range(l.cfg.WeightMin, l.cfg.WeightMax)
	for _, n := range l.vowels[v] {
		l.writer.Set(n, w)
	}
	l.last, l.lastWeight = v, w
	l.prev = v
	l.steps++
}

func (l *LipSync) clearLast() {
	if l.last == "" {
		return
	}
	for _, n := range l.vowels[l.last] {
		l.writer.Set(n, 0)
	}
	l.last, l.lastWeight = "", 0
}

func (l *LipSync) cancelRestore() {
	if l.restore != 0 {
		l.sched.Cancel(l.restore)
		l.restore = 0
	}
}

package expression

import (
	"time"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

type BlinkConfig struct {
	// Full close-and-open time.
	Duration    time.Duration
	IntervalMin time.Duration
	IntervalMax time.Duration
}

func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		Duration:    150 * time.Millisecond,
		IntervalMin: 2 * time.Second,
		IntervalMax: 8 * time.Second,
	}
}

// Blink closes and opens the eyes at random intervals.
type Blink struct {
	cfg    BlinkConfig
	rand   *math.Rand
	writer *character.MorphWriter
	names  []string

	disabled    bool
	blinking    bool
	startedAt   time.Duration
	nextBlinkAt time.Duration
	weight      float32
	count       int
}

func NewBlink(cfg BlinkConfig, rand *math.Rand) *Blink {
	return &Blink{cfg: cfg, rand: rand, disabled: true}
}

// Bind attaches the controller to a character's blink channels. Without any
// blink channel the controller stays disabled.
func (b *Blink) Bind(profile *character.Profile, writer *character.MorphWriter, now time.Duration) {
	b.writer = writer
	b.names = b.names[:0]
	for _, n := range profile.Morphs.Blink {
		if writer.Has(n) {
			b.names = append(b.names, n)
		}
	}
	b.blinking = false
	b.weight = 0
	b.disabled = len(b.names) == 0
	if b.disabled {
		core.LogOnce("blink.disabled."+profile.Name, "character %s has no blink morph, blinking disabled", profile.Name)
		return
	}
	b.schedule(now)
}

func (b *Blink) Disabled() bool {
	return b.disabled
}

func (b *Blink) IsBlinking() bool {
	return b.blinking
}

func (b *Blink) NextBlinkAt() time.Duration {
	return b.nextBlinkAt
}

func (b *Blink) Weight() float32 {
	return b.weight
}

// Count is the number of blinks started since Bind.
func (b *Blink) Count() int {
	return b.count
}

// Update advances the blink. While talking no blink starts, and a running
// one is cut short so blink and lip-sync never write at the same time.
func (b *Blink) Update(tick core.Tick, talking bool) {
	if b.disabled {
		return
	}
	now := tick.Now
	if talking {
		if b.blinking {
			b.set(0)
			b.blinking = false
			b.schedule(now)
		}
		return
	}

	if !b.blinking {
		if now < b.nextBlinkAt {
			return
		}
		b.blinking = true
		b.startedAt = now
		b.count++
	}

	elapsed := now - b.startedAt
	if elapsed >= b.cfg.Duration {
		b.set(0)
		b.blinking = false
		b.schedule(now)
		return
	}
	half := float32(b.cfg.Duration) / 2
	e := float32(elapsed)
	if e < half {
		b.set(e / half)
	} else {
		b.set(1 - (e-half)/half)
	}
}

func (b *Blink) schedule(now time.Duration) {
	b.nextBlinkAt = now + b.rand.Duration(b.cfg.IntervalMin, b.cfg.IntervalMax)
}

func (b *Blink) set(w float32) {
	b.weight = w
	for _, n := range b.names {
		b.writer.Set(n, w)
	}
}

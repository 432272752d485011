package core

import (
	"sync"
	"time"
)

// PointerEvent is the payload of EventPointerMoved. X and Y are normalized
// device coordinates in [-1, 1], Y up.
type PointerEvent struct {
	X, Y float32
	At   time.Duration
}

// PointerState tracks the latest pointer sample. Platform callbacks write it
// from their own thread, the engine reads it once per tick.
type PointerState struct {
	mu      sync.Mutex
	x, y    float32
	moved   bool
	samples uint64
}

func NewPointerState() *PointerState {
	return &PointerState{}
}

// ProcessMove records a pointer sample. Samples outside [-1, 1] are clamped.
func (p *PointerState) ProcessMove(x, y float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	x = clampUnit(x)
	y = clampUnit(y)
	if p.samples > 0 && p.x == x && p.y == y {
		return
	}
	p.x, p.y = x, y
	p.moved = true
	p.samples++
}

// Take returns the latest sample and whether it changed since the last Take.
func (p *PointerState) Take() (x, y float32, moved bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	moved = p.moved
	p.moved = false
	return p.x, p.y, moved
}

// Position returns the latest sample without consuming the moved flag.
func (p *PointerState) Position() (float32, float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y
}

func clampUnit(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

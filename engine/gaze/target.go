package gaze

import (
	"time"

	"github.com/spaghettifunk/marionette/engine/math"
)

// Viewpoint is where the viewer looks from. camera.Camera satisfies it.
type Viewpoint interface {
	GetPosition() math.Vec3
	// Ray returns the world ray through normalized device coordinates.
	Ray(x, y float32) math.Ray
}

type Source uint8

const (
	SourceNone Source = iota
	// Looking at the viewer while talking.
	SourceCamera
	// Looking at the viewer during a glance window.
	SourceGlance
	SourcePointer
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceCamera:
		return "camera"
	case SourceGlance:
		return "glance"
	case SourcePointer:
		return "pointer"
	}
	return "unknown"
}

// PointerDebouncer adopts the latest pointer sample once the pointer has
// been still for the configured delay.
type PointerDebouncer struct {
	delay time.Duration

	pendingX, pendingY float32
	movedAt            time.Duration
	pending            bool

	x, y    float32
	adopted bool
}

func NewPointerDebouncer(delay time.Duration) *PointerDebouncer {
	return &PointerDebouncer{delay: delay}
}

func (d *PointerDebouncer) Move(x, y float32, now time.Duration) {
	d.pendingX, d.pendingY = x, y
	d.movedAt = now
	d.pending = true
}

// Update returns the adopted sample; ok is false until one has been adopted.
func (d *PointerDebouncer) Update(now time.Duration) (x, y float32, ok bool) {
	if d.pending && now-d.movedAt >= d.delay {
		d.x, d.y = d.pendingX, d.pendingY
		d.pending = false
		d.adopted = true
	}
	return d.x, d.y, d.adopted
}

func (d *PointerDebouncer) Pending() bool {
	return d.pending
}

// GlanceScheduler opens a glance window of fixed length at random intervals.
type GlanceScheduler struct {
	min, max, hold time.Duration
	rand           *math.Rand

	nextAt      time.Duration
	activeUntil time.Duration
	active      bool
}

func NewGlanceScheduler(min, max, hold time.Duration, rand *math.Rand) *GlanceScheduler {
	return &GlanceScheduler{min: min, max: max, hold: hold, rand: rand}
}

// Reset closes any window and schedules the next one from now.
func (g *GlanceScheduler) Reset(now time.Duration) {
	g.active = false
	g.nextAt = now + g.rand.Duration(g.min, g.max)
}

// Update reports whether a glance window is open at now.
func (g *GlanceScheduler) Update(now time.Duration) bool {
	if g.active && now >= g.activeUntil {
		g.active = false
		g.nextAt = g.activeUntil + g.rand.Duration(g.min, g.max)
	}
	if !g.active && now >= g.nextAt {
		g.active = true
		g.activeUntil = now + g.hold
	}
	return g.active
}

func (g *GlanceScheduler) Active() bool {
	return g.active
}

func (g *GlanceScheduler) NextAt() time.Duration {
	return g.nextAt
}

// TargetResolver picks the gaze target once per tick.
type TargetResolver struct {
	pointer *PointerDebouncer
	glance  *GlanceScheduler
	source  Source
	target  *math.Vec3
}

func NewTargetResolver(pointer *PointerDebouncer, glance *GlanceScheduler) *TargetResolver {
	return &TargetResolver{pointer: pointer, glance: glance}
}

func (r *TargetResolver) Pointer() *PointerDebouncer {
	return r.pointer
}

func (r *TargetResolver) Glance() *GlanceScheduler {
	return r.glance
}

func (r *TargetResolver) Source() Source {
	return r.source
}

// Target returns the last resolved target, nil when there is none.
func (r *TargetResolver) Target() *math.Vec3 {
	return r.target
}

// Resolve returns the gaze target for this tick: the viewer while talking or
// glancing, else the pointer ray projected onto a viewer-facing plane
// through anchor (the head). A nil viewpoint yields no target.
func (r *TargetResolver) Resolve(now time.Duration, talking bool, vp Viewpoint, anchor math.Vec3) *math.Vec3 {
	glancing := r.glance.Update(now)
	px, py, hasPointer := r.pointer.Update(now)

	r.source, r.target = SourceNone, nil
	if vp == nil {
		return nil
	}

	eye := vp.GetPosition()
	switch {
	case talking:
		r.source, r.target = SourceCamera, &eye
	case glancing:
		r.source, r.target = SourceGlance, &eye
	case hasPointer:
		normal := eye.Sub(anchor)
		if normal.LengthSquared() < math.K_FLOAT_EPSILON {
			return nil
		}
		plane := math.NewPlaneFromNormalAndPoint(normal, anchor)
		if hit, ok := vp.Ray(px, py).IntersectPlane(plane); ok {
			r.source, r.target = SourcePointer, &hit
		}
	}
	return r.target
}

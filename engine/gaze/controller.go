package gaze

import (
	m "math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

// offsets closer than this to their goal snap onto it, radians
const settleAngle float32 = 1e-4

type Config struct {
	// Fraction of the full alignment toward the target.
	HeadLimit float32
	EyeLimit  float32
	// Hard caps, radians.
	HeadMaxAngle float32
	EyeMaxAngle  float32
	// Per-second approach rates.
	HeadSpeed float64
	EyeSpeed  float64

	IdleHeadMin   time.Duration
	IdleHeadMax   time.Duration
	IdleHeadYaw   float32
	IdleHeadPitch float32
	SaccadeMin    time.Duration
	SaccadeMax    time.Duration
	SaccadeAngle  float32

	SwayAmplitudeX float32
	SwayAmplitudeZ float32
	SwayPeriodX    time.Duration
	SwayPeriodZ    time.Duration

	PointerDebounce time.Duration
	GlanceMin       time.Duration
	GlanceMax       time.Duration
	GlanceHold      time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeadLimit:       0.5,
		EyeLimit:        1.0,
		HeadMaxAngle:    math.DegToRad(40),
		EyeMaxAngle:     math.DegToRad(25),
		HeadSpeed:       3,
		EyeSpeed:        14,
		IdleHeadMin:     3 * time.Second,
		IdleHeadMax:     6 * time.Second,
		IdleHeadYaw:     math.DegToRad(8),
		IdleHeadPitch:   math.DegToRad(4),
		SaccadeMin:      500 * time.Millisecond,
		SaccadeMax:      2500 * time.Millisecond,
		SaccadeAngle:    math.DegToRad(3),
		SwayAmplitudeX:  math.DegToRad(1.2),
		SwayAmplitudeZ:  math.DegToRad(0.8),
		SwayPeriodX:     4 * time.Second,
		SwayPeriodZ:     6500 * time.Millisecond,
		PointerDebounce: 60 * time.Millisecond,
		GlanceMin:       6 * time.Second,
		GlanceMax:       14 * time.Second,
		GlanceHold:      1200 * time.Millisecond,
	}
}

// aim is a bone turned by the controller. offset is the smoothed world-space
// rotation away from the bone's rest orientation.
type aim struct {
	bone     *character.Bone
	offset   math.Quaternion
	limit    float32
	maxAngle float32
	speed    float64
}

// capture adopts the bone's current pose as the offset, so turning picks up
// from wherever scripted motion left the bone.
func (a *aim) capture() {
	if a != nil {
		a.offset = a.bone.Transform.WorldRotation().Mul(a.bone.RestWorldRotation.Inverse()).Normalize()
	}
}

// Controller turns head and eyes toward the gaze target and keeps the
// character alive when there is none.
type Controller struct {
	cfg  Config
	rand *math.Rand
	log  *log.Logger

	root     *math.Transform
	head     *aim
	leftEye  *aim
	rightEye *aim

	spine        *character.Bone
	spineBase    math.Quaternion
	spineWritten math.Quaternion
	spineTouched bool

	idleHead      math.Quaternion
	nextHeadAt    time.Duration
	saccade       math.Quaternion
	nextSaccadeAt time.Duration

	suspended bool
}

func NewController(cfg Config, rand *math.Rand) *Controller {
	return &Controller{
		cfg:      cfg,
		rand:     rand,
		log:      core.Logger("gaze"),
		idleHead: math.NewQuatIdentity(),
		saccade:  math.NewQuatIdentity(),
	}
}

// Bind resolves the driven bones of rt. A missing bone disables only what it
// drives.
func (c *Controller) Bind(rt *character.Runtime, now time.Duration) {
	c.root = nil
	c.head, c.leftEye, c.rightEye, c.spine = nil, nil, nil, nil
	c.spineTouched = false
	c.suspended = false
	if rt == nil {
		return
	}
	c.root = rt.Root

	lookup := func(role character.Role) *character.Bone {
		b, ok := rt.Bone(role)
		if !ok {
			core.LogOnce("gaze.missing."+rt.Profile.Name+"."+role.String(),
				"character %s has no %s bone, its gaze behavior is disabled", rt.Profile.Name, role)
			return nil
		}
		return b
	}
	newAim := func(role character.Role, limit, maxAngle float32, speed float64) *aim {
		b := lookup(role)
		if b == nil {
			return nil
		}
		return &aim{bone: b, offset: math.NewQuatIdentity(), limit: limit, maxAngle: maxAngle, speed: speed}
	}
	c.head = newAim(character.RoleHead, c.cfg.HeadLimit, c.cfg.HeadMaxAngle, c.cfg.HeadSpeed)
	c.leftEye = newAim(character.RoleLeftEye, c.cfg.EyeLimit, c.cfg.EyeMaxAngle, c.cfg.EyeSpeed)
	c.rightEye = newAim(character.RoleRightEye, c.cfg.EyeLimit, c.cfg.EyeMaxAngle, c.cfg.EyeSpeed)
	c.spine = lookup(character.RoleSpine)

	c.resetIdle(now)
	c.log.Debug("bound", "character", rt.Profile.Name,
		"head", c.head != nil, "eyes", c.leftEye != nil || c.rightEye != nil, "spine", c.spine != nil)
}

func (c *Controller) resetIdle(now time.Duration) {
	c.idleHead = math.NewQuatIdentity()
	c.saccade = math.NewQuatIdentity()
	c.nextHeadAt = now + c.rand.Duration(c.cfg.IdleHeadMin, c.cfg.IdleHeadMax)
	c.nextSaccadeAt = now + c.rand.Duration(c.cfg.SaccadeMin, c.cfg.SaccadeMax)
}

func (c *Controller) Suspended() bool {
	return c.suspended
}

func (c *Controller) NextIdleHeadAt() time.Duration {
	return c.nextHeadAt
}

func (c *Controller) NextSaccadeAt() time.Duration {
	return c.nextSaccadeAt
}

// HeadPosition is the anchor for pointer targets: the head, else the
// character root.
func (c *Controller) HeadPosition() math.Vec3 {
	if c.head != nil {
		return c.head.bone.Transform.WorldPosition()
	}
	if c.root != nil {
		return c.root.WorldPosition()
	}
	return math.NewVec3Zero()
}

// Update writes head, eye and spine rotations. While suspended nothing is
// written; on resume the aims start from the pose the clips left.
func (c *Controller) Update(tick core.Tick, target *math.Vec3, suspended bool) {
	if c.root == nil {
		return
	}
	if suspended {
		if !c.suspended {
			c.spineTouched = false
			c.suspended = true
		}
		return
	}
	if c.suspended {
		c.suspended = false
		// eyes before the head moves, their world rotation depends on it
		c.head.capture()
		c.leftEye.capture()
		c.rightEye.capture()
		c.resetIdle(tick.Now)
	}

	c.updateIdle(tick.Now)
	c.sway(tick)

	forward := c.root.WorldRotation().RotateVec3(math.NewVec3Forward())
	// head first, eye world rotations depend on it
	c.turn(c.head, tick.Delta, forward, target, c.idleHead)
	eyeIdle := c.saccade.Mul(c.idleHead)
	c.turn(c.leftEye, tick.Delta, forward, target, eyeIdle)
	c.turn(c.rightEye, tick.Delta, forward, target, eyeIdle)
}

func (c *Controller) updateIdle(now time.Duration) {
	if now >= c.nextHeadAt {
		yaw := c.rand.Range(-c.cfg.IdleHeadYaw, c.cfg.IdleHeadYaw)
		pitch := c.rand.Range(-c.cfg.IdleHeadPitch, c.cfg.IdleHeadPitch)
		c.idleHead = math.NewQuatFromEuler(pitch, yaw, 0)
		c.nextHeadAt = now + c.rand.Duration(c.cfg.IdleHeadMin, c.cfg.IdleHeadMax)
	}
	if now >= c.nextSaccadeAt {
		a := c.cfg.SaccadeAngle
		c.saccade = math.NewQuatFromEuler(c.rand.Range(-a, a)/2, c.rand.Range(-a, a), 0)
		c.nextSaccadeAt = now + c.rand.Duration(c.cfg.SaccadeMin, c.cfg.SaccadeMax)
	}
}

func (c *Controller) turn(a *aim, dt float64, forward math.Vec3, target *math.Vec3, idle math.Quaternion) {
	if a == nil {
		return
	}
	desired := idle
	if target != nil {
		dir := target.Sub(a.bone.Transform.WorldPosition())
		if dir.LengthSquared() > math.K_FLOAT_EPSILON {
			full := math.NewQuatFromUnitVectors(forward, dir.Normalize())
			desired = math.NewQuatIdentity().Slerp(full, a.limit)
		}
	}
	desired = desired.ClampAngle(a.maxAngle)

	if a.offset.Compare(desired, settleAngle) {
		a.offset = desired
	} else {
		a.offset = a.offset.Slerp(desired, math.DampFactor(a.speed, dt))
	}
	world := a.offset.Mul(a.bone.RestWorldRotation)
	a.bone.Transform.SetRotation(a.bone.Transform.LocalFromWorldRotation(world))
}

// sway layers two slow sines on top of whatever the mixer left on the spine.
func (c *Controller) sway(tick core.Tick) {
	if c.spine == nil {
		return
	}
	local := c.spine.Transform.Rotation
	// anything but our own last write came from the mixer and is the new base
	if !c.spineTouched || local != c.spineWritten {
		c.spineBase = local
	}

	t := tick.Seconds()
	x := c.cfg.SwayAmplitudeX * float32(m.Sin(2*m.Pi*t/c.cfg.SwayPeriodX.Seconds()))
	z := c.cfg.SwayAmplitudeZ * float32(m.Sin(2*m.Pi*t/c.cfg.SwayPeriodZ.Seconds()+0.7))

	c.spineWritten = c.spineBase.Mul(math.NewQuatFromEuler(x, 0, z)).Normalize()
	c.spine.Transform.SetRotation(c.spineWritten)
	c.spineTouched = true
}

// SpineBase is the spine rotation sway is currently applied on top of.
func (c *Controller) SpineBase() math.Quaternion {
	return c.spineBase
}

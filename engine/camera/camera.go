package camera

import (
	m "math"

	"github.com/spaghettifunk/marionette/engine/math"
)

/**
 * @brief A perspective camera looking from Position at Target.
 * Projection parameters are only used to turn pointer coordinates into rays.
 */
type Camera struct {
	/** @brief The position of this camera. */
	Position math.Vec3
	/** @brief The point the camera looks at. */
	Target math.Vec3
	/** @brief World up, usually +Y. */
	Up math.Vec3
	/** @brief Vertical field of view, in radians. */
	FovY float32
	/** @brief Width over height of the viewport. */
	Aspect float32
}

func NewCamera(position, target math.Vec3) *Camera {
	return &Camera{
		Position: position,
		Target:   target,
		Up:       math.NewVec3Up(),
		FovY:     math.DegToRad(45),
		Aspect:   16.0 / 9.0,
	}
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
}

func (c *Camera) SetTarget(target math.Vec3) {
	c.Target = target
}

func (c *Camera) SetAspect(width, height uint32) {
	if height == 0 {
		return
	}
	c.Aspect = float32(width) / float32(height)
}

func (c *Camera) Forward() math.Vec3 {
	return c.Target.Sub(c.Position).Normalize()
}

// Right is the camera's horizontal axis. Looking straight along Up it falls
// back to world +X.
func (c *Camera) Right() math.Vec3 {
	r := c.Forward().Cross(c.Up)
	if r.LengthSquared() < math.K_FLOAT_EPSILON {
		return math.NewVec3Right()
	}
	return r.Normalize()
}

// ViewUp is the camera's own up axis, orthogonal to Forward.
func (c *Camera) ViewUp() math.Vec3 {
	return c.Right().Cross(c.Forward())
}

// Ray returns the world-space ray through normalized device coordinates
// (x, y) in [-1, 1], y up.
func (c *Camera) Ray(x, y float32) math.Ray {
	h := float32(m.Tan(float64(c.FovY) / 2))
	dir := c.Forward().
		Add(c.Right().MulScalar(x * h * c.Aspect)).
		Add(c.ViewUp().MulScalar(y * h))
	return math.Ray{Origin: c.Position, Direction: dir.Normalize()}
}

// Orbit rotates the camera around its target by yaw and pitch radians.
func (c *Camera) Orbit(deltaYaw, deltaPitch float32) {
	rel := c.Position.Sub(c.Target)
	distance := rel.Length()
	if distance < math.K_FLOAT_EPSILON {
		return
	}

	theta := m.Atan2(float64(rel.X), float64(rel.Z))
	phi := m.Acos(float64(math.Clamp(rel.Y/distance, -1, 1)))

	theta += float64(deltaYaw)
	phi += float64(deltaPitch)

	// Clamp pitch to avoid gimbal lock
	phi = m.Max(0.1, m.Min(m.Pi-0.1, phi))

	pos := math.NewVec3(
		float32(m.Sin(phi)*m.Sin(theta)),
		float32(m.Cos(phi)),
		float32(m.Sin(phi)*m.Cos(theta)),
	).MulScalar(distance)
	c.Position = c.Target.Add(pos)
}

// Zoom moves the camera toward (positive) or away from its target.
func (c *Camera) Zoom(delta float32) {
	direction := c.Forward()
	distance := c.Position.Distance(c.Target)

	// Prevent getting too close or passing through the target
	if distance-delta < 0.1 {
		delta = distance - 0.1
	}
	c.Position = c.Position.Add(direction.MulScalar(delta))
}

package math

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief Represents the local transform of a node (a bone, a character root).
 * Transforms can have a parent whose own transform is then taken into
 * account when computing world values. World values are composed on demand,
 * nothing is cached, so a parent can be mutated freely between queries.
 */
type Transform struct {
	/** @brief The position relative to the parent. */
	Position Vec3
	/** @brief The rotation relative to the parent. */
	Rotation Quaternion
	/** @brief The scale relative to the parent. */
	Scale Vec3
	/** @brief A pointer to a parent transform if one is assigned. Can also be nil. */
	Parent *Transform
}

/**
 * @brief A half-line starting at Origin and going along Direction.
 * Direction is expected to be normalized.
 */
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

/**
 * @brief An infinite plane in Hessian normal form: Normal·p + Constant = 0.
 */
type Plane struct {
	Normal   Vec3
	Constant float32
}

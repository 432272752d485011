package math

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) *Transform {
	t := &Transform{}
	t.SetPositionRotationScale(position, rotation, scale)
	return t
}

func (t *Transform) SetPosition(position Vec3) {
	t.Position = position
}

func (t *Transform) SetRotation(rotation Quaternion) {
	t.Rotation = rotation
}

func (t *Transform) SetScale(scale Vec3) {
	t.Scale = scale
}

func (t *Transform) SetPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) {
	t.Position = position
	t.Rotation = rotation
	t.Scale = scale
}

// WorldRotation composes the rotations of the whole parent chain.
func (t *Transform) WorldRotation() Quaternion {
	if t == nil {
		return NewQuatIdentity()
	}
	if t.Parent == nil {
		return t.Rotation
	}
	return t.Parent.WorldRotation().Mul(t.Rotation)
}

// WorldScale composes the component-wise scale of the parent chain.
func (t *Transform) WorldScale() Vec3 {
	if t == nil {
		return NewVec3One()
	}
	if t.Parent == nil {
		return t.Scale
	}
	return t.Parent.WorldScale().Mul(t.Scale)
}

// WorldPosition returns the position of the transform origin in world space.
func (t *Transform) WorldPosition() Vec3 {
	if t == nil {
		return NewVec3Zero()
	}
	if t.Parent == nil {
		return t.Position
	}
	p := t.Parent
	local := p.WorldRotation().RotateVec3(t.Position.Mul(p.WorldScale()))
	return p.WorldPosition().Add(local)
}

// LocalFromWorldRotation returns the local rotation that would give this
// transform the supplied world rotation under its current parent chain.
func (t *Transform) LocalFromWorldRotation(world Quaternion) Quaternion {
	if t.Parent == nil {
		return world
	}
	return t.Parent.WorldRotation().Inverse().Mul(world)
}

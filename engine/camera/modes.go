package camera

import (
	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

type Mode uint8

const (
	// User controlled.
	ModeOrbit Mode = iota
	// Locked to a bone.
	ModeFollow
	// Easing back to the pose saved when Follow started.
	ModeTransitioningToOrbit
)

func (m Mode) String() string {
	switch m {
	case ModeOrbit:
		return "orbit"
	case ModeFollow:
		return "follow"
	case ModeTransitioningToOrbit:
		return "transitioning_to_orbit"
	}
	return "unknown"
}

type Config struct {
	// Camera offset from the followed bone, in world space.
	FollowOffset math.Vec3
	// Per-second approach rates.
	FollowDamping float64
	LookDamping   float64
	ReturnDamping float64
	// Distance under which the return to orbit is complete.
	Epsilon float32
}

func DefaultConfig() Config {
	return Config{
		FollowOffset:  math.NewVec3(0, 0.4, 2.2),
		FollowDamping: 4,
		LookDamping:   6,
		ReturnDamping: 3,
		Epsilon:       0.01,
	}
}

// Pose is a camera position and look-at point.
type Pose struct {
	Position math.Vec3
	Target   math.Vec3
}

// ModeManager switches the camera between user orbit and following the
// character while scripted motion plays.
type ModeManager struct {
	cfg    Config
	camera *Camera
	bus    *core.EventBus
	log    *log.Logger

	mode            Mode
	controlsEnabled bool
	saved           Pose
	bone            *character.Bone
	lookAt          math.Vec3
	wasBusy         bool
	hips            *character.Bone
	offset          math.Vec3
}

// NewModeManager starts in Orbit with controls enabled. bus may be nil.
func NewModeManager(cfg Config, cam *Camera, bus *core.EventBus) *ModeManager {
	return &ModeManager{
		cfg:             cfg,
		camera:          cam,
		bus:             bus,
		log:             core.Logger("camera"),
		mode:            ModeOrbit,
		controlsEnabled: true,
		offset:          cfg.FollowOffset,
	}
}

func (mm *ModeManager) Mode() Mode {
	return mm.mode
}

func (mm *ModeManager) ControlsEnabled() bool {
	return mm.controlsEnabled
}

func (mm *ModeManager) Camera() *Camera {
	return mm.camera
}

// Saved returns the orbit pose captured when Follow started.
func (mm *ModeManager) Saved() Pose {
	return mm.saved
}

// Bind sets the bone followed on the next busy edge and the follow offset.
// A zero offset means the configured one. A nil bone disables following.
func (mm *ModeManager) Bind(hips *character.Bone, offset math.Vec3) {
	mm.hips = hips
	mm.offset = offset
	if offset == (math.Vec3{}) {
		mm.offset = mm.cfg.FollowOffset
	}
}

// FollowOffset is the offset used for the bound character.
func (mm *ModeManager) FollowOffset() math.Vec3 {
	return mm.offset
}

// EnterFollow locks the camera onto bone. Without a bone the camera stays in Orbit.
func (mm *ModeManager) EnterFollow(bone *character.Bone) error {
	if bone == nil {
		core.LogOnce("camera.follow.nobone", "camera follow requested without a target bone, staying in orbit")
		return core.ErrMissingBone
	}
	if mm.mode == ModeOrbit {
		mm.saved = Pose{Position: mm.camera.Position, Target: mm.camera.Target}
	}
	// re-entering during a transition keeps the originally saved pose
	mm.bone = bone
	mm.lookAt = mm.camera.Target
	mm.controlsEnabled = false
	mm.setMode(ModeFollow)
	return nil
}

// ExitFollow starts the eased return to the saved orbit pose.
func (mm *ModeManager) ExitFollow() {
	if mm.mode != ModeFollow {
		return
	}
	mm.bone = nil
	mm.setMode(ModeTransitioningToOrbit)
}

// Update edge-detects busy: rising enters Follow on the bound bone, falling
// leaves it. Then it moves the camera for the current mode.
func (mm *ModeManager) Update(tick core.Tick, busy bool) {
	if busy && !mm.wasBusy {
		_ = mm.EnterFollow(mm.hips)
	} else if !busy && mm.wasBusy {
		mm.ExitFollow()
	}
	mm.wasBusy = busy

	switch mm.mode {
	case ModeFollow:
		anchor := mm.bone.Transform.WorldPosition()
		desired := anchor.Add(mm.offset)
		mm.camera.SetPosition(mm.camera.Position.Lerp(desired, math.DampFactor(mm.cfg.FollowDamping, tick.Delta)))
		mm.lookAt = mm.lookAt.Lerp(anchor, math.DampFactor(mm.cfg.LookDamping, tick.Delta))
		mm.camera.SetTarget(mm.lookAt)
	case ModeTransitioningToOrbit:
		f := math.DampFactor(mm.cfg.ReturnDamping, tick.Delta)
		mm.camera.SetPosition(mm.camera.Position.Lerp(mm.saved.Position, f))
		mm.camera.SetTarget(mm.camera.Target.Lerp(mm.saved.Target, f))
		if mm.camera.Position.Compare(mm.saved.Position, mm.cfg.Epsilon) &&
			mm.camera.Target.Compare(mm.saved.Target, mm.cfg.Epsilon) {
			mm.camera.SetPosition(mm.saved.Position)
			mm.camera.SetTarget(mm.saved.Target)
			mm.controlsEnabled = true
			mm.setMode(ModeOrbit)
		}
	}
}

// Orbit applies user orbit input; ignored while controls are disabled.
func (mm *ModeManager) Orbit(deltaYaw, deltaPitch float32) bool {
	if !mm.controlsEnabled {
		return false
	}
	mm.camera.Orbit(deltaYaw, deltaPitch)
	return true
}

// Zoom applies user zoom input; ignored while controls are disabled.
func (mm *ModeManager) Zoom(delta float32) bool {
	if !mm.controlsEnabled {
		return false
	}
	mm.camera.Zoom(delta)
	return true
}

func (mm *ModeManager) setMode(to Mode) {
	if mm.mode == to {
		return
	}
	from := mm.mode
	mm.mode = to
	mm.log.Debug("mode", "from", from, "to", to)
	if mm.bus != nil {
		mm.bus.Post(core.Event{Code: core.EventCameraModeChanged, Sender: mm, Data: to.String()})
	}
}

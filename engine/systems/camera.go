package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/marionette/engine/camera"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

type cameraLookup struct {
	camera         *camera.Camera
	referenceCount uint16
}

type CameraSystem struct {
	Config *CameraSystemConfig
	lookup map[string]*cameraLookup
	mutex  sync.Mutex
	// A default, non-registered camera that always exists as a fallback.
	// The mode manager drives it.
	DefaultCamera *camera.Camera
	Modes         *camera.ModeManager
}

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/**
	 * @brief NOTE: The maximum number of cameras that can be managed by
	 * the system.
	 */
	MaxCameraCount uint16
	/** @brief Starting pose of the default camera. */
	Position math.Vec3
	Target   math.Vec3
	Modes    camera.Config
}

/**
 * @brief Initializes the camera system.
 *
 * @param config The configuration for this system.
 * @param bus Where camera mode changes are posted. May be nil.
 */
func NewCameraSystem(config *CameraSystemConfig, bus *core.EventBus) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	cam := camera.NewCamera(config.Position, config.Target)
	return &CameraSystem{
		Config:        config,
		lookup:        make(map[string]*cameraLookup, config.MaxCameraCount),
		DefaultCamera: cam,
		Modes:         camera.NewModeManager(config.Modes, cam, bus),
	}, nil
}

/**
 * @brief Acquires a camera by name. A new camera is created at the default
 * camera's pose if none exists, otherwise its reference count grows.
 */
func (cs *CameraSystem) Acquire(name string) (*camera.Camera, error) {
	if name == "" {
		return cs.DefaultCamera, nil
	}
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if l, ok := cs.lookup[name]; ok {
		l.referenceCount++
		return l.camera, nil
	}
	if len(cs.lookup) >= int(cs.Config.MaxCameraCount) {
		return nil, fmt.Errorf("camera system full, cannot acquire %s", name)
	}
	c := *cs.DefaultCamera
	cs.lookup[name] = &cameraLookup{camera: &c, referenceCount: 1}
	return &c, nil
}

/**
 * @brief Releases a camera by name. The camera is dropped once nothing
 * references it. Releasing the default camera has no effect.
 */
func (cs *CameraSystem) Release(name string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	l, ok := cs.lookup[name]
	if !ok {
		core.LogWarn("releasing unknown camera %s", name)
		return
	}
	l.referenceCount--
	if l.referenceCount == 0 {
		delete(cs.lookup, name)
	}
}

func (cs *CameraSystem) GetDefault() *camera.Camera {
	return cs.DefaultCamera
}

func (cs *CameraSystem) OnResize(width, height uint32) {
	cs.DefaultCamera.SetAspect(width, height)
}

func (cs *CameraSystem) Shutdown() error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	cs.lookup = map[string]*cameraLookup{}
	return nil
}

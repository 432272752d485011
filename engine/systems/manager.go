package systems

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/marionette/engine/assets"
	"github.com/spaghettifunk/marionette/engine/core"
)

type SystemManagerConfig struct {
	JobWorkers   int
	JobQueueSize int
	Camera       CameraSystemConfig
	Character    CharacterSystemConfig
	// Directories indexed and watched for profiles and models.
	AssetDirs []string
}

type SystemManager struct {
	Bus             *core.EventBus
	JobSystem       *JobSystem
	CameraSystem    *CameraSystem
	CharacterSystem *CharacterSystem
	AssetManager    *assets.AssetManager

	assetDirs []string
}

func NewSystemManager(config SystemManagerConfig, bus *core.EventBus, am *assets.AssetManager, sources CharacterSources) (*SystemManager, error) {
	js, err := NewJobSystem(config.JobWorkers, config.JobQueueSize)
	if err != nil {
		return nil, err
	}

	cs, err := NewCameraSystem(&config.Camera, bus)
	if err != nil {
		js.Shutdown()
		return nil, err
	}

	chs, err := NewCharacterSystem(config.Character, bus, js, cs, sources)
	if err != nil {
		js.Shutdown()
		return nil, err
	}

	return &SystemManager{
		Bus:             bus,
		JobSystem:       js,
		CameraSystem:    cs,
		CharacterSystem: chs,
		AssetManager:    am,
		assetDirs:       config.AssetDirs,
	}, nil
}

func (sm *SystemManager) Initialize() error {
	if sm.AssetManager == nil {
		return nil
	}
	sm.AssetManager.OnChange(func(info assets.AssetInfo) {
		if info.Err != nil {
			core.LogWarn("asset %s (%s) failed to reload: %v", info.Path, info.Type, info.Err)
			return
		}
		core.LogDebug("asset %s (%s) reloaded", info.Path, info.Type)
	})
	return sm.AssetManager.Initialize(sm.assetDirs...)
}

// Update advances every system by one frame. Engine goroutine only.
func (sm *SystemManager) Update(tick core.Tick) {
	sm.CharacterSystem.Update(tick)
}

// SelectProfile selects a character from the profile library by name.
func (sm *SystemManager) SelectProfile(ctx context.Context, name string) error {
	if sm.AssetManager == nil {
		return fmt.Errorf("%w: no profile library", core.ErrCharacterLoad)
	}
	p, ok := sm.AssetManager.Profile(name)
	if !ok {
		return fmt.Errorf("%w: unknown profile %q", core.ErrCharacterLoad, name)
	}
	return sm.CharacterSystem.SelectCharacter(ctx, p)
}

func (sm *SystemManager) OnResize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	return sm.CharacterSystem.OnResize(width, height)
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.CharacterSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.CameraSystem.Shutdown(); err != nil {
		return err
	}
	if sm.AssetManager != nil {
		if err := sm.AssetManager.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}

// Profiles lists the selectable characters.
func (sm *SystemManager) Profiles() []string {
	if sm.AssetManager == nil {
		return nil
	}
	return sm.AssetManager.Profiles()
}

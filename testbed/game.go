package testbed

import (
	"context"
	"fmt"
	"time"

	"github.com/spaghettifunk/marionette/engine"
	"github.com/spaghettifunk/marionette/engine/config"
	"github.com/spaghettifunk/marionette/engine/core"
)

const statusEvery = 5 * time.Second

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	lastStatus time.Duration
	// closed once the startup character is installed or failed
	selected chan error
}

func NewTestGame(cfg *config.Config) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg),
			State: &gameState{
				selected: make(chan error, 1),
			},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}

	name := g.ApplicationConfig.Settings.App.Character
	if name == "" {
		profiles := g.SystemManager.Profiles()
		if len(profiles) == 0 {
			core.LogWarn("no character profiles found in %v", g.ApplicationConfig.Settings.Assets.Dirs)
			return nil
		}
		name = profiles[0]
	}

	state := g.State.(*gameState)
	// the engine loop must be ticking for the selection to complete
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		err := g.SystemManager.SelectProfile(ctx, name)
		if err != nil {
			core.LogError("failed to select %s: %v", name, err)
		} else {
			core.LogInfo("character %s ready", name)
		}
		state.selected <- err
	}()
	return nil
}

func (g *TestGame) Update(tick core.Tick) error {
	state := g.State.(*gameState)
	if tick.Now-state.lastStatus < statusEvery {
		return nil
	}
	state.lastStatus = tick.Now

	st := g.SystemManager.CharacterSystem.Snapshot()
	core.LogInfo("FPS: %5.1f(%4.1fms) character=%q phase=%s camera=%s emotion=%s talking=%t gaze=%s",
		st.FPS, st.FrameMS, st.Character, st.Phase, st.Camera, st.Emotion, st.Talking, st.GazeSource)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed")
	return nil
}

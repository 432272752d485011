package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/marionette/engine/assets"
	"github.com/spaghettifunk/marionette/engine/config"
	"github.com/spaghettifunk/marionette/engine/control"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/platform"
	"github.com/spaghettifunk/marionette/engine/speech"
	"github.com/spaghettifunk/marionette/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	isSuspended   bool
	platform      *platform.Platform
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	control       *control.Server
	bus           *core.EventBus
	width         uint32
	height        uint32
	clock         *core.Clock
	lastTime      time.Duration
	frame         uint64
	quitHandle    core.ListenerHandle
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil || g.ApplicationConfig.Settings == nil {
		return nil, fmt.Errorf("game has no application configuration")
	}
	cfg := g.ApplicationConfig.Settings
	core.SetLogLevel(g.ApplicationConfig.LogLevel)

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	bus := core.NewEventBus()
	sm, err := systems.NewSystemManager(systemsConfig(cfg), bus, am, characterSources(cfg))
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	g.SystemManager = sm

	e := &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		clock:         core.NewClock(),
		assetManager:  am,
		systemManager: sm,
		bus:           bus,
		width:         g.ApplicationConfig.StartWidth,
		height:        g.ApplicationConfig.StartHeight,
	}
	if !g.ApplicationConfig.Headless {
		e.platform = platform.New(sm.CharacterSystem)
	}
	if cfg.Control.Enabled {
		e.control = control.NewServer(control.Config{
			Addr:           cfg.Control.Addr,
			StreamInterval: cfg.Control.StreamInterval,
			RequestTimeout: cfg.Control.RequestTimeout,
		}, &controlTarget{CharacterSystem: sm.CharacterSystem, manager: sm})
	}
	e.isRunning.Store(true)
	return e, nil
}

func systemsConfig(cfg *config.Config) systems.SystemManagerConfig {
	position, target := cfg.CameraPose()
	return systems.SystemManagerConfig{
		JobWorkers:   cfg.App.Workers,
		JobQueueSize: 16,
		AssetDirs:    cfg.Assets.Dirs,
		Camera: systems.CameraSystemConfig{
			MaxCameraCount: 8,
			Position:       position,
			Target:         target,
			Modes:          cfg.CameraModes(),
		},
		Character: systems.CharacterSystemConfig{
			Sequencer:        cfg.Sequencer(),
			Blink:            cfg.Blink(),
			LipSync:          cfg.LipSync(),
			Gaze:             cfg.GazeController(),
			AfterTalkEmotion: cfg.Speech.AfterTalkEmotion,
			AfterTalkHold:    cfg.Speech.AfterTalkHold,
			QueueSize:        systems.DefaultCharacterSystemConfig().QueueSize,
			Seed:             cfg.App.Seed,
		},
	}
}

func characterSources(cfg *config.Config) systems.CharacterSources {
	var modelDir string
	if len(cfg.Assets.Dirs) > 0 {
		modelDir = cfg.Assets.Dirs[0]
	}
	sources := systems.CharacterSources{
		Loader: &assets.GLTFCharacterLoader{Dir: modelDir},
		Player: &speech.TimedPlayer{Latency: cfg.Speech.Latency},
	}
	switch {
	case cfg.Assets.ClipsURL != "":
		sources.Clips = assets.NewHTTPClipSource(cfg.Assets.ClipsURL, cfg.Assets.ClipTimeout)
	case cfg.Assets.ClipsDir != "":
		sources.Clips = &assets.FileClipSource{Dir: cfg.Assets.ClipsDir}
	}
	if cfg.Speech.URL != "" {
		audio := speech.NewHTTPAudioSource(cfg.Speech.URL, cfg.Speech.Timeout)
		audio.Voice = cfg.Speech.Voice
		sources.Audio = audio
	}
	return sources
}

func (e *Engine) Initialize() error {
	app := e.gameInstance.ApplicationConfig

	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	e.quitHandle = e.bus.Register(core.EventApplicationQuit, e.onQuit)

	if e.platform != nil {
		if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
			return err
		}
	}

	if err := e.systemManager.Initialize(); err != nil {
		return err
	}

	if e.control != nil {
		go func() {
			if err := e.control.ListenAndServe(); err != nil {
				core.LogError("control server stopped: %v", err)
			}
		}()
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if err := e.onResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run ticks the systems at the target frame rate until ctx is done or the
// application asks to quit.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotRunning
	}
	e.currentStage = EngineStageRunning

	fps := e.gameInstance.ApplicationConfig.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	targetFrame := time.Second / time.Duration(fps)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if ctx.Err() != nil {
			break
		}
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			time.Sleep(targetFrame)
			continue
		}

		frameStart := time.Now()
		e.clock.Update()
		now := e.clock.Elapsed()
		e.frame++
		tick := core.Tick{Now: now, Delta: (now - e.lastTime).Seconds(), Frame: e.frame}

		e.systemManager.Update(tick)
		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(tick); err != nil {
				core.LogError("game update failed, shutting down: %v", err)
				e.isRunning.Store(false)
				break
			}
		}
		e.bus.Dispatch()

		// give the remaining frame time back to the OS
		if remaining := targetFrame - time.Since(frameStart); remaining > 0 {
			time.Sleep(remaining)
		}
		e.lastTime = now
	}
	return nil
}

// Quit stops the loop after the current frame. Safe from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.control != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.control.Shutdown(ctx); err != nil {
			core.LogWarn("control server shutdown: %v", err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			return err
		}
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			return err
		}
	}
	return e.bus.Shutdown()
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) onQuit(ev core.Event) bool {
	core.LogInfo("application quit requested, shutting down")
	e.isRunning.Store(false)
	return true
}

func (e *Engine) onResize(width, height uint32) error {
	e.width, e.height = width, height
	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("window minimized, suspending application")
		e.isSuspended = true
		return nil
	}
	e.isSuspended = false
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			return err
		}
	}
	return e.systemManager.OnResize(width, height)
}

// controlTarget joins the character system with the profile library.
type controlTarget struct {
	*systems.CharacterSystem
	manager *systems.SystemManager
}

func (t *controlTarget) SelectProfile(ctx context.Context, name string) error {
	return t.manager.SelectProfile(ctx, name)
}

func (t *controlTarget) Profiles() []string {
	return t.manager.Profiles()
}

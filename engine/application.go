package engine

import (
	"github.com/spaghettifunk/marionette/engine/config"
	"github.com/spaghettifunk/marionette/engine/core"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX int32
	// Window starting position y axis, if applicable.
	StartPosY int32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name      string
	LogLevel  core.LogLevel
	TargetFPS int
	// No window: pointer input only comes through the control server.
	Headless bool
	// Everything else the systems need.
	Settings *config.Config
}

// NewApplicationConfig derives the application settings from a loaded configuration.
func NewApplicationConfig(cfg *config.Config) *ApplicationConfig {
	return &ApplicationConfig{
		StartPosX:   cfg.Window.X,
		StartPosY:   cfg.Window.Y,
		StartWidth:  cfg.Window.Width,
		StartHeight: cfg.Window.Height,
		Name:        cfg.App.Name,
		LogLevel:    core.LogLevel(cfg.App.LogLevel),
		TargetFPS:   cfg.App.TargetFPS,
		Headless:    cfg.App.Headless,
		Settings:    cfg,
	}
}

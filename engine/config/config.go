// Package config loads the engine configuration from a TOML file, MARIONETTE_
// environment variables and built-in defaults, in decreasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spaghettifunk/marionette/engine/animation"
	"github.com/spaghettifunk/marionette/engine/camera"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/expression"
	"github.com/spaghettifunk/marionette/engine/gaze"
	"github.com/spaghettifunk/marionette/engine/math"
)

const EnvPrefix = "MARIONETTE"

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Window     WindowConfig     `mapstructure:"window"`
	Assets     AssetsConfig     `mapstructure:"assets"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	Control    ControlConfig    `mapstructure:"control"`
	Animation  AnimationConfig  `mapstructure:"animation"`
	Expression ExpressionConfig `mapstructure:"expression"`
	Gaze       GazeConfig       `mapstructure:"gaze"`
	Camera     CameraConfig     `mapstructure:"camera"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	LogLevel  string `mapstructure:"log_level"`
	TargetFPS int    `mapstructure:"target_fps"`
	// Run without a window; the pointer then only comes from the control server.
	Headless bool `mapstructure:"headless"`
	// Profile selected at startup. Empty picks the first one found.
	Character string `mapstructure:"character"`
	Workers   int    `mapstructure:"workers"`
	// Zero seeds from the clock.
	Seed uint64 `mapstructure:"seed"`
}

type WindowConfig struct {
	X      int32  `mapstructure:"x"`
	Y      int32  `mapstructure:"y"`
	Width  uint32 `mapstructure:"width"`
	Height uint32 `mapstructure:"height"`
}

type AssetsConfig struct {
	// Watched directories holding profiles and models.
	Dirs []string `mapstructure:"dirs"`
	// Generated clips, either from disk or over HTTP. ClipsURL wins when both are set.
	ClipsDir    string        `mapstructure:"clips_dir"`
	ClipsURL    string        `mapstructure:"clips_url"`
	ClipTimeout time.Duration `mapstructure:"clip_timeout"`
}

type SpeechConfig struct {
	URL     string        `mapstructure:"url"`
	Voice   string        `mapstructure:"voice"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Simulated device latency of the timed player.
	Latency          time.Duration `mapstructure:"latency"`
	AfterTalkEmotion string        `mapstructure:"after_talk_emotion"`
	AfterTalkHold    time.Duration `mapstructure:"after_talk_hold"`
}

type ControlConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type AnimationConfig struct {
	DwellMin        time.Duration `mapstructure:"dwell_min"`
	DwellMax        time.Duration `mapstructure:"dwell_max"`
	BaseFade        time.Duration `mapstructure:"base_fade"`
	ChainFade       time.Duration `mapstructure:"chain_fade"`
	SettleFade      time.Duration `mapstructure:"settle_fade"`
	IdleReturnDelay time.Duration `mapstructure:"idle_return_delay"`
	HardReset       bool          `mapstructure:"hard_reset"`
}

type ExpressionConfig struct {
	BlinkDuration       time.Duration `mapstructure:"blink_duration"`
	BlinkIntervalMin    time.Duration `mapstructure:"blink_interval_min"`
	BlinkIntervalMax    time.Duration `mapstructure:"blink_interval_max"`
	LipSyncStep         time.Duration `mapstructure:"lipsync_step"`
	LipSyncWeightMin    float32       `mapstructure:"lipsync_weight_min"`
	LipSyncWeightMax    float32       `mapstructure:"lipsync_weight_max"`
	LipSyncRestoreDelay time.Duration `mapstructure:"lipsync_restore_delay"`
}

// GazeConfig takes angles in degrees.
type GazeConfig struct {
	HeadLimit       float32       `mapstructure:"head_limit"`
	EyeLimit        float32       `mapstructure:"eye_limit"`
	HeadMaxAngle    float32       `mapstructure:"head_max_angle"`
	EyeMaxAngle     float32       `mapstructure:"eye_max_angle"`
	HeadSpeed       float64       `mapstructure:"head_speed"`
	EyeSpeed        float64       `mapstructure:"eye_speed"`
	IdleHeadMin     time.Duration `mapstructure:"idle_head_min"`
	IdleHeadMax     time.Duration `mapstructure:"idle_head_max"`
	IdleHeadYaw     float32       `mapstructure:"idle_head_yaw"`
	IdleHeadPitch   float32       `mapstructure:"idle_head_pitch"`
	SaccadeMin      time.Duration `mapstructure:"saccade_min"`
	SaccadeMax      time.Duration `mapstructure:"saccade_max"`
	SaccadeAngle    float32       `mapstructure:"saccade_angle"`
	SwayAmplitudeX  float32       `mapstructure:"sway_amplitude_x"`
	SwayAmplitudeZ  float32       `mapstructure:"sway_amplitude_z"`
	SwayPeriodX     time.Duration `mapstructure:"sway_period_x"`
	SwayPeriodZ     time.Duration `mapstructure:"sway_period_z"`
	PointerDebounce time.Duration `mapstructure:"pointer_debounce"`
	GlanceMin       time.Duration `mapstructure:"glance_min"`
	GlanceMax       time.Duration `mapstructure:"glance_max"`
	GlanceHold      time.Duration `mapstructure:"glance_hold"`
}

type CameraConfig struct {
	Position      []float32 `mapstructure:"position"`
	Target        []float32 `mapstructure:"target"`
	FollowOffset  []float32 `mapstructure:"follow_offset"`
	FollowDamping float64   `mapstructure:"follow_damping"`
	LookDamping   float64   `mapstructure:"look_damping"`
	ReturnDamping float64   `mapstructure:"return_damping"`
	Epsilon       float32   `mapstructure:"epsilon"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	seq := animation.DefaultSequencerConfig()
	blink := expression.DefaultBlinkConfig()
	lips := expression.DefaultLipSyncConfig()
	g := gaze.DefaultConfig()
	cam := camera.DefaultConfig()

	return &Config{
		App: AppConfig{
			Name:      "Marionette",
			LogLevel:  "info",
			TargetFPS: 60,
			Workers:   2,
		},
		Window: WindowConfig{X: 100, Y: 100, Width: 1280, Height: 720},
		Assets: AssetsConfig{
			Dirs:        []string{"assets"},
			ClipsDir:    "assets/clips",
			ClipTimeout: 30 * time.Second,
		},
		Speech: SpeechConfig{
			Timeout:          30 * time.Second,
			Latency:          50 * time.Millisecond,
			AfterTalkEmotion: "happy",
			AfterTalkHold:    2 * time.Second,
		},
		Control: ControlConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:8088",
			StreamInterval: 250 * time.Millisecond,
			RequestTimeout: 60 * time.Second,
		},
		Animation: AnimationConfig{
			DwellMin:        seq.DwellMin,
			DwellMax:        seq.DwellMax,
			BaseFade:        seq.BaseFade,
			ChainFade:       seq.ChainFade,
			SettleFade:      seq.SettleFade,
			IdleReturnDelay: seq.IdleReturnDelay,
			HardReset:       seq.HardReset,
		},
		Expression: ExpressionConfig{
			BlinkDuration:       blink.Duration,
			BlinkIntervalMin:    blink.IntervalMin,
			BlinkIntervalMax:    blink.IntervalMax,
			LipSyncStep:         lips.Step,
			LipSyncWeightMin:    lips.WeightMin,
			LipSyncWeightMax:    lips.WeightMax,
			LipSyncRestoreDelay: lips.RestoreDelay,
		},
		Gaze: GazeConfig{
			HeadLimit:       g.HeadLimit,
			EyeLimit:        g.EyeLimit,
			HeadMaxAngle:    math.RadToDeg(g.HeadMaxAngle),
			EyeMaxAngle:     math.RadToDeg(g.EyeMaxAngle),
			HeadSpeed:       g.HeadSpeed,
			EyeSpeed:        g.EyeSpeed,
			IdleHeadMin:     g.IdleHeadMin,
			IdleHeadMax:     g.IdleHeadMax,
			IdleHeadYaw:     math.RadToDeg(g.IdleHeadYaw),
			IdleHeadPitch:   math.RadToDeg(g.IdleHeadPitch),
			SaccadeMin:      g.SaccadeMin,
			SaccadeMax:      g.SaccadeMax,
			SaccadeAngle:    math.RadToDeg(g.SaccadeAngle),
			SwayAmplitudeX:  math.RadToDeg(g.SwayAmplitudeX),
			SwayAmplitudeZ:  math.RadToDeg(g.SwayAmplitudeZ),
			SwayPeriodX:     g.SwayPeriodX,
			SwayPeriodZ:     g.SwayPeriodZ,
			PointerDebounce: g.PointerDebounce,
			GlanceMin:       g.GlanceMin,
			GlanceMax:       g.GlanceMax,
			GlanceHold:      g.GlanceHold,
		},
		Camera: CameraConfig{
			Position:      []float32{0, 1.5, 3},
			Target:        []float32{0, 1.3, 0},
			FollowOffset:  []float32{cam.FollowOffset.X, cam.FollowOffset.Y, cam.FollowOffset.Z},
			FollowDamping: cam.FollowDamping,
			LookDamping:   cam.LookDamping,
			ReturnDamping: cam.ReturnDamping,
			Epsilon:       cam.Epsilon,
		},
	}
}

// Load reads path (TOML, may be missing) on top of the defaults. Every key can be
// overridden from the environment, e.g. MARIONETTE_CONTROL_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			core.LogInfo("config file %s not found, using defaults", path)
		default:
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.log_level", d.App.LogLevel)
	v.SetDefault("app.target_fps", d.App.TargetFPS)
	v.SetDefault("app.headless", d.App.Headless)
	v.SetDefault("app.character", d.App.Character)
	v.SetDefault("app.workers", d.App.Workers)
	v.SetDefault("app.seed", d.App.Seed)

	v.SetDefault("window.x", d.Window.X)
	v.SetDefault("window.y", d.Window.Y)
	v.SetDefault("window.width", d.Window.Width)
	v.SetDefault("window.height", d.Window.Height)

	v.SetDefault("assets.dirs", d.Assets.Dirs)
	v.SetDefault("assets.clips_dir", d.Assets.ClipsDir)
	v.SetDefault("assets.clips_url", d.Assets.ClipsURL)
	v.SetDefault("assets.clip_timeout", d.Assets.ClipTimeout)

	v.SetDefault("speech.url", d.Speech.URL)
	v.SetDefault("speech.voice", d.Speech.Voice)
	v.SetDefault("speech.timeout", d.Speech.Timeout)
	v.SetDefault("speech.latency", d.Speech.Latency)
	v.SetDefault("speech.after_talk_emotion", d.Speech.AfterTalkEmotion)
	v.SetDefault("speech.after_talk_hold", d.Speech.AfterTalkHold)

	v.SetDefault("control.enabled", d.Control.Enabled)
	v.SetDefault("control.addr", d.Control.Addr)
	v.SetDefault("control.stream_interval", d.Control.StreamInterval)
	v.SetDefault("control.request_timeout", d.Control.RequestTimeout)

	v.SetDefault("animation.dwell_min", d.Animation.DwellMin)
	v.SetDefault("animation.dwell_max", d.Animation.DwellMax)
	v.SetDefault("animation.base_fade", d.Animation.BaseFade)
	v.SetDefault("animation.chain_fade", d.Animation.ChainFade)
	v.SetDefault("animation.settle_fade", d.Animation.SettleFade)
	v.SetDefault("animation.idle_return_delay", d.Animation.IdleReturnDelay)
	v.SetDefault("animation.hard_reset", d.Animation.HardReset)

	v.SetDefault("expression.blink_duration", d.Expression.BlinkDuration)
	v.SetDefault("expression.blink_interval_min", d.Expression.BlinkIntervalMin)
	v.SetDefault("expression.blink_interval_max", d.Expression.BlinkIntervalMax)
	v.SetDefault("expression.lipsync_step", d.Expression.LipSyncStep)
	v.SetDefault("expression.lipsync_weight_min", d.Expression.LipSyncWeightMin)
	v.SetDefault("expression.lipsync_weight_max", d.Expression.LipSyncWeightMax)
	v.SetDefault("expression.lipsync_restore_delay", d.Expression.LipSyncRestoreDelay)

	v.SetDefault("gaze.head_limit", d.Gaze.HeadLimit)
	v.SetDefault("gaze.eye_limit", d.Gaze.EyeLimit)
	v.SetDefault("gaze.head_max_angle", d.Gaze.HeadMaxAngle)
	v.SetDefault("gaze.eye_max_angle", d.Gaze.EyeMaxAngle)
	v.SetDefault("gaze.head_speed", d.Gaze.HeadSpeed)
	v.SetDefault("gaze.eye_speed", d.Gaze.EyeSpeed)
	v.SetDefault("gaze.idle_head_min", d.Gaze.IdleHeadMin)
	v.SetDefault("gaze.idle_head_max", d.Gaze.IdleHeadMax)
	v.SetDefault("gaze.idle_head_yaw", d.Gaze.IdleHeadYaw)
	v.SetDefault("gaze.idle_head_pitch", d.Gaze.IdleHeadPitch)
	v.SetDefault("gaze.saccade_min", d.Gaze.SaccadeMin)
	v.SetDefault("gaze.saccade_max", d.Gaze.SaccadeMax)
	v.SetDefault("gaze.saccade_angle", d.Gaze.SaccadeAngle)
	v.SetDefault("gaze.sway_amplitude_x", d.Gaze.SwayAmplitudeX)
	v.SetDefault("gaze.sway_amplitude_z", d.Gaze.SwayAmplitudeZ)
	v.SetDefault("gaze.sway_period_x", d.Gaze.SwayPeriodX)
	v.SetDefault("gaze.sway_period_z", d.Gaze.SwayPeriodZ)
	v.SetDefault("gaze.pointer_debounce", d.Gaze.PointerDebounce)
	v.SetDefault("gaze.glance_min", d.Gaze.GlanceMin)
	v.SetDefault("gaze.glance_max", d.Gaze.GlanceMax)
	v.SetDefault("gaze.glance_hold", d.Gaze.GlanceHold)

	v.SetDefault("camera.position", d.Camera.Position)
	v.SetDefault("camera.target", d.Camera.Target)
	v.SetDefault("camera.follow_offset", d.Camera.FollowOffset)
	v.SetDefault("camera.follow_damping", d.Camera.FollowDamping)
	v.SetDefault("camera.look_damping", d.Camera.LookDamping)
	v.SetDefault("camera.return_damping", d.Camera.ReturnDamping)
	v.SetDefault("camera.epsilon", d.Camera.Epsilon)
}

func (c *Config) Validate() error {
	if c.App.TargetFPS <= 0 {
		return fmt.Errorf("app.target_fps must be > 0, got %d", c.App.TargetFPS)
	}
	if c.App.Workers <= 0 {
		return fmt.Errorf("app.workers must be > 0, got %d", c.App.Workers)
	}
	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"animation.dwell", c.Animation.DwellMin, c.Animation.DwellMax},
		{"expression.blink_interval", c.Expression.BlinkIntervalMin, c.Expression.BlinkIntervalMax},
		{"gaze.idle_head", c.Gaze.IdleHeadMin, c.Gaze.IdleHeadMax},
		{"gaze.saccade", c.Gaze.SaccadeMin, c.Gaze.SaccadeMax},
		{"gaze.glance", c.Gaze.GlanceMin, c.Gaze.GlanceMax},
	}
	for _, r := range ranges {
		if r.min <= 0 || r.max < r.min {
			return fmt.Errorf("%s range [%s, %s] is invalid", r.name, r.min, r.max)
		}
	}
	for name, v := range map[string][]float32{
		"camera.position":      c.Camera.Position,
		"camera.target":        c.Camera.Target,
		"camera.follow_offset": c.Camera.FollowOffset,
	} {
		if len(v) != 3 {
			return fmt.Errorf("%s needs 3 components, got %d", name, len(v))
		}
	}
	return nil
}

func (c *Config) Sequencer() animation.SequencerConfig {
	a := c.Animation
	return animation.SequencerConfig{
		DwellMin:        a.DwellMin,
		DwellMax:        a.DwellMax,
		BaseFade:        a.BaseFade,
		ChainFade:       a.ChainFade,
		SettleFade:      a.SettleFade,
		IdleReturnDelay: a.IdleReturnDelay,
		HardReset:       a.HardReset,
	}
}

func (c *Config) Blink() expression.BlinkConfig {
	return expression.BlinkConfig{
		Duration:    c.Expression.BlinkDuration,
		IntervalMin: c.Expression.BlinkIntervalMin,
		IntervalMax: c.Expression.BlinkIntervalMax,
	}
}

func (c *Config) LipSync() expression.LipSyncConfig {
	return expression.LipSyncConfig{
		Step:         c.Expression.LipSyncStep,
		WeightMin:    c.Expression.LipSyncWeightMin,
		WeightMax:    c.Expression.LipSyncWeightMax,
		RestoreDelay: c.Expression.LipSyncRestoreDelay,
	}
}

func (c *Config) GazeController() gaze.Config {
	g := c.Gaze
	return gaze.Config{
		HeadLimit:       g.HeadLimit,
		EyeLimit:        g.EyeLimit,
		HeadMaxAngle:    math.DegToRad(g.HeadMaxAngle),
		EyeMaxAngle:     math.DegToRad(g.EyeMaxAngle),
		HeadSpeed:       g.HeadSpeed,
		EyeSpeed:        g.EyeSpeed,
		IdleHeadMin:     g.IdleHeadMin,
		IdleHeadMax:     g.IdleHeadMax,
		IdleHeadYaw:     math.DegToRad(g.IdleHeadYaw),
		IdleHeadPitch:   math.DegToRad(g.IdleHeadPitch),
		SaccadeMin:      g.SaccadeMin,
		SaccadeMax:      g.SaccadeMax,
		SaccadeAngle:    math.DegToRad(g.SaccadeAngle),
		SwayAmplitudeX:  math.DegToRad(g.SwayAmplitudeX),
		SwayAmplitudeZ:  math.DegToRad(g.SwayAmplitudeZ),
		SwayPeriodX:     g.SwayPeriodX,
		SwayPeriodZ:     g.SwayPeriodZ,
		PointerDebounce: g.PointerDebounce,
		GlanceMin:       g.GlanceMin,
		GlanceMax:       g.GlanceMax,
		GlanceHold:      g.GlanceHold,
	}
}

func (c *Config) CameraModes() camera.Config {
	return camera.Config{
		FollowOffset:  vec3(c.Camera.FollowOffset),
		FollowDamping: c.Camera.FollowDamping,
		LookDamping:   c.Camera.LookDamping,
		ReturnDamping: c.Camera.ReturnDamping,
		Epsilon:       c.Camera.Epsilon,
	}
}

func (c *Config) CameraPose() (position, target math.Vec3) {
	return vec3(c.Camera.Position), vec3(c.Camera.Target)
}

func vec3(v []float32) math.Vec3 {
	if len(v) < 3 {
		return math.NewVec3Zero()
	}
	return math.NewVec3(v[0], v[1], v[2])
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/marionette/engine/animation"
	"github.com/spaghettifunk/marionette/engine/gaze"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marionette.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWhenFileIsMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "Marionette", cfg.App.Name)
	assert.Equal(t, 60, cfg.App.TargetFPS)
	assert.Equal(t, 250*time.Millisecond, cfg.Control.StreamInterval)
	assert.Equal(t, animation.DefaultSequencerConfig(), cfg.Sequencer())
	assert.InDelta(t, 40, cfg.Gaze.HeadMaxAngle, 1e-3)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
[app]
character = "Ada"
headless = true

[animation]
dwell_min = "2s"
dwell_max = "3s"
hard_reset = true

[gaze]
eye_max_angle = 30.0

[camera]
follow_offset = [0.0, 0.5, 3.0]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Ada", cfg.App.Character)
	assert.True(t, cfg.App.Headless)
	seq := cfg.Sequencer()
	assert.Equal(t, 2*time.Second, seq.DwellMin)
	assert.Equal(t, 3*time.Second, seq.DwellMax)
	assert.True(t, seq.HardReset)
	assert.Equal(t, animation.DefaultSequencerConfig().BaseFade, seq.BaseFade, "untouched keys keep defaults")

	g := cfg.GazeController()
	assert.InDelta(t, 0.5236, g.EyeMaxAngle, 1e-3)
	assert.InDelta(t, gaze.DefaultConfig().HeadMaxAngle, g.HeadMaxAngle, 1e-5)

	modes := cfg.CameraModes()
	assert.Equal(t, float32(3), modes.FollowOffset.Z)
}

func TestEnvironmentWins(t *testing.T) {
	path := writeConfig(t, `
[control]
addr = "0.0.0.0:9000"
`)
	t.Setenv("MARIONETTE_CONTROL_ADDR", "127.0.0.1:7000")
	t.Setenv("MARIONETTE_SPEECH_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Control.Addr)
	assert.Equal(t, 5*time.Second, cfg.Speech.Timeout)
}

func TestInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
[expression]
blink_interval_min = "9s"
blink_interval_max = "2s"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "blink_interval")

	_, err = Load(writeConfig(t, "[app\nbroken"))
	assert.Error(t, err)

	cfg := Default()
	cfg.Camera.Target = []float32{1, 2}
	assert.ErrorContains(t, cfg.Validate(), "camera.target")
}

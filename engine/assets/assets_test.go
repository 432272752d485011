package assets

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/marionette/engine/character/chartest"
)

func TestProfileLibraryHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tester.toml")
	require.NoError(t, os.WriteFile(path, []byte(chartest.ProfileTOML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	am, err := NewAssetManager()
	require.NoError(t, err)
	defer am.Shutdown()

	var changes atomic.Int32
	am.OnChange(func(AssetInfo) { changes.Add(1) })
	require.NoError(t, am.Initialize(dir))

	assert.Equal(t, []string{"Tester"}, am.Profiles())
	info, ok := am.Asset(path)
	require.True(t, ok)
	assert.Equal(t, AssetTypeProfile, info.Type)
	_, ok = am.Asset(filepath.Join(dir, "notes.txt"))
	assert.False(t, ok)

	scaled := strings.Replace(chartest.ProfileTOML, "scale = 1.0", "scale = 2.5", 1)
	require.NoError(t, os.WriteFile(path, []byte(scaled), 0o644))
	require.Eventually(t, func() bool {
		p, ok := am.Profile("Tester")
		return ok && p.Scale == 2.5
	}, 5*time.Second, 20*time.Millisecond)

	// a broken edit keeps the last valid profile
	require.NoError(t, os.WriteFile(path, []byte("name = "), 0o644))
	require.Eventually(t, func() bool {
		info, ok := am.Asset(path)
		return ok && info.Err != nil
	}, 5*time.Second, 20*time.Millisecond)
	p, ok := am.Profile("Tester")
	require.True(t, ok)
	assert.Equal(t, float32(2.5), p.Scale)
	assert.Greater(t, changes.Load(), int32(1))

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, ok := am.Profile("Tester")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDetermineAssetType(t *testing.T) {
	assert.Equal(t, AssetTypeProfile, determineAssetType("a/b.toml"))
	assert.Equal(t, AssetTypeModel, determineAssetType("x.glb"))
	assert.Equal(t, AssetTypeModel, determineAssetType("x.gltf"))
	assert.Equal(t, AssetTypeNone, determineAssetType("x.png"))
}

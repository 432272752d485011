package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	m "math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/character/chartest"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

// testDocument is a three-joint skinned character with one morphing mesh and
// two animations, its buffer embedded as a data URI.
func testDocument() []byte {
	var buf bytes.Buffer
	floats := func(vs ...float32) {
		for _, v := range vs {
			binary.Write(&buf, binary.LittleEndian, m.Float32bits(v))
		}
	}
	s := float32(m.Sin(0.25))
	c := float32(m.Cos(0.25))
	floats(0, 1)                   // 0: times, offset 0
	floats(0, 0, 0, 1, 0, s, 0, c) // 1: rotations, offset 8
	floats(0, 0, 0)                // 2: position, offset 40
	floats(0, 1, 0, 0, 1.1, 0)     // 3: translations, offset 52

	data := base64.StdEncoding.EncodeToString(buf.Bytes())
	return []byte(fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0, 3]}],
  "nodes": [
    {"name": "Hips", "children": [1], "translation": [0, 1, 0]},
    {"name": "Spine", "children": [2], "translation": [0, 0.2, 0]},
    {"name": "Head", "translation": [0, 0.5, 0]},
    {"name": "Body", "mesh": 0, "skin": 0}
  ],
  "skins": [{"joints": [2, 0, 1]}],
  "meshes": [{
    "name": "Face",
    "primitives": [{"attributes": {"POSITION": 2}, "targets": [{"POSITION": 2}, {"POSITION": 2}, {"POSITION": 2}]}],
    "extras": {"targetNames": ["eyeBlinkLeft", "viseme_aa"]}
  }],
  "animations": [
    {"name": "Idle", "samplers": [{"input": 0, "output": 1}], "channels": [{"sampler": 0, "target": {"node": 1, "path": "rotation"}}]},
    {"name": "Wave", "samplers": [{"input": 0, "output": 3}], "channels": [{"sampler": 0, "target": {"node": 0, "path": "translation"}}, {"sampler": 0, "target": {"node": 3, "path": "translation"}}]}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 2, "type": "SCALAR"},
    {"bufferView": 1, "componentType": 5126, "count": 2, "type": "VEC4"},
    {"bufferView": 2, "componentType": 5126, "count": 1, "type": "VEC3"},
    {"bufferView": 3, "componentType": 5126, "count": 2, "type": "VEC3"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 8},
    {"buffer": 0, "byteOffset": 8, "byteLength": 32},
    {"buffer": 0, "byteOffset": 40, "byteLength": 12},
    {"buffer": 0, "byteOffset": 52, "byteLength": 24}
  ],
  "buffers": [{"byteLength": %d, "uri": "data:application/octet-stream;base64,%s"}]
}`, buf.Len(), data))
}

func writeDocument(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, testDocument(), 0o644))
	return path
}

func TestDecodeModel(t *testing.T) {
	model, err := ParseModel("tester", testDocument())
	require.NoError(t, err)

	require.NotNil(t, model.Skeleton)
	assert.Equal(t, []string{"Hips", "Spine", "Head"}, model.Skeleton.Names())
	head, ok := model.Skeleton.Bone("Head")
	require.True(t, ok)
	assert.Equal(t, "Spine", head.Parent.Name)
	assert.True(t, head.RestWorldPosition.Compare(math.NewVec3(0, 1.7, 0), 1e-5))

	require.Len(t, model.Meshes, 1)
	face := model.Meshes[0]
	assert.Equal(t, "Face", face.Name)
	_, ok = face.Index("viseme_aa")
	assert.True(t, ok)
	// unnamed targets get positional names
	_, ok = face.Index("target2")
	assert.True(t, ok)

	idle := model.Clips["Idle"]
	require.NotNil(t, idle)
	assert.InDelta(t, 1, idle.Duration, 1e-6)
	require.Len(t, idle.Tracks, 1)
	assert.Equal(t, "Spine", idle.Tracks[0].Bone)
	assert.Equal(t, character.TrackRotation, idle.Tracks[0].Property)
	q := idle.Tracks[0].SampleQuat(1)
	assert.InDelta(t, 0.5, q.Angle(math.NewQuatIdentity()), 1e-4)

	// the non-joint Body channel is dropped
	wave := model.Clips["Wave"]
	require.Len(t, wave.Tracks, 1)
	assert.Equal(t, "Hips", wave.Tracks[0].Bone)
	assert.True(t, wave.Tracks[0].SampleVec3(0.5).Compare(math.NewVec3(0, 1.05, 0), 1e-5))
}

func TestReadFloatsSparseAndNormalized(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, []int16{0, 0, 0, 32767, 32767, 0, 0, 0}) // 0: rotations
	binary.Write(&buf, binary.LittleEndian, []uint16{1, 0})                          // 16: sparse indices
	binary.Write(&buf, binary.LittleEndian, []float32{0, 2, 0})                      // 20: sparse values
	view := func(i int) *int { return &i }

	doc := &gltf.Document{
		Buffers: []*gltf.Buffer{{ByteLength: buf.Len(), Data: buf.Bytes()}},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: 16},
			{Buffer: 0, ByteOffset: 16, ByteLength: 4},
			{Buffer: 0, ByteOffset: 20, ByteLength: 12},
		},
		Accessors: []*gltf.Accessor{
			{BufferView: view(0), ComponentType: gltf.ComponentShort, Normalized: true, Count: 2, Type: gltf.AccessorVec4},
			{ComponentType: gltf.ComponentFloat, Count: 3, Type: gltf.AccessorVec3, Sparse: &gltf.Sparse{
				Count:   1,
				Indices: gltf.SparseIndices{BufferView: 1, ComponentType: gltf.ComponentUshort},
				Values:  gltf.SparseValues{BufferView: 2},
			}},
			{BufferView: view(0), ComponentType: gltf.ComponentShort, Count: 2, Type: gltf.AccessorVec4},
		},
	}

	rotations, err := readFloats(doc, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 1, 1, 0, 0, 0}, rotations)

	// no buffer view: zeros plus the sparse entries
	translations, err := readFloats(doc, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0, 2, 0, 0, 0, 0}, translations)

	_, err = readFloats(doc, 2, 4)
	assert.Error(t, err, "integer data must be normalized")
	_, err = readFloats(doc, 1, 4)
	assert.Error(t, err, "width mismatch")
	_, err = readFloats(doc, 9, 1)
	assert.Error(t, err)
}

func TestSplineValuesKeepsMiddle(t *testing.T) {
	in := []float32{9, 1, 9, 9, 2, 9}
	assert.Equal(t, []float32{1, 2}, splineValues(in, 1))
}

func TestTargetNamesFromExtras(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, targetNames(map[string]any{"targetNames": []any{"a", "b"}}))
	assert.Empty(t, targetNames(nil))
	assert.Empty(t, targetNames(map[string]any{"other": 1}))
}

func testProfile(t *testing.T, dir string) *character.Profile {
	t.Helper()
	src := strings.Replace(chartest.ProfileTOML, `"models/tester.glb"`, `"tester.gltf"`, 1)
	path := filepath.Join(dir, "tester.toml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	p, err := character.LoadProfile(path)
	require.NoError(t, err)
	return p
}

func TestGLTFCharacterLoader(t *testing.T) {
	dir := t.TempDir()
	writeDocument(t, dir, "tester.gltf")
	p := testProfile(t, dir)

	rt, err := (&GLTFCharacterLoader{}).LoadCharacter(context.Background(), p)
	require.NoError(t, err)
	assert.Same(t, p, rt.Profile)
	_, ok := rt.Bone(character.RoleHead)
	assert.True(t, ok)
	_, ok = rt.Bone(character.RoleLeftEye)
	assert.False(t, ok)
	assert.True(t, rt.Registry.Supported("viseme_aa"))
	assert.False(t, rt.Registry.Supported("mouthSmile"))
	_, ok = rt.Clip("Idle")
	assert.True(t, ok)

	p.Model = "missing.gltf"
	_, err = (&GLTFCharacterLoader{Dir: dir}).LoadCharacter(context.Background(), p)
	assert.ErrorIs(t, err, core.ErrCharacterLoad)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&GLTFCharacterLoader{Dir: dir}).LoadCharacter(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileClipSource(t *testing.T) {
	dir := t.TempDir()
	writeDocument(t, dir, "wave01.gltf")
	src := &FileClipSource{Dir: dir}

	clip, err := src.LoadClip(context.Background(), "wave01")
	require.NoError(t, err)
	assert.Equal(t, "wave01", clip.ID)
	assert.Equal(t, "Idle", clip.Clip.Name)
	assert.NotNil(t, clip.Skeleton)

	_, err = src.LoadClip(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrClipLoad)
	_, err = src.LoadClip(context.Background(), "../wave01")
	assert.ErrorIs(t, err, core.ErrClipLoad)
}

func TestHTTPClipSource(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	doc := testDocument()
	go fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/clips/Wave.glb":
			ctx.SetBody(doc)
		default:
			ctx.Error("not found", fasthttp.StatusNotFound)
		}
	})

	src := NewHTTPClipSource("http://clips.test/clips/", time.Second)
	src.Client.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }

	clip, err := src.LoadClip(context.Background(), "Wave")
	require.NoError(t, err)
	assert.Equal(t, "Wave", clip.Clip.Name)

	_, err = src.LoadClip(context.Background(), "Missing")
	assert.ErrorIs(t, err, core.ErrClipLoad)
}

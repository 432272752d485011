package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

// Model is what the engine keeps from a glTF document: the skeleton of the
// first skin, morph target dictionaries and the named animations.
type Model struct {
	Name     string
	Skeleton *character.Skeleton
	Meshes   []*character.MorphMesh
	Clips    map[string]*character.Clip
}

// OpenModel reads a .gltf or .glb file.
func OpenModel(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return DecodeModel(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), doc)
}

// ParseModel decodes an in-memory document. External buffers are not
// resolved, so data is expected to be a .glb or a .gltf with embedded buffers.
func ParseModel(name string, data []byte) (*Model, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return DecodeModel(name, doc)
}

func DecodeModel(name string, doc *gltf.Document) (*Model, error) {
	model := &Model{Name: name, Clips: map[string]*character.Clip{}}

	joints, err := skinJoints(doc)
	if err != nil {
		return nil, err
	}
	if len(joints) > 0 {
		defs := make([]character.BoneDef, len(joints))
		for i, j := range joints {
			n := doc.Nodes[j.node]
			defs[i] = character.BoneDef{
				Name:     nodeName(doc, j.node),
				Parent:   j.parent,
				Position: math.NewVec3(float32(n.Translation[0]), float32(n.Translation[1]), float32(n.Translation[2])),
				Rotation: math.Quaternion{
					X: float32(n.Rotation[0]),
					Y: float32(n.Rotation[1]),
					Z: float32(n.Rotation[2]),
					W: float32(n.Rotation[3]),
				},
				Scale: math.NewVec3(float32(n.Scale[0]), float32(n.Scale[1]), float32(n.Scale[2])),
			}
		}
		if model.Skeleton, err = character.NewSkeleton(defs); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	for i, mesh := range doc.Meshes {
		if len(mesh.Primitives) == 0 || len(mesh.Primitives[0].Targets) == 0 {
			continue
		}
		names := targetNames(mesh.Extras)
		for k := len(names); k < len(mesh.Primitives[0].Targets); k++ {
			names = append(names, fmt.Sprintf("target%d", k))
		}
		meshName := mesh.Name
		if meshName == "" {
			meshName = fmt.Sprintf("mesh%d", i)
		}
		model.Meshes = append(model.Meshes, character.NewMorphMesh(meshName, names))
	}

	isJoint := make(map[int]bool, len(joints))
	for _, j := range joints {
		isJoint[j.node] = true
	}
	for i, anim := range doc.Animations {
		clipName := anim.Name
		if clipName == "" {
			clipName = fmt.Sprintf("animation%d", i)
		}
		clip, err := decodeAnimation(doc, anim, clipName, isJoint)
		if err != nil {
			return nil, fmt.Errorf("%s: animation %s: %w", name, clipName, err)
		}
		model.Clips[clipName] = clip
	}
	return model, nil
}

type joint struct {
	node   int
	parent int
}

// skinJoints orders the joints of the first skin parents first.
func skinJoints(doc *gltf.Document) ([]joint, error) {
	if len(doc.Skins) == 0 {
		return nil, nil
	}
	inSkin := map[int]bool{}
	for _, j := range doc.Skins[0].Joints {
		if int(j) >= len(doc.Nodes) {
			return nil, fmt.Errorf("skin joint %d out of range", j)
		}
		inSkin[int(j)] = true
	}
	parentOf := map[int]int{}
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			parentOf[int(c)] = i
		}
	}

	var ordered []joint
	index := map[int]int{}
	var visit func(node, parent int)
	visit = func(node, parent int) {
		index[node] = len(ordered)
		ordered = append(ordered, joint{node: node, parent: parent})
		for _, c := range doc.Nodes[node].Children {
			if inSkin[int(c)] {
				visit(int(c), index[node])
			}
		}
	}
	for _, j := range doc.Skins[0].Joints {
		node := int(j)
		if p, ok := parentOf[node]; ok && inSkin[p] {
			continue
		}
		if _, done := index[node]; !done {
			visit(node, -1)
		}
	}
	return ordered, nil
}

func nodeName(doc *gltf.Document, i int) string {
	if n := doc.Nodes[i].Name; n != "" {
		return n
	}
	return fmt.Sprintf("joint%d", i)
}

// targetNames reads the conventional "targetNames" mesh extra.
func targetNames(extras any) []string {
	if extras == nil {
		return nil
	}
	var fields map[string]any
	switch e := extras.(type) {
	case map[string]any:
		fields = e
	default:
		raw, err := json.Marshal(e)
		if err != nil || json.Unmarshal(raw, &fields) != nil {
			return nil
		}
	}
	list, _ := fields["targetNames"].([]any)
	names := make([]string, 0, len(list))
	for _, v := range list {
		s, _ := v.(string)
		names = append(names, s)
	}
	return names
}

func decodeAnimation(doc *gltf.Document, anim *gltf.Animation, name string, isJoint map[int]bool) (*character.Clip, error) {
	var tracks []character.Track
	for _, ch := range anim.Channels {
		if ch.Target.Node == nil || !isJoint[int(*ch.Target.Node)] {
			continue
		}
		var prop character.TrackProperty
		switch ch.Target.Path {
		case gltf.TRSTranslation:
			prop = character.TrackTranslation
		case gltf.TRSRotation:
			prop = character.TrackRotation
		case gltf.TRSScale:
			prop = character.TrackScale
		default:
			core.LogOnce(fmt.Sprintf("gltf.path.%s.%v", name, ch.Target.Path), "animation %s: %v channels are ignored", name, ch.Target.Path)
			continue
		}
		if int(ch.Sampler) >= len(anim.Samplers) {
			return nil, fmt.Errorf("sampler %d out of range", ch.Sampler)
		}
		sampler := anim.Samplers[ch.Sampler]
		times, err := readFloats(doc, int(sampler.Input), 1)
		if err != nil {
			return nil, err
		}
		width := prop.Width()
		values, err := readFloats(doc, int(sampler.Output), width)
		if err != nil {
			return nil, err
		}
		if sampler.Interpolation == gltf.InterpolationCubicSpline {
			values = splineValues(values, width)
		}
		if len(values) != len(times)*width {
			return nil, fmt.Errorf("channel %v: %d keys but %d values", ch.Target.Path, len(times), len(values))
		}
		tracks = append(tracks, character.Track{
			Bone:     nodeName(doc, int(*ch.Target.Node)),
			Property: prop,
			Times:    times,
			Values:   values,
		})
	}
	return character.NewClip(name, character.LoopRepeat, tracks), nil
}

// splineValues keeps the value of each (in-tangent, value, out-tangent) triple.
func splineValues(values []float32, width int) []float32 {
	out := make([]float32, 0, len(values)/3)
	for k := 0; k+3*width <= len(values); k += 3 * width {
		out = append(out, values[k+width:k+2*width]...)
	}
	return out
}

// readFloats returns the accessor contents as a flat slice, width floats per
// element. Sparse accessors are resolved and normalized integer components are
// mapped back to floats.
func readFloats(doc *gltf.Document, index, width int) ([]float32, error) {
	if index >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", index)
	}
	acr := doc.Accessors[index]
	if n := acr.Type.Components(); n != width {
		return nil, fmt.Errorf("accessor %d: %d components, want %d", index, n, width)
	}
	if acr.ComponentType != gltf.ComponentFloat && !acr.Normalized {
		return nil, fmt.Errorf("accessor %d: unsupported component type %v", index, acr.ComponentType)
	}
	data, err := modeler.ReadAccessor(doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", index, err)
	}

	v := reflect.ValueOf(data)
	out := make([]float32, 0, v.Len()*width)
	for i := 0; i < v.Len(); i++ {
		e := v.Index(i)
		if e.Kind() != reflect.Array {
			out = append(out, denormalize(e))
			continue
		}
		for c := 0; c < e.Len(); c++ {
			out = append(out, denormalize(e.Index(c)))
		}
	}
	return out, nil
}

func denormalize(v reflect.Value) float32 {
	switch v.Kind() {
	case reflect.Int8:
		return gltf.DenormalizeByte(int8(v.Int()))
	case reflect.Uint8:
		return gltf.DenormalizeUbyte(uint8(v.Uint()))
	case reflect.Int16:
		return gltf.DenormalizeShort(int16(v.Int()))
	case reflect.Uint16:
		return gltf.DenormalizeUshort(uint16(v.Uint()))
	case reflect.Uint32:
		return float32(v.Uint())
	}
	return float32(v.Float())
}

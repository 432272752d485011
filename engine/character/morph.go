package character

import "github.com/spaghettifunk/marionette/engine/math"

// MorphMesh is one skinned mesh primitive with morph targets: a dictionary
// from target name to index and the live influence vector.
type MorphMesh struct {
	Name       string
	Dictionary map[string]int
	Influences []float32
}

func NewMorphMesh(name string, targetNames []string) *MorphMesh {
	m := &MorphMesh{
		Name:       name,
		Dictionary: make(map[string]int, len(targetNames)),
		Influences: make([]float32, len(targetNames)),
	}
	for i, n := range targetNames {
		if _, dup := m.Dictionary[n]; !dup {
			m.Dictionary[n] = i
		}
	}
	return m
}

func (m *MorphMesh) Index(name string) (int, bool) {
	i, ok := m.Dictionary[name]
	return i, ok
}

func (m *MorphMesh) set(index int, weight float32) {
	m.Influences[index] = math.Clamp(weight, 0, 1)
}

// Weight returns the influence of the named target, 0 if absent.
func (m *MorphMesh) Weight(name string) float32 {
	if i, ok := m.Dictionary[name]; ok {
		return m.Influences[i]
	}
	return 0
}

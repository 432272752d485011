package character

import (
	"sort"

	"github.com/spaghettifunk/marionette/engine/core"
)

// Owner names of the morph controllers, in claim order.
const (
	OwnerBlink   = "blink"
	OwnerLipSync = "lipsync"
	OwnerEmotion = "emotion"
)

// ChannelRef points at one influence slot of one mesh.
type ChannelRef struct {
	Mesh  *MorphMesh
	Index int
}

// Registry maps semantic morph names to the channels of a character's meshes.
// Names are resolved once, when the registry is built.
type Registry struct {
	channels    map[string][]ChannelRef
	unsupported []string
	owners      map[ChannelRef]string
}

// NewRegistry resolves every morph name the profile mentions against meshes.
// Names found in no mesh are reported once and resolve to no channels.
func NewRegistry(profile *Profile, meshes []*MorphMesh) *Registry {
	r := &Registry{
		channels: make(map[string][]ChannelRef),
		owners:   make(map[ChannelRef]string),
	}
	names := map[string]struct{}{}
	for _, n := range profile.Morphs.Blink {
		names[n] = struct{}{}
	}
	for _, n := range profile.VowelMorphs() {
		names[n] = struct{}{}
	}
	for _, n := range profile.EmotionMorphs() {
		names[n] = struct{}{}
	}

	for _, name := range sortedKeys(names) {
		var refs []ChannelRef
		for _, m := range meshes {
			if i, ok := m.Index(name); ok {
				refs = append(refs, ChannelRef{Mesh: m, Index: i})
			}
		}
		if len(refs) == 0 {
			r.unsupported = append(r.unsupported, name)
			core.LogOnce("morph.unsupported."+profile.Name+"."+name,
				"character %s: morph target %q not found in any mesh, disabling it", profile.Name, name)
			continue
		}
		r.channels[name] = refs
	}
	return r
}

// Resolve returns the channels of name; nil when unsupported.
func (r *Registry) Resolve(name string) []ChannelRef {
	return r.channels[name]
}

// Supported reports whether name resolved to at least one channel.
func (r *Registry) Supported(name string) bool {
	return len(r.channels[name]) > 0
}

// Unsupported lists the names that resolved to nothing, sorted.
func (r *Registry) Unsupported() []string {
	return append([]string(nil), r.unsupported...)
}

// Owner returns who claimed a channel.
func (r *Registry) Owner(ref ChannelRef) (string, bool) {
	o, ok := r.owners[ref]
	return o, ok
}

// Claim hands owner a writer for the named channels. Channels already
// claimed by another owner are withheld and the contention is logged once.
// Claims must be made in the order blink, lip-sync, emotion.
func (r *Registry) Claim(owner string, names ...string) *MorphWriter {
	w := &MorphWriter{owner: owner, channels: make(map[string][]ChannelRef)}
	for _, name := range names {
		for _, ref := range r.channels[name] {
			if prev, taken := r.owners[ref]; taken && prev != owner {
				core.LogOnce("morph.contended."+owner+"."+name,
					"morph %q on mesh %s is owned by %s, withholding it from %s", name, ref.Mesh.Name, prev, owner)
				continue
			}
			r.owners[ref] = owner
			w.channels[name] = append(w.channels[name], ref)
			w.all = append(w.all, ref)
		}
	}
	return w
}

// MorphWriter is the only way controllers write morph influences. It writes
// only the channels it was granted.
type MorphWriter struct {
	owner    string
	channels map[string][]ChannelRef
	all      []ChannelRef
}

func (w *MorphWriter) Owner() string {
	return w.owner
}

// Has reports whether the writer may write name.
func (w *MorphWriter) Has(name string) bool {
	return w != nil && len(w.channels[name]) > 0
}

// Empty reports whether the writer owns no channel at all.
func (w *MorphWriter) Empty() bool {
	return w == nil || len(w.all) == 0
}

// Names lists the writable names, sorted.
func (w *MorphWriter) Names() []string {
	if w == nil {
		return nil
	}
	out := make([]string, 0, len(w.channels))
	for n := range w.channels {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Set writes weight, clamped to [0,1], into every channel of name. It
// returns false when name is not part of the claim.
func (w *MorphWriter) Set(name string, weight float32) bool {
	if !w.Has(name) {
		return false
	}
	for _, ref := range w.channels[name] {
		ref.Mesh.set(ref.Index, weight)
	}
	return true
}

// Get reads the first channel of name.
func (w *MorphWriter) Get(name string) float32 {
	if !w.Has(name) {
		return 0
	}
	ref := w.channels[name][0]
	return ref.Mesh.Influences[ref.Index]
}

// Reset zeroes every claimed channel.
func (w *MorphWriter) Reset() {
	if w == nil {
		return
	}
	for _, ref := range w.all {
		ref.Mesh.set(ref.Index, 0)
	}
}

package character

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

// BaseClips names the model animations the sequencer alternates between.
type BaseClips struct {
	Idle     string `toml:"idle"`
	Standing string `toml:"standing"`
	// Optional looping clip played while talking.
	Talk string `toml:"talk"`
}

// BoneMap maps the roles the engine drives to the model's bone names.
type BoneMap struct {
	Head     string `toml:"head"`
	Spine    string `toml:"spine"`
	LeftEye  string `toml:"left_eye"`
	RightEye string `toml:"right_eye"`
	Hips     string `toml:"hips"`
}

// MorphTables holds the semantic morph-name tables of a character.
type MorphTables struct {
	Blink    []string                      `toml:"blink"`
	Vowels   map[string][]string           `toml:"vowels"`
	Emotions map[string]map[string]float32 `toml:"emotions"`
}

// Profile is the immutable descriptor of a selectable character.
type Profile struct {
	Name           string     `toml:"name"`
	Model          string     `toml:"model"`
	Scale          float32    `toml:"scale"`
	Rotation       [3]float32 `toml:"rotation"`
	DefaultEmotion string     `toml:"default_emotion"`
	FollowOffset   [3]float32 `toml:"follow_offset"`

	Clips  BaseClips   `toml:"clips"`
	Bones  BoneMap     `toml:"bones"`
	Morphs MorphTables `toml:"morphs"`

	// Source bone name -> model bone name, used when retargeting generated clips.
	Retarget map[string]string `toml:"retarget"`

	// Path the profile was loaded from, if any.
	Source string `toml:"-"`
}

// ParseProfile decodes and validates a TOML profile.
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProfile reads a profile from disk.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	p.Source = path
	return p, nil
}

// Validate checks the required fields and fills defaults.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", core.ErrInvalidProfile)
	}
	if p.Model == "" {
		return fmt.Errorf("%w: %s: missing model path", core.ErrInvalidProfile, p.Name)
	}
	if p.Clips.Idle == "" || p.Clips.Standing == "" {
		return fmt.Errorf("%w: %s: idle and standing clips are required", core.ErrInvalidProfile, p.Name)
	}
	if p.Scale < 0 {
		return fmt.Errorf("%w: %s: negative scale", core.ErrInvalidProfile, p.Name)
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	if p.DefaultEmotion != "" {
		if _, ok := p.Morphs.Emotions[p.DefaultEmotion]; !ok {
			return fmt.Errorf("%w: %s: default emotion %q has no preset", core.ErrInvalidProfile, p.Name, p.DefaultEmotion)
		}
	}
	for emotion, preset := range p.Morphs.Emotions {
		for morph, w := range preset {
			if w < 0 || w > 1 {
				return fmt.Errorf("%w: %s: emotion %s morph %s weight %v out of [0,1]", core.ErrInvalidProfile, p.Name, emotion, morph, w)
			}
		}
	}
	return nil
}

// BaseRotation converts the Euler degrees of the profile into a quaternion.
func (p *Profile) BaseRotation() math.Quaternion {
	return math.NewQuatFromEuler(
		math.DegToRad(p.Rotation[0]),
		math.DegToRad(p.Rotation[1]),
		math.DegToRad(p.Rotation[2]))
}

func (p *Profile) FollowOffsetVec() math.Vec3 {
	return math.NewVec3(p.FollowOffset[0], p.FollowOffset[1], p.FollowOffset[2])
}

// VowelNames returns the vowel keys in a stable order.
func (p *Profile) VowelNames() []string {
	return sortedKeys(p.Morphs.Vowels)
}

// EmotionNames returns the emotion presets in a stable order.
func (p *Profile) EmotionNames() []string {
	return sortedKeys(p.Morphs.Emotions)
}

// VowelMorphs is the union of the morph names of every vowel shape.
func (p *Profile) VowelMorphs() []string {
	set := map[string]struct{}{}
	for _, names := range p.Morphs.Vowels {
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// EmotionMorphs is the union of the morph names used by any emotion preset.
func (p *Profile) EmotionMorphs() []string {
	set := map[string]struct{}{}
	for _, preset := range p.Morphs.Emotions {
		for n := range preset {
			set[n] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

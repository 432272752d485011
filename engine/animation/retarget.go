package animation

import (
	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/math"
)

// SourceClip is a clip together with the skeleton it was authored for.
type SourceClip struct {
	ID       string
	Skeleton *character.Skeleton
	Clip     *character.Clip
}

// Retargeter maps a clip authored for source onto target. boneMap goes from
// source bone names to target bone names. Unmappable input yields a clip with
// no tracks, never an error.
type Retargeter interface {
	Retarget(target, source *character.Skeleton, clip *character.Clip, boneMap map[string]string) *character.Clip
}

// NameMapRetargeter renames tracks through the bone map and transfers
// rotations relative to the bind pose of both skeletons. Translation is kept
// for the hips bone only, scaled by the ratio of the hips rest heights.
type NameMapRetargeter struct {
	// Target hips bone name.
	Hips string
}

func (r NameMapRetargeter) Retarget(target, source *character.Skeleton, clip *character.Clip, boneMap map[string]string) *character.Clip {
	if clip == nil {
		return character.NewClip("", character.LoopOnce, nil)
	}
	if target == nil || source == nil {
		return character.NewClip(clip.Name, clip.Loop, nil)
	}

	ratio := float32(1)
	var sourceHips string
	for from, to := range boneMap {
		if to == r.Hips {
			sourceHips = from
		}
	}
	if sourceHips == "" {
		sourceHips = r.Hips
	}
	if th, sh := target.RestHeight(r.Hips), source.RestHeight(sourceHips); th > 0 && sh > 0 {
		ratio = th / sh
	}

	tracks := make([]character.Track, 0, len(clip.Tracks))
	for _, tr := range clip.Tracks {
		if !tr.Valid() {
			continue
		}
		name, ok := boneMap[tr.Bone]
		if !ok {
			name = tr.Bone
		}
		tb, ok := target.Bone(name)
		if !ok {
			continue
		}
		sb, ok := source.Bone(tr.Bone)
		if !ok {
			continue
		}

		switch tr.Property {
		case character.TrackRotation:
			tracks = append(tracks, retargetRotation(tr, tb, sb))
		case character.TrackTranslation:
			if name != r.Hips {
				continue
			}
			tracks = append(tracks, retargetTranslation(tr, tb, sb, ratio))
		}
	}
	return character.NewClip(clip.Name, clip.Loop, tracks)
}

func retargetRotation(tr character.Track, target, source *character.Bone) character.Track {
	delta := target.BindRotation.Mul(source.BindRotation.Inverse())
	values := make([]float32, len(tr.Values))
	for i := 0; i < len(tr.Values); i += 4 {
		q := math.Quaternion{X: tr.Values[i], Y: tr.Values[i+1], Z: tr.Values[i+2], W: tr.Values[i+3]}
		out := delta.Mul(q.Normalize()).Normalize()
		values[i], values[i+1], values[i+2], values[i+3] = out.X, out.Y, out.Z, out.W
	}
	return character.Track{Bone: target.Name, Property: tr.Property, Times: tr.Times, Values: values}
}

func retargetTranslation(tr character.Track, target, source *character.Bone, ratio float32) character.Track {
	values := make([]float32, len(tr.Values))
	for i := 0; i < len(tr.Values); i += 3 {
		v := math.NewVec3(tr.Values[i], tr.Values[i+1], tr.Values[i+2])
		out := target.BindPosition.Add(v.Sub(source.BindPosition).MulScalar(ratio))
		values[i], values[i+1], values[i+2] = out.X, out.Y, out.Z
	}
	return character.Track{Bone: target.Name, Property: tr.Property, Times: tr.Times, Values: values}
}

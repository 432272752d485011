package assets

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/spaghettifunk/marionette/engine/animation"
	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
)

// CharacterLoader builds a ready runtime for a profile.
type CharacterLoader interface {
	LoadCharacter(ctx context.Context, profile *character.Profile) (*character.Runtime, error)
}

// ClipSource fetches a generated motion clip by identifier.
type ClipSource interface {
	LoadClip(ctx context.Context, id string) (*animation.SourceClip, error)
}

// GLTFCharacterLoader reads the profile's model from disk. Relative model
// paths resolve against Dir, or the profile file's directory when Dir is empty.
type GLTFCharacterLoader struct {
	Dir string
}

func (l *GLTFCharacterLoader) LoadCharacter(ctx context.Context, profile *character.Profile) (*character.Runtime, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: no profile", core.ErrCharacterLoad)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := profile.Model
	if !filepath.IsAbs(path) {
		base := l.Dir
		if base == "" && profile.Source != "" {
			base = filepath.Dir(profile.Source)
		}
		path = filepath.Join(base, path)
	}

	model, err := OpenModel(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCharacterLoad, profile.Name, err)
	}
	if model.Skeleton == nil {
		core.LogWarn("character %s has no skin, motion is disabled", profile.Name)
	}
	for _, name := range []string{profile.Clips.Idle, profile.Clips.Standing, profile.Clips.Talk} {
		if _, ok := model.Clips[name]; name != "" && !ok {
			core.LogOnce("clip.missing."+profile.Name+"."+name, "character %s has no animation named %s", profile.Name, name)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rt := character.NewRuntime(profile, model.Skeleton, model.Meshes, model.Clips)
	if missing := rt.Registry.Unsupported(); len(missing) > 0 {
		core.LogInfo("character %s: %d morph names not found on any mesh", profile.Name, len(missing))
	}
	return rt, nil
}

// FileClipSource loads <Dir>/<id>.glb or <Dir>/<id>.gltf.
type FileClipSource struct {
	Dir string
}

func (s *FileClipSource) LoadClip(ctx context.Context, id string) (*animation.SourceClip, error) {
	if err := validClipID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, ext := range []string{".glb", ".gltf"} {
		path := filepath.Join(s.Dir, id+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		model, err := OpenModel(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrClipLoad, id, err)
		}
		return sourceClip(id, model)
	}
	return nil, fmt.Errorf("%w: %s: not found in %s", core.ErrClipLoad, id, s.Dir)
}

// HTTPClipSource downloads <BaseURL>/<id>.glb.
type HTTPClipSource struct {
	BaseURL string
	Timeout time.Duration
	Client  *fasthttp.Client
}

func NewHTTPClipSource(baseURL string, timeout time.Duration) *HTTPClipSource {
	return &HTTPClipSource{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Timeout: timeout,
		Client:  &fasthttp.Client{Name: "marionette"},
	}
}

func (s *HTTPClipSource) LoadClip(ctx context.Context, id string) (*animation.SourceClip, error) {
	if err := validClipID(id); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.BaseURL + "/" + url.PathEscape(id) + ".glb")
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := s.Client.DoDeadline(req, resp, deadline(ctx, s.Timeout)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrClipLoad, id, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", core.ErrClipLoad, id, code)
	}

	// the body is owned by resp and released with it
	body := append([]byte(nil), resp.Body()...)
	model, err := ParseModel(id, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrClipLoad, id, err)
	}
	return sourceClip(id, model)
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return time.Now().Add(timeout)
}

func validClipID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: invalid clip id %q", core.ErrClipLoad, id)
	}
	return nil
}

// sourceClip picks the animation named like the clip, else the first one by name.
func sourceClip(id string, model *Model) (*animation.SourceClip, error) {
	if model.Skeleton == nil {
		return nil, fmt.Errorf("%w: %s: no skeleton", core.ErrClipLoad, id)
	}
	clip, ok := model.Clips[id]
	if !ok {
		names := make([]string, 0, len(model.Clips))
		for n := range model.Clips {
			names = append(names, n)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: %s: no animation", core.ErrClipLoad, id)
		}
		sort.Strings(names)
		clip = model.Clips[names[0]]
	}
	return &animation.SourceClip{ID: id, Skeleton: model.Skeleton, Clip: clip}, nil
}

package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeProfile
	AssetTypeModel
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeProfile:
		return "profile"
	case AssetTypeModel:
		return "model"
	}
	return "none"
}

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
	// Set when the last (re)load of a profile failed; the previous version is kept.
	Err error
}

// AssetManager indexes the profile and model directories, keeps a library of
// valid character profiles and reloads them when their files change.
type AssetManager struct {
	assets   map[string]AssetInfo
	profiles map[string]*character.Profile
	// profile file path -> profile name
	byPath   map[string]string
	onChange []func(AssetInfo)

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		profiles: make(map[string]*character.Profile),
		byPath:   make(map[string]string),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes every file under dirs and starts watching them.
func (am *AssetManager) Initialize(dirs ...string) error {
	go am.start()

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := am.addRecursive(dir); err != nil {
			return err
		}
	}
	return nil
}

// OnChange registers fn to be called, from the watcher goroutine, after an
// asset was added, reloaded or removed.
func (am *AssetManager) OnChange(fn func(AssetInfo)) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.onChange = append(am.onChange, fn)
}

// Profile returns the last valid version of the named profile.
func (am *AssetManager) Profile(name string) (*character.Profile, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	p, ok := am.profiles[name]
	return p, ok
}

// Profiles lists the known profile names, sorted.
func (am *AssetManager) Profiles() []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	names := make([]string, 0, len(am.profiles))
	for n := range am.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (am *AssetManager) Asset(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	a, ok := am.assets[filepath.Clean(path)]
	return a, ok
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
	return nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
				continue
			}
			// editors often replace files, which shows up as a rename or a create
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && err != nil {
				am.removeAsset(e.Name)
				am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found there.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		if !unWatch {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return
	}
	info := AssetInfo{Path: path, Type: assetType, LastLoaded: time.Now()}

	var profile *character.Profile
	if assetType == AssetTypeProfile {
		profile, info.Err = character.LoadProfile(path)
		if info.Err != nil {
			core.LogWarn("profile %s rejected, keeping the previous version: %v", path, info.Err)
		}
	}

	am.mutex.Lock()
	am.assets[path] = info
	if profile != nil {
		if old, ok := am.byPath[path]; ok && old != profile.Name {
			delete(am.profiles, old)
		}
		am.byPath[path] = profile.Name
		am.profiles[profile.Name] = profile
	}
	listeners := append([]func(AssetInfo){}, am.onChange...)
	am.mutex.Unlock()

	for _, fn := range listeners {
		fn(info)
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	path = filepath.Clean(path)
	am.mutex.Lock()
	info, ok := am.assets[path]
	delete(am.assets, path)
	if name, isProfile := am.byPath[path]; isProfile {
		delete(am.profiles, name)
		delete(am.byPath, path)
	}
	listeners := append([]func(AssetInfo){}, am.onChange...)
	am.mutex.Unlock()

	if !ok {
		return
	}
	info.Type, info.Err = AssetTypeNone, nil
	for _, fn := range listeners {
		fn(info)
	}
}

func determineAssetType(path string) AssetType {
	switch filepath.Ext(path) {
	case ".toml":
		return AssetTypeProfile
	case ".glb", ".gltf":
		return AssetTypeModel
	default:
		return AssetTypeNone
	}
}

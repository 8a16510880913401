package assets

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-gfx/engine/assets/loaders"
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/systems"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrClosed        = errors.New("asset manager already closed")
)

type AssetInfo struct {
	// Path relative to the root, slash separated.
	Path     string
	Kind     loaders.Kind
	Modified time.Time
}

// AssetManager indexes the files under the asset root and loads them through
// the loader registered for their kind. With watching on, the index follows
// the disk and every change is posted as EVENT_CODE_ASSET_CHANGED.
type AssetManager struct {
	cfg  core.AssetsConfig
	root string

	mutex   sync.RWMutex
	assets  map[string]AssetInfo
	loaders map[loaders.Kind]Loader

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

func NewAssetManager(cfg core.AssetsConfig) (*AssetManager, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	am := &AssetManager{
		cfg:     cfg,
		root:    root,
		assets:  make(map[string]AssetInfo),
		loaders: make(map[loaders.Kind]Loader),
		done:    make(chan struct{}),
	}
	am.registerLoader(loaders.KindShader, &loaders.ShaderLoader{})
	am.registerLoader(loaders.KindImage, &loaders.TextureLoader{})
	return am, nil
}

// Initialize builds the index and, if configured, starts watching the tree.
func (am *AssetManager) Initialize() error {
	if am.cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		am.fsnotify = w
	}
	if err := am.watchRecursive(am.root); err != nil {
		if am.fsnotify != nil {
			am.fsnotify.Close()
			am.fsnotify = nil
		}
		return err
	}
	if am.fsnotify != nil {
		am.wg.Add(1)
		go am.start()
	}
	core.LogInfo("asset manager indexed %d files under %s", am.Len(), am.root)
	return nil
}

func (am *AssetManager) registerLoader(kind loaders.Kind, loader Loader) {
	am.loaders[kind] = loader
}

// Len returns the number of indexed files.
func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) Info(rel string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[rel]
	return info, ok
}

// Load runs the loader of an indexed file. rel is relative to the root.
func (am *AssetManager) Load(rel string) (*loaders.Resource, error) {
	am.mutex.RLock()
	asset, exists := am.assets[rel]
	loader := am.loaders[asset.Kind]
	am.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, rel)
	}
	if loader == nil {
		return nil, fmt.Errorf("no loader registered for %s assets", asset.Kind)
	}
	return loader.Load(filepath.Join(am.root, filepath.FromSlash(rel)))
}

func (am *AssetManager) Unload(res *loaders.Resource) error {
	loader, ok := am.loaders[res.Kind]
	if !ok {
		return fmt.Errorf("no loader registered for %s assets", res.Kind)
	}
	return loader.Unload(res)
}

// LoadShader returns the SPIR-V bytes of <shaders>/<name>.spv.
func (am *AssetManager) LoadShader(name string) ([]byte, error) {
	res, err := am.Load(path.Join(filepath.ToSlash(am.cfg.Shaders), name+".spv"))
	if err != nil {
		return nil, err
	}
	return res.Data.([]byte), nil
}

// LoadImage decodes <textures>/<name>, name including its extension.
func (am *AssetManager) LoadImage(name string) (image.Image, error) {
	res, err := am.Load(path.Join(filepath.ToSlash(am.cfg.Textures), name))
	if err != nil {
		return nil, err
	}
	return res.Data.(image.Image), nil
}

// LoadImageAsync decodes the image on a job worker. The callbacks run on the
// goroutine driving jobs.Update, so onLoaded may upload the pixels.
func (am *AssetManager) LoadImageAsync(jobs *systems.JobSystem, name string, onLoaded func(image.Image), onFailed func(error)) error {
	return jobs.Submit(systems.JobTask{
		Name: "image:" + name,
		Run: func() (interface{}, error) {
			return am.LoadImage(name)
		},
		OnComplete: func(result interface{}) {
			onLoaded(result.(image.Image))
		},
		OnFailure: onFailed,
	})
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
	am.wg.Wait()
	if am.fsnotify != nil {
		return am.fsnotify.Close()
	}
	return nil
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("asset watcher: failed to watch %s: %s", e.Name, err)
			}
			return
		}
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if rel, ok := am.indexFile(e.Name); ok {
			am.post(rel, false)
		}
	}
	// Can't stat a deleted path, so drop it from both the index and the
	// watch list and ignore the error when it was a plain file.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if rel, ok := am.removeAsset(e.Name); ok {
			am.post(rel, true)
		}
		_ = am.fsnotify.Remove(e.Name)
	}
}

func (am *AssetManager) post(rel string, removed bool) {
	core.LogDebug("asset %s changed (removed=%t)", rel, removed)
	if err := core.EventPost(core.EventContext{
		Type: core.EVENT_CODE_ASSET_CHANGED,
		Data: &core.AssetEvent{Path: rel, Removed: removed},
	}); err != nil {
		core.LogWarn("asset %s: change event dropped: %s", rel, err)
	}
}

// watchRecursive indexes every file under dir and watches every directory.
// A file created before its directory watch lands is still picked up by the
// walk.
func (am *AssetManager) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.indexFile(walkPath)
		return nil
	})
}

func (am *AssetManager) relative(full string) (string, bool) {
	rel, err := filepath.Rel(am.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (am *AssetManager) indexFile(full string) (string, bool) {
	kind := determineAssetKind(full)
	if kind == loaders.KindNone {
		return "", false
	}
	rel, ok := am.relative(full)
	if !ok {
		return "", false
	}
	modified := time.Now()
	if s, err := os.Stat(full); err == nil {
		modified = s.ModTime()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[rel] = AssetInfo{Path: rel, Kind: kind, Modified: modified}
	return rel, true
}

func (am *AssetManager) removeAsset(full string) (string, bool) {
	rel, ok := am.relative(full)
	if !ok {
		return "", false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if _, exists := am.assets[rel]; !exists {
		return "", false
	}
	delete(am.assets, rel)
	return rel, true
}

func determineAssetKind(p string) loaders.Kind {
	switch filepath.Ext(p) {
	case ".spv":
		return loaders.KindShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp":
		return loaders.KindImage
	default:
		return loaders.KindNone
	}
}

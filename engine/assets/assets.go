package assets

import (
	"fmt"
	"path"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/spark/engine/assets/loaders"
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/content/savable"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/systems"
)

type ContentInfo struct {
	Name       string
	Value      interface{}
	LastLoaded time.Time

	loader Loader
}

type ContentManagerConfig struct {
	Repository repository.Repository
	Registry   *savable.Registry
	// Jobs runs external writes of Save. Optional.
	Jobs      *systems.JobSystem
	Overwrite bool
	// Extension of savable files. Defaults to ".spk".
	Extension string
}

// ContentManager loads content by name through a repository and caches it.
// A name is loaded at most once at a time: concurrent callers wait for the
// first one and share its result.
type ContentManager struct {
	repository repository.Repository
	registry   *savable.Registry
	jobs       *systems.JobSystem
	overwrite  bool
	extension  string

	mutex          sync.Mutex
	ownsRepository bool
	loaders        map[string]Loader
	// One lock per name, held while that name loads.
	locks  map[string]*sync.Mutex
	assets map[string]*ContentInfo

	loads atomic.Int64
}

func NewContentManager(config ContentManagerConfig) (*ContentManager, error) {
	if config.Repository == nil {
		return nil, fmt.Errorf("%w: repository is required", core.ErrInvalidArgument)
	}
	if config.Registry == nil {
		config.Registry = savable.NewRegistry()
	}
	if config.Extension == "" {
		config.Extension = ".spk"
	}
	cm := &ContentManager{
		repository: config.Repository,
		registry:   config.Registry,
		jobs:       config.Jobs,
		overwrite:  config.Overwrite,
		extension:  config.Extension,
		loaders:    make(map[string]Loader),
		locks:      make(map[string]*sync.Mutex),
		assets:     make(map[string]*ContentInfo),
	}
	cm.RegisterLoader(config.Extension, &loaders.SavableLoader{})
	cm.RegisterLoader(".bin", &loaders.BinaryLoader{})
	cm.RegisterLoader(".spv", &loaders.BinaryLoader{})
	return cm, nil
}

// Initialize opens the repository if needed and starts listening for file changes.
func (cm *ContentManager) Initialize() error {
	if !cm.repository.IsOpen() {
		if err := cm.repository.Open(); err != nil {
			return err
		}
		cm.ownsRepository = true
	}
	core.EventRegister(core.EVENT_CODE_RESOURCE_FILE_CHANGED, cm, cm.onFileEvent)
	core.EventRegister(core.EVENT_CODE_RESOURCE_FILE_REMOVED, cm, cm.onFileEvent)
	return nil
}

func (cm *ContentManager) Shutdown() error {
	core.EventUnregister(core.EVENT_CODE_RESOURCE_FILE_CHANGED, cm)
	core.EventUnregister(core.EVENT_CODE_RESOURCE_FILE_REMOVED, cm)
	for _, name := range cm.Loaded() {
		cm.Unload(name)
	}
	if cm.ownsRepository && cm.repository.IsOpen() {
		cm.ownsRepository = false
		return cm.repository.Close()
	}
	return nil
}

func (cm *ContentManager) Registry() *savable.Registry {
	return cm.registry
}

// Register loaders for each file extension
func (cm *ContentManager) RegisterLoader(extension string, loader Loader) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.loaders[extension] = loader
}

// Load returns the content called name as T, loading it on first use.
func Load[T any](cm *ContentManager, name string) (T, error) {
	var zero T
	v, err := cm.load(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, core.NewMismatchError(fmt.Sprintf("load %s", name), core.ErrTypeMismatch, reflect.TypeOf((*T)(nil)).Elem().String(), fmt.Sprintf("%T", v))
	}
	return t, nil
}

func (cm *ContentManager) load(name string) (interface{}, error) {
	// Short lock to find the cached value or the lock of the name.
	cm.mutex.Lock()
	if info, ok := cm.assets[name]; ok {
		cm.mutex.Unlock()
		return info.Value, nil
	}
	lock, ok := cm.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		cm.locks[name] = lock
	}
	loader, hasLoader := cm.loaders[path.Ext(name)]
	cm.mutex.Unlock()

	if !hasLoader {
		return nil, core.NewMismatchError(fmt.Sprintf("load %s", name), core.ErrUnknownType, "a registered extension", path.Ext(name))
	}

	// Long lock on the name for the duration of the load.
	lock.Lock()
	defer lock.Unlock()

	cm.mutex.Lock()
	info, ok := cm.assets[name]
	cm.mutex.Unlock()
	if ok {
		return info.Value, nil
	}

	start := time.Now()
	v, err := loader.Load(cm.repository, name, cm.registry)
	if err != nil {
		return nil, err
	}
	cm.loads.Add(1)

	cm.mutex.Lock()
	cm.assets[name] = &ContentInfo{Name: name, Value: v, LastLoaded: time.Now(), loader: loader}
	cm.mutex.Unlock()
	core.LogDebug("loaded '%s' in %s", name, time.Since(start))
	return v, nil
}

// Save writes value under name and caches it.
func (cm *ContentManager) Save(name string, value savable.Savable) error {
	err := savable.Save(cm.repository, name, value, savable.SaveOptions{
		Registry:  cm.registry,
		Jobs:      cm.jobs,
		Overwrite: cm.overwrite,
		Extension: cm.extension,
	})
	if err != nil {
		return err
	}
	cm.mutex.Lock()
	cm.assets[name] = &ContentInfo{Name: name, Value: value, LastLoaded: time.Now(), loader: cm.loaders[path.Ext(name)]}
	cm.mutex.Unlock()
	return nil
}

// Unload drops the cached value of name. It reports whether it was loaded.
func (cm *ContentManager) Unload(name string) bool {
	cm.mutex.Lock()
	info, ok := cm.assets[name]
	delete(cm.assets, name)
	cm.mutex.Unlock()
	if !ok {
		return false
	}
	if info.loader != nil {
		if err := info.loader.Unload(info.Value); err != nil {
			core.LogWarn("unloading '%s': %s", name, err.Error())
		}
	}
	return true
}

func (cm *ContentManager) IsLoaded(name string) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	_, ok := cm.assets[name]
	return ok
}

// Loaded returns the names of the cached values in lexical order.
func (cm *ContentManager) Loaded() []string {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	names := make([]string, 0, len(cm.assets))
	for name := range cm.assets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Loads returns how many times a loader actually ran.
func (cm *ContentManager) Loads() int64 {
	return cm.loads.Load()
}

// onFileEvent evicts content whose file changed or disappeared, so the next
// Load reads it again.
func (cm *ContentManager) onFileEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if sender != interface{}(cm.repository) {
		return false
	}
	name, ok := data.Data.(string)
	if !ok {
		return false
	}
	if cm.Unload(name) {
		core.LogInfo("'%s' changed on disk, evicted", name)
	}
	// Other listeners may care about the same file.
	return false
}

package repository

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/spark/engine/core"
)

// DirectoryRepository serves the files below a root directory. With watching
// enabled it keeps its file index current and fires
// EVENT_CODE_RESOURCE_FILE_CHANGED and EVENT_CODE_RESOURCE_FILE_REMOVED.
type DirectoryRepository struct {
	root  string
	watch bool

	mutex sync.RWMutex
	open  bool
	// Known files and their last modification.
	index map[string]time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
}

func NewDirectoryRepository(root string, watch bool) *DirectoryRepository {
	return &DirectoryRepository{root: filepath.Clean(root), watch: watch}
}

func (r *DirectoryRepository) Root() string {
	return r.root
}

// Open creates the root directory if needed, indexes it and starts watching it.
func (r *DirectoryRepository) Open() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.open {
		return core.NewContentError(fmt.Sprintf("open repository %s", r.root), core.ErrRepositoryAlreadyOpen)
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return core.NewContentError(fmt.Sprintf("open repository %s", r.root), err)
	}
	r.index = make(map[string]time.Time)

	if r.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return core.NewContentError(fmt.Sprintf("watch repository %s", r.root), err)
		}
		r.watcher = w
	}
	if _, err := r.walk(r.root); err != nil {
		if r.watcher != nil {
			r.watcher.Close()
			r.watcher = nil
		}
		return core.NewContentError(fmt.Sprintf("index repository %s", r.root), err)
	}
	if r.watcher != nil {
		r.done = make(chan struct{})
		r.stopped = make(chan struct{})
		go r.start(r.watcher, r.done, r.stopped)
	}
	r.open = true
	core.LogDebug("opened repository '%s' (%d files, watch=%t)", r.root, len(r.index), r.watch)
	return nil
}

func (r *DirectoryRepository) Close() error {
	r.mutex.Lock()
	if !r.open {
		r.mutex.Unlock()
		return core.NewContentError(fmt.Sprintf("close repository %s", r.root), core.ErrRepositoryNotOpen)
	}
	r.open = false
	done, stopped := r.done, r.stopped
	r.done, r.stopped, r.watcher = nil, nil, nil
	r.mutex.Unlock()

	if done != nil {
		close(done)
		<-stopped
	}
	core.LogDebug("closed repository '%s'", r.root)
	return nil
}

func (r *DirectoryRepository) IsOpen() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.open
}

// clean turns a resource name into a slash separated name relative to the
// root. Names escaping the root are rejected.
func clean(name string) (string, error) {
	n := path.Clean(filepath.ToSlash(name))
	if n == "." || path.IsAbs(n) || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("%w: resource name %q", core.ErrInvalidArgument, name)
	}
	return n, nil
}

func (r *DirectoryRepository) GetResourceFile(name string) (ResourceFile, error) {
	if !r.IsOpen() {
		return nil, core.NewContentError(fmt.Sprintf("get resource file %s", name), core.ErrRepositoryNotOpen)
	}
	n, err := clean(name)
	if err != nil {
		return nil, err
	}
	return &directoryFile{repository: r, name: n}, nil
}

func (r *DirectoryRepository) GetResourceFileRelativeTo(name string, anchor ResourceFile) (ResourceFile, error) {
	if anchor == nil {
		return r.GetResourceFile(name)
	}
	return r.GetResourceFile(path.Join(path.Dir(anchor.Name()), filepath.ToSlash(name)))
}

func (r *DirectoryRepository) Exists(name string) bool {
	n, err := clean(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(r.fullPath(n))
	return err == nil
}

// Files returns the indexed file names in lexical order.
func (r *DirectoryRepository) Files() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.index))
	for n := range r.index {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (r *DirectoryRepository) fullPath(name string) string {
	return filepath.Join(r.root, filepath.FromSlash(name))
}

func (r *DirectoryRepository) relative(full string) (string, bool) {
	rel, err := filepath.Rel(r.root, full)
	if err != nil {
		return "", false
	}
	n, err := clean(rel)
	return n, err == nil
}

func (r *DirectoryRepository) indexFile(full string, modified time.Time) (string, bool) {
	n, ok := r.relative(full)
	if ok {
		r.index[n] = modified
	}
	return n, ok
}

// walk indexes every file below dir and, when watching, adds every directory
// to the watch list. It returns the names it indexed. Callers hold the mutex.
func (r *DirectoryRepository) walk(dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if r.watcher != nil {
				return r.watcher.Add(p)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if n, ok := r.indexFile(p, info.ModTime()); ok {
			names = append(names, n)
		}
		return nil
	})
	return names, err
}

func (r *DirectoryRepository) start(w *fsnotify.Watcher, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			r.handleEvent(e)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			core.LogError("repository '%s' watcher: %s", r.root, err.Error())

		case <-done:
			w.Close()
			return
		}
	}
}

func (r *DirectoryRepository) handleEvent(e fsnotify.Event) {
	changed, removed := r.applyEvent(e)
	// Listeners may call back into the repository, so they run unlocked.
	for _, n := range changed {
		core.EventFire(core.EVENT_CODE_RESOURCE_FILE_CHANGED, r, core.EventContext{Data: n})
	}
	for _, n := range removed {
		core.EventFire(core.EVENT_CODE_RESOURCE_FILE_REMOVED, r, core.EventContext{Data: n})
	}
}

func (r *DirectoryRepository) applyEvent(e fsnotify.Event) (changed, removed []string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
		s, err := os.Stat(e.Name)
		switch {
		case err != nil:
		case s.IsDir():
			// New directories may already contain files.
			names, err := r.walk(e.Name)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				core.LogWarn("repository '%s': watching %s: %s", r.root, e.Name, err.Error())
			}
			changed = append(changed, names...)
		default:
			if n, ok := r.indexFile(e.Name, s.ModTime()); ok {
				changed = append(changed, n)
			}
		}
	}
	// A removed path cannot be stat'ed; it may have been a file or a directory.
	if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		n, ok := r.relative(e.Name)
		if !ok {
			return changed, removed
		}
		for indexed := range r.index {
			if indexed == n || strings.HasPrefix(indexed, n+"/") {
				delete(r.index, indexed)
				removed = append(removed, indexed)
			}
		}
		slices.Sort(removed)
	}
	return changed, removed
}

type directoryFile struct {
	repository *DirectoryRepository
	name       string
}

func (f *directoryFile) Name() string {
	return f.name
}

func (f *directoryFile) FullPath() string {
	return f.repository.fullPath(f.name)
}

func (f *directoryFile) Exists() bool {
	_, err := os.Stat(f.FullPath())
	return err == nil
}

func (f *directoryFile) OpenRead() (io.ReadCloser, error) {
	if !f.repository.IsOpen() {
		return nil, core.NewContentError(fmt.Sprintf("read %s", f.name), core.ErrRepositoryNotOpen)
	}
	return os.Open(f.FullPath())
}

func (f *directoryFile) Create() (io.WriteCloser, error) {
	if !f.repository.IsOpen() {
		return nil, core.NewContentError(fmt.Sprintf("create %s", f.name), core.ErrRepositoryNotOpen)
	}
	full := f.FullPath()
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(full)
	if err != nil {
		return nil, err
	}
	if !f.repository.watch {
		f.repository.mutex.Lock()
		f.repository.index[f.name] = time.Now()
		f.repository.mutex.Unlock()
	}
	return file, nil
}

func (f *directoryFile) String() string {
	return f.name
}

package savable

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/spark/engine/containers"
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/systems"
)

// NamingDelegate derives the resource name of a value, without extension.
type NamingDelegate func(value any) (string, error)

type HandlerOptions struct {
	// Repository receives the external files. Required. It is opened if it is
	// closed, and then closed again by Flush.
	Repository repository.Repository
	// Jobs runs the background writes. Required.
	Jobs     *systems.JobSystem
	Registry *Registry
	// Anchor is the file being written; external names are relative to its
	// directory. Optional.
	Anchor repository.ResourceFile
	// Overwrite rewrites external files that already exist.
	Overwrite bool
	// Extension of files written by the catch-all savable writer. Defaults to ".spk".
	Extension string
	// Comparer replaces identity when deciding whether a value was already
	// processed in the current pass.
	Comparer func(a, b any) bool
}

// ExternalReferenceHandler decides once per pass and object where an external
// object is written, and writes it in the background. Flush must be called by
// the goroutine that created the handler.
type ExternalReferenceHandler struct {
	repository repository.Repository
	jobs       *systems.JobSystem
	registry   *Registry
	anchor     repository.ResourceFile
	overwrite  bool
	comparer   func(a, b any) bool
	owner      uint64

	mutex          sync.Mutex
	ownsRepository bool
	pass           *WritePass
	naming         map[reflect.Type]NamingDelegate
	writers        map[reflect.Type]ExternalWriter
	// Writers for interface types, tried in registration order.
	interfaceWriters []ExternalWriter
	fallback         ExternalWriter
	pending          *containers.Queue[*systems.Job]
	// Writes of cleared passes. Flush waits for them before closing the
	// repository but does not report their errors.
	detached []*systems.Job

	flushing atomic.Bool
}

func NewExternalReferenceHandler(options HandlerOptions) (*ExternalReferenceHandler, error) {
	if options.Repository == nil {
		return nil, fmt.Errorf("%w: repository is required", core.ErrInvalidArgument)
	}
	if options.Jobs == nil {
		return nil, fmt.Errorf("%w: job system is required", core.ErrInvalidArgument)
	}
	if options.Registry == nil {
		options.Registry = NewRegistry()
	}
	if options.Extension == "" {
		options.Extension = ".spk"
	}
	h := &ExternalReferenceHandler{
		repository: options.Repository,
		jobs:       options.Jobs,
		registry:   options.Registry,
		anchor:     options.Anchor,
		overwrite:  options.Overwrite,
		comparer:   options.Comparer,
		owner:      core.GoroutineID(),
		pass:       NewWritePass(),
		naming:     make(map[reflect.Type]NamingDelegate),
		writers:    make(map[reflect.Type]ExternalWriter),
		fallback:   &savableWriter{registry: options.Registry, extension: options.Extension},
		pending:    containers.NewQueue[*systems.Job](16),
	}
	if err := h.ensureOpen(); err != nil {
		return nil, err
	}
	return h, nil
}

// ensureOpen opens the repository when it is closed and remembers that the
// handler has to close it. Callers hold the mutex or own the handler exclusively.
func (h *ExternalReferenceHandler) ensureOpen() error {
	if h.repository.IsOpen() {
		return nil
	}
	if err := h.repository.Open(); err != nil {
		return err
	}
	h.ownsRepository = true
	return nil
}

// SetNamingDelegate names values of type t. It is consulted for the declared
// type first, then for the dynamic type.
func (h *ExternalReferenceHandler) SetNamingDelegate(t reflect.Type, delegate NamingDelegate) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if delegate == nil {
		delete(h.naming, t)
		return
	}
	h.naming[t] = delegate
}

// SetNaming is SetNamingDelegate with the type taken from the delegate.
func SetNaming[T any](h *ExternalReferenceHandler, delegate func(T) (string, error)) {
	h.SetNamingDelegate(reflect.TypeOf((*T)(nil)).Elem(), func(value any) (string, error) {
		return delegate(value.(T))
	})
}

// RegisterWriter registers w for its target type.
func (h *ExternalReferenceHandler) RegisterWriter(w ExternalWriter) {
	h.RegisterWriterFor(w.TargetType(), w)
}

// RegisterWriterFor registers w for values declared as t. A value whose
// dynamic type w does not accept fails with ErrTypeMismatch.
func (h *ExternalReferenceHandler) RegisterWriterFor(t reflect.Type, w ExternalWriter) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if t.Kind() == reflect.Interface {
		replaced := false
		for i, iw := range h.interfaceWriters {
			if iw == h.writers[t] {
				h.interfaceWriters[i], replaced = w, true
				break
			}
		}
		if !replaced {
			h.interfaceWriters = append(h.interfaceWriters, w)
		}
	}
	h.writers[t] = w
}

// Pass returns the current write pass.
func (h *ExternalReferenceHandler) Pass() *WritePass {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.pass
}

// Pending returns the number of writes not yet awaited by Flush.
func (h *ExternalReferenceHandler) Pending() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.pending.Len()
}

// ProcessSavable returns the external reference of value, declared as T,
// scheduling its write the first time it is seen in the current pass.
func ProcessSavable[T any](h *ExternalReferenceHandler, value T) (ExternalReference, error) {
	return h.Process(reflect.TypeOf((*T)(nil)).Elem(), value)
}

// Process is ProcessSavable with an explicit declared type. A nil declared
// type means the dynamic type of value.
func (h *ExternalReferenceHandler) Process(declared reflect.Type, value any) (ExternalReference, error) {
	return h.process(h.Pass(), declared, value)
}

func (h *ExternalReferenceHandler) process(pass *WritePass, declared reflect.Type, value any) (ExternalReference, error) {
	if isNil(value) {
		return NullReference, nil
	}
	actual := reflect.TypeOf(value)
	if declared == nil {
		declared = actual
	}
	if !actual.AssignableTo(declared) {
		return NullReference, core.NewMismatchError("process external", core.ErrTypeMismatch, typeName(declared), typeName(actual))
	}
	if h.comparer == nil && !actual.Comparable() {
		return NullReference, fmt.Errorf("%w: %s is not comparable, set a comparer", core.ErrInvalidArgument, actual)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if pass == nil {
		pass = h.pass
	}
	if ref, ok := pass.lookup(declared, value, h.comparer); ok {
		return ref, nil
	}
	writer, err := h.writerFor(declared, actual)
	if err != nil {
		return NullReference, err
	}
	base, derived, err := h.baseName(declared, actual, value)
	if err != nil {
		return NullReference, core.NewContentError(fmt.Sprintf("name external %s", actual), err)
	}
	name := pass.unique(base, writer.Extension(), derived)
	if err := h.ensureOpen(); err != nil {
		return NullReference, err
	}
	file, err := h.repository.GetResourceFileRelativeTo(name, h.anchor)
	if err != nil {
		return NullReference, err
	}
	ref := ExternalReference{TypeName: h.typeNameOf(value), Path: file.Name()}
	// Recorded before the write is queued so nested writes see it.
	pass.record(declared, value, ref, h.comparer)

	if !h.overwrite && file.Exists() {
		core.LogDebug("external '%s' exists, not overwritten", file.Name())
		return ref, nil
	}
	job := systems.NewJob(systems.JOB_TYPE_RESOURCE_WRITE, "write "+file.Name(), func() error {
		return h.write(file, writer, value, pass)
	})
	h.pending.Enqueue(job)
	h.jobs.AddWorkNonBlocking(job)
	return ref, nil
}

func (h *ExternalReferenceHandler) writerFor(declared, actual reflect.Type) (ExternalWriter, error) {
	w, ok := h.writers[declared]
	if !ok {
		w, ok = h.writers[actual]
	}
	if !ok {
		for _, iw := range h.interfaceWriters {
			if accepts(iw.TargetType(), actual) {
				w, ok = iw, true
				break
			}
		}
	}
	if !ok {
		if !actual.Implements(savableType) {
			return nil, core.NewMismatchError("find external writer", core.ErrNoWriter, typeName(declared), typeName(actual))
		}
		w = h.fallback
	}
	if !accepts(w.TargetType(), actual) {
		return nil, core.NewMismatchError("find external writer", core.ErrTypeMismatch, typeName(w.TargetType()), typeName(actual))
	}
	return w, nil
}

// baseName picks the name of a value from a naming delegate, the value's own
// name, or its type. derived is true for the type fallback.
func (h *ExternalReferenceHandler) baseName(declared, actual reflect.Type, value any) (string, bool, error) {
	delegate, ok := h.naming[declared]
	if !ok {
		delegate, ok = h.naming[actual]
	}
	if ok {
		name, err := delegate(value)
		if err != nil {
			return "", false, err
		}
		if name != "" {
			return name, false, nil
		}
	} else if named, ok := value.(Named); ok && named.Name() != "" {
		return named.Name(), false, nil
	}
	t := actual
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = "external"
	}
	return name, true, nil
}

func (h *ExternalReferenceHandler) typeNameOf(value any) string {
	if v, ok := value.(Savable); ok {
		if name, ok := h.registry.TypeName(v); ok {
			return name
		}
	}
	return typeName(reflect.TypeOf(value))
}

// write runs on a worker. A failed write leaves the partial file behind.
func (h *ExternalReferenceHandler) write(file repository.ResourceFile, writer ExternalWriter, value any, pass *WritePass) error {
	w, err := file.Create()
	if err != nil {
		return core.NewContentError(fmt.Sprintf("write external %s", file.Name()), err)
	}
	if err := writer.WriteExternal(w, value, h, pass); err != nil {
		w.Close()
		return core.NewContentError(fmt.Sprintf("write external %s", file.Name()), err)
	}
	if err := w.Close(); err != nil {
		return core.NewContentError(fmt.Sprintf("write external %s", file.Name()), err)
	}
	core.MetricsAdd(core.MetricExternalWrites, 1)
	core.LogDebug("pass %s: wrote external '%s'", pass.ID, file.Name())
	return nil
}

// Flush waits for every queued write in the order they were queued and
// returns the first error. Writes detached by Clear are awaited too. It then
// closes the repository if the handler opened it. Calls from another
// goroutine than the creator, and re-entrant calls, do nothing.
func (h *ExternalReferenceHandler) Flush() error {
	if id := core.GoroutineID(); id != h.owner {
		core.LogWarn("external reference handler flushed from goroutine %d, owner is %d; ignored", id, h.owner)
		return nil
	}
	if !h.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer h.flushing.Store(false)

	h.mutex.Lock()
	core.LogDebug("pass %s: flushing %d writes", h.pass.ID, h.pending.Len())
	h.mutex.Unlock()

	var first error
	for {
		h.mutex.Lock()
		job, err := h.pending.Dequeue()
		var detached []*systems.Job
		if err != nil {
			detached, h.detached = h.detached, nil
		}
		h.mutex.Unlock()
		if err == nil {
			// Writes of nested externals are queued before their parent
			// finishes, so they are drained by this loop as well.
			if err := job.Wait(); err != nil && first == nil {
				first = err
			}
			continue
		}
		if len(detached) == 0 {
			break
		}
		// A cleared write may still queue nested writes, hence the next round.
		for _, job := range detached {
			if err := job.Wait(); err != nil {
				core.LogWarn("write of a cleared pass failed: %s", err.Error())
			}
		}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.ownsRepository {
		h.ownsRepository = false
		if h.repository.IsOpen() {
			if err := h.repository.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Clear starts a new pass. Writes still queued keep running; Flush waits for
// them before closing the repository but no longer reports their errors.
func (h *ExternalReferenceHandler) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if n := h.pending.Len(); n > 0 {
		core.LogWarn("pass %s cleared with %d writes pending", h.pass.ID, n)
	}
	for {
		job, err := h.pending.Dequeue()
		if err != nil {
			break
		}
		if !job.Done() {
			h.detached = append(h.detached, job)
		}
	}
	old := h.pass.ID
	h.pass = NewWritePass()
	core.LogDebug("pass %s replaced by %s", old, h.pass.ID)
}

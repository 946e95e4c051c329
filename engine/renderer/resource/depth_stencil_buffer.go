package resource

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/renderer/native"
)

/**
 * @brief Creation options of a depth stencil buffer.
 */
type DepthBufferOptions struct {
	Name string
	/** @brief Reference counted: render targets built against the buffer AddRef it and Release it on dispose. */
	Shareable bool
	/** @brief Back all logical slices with one native slice until the full array is bound. */
	OptimizeForSingleSurface bool
	/** @brief Also create a read-only depth stencil view. */
	ReadOnlyView bool
}

/**
 * @brief A depth stencil texture and its views. Either a root owning the
 * native texture or a sub-buffer scoped to one slice, cube or face of a root.
 */
type DepthStencilBuffer struct {
	device  native.Device
	shape   metadata.ResourceShape
	desc    metadata.TextureDescription
	options DepthBufferOptions

	name   string
	suffix string

	// -1 for roots.
	subResourceIndex int
	// Roots register themselves; sub-buffers keep the handle of their root.
	handle      core.Handle
	ownsTexture bool

	texture      native.Texture
	depthView    native.View
	readOnlyView native.View
	shaderView   native.View
	span         span

	refs atomic.Int32

	mutex      sync.Mutex
	optimized  bool
	subBuffers []*DepthStencilBuffer
	disposed   bool
}

// NewDepthStencilBuffer creates a root depth stencil buffer. desc.Format must
// be a depth and/or stencil format; 3D shapes are not allowed (see
// metadata.ShapeDescription.DepthShape).
func NewDepthStencilBuffer(device native.Device, shape metadata.ResourceShape, desc metadata.TextureDescription, options DepthBufferOptions) (*DepthStencilBuffer, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: depth stencil buffer requires a device", core.ErrInvalidArgument)
	}
	desc = desc.Normalized()
	desc.MipCount = 1
	if err := desc.Validate(shape); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
	}
	if metadata.DescribeShape(shape).Dimension == gputypes.TextureDimension3D {
		return nil, fmt.Errorf("%w: depth stencil buffers cannot be 3D", core.ErrInvalidArgument)
	}
	if !desc.Format.HasDepth() && !desc.Format.HasStencil() {
		return nil, fmt.Errorf("%w: %s is not a depth stencil format", core.ErrInvalidArgument, desc.Format)
	}

	db := &DepthStencilBuffer{
		device:           device,
		shape:            shape,
		desc:             desc,
		options:          options,
		name:             options.Name,
		subResourceIndex: -1,
		ownsTexture:      true,
		// Nothing to save when there is a single slice anyway.
		optimized: options.OptimizeForSingleSurface && shape.HasSubResources(),
	}
	if db.name == "" {
		db.name = fmt.Sprintf("DepthStencil%s-%s", shape, uuid.NewString()[:8])
	}
	if err := db.initialize(); err != nil {
		return nil, err
	}
	db.handle = core.IdentifierAquireNewID(db)
	core.LogDebug("created depth stencil buffer '%s' (%s %dx%d, %d slices, optimized=%t)",
		db.name, shape, desc.Width, desc.Height, db.span.count, db.optimized)
	return db, nil
}

// initialize creates the native texture and the root views, either for the
// full array or for the single shared surface while optimized.
func (db *DepthStencilBuffer) initialize() error {
	shape := db.shape
	if db.optimized {
		shape = shape.SingleSurface()
	}
	whole := rootSpan(shape, db.desc)
	if db.optimized {
		whole = span{0, 1}
	}

	set := nativeSet{device: db.device}
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	texture, err := set.texture(textureDescriptor(shape, db.desc, whole.count, usage))
	if err != nil {
		return err
	}
	views, err := db.createViews(&set, texture, viewDimensions[shape].target, viewDimensions[shape].shader, whole)
	if err != nil {
		set.release()
		return err
	}
	db.texture = texture
	db.depthView, db.readOnlyView, db.shaderView = views[0], views[1], views[2]
	db.span = whole
	db.applyDebugName()
	return nil
}

// createViews builds the depth stencil view, the optional read-only one and the
// shader resource view over s.
func (db *DepthStencilBuffer) createViews(set *nativeSet, texture native.Texture, target, shader native.ViewDimension, s span) ([3]native.View, error) {
	var views [3]native.View
	var err error
	desc := native.ViewDescription{
		Dimension:       target,
		Format:          db.desc.Format,
		MipLevels:       1,
		FirstArraySlice: s.first,
		ArraySize:       s.count,
	}
	if views[0], err = set.view(texture, native.ViewKindDepthStencil, desc); err != nil {
		return views, err
	}
	if db.options.ReadOnlyView {
		readOnly := desc
		readOnly.ReadOnly = true
		if views[1], err = set.view(texture, native.ViewKindDepthStencil, readOnly); err != nil {
			return views, err
		}
	}
	desc.Dimension = shader
	if views[2], err = set.view(texture, native.ViewKindShaderResource, desc); err != nil {
		return views, err
	}
	return views, nil
}

func (db *DepthStencilBuffer) applyDebugName() {
	if db.ownsTexture {
		setDebugName(db.name, db.texture)
	}
	setDebugName(db.name+".DSV", db.depthView)
	setDebugName(db.name+".ReadOnlyDSV", db.readOnlyView)
	setDebugName(db.name+".SRV", db.shaderView)
}

func (db *DepthStencilBuffer) Name() string {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.name
}

// SetName renames the buffer and its native objects. Materialized sub-buffers
// of a root are renamed after it.
func (db *DepthStencilBuffer) SetName(name string) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.name = name
	db.applyDebugName()
	for _, sub := range db.subBuffers {
		if sub != nil {
			sub.SetName(subName(name, sub.suffix))
		}
	}
}

func (db *DepthStencilBuffer) Shape() metadata.ResourceShape           { return db.shape }
func (db *DepthStencilBuffer) Description() metadata.TextureDescription { return db.desc }
func (db *DepthStencilBuffer) Format() gputypes.TextureFormat           { return db.desc.Format }
func (db *DepthStencilBuffer) SubResourceIndex() int                    { return db.subResourceIndex }
func (db *DepthStencilBuffer) IsShareable() bool                        { return db.options.Shareable }

func (db *DepthStencilBuffer) IsDisposed() bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.disposed
}

// IsOptimizedForSingleSurface reports whether the buffer still backs all its
// logical slices with one native slice. Always false for sub-buffers.
func (db *DepthStencilBuffer) IsOptimizedForSingleSurface() bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.optimized
}

// RefCount is the number of render targets currently sharing the buffer.
func (db *DepthStencilBuffer) RefCount() int {
	return int(db.refs.Load())
}

// Root returns the root buffer of a sub-buffer, or db itself.
func (db *DepthStencilBuffer) Root() (*DepthStencilBuffer, error) {
	if db.subResourceIndex < 0 {
		if db.IsDisposed() {
			return nil, fmt.Errorf("depth stencil buffer '%s': %w", db.Name(), core.ErrDisposed)
		}
		return db, nil
	}
	owner, ok := core.IdentifierLookup(db.handle)
	if !ok {
		return nil, fmt.Errorf("root of depth stencil buffer '%s': %w", db.Name(), core.ErrDisposed)
	}
	root, ok := owner.(*DepthStencilBuffer)
	if !ok {
		return nil, fmt.Errorf("root of depth stencil buffer '%s' is a %T: %w", db.Name(), owner, core.ErrInvalidArgument)
	}
	return root, nil
}

// AddRef registers one more user of a shareable root buffer and returns the
// new count.
func (db *DepthStencilBuffer) AddRef() (int, error) {
	if db.subResourceIndex >= 0 || !db.options.Shareable {
		return -1, fmt.Errorf("depth stencil buffer '%s': %w", db.Name(), core.ErrNotShareable)
	}
	if db.IsDisposed() {
		return -1, fmt.Errorf("depth stencil buffer '%s': %w", db.Name(), core.ErrDisposed)
	}
	return int(db.refs.Add(1)), nil
}

// Release drops one reference and disposes the buffer when none is left. It
// returns the remaining count, or -1 when the buffer is not shareable.
func (db *DepthStencilBuffer) Release() int {
	if db.subResourceIndex >= 0 || !db.options.Shareable {
		core.LogWarn("release of non shareable depth stencil buffer '%s' ignored", db.Name())
		return -1
	}
	n := db.refs.Add(-1)
	switch {
	case n == 0:
		db.Dispose()
	case n < 0:
		core.LogError("depth stencil buffer '%s' released more often than referenced (%d)", db.Name(), n)
	}
	return int(n)
}

// GetSubBuffer returns the sub-buffer of the given logical index, creating
// it on first request. It returns nil for sub-buffers, out of range indices,
// shapes without sub-resources and while the buffer is optimized for a single
// surface.
func (db *DepthStencilBuffer) GetSubBuffer(index int) *DepthStencilBuffer {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.subBufferLocked(index)
}

func (db *DepthStencilBuffer) subBufferLocked(index int) *DepthStencilBuffer {
	if db.subResourceIndex >= 0 || db.disposed || db.optimized {
		return nil
	}
	s, suffix, ok := subSpan(db.shape, db.desc.ArrayCount, index)
	if !ok {
		return nil
	}
	if db.subBuffers == nil {
		db.subBuffers = make([]*DepthStencilBuffer, db.shape.TotalSubResources(db.desc.ArrayCount))
	}
	if sub := db.subBuffers[index]; sub != nil {
		return sub
	}

	sub, err := db.newSubBuffer(index, s, suffix)
	if err != nil {
		core.LogError("depth stencil buffer '%s': sub-buffer %d: %v", db.name, index, err)
		return nil
	}
	db.subBuffers[index] = sub
	core.MetricsAdd(core.MetricSubViews, 1)
	core.LogDebug("materialized depth stencil sub-buffer '%s'", sub.name)
	return sub
}

func (db *DepthStencilBuffer) newSubBuffer(index int, s span, suffix string) (*DepthStencilBuffer, error) {
	subShape := metadata.DescribeShape(db.shape).SubShape
	desc := db.desc
	desc.ArrayCount = 1
	sub := &DepthStencilBuffer{
		device:           db.device,
		shape:            subShape,
		desc:             desc,
		options:          DepthBufferOptions{ReadOnlyView: db.options.ReadOnlyView},
		name:             subName(db.name, suffix),
		suffix:           suffix,
		subResourceIndex: index,
		handle:           db.handle,
		texture:          db.texture,
		span:             s,
	}
	set := nativeSet{device: db.device}
	dims := viewDimensions[db.shape]
	views, err := sub.createViews(&set, db.texture, dims.target, subShaderDimension(dims.shader), s)
	if err != nil {
		set.release()
		return nil, err
	}
	sub.depthView, sub.readOnlyView, sub.shaderView = views[0], views[1], views[2]
	sub.applyDebugName()
	return sub, nil
}

// SubBuffers returns the sub-buffers materialized so far.
func (db *DepthStencilBuffer) SubBuffers() []*DepthStencilBuffer {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	var subs []*DepthStencilBuffer
	for _, sub := range db.subBuffers {
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	return subs
}

// MakeOptimizedToFull rebuilds an optimized buffer with native storage for
// every slice. It is a no-op when the buffer is not optimized; the
// transition is one-way. It reports whether a rebuild happened.
func (db *DepthStencilBuffer) MakeOptimizedToFull() (bool, error) {
	db.mutex.Lock()
	if !db.optimized || db.disposed {
		db.mutex.Unlock()
		return false, nil
	}
	db.optimized = false
	db.releaseNatives()
	// No sub-buffer can exist while optimized; make sure none survives the rebuild.
	db.subBuffers = nil
	err := db.initialize()
	name, slices := db.name, db.span.count
	db.mutex.Unlock()

	if err != nil {
		return true, fmt.Errorf("expanding depth stencil buffer '%s': %w", name, err)
	}
	core.LogDebug("expanded depth stencil buffer '%s' to %d slices", name, slices)
	core.EventFire(core.EVENT_CODE_DEPTH_BUFFER_EXPANDED, db, core.EventContext{Data: name})
	return true, nil
}

// DepthStencilView returns the depth stencil view of a logical sub-resource
// index, or of the whole buffer for index < 0. While the buffer is optimized
// the single shared surface is returned for every index.
func (db *DepthStencilBuffer) DepthStencilView(index int) native.View {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if db.disposed {
		return nil
	}
	if index < 0 || db.optimized || db.subResourceIndex >= 0 {
		return db.depthView
	}
	if sub := db.subBufferLocked(index); sub != nil {
		return sub.depthView
	}
	return nil
}

func (db *DepthStencilBuffer) ReadOnlyView() native.View {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.readOnlyView
}

func (db *DepthStencilBuffer) ShaderResourceView() native.View {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.shaderView
}

func (db *DepthStencilBuffer) Texture() native.Texture {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.texture
}

// Clear clears the depth and/or stencil planes selected by options. Flags for
// planes the format does not have are ignored.
func (db *DepthStencilBuffer) Clear(options metadata.ClearOptions, depth float32, stencil uint8) error {
	db.mutex.Lock()
	view := db.depthView
	disposed := db.disposed
	db.mutex.Unlock()
	if disposed {
		return fmt.Errorf("clear depth stencil buffer '%s': %w", db.Name(), core.ErrDisposed)
	}
	clearDepth := options.Has(metadata.ClearDepth) && db.desc.Format.HasDepth()
	clearStencil := options.Has(metadata.ClearStencil) && db.desc.Format.HasStencil()
	if !clearDepth && !clearStencil {
		return nil
	}
	db.device.ImmediateContext().ClearDepthStencilView(view, clearDepth, clearStencil, depth, stencil)
	return nil
}

// Dispose releases the native objects. For a root this destroys the texture
// and every materialized sub-buffer; a sub-buffer only releases its own views.
// Shareable buffers are normally disposed by their last Release.
func (db *DepthStencilBuffer) Dispose() {
	db.mutex.Lock()
	if db.disposed {
		db.mutex.Unlock()
		return
	}
	db.disposed = true
	subs := db.subBuffers
	db.subBuffers = nil
	db.mutex.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Dispose()
		}
	}

	db.mutex.Lock()
	db.releaseNatives()
	name := db.name
	db.mutex.Unlock()

	if db.subResourceIndex >= 0 {
		return
	}
	if n := db.refs.Load(); db.options.Shareable && n > 0 {
		core.LogWarn("depth stencil buffer '%s' disposed with %d references left", name, n)
	}
	if err := core.IdentifierReleaseID(db.handle); err != nil {
		core.LogError("depth stencil buffer '%s': %v", name, err)
	}
	core.LogDebug("disposed depth stencil buffer '%s'", name)
	core.EventFire(core.EVENT_CODE_RESOURCE_DISPOSED, db, core.EventContext{Data: name})
}

// releaseNatives releases the views, and the texture when owned.
func (db *DepthStencilBuffer) releaseNatives() {
	releaseView(&db.depthView)
	releaseView(&db.readOnlyView)
	releaseView(&db.shaderView)
	if db.ownsTexture {
		releaseTexture(&db.texture)
	} else {
		db.texture = nil
	}
}

// resolveDepthBuffer extracts the root of a buffer a render target is built
// against and checks it can be shared.
func resolveDepthBuffer(db *DepthStencilBuffer) (*DepthStencilBuffer, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil depth stencil buffer", core.ErrInvalidArgument)
	}
	root, err := db.Root()
	if err != nil {
		return nil, err
	}
	if !root.options.Shareable {
		return nil, fmt.Errorf("depth stencil buffer '%s': %w", root.Name(), core.ErrNotShareable)
	}
	return root, nil
}

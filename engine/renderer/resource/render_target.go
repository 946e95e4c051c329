// Package resource models render targets and depth stencil buffers as trees
// of views over native textures.
//
// A root owns its native texture. Sub-views (one array slice, one cube or one
// cube face of a root) are created on first request, memoized, and borrow the
// root's texture. Depth stencil buffers can be shared by several render
// targets through reference counting, and can start out backed by a single
// native slice until the full array is first bound.
package resource

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/renderer/native"
)

/**
 * @brief Creation options of a render target.
 */
type RenderTargetOptions struct {
	Name string
	/** @brief Build the target against this existing shareable depth buffer (or the root of this sub-buffer). */
	DepthBuffer *DepthStencilBuffer
	/** @brief Create a companion depth buffer when DepthBuffer is nil. */
	CreateDepthBuffer bool
	/** @brief Format of the companion depth buffer. Defaults to Depth24PlusStencil8. */
	DepthFormat gputypes.TextureFormat
	/** @brief Create the companion depth buffer optimized for a single surface. */
	OptimizeDepthForSingleSurface bool
	/** @brief Give the companion depth buffer a read-only view. */
	ReadOnlyDepthView bool
}

/**
 * @brief A color render target: either a root owning its native texture or
 * a sub-view of one slice, cube or cube face of a root.
 */
type RenderTarget struct {
	device native.Device
	shape  metadata.ResourceShape
	desc   metadata.TextureDescription

	name   string
	suffix string

	// -1 for roots.
	subResourceIndex int
	// Roots register themselves; sub-views keep the handle of their root.
	handle      core.Handle
	ownsTexture bool

	texture        native.Texture
	resolveTexture native.Texture
	targetView     native.View
	shaderView     native.View
	span           span

	// Only set on roots. Sub-views find the depth stencil view through their
	// root at call time.
	depth *DepthStencilBuffer

	mutex      sync.Mutex
	subTargets []*RenderTarget
	disposed   bool
}

// NewRenderTarget creates a root render target of any shape.
func NewRenderTarget(device native.Device, shape metadata.ResourceShape, desc metadata.TextureDescription, options RenderTargetOptions) (*RenderTarget, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: render target requires a device", core.ErrInvalidArgument)
	}
	desc = desc.Normalized()
	if err := desc.Validate(shape); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
	}
	if !metadata.DescribeShape(shape).SupportsMips && desc.MipCount > 1 && !desc.Multisample.ResolveShaderResource {
		return nil, fmt.Errorf("%w: %s render targets only have mips on their resolve texture", core.ErrInvalidArgument, shape)
	}
	if desc.Format.IsDepthStencil() {
		return nil, fmt.Errorf("%w: %s is a depth stencil format", core.ErrInvalidArgument, desc.Format)
	}

	var shared *DepthStencilBuffer
	if options.DepthBuffer != nil {
		root, err := resolveDepthBuffer(options.DepthBuffer)
		if err != nil {
			return nil, err
		}
		if d := root.Description(); d.Width != desc.Width || d.Height != desc.Height {
			return nil, fmt.Errorf("%w: depth stencil buffer '%s' is %dx%d, render target is %dx%d",
				core.ErrInvalidArgument, root.Name(), d.Width, d.Height, desc.Width, desc.Height)
		}
		shared = root
	}

	rt := &RenderTarget{
		device:           device,
		shape:            shape,
		desc:             desc,
		name:             options.Name,
		subResourceIndex: -1,
		ownsTexture:      true,
	}
	if rt.name == "" {
		rt.name = fmt.Sprintf("RenderTarget%s-%s", shape, uuid.NewString()[:8])
	}

	set := nativeSet{device: device}
	if err := rt.initialize(&set); err != nil {
		set.release()
		return nil, err
	}

	switch {
	case shared != nil:
		if _, err := shared.AddRef(); err != nil {
			set.release()
			return nil, err
		}
		rt.depth = shared
	case options.CreateDepthBuffer:
		depth, err := rt.createDepthBuffer(options)
		if err != nil {
			set.release()
			return nil, err
		}
		rt.depth = depth
	}

	rt.handle = core.IdentifierAquireNewID(rt)
	rt.applyDebugName()
	core.LogDebug("created render target '%s' (%s %dx%dx%d, %d slices, %d mips, %d samples)",
		rt.name, shape, desc.Width, desc.Height, desc.Depth, rt.span.count, desc.MipCount, desc.Multisample.Count)
	return rt, nil
}

// NewRenderTarget1D creates a 1D render target, or a 1D array when arrayCount > 1.
func NewRenderTarget1D(device native.Device, width uint32, arrayCount, mipCount int, format gputypes.TextureFormat, options RenderTargetOptions) (*RenderTarget, error) {
	shape := metadata.Shape1D
	if arrayCount > 1 {
		shape = metadata.Shape1DArray
	}
	return NewRenderTarget(device, shape, metadata.TextureDescription{
		Width: width, ArrayCount: arrayCount, MipCount: mipCount, Format: format,
	}, options)
}

// NewRenderTarget2D creates a 2D render target. arrayCount > 1 selects an
// array shape and a multisampled description a multisampled one.
func NewRenderTarget2D(device native.Device, width, height uint32, arrayCount, mipCount int, format gputypes.TextureFormat, multisample metadata.MultisampleDescription, options RenderTargetOptions) (*RenderTarget, error) {
	shape := metadata.Shape2D
	switch {
	case multisample.IsMultisampled() && arrayCount > 1:
		shape = metadata.Shape2DMSArray
	case multisample.IsMultisampled():
		shape = metadata.Shape2DMS
	case arrayCount > 1:
		shape = metadata.Shape2DArray
	}
	return NewRenderTarget(device, shape, metadata.TextureDescription{
		Width: width, Height: height, ArrayCount: arrayCount, MipCount: mipCount, Format: format, Multisample: multisample,
	}, options)
}

// NewRenderTargetCube creates a cube render target of size x size faces, or a
// cube array when arrayCount > 1.
func NewRenderTargetCube(device native.Device, size uint32, arrayCount, mipCount int, format gputypes.TextureFormat, multisample metadata.MultisampleDescription, options RenderTargetOptions) (*RenderTarget, error) {
	shape := metadata.ShapeCube
	switch {
	case multisample.IsMultisampled() && arrayCount > 1:
		shape = metadata.ShapeCubeMSArray
	case multisample.IsMultisampled():
		shape = metadata.ShapeCubeMS
	case arrayCount > 1:
		shape = metadata.ShapeCubeArray
	}
	return NewRenderTarget(device, shape, metadata.TextureDescription{
		Width: size, Height: size, ArrayCount: arrayCount, MipCount: mipCount, Format: format, Multisample: multisample,
	}, options)
}

// NewRenderTarget3D creates a volume render target. Its companion depth buffer
// is a 2D array with one slice per W slice.
func NewRenderTarget3D(device native.Device, width, height, depth uint32, mipCount int, format gputypes.TextureFormat, options RenderTargetOptions) (*RenderTarget, error) {
	return NewRenderTarget(device, metadata.Shape3D, metadata.TextureDescription{
		Width: width, Height: height, Depth: depth, MipCount: mipCount, Format: format,
	}, options)
}

// NewRenderTargetWithDepthBuffer creates a root render target sharing an
// existing depth buffer. A sub-buffer is replaced by its root.
func NewRenderTargetWithDepthBuffer(device native.Device, shape metadata.ResourceShape, desc metadata.TextureDescription, depth *DepthStencilBuffer, name string) (*RenderTarget, error) {
	if depth == nil {
		return nil, fmt.Errorf("%w: render target requires a depth stencil buffer", core.ErrInvalidArgument)
	}
	return NewRenderTarget(device, shape, desc, RenderTargetOptions{Name: name, DepthBuffer: depth})
}

// initialize creates the native texture, the optional resolve texture and the
// root views.
func (rt *RenderTarget) initialize(set *nativeSet) error {
	d := metadata.DescribeShape(rt.shape)
	whole := rootSpan(rt.shape, rt.desc)
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	texture, err := set.texture(textureDescriptor(rt.shape, rt.desc, whole.count, usage))
	if err != nil {
		return err
	}

	shaderSource, shaderShape, shaderMips := texture, rt.shape, 1
	if !d.Multisampled {
		shaderMips = rt.desc.MipCount
	}
	var resolve native.Texture
	if d.Multisampled && rt.desc.Multisample.ResolveShaderResource {
		resolveUsage := usage | gputypes.TextureUsageCopyDst
		if resolve, err = set.texture(textureDescriptor(d.ResolveShape, rt.desc, whole.count, resolveUsage)); err != nil {
			return err
		}
		shaderSource, shaderShape, shaderMips = resolve, d.ResolveShape, rt.desc.MipCount
	}

	target, err := set.view(texture, native.ViewKindRenderTarget, native.ViewDescription{
		Dimension:       viewDimensions[rt.shape].target,
		Format:          rt.desc.Format,
		MipLevels:       1,
		FirstArraySlice: whole.first,
		ArraySize:       whole.count,
	})
	if err != nil {
		return err
	}
	shader, err := set.view(shaderSource, native.ViewKindShaderResource, native.ViewDescription{
		Dimension:       viewDimensions[shaderShape].shader,
		Format:          rt.desc.Format,
		MipLevels:       shaderMips,
		FirstArraySlice: whole.first,
		ArraySize:       whole.count,
	})
	if err != nil {
		return err
	}

	rt.texture, rt.resolveTexture = texture, resolve
	rt.targetView, rt.shaderView = target, shader
	rt.span = whole
	return nil
}

func (rt *RenderTarget) createDepthBuffer(options RenderTargetOptions) (*DepthStencilBuffer, error) {
	format := options.DepthFormat
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatDepth24PlusStencil8
	}
	desc := metadata.TextureDescription{
		Width:       rt.desc.Width,
		Height:      rt.desc.Height,
		ArrayCount:  rt.desc.ArrayCount,
		Format:      format,
		Multisample: rt.desc.Multisample,
	}
	shape := metadata.DescribeShape(rt.shape).DepthShape
	if rt.shape == metadata.Shape3D {
		desc.ArrayCount = int(rt.desc.Depth)
		if desc.ArrayCount == 1 {
			shape = metadata.Shape2D
		}
	}
	depth, err := NewDepthStencilBuffer(rt.device, shape, desc, DepthBufferOptions{
		Name:                     rt.name + ".DepthStencil",
		Shareable:                true,
		OptimizeForSingleSurface: options.OptimizeDepthForSingleSurface,
		ReadOnlyView:             options.ReadOnlyDepthView,
	})
	if err != nil {
		return nil, err
	}
	if _, err := depth.AddRef(); err != nil {
		depth.Dispose()
		return nil, err
	}
	return depth, nil
}

func (rt *RenderTarget) applyDebugName() {
	if rt.ownsTexture {
		setDebugName(rt.name, rt.texture)
		setDebugName(rt.name+".Resolve", rt.resolveTexture)
	}
	setDebugName(rt.name+".RTV", rt.targetView)
	setDebugName(rt.name+".SRV", rt.shaderView)
}

func (rt *RenderTarget) Name() string {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.name
}

// SetName renames the target and its native objects. Materialized sub-views of
// a root are renamed after it; a companion depth buffer is not.
func (rt *RenderTarget) SetName(name string) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	rt.name = name
	rt.applyDebugName()
	for _, sub := range rt.subTargets {
		if sub != nil {
			sub.SetName(subName(name, sub.suffix))
		}
	}
}

func (rt *RenderTarget) Shape() metadata.ResourceShape           { return rt.shape }
func (rt *RenderTarget) Description() metadata.TextureDescription { return rt.desc }
func (rt *RenderTarget) Format() gputypes.TextureFormat           { return rt.desc.Format }
func (rt *RenderTarget) SubResourceIndex() int                    { return rt.subResourceIndex }
func (rt *RenderTarget) IsSubView() bool                          { return rt.subResourceIndex >= 0 }
func (rt *RenderTarget) Texture() native.Texture                  { return rt.texture }
func (rt *RenderTarget) ResolveTexture() native.Texture           { return rt.resolveTexture }

func (rt *RenderTarget) RenderTargetView() native.View {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.targetView
}

// ShaderResourceView reads the resolve texture when there is one.
func (rt *RenderTarget) ShaderResourceView() native.View {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.shaderView
}

func (rt *RenderTarget) IsDisposed() bool {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.disposed
}

// Root returns the root of a sub-view, or rt itself.
func (rt *RenderTarget) Root() (*RenderTarget, error) {
	if rt.subResourceIndex < 0 {
		if rt.IsDisposed() {
			return nil, fmt.Errorf("render target '%s': %w", rt.Name(), core.ErrDisposed)
		}
		return rt, nil
	}
	owner, ok := core.IdentifierLookup(rt.handle)
	if !ok {
		return nil, fmt.Errorf("root of render target '%s': %w", rt.Name(), core.ErrDisposed)
	}
	root, ok := owner.(*RenderTarget)
	if !ok {
		return nil, fmt.Errorf("root of render target '%s' is a %T: %w", rt.Name(), owner, core.ErrInvalidArgument)
	}
	return root, nil
}

// DepthBuffer returns the depth buffer of the root, nil when there is none or
// the root is gone.
func (rt *RenderTarget) DepthBuffer() *DepthStencilBuffer {
	root, err := rt.Root()
	if err != nil {
		return nil
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	return root.depth
}

// depthTarget returns the depth buffer a Clear of rt clears: the root's buffer
// for roots and, for sub-views, the shared surface of an optimized buffer or
// the matching sub-buffer.
func (rt *RenderTarget) depthTarget() *DepthStencilBuffer {
	db := rt.DepthBuffer()
	if db == nil || rt.subResourceIndex < 0 || db.IsOptimizedForSingleSurface() {
		return db
	}
	return db.GetSubBuffer(rt.subResourceIndex)
}

// DepthStencilView returns the depth stencil view to bind along with rt. It is
// looked up on every call so views rebuilt by an expansion are never stale.
func (rt *RenderTarget) DepthStencilView() native.View {
	db := rt.DepthBuffer()
	if db == nil {
		return nil
	}
	return db.DepthStencilView(rt.subResourceIndex)
}

// GetSubRenderTarget returns the sub-view of the given logical index, creating
// it on first request. Cube arrays are indexed by cube, single cubes by face,
// other arrays by slice. It returns nil for sub-views, out of range indices
// and shapes without sub-resources.
func (rt *RenderTarget) GetSubRenderTarget(index int) *RenderTarget {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	if rt.subResourceIndex >= 0 || rt.disposed {
		return nil
	}
	s, suffix, ok := subSpan(rt.shape, rt.desc.ArrayCount, index)
	if !ok {
		return nil
	}
	if rt.subTargets == nil {
		rt.subTargets = make([]*RenderTarget, rt.shape.TotalSubResources(rt.desc.ArrayCount))
	}
	if sub := rt.subTargets[index]; sub != nil {
		return sub
	}

	sub, err := rt.newSubRenderTarget(index, s, suffix)
	if err != nil {
		core.LogError("render target '%s': sub-view %d: %v", rt.name, index, err)
		return nil
	}
	rt.subTargets[index] = sub
	core.MetricsAdd(core.MetricSubViews, 1)
	core.LogDebug("materialized render target sub-view '%s' (slices [%d, %d))", sub.name, s.first, s.first+s.count)
	return sub
}

func (rt *RenderTarget) newSubRenderTarget(index int, s span, suffix string) (*RenderTarget, error) {
	desc := rt.desc
	desc.ArrayCount = 1
	sub := &RenderTarget{
		device:           rt.device,
		shape:            metadata.DescribeShape(rt.shape).SubShape,
		desc:             desc,
		name:             subName(rt.name, suffix),
		suffix:           suffix,
		subResourceIndex: index,
		handle:           rt.handle,
		texture:          rt.texture,
		resolveTexture:   rt.resolveTexture,
		span:             s,
	}

	set := nativeSet{device: rt.device}
	target, err := set.view(rt.texture, native.ViewKindRenderTarget, native.ViewDescription{
		Dimension:       viewDimensions[rt.shape].target,
		Format:          rt.desc.Format,
		MipLevels:       1,
		FirstArraySlice: s.first,
		ArraySize:       s.count,
	})
	if err != nil {
		return nil, err
	}
	parentShader := rt.shaderView.Description()
	shader, err := set.view(rt.shaderView.Texture(), native.ViewKindShaderResource, native.ViewDescription{
		Dimension:       subShaderDimension(parentShader.Dimension),
		Format:          rt.desc.Format,
		MipLevels:       parentShader.MipLevels,
		FirstArraySlice: s.first,
		ArraySize:       s.count,
	})
	if err != nil {
		set.release()
		return nil, err
	}
	sub.targetView, sub.shaderView = target, shader
	sub.applyDebugName()
	return sub, nil
}

// SubRenderTargets returns the sub-views materialized so far, in index order.
func (rt *RenderTarget) SubRenderTargets() []*RenderTarget {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	var subs []*RenderTarget
	for _, sub := range rt.subTargets {
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	return subs
}

// NotifyOnFirstBind is called by the pipeline when a root that was not bound
// before gets bound. An optimized depth buffer is expanded to its full array
// since the whole target is about to be rendered to.
func (rt *RenderTarget) NotifyOnFirstBind() error {
	if rt.subResourceIndex >= 0 {
		return nil
	}
	db := rt.DepthBuffer()
	if db == nil || !db.IsOptimizedForSingleSurface() {
		return nil
	}
	_, err := db.MakeOptimizedToFull()
	return err
}

// ResolveResource copies the multisampled texture into the resolve texture
// and regenerates its mip chain. A root resolves all of its native slices, a
// sub-view only its own. Without a resolve texture nothing happens.
func (rt *RenderTarget) ResolveResource(ctx native.Context) error {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	if rt.disposed {
		return fmt.Errorf("resolve render target '%s': %w", rt.name, core.ErrDisposed)
	}
	if rt.resolveTexture == nil {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("%w: resolve render target '%s' without a context", core.ErrInvalidArgument, rt.name)
	}
	mips := rt.desc.MipCount
	for slice := rt.span.first; slice < rt.span.first+rt.span.count; slice++ {
		ctx.ResolveSubresource(rt.resolveTexture, native.CalcSubresource(0, slice, mips),
			rt.texture, native.CalcSubresource(0, slice, 1), rt.desc.Format)
	}
	core.MetricsAdd(core.MetricResolves, int64(rt.span.count))
	if mips > 1 {
		ctx.GenerateMips(rt.shaderView)
	}
	return nil
}

// Clear clears the color view and, through the depth buffer, the depth and
// stencil planes selected by options.
func (rt *RenderTarget) Clear(options metadata.ClearOptions, color gputypes.Color, depth float32, stencil uint8) error {
	rt.mutex.Lock()
	view, disposed, name := rt.targetView, rt.disposed, rt.name
	rt.mutex.Unlock()
	if disposed {
		return fmt.Errorf("clear render target '%s': %w", name, core.ErrDisposed)
	}

	if options.Has(metadata.ClearTarget) {
		rt.device.ImmediateContext().ClearRenderTargetView(view, color)
	}
	if !options.Has(metadata.ClearDepth) && !options.Has(metadata.ClearStencil) {
		return nil
	}
	if db := rt.depthTarget(); db != nil {
		return db.Clear(options, depth, stencil)
	}
	return nil
}

// Dispose releases the native objects. A root destroys its textures, disposes
// its materialized sub-views and releases its depth buffer; a sub-view only
// releases its own views. Calling it again is a no-op.
func (rt *RenderTarget) Dispose() {
	rt.mutex.Lock()
	if rt.disposed {
		rt.mutex.Unlock()
		return
	}
	rt.disposed = true
	subs := rt.subTargets
	rt.subTargets = nil
	depth := rt.depth
	rt.depth = nil
	rt.mutex.Unlock()

	// Sub-views borrow the texture, so they go first.
	for _, sub := range subs {
		if sub != nil {
			sub.Dispose()
		}
	}

	rt.mutex.Lock()
	releaseView(&rt.targetView)
	releaseView(&rt.shaderView)
	if rt.ownsTexture {
		releaseTexture(&rt.resolveTexture)
		releaseTexture(&rt.texture)
	} else {
		rt.resolveTexture, rt.texture = nil, nil
	}
	name := rt.name
	rt.mutex.Unlock()

	if rt.subResourceIndex >= 0 {
		return
	}
	if depth != nil {
		depth.Release()
	}
	if err := core.IdentifierReleaseID(rt.handle); err != nil {
		core.LogError("render target '%s': %v", name, err)
	}
	core.LogDebug("disposed render target '%s'", name)
	core.EventFire(core.EVENT_CODE_RESOURCE_DISPOSED, rt, core.EventContext{Data: name})
}

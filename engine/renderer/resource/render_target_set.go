package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/renderer/native"
)

/**
 * @brief Render targets of the same shape and size bound together (multiple
 * render targets) and sharing one depth stencil buffer.
 */
type RenderTargetSet struct {
	targets []*RenderTarget
	depth   *DepthStencilBuffer
}

// NewRenderTargetSet creates one render target per format. The depth buffer
// comes from options like for a single target: options.DepthBuffer is shared,
// or a companion one is created with the first target and shared by the others.
func NewRenderTargetSet(device native.Device, shape metadata.ResourceShape, desc metadata.TextureDescription, formats []gputypes.TextureFormat, options RenderTargetOptions) (*RenderTargetSet, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: render target set without formats", core.ErrInvalidArgument)
	}
	name := options.Name
	if name == "" {
		name = "RenderTargetSet"
	}

	set := &RenderTargetSet{}
	for i, format := range formats {
		d := desc
		d.Format = format
		o := options
		o.Name = fmt.Sprintf("%s.%d", name, i)
		if set.depth != nil {
			o.DepthBuffer = set.depth
			o.CreateDepthBuffer = false
		}
		rt, err := NewRenderTarget(device, shape, d, o)
		if err != nil {
			set.Dispose()
			return nil, fmt.Errorf("render target set '%s' target %d: %w", name, i, err)
		}
		set.targets = append(set.targets, rt)
		if set.depth == nil {
			set.depth = rt.DepthBuffer()
		}
	}
	return set, nil
}

func (s *RenderTargetSet) Len() int                         { return len(s.targets) }
func (s *RenderTargetSet) Target(i int) *RenderTarget       { return s.targets[i] }
func (s *RenderTargetSet) Targets() []*RenderTarget         { return s.targets }
func (s *RenderTargetSet) DepthBuffer() *DepthStencilBuffer { return s.depth }

// RenderTargetViews returns the color views in binding order.
func (s *RenderTargetSet) RenderTargetViews() []native.View {
	views := make([]native.View, len(s.targets))
	for i, rt := range s.targets {
		views[i] = rt.RenderTargetView()
	}
	return views
}

// NotifyOnFirstBind expands the shared depth buffer when it is optimized.
func (s *RenderTargetSet) NotifyOnFirstBind() error {
	if len(s.targets) == 0 {
		return nil
	}
	return s.targets[0].NotifyOnFirstBind()
}

func (s *RenderTargetSet) ResolveResource(ctx native.Context) error {
	var errs []error
	for _, rt := range s.targets {
		errs = append(errs, rt.ResolveResource(ctx))
	}
	return errors.Join(errs...)
}

// Clear clears every color target and the shared depth buffer once.
func (s *RenderTargetSet) Clear(options metadata.ClearOptions, color gputypes.Color, depth float32, stencil uint8) error {
	var errs []error
	for _, rt := range s.targets {
		errs = append(errs, rt.Clear(options&metadata.ClearTarget, color, depth, stencil))
	}
	if s.depth != nil && (options.Has(metadata.ClearDepth) || options.Has(metadata.ClearStencil)) {
		errs = append(errs, s.depth.Clear(options, depth, stencil))
	}
	return errors.Join(errs...)
}

// Dispose disposes every target; the last one releases the shared depth buffer.
func (s *RenderTargetSet) Dispose() {
	for _, rt := range s.targets {
		rt.Dispose()
	}
	s.targets = nil
	s.depth = nil
}

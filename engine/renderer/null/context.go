package null

import (
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/spark/engine/renderer/native"
)

type ResolveCall struct {
	Dst            *Texture
	DstSubresource int
	Src            *Texture
	SrcSubresource int
	Format         gputypes.TextureFormat
}

type ClearCall struct {
	View    *View
	Color   gputypes.Color
	Depth   float32
	Stencil uint8
	// ClearDepth and ClearStencil are only meaningful for depth stencil views.
	ClearDepth   bool
	ClearStencil bool
}

// Context is a recording native.Context.
type Context struct {
	device   *Device
	mutex    sync.Mutex
	resolves []ResolveCall
	mips     []*View
	clears   []ClearCall
}

func (c *Context) ResolveSubresource(dst native.Texture, dstSubresource int, src native.Texture, srcSubresource int, format gputypes.TextureFormat) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	d, _ := dst.(*Texture)
	s, _ := src.(*Texture)
	c.resolves = append(c.resolves, ResolveCall{Dst: d, DstSubresource: dstSubresource, Src: s, SrcSubresource: srcSubresource, Format: format})
}

func (c *Context) GenerateMips(srv native.View) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, _ := srv.(*View)
	c.mips = append(c.mips, v)
}

func (c *Context) ClearRenderTargetView(rtv native.View, color gputypes.Color) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, _ := rtv.(*View)
	c.clears = append(c.clears, ClearCall{View: v, Color: color})
}

func (c *Context) ClearDepthStencilView(dsv native.View, clearDepth, clearStencil bool, depth float32, stencil uint8) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, _ := dsv.(*View)
	c.clears = append(c.clears, ClearCall{View: v, Depth: depth, Stencil: stencil, ClearDepth: clearDepth, ClearStencil: clearStencil})
}

func (c *Context) Resolves() []ResolveCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]ResolveCall(nil), c.resolves...)
}

func (c *Context) GeneratedMips() []*View {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]*View(nil), c.mips...)
}

func (c *Context) Clears() []ClearCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]ClearCall(nil), c.clears...)
}

// Reset forgets every recorded call.
func (c *Context) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.resolves = nil
	c.mips = nil
	c.clears = nil
}

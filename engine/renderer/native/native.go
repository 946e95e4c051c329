// Package native describes the graphics API the render resources are built on.
//
// The resource package never talks to a driver directly: it creates textures
// and views through a Device and records work on a Context. Backends (the
// Direct3D11 one, or the null device used by tests and tools) implement these
// interfaces.
package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ViewDimension is the dimension a view interprets its texture with.
type ViewDimension uint8

const (
	ViewDimensionUnknown ViewDimension = iota
	ViewDimensionTexture1D
	ViewDimensionTexture1DArray
	ViewDimensionTexture2D
	ViewDimensionTexture2DArray
	ViewDimensionTexture2DMS
	ViewDimensionTexture2DMSArray
	ViewDimensionTexture3D
	ViewDimensionTextureCube
	ViewDimensionTextureCubeArray
)

var viewDimensionNames = [...]string{"Unknown", "Texture1D", "Texture1DArray", "Texture2D", "Texture2DArray",
	"Texture2DMS", "Texture2DMSArray", "Texture3D", "TextureCube", "TextureCubeArray"}

func (d ViewDimension) String() string {
	if int(d) >= len(viewDimensionNames) {
		return fmt.Sprintf("ViewDimension(%d)", d)
	}
	return viewDimensionNames[d]
}

// IsArray reports whether views of this dimension address a range of array slices.
func (d ViewDimension) IsArray() bool {
	switch d {
	case ViewDimensionTexture1DArray, ViewDimensionTexture2DArray, ViewDimensionTexture2DMSArray, ViewDimensionTextureCubeArray:
		return true
	}
	return false
}

// ViewKind is the pipeline stage a view binds to.
type ViewKind uint8

const (
	ViewKindRenderTarget ViewKind = iota
	ViewKindDepthStencil
	ViewKindShaderResource
)

func (k ViewKind) String() string {
	switch k {
	case ViewKindRenderTarget:
		return "RenderTargetView"
	case ViewKindDepthStencil:
		return "DepthStencilView"
	case ViewKindShaderResource:
		return "ShaderResourceView"
	}
	return fmt.Sprintf("ViewKind(%d)", k)
}

// TextureDescription describes a native texture. Size.DepthOrArrayLayers is
// the depth of 3D textures and the native array slice count otherwise.
type TextureDescription struct {
	gputypes.TextureDescriptor
	SampleQuality uint32
	// Cube marks 2D array textures whose slices are grouped in cube faces.
	Cube bool
}

// ViewDescription selects the part of a texture a view sees. For 3D render
// target views FirstArraySlice and ArraySize address W slices.
type ViewDescription struct {
	Dimension       ViewDimension
	Format          gputypes.TextureFormat
	MostDetailedMip int
	MipLevels       int
	FirstArraySlice int
	ArraySize       int
	// ReadOnly marks depth stencil views that can be bound while the same
	// texture is read by shaders.
	ReadOnly bool
}

// Texture is a native texture handle. Release destroys it.
type Texture interface {
	Description() TextureDescription
	SetDebugName(name string)
	Release()
}

// View is a native render target, depth stencil or shader resource view.
// Releasing a view never releases its texture.
type View interface {
	Kind() ViewKind
	Texture() Texture
	Description() ViewDescription
	SetDebugName(name string)
	Release()
}

// Device creates native resources. Creation can fail (unsupported format,
// out of memory) and is never retried by callers.
type Device interface {
	CreateTexture(desc TextureDescription) (Texture, error)
	CreateView(tex Texture, kind ViewKind, desc ViewDescription) (View, error)
	ImmediateContext() Context
}

// Context records commands against native resources.
type Context interface {
	ResolveSubresource(dst Texture, dstSubresource int, src Texture, srcSubresource int, format gputypes.TextureFormat)
	GenerateMips(srv View)
	ClearRenderTargetView(rtv View, color gputypes.Color)
	ClearDepthStencilView(dsv View, clearDepth, clearStencil bool, depth float32, stencil uint8)
}

// CalcSubresource returns the subresource index of a mip level of an array slice.
func CalcSubresource(mipSlice, arraySlice, mipLevels int) int {
	return mipSlice + arraySlice*mipLevels
}

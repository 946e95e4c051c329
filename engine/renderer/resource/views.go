package resource

import (
	"fmt"
	"strconv"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/renderer/native"
)

// Native view dimensions per shape. Render target and depth stencil views
// cannot be cubes, so cube shapes are addressed as 2D arrays of faces.
var viewDimensions = [...]struct {
	target native.ViewDimension
	shader native.ViewDimension
}{
	metadata.Shape1D:          {native.ViewDimensionTexture1D, native.ViewDimensionTexture1D},
	metadata.Shape1DArray:     {native.ViewDimensionTexture1DArray, native.ViewDimensionTexture1DArray},
	metadata.Shape2D:          {native.ViewDimensionTexture2D, native.ViewDimensionTexture2D},
	metadata.Shape2DArray:     {native.ViewDimensionTexture2DArray, native.ViewDimensionTexture2DArray},
	metadata.Shape2DMS:        {native.ViewDimensionTexture2DMS, native.ViewDimensionTexture2DMS},
	metadata.Shape2DMSArray:   {native.ViewDimensionTexture2DMSArray, native.ViewDimensionTexture2DMSArray},
	metadata.ShapeCube:        {native.ViewDimensionTexture2DArray, native.ViewDimensionTextureCube},
	metadata.ShapeCubeArray:   {native.ViewDimensionTexture2DArray, native.ViewDimensionTextureCubeArray},
	metadata.ShapeCubeMS:      {native.ViewDimensionTexture2DMSArray, native.ViewDimensionTexture2DMSArray},
	metadata.ShapeCubeMSArray: {native.ViewDimensionTexture2DMSArray, native.ViewDimensionTexture2DMSArray},
	metadata.Shape3D:          {native.ViewDimensionTexture3D, native.ViewDimensionTexture3D},
}

// subShaderDimension narrows the shader view dimension of a root to one
// sub-view. A single cube face is no longer a cube, and one cube of a cube
// array is a plain cube.
func subShaderDimension(parent native.ViewDimension) native.ViewDimension {
	switch parent {
	case native.ViewDimensionTextureCube:
		return native.ViewDimensionTexture2DArray
	case native.ViewDimensionTextureCubeArray:
		return native.ViewDimensionTextureCube
	}
	return parent
}

// span is the range of native array slices (W slices for 3D) a view covers.
type span struct {
	first int
	count int
}

// rootSpan covers the whole texture.
func rootSpan(shape metadata.ResourceShape, desc metadata.TextureDescription) span {
	if shape == metadata.Shape3D {
		return span{0, int(desc.Depth)}
	}
	return span{0, shape.NativeSlices(desc.ArrayCount)}
}

// subSpan maps a logical sub-view index of a root to native slices and to the
// suffix of the sub-view name. The bool is false when index addresses no
// sub-view of the root.
func subSpan(shape metadata.ResourceShape, arrayCount, index int) (span, string, bool) {
	total := shape.TotalSubResources(arrayCount)
	if index < 0 || index >= total {
		return span{}, "", false
	}
	d := metadata.DescribeShape(shape)
	switch {
	case d.IsCube && d.IsArray:
		// Cube arrays hand out whole cubes: logical index i starts at face i*6.
		if index >= arrayCount {
			return span{}, "", false
		}
		return span{index * d.Slices, d.Slices}, strconv.Itoa(index), true
	case d.IsCube:
		return span{index, 1}, metadata.CubeFace(index).String(), true
	default:
		return span{index, 1}, strconv.Itoa(index), true
	}
}

func subName(parent, suffix string) string {
	return fmt.Sprintf("%s[%s]", parent, suffix)
}

// textureDescriptor describes the native texture backing slices native
// slices of the given shape.
func textureDescriptor(shape metadata.ResourceShape, desc metadata.TextureDescription, slices int, usage gputypes.TextureUsage) native.TextureDescription {
	d := metadata.DescribeShape(shape)
	layers := uint32(slices)
	if d.Dimension == gputypes.TextureDimension3D {
		layers = desc.Depth
	}
	mips := uint32(desc.MipCount)
	samples := uint32(1)
	quality := uint32(0)
	if d.Multisampled {
		mips = 1
		samples = desc.Multisample.Count
		quality = desc.Multisample.Quality
	}
	return native.TextureDescription{
		TextureDescriptor: gputypes.TextureDescriptor{
			Size:          gputypes.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: layers},
			MipLevelCount: mips,
			SampleCount:   samples,
			Dimension:     d.Dimension,
			Format:        desc.Format,
			Usage:         usage,
		},
		SampleQuality: quality,
		Cube:          d.IsCube && slices%d.Slices == 0,
	}
}

// nativeSet collects the native handles of a resource under construction so
// a failed constructor can release what it already created.
type nativeSet struct {
	device   native.Device
	textures []native.Texture
	views    []native.View
}

func (s *nativeSet) texture(desc native.TextureDescription) (native.Texture, error) {
	t, err := s.device.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: texture %dx%dx%d dimension %v format %v: %v", core.ErrNativeCreation,
			desc.Size.Width, desc.Size.Height, desc.Size.DepthOrArrayLayers, desc.Dimension, desc.Format, err)
	}
	s.textures = append(s.textures, t)
	return t, nil
}

func (s *nativeSet) view(tex native.Texture, kind native.ViewKind, desc native.ViewDescription) (native.View, error) {
	v, err := s.device.CreateView(tex, kind, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s slices [%d, %d): %v", core.ErrNativeCreation,
			desc.Dimension, kind, desc.FirstArraySlice, desc.FirstArraySlice+desc.ArraySize, err)
	}
	s.views = append(s.views, v)
	return v, nil
}

// release destroys every handle in the set, views first.
func (s *nativeSet) release() {
	for i := len(s.views) - 1; i >= 0; i-- {
		s.views[i].Release()
	}
	for i := len(s.textures) - 1; i >= 0; i-- {
		s.textures[i].Release()
	}
	s.views = nil
	s.textures = nil
}

func releaseView(v *native.View) {
	if *v != nil {
		(*v).Release()
		*v = nil
	}
}

func releaseTexture(t *native.Texture) {
	if *t != nil {
		(*t).Release()
		*t = nil
	}
}

func setDebugName(name string, objects ...interface{ SetDebugName(string) }) {
	for _, o := range objects {
		if o != nil {
			o.SetDebugName(name)
		}
	}
}

package metadata

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

/**
 * @brief The shape of a GPU texture backing a render target or depth stencil buffer.
 */
type ResourceShape uint8

const (
	Shape1D ResourceShape = iota
	Shape1DArray
	Shape2D
	Shape2DArray
	Shape2DMS
	Shape2DMSArray
	ShapeCube
	ShapeCubeArray
	ShapeCubeMS
	ShapeCubeMSArray
	Shape3D
	shapeCount
)

// ShapeDescription is one row of the shape table. Every shape dependent
// decision reads it instead of branching on the shape.
type ShapeDescription struct {
	Name string
	// Dimension of the native texture.
	Dimension gputypes.TextureDimension
	// Native array slices per logical array element: 6 for cube shapes.
	Slices       int
	IsArray      bool
	IsCube       bool
	Multisampled bool
	SupportsMips bool
	// SubShape is the shape of one sub-view (one array element, or one cube face
	// of a single cube).
	SubShape ResourceShape
	// DepthShape is the shape of a depth stencil buffer matching this shape.
	DepthShape ResourceShape
	// ResolveShape is the single sampled shape a multisampled texture resolves into.
	ResolveShape ResourceShape
}

var shapeTable = [shapeCount]ShapeDescription{
	Shape1D:          {Name: "1D", Dimension: gputypes.TextureDimension1D, Slices: 1, SupportsMips: true, SubShape: Shape1D, DepthShape: Shape1D, ResolveShape: Shape1D},
	Shape1DArray:     {Name: "1DArray", Dimension: gputypes.TextureDimension1D, Slices: 1, IsArray: true, SupportsMips: true, SubShape: Shape1D, DepthShape: Shape1DArray, ResolveShape: Shape1DArray},
	Shape2D:          {Name: "2D", Dimension: gputypes.TextureDimension2D, Slices: 1, SupportsMips: true, SubShape: Shape2D, DepthShape: Shape2D, ResolveShape: Shape2D},
	Shape2DArray:     {Name: "2DArray", Dimension: gputypes.TextureDimension2D, Slices: 1, IsArray: true, SupportsMips: true, SubShape: Shape2D, DepthShape: Shape2DArray, ResolveShape: Shape2DArray},
	Shape2DMS:        {Name: "2DMS", Dimension: gputypes.TextureDimension2D, Slices: 1, Multisampled: true, SubShape: Shape2DMS, DepthShape: Shape2DMS, ResolveShape: Shape2D},
	Shape2DMSArray:   {Name: "2DMSArray", Dimension: gputypes.TextureDimension2D, Slices: 1, IsArray: true, Multisampled: true, SubShape: Shape2DMS, DepthShape: Shape2DMSArray, ResolveShape: Shape2DArray},
	ShapeCube:        {Name: "Cube", Dimension: gputypes.TextureDimension2D, Slices: 6, IsCube: true, SupportsMips: true, SubShape: Shape2D, DepthShape: ShapeCube, ResolveShape: ShapeCube},
	ShapeCubeArray:   {Name: "CubeArray", Dimension: gputypes.TextureDimension2D, Slices: 6, IsArray: true, IsCube: true, SupportsMips: true, SubShape: ShapeCube, DepthShape: ShapeCubeArray, ResolveShape: ShapeCubeArray},
	ShapeCubeMS:      {Name: "CubeMS", Dimension: gputypes.TextureDimension2D, Slices: 6, IsCube: true, Multisampled: true, SubShape: Shape2DMS, DepthShape: ShapeCubeMS, ResolveShape: ShapeCube},
	ShapeCubeMSArray: {Name: "CubeMSArray", Dimension: gputypes.TextureDimension2D, Slices: 6, IsArray: true, IsCube: true, Multisampled: true, SubShape: ShapeCubeMS, DepthShape: ShapeCubeMSArray, ResolveShape: ShapeCubeArray},
	// Depth textures cannot be 3D; a 3D target gets one depth slice per W slice.
	Shape3D: {Name: "3D", Dimension: gputypes.TextureDimension3D, Slices: 1, SupportsMips: true, SubShape: Shape3D, DepthShape: Shape2DArray, ResolveShape: Shape3D},
}

// DescribeShape returns the table row of shape. It panics on values outside the enum.
func DescribeShape(shape ResourceShape) ShapeDescription {
	if shape >= shapeCount {
		panic(fmt.Sprintf("undefined resource shape %d", shape))
	}
	return shapeTable[shape]
}

func (s ResourceShape) Valid() bool {
	return s < shapeCount
}

func (s ResourceShape) String() string {
	if !s.Valid() {
		return fmt.Sprintf("ResourceShape(%d)", uint8(s))
	}
	return shapeTable[s].Name
}

// HasSubResources reports whether a root of this shape can hand out sub-views.
func (s ResourceShape) HasSubResources() bool {
	d := DescribeShape(s)
	return d.IsArray || d.IsCube
}

// TotalSubResources is the number of sub-view slots a root of this shape and
// array count allocates: the array count, times 6 for cube shapes.
func (s ResourceShape) TotalSubResources(arrayCount int) int {
	if !s.HasSubResources() {
		return 0
	}
	d := DescribeShape(s)
	if !d.IsArray {
		return d.Slices
	}
	return arrayCount * d.Slices
}

// SingleSurface is the shape of one native slice of s: arrays and cubes are
// unwrapped down to their plain 1D or 2D element.
func (s ResourceShape) SingleSurface() ResourceShape {
	for s.HasSubResources() {
		s = DescribeShape(s).SubShape
	}
	return s
}

// NativeSlices is the number of native array slices backing arrayCount logical elements.
func (s ResourceShape) NativeSlices(arrayCount int) int {
	d := DescribeShape(s)
	if d.IsCube && !d.IsArray {
		return d.Slices
	}
	return arrayCount * d.Slices
}

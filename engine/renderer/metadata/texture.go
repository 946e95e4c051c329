package metadata

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

/**
 * @brief Multisample settings of a render resource.
 */
type MultisampleDescription struct {
	/** @brief Samples per pixel. 0 and 1 both mean no multisampling. */
	Count uint32
	/** @brief Driver specific quality level. */
	Quality uint32
	/** @brief Resolve into a non-multisampled copy that shaders read from. */
	ResolveShaderResource bool
}

func (m MultisampleDescription) IsMultisampled() bool {
	return m.Count > 1
}

// NoMultisample is the description of a single sampled resource.
var NoMultisample = MultisampleDescription{Count: 1}

/**
 * @brief Dimensions and format of a render resource, independent of its shape.
 */
type TextureDescription struct {
	Width  uint32
	Height uint32
	/** @brief Depth of 3D resources; 1 otherwise. */
	Depth uint32
	/** @brief Mip levels. For multisampled shapes this applies to the resolve texture only. */
	MipCount int
	/** @brief Logical array elements: cubes for cube arrays, slices otherwise. */
	ArrayCount  int
	Format      gputypes.TextureFormat
	Multisample MultisampleDescription
}

// Normalized returns a copy where zero sizes and counts are replaced by 1.
func (d TextureDescription) Normalized() TextureDescription {
	if d.Height == 0 {
		d.Height = 1
	}
	if d.Depth == 0 {
		d.Depth = 1
	}
	if d.MipCount == 0 {
		d.MipCount = 1
	}
	if d.ArrayCount == 0 {
		d.ArrayCount = 1
	}
	if d.Multisample.Count == 0 {
		d.Multisample.Count = 1
	}
	return d
}

// Validate checks that d can back a resource of the given shape. d is expected
// to be normalized.
func (d TextureDescription) Validate(shape ResourceShape) error {
	if !shape.Valid() {
		return fmt.Errorf("undefined resource shape %d", shape)
	}
	desc := DescribeShape(shape)
	switch {
	case d.Width == 0:
		return fmt.Errorf("%s texture width must be > 0", desc.Name)
	case desc.Dimension == gputypes.TextureDimension1D && d.Height != 1:
		return fmt.Errorf("%s texture height must be 1, got %d", desc.Name, d.Height)
	case desc.Dimension != gputypes.TextureDimension3D && d.Depth != 1:
		return fmt.Errorf("%s texture depth must be 1, got %d", desc.Name, d.Depth)
	case desc.IsCube && d.Width != d.Height:
		return fmt.Errorf("%s texture faces must be square, got %dx%d", desc.Name, d.Width, d.Height)
	case d.ArrayCount < 1:
		return fmt.Errorf("%s texture array count must be > 0", desc.Name)
	case !desc.IsArray && d.ArrayCount != 1:
		return fmt.Errorf("%s texture is not an array, array count must be 1, got %d", desc.Name, d.ArrayCount)
	case d.MipCount < 1:
		return fmt.Errorf("%s texture mip count must be > 0", desc.Name)
	case desc.Multisampled != d.Multisample.IsMultisampled():
		return fmt.Errorf("%s texture sample count %d does not match the shape", desc.Name, d.Multisample.Count)
	case d.Format == gputypes.TextureFormatUndefined:
		return fmt.Errorf("%s texture format is undefined", desc.Name)
	}
	return nil
}

/**
 * @brief The faces of a cube texture, in native array slice order.
 */
type CubeFace int

const (
	CubeFacePositiveX CubeFace = iota
	CubeFaceNegativeX
	CubeFacePositiveY
	CubeFaceNegativeY
	CubeFacePositiveZ
	CubeFaceNegativeZ
)

var cubeFaceNames = [...]string{"PositiveX", "NegativeX", "PositiveY", "NegativeY", "PositiveZ", "NegativeZ"}

func (f CubeFace) String() string {
	if f < 0 || int(f) >= len(cubeFaceNames) {
		return fmt.Sprintf("CubeFace(%d)", int(f))
	}
	return cubeFaceNames[f]
}

/** @brief Selects what a Clear call clears. */
type ClearOptions uint8

const (
	ClearTarget  ClearOptions = 0x1
	ClearDepth   ClearOptions = 0x2
	ClearStencil ClearOptions = 0x4
	ClearAll                  = ClearTarget | ClearDepth | ClearStencil
)

func (o ClearOptions) Has(flag ClearOptions) bool {
	return o&flag != 0
}

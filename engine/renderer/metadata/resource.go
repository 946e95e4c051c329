package metadata

import "fmt"

type ResourceType uint8

/** @brief Pre-defined content resource types. */
const (
	/** @brief Binary resource type. */
	ResourceTypeBinary ResourceType = iota
	/** @brief A savable object graph written inline. */
	ResourceTypeSavable
	/** @brief A savable object written to its own file and referenced by path. */
	ResourceTypeExternalSavable
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBinary:
		return "Binary"
	case ResourceTypeSavable:
		return "Savable"
	case ResourceTypeExternalSavable:
		return "ExternalSavable"
	case ResourceTypeCustom:
		return "Custom"
	}
	return fmt.Sprintf("ResourceType(%d)", uint8(t))
}

/** @brief A magic number indicating the file as a spark binary file. */
const ResourceMagic uint32 = 0xdaaaadd1

/** @brief The current format version of spark binary files. */
const ResourceVersion uint8 = 1

/**
 * @brief The header data for binary resource types.
 */
type ResourceHeader struct {
	/** @brief A magic number indicating the file as a spark binary file. */
	MagicNumber uint32
	/** @brief The resource type. */
	ResourceType ResourceType
	/** @brief The format version this resource uses. */
	Version uint8
	/** @brief Reserved for future header data.. */
	Reserved uint16
}

func NewResourceHeader(resourceType ResourceType) ResourceHeader {
	return ResourceHeader{
		MagicNumber:  ResourceMagic,
		ResourceType: resourceType,
		Version:      ResourceVersion,
	}
}

// Valid reports whether the header was written by a compatible spark version.
func (h ResourceHeader) Valid() bool {
	return h.MagicNumber == ResourceMagic && h.Version > 0 && h.Version <= ResourceVersion
}

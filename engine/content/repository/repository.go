// Package repository exposes a backing store of content as named resource
// files that can be opened for reading or created for writing.
package repository

import (
	"io"
)

// ResourceFile is one named stream of a repository. Names are slash
// separated and relative to the repository root.
type ResourceFile interface {
	Name() string
	FullPath() string
	Exists() bool
	OpenRead() (io.ReadCloser, error)
	// Create truncates or creates the file. A failed write leaves whatever was
	// written so far in place.
	Create() (io.WriteCloser, error)
}

// Repository is a connection to a backing store. Files can only be resolved
// while it is open.
type Repository interface {
	Open() error
	Close() error
	IsOpen() bool
	GetResourceFile(name string) (ResourceFile, error)
	// GetResourceFileRelativeTo resolves name against the directory of anchor.
	GetResourceFileRelativeTo(name string, anchor ResourceFile) (ResourceFile, error)
	Exists(name string) bool
}

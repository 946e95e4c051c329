package savable

import (
	"fmt"

	"github.com/spaghettifunk/spark/engine/content/primitive"
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
)

// loadState is shared by the inputs of one load so every external file is
// read once, even when the graph of files has cycles.
type loadState struct {
	repository repository.Repository
	registry   *Registry
	files      map[string]Savable
}

// Input reads savable objects from one stream.
type Input struct {
	*primitive.Reader

	state  *loadState
	file   repository.ResourceFile
	shared map[int32]Savable
}

// NewInput returns an Input reading from r. The repository is optional; it is
// needed to follow external references.
func NewInput(r *primitive.Reader, registry *Registry, repo repository.Repository) *Input {
	return newInput(r, &loadState{repository: repo, registry: registry, files: make(map[string]Savable)}, nil)
}

func newInput(r *primitive.Reader, state *loadState, file repository.ResourceFile) *Input {
	return &Input{Reader: r, state: state, file: file, shared: make(map[int32]Savable)}
}

// File returns the file being read, nil for streams not read from a repository.
func (in *Input) File() repository.ResourceFile {
	return in.file
}

func (in *Input) Registry() *Registry {
	return in.state.registry
}

func (in *Input) readBody(name string, v Savable) error {
	if err := in.BeginGroup(name); err != nil {
		return err
	}
	if err := v.Read(in); err != nil {
		return err
	}
	return in.EndGroup()
}

// ReadSavable reads an object written by WriteSavable.
func (in *Input) ReadSavable() (Savable, error) {
	name, err := in.ReadString()
	if err != nil || name == "" {
		return nil, err
	}
	v, err := in.state.registry.New(name)
	if err != nil {
		return nil, err
	}
	if err := in.readBody(name, v); err != nil {
		return nil, err
	}
	return v, nil
}

// ReadSharedSavable reads an object written by WriteSharedSavable and returns
// the same instance for every reference to it.
func (in *Input) ReadSharedSavable() (Savable, error) {
	tag, err := in.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case sharedNull:
		return nil, nil
	case sharedBackReference:
		id, err := in.ReadInt32()
		if err != nil {
			return nil, err
		}
		v, ok := in.shared[id]
		if !ok {
			return nil, core.NewMismatchError("read shared savable", core.ErrUnknown, "a defined reference", fmt.Sprint(id))
		}
		return v, nil
	case sharedDefinition:
	default:
		return nil, fmt.Errorf("read shared savable: invalid tag %d", tag)
	}
	id, err := in.ReadInt32()
	if err != nil {
		return nil, err
	}
	name, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	v, err := in.state.registry.New(name)
	if err != nil {
		return nil, err
	}
	// Registered first so back references inside the body resolve to it.
	in.shared[id] = v
	if err := in.readBody(name, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (in *Input) ReadExternalReference() (ExternalReference, error) {
	var ref ExternalReference
	var err error
	if ref.TypeName, err = in.ReadString(); err != nil {
		return ref, err
	}
	if ref.Path, err = in.ReadString(); err != nil {
		return ref, err
	}
	return ref, nil
}

// ReadExternalSavable reads a reference written by WriteExternalSavable and
// loads the object from its file.
func (in *Input) ReadExternalSavable() (Savable, error) {
	ref, err := in.ReadExternalReference()
	if err != nil || ref.IsNull() {
		return nil, err
	}
	return in.state.load(ref)
}

func (s *loadState) load(ref ExternalReference) (Savable, error) {
	if v, ok := s.files[ref.Path]; ok {
		return v, nil
	}
	if s.repository == nil {
		return nil, core.NewContentError(fmt.Sprintf("load %s", ref), core.ErrRepositoryNotOpen)
	}
	file, err := s.repository.GetResourceFile(ref.Path)
	if err != nil {
		return nil, err
	}
	rc, err := file.OpenRead()
	if err != nil {
		return nil, core.NewContentError(fmt.Sprintf("load %s", ref), err)
	}
	defer rc.Close()

	in := newInput(primitive.NewReader(rc), s, file)
	header, err := in.ReadHeader()
	if err != nil {
		return nil, core.NewContentError(fmt.Sprintf("load %s", ref), err)
	}
	if header.ResourceType != metadata.ResourceTypeExternalSavable && header.ResourceType != metadata.ResourceTypeSavable {
		return nil, core.NewMismatchError(fmt.Sprintf("load %s", ref), core.ErrTypeMismatch, metadata.ResourceTypeExternalSavable.String(), header.ResourceType.String())
	}
	name, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	if name != ref.TypeName {
		return nil, core.NewMismatchError(fmt.Sprintf("load %s", ref), core.ErrTypeMismatch, ref.TypeName, name)
	}
	v, err := s.registry.New(name)
	if err != nil {
		return nil, err
	}
	// Cached before the body so cycles between files terminate.
	s.files[ref.Path] = v
	if err := in.readBody(name, v); err != nil {
		delete(s.files, ref.Path)
		return nil, err
	}
	return v, nil
}

// Package savable implements the object serialization protocol on top of the
// primitive reader and writer: inline objects, shared references written once
// per stream, and external references written to their own resource file by
// an ExternalReferenceHandler.
package savable

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/spaghettifunk/spark/engine/core"
)

// Savable is an object that can write itself to an Output and read itself
// back from an Input.
type Savable interface {
	Write(out *Output) error
	Read(in *Input) error
}

// Named objects provide the default name of their external resource file.
type Named interface {
	Name() string
}

// ExternalReference points to an object written to its own resource file.
// The zero value is the null reference.
type ExternalReference struct {
	TypeName string
	// Path is the repository relative name of the file.
	Path string
}

// NullReference is returned for nil values.
var NullReference = ExternalReference{}

func (r ExternalReference) IsNull() bool {
	return r == NullReference
}

func (r ExternalReference) String() string {
	if r.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("%s(%s)", r.TypeName, r.Path)
}

var savableType = reflect.TypeOf((*Savable)(nil)).Elem()

// Registry maps type names to factories so polymorphic values can be read back.
type Registry struct {
	mutex     sync.RWMutex
	factories map[string]func() Savable
	names     map[reflect.Type]string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func() Savable),
		names:     make(map[reflect.Type]string),
	}
}

// Register adds *T under name. An empty name registers it under the name of T.
func Register[T any, PT interface {
	*T
	Savable
}](r *Registry, name string) error {
	t := reflect.TypeOf((*T)(nil))
	if name == "" {
		name = t.Elem().Name()
	}
	if name == "" {
		return fmt.Errorf("%w: type %s needs an explicit name", core.ErrInvalidArgument, t)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if existing, ok := r.names[t]; ok && existing != name {
		return fmt.Errorf("%w: %s already registered as %q", core.ErrInvalidArgument, t, existing)
	}
	if _, ok := r.factories[name]; ok && r.names[t] != name {
		return fmt.Errorf("%w: type name %q already taken", core.ErrInvalidArgument, name)
	}
	r.factories[name] = func() Savable { return PT(new(T)) }
	r.names[t] = name
	return nil
}

// TypeName returns the registered name of the dynamic type of v.
func (r *Registry) TypeName(v Savable) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	name, ok := r.names[reflect.TypeOf(v)]
	return name, ok
}

// New creates a zero value of a registered type.
func (r *Registry) New(name string) (Savable, error) {
	r.mutex.RLock()
	factory, ok := r.factories[name]
	r.mutex.RUnlock()
	if !ok {
		return nil, core.NewMismatchError("create savable", core.ErrUnknownType, "a registered type", name)
	}
	return factory(), nil
}

// As asserts the result of a read to T. It is meant to wrap the Read* methods
// of Input:
//
//	mesh, err := savable.As[*Mesh](in.ReadSharedSavable())
func As[T Savable](v Savable, err error) (T, error) {
	var zero T
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, core.NewMismatchError("read savable", core.ErrTypeMismatch, typeName(reflect.TypeOf((*T)(nil)).Elem()), typeName(reflect.TypeOf(v)))
	}
	return t, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// isNil reports whether v is nil or a nil pointer, map, slice, func or channel.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

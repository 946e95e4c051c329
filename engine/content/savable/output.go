package savable

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/spaghettifunk/spark/engine/content/primitive"
	"github.com/spaghettifunk/spark/engine/core"
)

// Shared reference tags.
const (
	sharedNull uint8 = iota
	sharedDefinition
	sharedBackReference
)

// WritePass is the state of one write pass, shared by every stream written
// during it. It remembers which objects were spun out to external files so
// each is written at most once, and how resource names were disambiguated.
type WritePass struct {
	ID uuid.UUID

	references []passEntry
	identity   map[passKey]ExternalReference
	names      map[string]struct{}
	counters   map[string]int
}

type passKey struct {
	declared reflect.Type
	value    any
}

type passEntry struct {
	declared reflect.Type
	value    any
	ref      ExternalReference
}

func NewWritePass() *WritePass {
	return &WritePass{
		ID:       uuid.New(),
		identity: make(map[passKey]ExternalReference),
		names:    make(map[string]struct{}),
		counters: make(map[string]int),
	}
}

// lookup finds the reference recorded for value. A nil comparer means
// identity, which requires a comparable value.
func (p *WritePass) lookup(declared reflect.Type, value any, comparer func(a, b any) bool) (ExternalReference, bool) {
	if comparer == nil {
		ref, ok := p.identity[passKey{declared, value}]
		return ref, ok
	}
	for _, e := range p.references {
		if e.declared == declared && comparer(e.value, value) {
			return e.ref, true
		}
	}
	return NullReference, false
}

func (p *WritePass) record(declared reflect.Type, value any, ref ExternalReference, comparer func(a, b any) bool) {
	if comparer == nil {
		p.identity[passKey{declared, value}] = ref
		return
	}
	p.references = append(p.references, passEntry{declared, value, ref})
}

// unique returns name with extension ext, or with the next free _N suffix
// before the extension when that file was used before in this pass. A name
// that already ends in ext is not extended twice. Type derived names always
// carry a suffix.
func (p *WritePass) unique(name, ext string, alwaysSuffix bool) string {
	if ext != "" && path.Ext(name) == ext {
		name = strings.TrimSuffix(name, ext)
	}
	key := name + ext
	if !alwaysSuffix {
		if _, taken := p.names[key]; !taken {
			p.names[key] = struct{}{}
			return key
		}
	}
	for {
		n := p.counters[key]
		if !alwaysSuffix && n == 0 {
			n = 1
		}
		p.counters[key] = n + 1
		candidate := fmt.Sprintf("%s_%d%s", name, n, ext)
		if _, taken := p.names[candidate]; !taken {
			p.names[candidate] = struct{}{}
			return candidate
		}
	}
}

// Output writes savable objects to one stream.
type Output struct {
	*primitive.Writer

	registry *Registry
	handler  *ExternalReferenceHandler
	pass     *WritePass
	shared   map[any]int32
}

// NewOutput returns an Output writing to w. The handler is optional; without
// it WriteExternalSavable fails.
func NewOutput(w *primitive.Writer, registry *Registry, handler *ExternalReferenceHandler) *Output {
	var pass *WritePass
	if handler != nil {
		pass = handler.Pass()
	}
	return newOutput(w, registry, handler, pass)
}

func newOutput(w *primitive.Writer, registry *Registry, handler *ExternalReferenceHandler, pass *WritePass) *Output {
	return &Output{
		Writer:   w,
		registry: registry,
		handler:  handler,
		pass:     pass,
		shared:   make(map[any]int32),
	}
}

func (o *Output) Registry() *Registry {
	return o.registry
}

// Pass returns the write pass of the handler, nil without one.
func (o *Output) Pass() *WritePass {
	return o.pass
}

func (o *Output) writeBody(v Savable) error {
	name, ok := o.registry.TypeName(v)
	if !ok {
		return core.NewMismatchError("write savable", core.ErrUnknownType, "a registered type", typeName(reflect.TypeOf(v)))
	}
	if err := o.WriteString(name); err != nil {
		return err
	}
	if err := o.BeginGroup(name); err != nil {
		return err
	}
	if err := v.Write(o); err != nil {
		return err
	}
	return o.EndGroup()
}

// WriteSavable writes v inline. A nil value is written as an empty type name.
func (o *Output) WriteSavable(v Savable) error {
	if isNil(v) {
		return o.WriteString("")
	}
	return o.writeBody(v)
}

// WriteSharedSavable writes v inline the first time it is seen in this stream
// and as a back reference afterwards. Cycles are supported because v is
// registered before its body is written.
func (o *Output) WriteSharedSavable(v Savable) error {
	if isNil(v) {
		return o.WriteUint8(sharedNull)
	}
	if !reflect.TypeOf(v).Comparable() {
		return fmt.Errorf("%w: shared savable %T is not comparable", core.ErrInvalidArgument, v)
	}
	if id, ok := o.shared[v]; ok {
		if err := o.WriteUint8(sharedBackReference); err != nil {
			return err
		}
		return o.WriteInt32(id)
	}
	id := int32(len(o.shared))
	o.shared[v] = id
	if err := o.WriteUint8(sharedDefinition); err != nil {
		return err
	}
	if err := o.WriteInt32(id); err != nil {
		return err
	}
	return o.writeBody(v)
}

// WriteExternalReference writes a reference produced by the handler.
func (o *Output) WriteExternalReference(ref ExternalReference) error {
	if err := o.WriteString(ref.TypeName); err != nil {
		return err
	}
	return o.WriteString(ref.Path)
}

// WriteExternalSavable hands v to the handler and writes the reference it
// returns. The object itself is written in the background.
func (o *Output) WriteExternalSavable(v Savable) error {
	return o.WriteExternal(savableType, v)
}

// WriteExternal is WriteExternalSavable for values of any declared type with
// a registered writer.
func (o *Output) WriteExternal(declared reflect.Type, v any) error {
	if o.handler == nil {
		return core.NewContentError(fmt.Sprintf("write external %T", v), core.ErrNoWriter)
	}
	ref, err := o.handler.process(o.pass, declared, v)
	if err != nil {
		return err
	}
	return o.WriteExternalReference(ref)
}

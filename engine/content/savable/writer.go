package savable

import (
	"io"
	"reflect"

	"github.com/spaghettifunk/spark/engine/content/primitive"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
)

// ExternalWriter writes values of one type to their own resource file.
type ExternalWriter interface {
	// TargetType is the type written. An interface type accepts every
	// implementation of it.
	TargetType() reflect.Type
	// Extension of the files written, including the dot.
	Extension() string
	WriteExternal(w io.Writer, value any, handler *ExternalReferenceHandler, pass *WritePass) error
}

// accepts reports whether a writer targeting target can write a value of type t.
func accepts(target, t reflect.Type) bool {
	if target.Kind() == reflect.Interface {
		return t.Implements(target)
	}
	return t == target
}

// savableWriter is the catch-all writer of every Savable: a header followed
// by the object as WriteSavable writes it.
type savableWriter struct {
	registry  *Registry
	extension string
}

func (w *savableWriter) TargetType() reflect.Type {
	return savableType
}

func (w *savableWriter) Extension() string {
	return w.extension
}

func (w *savableWriter) WriteExternal(dst io.Writer, value any, handler *ExternalReferenceHandler, pass *WritePass) error {
	v, ok := value.(Savable)
	if !ok {
		return core.NewMismatchError("write external savable", core.ErrTypeMismatch, typeName(savableType), typeName(reflect.TypeOf(value)))
	}
	pw := primitive.NewWriter(dst)
	if err := pw.WriteHeader(metadata.NewResourceHeader(metadata.ResourceTypeExternalSavable)); err != nil {
		return err
	}
	out := newOutput(pw, w.registry, handler, pass)
	if err := out.writeBody(v); err != nil {
		return err
	}
	return pw.Flush()
}

// Package primitive reads and writes the scalar values, arrays and named
// groups savable objects are made of.
//
// Numbers are little endian and fixed size, strings and byte slices are
// prefixed by their uvarint length, enums are int32. A group is a name
// written on BeginGroup and repeated on EndGroup, so a reader that drifts
// out of sync notices at the next group boundary.
package primitive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
)

// Number is the element type of arrays. int, uint and uintptr are stored as 64 bits.
type Number interface {
	constraints.Integer | constraints.Float
}

const (
	groupBegin byte = '{'
	groupEnd   byte = '}'

	// Upper bound of decoded string and array lengths.
	maxLength = 1 << 28
)

var byteOrder = binary.LittleEndian

type Writer struct {
	w      *bufio.Writer
	buf    [binary.MaxVarintLen64]byte
	groups []string
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Flush writes buffered data to the underlying writer. It fails when a group
// is still open.
func (w *Writer) Flush() error {
	if len(w.groups) > 0 {
		return fmt.Errorf("%w: group %q not closed", core.ErrGroupMismatch, w.groups[len(w.groups)-1])
	}
	return w.w.Flush()
}

func (w *Writer) write(n int) error {
	_, err := w.w.Write(w.buf[:n])
	return err
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteUint8(v uint8) error {
	return w.w.WriteByte(v)
}

func (w *Writer) WriteInt8(v int8) error {
	return w.w.WriteByte(byte(v))
}

func (w *Writer) WriteUint16(v uint16) error {
	byteOrder.PutUint16(w.buf[:], v)
	return w.write(2)
}

func (w *Writer) WriteInt16(v int16) error {
	return w.WriteUint16(uint16(v))
}

func (w *Writer) WriteUint32(v uint32) error {
	byteOrder.PutUint32(w.buf[:], v)
	return w.write(4)
}

func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

func (w *Writer) WriteUint64(v uint64) error {
	byteOrder.PutUint64(w.buf[:], v)
	return w.write(8)
}

func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

func (w *Writer) WriteUvarint(v uint64) error {
	return w.write(binary.PutUvarint(w.buf[:], v))
}

func (w *Writer) WriteBytes(v []byte) error {
	if err := w.WriteUvarint(uint64(len(v))); err != nil {
		return err
	}
	_, err := w.w.Write(v)
	return err
}

func (w *Writer) WriteString(v string) error {
	if err := w.WriteUvarint(uint64(len(v))); err != nil {
		return err
	}
	_, err := w.w.WriteString(v)
	return err
}

// WriteHeader writes a content resource header.
func (w *Writer) WriteHeader(h metadata.ResourceHeader) error {
	if err := w.WriteUint32(h.MagicNumber); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(h.ResourceType)); err != nil {
		return err
	}
	if err := w.WriteUint8(h.Version); err != nil {
		return err
	}
	return w.WriteUint16(h.Reserved)
}

// BeginGroup opens a named group. Groups nest and must be closed in order.
func (w *Writer) BeginGroup(name string) error {
	if err := w.WriteUint8(groupBegin); err != nil {
		return err
	}
	if err := w.WriteString(name); err != nil {
		return err
	}
	w.groups = append(w.groups, name)
	return nil
}

// EndGroup closes the innermost group.
func (w *Writer) EndGroup() error {
	if len(w.groups) == 0 {
		return fmt.Errorf("%w: EndGroup without BeginGroup", core.ErrGroupMismatch)
	}
	name := w.groups[len(w.groups)-1]
	w.groups = w.groups[:len(w.groups)-1]
	if err := w.WriteUint8(groupEnd); err != nil {
		return err
	}
	return w.WriteString(name)
}

// WriteEnum writes an enum value as an int32.
func WriteEnum[E constraints.Integer](w *Writer, v E) error {
	return w.WriteInt32(int32(v))
}

// WriteArray writes the length of values followed by the elements.
func WriteArray[T Number](w *Writer, values []T) error {
	if err := w.WriteUvarint(uint64(len(values))); err != nil {
		return err
	}
	if binary.Size(values) < 0 {
		// int, uint and uintptr have no fixed size.
		wide := make([]int64, len(values))
		for i, v := range values {
			wide[i] = int64(v)
		}
		return binary.Write(w.w, byteOrder, wide)
	}
	return binary.Write(w.w, byteOrder, values)
}

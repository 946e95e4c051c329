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

type Reader struct {
	r      *bufio.Reader
	buf    [8]byte
	groups []string
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) read(n int) ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		return nil, err
	}
	return r.buf[:n], nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("invalid bool value %d", v)
}

func (r *Reader) ReadUint8() (uint8, error) {
	return r.r.ReadByte()
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.r.ReadByte()
	return int8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

func (r *Reader) ReadUvarint() (uint64, error) {
	return binary.ReadUvarint(r.r)
}

func (r *Reader) readLength() (int, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > maxLength {
		return 0, fmt.Errorf("length %d exceeds the limit of %d", n, maxLength)
	}
	return int(n), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.readLength()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	return string(b), err
}

// ReadHeader reads a content resource header and checks it was written by a
// compatible version.
func (r *Reader) ReadHeader() (metadata.ResourceHeader, error) {
	var h metadata.ResourceHeader
	var err error
	if h.MagicNumber, err = r.ReadUint32(); err != nil {
		return h, err
	}
	var t uint8
	if t, err = r.ReadUint8(); err != nil {
		return h, err
	}
	h.ResourceType = metadata.ResourceType(t)
	if h.Version, err = r.ReadUint8(); err != nil {
		return h, err
	}
	if h.Reserved, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if !h.Valid() {
		return h, fmt.Errorf("invalid resource header (magic 0x%08x, version %d)", h.MagicNumber, h.Version)
	}
	return h, nil
}

func (r *Reader) readGroupMarker(marker byte, expected string) error {
	m, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if m != marker {
		return core.NewMismatchError("read group", core.ErrGroupMismatch, string(marker), fmt.Sprintf("0x%02x", m))
	}
	name, err := r.ReadString()
	if err != nil {
		return err
	}
	if name != expected {
		return core.NewMismatchError("read group", core.ErrGroupMismatch, expected, name)
	}
	return nil
}

// BeginGroup reads the header of a group and checks its name.
func (r *Reader) BeginGroup(name string) error {
	if err := r.readGroupMarker(groupBegin, name); err != nil {
		return err
	}
	r.groups = append(r.groups, name)
	return nil
}

// EndGroup reads the footer of the innermost group.
func (r *Reader) EndGroup() error {
	if len(r.groups) == 0 {
		return fmt.Errorf("%w: EndGroup without BeginGroup", core.ErrGroupMismatch)
	}
	name := r.groups[len(r.groups)-1]
	r.groups = r.groups[:len(r.groups)-1]
	return r.readGroupMarker(groupEnd, name)
}

// ReadEnum reads an enum written by WriteEnum.
func ReadEnum[E constraints.Integer](r *Reader) (E, error) {
	v, err := r.ReadInt32()
	return E(v), err
}

// ReadArray reads an array written by WriteArray.
func ReadArray[T Number](r *Reader) ([]T, error) {
	n, err := r.readLength()
	if err != nil {
		return nil, err
	}
	values := make([]T, n)
	if binary.Size(values) < 0 {
		wide := make([]int64, n)
		if err := binary.Read(r.r, byteOrder, wide); err != nil {
			return nil, err
		}
		for i, v := range wide {
			values[i] = T(v)
		}
		return values, nil
	}
	if err := binary.Read(r.r, byteOrder, values); err != nil {
		return nil, err
	}
	return values, nil
}

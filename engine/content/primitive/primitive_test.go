package primitive

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
)

type blendMode int32

const (
	blendOpaque blendMode = iota
	blendAdditive
)

func TestScalarsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	steps := []func() error{
		func() error { return w.WriteHeader(metadata.NewResourceHeader(metadata.ResourceTypeSavable)) },
		func() error { return w.BeginGroup("material") },
		func() error { return w.WriteBool(true) },
		func() error { return w.WriteInt8(-3) },
		func() error { return w.WriteInt16(-300) },
		func() error { return w.WriteUint32(0xdeadbeef) },
		func() error { return w.WriteInt64(math.MinInt64) },
		func() error { return w.WriteFloat32(0.25) },
		func() error { return w.WriteFloat64(math.Pi) },
		func() error { return w.WriteString("häuser") },
		func() error { return w.WriteBytes(nil) },
		func() error { return WriteEnum(w, blendAdditive) },
		func() error { return w.BeginGroup("inner") },
		func() error { return w.EndGroup() },
		func() error { return w.EndGroup() },
		w.Flush,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("write step %d: %v", i, err)
		}
	}

	r := NewReader(&buf)
	h, err := r.ReadHeader()
	if err != nil || h.ResourceType != metadata.ResourceTypeSavable {
		t.Fatalf("ReadHeader: %+v, %v", h, err)
	}
	if err := r.BeginGroup("material"); err != nil {
		t.Fatalf("BeginGroup: %v", err)
	}
	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("ReadBool: have %v, %v", v, err)
	}
	if v, err := r.ReadInt8(); err != nil || v != -3 {
		t.Fatalf("ReadInt8: have %v, %v", v, err)
	}
	if v, err := r.ReadInt16(); err != nil || v != -300 {
		t.Fatalf("ReadInt16: have %v, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xdeadbeef {
		t.Fatalf("ReadUint32: have %v, %v", v, err)
	}
	if v, err := r.ReadInt64(); err != nil || v != math.MinInt64 {
		t.Fatalf("ReadInt64: have %v, %v", v, err)
	}
	if v, err := r.ReadFloat32(); err != nil || v != 0.25 {
		t.Fatalf("ReadFloat32: have %v, %v", v, err)
	}
	if v, err := r.ReadFloat64(); err != nil || v != math.Pi {
		t.Fatalf("ReadFloat64: have %v, %v", v, err)
	}
	if v, err := r.ReadString(); err != nil || v != "häuser" {
		t.Fatalf("ReadString: have %q, %v", v, err)
	}
	if v, err := r.ReadBytes(); err != nil || len(v) != 0 {
		t.Fatalf("ReadBytes: have %v, %v", v, err)
	}
	if v, err := ReadEnum[blendMode](r); err != nil || v != blendAdditive {
		t.Fatalf("ReadEnum: have %v, %v", v, err)
	}
	for _, step := range []func() error{func() error { return r.BeginGroup("inner") }, r.EndGroup, r.EndGroup} {
		if err := step(); err != nil {
			t.Fatalf("group: %v", err)
		}
	}
}

func TestArrays(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ints := []int{-1, 0, 1 << 40}
	floats := []float32{1.5, -2.25}
	modes := []blendMode{blendAdditive, blendOpaque}
	if err := WriteArray(w, ints); err != nil {
		t.Fatalf("WriteArray(int): %v", err)
	}
	if err := WriteArray(w, floats); err != nil {
		t.Fatalf("WriteArray(float32): %v", err)
	}
	if err := WriteArray(w, modes); err != nil {
		t.Fatalf("WriteArray(blendMode): %v", err)
	}
	if err := WriteArray(w, []uint16{}); err != nil {
		t.Fatalf("WriteArray(empty): %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r := NewReader(&buf)
	gotInts, err := ReadArray[int](r)
	if err != nil || len(gotInts) != 3 || gotInts[2] != 1<<40 || gotInts[0] != -1 {
		t.Fatalf("ReadArray(int): have %v, %v", gotInts, err)
	}
	gotFloats, err := ReadArray[float32](r)
	if err != nil || len(gotFloats) != 2 || gotFloats[1] != -2.25 {
		t.Fatalf("ReadArray(float32): have %v, %v", gotFloats, err)
	}
	gotModes, err := ReadArray[blendMode](r)
	if err != nil || len(gotModes) != 2 || gotModes[0] != blendAdditive {
		t.Fatalf("ReadArray(blendMode): have %v, %v", gotModes, err)
	}
	if empty, err := ReadArray[uint16](r); err != nil || len(empty) != 0 {
		t.Fatalf("ReadArray(empty): have %v, %v", empty, err)
	}
}

func TestGroupMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.BeginGroup("mesh"); err != nil {
		t.Fatalf("BeginGroup: %v", err)
	}
	if err := w.Flush(); !errors.Is(err, core.ErrGroupMismatch) {
		t.Fatalf("Flush with an open group:\nhave %v\nwant %v", err, core.ErrGroupMismatch)
	}
	if err := w.EndGroup(); err != nil {
		t.Fatalf("EndGroup: %v", err)
	}
	if err := w.EndGroup(); !errors.Is(err, core.ErrGroupMismatch) {
		t.Fatalf("unbalanced EndGroup:\nhave %v\nwant %v", err, core.ErrGroupMismatch)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	err := r.BeginGroup("texture")
	var content *core.ContentError
	if !errors.As(err, &content) || !errors.Is(err, core.ErrGroupMismatch) {
		t.Fatalf("BeginGroup(texture) on mesh:\nhave %v\nwant %v", err, core.ErrGroupMismatch)
	}
	if content.Expected != "texture" || content.Actual != "mesh" {
		t.Fatalf("mismatch: expected %q, actual %q", content.Expected, content.Actual)
	}
}

func TestInvalidHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader(metadata.ResourceHeader{MagicNumber: 0x1234, Version: 1}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	w.Flush()
	if _, err := NewReader(&buf).ReadHeader(); err == nil {
		t.Fatalf("ReadHeader: bad magic accepted")
	}
}

package core

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTripAllTypes(t *testing.T) {
	fields := []FieldDescriptor{
		{Name: "b", Type: FieldBool, ByteOffset: 0, ByteSize: 1},
		{Name: "u8", Type: FieldU8, ByteOffset: 1, ByteSize: 1},
		{Name: "i8", Type: FieldI8, ByteOffset: 2, ByteSize: 1},
		{Name: "u16", Type: FieldU16, ByteOffset: 3, ByteSize: 2},
		{Name: "i16", Type: FieldI16, ByteOffset: 5, ByteSize: 2},
		{Name: "u32", Type: FieldU32, ByteOffset: 7, ByteSize: 4},
		{Name: "i32", Type: FieldI32, ByteOffset: 11, ByteSize: 4},
		{Name: "f32", Type: FieldF32, ByteOffset: 15, ByteSize: 4},
		{Name: "s", Type: FieldString, ByteOffset: 19, ByteSize: 8},
	}
	buf := make([]byte, 27)
	buf[0] = 1
	buf[1] = 200
	i8, i16, i32 := int8(-5), int16(-1234), int32(-70000)
	buf[2] = byte(i8)
	binary.LittleEndian.PutUint16(buf[3:], 40000)
	binary.LittleEndian.PutUint16(buf[5:], uint16(i16))
	binary.LittleEndian.PutUint32(buf[7:], 4000000000)
	binary.LittleEndian.PutUint32(buf[11:], uint32(i32))
	binary.LittleEndian.PutUint32(buf[15:], math.Float32bits(3.25))
	copy(buf[19:], "hello")

	var jbuf [256]byte
	w := NewJSONWriter(jbuf[:])
	w.BeginObject()
	for _, f := range fields {
		encodeField(w, f, buf)
	}
	if w.Err() {
		t.Fatalf("unexpected writer error")
	}

	r := NewJSONReader(w.Bytes())
	out := make([]byte, 27)
	applied := decodeSectionInto(r, fields, out)
	if len(applied) != len(fields) {
		t.Fatalf("expected all %d fields applied, got %d (%v)", len(fields), len(applied), applied)
	}
	for i := range buf {
		if buf[i] != out[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, out[i], buf[i])
		}
	}
}

func TestDecodeSectionLeavesMissingFieldsUntouched(t *testing.T) {
	fields := []FieldDescriptor{
		{Name: "a", Type: FieldU8, ByteOffset: 0, ByteSize: 1},
		{Name: "b", Type: FieldU8, ByteOffset: 1, ByteSize: 1},
	}
	buf := []byte{10, 20}
	r := NewJSONReader([]byte(`{"a":99}`))
	applied := decodeSectionInto(r, fields, buf)
	if len(applied) != 1 || applied[0] != "a" {
		t.Fatalf("expected only field a applied, got %v", applied)
	}
	if buf[0] != 99 {
		t.Fatalf("field a not applied: got %d", buf[0])
	}
	if buf[1] != 20 {
		t.Fatalf("field b should be untouched, got %d", buf[1])
	}
}

func TestDecodeEmptyObjectChangesNothing(t *testing.T) {
	fields := []FieldDescriptor{{Name: "a", Type: FieldU8, ByteOffset: 0, ByteSize: 1}}
	buf := []byte{42}
	r := NewJSONReader([]byte(`{}`))
	applied := decodeSectionInto(r, fields, buf)
	if len(applied) != 0 {
		t.Fatalf("expected no fields applied, got %v", applied)
	}
	if buf[0] != 42 {
		t.Fatalf("buffer mutated despite empty payload")
	}
}

func TestFieldChangedFloatTolerance(t *testing.T) {
	f := FieldDescriptor{Name: "temperature", Type: FieldF32, ByteOffset: 0, ByteSize: 4}
	cur := make([]byte, 4)
	shadow := make([]byte, 4)
	binary.LittleEndian.PutUint32(shadow, math.Float32bits(23.50))
	binary.LittleEndian.PutUint32(cur, math.Float32bits(23.51))

	if fieldChanged(f, cur, shadow, 0.1) {
		t.Fatalf("difference within tolerance should not be reported changed")
	}
	if !fieldChanged(f, cur, shadow, 0.001) {
		t.Fatalf("difference beyond tolerance should be reported changed")
	}
}

func TestEncodeSectionDeltaOnlyDiffering(t *testing.T) {
	fields := []FieldDescriptor{
		{Name: "temperature", Type: FieldF32, ByteOffset: 0, ByteSize: 4},
		{Name: "humidity", Type: FieldF32, ByteOffset: 4, ByteSize: 4},
		{Name: "counter", Type: FieldU32, ByteOffset: 8, ByteSize: 4},
	}
	shadow := make([]byte, 12)
	binary.LittleEndian.PutUint32(shadow[0:], math.Float32bits(23.5))
	binary.LittleEndian.PutUint32(shadow[4:], math.Float32bits(45.0))
	binary.LittleEndian.PutUint32(shadow[8:], 1)

	cur := make([]byte, 12)
	copy(cur, shadow)
	binary.LittleEndian.PutUint32(cur[0:], math.Float32bits(24.0))

	var buf [128]byte
	w := NewJSONWriter(buf[:])
	changed := encodeSectionDelta(w, fields, cur, shadow, 0.01)
	if !changed {
		t.Fatalf("expected a change to be detected")
	}
	got := string(w.Bytes())
	want := `{"temperature":24}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

package core

import (
	"bytes"
	"encoding/binary"
	"math"
)

// The decode* helpers read the raw value of f out of buf according to its
// FieldType. Integer and float fields are little-endian; strings are
// returned NUL-trimmed.
func decodeBool(buf []byte, f FieldDescriptor) bool {
	return buf[f.ByteOffset] != 0
}

func decodeU8(buf []byte, f FieldDescriptor) uint8 {
	return buf[f.ByteOffset]
}

func decodeI8(buf []byte, f FieldDescriptor) int8 {
	return int8(buf[f.ByteOffset])
}

func decodeU16(buf []byte, f FieldDescriptor) uint16 {
	return binary.LittleEndian.Uint16(buf[f.ByteOffset:])
}

func decodeI16(buf []byte, f FieldDescriptor) int16 {
	return int16(binary.LittleEndian.Uint16(buf[f.ByteOffset:]))
}

func decodeU32(buf []byte, f FieldDescriptor) uint32 {
	return binary.LittleEndian.Uint32(buf[f.ByteOffset:])
}

func decodeI32(buf []byte, f FieldDescriptor) int32 {
	return int32(binary.LittleEndian.Uint32(buf[f.ByteOffset:]))
}

func decodeF32(buf []byte, f FieldDescriptor) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[f.ByteOffset:]))
}

func decodeString(buf []byte, f FieldDescriptor) string {
	span := buf[f.ByteOffset : f.ByteOffset+f.ByteSize]
	if i := bytes.IndexByte(span, 0); i >= 0 {
		span = span[:i]
	}
	return string(span)
}

// encodeField writes one field's current value from buf into w.
func encodeField(w *JSONWriter, f FieldDescriptor, buf []byte) {
	switch f.Type {
	case FieldBool:
		w.WriteBool(f.Name, decodeBool(buf, f))
	case FieldU8:
		w.WriteUint(f.Name, uint64(decodeU8(buf, f)))
	case FieldI8:
		w.WriteInt(f.Name, int64(decodeI8(buf, f)))
	case FieldU16:
		w.WriteUint(f.Name, uint64(decodeU16(buf, f)))
	case FieldI16:
		w.WriteInt(f.Name, int64(decodeI16(buf, f)))
	case FieldU32:
		w.WriteUint(f.Name, uint64(decodeU32(buf, f)))
	case FieldI32:
		w.WriteInt(f.Name, int64(decodeI32(buf, f)))
	case FieldF32:
		w.WriteFloat(f.Name, decodeF32(buf, f))
	case FieldString:
		w.WriteString(f.Name, decodeString(buf, f))
	}
}

// fieldChanged reports whether f's value in cur differs from shadow. Float
// fields use a caller-supplied absolute tolerance so that sub-epsilon
// sensor noise does not defeat delta publishing.
func fieldChanged(f FieldDescriptor, cur, shadow []byte, floatTolerance float32) bool {
	if f.Type == FieldF32 {
		a := decodeF32(cur, f)
		b := decodeF32(shadow, f)
		d := a - b
		if d < 0 {
			d = -d
		}
		return d > floatTolerance
	}
	span := f.ByteOffset + f.ByteSize
	return !bytes.Equal(cur[f.ByteOffset:span], shadow[f.ByteOffset:span])
}

// encodeSectionFull writes every field of a section as JSON into w.
func encodeSectionFull(w *JSONWriter, fields []FieldDescriptor, buf []byte) {
	w.BeginObject()
	for _, f := range fields {
		encodeField(w, f, buf)
	}
}

// encodeSectionDelta writes only the fields of a section that differ from
// shadow, using floatTolerance for float comparisons. It reports whether
// any field changed; when it returns false, w has an empty (but valid)
// object and the caller should typically suppress the publish entirely
// rather than send `{}`.
func encodeSectionDelta(w *JSONWriter, fields []FieldDescriptor, cur, shadow []byte, floatTolerance float32) bool {
	w.BeginObject()
	changed := false
	for _, f := range fields {
		if fieldChanged(f, cur, shadow, floatTolerance) {
			encodeField(w, f, cur)
			changed = true
		}
	}
	return changed
}

// decodeSectionInto applies every field present in r onto buf, leaving
// fields absent from the payload untouched, so a delta application is
// idempotent with a full one. It returns the set of field names actually
// applied.
func decodeSectionInto(r *JSONReader, fields []FieldDescriptor, buf []byte) []string {
	var applied []string
	for _, f := range fields {
		if decodeFieldInto(r, f, buf) {
			applied = append(applied, f.Name)
		}
	}
	return applied
}

// decodeFieldInto writes f's value from r into buf if present. It reports
// whether the field was found and applied.
func decodeFieldInto(r *JSONReader, f FieldDescriptor, buf []byte) bool {
	switch f.Type {
	case FieldBool:
		v, ok := r.GetBool(f.Name)
		if !ok {
			return false
		}
		if v {
			buf[f.ByteOffset] = 1
		} else {
			buf[f.ByteOffset] = 0
		}
		return true
	case FieldU8:
		v, ok := r.GetUint8(f.Name)
		if !ok {
			return false
		}
		buf[f.ByteOffset] = v
		return true
	case FieldI8:
		v, ok := r.GetInt(f.Name)
		if !ok {
			return false
		}
		buf[f.ByteOffset] = byte(int8(v))
		return true
	case FieldU16:
		v, ok := r.GetUint64(f.Name)
		if !ok {
			return false
		}
		binary.LittleEndian.PutUint16(buf[f.ByteOffset:], uint16(v))
		return true
	case FieldI16:
		v, ok := r.GetInt(f.Name)
		if !ok {
			return false
		}
		binary.LittleEndian.PutUint16(buf[f.ByteOffset:], uint16(int16(v)))
		return true
	case FieldU32:
		v, ok := r.GetUint64(f.Name)
		if !ok {
			return false
		}
		binary.LittleEndian.PutUint32(buf[f.ByteOffset:], uint32(v))
		return true
	case FieldI32:
		v, ok := r.GetInt(f.Name)
		if !ok {
			return false
		}
		binary.LittleEndian.PutUint32(buf[f.ByteOffset:], uint32(int32(v)))
		return true
	case FieldF32:
		v, ok := r.GetFloat(f.Name)
		if !ok {
			return false
		}
		binary.LittleEndian.PutUint32(buf[f.ByteOffset:], math.Float32bits(v))
		return true
	case FieldString:
		span := buf[f.ByteOffset : f.ByteOffset+f.ByteSize]
		n, ok := r.GetStringInto(f.Name, span[:len(span)-1])
		if !ok {
			return false
		}
		for i := n; i < len(span); i++ {
			span[i] = 0
		}
		return true
	}
	return false
}

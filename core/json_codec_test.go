package core

import "testing"

func TestJSONWriterBasicTypes(t *testing.T) {
	var buf [256]byte
	w := NewJSONWriter(buf[:])
	w.BeginObject()
	w.WriteInt("ts", 1234)
	w.WriteString("node", "sensor_A")
	w.WriteBool("online", true)
	w.WriteFloat("temperature", 23.5)

	if w.Err() {
		t.Fatalf("unexpected overflow")
	}
	got := string(w.Bytes())
	want := `{"ts":1234,"node":"sensor_A","online":true,"temperature":23.5}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestJSONWriterEscaping(t *testing.T) {
	var buf [128]byte
	w := NewJSONWriter(buf[:])
	w.BeginObject()
	w.WriteString("msg", "line1\nline2\"quoted\"\\slash")
	got := string(w.Bytes())
	want := `{"msg":"line1\nline2\"quoted\"\\slash"}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestJSONWriterOverflowSticky(t *testing.T) {
	var buf [8]byte
	w := NewJSONWriter(buf[:])
	w.BeginObject()
	w.WriteString("longkey", "longvalue")
	if !w.Err() {
		t.Fatalf("expected overflow error")
	}
	w.WriteInt("x", 1)
	if !w.Err() {
		t.Fatalf("error flag should remain sticky")
	}
}

func TestJSONWriterRejectsNonFiniteFloat(t *testing.T) {
	var buf [64]byte
	w := NewJSONWriter(buf[:])
	w.BeginObject()
	nan := float32(0)
	nan = nan / nan
	w.WriteFloat("v", nan)
	if !w.Err() {
		t.Fatalf("expected non-finite float to set error")
	}
}

func TestJSONReaderFindFieldDepthAware(t *testing.T) {
	payload := `{"ts":100,"nested":{"node":"wrong"},"node":"sensor_A"}`
	r := NewJSONReader([]byte(payload))
	s, e, ok := r.FindField("node")
	if !ok {
		t.Fatalf("expected to find top-level node field")
	}
	if got := string([]byte(payload)[s:e]); got != `"sensor_A"` {
		t.Fatalf("got %s, want \"sensor_A\"", got)
	}
}

func TestJSONReaderMissingFieldIsNotError(t *testing.T) {
	r := NewJSONReader([]byte(`{"a":1}`))
	if _, ok := r.GetInt("missing"); ok {
		t.Fatalf("expected missing field to report not-found")
	}
}

func TestJSONReaderTypedAccessors(t *testing.T) {
	r := NewJSONReader([]byte(`{"flag":true,"count":42,"level":-3,"ratio":1.5,"name":"dev_1"}`))

	if v, ok := r.GetBool("flag"); !ok || !v {
		t.Fatalf("GetBool: got %v, %v", v, ok)
	}
	if v, ok := r.GetUint64("count"); !ok || v != 42 {
		t.Fatalf("GetUint64: got %v, %v", v, ok)
	}
	if v, ok := r.GetInt("level"); !ok || v != -3 {
		t.Fatalf("GetInt: got %v, %v", v, ok)
	}
	if v, ok := r.GetFloat("ratio"); !ok || v != 1.5 {
		t.Fatalf("GetFloat: got %v, %v", v, ok)
	}
	buf := make([]byte, 16)
	n, ok := r.GetStringInto("name", buf)
	if !ok || string(buf[:n]) != "dev_1" {
		t.Fatalf("GetStringInto: got %q, %v", buf[:n], ok)
	}
}

func TestJSONReaderEmptyObject(t *testing.T) {
	r := NewJSONReader([]byte(`{}`))
	if _, _, ok := r.FindField("anything"); ok {
		t.Fatalf("expected empty object to match nothing")
	}
}

package core

import "testing"

func TestRegistryRegisterAndFind(t *testing.T) {
	r := NewRegistry()
	tt := sensorTableType(4)
	if err := r.Register(tt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := r.Find("SensorData")
	if !ok {
		t.Fatalf("expected to find registered table type")
	}
	if got.Name != "SensorData" || got.ConfigSize != 1 {
		t.Fatalf("unexpected table type: %+v", got)
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	tt := sensorTableType(4)
	if err := r.Register(tt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register(tt)
	if err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrTableAlreadyRegistered {
		t.Fatalf("expected ErrTableAlreadyRegistered, got %v", err)
	}
}

func TestRegistryRejectsOverlappingFields(t *testing.T) {
	r := NewRegistry()
	tt := TableType{
		Name:       "Bad",
		ConfigSize: 4,
		ConfigFields: []FieldDescriptor{
			{Name: "a", Type: FieldU16, ByteOffset: 0, ByteSize: 2},
			{Name: "b", Type: FieldU16, ByteOffset: 1, ByteSize: 2},
		},
	}
	err := r.Register(tt)
	if err == nil {
		t.Fatalf("expected overlapping fields to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrInvalidTable {
		t.Fatalf("expected ErrInvalidTable, got %v", err)
	}
}

func TestRegistryRejectsFieldSpanningPastSection(t *testing.T) {
	r := NewRegistry()
	tt := TableType{
		Name:       "Bad2",
		ConfigSize: 2,
		ConfigFields: []FieldDescriptor{
			{Name: "a", Type: FieldU32, ByteOffset: 0, ByteSize: 4},
		},
	}
	err := r.Register(tt)
	if kind, ok := KindOf(err); !ok || kind != ErrSectionTooLarge {
		t.Fatalf("expected ErrSectionTooLarge, got %v", err)
	}
}

func TestRegistryLen(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
	if err := r.RegisterAll([]TableType{sensorTableType(2)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected one registered type, got %d", r.Len())
	}
}

// Package schema loads compiled table-type metadata from a YAML document
// and compiles it into core.TableType values. It is the "codegen-emitted
// initializer" the engine expects to run once at process start, before
// Engine.Init: only the compiled descriptor shape is implemented here,
// never a schema-DSL parser.
package schema

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"sds-engine/core"
)

// FieldSpec is one field entry in a table's config/state/status section.
type FieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Size is required for type "string" (the field's byte capacity,
	// including the null terminator budget) and ignored otherwise.
	Size int `yaml:"size"`
}

// SectionSpec is one of a table's three sections.
type SectionSpec struct {
	Fields []FieldSpec `yaml:"fields"`
}

// TableSpec is one table entry in the schema document.
type TableSpec struct {
	Name               string      `yaml:"name"`
	SyncIntervalMS     int64       `yaml:"sync_interval_ms"`
	LivenessIntervalMS int64       `yaml:"liveness_interval_ms"`
	MaxStatusSlots     int         `yaml:"max_status_slots"`
	Config             SectionSpec `yaml:"config"`
	State              SectionSpec `yaml:"state"`
	Status             SectionSpec `yaml:"status"`
}

// Schema is the root of a compiled schema document: a version stamp plus
// the table list.
type Schema struct {
	Version string      `yaml:"version"`
	Tables  []TableSpec `yaml:"tables"`
}

// Load parses a YAML schema document from r.
func Load(r io.Reader) (*Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	return &s, nil
}

// fieldByteSize returns the natural width of a field type, or spec.Size
// for strings.
func fieldByteSize(t string, size int) (int, error) {
	switch t {
	case "bool", "u8", "i8":
		return 1, nil
	case "u16", "i16":
		return 2, nil
	case "u32", "i32", "f32":
		return 4, nil
	case "string":
		if size <= 0 {
			return 0, fmt.Errorf("string field requires positive size")
		}
		return size, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", t)
	}
}

func fieldType(t string) (core.FieldType, error) {
	switch t {
	case "bool":
		return core.FieldBool, nil
	case "u8":
		return core.FieldU8, nil
	case "i8":
		return core.FieldI8, nil
	case "u16":
		return core.FieldU16, nil
	case "i16":
		return core.FieldI16, nil
	case "u32":
		return core.FieldU32, nil
	case "i32":
		return core.FieldI32, nil
	case "f32":
		return core.FieldF32, nil
	case "string":
		return core.FieldString, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", t)
	}
}

// compileSection lays out fields sequentially starting at byte offset 0,
// the way a schema compiler assigns non-overlapping, sorted offsets.
func compileSection(sec SectionSpec) ([]core.FieldDescriptor, int, error) {
	out := make([]core.FieldDescriptor, 0, len(sec.Fields))
	offset := 0
	for _, f := range sec.Fields {
		size, err := fieldByteSize(f.Type, f.Size)
		if err != nil {
			return nil, 0, fmt.Errorf("field %q: %w", f.Name, err)
		}
		ft, err := fieldType(f.Type)
		if err != nil {
			return nil, 0, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out = append(out, core.FieldDescriptor{
			Name:       f.Name,
			Type:       ft,
			ByteOffset: offset,
			ByteSize:   size,
		})
		offset += size
	}
	return out, offset, nil
}

// Compile turns the parsed schema into registry-ready TableType values.
func (s *Schema) Compile() ([]core.TableType, error) {
	out := make([]core.TableType, 0, len(s.Tables))
	for _, t := range s.Tables {
		configFields, configSize, err := compileSection(t.Config)
		if err != nil {
			return nil, fmt.Errorf("table %q: config: %w", t.Name, err)
		}
		stateFields, stateSize, err := compileSection(t.State)
		if err != nil {
			return nil, fmt.Errorf("table %q: state: %w", t.Name, err)
		}
		statusFields, statusSize, err := compileSection(t.Status)
		if err != nil {
			return nil, fmt.Errorf("table %q: status: %w", t.Name, err)
		}
		out = append(out, core.TableType{
			Name:               t.Name,
			ConfigSize:         configSize,
			StateSize:          stateSize,
			StatusSize:         statusSize,
			ConfigFields:       configFields,
			StateFields:        stateFields,
			StatusFields:       statusFields,
			SyncIntervalMS:     t.SyncIntervalMS,
			LivenessIntervalMS: t.LivenessIntervalMS,
			MaxStatusSlots:     t.MaxStatusSlots,
		})
	}
	return out, nil
}

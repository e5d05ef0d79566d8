package core

import (
	"fmt"
	"sync"
)

// Registry provides O(T) lookup from a table-type name to its immutable
// TableType descriptor, where T is small (typically well under 32
// registered types). It is populated once, at process start, by a call to
// Register/RegisterAll before Engine.Init, and must not be mutated once
// Engine.Loop is running concurrently with registrations.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TableType
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*TableType)}
}

// Register validates tt and adds it to the registry. It rejects a
// TableType whose field descriptors overlap or whose cumulative byte span
// exceeds the declared section size, an invariant the schema compiler is
// expected to uphold.
func (r *Registry) Register(tt TableType) error {
	if tt.Name == "" {
		return newError(ErrInvalidTable, "table type name is empty", nil)
	}
	if err := validateSection(tt.Name, "config", tt.ConfigFields, tt.ConfigSize); err != nil {
		return err
	}
	if err := validateSection(tt.Name, "state", tt.StateFields, tt.StateSize); err != nil {
		return err
	}
	if err := validateSection(tt.Name, "status", tt.StatusFields, tt.StatusSize); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[tt.Name]; exists {
		return newError(ErrTableAlreadyRegistered, tt.Name, nil)
	}
	cp := tt
	r.types[tt.Name] = &cp
	return nil
}

// RegisterAll registers every entry in types, stopping at the first error.
func (r *Registry) RegisterAll(types []TableType) error {
	for _, tt := range types {
		if err := r.Register(tt); err != nil {
			return err
		}
	}
	return nil
}

// Find looks up a TableType by name.
func (r *Registry) Find(name string) (*TableType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tt, ok := r.types[name]
	return tt, ok
}

// Len returns the number of registered table types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

func validateSection(tableName, section string, fields []FieldDescriptor, sectionSize int) error {
	if sectionSize < 0 {
		return newError(ErrInvalidTable, fmt.Sprintf("%s.%s: negative section size", tableName, section), nil)
	}
	type span struct{ start, end int }
	spans := make([]span, 0, len(fields))
	for _, f := range fields {
		if f.ByteOffset < 0 || f.ByteSize <= 0 {
			return newError(ErrInvalidTable, fmt.Sprintf("%s.%s: field %q has non-positive size", tableName, section, f.Name), nil)
		}
		end := f.ByteOffset + f.ByteSize
		if end > sectionSize {
			return newError(ErrSectionTooLarge, fmt.Sprintf("%s.%s: field %q spans past section size %d", tableName, section, f.Name, sectionSize), nil)
		}
		spans = append(spans, span{f.ByteOffset, end})
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				return newError(ErrInvalidTable, fmt.Sprintf("%s.%s: fields %q and %q overlap", tableName, section, fields[i].Name, fields[j].Name), nil)
			}
		}
	}
	return nil
}

// Package core implements the SDS synchronization engine: the table
// registry, the shadow-diff publisher, the topic router, the owner-side
// slot table, the JSON section codec, and the reconnection state machine.
// The MQTT broker, the monotonic clock and the logging sink are consumed
// only through the interfaces in transport.go; schema metadata arrives as
// TableType values added to a Registry.
package core

import "sync"

// Role is the per-table role a node plays. Exactly one node in a fleet
// should register a table as RoleOwner; any number may register it as
// RoleDevice.
type Role int

const (
	RoleDevice Role = iota
	RoleOwner
)

func (r Role) String() string {
	if r == RoleOwner {
		return "owner"
	}
	return "device"
}

// FieldType enumerates the wire-compatible scalar types a FieldDescriptor
// may describe.
type FieldType int

const (
	FieldBool FieldType = iota
	FieldU8
	FieldI8
	FieldU16
	FieldI16
	FieldU32
	FieldI32
	FieldF32
	FieldString
)

// FieldDescriptor locates one named field inside a section's byte buffer.
// For FieldString, ByteSize is the declared string[N] capacity (including
// the implicit null terminator budget); for every other type ByteSize is
// the type's natural width.
type FieldDescriptor struct {
	Name       string
	Type       FieldType
	ByteOffset int
	ByteSize   int
}

// TableType is the immutable, per-schema-entry descriptor produced by the
// (out-of-scope) schema compiler. Once registered it must not be mutated
// while any Engine.Loop is running; see Registry.
type TableType struct {
	Name string

	ConfigSize int
	StateSize  int
	StatusSize int

	ConfigFields []FieldDescriptor
	StateFields  []FieldDescriptor
	StatusFields []FieldDescriptor

	SyncIntervalMS     int64
	LivenessIntervalMS int64

	// MaxStatusSlots bounds the owner-side per-device slot array. Ignored
	// for device-role registrations.
	MaxStatusSlots int
}

// fieldsFor returns the field list for a section of this table type.
func (t *TableType) fieldsFor(s sectionKind) []FieldDescriptor {
	switch s {
	case sectionConfig:
		return t.ConfigFields
	case sectionState:
		return t.StateFields
	default:
		return t.StatusFields
	}
}

func (t *TableType) sizeFor(s sectionKind) int {
	switch s {
	case sectionConfig:
		return t.ConfigSize
	case sectionState:
		return t.StateSize
	default:
		return t.StatusSize
	}
}

type sectionKind int

const (
	sectionConfig sectionKind = iota
	sectionState
	sectionStatus
)

func (s sectionKind) topicSuffix() string {
	switch s {
	case sectionConfig:
		return "config"
	case sectionState:
		return "state"
	default:
		return "status"
	}
}

// Table is the user-owned memory an engine registration reads from and
// writes into. Config() and State() back the shared, many-writer sections;
// Status() is the device's own per-node status payload. A device-role
// table must return non-nil slices sized exactly TableType.ConfigSize /
// StateSize / StatusSize; an owner-role table's Status() is unused (status
// lives in its OwnerSlot array instead) and may be nil.
type Table interface {
	Config() []byte
	State() []byte
	Status() []byte
}

// OwnerSlot is one per-device row in an owner table's status slot array.
// Status is only meaningful when Valid is true.
type OwnerSlot struct {
	NodeID              string
	Valid               bool
	Online              bool
	LastSeenMS          int64
	EvictionPending     bool
	EvictionDeadlineMS  int64
	Status              []byte
}

// OwnerTable is implemented in addition to Table by any struct registered
// with RoleOwner. Slots must return a fixed-capacity slice of length
// TableType.MaxStatusSlots, each with Status pre-sized to StatusSize.
// SlotCount must return a pointer to the caller's status_count field so
// the engine can keep it in sync with the number of valid slots.
type OwnerTable interface {
	Table
	Slots() []*OwnerSlot
	SlotCount() *int
}

// TableCallbacks are the user-registered notification hooks for one table.
// Any of them may be nil.
type TableCallbacks struct {
	OnConfig func()
	OnState  func()
	OnStatus func(nodeID string)
}

// tableContext is the engine-owned bookkeeping record for one registered
// table: role, the user's Table, shadows, tick timestamps and fallback
// flags. One is allocated per RegisterTable call and freed on
// UnregisterTable or Shutdown.
type tableContext struct {
	name      string
	role      Role
	table     Table
	ownerTbl  OwnerTable // non-nil iff role == RoleOwner
	tableType *TableType
	callbacks TableCallbacks

	configShadow []byte
	stateShadow  []byte
	statusShadow []byte

	lastSyncTick        int64
	lastPublishMSState  int64
	lastPublishMSStatus int64

	fallbackFullConfig bool
	fallbackFullState  bool
	fallbackFullStatus bool

	// ownerMu guards Slots()/SlotCount() access for RoleOwner
	// registrations, which are read from Engine.Loop and written from
	// inbound-message delivery. Those two paths already serialize on
	// Engine.mu; ownerMu also covers the slot helpers when they are
	// called without it.
	ownerMu sync.Mutex
}

func newTableContext(name string, role Role, table Table, tt *TableType, cb TableCallbacks) *tableContext {
	tc := &tableContext{
		name:      name,
		role:      role,
		table:     table,
		tableType: tt,
		callbacks: cb,

		configShadow: make([]byte, tt.ConfigSize),
		stateShadow:  make([]byte, tt.StateSize),
		statusShadow: make([]byte, tt.StatusSize),

		// Registration is the first sync; force a full publish of every
		// applicable section instead of relying on (all-zero) shadows
		// happening to differ from freshly-initialized sections.
		fallbackFullConfig: true,
		fallbackFullState:  true,
		fallbackFullStatus: true,
	}
	if role == RoleOwner {
		tc.ownerTbl, _ = table.(OwnerTable)
	}
	return tc
}

package core

import (
	"context"
	"sync"
)

// EngineConfig carries the engine's runtime configuration plus the
// tuning knobs the reconnection and raw-subscription components need.
// Values typically arrive from pkg/config, but nothing here depends on
// that package, so a caller may build one by hand in a test.
type EngineConfig struct {
	NodeID       string
	MQTTBroker   string
	MQTTPort     int
	MQTTUsername string
	MQTTPassword string

	EvictionGraceMS     int64
	EnableDeltaSync     bool
	DeltaFloatTolerance float32

	SchemaVersion      string
	StrictVersionCheck bool

	ReconnectInitialBackoffMS int64
	ReconnectMaxBackoffMS     int64

	// MaxRawSubscriptions bounds the SubscribeRaw table. Zero means the
	// default of 8.
	MaxRawSubscriptions int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ReconnectInitialBackoffMS <= 0 {
		c.ReconnectInitialBackoffMS = 1000
	}
	if c.ReconnectMaxBackoffMS <= 0 {
		c.ReconnectMaxBackoffMS = 60000
	}
	if c.MaxRawSubscriptions <= 0 {
		c.MaxRawSubscriptions = 8
	}
	return c
}

// Engine is the caller-owned GlobalState: the registry, the active table
// contexts, connection/reconnect state, the raw-subscription table,
// counters, and the registered callbacks. There is no package-level
// singleton; a host constructs one Engine per node identity.
type Engine struct {
	cfg       EngineConfig
	transport MQTTClient
	clock     Clock
	logger    Logger
	stats     *Stats
	registry  *Registry

	// mu serializes Loop() against the transport's delivery callback,
	// which the paho adapter invokes from its own goroutine. A host
	// driving Loop() from a single thread pays only uncontended-lock
	// cost for this.
	mu sync.Mutex

	initialized bool
	connected   bool

	tables     map[string]*tableContext
	tableOrder []string

	reconnect reconnectState

	rawSubs []rawSubscription

	onError           func(kind ErrorKind, context string)
	onVersionMismatch func(tableType, nodeID, localVersion, remoteVersion string) bool
	onEviction        func(tableType, nodeID string)
}

// NewEngine constructs an Engine bound to registry, transport, clock and
// logger. clock defaults to RealClock and logger to a no-op sink when nil.
func NewEngine(cfg EngineConfig, registry *Registry, transport MQTTClient, clock Clock, logger Logger) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Engine{
		cfg:       cfg.withDefaults(),
		transport: transport,
		clock:     clock,
		logger:    logger,
		stats:     newStats(),
		registry:  registry,
		tables:    make(map[string]*tableContext),
	}
}

// OnError registers the async error sink.
func (e *Engine) OnError(cb func(kind ErrorKind, context string)) { e.onError = cb }

// OnVersionMismatch registers the schema-version negotiation hook.
// Returning false discards the inbound message before it mutates state.
func (e *Engine) OnVersionMismatch(cb func(tableType, nodeID, localVersion, remoteVersion string) bool) {
	e.onVersionMismatch = cb
}

// OnEviction registers the per-table eviction notification.
func (e *Engine) OnEviction(cb func(tableType, nodeID string)) { e.onEviction = cb }

// Stats returns a point-in-time snapshot of the engine's counters.
func (e *Engine) Stats() StatsSnapshot { return e.stats.snapshot() }

// IsReady reports whether the engine is initialized and currently
// connected to the broker.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized && e.connected
}

func (e *Engine) reportError(kind ErrorKind, context string) {
	e.stats.incErrors()
	e.logger.Errorf("sds: %s: %s", kind, context)
	if e.onError != nil {
		e.onError(kind, context)
	}
}

// Init validates cfg, installs the delivery callback, and connects with
// the node's Last Will and Testament. It subscribes to sds/lwt/+ on
// success.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return newError(ErrAlreadyInitialized, "", nil)
	}
	if e.cfg.NodeID == "" {
		return newError(ErrInvalidConfig, "node_id is empty", nil)
	}
	if e.cfg.MQTTBroker == "" {
		return newError(ErrInvalidConfig, "mqtt_broker is empty", nil)
	}

	e.transport.SetDeliveryCallback(e.onDelivery)

	willPayload := []byte(`{"online":false,"node":"` + jsonEscapeSimple(e.cfg.NodeID) + `","ts":0}`)
	opts := ConnectOptions{
		ClientID:     e.cfg.NodeID,
		Broker:       e.cfg.MQTTBroker,
		Port:         e.cfg.MQTTPort,
		Username:     e.cfg.MQTTUsername,
		Password:     e.cfg.MQTTPassword,
		WillTopic:    "sds/lwt/" + e.cfg.NodeID,
		WillPayload:  willPayload,
		WillQoS:      1,
		WillRetained: true,
	}
	if err := e.transport.Connect(ctx, opts); err != nil {
		return newError(ErrMQTTConnectFailed, e.cfg.MQTTBroker, err)
	}
	if err := e.transport.Subscribe("sds/lwt/+", 1); err != nil {
		return newError(ErrPlatformError, "subscribe sds/lwt/+", err)
	}

	e.initialized = true
	e.connected = true
	e.reconnect = reconnectState{backoffMS: e.cfg.ReconnectInitialBackoffMS}
	return nil
}

// RegisterTable registers table under name with the given role and
// callbacks, looking up its TableType in the engine's registry.
func (e *Engine) RegisterTable(name string, role Role, table Table, cb TableCallbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tt, ok := e.registry.Find(name)
	if !ok {
		return newError(ErrTableNotFound, name, nil)
	}
	if _, exists := e.tables[name]; exists {
		return newError(ErrTableAlreadyRegistered, name, nil)
	}
	if role == RoleOwner {
		if _, ok := table.(OwnerTable); !ok {
			return newError(ErrInvalidRole, name+": owner role requires OwnerTable", nil)
		}
	}

	tc := newTableContext(name, role, table, tt, cb)
	e.tables[name] = tc
	e.tableOrder = append(e.tableOrder, name)

	if role == RoleOwner {
		if err := e.transport.Subscribe("sds/"+name+"/state", 0); err != nil {
			return newError(ErrPlatformError, "subscribe "+name+"/state", err)
		}
		if err := e.transport.Subscribe("sds/"+name+"/status/+", 0); err != nil {
			return newError(ErrPlatformError, "subscribe "+name+"/status/+", err)
		}
	} else {
		if err := e.transport.Subscribe("sds/"+name+"/config", 0); err != nil {
			return newError(ErrPlatformError, "subscribe "+name+"/config", err)
		}
	}
	return nil
}

// UnregisterTable removes a previously registered table and best-effort
// unsubscribes its topics.
func (e *Engine) UnregisterTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tc, ok := e.tables[name]
	if !ok {
		return newError(ErrTableNotFound, name, nil)
	}
	if tc.role == RoleOwner {
		e.transport.Unsubscribe("sds/" + name + "/state")
		e.transport.Unsubscribe("sds/" + name + "/status/+")
	} else {
		e.transport.Unsubscribe("sds/" + name + "/config")
	}
	delete(e.tables, name)
	for i, n := range e.tableOrder {
		if n == name {
			e.tableOrder = append(e.tableOrder[:i], e.tableOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Loop performs one non-blocking iteration: reconnect if needed, sync
// every registered table in order, then run the eviction sweep. It never
// blocks on transport I/O beyond what the transport's own pump does.
func (e *Engine) Loop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.NowMS()

	if !e.transport.IsConnected() {
		if e.connected {
			e.connected = false
			e.reportError(ErrMQTTDisconnected, "")
		}
		e.maybeReconnect(now)
	}

	if !e.connected {
		return
	}

	for _, name := range e.tableOrder {
		tc := e.tables[name]
		e.syncTable(tc, now)
	}

	e.runEvictionSweep(now)
	e.recomputeActiveDevices()
}

// recomputeActiveDevices refreshes the sds_active_devices gauge from
// every owner table's SlotCount(). Must be called with e.mu held.
func (e *Engine) recomputeActiveDevices() {
	var n uint64
	for _, tc := range e.tables {
		if tc.role == RoleOwner {
			n += uint64(*tc.ownerTbl.SlotCount())
		}
	}
	e.stats.setActiveDevices(n)
}

// Shutdown publishes a graceful offline status for every device-role
// table, unsubscribes everything, disconnects, and clears contexts. Safe
// to call when not initialized.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return
	}

	now := e.clock.NowMS()
	for _, name := range e.tableOrder {
		tc := e.tables[name]
		if tc.role != RoleDevice {
			continue
		}
		payload := []byte(`{"online":false,"node":"` + jsonEscapeSimple(e.cfg.NodeID) + `","ts":` + itoa64(now) + `}`)
		e.transport.Publish("sds/"+tc.name+"/status/"+e.cfg.NodeID, 0, true, payload)
	}

	for _, name := range e.tableOrder {
		tc := e.tables[name]
		if tc.role == RoleOwner {
			e.transport.Unsubscribe("sds/" + name + "/state")
			e.transport.Unsubscribe("sds/" + name + "/status/+")
		} else {
			e.transport.Unsubscribe("sds/" + name + "/config")
		}
	}
	e.transport.Unsubscribe("sds/lwt/+")
	for _, rs := range e.rawSubs {
		e.transport.Unsubscribe(rs.pattern)
	}

	e.transport.Disconnect()
	e.tables = make(map[string]*tableContext)
	e.tableOrder = nil
	e.rawSubs = nil
	e.initialized = false
	e.connected = false
}

// runEvictionSweep sweeps every owner-role table's slot table and fires
// OnEviction once per evicted device per table. Must be called with e.mu
// held.
func (e *Engine) runEvictionSweep(now int64) {
	for _, name := range e.tableOrder {
		tc := e.tables[name]
		if tc.role != RoleOwner {
			continue
		}
		for _, nodeID := range evictionSweep(tc, now) {
			e.stats.incEvictions()
			if e.onEviction != nil {
				e.onEviction(name, nodeID)
			}
		}
	}
}

// jsonEscapeSimple escapes a node id for inline use in a hand-built
// envelope string. Node ids are short bounded identifiers, not arbitrary
// user text, so this covers only the two characters a JSON string cannot
// hold unescaped among printable ASCII: '"' and '\\'.
func jsonEscapeSimple(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

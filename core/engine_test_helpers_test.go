package core

import "context"

// fakeClock is a manually-advanced Clock for deterministic tests.
type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMS() int64 { return c.ms }
func (c *fakeClock) advance(d int64) { c.ms += d }

// publishedMsg records one call to fakeTransport.Publish.
type publishedMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeTransport is an in-memory MQTTClient double: it never talks to a
// real broker, just records calls and lets the test inject inbound
// deliveries via deliver().
type fakeTransport struct {
	connected   bool
	connectErr  error
	publishErr  error
	published   []publishedMsg
	subscribed  map[string]int
	cb          func(topic string, payload []byte)
	connectOpts ConnectOptions
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribed: make(map[string]int)}
}

func (f *fakeTransport) Connect(ctx context.Context, opts ConnectOptions) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connectOpts = opts
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect()        { f.connected = false }
func (f *fakeTransport) IsConnected() bool  { return f.connected }

func (f *fakeTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.published = append(f.published, publishedMsg{topic, qos, retained, cp})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte) error {
	f.subscribed[topic]++
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	delete(f.subscribed, topic)
	return nil
}

func (f *fakeTransport) SetDeliveryCallback(cb func(topic string, payload []byte)) {
	f.cb = cb
}

// deliver simulates the broker handing an inbound message to the engine.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.cb(topic, payload)
}

// lastPublishTo returns the most recent publish to topic, if any.
func (f *fakeTransport) lastPublishTo(topic string) (publishedMsg, bool) {
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].topic == topic {
			return f.published[i], true
		}
	}
	return publishedMsg{}, false
}

// deviceTable is a minimal Table implementation backed by plain slices,
// standing in for the codegen-emitted per-device struct.
type deviceTable struct {
	config []byte
	state  []byte
	status []byte
}

func (t *deviceTable) Config() []byte { return t.config }
func (t *deviceTable) State() []byte  { return t.state }
func (t *deviceTable) Status() []byte { return t.status }

// ownerTable adds the OwnerSlot array an owner-role registration needs.
type ownerTable struct {
	deviceTable
	slots     []*OwnerSlot
	slotCount int
}

func (t *ownerTable) Slots() []*OwnerSlot { return t.slots }
func (t *ownerTable) SlotCount() *int     { return &t.slotCount }

func newOwnerTable(maxSlots, statusSize int) *ownerTable {
	slots := make([]*OwnerSlot, maxSlots)
	for i := range slots {
		slots[i] = &OwnerSlot{Status: make([]byte, statusSize)}
	}
	return &ownerTable{slots: slots}
}

// sensorTableType is a small representative TableType used across tests:
// config{command:u8}, state{temperature:f32}, status{online_flag:u8}.
func sensorTableType(maxSlots int) TableType {
	return TableType{
		Name:               "SensorData",
		ConfigSize:         1,
		StateSize:          4,
		StatusSize:         1,
		ConfigFields:       []FieldDescriptor{{Name: "command", Type: FieldU8, ByteOffset: 0, ByteSize: 1}},
		StateFields:        []FieldDescriptor{{Name: "temperature", Type: FieldF32, ByteOffset: 0, ByteSize: 4}},
		StatusFields:       []FieldDescriptor{{Name: "flag", Type: FieldU8, ByteOffset: 0, ByteSize: 1}},
		SyncIntervalMS:     100,
		LivenessIntervalMS: 5000,
		MaxStatusSlots:     maxSlots,
	}
}

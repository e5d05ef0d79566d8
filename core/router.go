package core

import "strings"

const maxInboundPayload = 4096

// maxTopicSegmentLen bounds each "/"-delimited topic segment (table-type
// name, node id). A segment past this length cannot belong to a registered
// table or a valid node id, so the message is dropped before the lookup.
const maxTopicSegmentLen = 128

// onDelivery is installed as the transport's delivery callback. It
// runs on whatever goroutine the transport invokes it from; e.mu
// serializes it against Loop().
func (e *Engine) onDelivery(topic string, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recomputeActiveDevices()

	if len(payload) > maxInboundPayload {
		e.reportError(ErrBufferFull, topic)
		return
	}

	segs := strings.Split(topic, "/")
	if segs[0] != "sds" {
		e.dispatchRaw(topic, payload)
		return
	}

	for _, s := range segs[1:] {
		if len(s) > maxTopicSegmentLen {
			e.logger.Debugf("sds: topic segment too long, dropping %q", topic)
			return
		}
	}

	switch {
	case len(segs) == 3 && segs[1] == "lwt":
		e.handleLWTMessage(segs[2], payload)
	case len(segs) == 3 && segs[2] == "config":
		e.handleConfigMessage(segs[1], payload)
	case len(segs) == 3 && segs[2] == "state":
		e.handleStateMessage(segs[1], payload)
	case len(segs) == 4 && segs[2] == "status":
		e.handleStatusMessage(segs[1], segs[3], payload)
	default:
		e.logger.Debugf("sds: unroutable topic %q", topic)
	}
}

// checkVersion applies the optional schema-version gate. It returns false
// when the message must be discarded before mutating any state.
func (e *Engine) checkVersion(r *JSONReader, tableType, nodeID string) bool {
	start, end, ok := r.FindField("sv")
	if !ok {
		return true
	}
	if end-start < 2 {
		return true
	}
	remote := string(r.data[start+1 : end-1])
	if remote == e.cfg.SchemaVersion {
		return true
	}
	if e.onVersionMismatch != nil {
		return e.onVersionMismatch(tableType, nodeID, e.cfg.SchemaVersion, remote)
	}
	return !e.cfg.StrictVersionCheck
}

func (e *Engine) handleConfigMessage(typeName string, payload []byte) {
	tc, ok := e.tables[typeName]
	if !ok || tc.role != RoleDevice {
		return
	}
	r := NewJSONReader(payload)
	applied := decodeSectionInto(r, tc.tableType.ConfigFields, tc.table.Config())
	if applied == nil {
		return
	}
	copy(tc.configShadow, tc.table.Config())
	if tc.callbacks.OnConfig != nil {
		tc.callbacks.OnConfig()
	}
}

func (e *Engine) handleStateMessage(typeName string, payload []byte) {
	tc, ok := e.tables[typeName]
	if !ok || tc.role != RoleOwner {
		return
	}
	r := NewJSONReader(payload)
	if node, ok := r.getStringField("node"); ok && node == e.cfg.NodeID {
		return
	}
	if !e.checkVersion(r, typeName, "") {
		return
	}
	applied := decodeSectionInto(r, tc.tableType.StateFields, tc.table.State())
	if applied == nil {
		return
	}
	copy(tc.stateShadow, tc.table.State())
	if tc.callbacks.OnState != nil {
		tc.callbacks.OnState()
	}
}

func (e *Engine) handleStatusMessage(typeName, nodeID string, payload []byte) {
	if typeName == "" || nodeID == "" {
		return
	}
	tc, ok := e.tables[typeName]
	if !ok || tc.role != RoleOwner {
		return
	}
	if nodeID == e.cfg.NodeID {
		return
	}
	r := NewJSONReader(payload)
	if !e.checkVersion(r, typeName, nodeID) {
		return
	}

	scratch := make([]byte, tc.tableType.StatusSize)
	slot, ok := findOrAllocateSlotByID(tc, nodeID)
	if ok {
		copy(scratch, slot.Status)
	}
	decodeSectionInto(r, tc.tableType.StatusFields, scratch)

	online := true
	if v, ok := r.GetBool("online"); ok {
		online = v
	}

	now := e.clock.NowMS()
	slot, ok = applyInboundStatus(tc, nodeID, scratch, now)
	if !ok {
		e.reportError(ErrMaxNodesReached, typeName+"/"+nodeID)
		return
	}
	slot.Online = online
	if !online && e.cfg.EvictionGraceMS > 0 {
		tc.ownerMu.Lock()
		slot.EvictionPending = true
		slot.EvictionDeadlineMS = now + e.cfg.EvictionGraceMS
		tc.ownerMu.Unlock()
	}

	if tc.callbacks.OnStatus != nil {
		tc.callbacks.OnStatus(nodeID)
	}
}

// handleLWTMessage reacts to a broker-delivered will for nodeID: every
// owner-role table with a valid slot for that node is marked offline and
// its eviction timer armed.
func (e *Engine) handleLWTMessage(nodeID string, payload []byte) {
	if nodeID == "" {
		return
	}
	now := e.clock.NowMS()
	for _, tc := range e.tables {
		if tc.role != RoleOwner {
			continue
		}
		handleLWT(tc, nodeID, now, e.cfg.EvictionGraceMS)
		if tc.callbacks.OnStatus != nil {
			tc.callbacks.OnStatus(nodeID)
		}
	}
}

// findOrAllocateSlotByID is the router's entry point into the slot table;
// it takes tc.ownerMu around findOrAllocateSlot, so callers composing
// multiple slot operations under one lock call the unexported
// findOrAllocateSlot directly instead.
func findOrAllocateSlotByID(tc *tableContext, nodeID string) (*OwnerSlot, bool) {
	tc.ownerMu.Lock()
	defer tc.ownerMu.Unlock()
	return findOrAllocateSlot(tc, nodeID)
}

func (r *JSONReader) getStringField(key string) (string, bool) {
	buf := make([]byte, 256)
	n, ok := r.GetStringInto(key, buf)
	if !ok {
		return "", false
	}
	return string(buf[:n]), true
}

package core

// slots.go implements the owner-side per-device slot table: finding or
// allocating the OwnerSlot for an inbound status update, applying that
// update, reacting to a Last Will and Testament, and sweeping slots whose
// grace period has elapsed. A slot table has no background goroutine of
// its own; every entry point here is invoked from Engine.Loop or from the
// MQTT delivery callback, both serialized by tc.ownerMu.

// findOrAllocateSlot returns the slot for nodeID, allocating the first
// free (Valid == false) slot if none exists yet. It reports ok == false
// when every slot is occupied by a different node, rather than silently
// overwriting an unrelated device.
func findOrAllocateSlot(tc *tableContext, nodeID string) (slot *OwnerSlot, ok bool) {
	slots := tc.ownerTbl.Slots()
	var free *OwnerSlot
	for _, s := range slots {
		if s.Valid && s.NodeID == nodeID {
			return s, true
		}
		if free == nil && !s.Valid {
			free = s
		}
	}
	if free == nil {
		return nil, false
	}
	free.NodeID = nodeID
	free.Valid = true
	free.Online = false
	free.EvictionPending = false
	free.EvictionDeadlineMS = 0
	return free, true
}

// applyInboundStatus records a fresh status payload from nodeID: it
// finds-or-allocates the slot, copies payload into its Status buffer (the
// caller is responsible for having already decoded the JSON into a
// scratch buffer of the correct size), marks it online, clears any
// pending eviction, and keeps SlotCount() in sync with the number of
// valid slots.
func applyInboundStatus(tc *tableContext, nodeID string, payload []byte, nowMS int64) (*OwnerSlot, bool) {
	tc.ownerMu.Lock()
	defer tc.ownerMu.Unlock()

	slot, ok := findOrAllocateSlot(tc, nodeID)
	if !ok {
		return nil, false
	}
	n := copy(slot.Status, payload)
	for i := n; i < len(slot.Status); i++ {
		slot.Status[i] = 0
	}
	slot.Online = true
	slot.LastSeenMS = nowMS
	slot.EvictionPending = false
	slot.EvictionDeadlineMS = 0
	syncSlotCount(tc)
	return slot, true
}

// handleLWT marks nodeID's slot offline immediately and, when
// evictionGraceMS > 0, arms its eviction deadline. The LWT message is the
// broker's own signal that the device's session dropped, so liveness is
// revoked without waiting out the next
// missed-heartbeat window. A node with no existing slot is ignored: an
// LWT for a device that never published status carries nothing to evict.
func handleLWT(tc *tableContext, nodeID string, nowMS int64, evictionGraceMS int64) {
	tc.ownerMu.Lock()
	defer tc.ownerMu.Unlock()

	for _, s := range tc.ownerTbl.Slots() {
		if s.Valid && s.NodeID == nodeID {
			s.Online = false
			if evictionGraceMS > 0 {
				s.EvictionPending = true
				s.EvictionDeadlineMS = nowMS + evictionGraceMS
			}
			return
		}
	}
}

// isDeviceOnline reports whether nodeID currently occupies a valid,
// online slot.
func isDeviceOnline(tc *tableContext, nodeID string) bool {
	tc.ownerMu.Lock()
	defer tc.ownerMu.Unlock()

	for _, s := range tc.ownerTbl.Slots() {
		if s.Valid && s.NodeID == nodeID {
			return s.Online
		}
	}
	return false
}

// IsDeviceOnline reports whether tableType has a valid, online slot for
// nodeID whose last status arrived within timeoutMS of now.
func (e *Engine) IsDeviceOnline(tableType, nodeID string, timeoutMS int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	tc, ok := e.tables[tableType]
	if !ok || tc.role != RoleOwner {
		return false
	}
	now := e.clock.NowMS()

	tc.ownerMu.Lock()
	defer tc.ownerMu.Unlock()
	for _, s := range tc.ownerTbl.Slots() {
		if s.Valid && s.NodeID == nodeID {
			return s.Online && now-s.LastSeenMS <= timeoutMS
		}
	}
	return false
}

// evictionSweep clears every slot whose eviction_pending deadline has
// elapsed. Slots enter eviction_pending only via handleLWT or a graceful
// offline status; a missed heartbeat alone never arms it. It
// returns the node IDs evicted in this call so the caller can fire
// OnEviction once per device.
func evictionSweep(tc *tableContext, nowMS int64) []string {
	tc.ownerMu.Lock()
	defer tc.ownerMu.Unlock()

	var evicted []string
	for _, s := range tc.ownerTbl.Slots() {
		if s.Valid && s.EvictionPending && nowMS >= s.EvictionDeadlineMS {
			evicted = append(evicted, s.NodeID)
			*s = OwnerSlot{Status: s.Status}
		}
	}
	if len(evicted) > 0 {
		syncSlotCount(tc)
	}
	return evicted
}

// syncSlotCount recomputes the caller-owned status_count field from the
// number of currently valid slots. Must be called with tc.ownerMu held.
func syncSlotCount(tc *tableContext) {
	n := 0
	for _, s := range tc.ownerTbl.Slots() {
		if s.Valid {
			n++
		}
	}
	*tc.ownerTbl.SlotCount() = n
}

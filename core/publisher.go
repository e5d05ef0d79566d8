package core

// publisher.go implements the shadow-diff publisher: for each
// registered table, once per sync interval, compare each applicable
// section to its shadow and publish a full or delta JSON payload.

const maxSectionPayload = 2048

// syncTable runs one publisher pass for tc. Must be called with e.mu held.
func (e *Engine) syncTable(tc *tableContext, now int64) {
	if now-tc.lastSyncTick < tc.tableType.SyncIntervalMS {
		return
	}
	tc.lastSyncTick = now

	if tc.role == RoleOwner {
		e.syncConfigSection(tc, now)
	}
	e.syncStateSection(tc, now)
	e.syncStatusSection(tc, now)
}

// syncConfigSection publishes the config section, always in full, only
// when it differs from its shadow (or on fallback). Config is retained:
// late subscribers replay it, so a delta would misrepresent history.
func (e *Engine) syncConfigSection(tc *tableContext, now int64) {
	cur := tc.table.Config()
	if len(cur) == 0 {
		return
	}
	changed := tc.fallbackFullConfig || !bytesEqual(cur, tc.configShadow)
	if !changed {
		return
	}

	var buf [maxSectionPayload]byte
	w := NewJSONWriter(buf[:])
	w.BeginObject()
	w.WriteInt("ts", now)
	w.WriteString("from", e.cfg.NodeID)
	for _, f := range tc.tableType.ConfigFields {
		encodeField(w, f, cur)
	}
	if w.Err() {
		e.reportError(ErrBufferFull, tc.name+".config")
		return
	}

	topic := "sds/" + tc.name + "/config"
	if err := e.transport.Publish(topic, 0, true, w.Bytes()); err != nil {
		e.reportError(ErrPlatformError, topic)
		return
	}
	copy(tc.configShadow, cur)
	tc.fallbackFullConfig = false
	e.stats.incPublishes()
}

// syncStateSection publishes the state section, full or delta per
// enable_delta_sync and the fallback flag.
func (e *Engine) syncStateSection(tc *tableContext, now int64) {
	cur := tc.table.State()
	if len(cur) == 0 {
		return
	}

	fallback := tc.fallbackFullState || len(tc.tableType.StateFields) == 0
	useDelta := e.cfg.EnableDeltaSync && !fallback

	var buf [maxSectionPayload]byte
	w := NewJSONWriter(buf[:])
	w.BeginObject()
	w.WriteInt("ts", now)
	w.WriteString("node", e.cfg.NodeID)

	changed := tc.fallbackFullState || !bytesEqual(cur, tc.stateShadow)
	if !changed {
		return
	}
	if useDelta {
		for _, f := range tc.tableType.StateFields {
			if fieldChanged(f, cur, tc.stateShadow, e.cfg.DeltaFloatTolerance) {
				encodeField(w, f, cur)
			}
		}
	} else {
		for _, f := range tc.tableType.StateFields {
			encodeField(w, f, cur)
		}
	}
	if w.Err() {
		e.reportError(ErrBufferFull, tc.name+".state")
		return
	}

	topic := "sds/" + tc.name + "/state"
	if err := e.transport.Publish(topic, 0, false, w.Bytes()); err != nil {
		e.reportError(ErrPlatformError, topic)
		return
	}
	copy(tc.stateShadow, cur)
	tc.fallbackFullState = false
	e.stats.incPublishes()
}

// syncStatusSection publishes the status section (device role only) plus
// the liveness heartbeat.
func (e *Engine) syncStatusSection(tc *tableContext, now int64) {
	if tc.role != RoleDevice {
		return
	}
	cur := tc.table.Status()
	if len(cur) == 0 {
		return
	}

	heartbeatDue := now-tc.lastPublishMSStatus >= tc.tableType.LivenessIntervalMS
	fallback := tc.fallbackFullStatus || heartbeatDue || len(tc.tableType.StatusFields) == 0
	useDelta := e.cfg.EnableDeltaSync && !fallback

	var buf [maxSectionPayload]byte
	w := NewJSONWriter(buf[:])
	w.BeginObject()
	w.WriteInt("ts", now)
	w.WriteString("node", e.cfg.NodeID)

	changed := tc.fallbackFullStatus || heartbeatDue || !bytesEqual(cur, tc.statusShadow)
	if changed {
		if useDelta {
			for _, f := range tc.tableType.StatusFields {
				if fieldChanged(f, cur, tc.statusShadow, e.cfg.DeltaFloatTolerance) {
					encodeField(w, f, cur)
				}
			}
		} else {
			for _, f := range tc.tableType.StatusFields {
				encodeField(w, f, cur)
			}
		}
	}
	if heartbeatDue {
		w.WriteBool("online", true)
		w.WriteString("sv", e.cfg.SchemaVersion)
		changed = true
	}
	if !changed {
		return
	}
	if w.Err() {
		e.reportError(ErrBufferFull, tc.name+".status")
		return
	}

	topic := "sds/" + tc.name + "/status/" + e.cfg.NodeID
	if err := e.transport.Publish(topic, 0, false, w.Bytes()); err != nil {
		e.reportError(ErrPlatformError, topic)
		return
	}
	copy(tc.statusShadow, cur)
	tc.fallbackFullStatus = false
	if heartbeatDue {
		tc.lastPublishMSStatus = now
		e.stats.incHeartbeats()
	}
	e.stats.incPublishes()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package core

import (
	"context"
	"time"
)

// reconnectState tracks the exponential backoff schedule used while the
// transport is disconnected.
type reconnectState struct {
	backoffMS     int64
	nextAttemptMS int64
}

// maybeReconnect attempts a reconnect if the backoff window has elapsed.
// On success it re-subscribes every topic the node had before the drop,
// marks every table for a fallback-full publish, and resets the backoff.
// On failure it schedules the next attempt one backoff from now, then
// doubles the backoff, capped at ReconnectMaxBackoffMS.
// Must be called with e.mu held.
func (e *Engine) maybeReconnect(now int64) {
	if now < e.reconnect.nextAttemptMS {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	opts := ConnectOptions{
		ClientID:     e.cfg.NodeID,
		Broker:       e.cfg.MQTTBroker,
		Port:         e.cfg.MQTTPort,
		Username:     e.cfg.MQTTUsername,
		Password:     e.cfg.MQTTPassword,
		WillTopic:    "sds/lwt/" + e.cfg.NodeID,
		WillPayload:  []byte(`{"online":false,"node":"` + jsonEscapeSimple(e.cfg.NodeID) + `","ts":0}`),
		WillQoS:      1,
		WillRetained: true,
	}
	if err := e.transport.Connect(ctx, opts); err != nil {
		e.reportError(ErrMQTTConnectFailed, e.cfg.MQTTBroker)
		e.reconnect.nextAttemptMS = now + e.reconnect.backoffMS
		e.reconnect.backoffMS *= 2
		if e.reconnect.backoffMS > e.cfg.ReconnectMaxBackoffMS {
			e.reconnect.backoffMS = e.cfg.ReconnectMaxBackoffMS
		}
		return
	}

	e.resubscribeAll()
	for _, tc := range e.tables {
		tc.fallbackFullConfig = true
		tc.fallbackFullState = true
		tc.fallbackFullStatus = true
	}

	e.connected = true
	e.stats.incReconnects()
	e.reconnect.backoffMS = e.cfg.ReconnectInitialBackoffMS
	e.reconnect.nextAttemptMS = 0
}

const connectTimeout = 10 * time.Second

// resubscribeAll re-establishes every subscription the node needs: the
// shared LWT topic, every registered table's topics, and every surviving
// raw subscription. Must be called with e.mu held.
func (e *Engine) resubscribeAll() {
	e.transport.Subscribe("sds/lwt/+", 1)
	for _, tc := range e.tables {
		if tc.role == RoleOwner {
			e.transport.Subscribe("sds/"+tc.name+"/state", 0)
			e.transport.Subscribe("sds/"+tc.name+"/status/+", 0)
		} else {
			e.transport.Subscribe("sds/"+tc.name+"/config", 0)
		}
	}
	for _, rs := range e.rawSubs {
		e.transport.Subscribe(rs.pattern, 0)
	}
}

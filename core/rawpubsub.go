package core

import "strings"

// rawSubscription is one entry in the engine's raw subscription table
// (≤ EngineConfig.MaxRawSubscriptions, default 8). Patterns are matched
// with MQTT wildcard semantics: '+' for a single level, '#' trailing for
// every remaining level.
type rawSubscription struct {
	pattern string
	cb      func(topic string, payload []byte)
}

const reservedPrefix = "sds/"

// PublishRaw passes payload through to the transport unchanged. It
// rejects any topic beginning with the reserved sds/ prefix and requires
// the engine to be connected.
func (e *Engine) PublishRaw(topic string, qos byte, retained bool, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.HasPrefix(topic, reservedPrefix) {
		return newError(ErrInvalidConfig, topic+": reserved sds/ prefix", nil)
	}
	if !e.connected {
		return newError(ErrMQTTDisconnected, topic, nil)
	}
	if err := e.transport.Publish(topic, qos, retained, payload); err != nil {
		return newError(ErrPlatformError, topic, err)
	}
	return nil
}

// SubscribeRaw registers cb against topic, which may use MQTT wildcards.
// It rejects the reserved sds/ prefix and caps the subscription table at
// MaxRawSubscriptions; an identical pattern already registered is not
// deduplicated, so both callbacks fire on a matching inbound topic.
func (e *Engine) SubscribeRaw(topic string, cb func(topic string, payload []byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.HasPrefix(topic, reservedPrefix) {
		return newError(ErrInvalidConfig, topic+": reserved sds/ prefix", nil)
	}
	if len(e.rawSubs) >= e.cfg.MaxRawSubscriptions {
		return newError(ErrMaxTablesReached, "raw subscription table full", nil)
	}
	if err := e.transport.Subscribe(topic, 0); err != nil {
		return newError(ErrPlatformError, topic, err)
	}
	e.rawSubs = append(e.rawSubs, rawSubscription{pattern: topic, cb: cb})
	return nil
}

// UnsubscribeRaw removes the first registered entry matching topic
// exactly and, if no other entry still needs it, asks the transport to
// unsubscribe.
func (e *Engine) UnsubscribeRaw(topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, rs := range e.rawSubs {
		if rs.pattern == topic {
			idx = i
			break
		}
	}
	if idx == -1 {
		return newError(ErrTableNotFound, topic, nil)
	}
	e.rawSubs = append(e.rawSubs[:idx], e.rawSubs[idx+1:]...)

	for _, rs := range e.rawSubs {
		if rs.pattern == topic {
			return nil
		}
	}
	return e.transport.Unsubscribe(topic)
}

// dispatchRaw delivers an inbound message to every raw subscription whose
// pattern matches topic. Must be called with e.mu held.
func (e *Engine) dispatchRaw(topic string, payload []byte) {
	matched := false
	for _, rs := range e.rawSubs {
		if topicMatches(rs.pattern, topic) {
			matched = true
			rs.cb(topic, payload)
		}
	}
	if !matched {
		e.logger.Debugf("sds: no raw subscriber for topic %q", topic)
	}
}

// topicMatches implements MQTT wildcard matching: '+' matches exactly one
// level, a trailing '#' matches every remaining level (including zero).
func topicMatches(pattern, topic string) bool {
	pSegs := strings.Split(pattern, "/")
	tSegs := strings.Split(topic, "/")

	for i, p := range pSegs {
		if p == "#" {
			return true
		}
		if i >= len(tSegs) {
			return false
		}
		if p != "+" && p != tSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(tSegs)
}

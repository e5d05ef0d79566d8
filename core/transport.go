package core

import "context"

// ConnectOptions carries everything an MQTTClient needs to open a session,
// including the Last Will and Testament the engine installs for liveness
// detection (see slots.go).
type ConnectOptions struct {
	ClientID string
	Broker   string
	Port     int
	Username string
	Password string

	WillTopic    string
	WillPayload  []byte
	WillQoS      byte
	WillRetained bool
}

// MQTTClient is the transport collaborator the engine consumes. A real
// implementation (transport/paho) wraps an MQTT v3.1.1/v5 client; tests use
// an in-memory fake. The engine never imports a concrete MQTT SDK directly.
type MQTTClient interface {
	// Connect opens (or reopens) the session described by opts. Connect
	// must be safe to call again after a Disconnect.
	Connect(ctx context.Context, opts ConnectOptions) error
	Disconnect()
	IsConnected() bool

	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error

	// SetDeliveryCallback installs the function the client invokes for
	// every inbound message. It is called at most once, before Connect.
	// The implementation must invoke cb from the same goroutine
	// that drives Engine.Loop, or the host must supply external
	// synchronization.
	SetDeliveryCallback(cb func(topic string, payload []byte))
}

// Clock is a monotonic millisecond clock. RealClock is the production
// implementation; tests use a fake that advances deterministically.
type Clock interface {
	NowMS() int64
}

// Logger is the logging sink the engine writes diagnostics to. LogrusLogger
// adapts github.com/sirupsen/logrus; tests may use a no-op implementation.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// nopLogger discards everything. Used when the caller does not supply a
// Logger.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Package paho adapts github.com/eclipse/paho.mqtt.golang to the
// core.MQTTClient interface. The engine drives its own reconnection and
// resubscription (core/reconnect.go), so auto-reconnect is disabled here
// to avoid the two layers racing each other.
package paho

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sds-engine/core"
)

// Client wraps a paho.mqtt.golang client. The zero value is not usable;
// construct with New.
type Client struct {
	mu       sync.Mutex
	client   mqtt.Client
	deliver  func(topic string, payload []byte)
	connOpts *mqtt.ClientOptions
}

// New returns an unconnected Client.
func New() *Client {
	return &Client{}
}

// SetDeliveryCallback installs the function invoked for every inbound
// message. Per core.MQTTClient, it is called at most once, before
// Connect.
func (c *Client) SetDeliveryCallback(cb func(topic string, payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliver = cb
}

// Connect opens a session per opts, installing the Last Will and
// Testament and a default message handler that forwards every delivery
// to the callback set via SetDeliveryCallback.
func (c *Client) Connect(ctx context.Context, opts core.ConnectOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	broker := fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port)
	o := mqtt.NewClientOptions()
	o.AddBroker(broker)
	o.SetClientID(opts.ClientID)
	o.SetAutoReconnect(false)
	o.SetConnectRetry(false)
	o.SetCleanSession(true)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}
	if opts.WillTopic != "" {
		o.SetWill(opts.WillTopic, string(opts.WillPayload), opts.WillQoS, opts.WillRetained)
	}
	o.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		c.mu.Lock()
		cb := c.deliver
		c.mu.Unlock()
		if cb != nil {
			cb(msg.Topic(), msg.Payload())
		}
	})

	c.connOpts = o
	c.client = mqtt.NewClient(o)

	token := c.client.Connect()
	return waitToken(ctx, token)
}

// Disconnect closes the session, waiting up to 250ms for in-flight work
// to drain.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl != nil {
		cl.Disconnect(250)
	}
}

// IsConnected reports the underlying client's connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	return cl != nil && cl.IsConnected()
}

// Publish forwards to the underlying client and blocks for completion
// with a bounded wait, matching the engine's non-blocking-loop
// expectation closely enough for a cooperative single-threaded caller.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil || !cl.IsConnected() {
		return fmt.Errorf("paho: not connected")
	}
	token := cl.Publish(topic, qos, retained, payload)
	return waitToken(context.Background(), token)
}

// Subscribe registers the shared default publish handler for topic.
func (c *Client) Subscribe(topic string, qos byte) error {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil || !cl.IsConnected() {
		return fmt.Errorf("paho: not connected")
	}
	token := cl.Subscribe(topic, qos, nil)
	return waitToken(context.Background(), token)
}

// Unsubscribe removes the subscription for topic.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil || !cl.IsConnected() {
		return nil
	}
	token := cl.Unsubscribe(topic)
	return waitToken(context.Background(), token)
}

// waitToken blocks on tok until it completes, ctx is done, or a 10s
// fallback deadline elapses, whichever comes first.
func waitToken(ctx context.Context, tok mqtt.Token) error {
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()
	done := make(chan struct{})
	go func() {
		tok.Wait()
		close(done)
	}()
	select {
	case <-done:
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
		return fmt.Errorf("paho: operation timed out")
	}
}

var _ core.MQTTClient = (*Client)(nil)

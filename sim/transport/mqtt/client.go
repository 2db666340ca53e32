// Package mqtt publishes readings and alert events to an MQTT broker and receives
// readings and operator commands from it.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	operationTimeout     = 5 * time.Second
	maxReconnectInterval = 60 * time.Second
)

// MessageHandler processes one inbound message.
type MessageHandler func(topic string, payload []byte) error

// Client wraps a paho client with the simulator's topic layout.
type Client struct {
	client paho.Client
	cfg    Config

	mu             sync.RWMutex
	handlers       map[string]MessageHandler
	connected      bool
	lastConnected  time.Time
	lastDisconnect time.Time
}

// NewClient builds a client with auto-reconnect and a retained offline last will.
func NewClient(cfg Config) *Client {
	c := &Client{cfg: cfg, handlers: make(map[string]MessageHandler)}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetCleanSession(true)
	opts.SetWill(c.statusTopic(), statusOffline, cfg.QoS, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		logrus.Warn("mqtt: attempting to reconnect")
	})

	c.client = paho.NewClient(opts)
	return c
}

func (c *Client) statusTopic() string {
	return c.cfg.StatusTopic + "/" + c.cfg.ClientID
}

// Connect dials the broker and waits up to the connect timeout.
func (c *Client) Connect() error {
	logrus.Infof("mqtt: connecting to %s:%d", c.cfg.Broker, c.cfg.Port)
	token := c.client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt: connection timeout after %v", c.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connection failed: %w", err)
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Disconnect publishes the offline status and closes the connection.
func (c *Client) Disconnect() {
	if c.IsConnected() {
		if err := c.Publish(c.statusTopic(), []byte(statusOffline), true); err != nil {
			logrus.Warnf("mqtt: publishing offline status: %v", err)
		}
	}
	c.mu.Lock()
	c.connected = false
	c.lastDisconnect = time.Now()
	c.mu.Unlock()
	c.client.Disconnect(250)
	logrus.Info("mqtt: disconnected")
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Publish sends payload to topic. Failures are transient and safe to retry.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return &sim.TransientTransportError{Sink: "mqtt", Err: fmt.Errorf("not connected to broker")}
	}
	token := c.client.Publish(topic, c.cfg.QoS, retained, payload)
	if !token.WaitTimeout(operationTimeout) {
		return &sim.TransientTransportError{Sink: "mqtt", Err: fmt.Errorf("publish timeout for topic %s", topic)}
	}
	if err := token.Error(); err != nil {
		return &sim.TransientTransportError{Sink: "mqtt", Err: fmt.Errorf("publish to %s: %w", topic, err)}
	}
	return nil
}

// PublishJSON marshals data and publishes it.
func (c *Client) PublishJSON(topic string, data any, retained bool) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("mqtt: marshal for %s: %w", topic, err)
	}
	return c.Publish(topic, payload, retained)
}

// PublishReading sends r to <readings_topic>/<patient_id>.
func (c *Client) PublishReading(_ context.Context, r sim.Reading) error {
	return c.PublishJSON(c.cfg.ReadingsTopic+"/"+r.PatientID, r, false)
}

// PublishAlertEvent sends ev to <alerts_topic>/<patient_id>/<type>.
func (c *Client) PublishAlertEvent(_ context.Context, ev alert.Event) error {
	return c.PublishJSON(fmt.Sprintf("%s/%s/%s", c.cfg.AlertsTopic, ev.Alert.PatientID, ev.Type), ev, false)
}

// DeviceMetadata describes a simulated wearable.
type DeviceMetadata struct {
	DeviceID  string   `json:"device_id"`
	PatientID string   `json:"patient_id"`
	Condition string   `json:"condition"`
	Vitals    []string `json:"vital_signs"`
	Interval  string   `json:"sampling_interval"`
}

// PublishDeviceMetadata sends each device description retained to <metadata_topic>/<device_id>.
func (c *Client) PublishDeviceMetadata(devices []DeviceMetadata) error {
	for _, d := range devices {
		if err := c.PublishJSON(c.cfg.MetadataTopic+"/"+d.DeviceID, d, true); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers handler for a topic filter; subscriptions survive reconnects.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt: not connected to broker")
	}
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, c.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		c.handleMessage(msg)
	})
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("mqtt: subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe to %s: %w", topic, err)
	}
	logrus.Infof("mqtt: subscribed to %s", topic)
	return nil
}

// SubscribeReadings decodes readings published under <readings_topic>/+ and passes them to fn.
func (c *Client) SubscribeReadings(fn func(sim.Reading) error) error {
	return c.Subscribe(c.cfg.ReadingsTopic+"/+", func(topic string, payload []byte) error {
		var r sim.Reading
		if err := json.Unmarshal(payload, &r); err != nil {
			return &sim.ValidationError{Field: "payload", Reason: err.Error()}
		}
		return fn(r)
	})
}

func (c *Client) handleMessage(msg paho.Message) {
	topic := msg.Topic()
	c.mu.RLock()
	handler, ok := c.handlers[topic]
	if !ok {
		for pattern, h := range c.handlers {
			if matchTopic(pattern, topic) {
				handler, ok = h, true
				break
			}
		}
	}
	c.mu.RUnlock()

	if !ok {
		logrus.Warnf("mqtt: no handler for topic %s", topic)
		return
	}
	if err := handler(topic, msg.Payload()); err != nil {
		logrus.Warnf("mqtt: handler for %s: %v", topic, err)
	}
}

func (c *Client) onConnect(client paho.Client) {
	c.mu.Lock()
	c.connected = true
	c.lastConnected = time.Now()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	logrus.Info("mqtt: connection established")

	client.Publish(c.statusTopic(), c.cfg.QoS, true, statusOnline)
	for _, topic := range topics {
		token := client.Subscribe(topic, c.cfg.QoS, func(_ paho.Client, msg paho.Message) {
			c.handleMessage(msg)
		})
		if token.Wait() && token.Error() != nil {
			logrus.Errorf("mqtt: re-subscribe to %s: %v", topic, token.Error())
		}
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.lastDisconnect = time.Now()
	c.mu.Unlock()
	logrus.Errorf("mqtt: connection lost: %v", err)
}

// HealthStatus reports broker connectivity.
type HealthStatus struct {
	Connected      bool      `json:"connected"`
	LastConnected  time.Time `json:"last_connected,omitempty"`
	LastDisconnect time.Time `json:"last_disconnect,omitempty"`
	Subscriptions  int       `json:"subscriptions"`
}

// Health returns the current connectivity snapshot.
func (c *Client) Health() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return HealthStatus{
		Connected:      c.connected && c.client.IsConnected(),
		LastConnected:  c.lastConnected,
		LastDisconnect: c.lastDisconnect,
		Subscriptions:  len(c.handlers),
	}
}

// matchTopic reports whether topic matches an MQTT filter with + and # wildcards.
// Empty levels are significant, as they are to the broker.
func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, part := range pp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}

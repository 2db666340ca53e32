package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
)

// fakeToken completes immediately with err.
type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes and subscriptions. Unimplemented methods panic.
type fakeClient struct {
	paho.Client
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  []published
	subs       map[string]paho.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true, subs: make(map[string]paho.MessageHandler)}
}

func (f *fakeClient) IsConnected() bool { return f.connected }
func (f *fakeClient) Disconnect(uint)   { f.connected = false }
func (f *fakeClient) Connect() paho.Token {
	f.connected = true
	return &fakeToken{}
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	if f.publishErr == nil {
		f.published = append(f.published, published{topic: topic, retained: retained, payload: b})
	}
	return &fakeToken{err: f.publishErr}
}

func (f *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = cb
	return &fakeToken{}
}

// fakeMessage is an inbound message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestClient(t *testing.T) (*Client, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	c := &Client{client: fc, cfg: DefaultConfig(), handlers: make(map[string]MessageHandler)}
	require.NoError(t, c.Connect())
	return c, fc
}

func TestClient_PublishReadingToPatientTopic(t *testing.T) {
	c, fc := newTestClient(t)
	r := sim.Reading{PatientID: "p1", DeviceID: "d1", Timestamp: time.Now().UTC(),
		Vitals: map[sim.VitalSign]float64{sim.HeartRate: 72}}

	require.NoError(t, c.PublishReading(context.Background(), r))

	require.Len(t, fc.published, 1)
	assert.Equal(t, "wearables/data/p1", fc.published[0].topic)
	var got sim.Reading
	require.NoError(t, json.Unmarshal(fc.published[0].payload, &got))
	assert.Equal(t, 72.0, got.Vitals[sim.HeartRate])
}

func TestClient_PublishAlertEventTopic(t *testing.T) {
	c, fc := newTestClient(t)
	ev := alert.Event{Type: alert.EventCreated, Sequence: 1, Alert: alert.Alert{ID: "a1", PatientID: "p9"}}
	require.NoError(t, c.PublishAlertEvent(context.Background(), ev))
	assert.Equal(t, "wearables/alerts/p9/created", fc.published[0].topic)
}

func TestClient_PublishFailuresAreTransient(t *testing.T) {
	c, fc := newTestClient(t)
	fc.publishErr = errors.New("broker busy")
	err := c.Publish("x", []byte("y"), false)
	var terr *sim.TransientTransportError
	assert.True(t, errors.As(err, &terr))

	fc.connected = false
	err = c.Publish("x", []byte("y"), false)
	assert.True(t, errors.As(err, &terr))
}

func TestClient_MetadataIsRetained(t *testing.T) {
	c, fc := newTestClient(t)
	require.NoError(t, c.PublishDeviceMetadata([]DeviceMetadata{{DeviceID: "d1", PatientID: "p1"}}))
	require.Len(t, fc.published, 1)
	assert.Equal(t, "wearables/metadata/d1", fc.published[0].topic)
	assert.True(t, fc.published[0].retained)
}

func TestClient_OnConnectPublishesOnlineAndResubscribes(t *testing.T) {
	c, fc := newTestClient(t)
	c.handlers["wearables/commands/+"] = func(string, []byte) error { return nil }

	c.onConnect(fc)

	require.NotEmpty(t, fc.published)
	assert.Equal(t, "wearables/status/vital-sim", fc.published[0].topic)
	assert.Equal(t, "online", string(fc.published[0].payload))
	assert.Contains(t, fc.subs, "wearables/commands/+")
	assert.True(t, c.Health().Connected)
}

func TestClient_SubscribeReadingsDecodesAndRoutes(t *testing.T) {
	c, fc := newTestClient(t)
	var got []sim.Reading
	require.NoError(t, c.SubscribeReadings(func(r sim.Reading) error {
		got = append(got, r)
		return nil
	}))

	payload, _ := json.Marshal(sim.Reading{PatientID: "p2", DeviceID: "d2"})
	fc.subs["wearables/data/+"](fc, &fakeMessage{topic: "wearables/data/p2", payload: payload})
	fc.subs["wearables/data/+"](fc, &fakeMessage{topic: "wearables/data/p2", payload: []byte("{")})

	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].PatientID)
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"wearables/data/+", "wearables/data/p1", true},
		{"wearables/data/+", "wearables/data/p1/extra", false},
		{"wearables/#", "wearables/alerts/p1/created", true},
		{"wearables/data/+", "wearables/alerts/p1", false},
		{"a/b", "a/b", true},
		{"a/b/c", "a/b", false},
		{"a/b", "a//b", false},
		{"a/+/b", "a//b", true},
		{"a/+", "a/", true},
		{"+/a", "/a", true},
		{"a/#", "a", true},
	}
	for _, tt := range tests {
		if got := matchTopic(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate("mqtt"), "disabled config is valid")
	cfg := DefaultConfig()
	cfg.Broker = "localhost"
	assert.NoError(t, cfg.Validate("mqtt"))
	cfg.QoS = 3
	assert.Error(t, cfg.Validate("mqtt"))
}

package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
)

type sent struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	sent       []sent
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.sent = append(f.sent, sent{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_PublishAlertEvent(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "vitalsim.alerts")
	require.NoError(t, err)
	assert.Equal(t, []string{"vitalsim.alerts:topic"}, ch.declared)

	ev := alert.Event{
		Type:     alert.EventResolved,
		Sequence: 3,
		At:       time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Alert:    alert.Alert{ID: "a1", PatientID: "p1", Vital: sim.HeartRate},
	}
	require.NoError(t, p.PublishAlertEvent(context.Background(), ev))

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, "vitalsim.alerts", got.exchange)
	assert.Equal(t, "alert.resolved", got.key)
	assert.Equal(t, ev.DedupKey(), got.msg.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)

	var decoded alert.Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "a1", decoded.Alert.ID)
}

func TestPublisher_FailuresAreTransient(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := NewPublisher(ch, "x")
	require.NoError(t, err)

	err = p.PublishAlertEvent(context.Background(), alert.Event{Type: alert.EventCreated})
	var terr *sim.TransientTransportError
	assert.True(t, errors.As(err, &terr))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate("amqp"))
	assert.Error(t, Config{URL: "amqp://localhost"}.Validate("amqp"))
}

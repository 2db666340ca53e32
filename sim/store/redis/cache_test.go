package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Cache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client, time.Minute)
}

func TestCache_PublishReadingStoresLatest(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, c.PublishReading(ctx, sim.Reading{PatientID: "p1", DeviceID: "d1", Timestamp: ts,
		Vitals: map[sim.VitalSign]float64{sim.HeartRate: 70}}))
	require.NoError(t, c.PublishReading(ctx, sim.Reading{PatientID: "p1", DeviceID: "d1", Timestamp: ts.Add(time.Minute),
		Vitals: map[sim.VitalSign]float64{sim.HeartRate: 75}}))

	raw, err := mr.Get(latestKey("p1"))
	require.NoError(t, err)
	var got sim.Reading
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, 75.0, got.Vitals[sim.HeartRate])
	assert.True(t, mr.TTL(latestKey("p1")) > 0, "latest reading carries a TTL")

	assert.Equal(t, "p1", mr.HGet(statusKey, "last_patient"))
	assert.Equal(t, ts.Add(time.Minute).Format(time.RFC3339Nano), mr.HGet(statusKey, "last_reading_at"))
}

func TestCache_LatestExpires(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.PublishReading(ctx, sim.Reading{PatientID: "p2", Timestamp: time.Now()}))
	assert.True(t, mr.Exists(latestKey("p2")))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(latestKey("p2")))
}

func TestCache_LiveAlertsFollowLifecycle(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()
	a := alert.Alert{ID: "a1", PatientID: "p1", Vital: sim.SpO2, Status: alert.StatusActive}

	// GIVEN a created alert
	require.NoError(t, c.PublishAlertEvent(ctx, alert.Event{Type: alert.EventCreated, Alert: a}))

	// THEN it is cached under its vital sign
	var cached alert.Alert
	require.NoError(t, json.Unmarshal([]byte(mr.HGet(alertsKey("p1"), string(sim.SpO2))), &cached))
	assert.Equal(t, "a1", cached.ID)

	// WHEN it resolves
	a.Status = alert.StatusResolved
	require.NoError(t, c.PublishAlertEvent(ctx, alert.Event{Type: alert.EventResolved, Alert: a}))

	// THEN the patient has no live alert left
	assert.Empty(t, mr.HGet(alertsKey("p1"), string(sim.SpO2)))
}

func TestCache_UnreachableServerIsTransient(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	err := c.PublishReading(context.Background(), sim.Reading{PatientID: "p1"})
	var terr *sim.TransientTransportError
	assert.True(t, errors.As(err, &terr))
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
	"github.com/vital-sim/vital-sim/sim/config"
	"github.com/vital-sim/vital-sim/sim/engine"
	"github.com/vital-sim/vital-sim/sim/store/postgres"
	"github.com/vital-sim/vital-sim/sim/store/redis"
	"github.com/vital-sim/vital-sim/sim/transport"
	"github.com/vital-sim/vital-sim/sim/transport/amqp"
	"github.com/vital-sim/vital-sim/sim/transport/mqtt"
)

// healthTimeout bounds the probes behind one status query.
const healthTimeout = 2 * time.Second

// connections holds the external clients opened for one command.
type connections struct {
	mqtt  *mqtt.Client
	pg    *postgres.Store
	cache *redis.Cache
	amqp  *amqp.Publisher
}

// connect opens every sink the scenario enables. With dryRun nothing is opened
// and all output goes to the log.
func connect(ctx context.Context, sc *config.Scenario, dryRun bool) (*connections, error) {
	c := &connections{}
	if dryRun {
		logrus.Info("dry run: readings and alert events are logged only")
		return c, nil
	}
	if sc.MQTT.Enabled() {
		c.mqtt = mqtt.NewClient(sc.MQTT)
		if err := c.mqtt.Connect(); err != nil {
			return nil, err
		}
	}
	if sc.Postgres.Enabled() {
		store, err := postgres.Open(ctx, sc.Postgres)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.pg = store
		if err := store.Migrate(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	if sc.Redis.Enabled() {
		c.cache = redis.New(redis.NewClient(sc.Redis), sc.Redis.TTL)
		if err := c.cache.Ping(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("redis: ping %s: %w", sc.Redis.Addr, err)
		}
	}
	if sc.AMQP.Enabled() {
		pub, err := amqp.Dial(sc.AMQP)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.amqp = pub
	}
	return c, nil
}

// Sinks maps the open clients onto engine sinks. Readings are routed only when
// withReadings is set; the log sink stands in for any side left empty.
func (c *connections) Sinks(withReadings bool) engine.Sinks {
	s := engine.Sinks{
		Readings: map[string]transport.ReadingSink{},
		Alerts:   map[string]transport.AlertEventSink{},
	}
	if c.mqtt != nil {
		s.Readings["mqtt"] = c.mqtt
		s.Alerts["mqtt"] = c.mqtt
	}
	if c.cache != nil {
		s.Readings["redis"] = c.cache
		s.Alerts["redis"] = c.cache
	}
	if c.pg != nil {
		s.Alerts["postgres"] = c.pg
		s.Purgers = append(s.Purgers, c.pg)
	}
	if c.amqp != nil {
		s.Alerts["amqp"] = c.amqp
	}
	if !withReadings {
		s.Readings = nil
	} else if len(s.Readings) == 0 {
		s.Readings["log"] = transport.LogSink{}
	}
	if len(s.Alerts) == 0 {
		s.Alerts["log"] = transport.LogSink{}
	}
	return s
}

// Health reports which external connections are up.
func (c *connections) Health() map[string]bool {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	h := map[string]bool{}
	if c.mqtt != nil {
		h["mqtt"] = c.mqtt.IsConnected()
	}
	if c.pg != nil {
		counts, err := c.pg.CountByStatus(ctx)
		h["postgres"] = err == nil
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"active":       counts[alert.StatusActive],
				"acknowledged": counts[alert.StatusAcknowledged],
				"resolved":     counts[alert.StatusResolved],
			}).Debug("stored alerts")
		}
	}
	if c.cache != nil {
		h["redis"] = c.cache.Ping(ctx) == nil
	}
	if c.amqp != nil {
		h["amqp"] = true
	}
	return h
}

// Close releases every open client.
func (c *connections) Close() {
	if c.mqtt != nil {
		c.mqtt.Disconnect()
	}
	if c.pg != nil {
		if err := c.pg.Close(); err != nil {
			logrus.Warnf("closing postgres: %v", err)
		}
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			logrus.Warnf("closing redis: %v", err)
		}
	}
	if c.amqp != nil {
		if err := c.amqp.Close(); err != nil {
			logrus.Warnf("closing amqp: %v", err)
		}
	}
}

// deviceMetadata describes every simulated wearable for the retained metadata topic.
func deviceMetadata(sc *config.Scenario) []mqtt.DeviceMetadata {
	vitals := make([]string, len(sim.AllVitalSigns))
	for i, v := range sim.AllVitalSigns {
		vitals[i] = string(v)
	}
	out := make([]mqtt.DeviceMetadata, 0, len(sc.Profiles))
	for _, p := range sc.Profiles {
		out = append(out, mqtt.DeviceMetadata{
			DeviceID:  p.DeviceID,
			PatientID: p.ID,
			Condition: string(p.Condition),
			Vitals:    vitals,
			Interval:  sc.TickInterval.String(),
		})
	}
	return out
}

// Package redis caches the latest reading and the live alerts of each patient.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
)

const keyPrefix = "vitalsim:"

// Config selects the Redis server. An empty Addr disables the cache.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a ten minute TTL with no server set.
func DefaultConfig() Config {
	return Config{TTL: 10 * time.Minute}
}

// Enabled reports whether a server address is configured.
func (c Config) Enabled() bool { return c.Addr != "" }

// Validate checks the redis section.
func (c Config) Validate(prefix string) error {
	if c.DB < 0 {
		return fmt.Errorf("%s.db must be non-negative, got %d", prefix, c.DB)
	}
	if c.Enabled() && c.TTL <= 0 {
		return fmt.Errorf("%s.ttl must be positive, got %s", prefix, c.TTL)
	}
	return nil
}

// Cache writes readings and alert state to Redis.
type Cache struct {
	c   *redis.Client
	ttl time.Duration
}

// NewClient builds a go-redis client for cfg.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New wraps c. ttl bounds how long a silent patient's latest reading stays visible.
func New(c *redis.Client, ttl time.Duration) *Cache {
	return &Cache{c: c, ttl: ttl}
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.c.Ping(ctx).Err()
}

func latestKey(patientID string) string { return keyPrefix + "patient:" + patientID + ":latest" }
func alertsKey(patientID string) string { return keyPrefix + "patient:" + patientID + ":alerts" }

const statusKey = keyPrefix + "status"

// PublishReading stores r as the patient's latest reading and bumps the last tick.
func (c *Cache) PublishReading(ctx context.Context, r sim.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal reading: %w", err)
	}
	_, err = c.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, latestKey(r.PatientID), data, c.ttl)
		p.HSet(ctx, statusKey, "last_reading_at", r.Timestamp.UTC().Format(time.RFC3339Nano), "last_patient", r.PatientID)
		return nil
	})
	if err != nil {
		return &sim.TransientTransportError{Sink: "redis", Err: err}
	}
	return nil
}

// PublishAlertEvent keeps the patient's live alerts hash current: live alerts
// are stored under their vital sign and resolved ones removed.
func (c *Cache) PublishAlertEvent(ctx context.Context, ev alert.Event) error {
	key := alertsKey(ev.Alert.PatientID)
	field := string(ev.Alert.Vital)
	var err error
	if ev.Alert.Status.IsLive() {
		var data []byte
		data, err = json.Marshal(ev.Alert)
		if err != nil {
			return fmt.Errorf("redis: marshal alert: %w", err)
		}
		err = c.c.HSet(ctx, key, field, data).Err()
	} else {
		err = c.c.HDel(ctx, key, field).Err()
	}
	if err != nil {
		return &sim.TransientTransportError{Sink: "redis", Err: err}
	}
	return nil
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.c.Close()
}

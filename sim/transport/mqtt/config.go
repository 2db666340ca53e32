package mqtt

import (
	"fmt"
	"time"
)

// Config holds broker connection and topic layout settings.
type Config struct {
	Broker         string        `yaml:"broker"`
	Port           int           `yaml:"port"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	ReadingsTopic  string        `yaml:"readings_topic"`
	AlertsTopic    string        `yaml:"alerts_topic"`
	StatusTopic    string        `yaml:"status_topic"`
	MetadataTopic  string        `yaml:"metadata_topic"`
	CommandsTopic  string        `yaml:"commands_topic"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// DefaultConfig returns the topic layout with no broker set.
func DefaultConfig() Config {
	return Config{
		Port:           1883,
		ClientID:       "vital-sim",
		QoS:            1,
		ReadingsTopic:  "wearables/data",
		AlertsTopic:    "wearables/alerts",
		StatusTopic:    "wearables/status",
		MetadataTopic:  "wearables/metadata",
		CommandsTopic:  "wearables/commands",
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      30 * time.Second,
	}
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// Validate checks the mqtt section. An empty broker disables MQTT and skips the checks.
func (c Config) Validate(prefix string) error {
	if !c.Enabled() {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%s.port must be in [1, 65535], got %d", prefix, c.Port)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s.client_id must not be empty", prefix)
	}
	if c.QoS > 2 {
		return fmt.Errorf("%s.qos must be 0, 1 or 2, got %d", prefix, c.QoS)
	}
	for name, topic := range map[string]string{
		"readings_topic": c.ReadingsTopic,
		"alerts_topic":   c.AlertsTopic,
		"status_topic":   c.StatusTopic,
		"metadata_topic": c.MetadataTopic,
		"commands_topic": c.CommandsTopic,
	} {
		if topic == "" {
			return fmt.Errorf("%s.%s must not be empty", prefix, name)
		}
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%s.connect_timeout must be positive, got %s", prefix, c.ConnectTimeout)
	}
	return nil
}

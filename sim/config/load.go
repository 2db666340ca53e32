package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vital-sim/vital-sim/sim"
)

// Environment variables overlaid on the document after parsing.
const (
	EnvMQTTBroker    = "VITALSIM_MQTT_BROKER"
	EnvMQTTPort      = "VITALSIM_MQTT_PORT"
	EnvMQTTUsername  = "VITALSIM_MQTT_USERNAME"
	EnvMQTTPassword  = "VITALSIM_MQTT_PASSWORD"
	EnvPostgresDSN   = "VITALSIM_POSTGRES_DSN"
	EnvRedisAddr     = "VITALSIM_REDIS_ADDR"
	EnvRedisPassword = "VITALSIM_REDIS_PASSWORD"
	EnvAMQPURL       = "VITALSIM_AMQP_URL"
	EnvHTTPAddr      = "VITALSIM_HTTP_ADDR"
)

// Parse decodes a scenario document over DefaultDocument.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Parse(data []byte) (*Document, error) {
	doc := DefaultDocument()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &sim.ConfigurationError{Reason: fmt.Sprintf("parsing scenario: %v", err)}
	}
	return &doc, nil
}

// LoadDocument reads a scenario file, loads a .env file next to it if present,
// and overlays the VITALSIM_* environment.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &sim.ConfigurationError{Reason: fmt.Sprintf("reading scenario: %v", err)}
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, &sim.ConfigurationError{Field: envFile, Reason: err.Error()}
		}
	} else {
		logrus.Debugf("loaded environment from %s", envFile)
	}
	if err := ApplyEnv(doc, os.LookupEnv); err != nil {
		return nil, err
	}
	return doc, nil
}

// Load reads, overlays, validates and compiles a scenario. Nothing is returned
// unless every section is valid.
func Load(path string) (*Scenario, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return doc.Compile()
}

// ApplyEnv overlays endpoints and credentials from lookup onto doc.
func ApplyEnv(doc *Document, lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvMQTTBroker, &doc.MQTT.Broker},
		{EnvMQTTUsername, &doc.MQTT.Username},
		{EnvMQTTPassword, &doc.MQTT.Password},
		{EnvPostgresDSN, &doc.Postgres.DSN},
		{EnvRedisAddr, &doc.Redis.Addr},
		{EnvRedisPassword, &doc.Redis.Password},
		{EnvAMQPURL, &doc.AMQP.URL},
		{EnvHTTPAddr, &doc.HTTP.Addr},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}
	if v, ok := lookup(EnvMQTTPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &sim.ConfigurationError{Field: EnvMQTTPort, Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		doc.MQTT.Port = port
	}
	return nil
}

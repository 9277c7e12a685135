// Package config loads the YAML configuration of the ibbq tools.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
	"github.com/srg/ibbq/internal/protocol"
	"github.com/srg/ibbq/internal/thermometer"
	"gopkg.in/yaml.v3"
)

// DefaultProbeCount is used when the configuration lists no probes.
const DefaultProbeCount = 4

// Config holds application configuration
type Config struct {
	LogLevel   string     `yaml:"log_level" default:"info"`
	Device     Device     `yaml:"device"`
	Connection Connection `yaml:"connection"`
	Protocol   Protocol   `yaml:"protocol"`
	API        API        `yaml:"api"`
}

// Device selects and describes the thermometer.
type Device struct {
	ServiceUUID string        `yaml:"service_uuid" default:"fff0"`
	LocalName   string        `yaml:"local_name" default:"iBBQ"`
	Unit        protocol.Unit `yaml:"unit"`
	Probes      []Probe       `yaml:"probes"`
}

// Probe is one configured probe jack.
type Probe struct {
	Position int    `yaml:"position"`
	Name     string `yaml:"name,omitempty"`
}

// Connection tunes the connection controller. BreakerFailures counts
// incompatible discoveries of one address before it is skipped for
// BreakerCooldown; dial and link failures only trigger a rescan.
type Connection struct {
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"15s"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" default:"5s"`
	ScanRestartDelay  time.Duration `yaml:"scan_restart_delay" default:"2s"`
	BreakerFailures   uint32        `yaml:"breaker_failures" default:"1"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown" default:"1m"`
}

// Protocol carries the firmware command frames as hex strings.
type Protocol struct {
	PairingKey           string `yaml:"pairing_key" default:"2107060504030201b8220000000000"`
	SubscribeTemperature string `yaml:"subscribe_temperature" default:"0b0100000000"`
	SubscribeBattery     string `yaml:"subscribe_battery" default:"082400000000"`
	UnitCelsius          string `yaml:"unit_celsius" default:"020000000000"`
	UnitFahrenheit       string `yaml:"unit_fahrenheit" default:"020100000000"`
	DisconnectedSentinel uint16 `yaml:"disconnected_sentinel" default:"65526"`
}

// API configures the HTTP surface. An empty Listen disables it.
type API struct {
	Listen string `yaml:"listen"`
}

// Default returns default configuration values
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.applyProbeDefaults()
	return cfg
}

// Load reads path over the defaults and validates the result. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyProbeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyProbeDefaults() {
	if len(c.Device.Probes) > 0 {
		return
	}
	for i := 1; i <= DefaultProbeCount; i++ {
		c.Device.Probes = append(c.Device.Probes, Probe{Position: i})
	}
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := device.ValidateUUID(c.Device.ServiceUUID); err != nil {
		errs = append(errs, fmt.Errorf("device.service_uuid: %w", err))
	}
	if strings.TrimSpace(c.Device.LocalName) == "" {
		errs = append(errs, errors.New("device.local_name: must not be empty"))
	}
	if _, err := thermometer.New(c.Device.ServiceUUID, c.Device.Unit, c.ProbeConfigs()); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}

	for name, d := range map[string]time.Duration{
		"connection.connect_timeout":    c.Connection.ConnectTimeout,
		"connection.keepalive_interval": c.Connection.KeepaliveInterval,
		"connection.scan_restart_delay": c.Connection.ScanRestartDelay,
		"connection.breaker_cooldown":   c.Connection.BreakerCooldown,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %v", name, d))
		}
	}
	if c.Connection.BreakerFailures == 0 {
		errs = append(errs, errors.New("connection.breaker_failures: must be at least 1"))
	}

	if _, err := c.Protocol.frames(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ProbeConfigs converts the probe list for thermometer.New.
func (c *Config) ProbeConfigs() []thermometer.ProbeConfig {
	out := make([]thermometer.ProbeConfig, len(c.Device.Probes))
	for i, p := range c.Device.Probes {
		out[i] = thermometer.ProbeConfig{Position: p.Position, Name: p.Name}
	}
	return out
}

// Codec builds the protocol codec from the configured frames.
func (c *Config) Codec() (protocol.Codec, error) {
	frames, err := c.Protocol.frames()
	if err != nil {
		return protocol.Codec{}, err
	}
	return protocol.NewCodec(frames, c.Protocol.DisconnectedSentinel), nil
}

func (p Protocol) frames() (protocol.Frames, error) {
	var f protocol.Frames
	for _, field := range []struct {
		name string
		hex  string
		dst  *[]byte
	}{
		{"protocol.pairing_key", p.PairingKey, &f.PairingKey},
		{"protocol.subscribe_temperature", p.SubscribeTemperature, &f.SubscribeTemperature},
		{"protocol.subscribe_battery", p.SubscribeBattery, &f.SubscribeBattery},
		{"protocol.unit_celsius", p.UnitCelsius, &f.UnitCelsius},
		{"protocol.unit_fahrenheit", p.UnitFahrenheit, &f.UnitFahrenheit},
	} {
		b, err := ParseHex(field.hex)
		if err != nil {
			return protocol.Frames{}, fmt.Errorf("%s: %w", field.name, err)
		}
		if len(b) == 0 {
			return protocol.Frames{}, fmt.Errorf("%s: must not be empty", field.name)
		}
		*field.dst = b
	}
	return f, nil
}

// ParseHex decodes a hex string, ignoring spaces, colons and a 0x prefix.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	return hex.DecodeString(s)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

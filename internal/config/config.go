// Package config holds the test configuration and its loading from flags,
// environment and config files.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Keys used in config files, environment (WSOAK_ prefix) and flag bindings.
const (
	KeyClients      = "clients"
	KeyDuration     = "duration"
	KeyRequests     = "requests"
	KeyRest         = "rest"
	KeyDeviceID     = "device_id"
	KeyClientID     = "client_id"
	KeyProvisionURL = "provision_url"
	KeyPort         = "port"
)

const DefaultMonitoredPort = 8000

var (
	ErrClientCount   = errors.New("client count must be at least 1")
	ErrDuration      = errors.New("session duration must not be negative")
	ErrRequests      = errors.New("requests per round must be at least 1")
	ErrRest          = errors.New("rest time must not be negative")
	ErrDeviceID      = errors.New("device id is required")
	ErrClientID      = errors.New("client id is required")
	ErrProvisionURL  = errors.New("provisioning url must be an absolute http(s) url")
	ErrMonitoredPort = errors.New("monitored port must be between 1 and 65535")
)

// TestConfiguration describes one run. The controller copies it on start, so
// a running test never observes later edits.
type TestConfiguration struct {
	ClientCount            int    `mapstructure:"clients" yaml:"clients"`
	SessionDurationSeconds int    `mapstructure:"duration" yaml:"duration"`
	RequestsPerRound       int    `mapstructure:"requests" yaml:"requests"`
	RestSeconds            int    `mapstructure:"rest" yaml:"rest"`
	DeviceID               string `mapstructure:"device_id" yaml:"device_id"`
	ClientID               string `mapstructure:"client_id" yaml:"client_id"`
	ProvisioningURL        string `mapstructure:"provision_url" yaml:"provision_url"`
	MonitoredPort          int    `mapstructure:"port" yaml:"port"`
}

// Default returns the values the harness ships with.
func Default() TestConfiguration {
	return TestConfiguration{
		ClientCount:            10,
		SessionDurationSeconds: 4,
		RequestsPerRound:       5,
		RestSeconds:            5,
		DeviceID:               "75:9E:6E:61:39:5A",
		ClientID:               "web_test_client",
		ProvisioningURL:        "http://localhost:8002/xiaozhi/ota/",
		MonitoredPort:          DefaultMonitoredPort,
	}
}

// SessionDuration is the receive window of a single session.
func (c TestConfiguration) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationSeconds) * time.Second
}

// Validate reports the first invalid field.
func (c TestConfiguration) Validate() error {
	if c.ClientCount < 1 {
		return ErrClientCount
	}
	if c.SessionDurationSeconds < 0 {
		return ErrDuration
	}
	if c.RequestsPerRound < 1 {
		return ErrRequests
	}
	if c.RestSeconds < 0 {
		return ErrRest
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		return ErrDeviceID
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return ErrClientID
	}
	u, err := url.Parse(c.ProvisioningURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrProvisionURL
	}
	if c.MonitoredPort < 1 || c.MonitoredPort > 65535 {
		return ErrMonitoredPort
	}
	return nil
}

// SetDefaults registers Default() on v so missing keys fall back to it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyClients, d.ClientCount)
	v.SetDefault(KeyDuration, d.SessionDurationSeconds)
	v.SetDefault(KeyRequests, d.RequestsPerRound)
	v.SetDefault(KeyRest, d.RestSeconds)
	v.SetDefault(KeyDeviceID, d.DeviceID)
	v.SetDefault(KeyClientID, d.ClientID)
	v.SetDefault(KeyProvisionURL, d.ProvisioningURL)
	v.SetDefault(KeyPort, d.MonitoredPort)
}

// Load builds a validated configuration from v.
func Load(v *viper.Viper) (TestConfiguration, error) {
	SetDefaults(v)

	var cfg TestConfiguration
	if err := v.Unmarshal(&cfg); err != nil {
		return TestConfiguration{}, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.DeviceID = strings.TrimSpace(cfg.DeviceID)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ProvisioningURL = strings.TrimSpace(cfg.ProvisioningURL)

	if err := cfg.Validate(); err != nil {
		return TestConfiguration{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// WriteYAML dumps cfg in the same shape the config file accepts.
func WriteYAML(w io.Writer, cfg TestConfiguration) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}

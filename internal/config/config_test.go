package config

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if cfg.MonitoredPort != 8000 {
		t.Errorf("expected default monitored port 8000, got %d", cfg.MonitoredPort)
	}
	if cfg.SessionDuration() != 4*time.Second {
		t.Errorf("expected 4s session duration, got %v", cfg.SessionDuration())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TestConfiguration)
		want   error
	}{
		{"zero clients", func(c *TestConfiguration) { c.ClientCount = 0 }, ErrClientCount},
		{"negative duration", func(c *TestConfiguration) { c.SessionDurationSeconds = -1 }, ErrDuration},
		{"zero duration allowed", func(c *TestConfiguration) { c.SessionDurationSeconds = 0 }, nil},
		{"zero requests", func(c *TestConfiguration) { c.RequestsPerRound = 0 }, ErrRequests},
		{"negative rest", func(c *TestConfiguration) { c.RestSeconds = -3 }, ErrRest},
		{"zero rest allowed", func(c *TestConfiguration) { c.RestSeconds = 0 }, nil},
		{"blank device id", func(c *TestConfiguration) { c.DeviceID = "  " }, ErrDeviceID},
		{"blank client id", func(c *TestConfiguration) { c.ClientID = "" }, ErrClientID},
		{"relative url", func(c *TestConfiguration) { c.ProvisioningURL = "/ota/" }, ErrProvisionURL},
		{"ws scheme", func(c *TestConfiguration) { c.ProvisioningURL = "ws://host/ota" }, ErrProvisionURL},
		{"port too high", func(c *TestConfiguration) { c.MonitoredPort = 70000 }, ErrMonitoredPort},
		{"port zero", func(c *TestConfiguration) { c.MonitoredPort = 0 }, ErrMonitoredPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	v := viper.New()
	v.Set(KeyClients, 3)
	v.Set(KeyDeviceID, " AA:BB:CC:DD:EE:FF ")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClientCount != 3 {
		t.Errorf("expected 3 clients, got %d", cfg.ClientCount)
	}
	if cfg.DeviceID != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("expected trimmed device id, got %q", cfg.DeviceID)
	}
	if cfg.RequestsPerRound != Default().RequestsPerRound {
		t.Errorf("expected default requests, got %d", cfg.RequestsPerRound)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	doc := `
clients: 2
duration: 1
requests: 7
rest: 0
provision_url: http://127.0.0.1:9000/ota/
port: 9000
`
	if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestsPerRound != 7 || cfg.MonitoredPort != 9000 || cfg.RestSeconds != 0 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set(KeyRequests, 0)

	_, err := Load(v)
	if !errors.Is(err, ErrRequests) {
		t.Fatalf("expected ErrRequests, got %v", err)
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteYAML(&buf, Default()); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"clients: 10", "75:9E:6E:61:39:5A", "port: 8000"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

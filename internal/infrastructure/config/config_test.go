package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
facility:
  id: "test-facility"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: 9090
simulator:
  enabled: true
  interval: 2
  probability: 0.5
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Facility.ID != "test-facility" {
		t.Errorf("Facility.ID = %q, want %q", cfg.Facility.ID, "test-facility")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if got := cfg.GetSimulatorInterval(); got != 2*time.Second {
		t.Errorf("GetSimulatorInterval() = %v, want 2s", got)
	}
	if cfg.Simulator.Probability != 0.5 {
		t.Errorf("Simulator.Probability = %v, want 0.5", cfg.Simulator.Probability)
	}
	// Untouched sections keep their defaults.
	if cfg.SyncClient.MaxReconnectAttempts != 5 {
		t.Errorf("SyncClient.MaxReconnectAttempts = %d, want 5", cfg.SyncClient.MaxReconnectAttempts)
	}
	if cfg.WebSocket.SendBuffer != 256 {
		t.Errorf("WebSocket.SendBuffer = %d, want 256", cfg.WebSocket.SendBuffer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
facility:
  id: ""
database:
  path: "/tmp/test.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "facility.id is required") {
		t.Errorf("Load() error = %v, want facility.id message", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing facility ID", mutate: func(c *Config) { c.Facility.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "zero send buffer", mutate: func(c *Config) { c.WebSocket.SendBuffer = 0 }, wantErr: true},
		{name: "simulator interval zero", mutate: func(c *Config) { c.Simulator.Interval = 0 }, wantErr: true},
		{name: "simulator probability above one", mutate: func(c *Config) { c.Simulator.Probability = 1.5 }, wantErr: true},
		{
			name: "disabled simulator ignores its settings",
			mutate: func(c *Config) {
				c.Simulator.Enabled = false
				c.Simulator.Interval = 0
			},
		},
		{name: "negative reconnect attempts", mutate: func(c *Config) { c.SyncClient.MaxReconnectAttempts = -1 }, wantErr: true},
		{name: "zero reconnect attempts", mutate: func(c *Config) { c.SyncClient.MaxReconnectAttempts = 0 }},
		{name: "poll interval too small", mutate: func(c *Config) { c.SyncClient.PollInterval = 10 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = validJWTSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_JoinsErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Facility.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"facility.id", "api.port", "security.jwt.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Simulator:  SimulatorConfig{Interval: 10},
		SyncClient: SyncClientConfig{ReconnectBaseDelay: 1000, PollInterval: 5000},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read", cfg.GetReadTimeout(), 30 * time.Second},
		{"write", cfg.GetWriteTimeout(), 45 * time.Second},
		{"idle", cfg.GetIdleTimeout(), 60 * time.Second},
		{"simulator", cfg.GetSimulatorInterval(), 10 * time.Second},
		{"reconnect", cfg.GetReconnectBaseDelay(), time.Second},
		{"poll", cfg.GetPollInterval(), 5 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DOORWATCH_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DOORWATCH_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DOORWATCH_MQTT_USERNAME", "testuser")
	t.Setenv("DOORWATCH_MQTT_PASSWORD", "testpass")
	t.Setenv("DOORWATCH_API_HOST", "192.168.1.1")
	t.Setenv("DOORWATCH_API_PORT", "4000")
	t.Setenv("DOORWATCH_SIMULATOR_ENABLED", "false")
	t.Setenv("DOORWATCH_SERVER_URL", "http://doors.example.com")
	t.Setenv("DOORWATCH_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DOORWATCH_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 4000 {
		t.Errorf("API.Port = %d, want 4000", cfg.API.Port)
	}
	if cfg.Simulator.Enabled {
		t.Error("Simulator.Enabled = true, want false")
	}
	if cfg.SyncClient.ServerURL != "http://doors.example.com" {
		t.Errorf("SyncClient.ServerURL = %q", cfg.SyncClient.ServerURL)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestApplyEnvOverrides_IgnoresUnparseable(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("DOORWATCH_API_PORT", "not-a-port")
	t.Setenv("DOORWATCH_SIMULATOR_ENABLED", "maybe")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 3001 {
		t.Errorf("API.Port = %d, want default 3001", cfg.API.Port)
	}
	if !cfg.Simulator.Enabled {
		t.Error("Simulator.Enabled changed by unparseable value")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Facility.ID == "" {
		t.Error("defaultConfig should have non-empty Facility.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.API.Port != 3001 {
		t.Errorf("defaultConfig API.Port = %d, want 3001", cfg.API.Port)
	}
	if cfg.Simulator.Interval != 10 || cfg.Simulator.Probability != 0.3 {
		t.Errorf("defaultConfig Simulator = %+v, want 10s / 0.3", cfg.Simulator)
	}
	if cfg.SyncClient.ReconnectBaseDelay != 1000 || cfg.SyncClient.PollInterval != 5000 {
		t.Errorf("defaultConfig SyncClient = %+v", cfg.SyncClient)
	}
}

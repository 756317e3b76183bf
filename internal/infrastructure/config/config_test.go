package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// validJWTSecret meets the 32-character minimum.
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
server:
  application_uri: "urn:test:ua"
  port: 4841
modules:
  enabled: ["ioports", "vinput"]
  lua:
    enabled: true
    dir: "/opt/modules"
device:
  base_url: "http://10.0.0.5/axis-cgi"
  timeout: 3
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ApplicationURI != "urn:test:ua" {
		t.Errorf("Server.ApplicationURI = %q", cfg.Server.ApplicationURI)
	}
	if cfg.Server.Port != 4841 {
		t.Errorf("Server.Port = %d, want 4841", cfg.Server.Port)
	}
	if cfg.Device.BaseURL != "http://10.0.0.5/axis-cgi" {
		t.Errorf("Device.BaseURL = %q", cfg.Device.BaseURL)
	}
	if got := cfg.Device.RequestTimeout().Seconds(); got != 3 {
		t.Errorf("RequestTimeout() = %v, want 3", got)
	}
	if !cfg.Modules.Lua.Enabled || cfg.Modules.Lua.Dir != "/opt/modules" {
		t.Errorf("Modules.Lua = %+v", cfg.Modules.Lua)
	}
	// Unset keys keep their defaults.
	if cfg.Modules.Prefix != "libopcua-" {
		t.Errorf("Modules.Prefix = %q, want default", cfg.Modules.Prefix)
	}
	if cfg.Events.TopicPrefix != "axis/event" {
		t.Errorf("Events.TopicPrefix = %q, want default", cfg.Events.TopicPrefix)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("GRAYLOGIC_UA_JWT_SECRET", validJWTSecret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Server.Port != 4840 {
		t.Errorf("Server.Port = %d, want 4840", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
server:
  application_uri: ""
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "server.application_uri") {
		t.Errorf("error %q does not name the field", err)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error %v does not wrap ErrInvalid", err)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
server:
  prot: 4841
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "prot") {
		t.Errorf("Load() error = %v, want unknown field prot", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Setenv("GRAYLOGIC_UA_JWT_SECRET", validJWTSecret)
	if _, err := Load(writeConfig(t, "")); err != nil {
		t.Errorf("Load() of an empty file error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing application URI", func(c *Config) { c.Server.ApplicationURI = "" }, true},
		{"server port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"server port high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"queue size zero", func(c *Config) { c.Server.QueueSize = 0 }, true},
		{"missing module prefix", func(c *Config) { c.Modules.Prefix = "" }, true},
		{"lua without dir", func(c *Config) { c.Modules.Lua = LuaConfig{Enabled: true} }, true},
		{"missing base URL", func(c *Config) { c.Device.BaseURL = "" }, true},
		{"device timeout zero", func(c *Config) { c.Device.Timeout = 0 }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"missing params path", func(c *Config) { c.Params.Path = "" }, true},
		{"negative retention", func(c *Config) { c.Database.HistoryRetentionDays = -1 }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"mqtt without host", func(c *Config) { c.MQTT.Broker.Host = "" }, true},
		{"mqtt disabled needs no host", func(c *Config) {
			c.MQTT.Enabled = false
			c.MQTT.Broker.Host = ""
		}, false},
		{"influxdb without url", func(c *Config) { c.InfluxDB.Enabled = true }, true},
		{"invalid API port", func(c *Config) { c.API.Port = 0 }, true},
		{"missing JWT secret", func(c *Config) { c.Security.JWT.Secret = "" }, true},
		{"JWT secret too short", func(c *Config) { c.Security.JWT.Secret = "short" }, true},
		{"API disabled needs no secret", func(c *Config) {
			c.API.Enabled = false
			c.Security.JWT.Secret = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	read, write, idle := APITimeoutConfig{Read: 30, Write: 45, Idle: 60}.Durations()
	if read.Seconds() != 30 || write.Seconds() != 45 || idle.Seconds() != 60 {
		t.Errorf("Durations() = %v, %v, %v", read, write, idle)
	}
	if got := (DeviceConfig{Timeout: 7}).RequestTimeout().Seconds(); got != 7 {
		t.Errorf("RequestTimeout() = %v, want 7", got)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := defaultConfig()
	env := map[string]string{
		"GRAYLOGIC_UA_SERVER_PORT":     "4850",
		"GRAYLOGIC_UA_DEVICE_BASE_URL": "http://device.local/axis-cgi",
		"GRAYLOGIC_UA_DATABASE_PATH":   "/custom/path.db",
		"GRAYLOGIC_UA_MQTT_ENABLED":    "false",
		"GRAYLOGIC_UA_MQTT_HOST":       "mqtt.example.com",
		"GRAYLOGIC_UA_MQTT_USERNAME":   "testuser",
		"GRAYLOGIC_UA_MQTT_PASSWORD":   "testpass",
		"GRAYLOGIC_UA_API_HOST":        "192.168.1.1",
		"GRAYLOGIC_UA_INFLUXDB_TOKEN":  "secret-token",
		"GRAYLOGIC_UA_JWT_SECRET":      "jwt-secret",
		"GRAYLOGIC_UA_LOG_LEVEL":       "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Server.Port", cfg.Server.Port, 4850},
		{"Device.BaseURL", cfg.Device.BaseURL, "http://device.local/axis-cgi"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Enabled", cfg.MQTT.Enabled, false},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port untouched", cfg.API.Port, 8080},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"empty value ignored", cfg.Logging.Level, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"GRAYLOGIC_UA_API_PORT":    "not-a-number",
		"GRAYLOGIC_UA_API_ENABLED": "maybe",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := defaultConfig()
			err := cfg.applyEnv(func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			})
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("applyEnv() error = %v, want one naming %s", err, key)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 4840 {
		t.Errorf("defaultConfig Server.Port = %d, want 4840", cfg.Server.Port)
	}

	if cfg.Device.BaseURL != "http://127.0.0.12/axis-cgi" {
		t.Errorf("defaultConfig Device.BaseURL = %q", cfg.Device.BaseURL)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}

func TestModuleEnabled(t *testing.T) {
	cfg := defaultConfig()
	if !cfg.ModuleEnabled("ioports") {
		t.Error("empty enabled list should enable every module")
	}

	cfg.Modules.Enabled = []string{"vinput"}
	if cfg.ModuleEnabled("ioports") {
		t.Error("ioports enabled despite not being listed")
	}
	if !cfg.ModuleEnabled("vinput") {
		t.Error("vinput not enabled despite being listed")
	}
}

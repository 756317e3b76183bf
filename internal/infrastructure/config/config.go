package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override.
const envPrefix = "GRAYLOGIC_UA_"

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root of config.yaml. Load fills it from defaults, the file
// and GRAYLOGIC_UA_* environment variables, in that order.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Modules   ModulesConfig   `yaml:"modules"`
	Device    DeviceConfig    `yaml:"device"`
	Events    EventsConfig    `yaml:"events"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Params    ParamsConfig    `yaml:"params"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig describes the address space and the goroutine that owns it.
type ServerConfig struct {
	Name           string `yaml:"name"`
	ApplicationURI string `yaml:"application_uri"`
	// Port is the UA endpoint port. The persisted Port parameter wins when set.
	Port int `yaml:"port"`
	// QueueSize bounds the handoff channel from notifiers to the server goroutine.
	QueueSize int `yaml:"queue_size"`
}

// ModulesConfig selects which capability modules are loaded.
type ModulesConfig struct {
	Prefix string `yaml:"prefix"`
	// Enabled lists builtin module names. Empty loads all of them.
	Enabled []string  `yaml:"enabled"`
	Lua     LuaConfig `yaml:"lua"`
}

// LuaConfig configures the script module loader.
type LuaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DeviceConfig contains the device control API settings.
type DeviceConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout is the per-request timeout in seconds.
	Timeout         int    `yaml:"timeout"`
	CredentialsFile string `yaml:"credentials_file"`
}

// RequestTimeout returns Timeout as a Duration.
func (d DeviceConfig) RequestTimeout() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// EventsConfig contains device event delivery settings.
type EventsConfig struct {
	// Buffer is the queue length of each subscription.
	Buffer      int    `yaml:"buffer"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// HistoryRetentionDays bounds the state history table. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds the HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Durations returns the read, write and idle timeouts.
func (t APITimeoutConfig) Durations() (read, write, idle time.Duration) {
	return time.Duration(t.Read) * time.Second,
		time.Duration(t.Write) * time.Second,
		time.Duration(t.Idle) * time.Second
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ParamsConfig locates the persistent parameter store.
type ParamsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// AccessTokenTTL is in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// Load builds the configuration for path.
//
// Unknown keys in the file are rejected so that a misspelt setting fails
// loudly instead of silently keeping its default. An empty path skips the
// file. Environment variables are named GRAYLOGIC_UA_<KEY>, for example
// GRAYLOGIC_UA_DEVICE_BASE_URL or GRAYLOGIC_UA_JWT_SECRET; see envBindings.
//
// Parameters:
//   - path: YAML file, or "" for defaults plus environment
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read or parse failure, or one wrapping ErrInvalid
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decodeStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:           "Gray Logic UA",
			ApplicationURI: "urn:graylogic:ua:server",
			Port:           4840,
			QueueSize:      256,
		},
		Modules: ModulesConfig{
			Prefix: "libopcua-",
			Lua:    LuaConfig{Dir: "./modules"},
		},
		Device: DeviceConfig{
			BaseURL:         "http://127.0.0.12/axis-cgi",
			Timeout:         10,
			CredentialsFile: "./credentials.yaml",
		},
		Events: EventsConfig{Buffer: 64, TopicPrefix: "axis/event"},
		Database: DatabaseConfig{
			Path:                 "./data/graylogic-ua.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Enabled:   true,
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "graylogic-ua"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Enabled:  true,
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		InfluxDB:  InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		Params:    ParamsConfig{Path: "./data/params.db"},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Security:  SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 15}},
	}
}

// envBindings maps environment keys (without the prefix) to the fields
// they override. Targets are *string, *int or *bool.
func (c *Config) envBindings() map[string]any {
	return map[string]any{
		"SERVER_PORT":             &c.Server.Port,
		"DEVICE_BASE_URL":         &c.Device.BaseURL,
		"DEVICE_CREDENTIALS_FILE": &c.Device.CredentialsFile,
		"DATABASE_PATH":           &c.Database.Path,
		"PARAMS_PATH":             &c.Params.Path,
		"MQTT_ENABLED":            &c.MQTT.Enabled,
		"MQTT_HOST":               &c.MQTT.Broker.Host,
		"MQTT_PORT":               &c.MQTT.Broker.Port,
		"MQTT_USERNAME":           &c.MQTT.Auth.Username,
		"MQTT_PASSWORD":           &c.MQTT.Auth.Password,
		"API_ENABLED":             &c.API.Enabled,
		"API_HOST":                &c.API.Host,
		"API_PORT":                &c.API.Port,
		"INFLUXDB_ENABLED":        &c.InfluxDB.Enabled,
		"INFLUXDB_TOKEN":          &c.InfluxDB.Token,
		"LOG_LEVEL":               &c.Logging.Level,
		"JWT_SECRET":              &c.Security.JWT.Secret,
	}
}

// applyEnv overrides fields from the environment. Empty values are
// ignored; values that do not parse are an error.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for key, target := range c.envBindings() {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		switch dst := target.(type) {
		case *string:
			*dst = v
		case *int:
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				continue
			}
			*dst = n
		case *bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				continue
			}
			*dst = b
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %w", errors.Join(errs...))
	}
	return nil
}

// minJWTSecretLength applies whenever the API is enabled: its write and
// call routes drive physical outputs.
const minJWTSecretLength = 32

// Validate reports every problem at once. Each one wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field, problem string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s %s", ErrInvalid, field, problem))
		}
	}
	validPort := func(p int) bool { return p >= 1 && p <= 65535 }

	check(c.Server.ApplicationURI != "", "server.application_uri", "is required")
	check(validPort(c.Server.Port), "server.port", "must be between 1 and 65535")
	check(c.Server.QueueSize >= 1, "server.queue_size", "must be positive")

	check(c.Modules.Prefix != "", "modules.prefix", "is required")
	check(!c.Modules.Lua.Enabled || c.Modules.Lua.Dir != "", "modules.lua.dir", "is required when lua is enabled")

	check(c.Device.BaseURL != "", "device.base_url", "is required")
	check(c.Device.Timeout >= 1, "device.timeout", "must be at least 1 second")

	check(c.Database.Path != "", "database.path", "is required")
	check(c.Database.HistoryRetentionDays >= 0, "database.history_retention_days", "must not be negative")
	check(c.Params.Path != "", "params.path", "is required")

	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos", "must be 0, 1, or 2")
	check(!c.MQTT.Enabled || c.MQTT.Broker.Host != "", "mqtt.broker.host", "is required when mqtt is enabled")

	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url", "is required when influxdb is enabled")

	if c.API.Enabled {
		check(validPort(c.API.Port), "api.port", "must be between 1 and 65535")
		check(c.Security.JWT.Secret != "", "security.jwt.secret", "is required (set GRAYLOGIC_UA_JWT_SECRET)")
		check(c.Security.JWT.Secret == "" || len(c.Security.JWT.Secret) >= minJWTSecretLength,
			"security.jwt.secret", "must be at least 32 characters")
	}

	return errors.Join(errs...)
}

// ModuleEnabled reports whether the builtin module name is selected. An
// empty list selects all of them.
func (c *Config) ModuleEnabled(name string) bool {
	return len(c.Modules.Enabled) == 0 || slices.Contains(c.Modules.Enabled, name)
}

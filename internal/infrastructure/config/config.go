package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for wtap-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	WiFi      WiFiConfig      `yaml:"wifi"`
	Radio     RadioConfig     `yaml:"radio"`
}

// DeviceConfig identifies this adapter on the network and in MQTT topics.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Hostname string `yaml:"hostname"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	PanelDir string           `yaml:"panel_dir"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	// AuthEnabled guards the command endpoints (/api, /ws) with a JWT.
	AuthEnabled bool `yaml:"auth_enabled"`

	JWT JWTConfig `yaml:"jwt"`

	// AdminPasswordHash is an Argon2id PHC string for the admin login.
	AdminPasswordHash string `yaml:"admin_password_hash"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// PipelineConfig sizes the command pipeline: the request buffer pool and
// the two runner channels, plus the bounded waits at each hand-off.
type PipelineConfig struct {
	BufferCount      int           `yaml:"buffer_count"`
	BufferSize       int           `yaml:"buffer_size"`
	LongRunCapacity  int           `yaml:"long_run_capacity"`
	SendOutCapacity  int           `yaml:"send_out_capacity"`
	AcquireTimeout   time.Duration `yaml:"acquire_timeout"`
	SubmitTimeout    time.Duration `yaml:"submit_timeout"`
	SendOutTimeout   time.Duration `yaml:"send_out_timeout"`
	ReplyWaitTimeout time.Duration `yaml:"reply_wait_timeout"`
}

// WiFiConfig contains connectivity manager settings.
type WiFiConfig struct {
	Hostname string       `yaml:"hostname"`
	AP       WiFiAPConfig `yaml:"ap"`

	// Connect attempts and deadlines.
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	ExplicitAttempts int           `yaml:"explicit_attempts"`
	BootAttempts     int           `yaml:"boot_attempts"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	PreemptTimeout   time.Duration `yaml:"preempt_timeout"`

	// AP fallback policy in auto mode.
	APOffDelay       time.Duration `yaml:"ap_off_delay"`
	APOnDelay        time.Duration `yaml:"ap_on_delay"`
	FailureThreshold int           `yaml:"failure_threshold"`

	// Scanning.
	ScanChannelTimeout time.Duration `yaml:"scan_channel_timeout"`
	ScanMinRSSI        int           `yaml:"scan_min_rssi"`
	ScanMaxResults     int           `yaml:"scan_max_results"`
}

// WiFiAPConfig is the factory access point used until a credential is stored.
type WiFiAPConfig struct {
	SSID           string `yaml:"ssid"`
	Password       string `yaml:"password"`
	Channel        int    `yaml:"channel"`
	IP             string `yaml:"ip"`
	Gateway        string `yaml:"gateway"`
	Netmask        string `yaml:"netmask"`
	MaxConnections int    `yaml:"max_connections"`
}

// RadioConfig selects the radio driver.
type RadioConfig struct {
	// Driver is the radio backend. Only "sim" is built in.
	Driver string `yaml:"driver"`

	// Sim configures the simulated radio.
	Sim SimRadioConfig `yaml:"sim"`
}

// SimRadioConfig describes the networks visible to the simulated radio.
type SimRadioConfig struct {
	ConnectLatency time.Duration      `yaml:"connect_latency"`
	ScanLatency    time.Duration      `yaml:"scan_latency"`
	Networks       []SimNetworkConfig `yaml:"networks"`
}

// SimNetworkConfig is one simulated access point.
type SimNetworkConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
	BSSID    string `yaml:"bssid"`
	Channel  int    `yaml:"channel"`
	RSSI     int    `yaml:"rssi"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WTAP_SECTION_KEY
// For example: WTAP_DATABASE_PATH, WTAP_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:       "wtap-001",
			Name:     "wtap",
			Hostname: "wtap",
		},
		Database: DatabaseConfig{
			Path:        "./data/wtap.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wtap-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 80,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 2048,
			PingInterval:   2,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{AccessTokenTTL: 60},
		},
		Pipeline: PipelineConfig{
			BufferCount:      8,
			BufferSize:       2048,
			LongRunCapacity:  2,
			SendOutCapacity:  4,
			AcquireTimeout:   10 * time.Millisecond,
			SubmitTimeout:    20 * time.Millisecond,
			SendOutTimeout:   20 * time.Millisecond,
			ReplyWaitTimeout: 30 * time.Second,
		},
		WiFi: WiFiConfig{
			Hostname: "wtap",
			AP: WiFiAPConfig{
				SSID:           "wtap",
				Password:       "wtap12345",
				Channel:        6,
				IP:             "192.168.1.1",
				Gateway:        "192.168.1.1",
				Netmask:        "255.255.255.0",
				MaxConnections: 4,
			},
			ConnectTimeout:     10 * time.Second,
			ExplicitAttempts:   2,
			BootAttempts:       3,
			ReconnectDelay:     5 * time.Second,
			PreemptTimeout:     2 * time.Second,
			APOffDelay:         5 * time.Second,
			APOnDelay:          10 * time.Second,
			FailureThreshold:   5,
			ScanChannelTimeout: time.Second,
			ScanMinRSSI:        -80,
			ScanMaxResults:     20,
		},
		Radio: RadioConfig{
			Driver: "sim",
			Sim: SimRadioConfig{
				ConnectLatency: 300 * time.Millisecond,
				ScanLatency:    50 * time.Millisecond,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WTAP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WTAP_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("WTAP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("WTAP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WTAP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WTAP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("WTAP_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("WTAP_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("WTAP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("WTAP_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("WTAP_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Security.AdminPasswordHash = v
	}

	if v := os.Getenv("WTAP_AP_PASSWORD"); v != "" {
		cfg.WiFi.AP.Password = v
	}
}

// minAPPasswordLength is the WPA2 minimum passphrase length.
const minAPPasswordLength = 8

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A forged token grants full control of the adapter, so the secret
	// must be strong whenever auth is on.
	const minJWTSecretLength = 32
	if c.Security.AuthEnabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when auth is enabled (set WTAP_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
		if c.Security.AdminPasswordHash == "" {
			errs = append(errs, "security.admin_password_hash is required when auth is enabled")
		}
	}

	errs = append(errs, c.Pipeline.validate()...)
	errs = append(errs, c.WiFi.validate()...)

	switch c.Radio.Driver {
	case "sim":
	default:
		errs = append(errs, fmt.Sprintf("radio.driver %q is not supported", c.Radio.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (p PipelineConfig) validate() []string {
	var errs []string
	if p.BufferCount < 1 {
		errs = append(errs, "pipeline.buffer_count must be at least 1")
	}
	if p.BufferSize < 64 {
		errs = append(errs, "pipeline.buffer_size must be at least 64")
	}
	if p.LongRunCapacity < 1 {
		errs = append(errs, "pipeline.long_run_capacity must be at least 1")
	}
	if p.SendOutCapacity < 1 {
		errs = append(errs, "pipeline.send_out_capacity must be at least 1")
	}
	if p.AcquireTimeout <= 0 || p.SubmitTimeout <= 0 || p.SendOutTimeout <= 0 {
		errs = append(errs, "pipeline timeouts must be positive")
	}
	return errs
}

func (w WiFiConfig) validate() []string {
	var errs []string
	if w.AP.SSID == "" {
		errs = append(errs, "wifi.ap.ssid is required")
	}
	if len(w.AP.Password) < minAPPasswordLength {
		errs = append(errs, "wifi.ap.password must be at least 8 characters")
	}
	if w.AP.Channel < 1 || w.AP.Channel > 13 {
		errs = append(errs, "wifi.ap.channel must be between 1 and 13")
	}
	if w.ConnectTimeout <= 0 {
		errs = append(errs, "wifi.connect_timeout must be positive")
	}
	if w.ExplicitAttempts < 1 || w.BootAttempts < 1 {
		errs = append(errs, "wifi attempt budgets must be at least 1")
	}
	if w.ReconnectDelay <= 0 {
		errs = append(errs, "wifi.reconnect_delay must be positive")
	}
	if w.ScanChannelTimeout <= 0 {
		errs = append(errs, "wifi.scan_channel_timeout must be positive")
	}
	if w.ScanMaxResults < 1 {
		errs = append(errs, "wifi.scan_max_results must be at least 1")
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device type identifiers accepted in the devices section.
const (
	DeviceTypePrinter = "printer"
	DeviceTypeSwitch  = "switch"
	DeviceTypePixels  = "pixels"
	DeviceTypeNFC     = "nfc"
	DeviceTypeProxy   = "proxy"
)

// Config is the root configuration structure for TopHat.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Devices  []DeviceConfig `yaml:"devices"`
	Hats     []HatConfig    `yaml:"hats"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
}

// ServerConfig contains control socket and worker pool settings.
type ServerConfig struct {
	// SocketPath is the filesystem path of the primary control socket.
	SocketPath string `yaml:"socket_path"`

	// Workers is the number of command execution workers.
	Workers int `yaml:"workers"`

	// QueueDepth bounds the number of submitted commands waiting for a worker.
	QueueDepth int `yaml:"queue_depth"`

	// MaxMessageSize is the largest accepted request frame in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// ShutdownGrace is how long shutdown waits for running commands.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// DeviceConfig describes one registered device.
//
// Only the fields relevant to Type are read; the rest are ignored.
type DeviceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Driver selects the peripheral driver ("memory" or "console").
	// Hardware drivers are provided outside this repository.
	Driver string `yaml:"driver,omitempty"`

	// Pin is the board pin number for switch and pixel devices.
	Pin int `yaml:"pin,omitempty"`

	// LEDs is the pixel count of a pixel strip.
	LEDs int `yaml:"leds,omitempty"`

	// Delay is the printer's fixed delay before output. Zero selects the default.
	Delay time.Duration `yaml:"delay,omitempty"`

	// PollInterval is the NFC reader's idle time between scans.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// Proxy settings (Type == "proxy").
	Proxy ProxyConfig `yaml:"proxy,omitempty"`
}

// ProxyConfig describes a device owned by a separate process.
type ProxyConfig struct {
	// SocketPath is the owner process's secondary socket.
	SocketPath string `yaml:"socket_path"`

	// Target is the device type the owner serves; it fixes the capability set.
	Target string `yaml:"target"`

	// Owner optionally lets the daemon supervise the owner process.
	Owner OwnerConfig `yaml:"owner"`
}

// OwnerConfig contains supervision settings for a proxy owner process.
type OwnerConfig struct {
	// Managed indicates whether TopHat starts and stops the owner process.
	// If false, the owner is expected to be running externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the owner executable.
	Binary string `yaml:"binary"`

	// Args are passed to the owner executable.
	Args []string `yaml:"args"`

	// RestartOnFailure enables automatic restart if the owner exits.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelay is the time to wait before restarting.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// ReadyTimeout is how long startup waits for the owner's socket to appear.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// HatConfig describes a sandboxed extension.
type HatConfig struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image"`

	// LaunchArgs are extra container runtime flags (without leading dashes).
	LaunchArgs map[string]string `yaml:"launch_args,omitempty"`
}

// SandboxConfig contains container runtime settings for hats.
type SandboxConfig struct {
	Enabled bool `yaml:"enabled"`

	// Engine is "docker", "podman", or empty for auto-detection.
	Engine string `yaml:"engine"`

	// CPUPercent caps each hat container's CPU usage.
	CPUPercent int `yaml:"cpu_percent"`

	// MountPath is where the control socket directory appears inside containers.
	MountPath string `yaml:"mount_path"`

	// StopTimeout is the grace period before a container is force-stopped.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// DatabaseConfig contains SQLite settings for the command audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the local status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TOPHAT_SECTION_KEY
// For example: TOPHAT_SERVER_SOCKET_PATH, TOPHAT_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			SocketPath:     "/srv/tophat/tophat.socket",
			Workers:        2,
			QueueDepth:     64,
			MaxMessageSize: 4096,
			ShutdownGrace:  5 * time.Second,
		},
		Sandbox: SandboxConfig{
			Enabled:     true,
			CPUPercent:  25,
			MountPath:   "/var/run/tophat",
			StopTimeout: 8 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tophat",
			},
			QoS:         1,
			TopicPrefix: "tophat",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "/var/lib/tophat/audit.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8086,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOPHAT_SERVER_SOCKET_PATH"); v != "" {
		cfg.Server.SocketPath = v
	}
	if v := os.Getenv("TOPHAT_SERVER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Workers = n
		}
	}

	if v := os.Getenv("TOPHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("TOPHAT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TOPHAT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TOPHAT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("TOPHAT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("TOPHAT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("TOPHAT_SANDBOX_ENGINE"); v != "" {
		cfg.Sandbox.Engine = v
	}
}

// minMessageSize keeps the frame limit large enough for any valid request.
const minMessageSize = 64

// maxMessageSize caps the configurable frame limit.
const maxMessageSize = 1 << 20

// Validate checks the configuration for errors.
//
// Duplicate device and hat names are reported here so they fail before
// the server starts.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.SocketPath == "" {
		errs = append(errs, "server.socket_path is required")
	}
	if c.Server.Workers < 1 {
		errs = append(errs, "server.workers must be at least 1")
	}
	if c.Server.QueueDepth < 1 {
		errs = append(errs, "server.queue_depth must be at least 1")
	}
	if c.Server.MaxMessageSize < minMessageSize || c.Server.MaxMessageSize > maxMessageSize {
		errs = append(errs, fmt.Sprintf("server.max_message_size must be between %d and %d", minMessageSize, maxMessageSize))
	}

	errs = append(errs, c.validateDevices()...)
	errs = append(errs, c.validateHats()...)

	if c.Sandbox.CPUPercent < 1 || c.Sandbox.CPUPercent > 100 {
		errs = append(errs, "sandbox.cpu_percent must be between 1 and 100")
	}
	if c.Sandbox.MountPath == "" {
		errs = append(errs, "sandbox.mount_path is required")
	}
	switch c.Sandbox.Engine {
	case "", "docker", "podman":
	default:
		errs = append(errs, fmt.Sprintf("sandbox.engine %q must be docker or podman", c.Sandbox.Engine))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the audit log is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateDevices() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Devices))

	for i, d := range c.Devices {
		if d.Name == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].name is required", i))
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Sprintf("device %q is defined more than once", d.Name))
		}
		seen[d.Name] = true

		switch d.Type {
		case DeviceTypePrinter, DeviceTypeSwitch, DeviceTypeNFC:
		case DeviceTypePixels:
			if d.LEDs < 1 {
				errs = append(errs, fmt.Sprintf("device %q: leds must be at least 1", d.Name))
			}
		case DeviceTypeProxy:
			if d.Proxy.SocketPath == "" {
				errs = append(errs, fmt.Sprintf("device %q: proxy.socket_path is required", d.Name))
			}
			switch d.Proxy.Target {
			case DeviceTypePrinter, DeviceTypeSwitch, DeviceTypePixels, DeviceTypeNFC:
			default:
				errs = append(errs, fmt.Sprintf("device %q: proxy.target %q is not a device type", d.Name, d.Proxy.Target))
			}
			if d.Proxy.Owner.Managed && d.Proxy.Owner.Binary == "" {
				errs = append(errs, fmt.Sprintf("device %q: proxy.owner.binary is required when managed", d.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("device %q: unknown type %q", d.Name, d.Type))
		}

		switch d.Driver {
		case "", "memory", "console":
		default:
			errs = append(errs, fmt.Sprintf("device %q: unknown driver %q", d.Name, d.Driver))
		}
	}

	return errs
}

func (c *Config) validateHats() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Hats))

	for i, h := range c.Hats {
		if h.Name == "" {
			errs = append(errs, fmt.Sprintf("hats[%d].name is required", i))
			continue
		}
		if seen[h.Name] {
			errs = append(errs, fmt.Sprintf("hat %q is defined more than once", h.Name))
		}
		seen[h.Name] = true

		if h.Image == "" {
			errs = append(errs, fmt.Sprintf("hat %q: image is required", h.Name))
		}
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

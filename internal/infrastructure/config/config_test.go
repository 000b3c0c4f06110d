package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  socket_path: "/tmp/tophat-test.socket"
  workers: 4
  shutdown_grace: 2s
devices:
  - name: printer
    type: printer
    delay: 1s
  - name: pixels
    type: proxy
    proxy:
      socket_path: "/tmp/neopixel.socket"
      target: pixels
      owner:
        managed: true
        binary: "/usr/bin/tophat-pixeld"
        restart_on_failure: true
hats:
  - name: weather
    image: "tophat/weather:latest"
    launch_args:
      memory: "64m"
mqtt:
  broker:
    host: "localhost"
    port: 1883
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.SocketPath != "/tmp/tophat-test.socket" {
		t.Errorf("Server.SocketPath = %q, want %q", cfg.Server.SocketPath, "/tmp/tophat-test.socket")
	}
	if cfg.Server.Workers != 4 {
		t.Errorf("Server.Workers = %d, want 4", cfg.Server.Workers)
	}
	if cfg.Server.ShutdownGrace != 2*time.Second {
		t.Errorf("Server.ShutdownGrace = %v, want 2s", cfg.Server.ShutdownGrace)
	}
	// Unset values keep their defaults.
	if cfg.Server.QueueDepth != 64 {
		t.Errorf("Server.QueueDepth = %d, want 64", cfg.Server.QueueDepth)
	}

	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[0].Delay != time.Second {
		t.Errorf("Devices[0].Delay = %v, want 1s", cfg.Devices[0].Delay)
	}
	proxy := cfg.Devices[1].Proxy
	if proxy.Target != DeviceTypePixels || !proxy.Owner.Managed || proxy.Owner.Binary != "/usr/bin/tophat-pixeld" {
		t.Errorf("Devices[1].Proxy = %+v, unexpected", proxy)
	}

	if len(cfg.Hats) != 1 || cfg.Hats[0].LaunchArgs["memory"] != "64m" {
		t.Errorf("Hats = %+v, unexpected", cfg.Hats)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
devices:
  - name: lamp
    type: switch
  - name: lamp
    type: switch
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for duplicate device, got nil")
	}
	if !strings.Contains(err.Error(), `device "lamp" is defined more than once`) {
		t.Errorf("Load() error = %v, want duplicate device message", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid devices and hats",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{
					{Name: "printer", Type: DeviceTypePrinter, Driver: "console"},
					{Name: "strip", Type: DeviceTypePixels, LEDs: 8},
					{Name: "reader", Type: DeviceTypeNFC},
					{Name: "remote", Type: DeviceTypeProxy, Proxy: ProxyConfig{SocketPath: "/tmp/x.socket", Target: DeviceTypePixels}},
				}
				c.Hats = []HatConfig{{Name: "weather", Image: "tophat/weather"}}
			},
			wantErr: false,
		},
		{
			name:    "missing socket path",
			mutate:  func(c *Config) { c.Server.SocketPath = "" },
			wantErr: true,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Server.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "zero queue depth",
			mutate:  func(c *Config) { c.Server.QueueDepth = 0 },
			wantErr: true,
		},
		{
			name:    "message size too small",
			mutate:  func(c *Config) { c.Server.MaxMessageSize = 8 },
			wantErr: true,
		},
		{
			name:    "device without name",
			mutate:  func(c *Config) { c.Devices = []DeviceConfig{{Type: DeviceTypeSwitch}} },
			wantErr: true,
		},
		{
			name:    "unknown device type",
			mutate:  func(c *Config) { c.Devices = []DeviceConfig{{Name: "toaster", Type: "toaster"}} },
			wantErr: true,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Devices = []DeviceConfig{{Name: "lamp", Type: DeviceTypeSwitch, Driver: "gpio"}} },
			wantErr: true,
		},
		{
			name:    "pixels without leds",
			mutate:  func(c *Config) { c.Devices = []DeviceConfig{{Name: "strip", Type: DeviceTypePixels}} },
			wantErr: true,
		},
		{
			name: "proxy without socket",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Name: "remote", Type: DeviceTypeProxy, Proxy: ProxyConfig{Target: DeviceTypePixels}}}
			},
			wantErr: true,
		},
		{
			name: "proxy with proxy target",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Name: "remote", Type: DeviceTypeProxy, Proxy: ProxyConfig{SocketPath: "/tmp/x.socket", Target: DeviceTypeProxy}}}
			},
			wantErr: true,
		},
		{
			name: "managed owner without binary",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Name: "remote", Type: DeviceTypeProxy, Proxy: ProxyConfig{
					SocketPath: "/tmp/x.socket",
					Target:     DeviceTypePixels,
					Owner:      OwnerConfig{Managed: true},
				}}}
			},
			wantErr: true,
		},
		{
			name: "duplicate hat",
			mutate: func(c *Config) {
				c.Hats = []HatConfig{{Name: "a", Image: "img"}, {Name: "a", Image: "img"}}
			},
			wantErr: true,
		},
		{
			name:    "hat without image",
			mutate:  func(c *Config) { c.Hats = []HatConfig{{Name: "a"}} },
			wantErr: true,
		},
		{
			name:    "cpu percent too high",
			mutate:  func(c *Config) { c.Sandbox.CPUPercent = 150 },
			wantErr: true,
		},
		{
			name:    "unknown engine",
			mutate:  func(c *Config) { c.Sandbox.Engine = "lxc" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "enabled database without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name: "disabled database without path",
			mutate: func(c *Config) {
				c.Database.Path = ""
			},
			wantErr: false,
		},
		{
			name: "enabled api invalid port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("TOPHAT_SERVER_SOCKET_PATH", "/run/tophat.socket")
	t.Setenv("TOPHAT_SERVER_WORKERS", "3")
	t.Setenv("TOPHAT_LOG_LEVEL", "debug")
	t.Setenv("TOPHAT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("TOPHAT_MQTT_USERNAME", "testuser")
	t.Setenv("TOPHAT_MQTT_PASSWORD", "testpass")
	t.Setenv("TOPHAT_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("TOPHAT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("TOPHAT_SANDBOX_ENGINE", "podman")

	applyEnvOverrides(cfg)

	if cfg.Server.SocketPath != "/run/tophat.socket" {
		t.Errorf("Server.SocketPath = %q, want %q", cfg.Server.SocketPath, "/run/tophat.socket")
	}
	if cfg.Server.Workers != 3 {
		t.Errorf("Server.Workers = %d, want 3", cfg.Server.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
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
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Sandbox.Engine != "podman" {
		t.Errorf("Sandbox.Engine = %q, want %q", cfg.Sandbox.Engine, "podman")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.SocketPath != "/srv/tophat/tophat.socket" {
		t.Errorf("Default Server.SocketPath = %q", cfg.Server.SocketPath)
	}
	if cfg.Server.Workers != 2 {
		t.Errorf("Default Server.Workers = %d, want 2", cfg.Server.Workers)
	}
	if cfg.Server.MaxMessageSize != 4096 {
		t.Errorf("Default Server.MaxMessageSize = %d, want 4096", cfg.Server.MaxMessageSize)
	}
	if cfg.Sandbox.CPUPercent != 25 {
		t.Errorf("Default Sandbox.CPUPercent = %d, want 25", cfg.Sandbox.CPUPercent)
	}
	if cfg.Sandbox.MountPath != "/var/run/tophat" {
		t.Errorf("Default Sandbox.MountPath = %q", cfg.Sandbox.MountPath)
	}
	if cfg.Sandbox.StopTimeout != 8*time.Second {
		t.Errorf("Default Sandbox.StopTimeout = %v, want 8s", cfg.Sandbox.StopTimeout)
	}
	if cfg.Database.Enabled {
		t.Error("Default Database.Enabled should be false")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

// Package config handles loading and validating TopHat configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields, including unique device and hat names
//   - Default value handling
//
// Security Considerations:
//   - MQTT and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The control socket has no authentication; keep socket_path in a
//     directory only trusted local users (and hat containers) can reach
//
// Usage:
//
//	cfg, err := config.Load("/etc/tophat/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.SocketPath)
package config

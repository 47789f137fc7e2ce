// Package config handles loading and validating irrigation controller configuration.
//
// This package manages:
//   - Selecting a YAML file by environment identifier (development, production, ...)
//   - Loading an optional .env file and applying IRRIGATION_* overrides
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker and database passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path("configs", "production"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topic)
package config

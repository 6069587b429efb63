// Package config handles loading and validating wtap-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (WTAP_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, JWT secret, admin hash) should be set
//     via environment variables
//   - The factory AP password must be changed before shipping a unit
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ID)
package config

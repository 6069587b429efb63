// Package logging provides structured logging for wtap-core.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output by default, text output for bench work
//   - service and version attributes on every record
//   - level filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log WiFi passwords, JWT secrets or tokens. Credentials are
// logged by SSID only.
package logging

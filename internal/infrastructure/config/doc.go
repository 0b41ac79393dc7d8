// Package config handles loading and validating the AttendAI session daemon configuration.
//
// This package manages:
//   - Loading configuration from a YAML file (optional)
//   - Loading a .env file so BACKEND_URL can be shared with the front ends
//   - Overriding with environment variables
//   - Validation of required fields, collected into one error
//
// Security Considerations:
//   - Redis, MQTT and InfluxDB secrets should be set via environment variables
//   - The credential file path should live on a volume only the daemon can read
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Backend.URL)
package config

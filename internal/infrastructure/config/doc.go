// Package config loads the telemetry core configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// TELEMETRY_* environment variables. Validate reports every problem in
// one error so a bad deployment fails with the full list.
//
// Secrets (MQTT password, Redis password, InfluxDB token, JWT secret)
// belong in the environment. The JWT secret has no default.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	lane := cfg.Queue.History // name, concurrency, attempts, backoff
package config

// Package logging provides structured logging for the telemetry core.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	queueLog := logger.Component("queue").With("lane", "history")
//	queueLog.Warn("job failed", "job_id", id, "error", err)
//
// Never log MQTT credentials, Redis passwords or bearer tokens.
package logging

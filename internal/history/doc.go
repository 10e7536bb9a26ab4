// Package history persists history-lane samples.
//
// Each canonical device kind has its own table whose columns follow the
// gateway firmware register map. The persister resolves the sample's
// device within its site, strips per-instance key prefixes, coerces
// values per column and appends one row. Writes are plain inserts, so a
// redelivered sample is stored twice.
//
// Stored samples can optionally be mirrored to InfluxDB; SQLite remains
// the system of record.
package history

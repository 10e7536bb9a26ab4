// Package rules evaluates per-device alert rules against realtime
// telemetry.
//
// Four rule types exist. Threshold rules compare a numeric payload field
// against a bound. Change detection rules fire when a field differs from
// the value last seen for the same device. Device status rules fire on an
// online/offline transition. Custom expression rules evaluate a small,
// side-effect free boolean language over payload fields; expressions are
// parsed, never executed as code.
//
// Engine holds the previous-value cache and is shared by all realtime
// workers. SQLiteRepository stores the rules themselves.
package rules

// Package realtime processes jobs from the realtime lane.
//
// For every sample it resolves the device within its site, pushes the
// payload to live viewers of the device's project, evaluates the
// device's alert rules and raises a notification per recipient for each
// rule that fired. The three effects are independent: a failure in one
// is logged and never suppresses the others.
package realtime

// Package topic parses and classifies gateway telemetry topics.
//
// Gateways publish on a fixed six-segment hierarchy:
//
//	data/<siteId>/<history|realtime>/<deviceExternalId>/<deviceCategory>/<gatewaySerial>
//
// Parse turns a topic into an immutable Descriptor or rejects it. KindOf maps
// the loosely structured category segment onto the pipeline's canonical
// device kinds, which select persistence schemas and payload conventions.
//
// Everything in this package is pure and safe for concurrent use.
package topic

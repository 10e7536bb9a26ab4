// Package device resolves MQTT topic identifiers to registered devices.
//
// Devices are owned by the management layer; the pipeline only reads
// them. A device's external id (the fourth topic segment) is unique
// within a site, never globally, so every lookup is scoped by site id
// through the owning project.
//
// Components:
//   - Repository / SQLiteRepository: queries over the devices table
//   - Registry: a TTL cache in front of the repository, used on the
//     history and realtime hot paths
package device

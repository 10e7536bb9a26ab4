// Package influxdb mirrors persisted history samples to InfluxDB.
//
// The mirror is optional. SQLite remains the system of record and the
// history persister calls WriteHistorySample only after a row has been
// inserted. Each sample becomes one point in the device_history
// measurement, tagged by kind, site, device and group.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a mirror
//	}
//	defer client.Close()
//
// Writes are batched (batch_size, flush_interval) and never block the
// caller. Batch failures arrive through the SetOnError callback.
package influxdb

package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// historyMeasurement is the measurement every mirrored sample lands in.
// The device kind is a tag so one bucket serves all history tables.
const historyMeasurement = "device_history"

// Sample is one persisted history row, as mirrored to InfluxDB.
type Sample struct {
	Kind             string
	SiteID           string
	DeviceExternalID string
	GroupName        string
	Fields           map[string]any
	Time             time.Time
}

// WriteHistorySample queues s for the next batch. Samples with no
// non-null fields are skipped since InfluxDB rejects empty points.
func (c *Client) WriteHistorySample(s Sample) {
	if !c.IsConnected() {
		return
	}
	if point := historyPoint(s); point != nil {
		c.writeAPI.WritePoint(point)
	}
}

func historyPoint(s Sample) *write.Point {
	fields := make(map[string]interface{}, len(s.Fields))
	for name, v := range s.Fields {
		if v != nil {
			fields[name] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}

	tags := map[string]string{
		"kind":      s.Kind,
		"site_id":   s.SiteID,
		"device_id": s.DeviceExternalID,
	}
	if s.GroupName != "" {
		tags["group"] = s.GroupName
	}

	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(historyMeasurement, tags, fields, ts)
}

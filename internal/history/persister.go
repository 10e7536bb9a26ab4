package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/telemetry-core/internal/device"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/telemetry-core/internal/queue"
	"github.com/nerrad567/telemetry-core/internal/topic"
)

// Logger defines the logging interface used by the persister.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceFinder resolves a topic's device within its site.
type DeviceFinder interface {
	FindByExternalID(ctx context.Context, externalID, siteID string) (*device.Device, error)
}

// Mirror receives every stored sample. *influxdb.Client satisfies it.
type Mirror interface {
	WriteHistorySample(s influxdb.Sample)
}

// Persister is the history lane's job handler.
type Persister struct {
	devices DeviceFinder
	sink    Sink
	mirror  Mirror
	logger  Logger
}

// NewPersister creates a persister writing to sink.
func NewPersister(devices DeviceFinder, sink Sink) *Persister {
	return &Persister{devices: devices, sink: sink, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (p *Persister) SetLogger(logger Logger) {
	p.logger = logger
}

// SetMirror enables mirroring stored samples, typically to InfluxDB.
func (p *Persister) SetMirror(m Mirror) {
	p.mirror = m
}

// Handle stores one history job.
//
// Unknown kinds and unregistered devices are logged and dropped: the
// job completes without error because no retry could succeed. Lookup
// and write failures are returned so the queue retries them.
func (p *Persister) Handle(ctx context.Context, job *queue.Job) error {
	d := job.Data.Descriptor
	kind := d.Kind()

	if kind == topic.KindUnknown {
		p.logger.Warn("unknown device category, data skipped",
			"site_id", d.SiteID, "device_id", d.DeviceExternalID, "category", d.DeviceCategory)
		return nil
	}

	dev, err := p.devices.FindByExternalID(ctx, d.DeviceExternalID, d.SiteID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			p.logger.Warn("device not found, data skipped",
				"site_id", d.SiteID, "device_id", d.DeviceExternalID, "kind", kind, "job_id", job.ID)
			return nil
		}
		return fmt.Errorf("resolving device %s/%s: %w", d.SiteID, d.DeviceExternalID, err)
	}

	row, err := MapPayload(kind, dev.ID, job.Data.Payload, job.Data.ReceivedAt)
	if err != nil {
		return queue.Permanent(err)
	}
	if err := p.sink.Insert(ctx, row); err != nil {
		return err
	}

	if p.mirror != nil {
		p.mirror.WriteHistorySample(influxdb.Sample{
			Kind:             string(kind),
			SiteID:           d.SiteID,
			DeviceExternalID: d.DeviceExternalID,
			GroupName:        row.GroupName,
			Fields:           row.Fields(),
			Time:             row.TerminalTime,
		})
	}

	p.logger.Debug("history sample stored",
		"site_id", d.SiteID, "device_id", d.DeviceExternalID, "kind", kind, "attempt", job.Attempts)
	return nil
}

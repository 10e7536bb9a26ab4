package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/telemetry-core/internal/device"
	"github.com/nerrad567/telemetry-core/internal/fanout"
	"github.com/nerrad567/telemetry-core/internal/notification"
	"github.com/nerrad567/telemetry-core/internal/queue"
	"github.com/nerrad567/telemetry-core/internal/rules"
)

// Logger is the logging interface used by the processor.
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

// DeviceFinder resolves a device by its topic identifier within a site.
type DeviceFinder interface {
	FindByExternalID(ctx context.Context, externalID, siteID string) (*device.Device, error)
}

// Broadcaster delivers live events.
type Broadcaster interface {
	BroadcastRealtime(projectID, deviceID, deviceType string, payload map[string]any) int
	SendToUser(userID string, n fanout.Notification) int
}

// Evaluator loads and runs a device's active rules.
type Evaluator interface {
	ActiveRules(ctx context.Context, deviceID string) ([]rules.Rule, error)
	EvaluateAll(active []rules.Rule, payload map[string]any, obs rules.Observation) []rules.Triggered
}

// RecipientLister lists the users who should be alerted for a project.
type RecipientLister interface {
	Recipients(ctx context.Context, projectID string) ([]string, error)
}

// notificationTimeLayout matches the timestamps used on live events.
const notificationTimeLayout = time.RFC3339Nano

// Processor handles realtime jobs.
type Processor struct {
	devices       DeviceFinder
	live          Broadcaster
	rules         Evaluator
	recipients    RecipientLister
	notifications notification.Repository
	logger        Logger
}

// NewProcessor creates a processor.
func NewProcessor(devices DeviceFinder, live Broadcaster, evaluator Evaluator, recipients RecipientLister, notifications notification.Repository) *Processor {
	return &Processor{
		devices:       devices,
		live:          live,
		rules:         evaluator,
		recipients:    recipients,
		notifications: notifications,
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger.
func (p *Processor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Handle is the realtime lane's queue.Handler.
//
// An unknown device is logged and dropped. Device lookup and rule loading
// failures are returned so the queue retries the job. Both happen before
// the broadcast, so a retry never repeats it. Nothing after the broadcast
// returns an error.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	in := job.Data
	d := in.Descriptor

	dev, err := p.devices.FindByExternalID(ctx, d.DeviceExternalID, d.SiteID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			p.logger.Warn("Device not found for realtime data",
				"device_id", d.DeviceExternalID,
				"site_id", d.SiteID,
			)
			return nil
		}
		return fmt.Errorf("resolving device %s at site %s: %w", d.DeviceExternalID, d.SiteID, err)
	}

	p.logger.Debug("realtime data received",
		"job_id", job.ID,
		"site_id", d.SiteID,
		"device_id", d.DeviceExternalID,
		"device_type", d.DeviceCategory,
		"gateway", d.GatewaySerial,
		"fields", len(in.Payload),
	)

	active, err := p.rules.ActiveRules(ctx, dev.ID)
	if err != nil {
		return err
	}

	p.live.BroadcastRealtime(dev.ProjectID, d.DeviceExternalID, d.DeviceCategory, in.Payload)

	online := dev.IsOnline
	triggered := p.rules.EvaluateAll(active, in.Payload, rules.Observation{
		Online: &online,
		At:     in.ReceivedAt,
	})
	if len(triggered) == 0 {
		return nil
	}

	p.logger.Info("notification rules triggered", "device_id", dev.ID, "count", len(triggered))
	for _, t := range triggered {
		p.notify(ctx, dev, in, t)
	}
	return nil
}

// notify raises one notification per recipient and pushes each to the
// recipient's live connections.
func (p *Processor) notify(ctx context.Context, dev *device.Device, in queue.Ingestion, t rules.Triggered) {
	users, err := p.recipients.Recipients(ctx, dev.ProjectID)
	if err != nil {
		p.logger.Error("listing notification recipients failed", "project_id", dev.ProjectID, "rule_id", t.Rule.ID, "error", err)
		return
	}

	message := t.Result.Message
	if message == "" {
		message = "Notification rule triggered"
	}
	data := map[string]any{
		"ruleType":      t.Rule.Type,
		"field":         t.Rule.Field,
		"deviceId":      dev.ExternalID,
		"deviceName":    dev.Name,
		"deviceType":    dev.DeviceType,
		"siteId":        in.Descriptor.SiteID,
		"actualValue":   t.Result.ActualValue,
		"expectedValue": t.Result.ExpectedValue,
		"timestamp":     in.ReceivedAt.UTC().Format(notificationTimeLayout),
	}

	created := 0
	for _, userID := range users {
		n, err := p.notifications.Create(ctx, notification.Input{
			UserID:  userID,
			RuleID:  t.Rule.ID,
			Title:   "Alert: " + t.Rule.Name,
			Message: message,
			Data:    data,
		})
		if err != nil {
			p.logger.Error("creating notification failed", "user_id", userID, "rule_id", t.Rule.ID, "error", err)
			continue
		}
		created++
		p.live.SendToUser(userID, fanout.Notification{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			RuleID:    n.RuleID,
			Data:      n.Data,
			CreatedAt: n.CreatedAt.UTC().Format(notificationTimeLayout),
		})
	}
	p.logger.Info("notifications created for rule",
		"rule_id", t.Rule.ID,
		"rule_name", t.Rule.Name,
		"device_id", dev.ID,
		"recipients", created,
	)
}

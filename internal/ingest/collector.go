package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/telemetry-core/internal/queue"
	"github.com/nerrad567/telemetry-core/internal/topic"
)

const (
	defaultInboxSize = 1000
	enqueueTimeout   = 5 * time.Second
)

// Logger is the logging interface used by collectors.
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

// Transport is the broker connection a collector owns.
// *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	SetOnConnect(callback func())
	SetOnFatal(callback func(err error))
	SetAutoResubscribe(enabled bool)
}

// Enqueuer accepts ingestions into the queue lanes.
// *queue.Manager satisfies it.
type Enqueuer interface {
	AddHistory(ctx context.Context, data queue.Ingestion) (*queue.Job, error)
	AddRealtime(ctx context.Context, data queue.Ingestion) (*queue.Job, error)
}

// Options configures a collector.
type Options struct {
	// QoS for every subscription the collector makes.
	QoS byte

	// InboxSize bounds the hand-off between the transport callback and
	// the queue. Defaults to 1000.
	InboxSize int
}

// Collector moves one data class from the broker into its queue lane.
type Collector struct {
	class     topic.DataClass
	transport Transport
	queue     Enqueuer
	qos       byte
	logger    Logger
	metrics   *Metrics
	now       func() time.Time

	inbox chan queue.Ingestion
	done  chan struct{}
	fatal chan error

	// mu guards started, stopped and sends on inbox.
	mu      sync.RWMutex
	started bool
	stopped bool

	onReconnect func()
}

// NewHistoryCollector creates the collector for history data.
func NewHistoryCollector(t Transport, q Enqueuer, opts Options) *Collector {
	return newCollector(topic.ClassHistory, t, q, opts)
}

// NewRealtimeCollector creates the collector for realtime data.
func NewRealtimeCollector(t Transport, q Enqueuer, opts Options) *Collector {
	return newCollector(topic.ClassRealtime, t, q, opts)
}

func newCollector(class topic.DataClass, t Transport, q Enqueuer, opts Options) *Collector {
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	return &Collector{
		class:     class,
		transport: t,
		queue:     q,
		qos:       opts.QoS,
		logger:    noopLogger{},
		now:       time.Now,
		inbox:     make(chan queue.Ingestion, opts.InboxSize),
		done:      make(chan struct{}),
		fatal:     make(chan error, 1),
	}
}

// Name returns the collector's data class.
func (c *Collector) Name() string { return string(c.class) }

// SetLogger sets the logger.
func (c *Collector) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetMetrics attaches Prometheus metrics.
func (c *Collector) SetMetrics(m *Metrics) { c.metrics = m }

// OnReconnect registers fn to run after every successful (re)connect of
// a realtime collector. Set it before Start.
func (c *Collector) OnReconnect(fn func()) { c.onReconnect = fn }

// Fatal delivers at most one error, sent when the transport gave up
// reconnecting. The collector does not recover from it.
func (c *Collector) Fatal() <-chan error { return c.fatal }

// Start wires the transport callbacks, issues the history subscription
// and starts the pump.
func (c *Collector) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.transport.SetOnFatal(c.reportFatal)

	switch c.class {
	case topic.ClassHistory:
		c.transport.SetOnConnect(func() {
			c.logger.Info("history collector connected")
		})
		if err := c.transport.Subscribe(topic.HistoryWildcard(), c.qos, c.handleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic.HistoryWildcard(), err)
		}
		c.logger.Info("subscribed to history topics", "topic", topic.HistoryWildcard())
	case topic.ClassRealtime:
		// Site subscriptions are rebuilt from the registry, not replayed.
		c.transport.SetAutoResubscribe(false)
		c.transport.SetOnConnect(c.handleConnect)
	}

	go c.pump()
	return nil
}

func (c *Collector) handleConnect() {
	c.logger.Info("realtime collector connected")
	if c.onReconnect != nil {
		c.onReconnect()
	}
}

func (c *Collector) reportFatal(err error) {
	c.logger.Error("collector transport abandoned", "collector", c.Name(), "error", err)
	select {
	case c.fatal <- fmt.Errorf("%s collector: %w", c.class, err):
	default:
	}
}

// SubscribeSite subscribes to one site's realtime topics.
func (c *Collector) SubscribeSite(siteID string) error {
	if c.class != topic.ClassRealtime {
		return ErrWrongClass
	}
	if c.isStopped() {
		return ErrStopped
	}
	return c.transport.Subscribe(topic.SiteRealtimePattern(siteID), c.qos, c.handleMessage)
}

// UnsubscribeSite drops one site's realtime subscription.
func (c *Collector) UnsubscribeSite(siteID string) error {
	if c.class != topic.ClassRealtime {
		return ErrWrongClass
	}
	return c.transport.Unsubscribe(topic.SiteRealtimePattern(siteID))
}

// handleMessage runs on the transport's delivery goroutine. It never
// blocks and never returns an error: every rejection is logged and counted.
func (c *Collector) handleMessage(raw string, body []byte) error {
	name := c.Name()
	c.metrics.recordReceived(name)

	d, ok := topic.Parse(raw)
	if !ok {
		c.logger.Warn("invalid topic format", "collector", name, "topic", raw)
		c.metrics.recordDropped(name, reasonMalformedTopic)
		return nil
	}
	if d.DataClass != c.class {
		c.metrics.recordDropped(name, reasonWrongClass)
		return nil
	}
	if d.Kind() == topic.KindUnknown {
		c.logger.Warn("unknown device category, message dropped", "collector", name, "topic", raw, "category", d.DeviceCategory)
		c.metrics.recordDropped(name, reasonUnknownCategory)
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		c.logger.Warn("invalid JSON payload", "collector", name, "topic", raw)
		c.metrics.recordDropped(name, reasonMalformedPayload)
		return nil
	}

	in := queue.Ingestion{
		Topic:      raw,
		Descriptor: d,
		Payload:    payload,
		ReceivedAt: c.now().UTC(),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		c.metrics.recordDropped(name, reasonStopped)
		return nil
	}
	select {
	case c.inbox <- in:
	default:
		c.logger.Warn("collector inbox full, message dropped", "collector", name, "topic", raw)
		c.metrics.recordDropped(name, reasonInboxFull)
	}
	return nil
}

// pump moves the inbox into the queue until the inbox is closed.
func (c *Collector) pump() {
	defer close(c.done)
	for in := range c.inbox {
		c.enqueue(in)
	}
}

func (c *Collector) enqueue(in queue.Ingestion) {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	var (
		job *queue.Job
		err error
	)
	if c.class == topic.ClassHistory {
		job, err = c.queue.AddHistory(ctx, in)
	} else {
		job, err = c.queue.AddRealtime(ctx, in)
	}
	if err != nil {
		c.logger.Error("enqueue failed", "collector", c.Name(), "topic", in.Topic, "error", err)
		c.metrics.recordDropped(c.Name(), reasonEnqueueFailed)
		return
	}
	c.metrics.recordEnqueued(c.Name())
	c.logger.Debug("message queued", "collector", c.Name(), "topic", in.Topic, "job_id", job.ID)
}

// Stop stops accepting messages and waits for the inbox to drain into
// the queue, or for ctx to end.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	started := c.started
	close(c.inbox)
	c.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-c.done:
		c.logger.Info("collector stopped", "collector", c.Name())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining %s collector: %w", c.class, ctx.Err())
	}
}

func (c *Collector) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

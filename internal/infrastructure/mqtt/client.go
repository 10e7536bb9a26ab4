package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the telemetry collectors.
//
// It provides connection management, message publishing, subscription
// handling, and automatic reconnection bounded by Reconnect.MaxAttempts.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored on reconnection unless auto-resubscribe
//     is disabled, in which case the OnConnect callback owns restoration.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex
	autoRestore   bool

	connected bool
	connMu    sync.RWMutex

	// reconnectAttempts counts consecutive reconnect attempts since the
	// last successful connection.
	reconnectAttempts int
	gaveUp            bool
	reconnectMu       sync.Mutex

	onConnect    func()
	onDisconnect func(err error)
	onFatal      func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutine and must not block.
// A returned error is logged and does not affect acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) for offline detection
//  3. Sets up auto-reconnect with a ceiling on consecutive attempts
//  4. Attempts initial connection with timeout
//  5. Publishes online status to telemetry/status/<client_id>
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
		autoRestore:   true,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet, so mark the client connected here.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// WithClientIDSuffix returns a copy of cfg whose client ID has "-suffix"
// appended, so several collectors can share one broker configuration.
func WithClientIDSuffix(cfg config.MQTTConfig, suffix string) config.MQTTConfig {
	cfg.Broker.ClientID = cfg.Broker.ClientID + "-" + suffix
	return cfg
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.reconnectMu.Lock()
	c.reconnectAttempts = 0
	c.reconnectMu.Unlock()

	if c.shouldRestore() {
		c.restoreSubscriptions()
	}

	c.publishPresence(statusOnline, "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "client_id", c.cfg.Broker.ClientID, "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleReconnecting counts reconnect attempts and gives up once the
// configured ceiling is passed.
func (c *Client) handleReconnecting() {
	c.reconnectMu.Lock()
	if c.gaveUp {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	limit := c.cfg.Reconnect.MaxAttempts
	exceeded := limit > 0 && attempt > limit
	if exceeded {
		c.gaveUp = true
	}
	c.reconnectMu.Unlock()

	logger := c.getLogger()
	if !exceeded {
		if logger != nil {
			logger.Warn("MQTT reconnecting", "client_id", c.cfg.Broker.ClientID, "attempt", attempt)
		}
		return
	}

	err := fmt.Errorf("%w: %d consecutive attempts", ErrReconnectExhausted, limit)
	if logger != nil {
		logger.Error("MQTT reconnect attempts exhausted", "client_id", c.cfg.Broker.ClientID, "attempts", limit)
	}

	// Disconnect blocks on paho's internals, which are mid-reconnect here.
	go func() {
		if c.client != nil {
			c.client.Disconnect(0)
		}
		c.callbackMu.RLock()
		callback := c.onFatal
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}()
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors during reconnection surface on the next health check.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

func (c *Client) shouldRestore() bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.autoRestore
}

// SetAutoResubscribe controls whether tracked subscriptions are restored
// on reconnect. Disable it when the OnConnect callback resubscribes from
// its own source of truth.
func (c *Client) SetAutoResubscribe(enabled bool) {
	c.subMu.Lock()
	c.autoRestore = enabled
	c.subMu.Unlock()
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (distinct from the LWT crash
// status), waits for pending publishes and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishPresence(statusOffline, reasonGraceful).WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// ClientID returns the client identifier used with the broker.
func (c *Client) ClientID() string {
	return c.cfg.Broker.ClientID
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnFatal sets a callback invoked once when reconnection is abandoned.
// The client is disconnected by then and will not reconnect.
func (c *Client) SetOnFatal(callback func(err error)) {
	c.callbackMu.Lock()
	c.onFatal = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}

package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/telemetry-core/internal/device"
	"github.com/nerrad567/telemetry-core/internal/fanout"
	"github.com/nerrad567/telemetry-core/internal/history"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/logging"
	"github.com/nerrad567/telemetry-core/internal/notification"
	"github.com/nerrad567/telemetry-core/internal/queue"
	"github.com/nerrad567/telemetry-core/internal/rules"
	"github.com/nerrad567/telemetry-core/internal/subscription"
	"github.com/nerrad567/telemetry-core/internal/topic"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is any dependency that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// QueueService is the queue surface the API exposes. *queue.Manager satisfies it.
type QueueService interface {
	Stats(ctx context.Context) ([]queue.LaneStats, error)
	FailedJobs(ctx context.Context, lane queue.Lane, limit int) ([]queue.Job, error)
	RetryFailed(ctx context.Context, lane queue.Lane, id string) (*queue.Job, error)
	Ping(ctx context.Context) error
}

// SubscriptionService is satisfied by *subscription.Registry.
type SubscriptionService interface {
	Subscribe(ctx context.Context, userID, siteID string) (subscription.Result, error)
	Unsubscribe(userID, siteID string) (subscription.Result, error)
	UnsubscribeAll(userID string) []string
	UserSubscriptions(userID string) []string
	ActiveSubscriptions() []subscription.SiteCount
}

// ProjectAccess answers which projects a user may see.
type ProjectAccess interface {
	IsUserAuthorized(ctx context.Context, userID, projectID string) (bool, error)
	AccessibleProjectIDs(ctx context.Context, userID string) ([]string, error)
}

// DeviceLookup resolves devices by internal id.
type DeviceLookup interface {
	GetByID(ctx context.Context, id string) (*device.Device, error)
}

// RuleCache drops evaluation state for a device after its rules change.
type RuleCache interface {
	ClearDevice(deviceID string)
}

// NotificationStore is satisfied by *notification.SQLiteRepository.
type NotificationStore interface {
	List(ctx context.Context, userID, status string, limit int) ([]notification.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// HistoryReader is satisfied by *history.SQLiteSink.
type HistoryReader interface {
	Samples(ctx context.Context, kind topic.Kind, deviceID string, q history.Query) ([]history.Sample, error)
}

// Deps holds the dependencies required by the API server.
// Logger, Fanout, Projects and Subscriptions are required.
type Deps struct {
	Config   config.APIConfig
	Live     config.LiveConfig
	Security config.SecurityConfig
	Metrics  config.MetricsConfig
	Logger   *logging.Logger

	DB            *sql.DB
	Brokers       map[string]HealthChecker
	Queue         QueueService
	Subscriptions SubscriptionService
	Fanout        *fanout.Manager
	Projects      ProjectAccess
	Devices       DeviceLookup
	Rules         rules.Repository
	RuleCache     RuleCache
	Notifications NotificationStore
	History       HistoryReader

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and the live stream
// endpoints. The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	liveOpts  fanout.WebSocketOptions
	secret    string
	metricsOn bool
	metricsAt string
	logger    *logging.Logger

	db            *sql.DB
	brokers       map[string]HealthChecker
	queue         QueueService
	subscriptions SubscriptionService
	live          *fanout.Manager
	projects      ProjectAccess
	devices       DeviceLookup
	rules         rules.Repository
	ruleCache     RuleCache
	notifications NotificationStore
	history       HistoryReader
	gatherer      prometheus.Gatherer

	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Fanout == nil:
		return nil, fmt.Errorf("fan-out manager is required")
	case deps.Projects == nil:
		return nil, fmt.Errorf("project access is required")
	case deps.Subscriptions == nil:
		return nil, fmt.Errorf("subscription registry is required")
	case deps.Security.JWT.Secret == "":
		return nil, fmt.Errorf("jwt secret is required")
	}

	metricsPath := deps.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	return &Server{
		cfg: deps.Config,
		liveOpts: fanout.WebSocketOptions{
			PingInterval:   deps.Live.Heartbeat(),
			PongTimeout:    time.Duration(deps.Live.PongTimeout) * time.Second,
			MaxMessageSize: int64(deps.Live.MaxMessageSize),
		},
		secret:        deps.Security.JWT.Secret,
		metricsOn:     deps.Gatherer != nil && deps.Metrics.Enabled,
		metricsAt:     metricsPath,
		logger:        deps.Logger,
		db:            deps.DB,
		brokers:       deps.Brokers,
		queue:         deps.Queue,
		subscriptions: deps.Subscriptions,
		live:          deps.Fanout,
		projects:      deps.Projects,
		devices:       deps.Devices,
		rules:         deps.Rules,
		ruleCache:     deps.RuleCache,
		notifications: deps.Notifications,
		history:       deps.History,
		gatherer:      deps.Gatherer,
		version:       deps.Version,
		startTime:     time.Now(),
	}, nil
}

// Handler returns the fully wired router. Tests serve it through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Live streams must already have been closed through the fan-out
// manager, otherwise Shutdown waits on them until the timeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

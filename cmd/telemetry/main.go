// Telemetry Core ingests device telemetry from MQTT, persists history,
// evaluates alert rules and fans realtime data out to live clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/telemetry-core/migrations"

	"github.com/nerrad567/telemetry-core/internal/api"
	"github.com/nerrad567/telemetry-core/internal/device"
	"github.com/nerrad567/telemetry-core/internal/fanout"
	"github.com/nerrad567/telemetry-core/internal/history"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/database"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/kafka"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/logging"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/telemetry-core/internal/ingest"
	"github.com/nerrad567/telemetry-core/internal/notification"
	"github.com/nerrad567/telemetry-core/internal/project"
	"github.com/nerrad567/telemetry-core/internal/queue"
	"github.com/nerrad567/telemetry-core/internal/realtime"
	"github.com/nerrad567/telemetry-core/internal/rules"
	"github.com/nerrad567/telemetry-core/internal/subscription"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "TELEMETRY_CONFIG"

	// deviceCacheTTL bounds how long a resolved device is reused.
	deviceCacheTTL = 5 * time.Minute

	// queueDrainTimeout is how long each lane may spend finishing
	// in-flight jobs on shutdown.
	queueDrainTimeout = 15 * time.Second

	collectorStopTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the pipeline, blocks until ctx is cancelled or a collector
// reports a fatal transport error, then shuts down in dependency order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting telemetry core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "queue_backend", cfg.Queue.Backend)

	// Deferred closes run in reverse: MQTT, InfluxDB, Kafka, database.
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var deadLetter *kafka.DeadLetterPublisher
	if cfg.Kafka.Enabled {
		deadLetter, err = kafka.NewDeadLetterPublisher(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("creating dead-letter publisher: %w", err)
		}
		defer func() {
			log.Info("closing dead-letter publisher")
			if closeErr := deadLetter.Close(); closeErr != nil {
				log.Error("error closing dead-letter publisher", "error", closeErr)
			}
		}()
		log.Info("dead-letter publisher ready", "topic", deadLetter.Topic())
	}

	var influx *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("flushing InfluxDB mirror")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Repositories
	projects := project.NewSQLiteRepository(db.DB)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	devices := device.NewRegistry(deviceRepo, deviceCacheTTL)
	devices.SetLogger(log.Component("device"))
	ruleRepo := rules.NewSQLiteRepository(db.DB)
	notifications := notification.NewSQLiteRepository(db.DB)
	sink := history.NewSQLiteSink(db.DB)

	// Queue
	store, err := openQueueStore(ctx, cfg)
	if err != nil {
		return err
	}
	jobs := queue.NewManager(store,
		queue.OptionsFromConfig(cfg.Queue.History),
		queue.OptionsFromConfig(cfg.Queue.Realtime),
	)
	jobs.SetLogger(log.Component("queue"))
	jobs.SetMetrics(queue.NewMetrics(registry))
	if deadLetter != nil {
		jobs.SetDeadLetter(deadLetter)
	}

	// Fan-out
	live := fanout.NewManager(fanout.Options{
		HeartbeatInterval: cfg.Live.Heartbeat(),
		SendBuffer:        cfg.Live.SendBuffer,
	})
	live.SetLogger(log.Component("fanout"))
	live.SetMetrics(fanout.NewMetrics(registry))

	// Processors
	engine := rules.NewEngine(ruleRepo)
	engine.SetLogger(log.Component("rules"))

	persister := history.NewPersister(devices, sink)
	persister.SetLogger(log.Component("history"))
	if influx != nil {
		persister.SetMirror(influx)
	}

	processor := realtime.NewProcessor(devices, live, engine, projects, notifications)
	processor.SetLogger(log.Component("realtime"))

	if err := jobs.Start(ctx, persister.Handle, processor.Handle); err != nil {
		jobs.Close(queueDrainTimeout) //nolint:errcheck // unwinding a failed start
		return fmt.Errorf("starting queue workers: %w", err)
	}

	// MQTT: one client per collector so each has its own session.
	historyMQTT, err := mqtt.Connect(mqtt.WithClientIDSuffix(cfg.MQTT, "history"))
	if err != nil {
		jobs.Close(queueDrainTimeout) //nolint:errcheck // unwinding a failed start
		return fmt.Errorf("connecting history MQTT client: %w", err)
	}
	defer closeMQTT(log, "history", historyMQTT)

	realtimeMQTT, err := mqtt.Connect(mqtt.WithClientIDSuffix(cfg.MQTT, "realtime"))
	if err != nil {
		jobs.Close(queueDrainTimeout) //nolint:errcheck // unwinding a failed start
		return fmt.Errorf("connecting realtime MQTT client: %w", err)
	}
	defer closeMQTT(log, "realtime", realtimeMQTT)

	for name, client := range map[string]*mqtt.Client{"history": historyMQTT, "realtime": realtimeMQTT} {
		client.SetLogger(log.Component("mqtt").With("client", name))
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "client", name, "error", err)
		})
	}

	// Collectors
	ingestMetrics := ingest.NewMetrics(registry)
	collectorOpts := ingest.Options{QoS: byte(cfg.MQTT.QoS), InboxSize: cfg.Queue.IngestBuffer}

	historyCollector := ingest.NewHistoryCollector(historyMQTT, jobs, collectorOpts)
	historyCollector.SetLogger(log.Component("ingest"))
	historyCollector.SetMetrics(ingestMetrics)

	realtimeCollector := ingest.NewRealtimeCollector(realtimeMQTT, jobs, collectorOpts)
	realtimeCollector.SetLogger(log.Component("ingest"))
	realtimeCollector.SetMetrics(ingestMetrics)

	// The realtime collector is the subscription registry's broker.
	subs := subscription.NewRegistry(realtimeCollector, projects)
	subs.SetLogger(log.Component("subscription"))
	realtimeCollector.OnReconnect(func() {
		if err := subs.ResubscribeAll(); err != nil {
			log.Error("restoring site subscriptions failed", "error", err)
		}
	})

	collectorsList := []*ingest.Collector{historyCollector, realtimeCollector}
	for _, c := range collectorsList {
		if err := c.Start(); err != nil {
			stopCollectors(log, collectorsList)
			jobs.Close(queueDrainTimeout) //nolint:errcheck // unwinding a failed start
			return fmt.Errorf("starting %s collector: %w", c.Name(), err)
		}
	}
	log.Info("collectors started")

	// API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Live:     cfg.Live,
		Security: cfg.Security,
		Metrics:  cfg.Metrics,
		Logger:   log.Component("api"),
		DB:       db.DB,
		Brokers: map[string]api.HealthChecker{
			"mqtt_history":  historyMQTT,
			"mqtt_realtime": realtimeMQTT,
		},
		Queue:         jobs,
		Subscriptions: subs,
		Fanout:        live,
		Projects:      projects,
		Devices:       deviceRepo,
		Rules:         ruleRepo,
		RuleCache:     engine,
		Notifications: notifications,
		History:       sink,
		Gatherer:      registry,
		Version:       version,
	})
	if err != nil {
		stopCollectors(log, collectorsList)
		jobs.Close(queueDrainTimeout) //nolint:errcheck // unwinding a failed start
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		stopCollectors(log, collectorsList)
		jobs.Close(queueDrainTimeout) //nolint:errcheck // unwinding a failed start
		return fmt.Errorf("starting API server: %w", err)
	}

	if err := healthCheck(ctx, db, jobs, historyMQTT, realtimeMQTT, influx); err != nil {
		log.Warn("startup health check failed", "error", err)
	} else {
		log.Info("all health checks passed")
	}
	log.Info("initialisation complete", "api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-historyCollector.Fatal():
		runErr = fmt.Errorf("history collector: %w", err)
	case err := <-realtimeCollector.Fatal():
		runErr = fmt.Errorf("realtime collector: %w", err)
	}
	if runErr != nil {
		log.Error("fatal transport error, shutting down", "error", runErr)
	}

	stopCollectors(log, collectorsList)

	// Waiting jobs stay in the store; only in-flight work is drained.
	if err := jobs.Close(queueDrainTimeout); err != nil {
		log.Error("error stopping queue", "error", err)
	}

	live.CloseAll()

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}

	log.Info("telemetry core stopped")
	return runErr
}

// getConfigPath returns TELEMETRY_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// openQueueStore opens the job store selected by queue.backend.
func openQueueStore(ctx context.Context, cfg *config.Config) (queue.Store, error) {
	switch cfg.Queue.Backend {
	case "memory":
		return queue.NewMemoryStore(), nil
	case "redis":
		store, err := queue.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

func stopCollectors(log *logging.Logger, list []*ingest.Collector) {
	ctx, cancel := context.WithTimeout(context.Background(), collectorStopTimeout)
	defer cancel()
	for _, c := range list {
		if err := c.Stop(ctx); err != nil {
			log.Error("error stopping collector", "collector", c.Name(), "error", err)
		}
	}
}

func closeMQTT(log *logging.Logger, name string, client *mqtt.Client) {
	log.Info("disconnecting from MQTT", "client", name)
	if err := client.Close(); err != nil {
		log.Error("error closing MQTT", "client", name, "error", err)
	}
}

// healthCheck verifies every infrastructure dependency once at startup.
// influx may be nil when the mirror is disabled.
func healthCheck(ctx context.Context, db *database.DB, jobs *queue.Manager, historyMQTT, realtimeMQTT *mqtt.Client, influx *influxdb.Client) error {
	var errs []error
	if err := db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := jobs.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queue store: %w", err))
	}
	if err := historyMQTT.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mqtt history: %w", err))
	}
	if err := realtimeMQTT.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mqtt realtime: %w", err))
	}
	if influx != nil {
		if err := influx.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/api"
	"github.com/nerrad567/gray-logic-ua/internal/audit"
	"github.com/nerrad567/gray-logic-ua/internal/capability"
	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/history"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/params"
	"github.com/nerrad567/gray-logic-ua/internal/metrics"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
	"github.com/nerrad567/gray-logic-ua/internal/plugin/lua"
	"github.com/nerrad567/gray-logic-ua/internal/server"
	"github.com/nerrad567/gray-logic-ua/internal/vapix"
)

const (
	deactivateTimeout = 10 * time.Second
	pruneInterval     = time.Hour
	mirrorBuffer      = 256
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the capability modules and serve the address space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
}

// run starts all subsystems and blocks until the context is cancelled.
//
// Closers are deferred in start order, so they run in reverse: the HTTP API
// first, then the server goroutine, then module deactivation, then MQTT,
// InfluxDB, SQLite and finally the parameter file.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Global command options
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts *RootOptions) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic UA",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", opts.configPath())

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Persistent parameters
	store, err := params.Open(cfg.Params.Path)
	if err != nil {
		return fmt.Errorf("opening params: %w", err)
	}
	defer func() {
		log.Info("closing params")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing params", "error", closeErr)
		}
	}()
	if applyErr := applyParams(cfg, store, log); applyErr != nil {
		return applyErr
	}

	// Open database
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	historyStore := history.NewSQLiteStore(db.DB)

	if cfg.Database.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour
		stopPrune := startPruner(ctx, historyStore, retention, log)
		defer stopPrune()
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		for _, name := range []string{params.LogLevel, params.Port} {
			if err := store.OnChange(name, func(n int) { influxClient.WriteParamChange(name, n) }); err != nil {
				return fmt.Errorf("watching %s: %w", name, err)
			}
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	m := metrics.New()
	observer := lifecycleObserver{Metrics: m, series: influxClient}

	// Device event hub
	hub := eventbridge.NewHub(eventbridge.HubOptions{
		Buffer: cfg.Events.Buffer,
		Logger: log.With("component", "eventbridge"),
	})
	defer func() {
		log.Info("closing event hub")
		hub.Close()
	}()

	if mqttClient != nil {
		feed := eventbridge.NewMQTTFeed(mqttClient, hub, cfg.Events.TopicPrefix, byte(cfg.MQTT.QoS)) // #nosec G115 -- QoS validated 0..2
		if startErr := feed.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT event feed: %w", startErr)
		}
		defer func() {
			if stopErr := feed.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT event feed", "error", stopErr)
			}
		}()
		log.Info("MQTT event feed started", "prefix", cfg.Events.TopicPrefix)
	}

	// Address space and server runtime
	space := addrspace.New(addrspace.Options{ApplicationURI: cfg.Server.ApplicationURI})
	uaServer := server.New(space, server.Options{
		QueueSize: cfg.Server.QueueSize,
		Logger:    log,
		Observer:  m,
	})

	// Module registry
	registry := plugin.NewRegistry(log, buildLoaders(cfg)...)
	registry.SetAudit(auditRepo)
	registry.SetObserver(observer)

	var series history.SeriesWriter
	if influxClient != nil {
		series = influxClient
	}

	host := plugin.Host{
		Engine:   space,
		Logger:   log,
		Events:   hub,
		Poster:   uaServer,
		Device:   vapix.NewConnector(cfg.Device.BaseURL, cfg.Device.RequestTimeout(), vapix.NewFileCredentials(cfg.Device.CredentialsFile)),
		Recorder: history.NewFanout(historyStore, series, log),
		Metrics:  observer,
		Params:   store,
	}

	loaded, err := registry.LoadAll(ctx, host)
	defer func() {
		log.Info("deactivating modules")
		deactivateCtx, cancel := context.WithTimeout(context.Background(), deactivateTimeout)
		defer cancel()
		if deactivateErr := registry.DeactivateAll(deactivateCtx); deactivateErr != nil {
			log.Error("error deactivating modules", "error", deactivateErr)
		}
	}()
	if err != nil {
		// A module that fails to load or activate is skipped; the rest serve.
		log.Warn("some modules failed to load", "error", err)
	}
	log.Info("modules loaded", "count", loaded)

	if startErr := uaServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting server: %w", startErr)
	}
	defer func() {
		log.Info("stopping server")
		uaServer.Stop()
	}()
	log.Info("server started",
		"name", cfg.Server.Name,
		"application_uri", cfg.Server.ApplicationURI,
		"port", cfg.Server.Port,
	)

	if mqttClient != nil {
		stopMirror := mirrorEvents(uaServer, mqttClient, log)
		defer stopMirror()
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.With("component", "api"),
			Nodes:    uaServer,
			Modules:  registry,
			History:  historyStore,
			Audit:    auditRepo,
			Params:   store,
			Metrics:  m.Handler(),
			Requests: m,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	healthCheck(ctx, log, db, mqttClient, influxClient)

	log.Info("Gray Logic UA ready", "modules", loaded)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// applyParams applies the persisted parameters over the configuration and
// registers the runtime LogLevel callback.
func applyParams(cfg *config.Config, store *params.Store, log *logging.Logger) error {
	level, err := store.Get(params.LogLevel)
	if err != nil {
		return fmt.Errorf("reading %s: %w", params.LogLevel, err)
	}
	log.SetLevel(logging.LevelFromParam(level))

	if err := store.OnChange(params.LogLevel, func(n int) {
		log.SetLevel(logging.LevelFromParam(n))
		log.Info("log level changed", "param", n)
	}); err != nil {
		return fmt.Errorf("watching %s: %w", params.LogLevel, err)
	}

	port, err := store.Get(params.Port)
	if err != nil {
		return fmt.Errorf("reading %s: %w", params.Port, err)
	}
	cfg.Server.Port = port

	log.Info("parameters applied", "log_level", level, "port", port, "path", store.Path())
	return nil
}

// buildLoaders returns the builtin loader and, when enabled, the Lua loader.
func buildLoaders(cfg *config.Config) []plugin.Loader {
	loaders := []plugin.Loader{
		plugin.NewBuiltinLoader(cfg.Modules.Prefix, capability.Builtins(cfg.Modules.Prefix), cfg.ModuleEnabled),
	}
	if cfg.Modules.Lua.Enabled {
		loaders = append(loaders, lua.NewLoader(cfg.Modules.Lua.Dir, cfg.Modules.Prefix))
	}
	return loaders
}

// lifecycleObserver adds an InfluxDB point to every module state change.
type lifecycleObserver struct {
	*metrics.Metrics
	series *influxdb.Client
}

func (o lifecycleObserver) ModuleState(module, state string) {
	o.Metrics.ModuleState(module, state)
	o.series.WriteModuleLifecycle(module, state)
}

// startPruner deletes history older than retention once at start and then
// every pruneInterval. The returned function stops it and waits.
func startPruner(ctx context.Context, store *history.SQLiteStore, retention time.Duration, log *logging.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	prune := func() {
		n, err := store.Prune(ctx, retention)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("pruning state history failed", "error", err)
		case n > 0:
			log.Info("pruned state history", "rows", n, "retention", retention)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		prune()

		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prune()
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// eventMessage is the JSON document mirrored to MQTT for each UA event.
type eventMessage struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	SourceNode string         `json:"source_node"`
	SourceName string         `json:"source_name"`
	Time       time.Time      `json:"time"`
	Message    string         `json:"message,omitempty"`
	Severity   uint16         `json:"severity"`
	Fields     map[string]any `json:"fields,omitempty"`
}

func newEventMessage(ev addrspace.Event) eventMessage {
	id := hex.EncodeToString(ev.EventID)
	if u, err := uuid.FromBytes(ev.EventID); err == nil {
		id = u.String()
	}
	return eventMessage{
		EventID:    id,
		EventType:  ev.EventType.String(),
		SourceNode: ev.SourceNode.String(),
		SourceName: ev.SourceName,
		Time:       ev.Time,
		Message:    ev.Message.Text,
		Severity:   ev.Severity,
		Fields:     ev.Fields,
	}
}

// jsonPublisher is the MQTT surface used by mirrorEvents.
type jsonPublisher interface {
	PublishJSON(topic string, v any) error
}

// mirrorEvents publishes every triggered UA event to MQTT. The sink runs on
// the server goroutine, so events go through a buffered channel and are
// dropped when it is full. The returned function stops the mirror.
func mirrorEvents(src interface {
	Subscribe(sink addrspace.EventSink) func()
}, pub jsonPublisher, log *logging.Logger) func() {
	events := make(chan addrspace.Event, mirrorBuffer)
	done := make(chan struct{})
	var wg sync.WaitGroup

	unsubscribe := src.Subscribe(func(ev addrspace.Event) {
		select {
		case events <- ev:
		default:
			log.Warn("dropping mirrored event, queue full", "source", ev.SourceNode.String())
		}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				msg := newEventMessage(ev)
				if err := pub.PublishJSON(mqtt.Topics{}.UAEvent(msg.SourceNode), msg); err != nil {
					log.Warn("mirroring event to MQTT failed", "source", msg.SourceNode, "error", err)
				}
			}
		}
	}()

	return func() {
		unsubscribe()
		close(done)
		wg.Wait()
	}
}

// healthCheck logs the health of the connected infrastructure.
//
// Parameters:
//   - ctx: Context for the checks
//   - log: Logger for results
//   - db: SQLite database
//   - mqttClient: MQTT client, nil when disabled
//   - influxClient: InfluxDB client, nil when disabled
func healthCheck(ctx context.Context, log *logging.Logger, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		log.Warn("database health check failed", "error", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			log.Warn("MQTT health check failed", "error", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			log.Warn("InfluxDB health check failed", "error", err)
		}
	}
}

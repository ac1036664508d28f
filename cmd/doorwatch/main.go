// Doorwatch Core - facility access-control server
//
// This is the main entry point for the Doorwatch server. It serves:
//   - the Mutation API (REST) under /api
//   - the push channel (WebSocket) at /ws
//   - an optional MQTT sensor bridge and event mirror
//   - optional InfluxDB door telemetry
//
// Door events are generated by the simulator unless it is disabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/doorwatch/doorwatch-core/migrations"

	"github.com/doorwatch/doorwatch-core/internal/api"
	"github.com/doorwatch/doorwatch-core/internal/auth"
	"github.com/doorwatch/doorwatch-core/internal/control"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/hub"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/config"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/database"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/influxdb"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/mqtt"
	"github.com/doorwatch/doorwatch-core/internal/sensors"
	"github.com/doorwatch/doorwatch-core/internal/simulator"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application, separated from main for testability. It blocks
// until ctx is cancelled and returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Doorwatch Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := facility.NewSQLiteRepository(db.DB, nil)

	passwords, err := auth.SeedAdminPasswords(ctx, repo, log)
	if err != nil {
		return fmt.Errorf("seeding admin passwords: %w", err)
	}
	if len(passwords) > 0 {
		log.Info("admin passwords generated", "count", len(passwords))
	}

	influxClient, err := connectInfluxDB(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Background loops (hub, mirror, simulator) share one WaitGroup so
	// shutdown can drain them before MQTT and the database close.
	var wg sync.WaitGroup
	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()

	pushHub := hub.New(cfg.WebSocket, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		pushHub.Run(loopCtx)
	}()

	deps := control.Deps{
		Repo:         repo,
		Broadcasters: []control.Broadcaster{pushHub},
		Logger:       log,
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	svc := control.New(deps)
	pushHub.SetSource(svc)

	mqttClient, err := startSensors(loopCtx, cfg.MQTT, svc, &wg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	defer func() {
		stopLoops()
		wg.Wait()
		log.Info("background loops stopped")
	}()

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Repo:     repo,
		Control:  svc,
		Push:     pushHub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if cfg.Simulator.Enabled {
		sim := simulator.New(cfg.Simulator, repo, svc, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.Run(loopCtx)
		}()
		log.Info("simulator started",
			"interval", cfg.GetSimulatorInterval(),
			"probability", cfg.Simulator.Probability,
		)
	} else {
		log.Info("simulator disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal", "addr", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, background loops,
	// MQTT, InfluxDB, database.
	return nil
}

// getConfigPath returns DOORWATCH_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("DOORWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInfluxDB returns nil without error when telemetry is disabled.
func connectInfluxDB(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// startSensors connects to the broker, subscribes the sensor bridge and
// attaches the event mirror to svc. It returns a nil client when MQTT is
// disabled. The mirror loop is tracked by wg.
func startSensors(ctx context.Context, cfg config.MQTTConfig, svc *control.Service, wg *sync.WaitGroup, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	bridge := sensors.NewBridge(client, svc, log)
	if err := bridge.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("starting sensor bridge: %w", err)
	}

	mirror := sensors.NewMirror(client, 0, log)
	svc.AddBroadcaster(mirror)
	wg.Add(1)
	go func() {
		defer wg.Done()
		mirror.Run(ctx)
	}()

	return client, nil
}

// healthCheck verifies every enabled infrastructure connection.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

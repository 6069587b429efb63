// wtap-core - network debug adapter control plane
//
// This is the main entry point for the wtap-core daemon. It owns the
// adapter's WiFi radio and exposes a JSON command protocol over HTTP
// (POST /api), WebSocket (/ws) and, optionally, MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/wtap-core/internal/api"
	"github.com/nerrad567/wtap-core/internal/bufpool"
	"github.com/nerrad567/wtap-core/internal/dispatch"
	"github.com/nerrad567/wtap-core/internal/infrastructure/config"
	"github.com/nerrad567/wtap-core/internal/infrastructure/database"
	"github.com/nerrad567/wtap-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/wtap-core/internal/infrastructure/logging"
	"github.com/nerrad567/wtap-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/wtap-core/internal/kvstore"
	"github.com/nerrad567/wtap-core/internal/panel"
	"github.com/nerrad567/wtap-core/internal/pipeline"
	"github.com/nerrad567/wtap-core/internal/radio/sim"
	"github.com/nerrad567/wtap-core/internal/runner"
	"github.com/nerrad567/wtap-core/internal/sysapi"
	"github.com/nerrad567/wtap-core/internal/wifi"
	"github.com/nerrad567/wtap-core/internal/wifiapi"
	"github.com/nerrad567/wtap-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// occupancySampleInterval is how often pipeline occupancy goes to InfluxDB.
const occupancySampleInterval = 10 * time.Second

// errRestart is returned by run when a REBOOT command asked for a restart.
var errRestart = errors.New("restart requested")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx)
	if errors.Is(err, errRestart) {
		cancel()
		if execErr := reexec(); execErr != nil {
			fmt.Fprintf(os.Stderr, "Error: restarting: %v\n", execErr)
			os.Exit(1)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// reexec replaces the process with a fresh copy of itself.
func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return syscall.Exec(exe, os.Args, os.Environ()) //nolint:gosec // re-executing our own binary
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, errRestart after REBOOT, or the failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting wtap-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Storage
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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Request path
	pool, err := bufpool.New(cfg.Pipeline.BufferCount, cfg.Pipeline.BufferSize)
	if err != nil {
		return fmt.Errorf("creating buffer pool: %w", err)
	}
	taskRunner := runner.New(runner.Config{
		LongRunCapacity: cfg.Pipeline.LongRunCapacity,
		SendOutCapacity: cfg.Pipeline.SendOutCapacity,
		SendOutTimeout:  cfg.Pipeline.SendOutTimeout,
	})
	taskRunner.SetLogger(log.Component("runner"))

	// Radio and connectivity manager
	radioDrv, err := newRadio(cfg.Radio)
	if err != nil {
		return err
	}
	defer radioDrv.Close()

	wifiCfg, err := wifi.ConfigFrom(cfg.WiFi)
	if err != nil {
		return fmt.Errorf("wifi config: %w", err)
	}
	history := wifi.NewSQLHistory(db, 0)
	manager := wifi.New(wifiCfg, radioDrv, wifi.NewStorage(kvstore.NewSQLiteStore(db)), pool)
	manager.SetLogger(log.Component("wifi"))
	manager.SetHistory(history)

	// Command modules
	restart := make(chan struct{}, 1)
	registry := dispatch.NewRegistry()
	sys := sysapi.New(
		sysapi.BuildInfo{Version: version, Commit: commit, Date: date},
		cfg.Device.ID,
		registry.Modules,
		func() {
			select {
			case restart <- struct{}{}:
			default:
			}
		},
	)
	sys.SetLogger(log.Component("sysapi"))
	sys.SetHostname(cfg.Device.Hostname)
	wifiModule := wifiapi.New(manager, cfg.WiFi.ScanMaxResults)
	wifiModule.SetLogger(log.Component("wifiapi"))

	if regErr := registry.Register(sysapi.ModuleID, sys); regErr != nil {
		return fmt.Errorf("registering system module: %w", regErr)
	}
	if regErr := registry.Register(wifiapi.ModuleID, wifiModule); regErr != nil {
		return fmt.Errorf("registering wifi module: %w", regErr)
	}

	commands := pipeline.New(pool, dispatch.NewRouter(registry), taskRunner, pipeline.Config{
		AcquireTimeout: cfg.Pipeline.AcquireTimeout,
		SubmitTimeout:  cfg.Pipeline.SubmitTimeout,
	})
	commands.SetLogger(log.Component("pipeline"))

	// Optional telemetry
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Device.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		manager.SetMetrics(influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Transports
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	var mqttClient *mqtt.Client
	var relay *api.Relay
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Device.ID)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetStateHandler(func(connected bool, err error) {
			if connected {
				log.Info("MQTT connected")
				return
			}
			log.Warn("MQTT disconnected", "error", err)
		})

		relay = api.NewRelay(mqttClient, commands, log.Component("mqtt-relay"))
	} else {
		log.Info("MQTT disabled")
	}

	manager.SetNotifier(fanout(hub, relay))

	var brokerStatus api.BrokerStatus
	if mqttClient != nil {
		brokerStatus = mqttClient
	}
	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log.Component("api"),
		Pipeline:     commands,
		Runner:       taskRunner,
		WiFi:         manager,
		History:      history,
		MQTT:         brokerStatus,
		Hub:          hub,
		Panel:        panel.Handler(cfg.API.PanelDir),
		ReplyTimeout: cfg.Pipeline.ReplyWaitTimeout,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Start in dependency order; deferred stops run in reverse.
	taskRunner.Start(ctx)
	defer taskRunner.Stop()

	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting wifi manager: %w", startErr)
	}
	defer manager.Stop()

	if relay != nil {
		if startErr := relay.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT relay: %w", startErr)
		}
		defer relay.Stop()
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if influxClient != nil {
		go influxClient.SampleOccupancy(ctx, occupancySampleInterval, func() influxdb.Occupancy {
			st := commands.Stats()
			rs := taskRunner.Stats()
			return influxdb.Occupancy{
				PoolInUse:    pool.InUse(),
				PoolSize:     pool.Size(),
				LongRunDepth: rs.LongRunDepth,
				SendOutDepth: rs.SendOutDepth,
				Requests:     st.Requests,
				PoolBusy:     st.PoolBusy,
				RunnerBusy:   st.RunnerBusy,
				WSClients:    hub.ClientCount(),
			}
		})
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"modules", registry.Modules(),
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		return nil
	case <-restart:
		log.Info("restart requested, cleaning up")
		return errRestart
	}
}

// getConfigPath returns the configuration file path.
// Uses WTAP_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WTAP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newRadio builds the configured radio driver.
func newRadio(cfg config.RadioConfig) (*sim.Radio, error) {
	switch cfg.Driver {
	case "sim":
		simCfg, err := sim.FromConfig(cfg.Sim)
		if err != nil {
			return nil, fmt.Errorf("radio config: %w", err)
		}
		return sim.New(simCfg), nil
	default:
		return nil, fmt.Errorf("radio driver %q is not supported", cfg.Driver)
	}
}

// fanout delivers WiFi notifications to the WebSocket hub and, when
// enabled, the MQTT relay.
func fanout(hub *api.Hub, relay *api.Relay) wifi.Notifier {
	if relay == nil {
		return hub
	}
	return wifi.NotifierFunc(func(event string, payload []byte) {
		hub.Notify(event, payload)
		relay.Notify(event, payload)
	})
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
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

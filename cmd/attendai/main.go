// AttendAI session daemon.
//
// attendai runs next to the web or kiosk front end and owns the signed-in
// session for it: it keeps the access/refresh token pair in a credential
// store, renews it with a single in-flight refresh, proxies backend calls
// with the current token attached and guards the role areas.
//
// Usage:
//
//	attendai            run the daemon (config from ATTENDAI_CONFIG)
//	attendai -health    probe a running daemon's /api/v1/health and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/attendai-core/internal/api"
	"github.com/nerrad567/attendai-core/internal/audit"
	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/backend"
	"github.com/nerrad567/attendai-core/internal/credential"
	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
	"github.com/nerrad567/attendai-core/internal/infrastructure/database"
	"github.com/nerrad567/attendai-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
	"github.com/nerrad567/attendai-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/attendai-core/internal/session"
	"github.com/nerrad567/attendai-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath  = "configs/config.yaml"
	healthProbeTimeout = 3 * time.Second
)

func main() {
	health := flag.Bool("health", false, "probe the running daemon and exit 0 if healthy")
	flag.Parse()

	if *health {
		cfg, err := config.Load(getConfigPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := probeHealth(context.Background(), healthURL(cfg.API)); err != nil {
			fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C and SIGTERM for a graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It blocks until ctx is cancelled and returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting AttendAI session daemon",
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

	checks := make(map[string]api.HealthChecker)

	// The database only exists for the sqlite credential store and the audit trail
	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.Open(ctx, database.Config{
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

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")
		checks["database"] = db
	}

	store, err := credential.Open(ctx, cfg.Credentials, db)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer func() {
		log.Info("closing credential store")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing credential store", "error", closeErr)
		}
	}()
	if hc, ok := store.(api.HealthChecker); ok {
		checks["credentials"] = hc
	}
	log.Info("credential store ready", "backend", cfg.Credentials.Backend)

	backendClient, err := backend.New(cfg.Backend, nil)
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	allowed, err := auth.ParseRoles(cfg.Session.AllowedRoles)
	if err != nil {
		return fmt.Errorf("parsing allowed roles: %w", err)
	}

	manager, err := session.New(session.Options{
		Store:        store,
		Backend:      backendClient,
		AllowedRoles: allowed,
		Landing:      landingFromConfig(cfg.Session),
		SignInPath:   cfg.Session.SignInPath,
		RefreshSkew:  cfg.GetRefreshSkew(),
		Metrics:      session.NewMetrics(reg),
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}
	defer func() {
		log.Info("closing session manager")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing session manager", "error", closeErr)
		}
	}()

	// Background workers stop before anything they write to is closed.
	workCtx, stopWork := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(workCtx)
	defer func() {
		stopWork()
		g.Wait() //nolint:errcheck // workers only return nil
	}()

	// Audit trail (optional)
	var auditRepo audit.Repository
	if cfg.Audit.Enabled {
		repo := audit.NewSQLiteRepository(db.DB)
		if cfg.Audit.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.Audit.RetentionDays)
			removed, pruneErr := repo.DeleteOlderThan(ctx, cutoff)
			if pruneErr != nil {
				log.Warn("pruning audit trail failed", "error", pruneErr)
			} else {
				log.Info("audit trail pruned", "removed", removed, "retention_days", cfg.Audit.RetentionDays)
			}
		}
		recorder := audit.NewRecorder(repo, log, audit.DefaultQueueSize)
		manager.AddObserver(recorder)
		g.Go(func() error { return recorder.Run(gctx) })
		auditRepo = repo
		log.Info("audit trail enabled")
	} else {
		log.Info("audit trail disabled")
	}

	// MQTT (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		publisher := newEventPublisher(mqttClient, log)
		manager.AddObserver(publisher)
		g.Go(func() error { return publisher.Run(gctx) })

		logoutTopic := mqtt.Topics{}.Command(mqttClient.ClientID(), commandLogout)
		if subErr := mqttClient.Subscribe(logoutTopic, mqttClient.QoS(), logoutHandler(manager, log)); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", logoutTopic, subErr)
		}
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
			"instance", influxClient.Instance(),
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		manager.AddObserver(newTelemetryWriter(influxClient))
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Areas:     cfg.Session.Areas,
		SignInDir: cfg.Session.SignInDir,
		Logger:    log,
		Session:   manager,
		Audit:     auditRepo,
		Gatherer:  reg,
		Checks:    checks,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// A failed bootstrap leaves the daemon running signed out
	if err := manager.Bootstrap(ctx); err != nil {
		log.Warn("session bootstrap failed", "error", err)
	}
	state := manager.Snapshot()
	log.Info("initialisation complete, waiting for shutdown signal",
		"signed_in", state.User != nil,
	)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns ATTENDAI_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("ATTENDAI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func landingFromConfig(cfg config.SessionConfig) auth.Landing {
	l := auth.Landing{Default: cfg.DefaultLanding, ByRole: make(map[auth.Role]string, len(cfg.LandingPaths))}
	for role, path := range cfg.LandingPaths {
		l.ByRole[auth.Role(role)] = path
	}
	return l
}

func healthURL(cfg config.APIConfig) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/api/v1/health", host, cfg.Port)
}

// probeHealth fails unless url answers 200 within healthProbeTimeout.
func probeHealth(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

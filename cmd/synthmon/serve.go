package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"synthmon/internal/api"
	"synthmon/internal/checker"
	"synthmon/internal/config"
	"synthmon/internal/health"
	"synthmon/internal/models"
	"synthmon/internal/outputs"
	"synthmon/internal/recorder"
	"synthmon/internal/scheduler"
	"synthmon/internal/storage"
	"synthmon/internal/storage/postgres"
	"synthmon/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the check loop, outputs and control API",
	Long: `Serve starts the full engine: the fixed-interval check loop over all
enabled monitors, the configured outputs (structured logging, Prometheus,
Elasticsearch, SNMP), and the HTTP control API.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	printBanner()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	rootLog := outputs.NewRootLogger(&cfg.Logging)
	slog.SetDefault(rootLog)

	log.Printf("Loaded configuration: %d monitors to seed", len(cfg.Monitors.List))
	log.Printf("  Check interval: %v", cfg.Scheduler.CheckInterval.Duration())
	log.Printf("  Database driver: %s", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	log.Println("✓ Storage ready")

	seeded, err := seedMonitors(ctx, store, cfg.Monitors.List)
	if err != nil {
		store.Close()
		return err
	}
	if seeded > 0 {
		log.Printf("✓ Seeded %d monitors from config", seeded)
	}

	// Checker
	chk := checker.New(&cfg.Browser, &cfg.Trace, rootLog)
	log.Println("✓ Checker initialized")

	// Output modules
	dispatcher := outputs.NewDispatcher(rootLog)

	logOutput, err := outputs.NewLogger(&cfg.Logging)
	if err != nil {
		store.Close()
		return fmt.Errorf("create check logger: %w", err)
	}
	dispatcher.RegisterOutput(logOutput)
	log.Println("✓ Check logger enabled")

	esOutput, err := outputs.NewElasticsearchOutput(&cfg.Elasticsearch)
	if err != nil {
		store.Close()
		return fmt.Errorf("create Elasticsearch output: %w", err)
	}
	if esOutput != nil {
		dispatcher.RegisterOutput(esOutput)
		log.Println("✓ Elasticsearch output enabled")
	}

	promOutput, err := outputs.NewPrometheusOutput(&cfg.Prometheus)
	if err != nil {
		store.Close()
		return fmt.Errorf("create Prometheus exporter: %w", err)
	}
	if promOutput != nil {
		dispatcher.RegisterOutput(promOutput)
		chk.OnTraceError(promOutput.IncTraceFailure)
		log.Println("✓ Prometheus exporter enabled")
	}

	cache := outputs.NewResultsCache(cfg.Scheduler.CacheSize)
	snmpOutput, err := outputs.NewSNMPOutput(&cfg.SNMP, cache)
	if err != nil {
		store.Close()
		return fmt.Errorf("create SNMP agent: %w", err)
	}
	if snmpOutput != nil {
		dispatcher.RegisterOutput(snmpOutput)
		log.Println("✓ SNMP agent enabled")
	}

	// Health tracking and the scheduling engine
	tracker := health.NewTracker(cfg.Advanced.StaleThreshold.Duration(), nil)

	rec := recorder.New(storeRecorder{store}, rootLog)
	sched := scheduler.New(storeRegistry{store}, chk, rec, scheduler.Options{
		Interval:         cfg.Scheduler.CheckInterval.Duration(),
		RecoveryDelay:    cfg.Scheduler.RecoveryDelay.Duration(),
		FailureThreshold: cfg.Advanced.BrowserFailureThreshold,
		Logger:           rootLog,
		Events:           dispatcher,
		Health:           tracker,
	})
	// The loop runs on its own context so a shutdown signal cannot
	// cancel in-flight persistence; only Stop ends it.
	if err := sched.Start(context.Background()); err != nil {
		store.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Println("✓ Check loop started")

	// Control API
	var apiServer *api.Server
	var apiErrCh <-chan error
	if cfg.API.Enabled {
		handlers := api.NewHandlers(store, sched, tracker, rootLog)
		apiServer = api.NewServer(&cfg.API, handlers, rootLog)
		apiErrCh = apiServer.Start()
		log.Println("✓ API server enabled")
	}

	log.Println("Synthetic monitoring engine started. Press Ctrl+C to stop.")
	log.Println()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Println("Received shutdown signal...")
	case err := <-apiErrCh:
		if err != nil {
			log.Printf("API server failed: %v", err)
			serveErr = err
		}
	}

	// Graceful shutdown. A second signal kills the process outright.
	log.Println("Shutting down gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Advanced.ShutdownTimeout.Duration())
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error stopping API server: %v", err)
		} else {
			log.Println("✓ API server stopped")
		}
	}

	// Stop drains the in-flight tick; every monitor already picked up in
	// this sweep still gets checked and persisted.
	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		log.Println("✓ Check loop stopped")
	case <-shutdownCtx.Done():
		log.Println("⚠ Shutdown timeout exceeded, abandoning in-flight checks")
	}

	if esOutput != nil {
		if err := esOutput.Close(); err != nil {
			log.Printf("Error closing Elasticsearch output: %v", err)
		} else {
			log.Println("✓ Elasticsearch output closed")
		}
	}

	if promOutput != nil {
		if err := promOutput.Close(); err != nil {
			log.Printf("Error closing Prometheus exporter: %v", err)
		} else {
			log.Println("✓ Prometheus exporter closed")
		}
	}

	if snmpOutput != nil {
		if err := snmpOutput.Close(); err != nil {
			log.Printf("Error closing SNMP agent: %v", err)
		} else {
			log.Println("✓ SNMP agent closed")
		}
	}

	if err := store.Close(); err != nil {
		log.Printf("Error closing storage: %v", err)
	} else {
		log.Println("✓ Storage closed")
	}

	log.Println("Shutdown complete")
	return serveErr
}

// storeCloser is the full storage surface plus lifecycle, satisfied by
// both drivers.
type storeCloser interface {
	storage.Storer
	Close() error
}

// openStore selects the storage backend from configuration.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (storeCloser, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return sqlite.New(ctx, cfg.Path)
	case "postgres":
		return postgres.New(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q (expected sqlite or postgres)", cfg.Driver)
	}
}

// seedMonitors registers config-declared monitors, skipping names that
// already exist so restarts do not duplicate them.
func seedMonitors(ctx context.Context, store storage.Storer, list []models.Monitor) (int, error) {
	seeded := 0
	for i := range list {
		mon := list[i]
		if err := mon.Validate(); err != nil {
			return seeded, fmt.Errorf("monitor seed %q: %w", mon.Name, err)
		}
		if _, err := store.CreateMonitor(ctx, &mon); err != nil {
			if errors.Is(err, storage.ErrDuplicateName) {
				continue
			}
			return seeded, fmt.Errorf("seed monitor %q: %w", mon.Name, err)
		}
		seeded++
	}
	return seeded, nil
}

// storeRegistry adapts the storage layer to the scheduler's registry
// view.
type storeRegistry struct {
	store storage.Storer
}

func (r storeRegistry) ListEnabledMonitors(ctx context.Context) ([]models.Monitor, error) {
	return r.store.ListEnabledMonitors(ctx)
}

func (r storeRegistry) GetMonitor(ctx context.Context, id int64) (models.Monitor, error) {
	m, err := r.store.GetMonitor(ctx, id)
	if err != nil {
		return models.Monitor{}, err
	}
	return *m, nil
}

// storeRecorder adapts the storage layer to the recorder's write
// surface.
type storeRecorder struct {
	store storage.Storer
}

func (r storeRecorder) InsertExecutionRecord(ctx context.Context, rec models.ExecutionRecord) (int64, error) {
	return r.store.InsertExecutionRecord(ctx, &rec)
}

func (r storeRecorder) InsertMetricRows(ctx context.Context, recordID int64, rows []models.MetricRow) error {
	return r.store.InsertMetricRows(ctx, recordID, rows)
}

func (r storeRecorder) AttachTrace(ctx context.Context, recordID int64, trace json.RawMessage) error {
	return r.store.AttachTrace(ctx, recordID, trace)
}

func printBanner() {
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Synthetic Monitoring Engine                                   ║")
	fmt.Printf("║  Version: %-52s ║\n", version)
	fmt.Println("║  Browser-driven checks from a user's perspective               ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bantayph/bantay/internal/alert"
	"github.com/bantayph/bantay/internal/cache"
	"github.com/bantayph/bantay/internal/config"
	"github.com/bantayph/bantay/internal/connectivity"
	"github.com/bantayph/bantay/internal/metrics"
	"github.com/bantayph/bantay/internal/server"
	"github.com/bantayph/bantay/internal/store"
	"github.com/bantayph/bantay/internal/tracker"
	"github.com/bantayph/bantay/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config  *config.Config
	logger  *logrus.Logger
	store   store.Store
	cache   cache.Cache
	monitor *connectivity.Monitor
	alerter *alert.Manager
	metrics *metrics.Manager
	tracker *tracker.Tracker
	server  *server.HTTPServer
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()

	if err := app.initializeStore(); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := app.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := app.initializeConnectivity(); err != nil {
		return fmt.Errorf("failed to initialize connectivity monitor: %w", err)
	}

	if err := app.initializeAlerts(); err != nil {
		return fmt.Errorf("failed to initialize alerts: %w", err)
	}

	app.tracker = tracker.New(app.store, app.cache, app.monitor, app.alerter, app.metrics)

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStore initializes the remote store
func (app *Application) initializeStore() error {
	app.logger.Info("Initializing remote store")

	storeCfg := &store.StoreConfig{
		ConnectionString: app.config.Store.ConnectionString,
		MaxConnections:   app.config.Store.MaxConnections,
		MaxIdleTime:      app.config.Store.MaxIdleTime,
		QueryTimeout:     app.config.Store.QueryTimeout,
	}

	pgStore := store.NewPostgresStore(storeCfg)
	pgStore.SetMetricsManager(app.metrics)
	app.store = pgStore

	// A failed connect is not fatal: the tracker starts offline and the
	// connectivity monitor keeps probing until the store comes back.
	if err := app.store.Connect(); err != nil {
		app.logger.WithField("error", err.Error()).Warn("Remote store unreachable at startup")
		return nil
	}

	if err := app.store.Migrate(); err != nil {
		return fmt.Errorf("failed to run store migrations: %w", err)
	}

	app.logger.Info("Remote store initialized successfully")
	return nil
}

// initializeCache initializes the offline cache
func (app *Application) initializeCache() error {
	app.logger.Info("Initializing offline cache")

	cacheCfg := &cache.CacheConfig{
		Path:           app.config.Cache.Path,
		MaxConnections: app.config.Cache.MaxConnections,
		MaxIdleTime:    app.config.Cache.MaxIdleTime,
	}

	sqliteCache := cache.NewSQLiteCache(cacheCfg)
	sqliteCache.SetMetricsManager(app.metrics)
	app.cache = sqliteCache

	if err := app.cache.Open(); err != nil {
		return fmt.Errorf("failed to open offline cache: %w", err)
	}

	if err := app.cache.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate offline cache: %w", err)
	}

	app.logger.WithField("path", app.config.Cache.Path).Info("Offline cache initialized successfully")
	return nil
}

// initializeConnectivity initializes the connectivity monitor
func (app *Application) initializeConnectivity() error {
	monitorCfg := &connectivity.MonitorConfig{
		ProbeInterval:    app.config.Connectivity.ProbeInterval,
		ProbeTimeout:     app.config.Connectivity.ProbeTimeout,
		FailureThreshold: app.config.Connectivity.FailureThreshold,
		StartOnline:      app.config.Connectivity.StartOnline,
	}

	app.monitor = connectivity.NewMonitor(app.store, monitorCfg, app.metrics)
	return nil
}

// initializeAlerts initializes the alert manager
func (app *Application) initializeAlerts() error {
	alertCfg := &alert.ManagerConfig{
		Enabled:        app.config.Alerts.Enabled,
		WebhookURL:     app.config.Alerts.WebhookURL,
		WebhookTimeout: app.config.Alerts.WebhookTimeout,
		RetryAttempts:  app.config.Alerts.RetryAttempts,
		RetryDelay:     app.config.Alerts.RetryDelay,
	}

	app.alerter = alert.NewManager(alertCfg, app.metrics)
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.tracker, app.store, app.cache, app.monitor, app.alerter, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting Bantay status tracker")

	if err := app.alerter.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start alert manager: %w", err)
	}

	if err := app.monitor.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start connectivity monitor: %w", err)
	}

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"cache_path":     app.config.Cache.Path,
	}).Info("Bantay started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping Bantay status tracker")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithField("error", err.Error()).Error("Failed to stop HTTP server")
		}
	}

	if app.monitor != nil {
		if err := app.monitor.Stop(); err != nil {
			app.logger.WithField("error", err.Error()).Error("Failed to stop connectivity monitor")
		}
	}

	if app.alerter != nil {
		if err := app.alerter.Stop(); err != nil {
			app.logger.WithField("error", err.Error()).Error("Failed to stop alert manager")
		}
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.WithField("error", err.Error()).Error("Failed to close offline cache")
		}
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.WithField("error", err.Error()).Error("Failed to close remote store")
		}
	}

	app.logger.Info("Bantay stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "bantay",
	Short:   "Bantay disaster evacuation status tracker",
	Long:    `An offline-capable status tracker for disaster response: resolves resident statuses from an append-only status log and keeps a local snapshot for use when connectivity drops.`,
	Version: AppVersion,
	RunE:    runTracker,
}

// runTracker is the main command to run the tracker service
func runTracker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Bantay %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Cache path: %s\n", cfg.Cache.Path)
		fmt.Printf("HTTP server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)

		return nil
	},
}

// offlineCmd groups commands that manage the offline cache
var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Manage the offline data snapshot",
}

// offlineDownloadCmd snapshots a municipality into the offline cache
var offlineDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a municipality snapshot for offline use",
	RunE: func(cmd *cobra.Command, args []string) error {
		municipality, _ := cmd.Flags().GetString("municipality")
		if municipality == "" {
			return fmt.Errorf("--municipality is required")
		}

		app, err := newCLIApplication()
		if err != nil {
			return err
		}
		defer app.Stop()

		ctx, cancel := context.WithTimeout(app.ctx, 5*time.Minute)
		defer cancel()

		// One probe decides whether the download can proceed.
		app.monitor.Probe(ctx)

		result, err := app.tracker.DownloadForOffline(ctx, municipality)
		if err != nil {
			return fmt.Errorf("offline download failed: %w", err)
		}

		fmt.Printf("Downloaded %s for offline use:\n", result.Municipality)
		fmt.Printf("  Residents:    %d\n", result.Residents)
		fmt.Printf("  Evac centers: %d\n", result.EvacCenters)
		return nil
	},
}

// offlineClearCmd wipes the offline cache
var offlineClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the offline cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newCLIApplication()
		if err != nil {
			return err
		}
		defer app.Stop()

		if err := app.tracker.ClearOffline(app.ctx); err != nil {
			return fmt.Errorf("failed to clear offline cache: %w", err)
		}

		fmt.Println("Offline cache cleared")
		return nil
	},
}

// offlineStatusCmd reports what the offline cache holds
var offlineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the offline cache currently holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newCLIApplication()
		if err != nil {
			return err
		}
		defer app.Stop()

		status, err := app.tracker.GetOfflineStatus(app.ctx)
		if err != nil {
			return fmt.Errorf("failed to read offline status: %w", err)
		}

		if !status.Downloaded {
			fmt.Println("No offline snapshot downloaded")
			return nil
		}

		fmt.Printf("Municipality:  %s\n", status.Municipality)
		fmt.Printf("Downloaded at: %s\n", status.DownloadedAt.Format(time.RFC3339))
		fmt.Printf("Residents:     %d\n", status.Residents)
		fmt.Printf("Evac centers:  %d\n", status.EvacCenters)
		return nil
	},
}

// seedCmd upserts master records (residents, evacuation centers,
// disaster events) into the remote store from a JSON file
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import master records into the remote store from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		var batch tracker.ImportBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("failed to parse %s: %w", file, err)
		}

		app, err := newCLIApplication()
		if err != nil {
			return err
		}
		defer app.Stop()

		ctx, cancel := context.WithTimeout(app.ctx, 5*time.Minute)
		defer cancel()

		// One probe decides whether the import can proceed.
		app.monitor.Probe(ctx)

		result, err := app.tracker.ImportRecords(ctx, &batch)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Imported from %s:\n", file)
		fmt.Printf("  Residents:    %d\n", result.Residents)
		fmt.Printf("  Evac centers: %d\n", result.EvacCenters)
		fmt.Printf("  Events:       %d\n", result.Events)
		return nil
	},
}

// loadConfig loads configuration from the path given on the command line
func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newCLIApplication builds a full application for one-shot CLI commands
// without starting the HTTP server or the probe loop.
func newCLIApplication() (*Application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return app, nil
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	offlineDownloadCmd.Flags().String("municipality", "", "municipality to snapshot")
	seedCmd.Flags().StringP("file", "f", "", "JSON file with residents, evac_centers, and events")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(offlineCmd)
	configCmd.AddCommand(validateConfigCmd)
	offlineCmd.AddCommand(offlineDownloadCmd)
	offlineCmd.AddCommand(offlineClearCmd)
	offlineCmd.AddCommand(offlineStatusCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

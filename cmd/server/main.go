package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/NickAwrist/dynamic-pr-templates/internal/app"
	"github.com/NickAwrist/dynamic-pr-templates/internal/config"
	"github.com/NickAwrist/dynamic-pr-templates/internal/events"
	"github.com/NickAwrist/dynamic-pr-templates/internal/handlers"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote"
	"github.com/NickAwrist/dynamic-pr-templates/internal/seed"
	"github.com/NickAwrist/dynamic-pr-templates/internal/server"
	"github.com/NickAwrist/dynamic-pr-templates/internal/store"
)

// Delivery ids are kept long enough to cover GitHub's redelivery window
const (
	deliveryRetention = 7 * 24 * time.Hour
	pruneInterval     = time.Hour
)

// Global variables for configuration and services
var (
	cfg       *config.Config
	log       *logger.Logger
	db        *store.Store
	publisher events.Publisher
	processor *app.App
	errChan   = make(chan error, 2)
)

func main() {
	flagSet := pflag.NewFlagSet("dynamic-pr-templates", pflag.ContinueOnError)
	configFile := flagSet.String("config", "", "path to a TOML config file (default: $APP_CONFIG_FILE)")
	envFile := flagSet.String("env-file", ".env", "path to an environment file loaded before reading the environment")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// Create a context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create a wait group for graceful shutdown
	var wg sync.WaitGroup

	// Initialize configuration and services
	if err := initialize(ctx, config.Options{EnvFile: *envFile, ConfigFile: *configFile}); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization error: %v\n", err)
		os.Exit(1)
	}

	// Expire old delivery ids
	startDeliveryPruner(ctx, &wg)

	// Start the web server
	startWebServer(ctx, &wg)

	// Handle shutdown signals
	waitForShutdown(cancel, &wg)
}

func initialize(ctx context.Context, opts config.Options) error {
	var err error

	// Load configuration
	cfg, err = config.Load(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("Starting Dynamic PR Templates")

	db, err = store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	clients, err := newClientFactory()
	if err != nil {
		return fmt.Errorf("failed to configure github client: %w", err)
	}

	publisher = events.Nop{}
	if cfg.AMQP.URL != "" {
		publisher, err = events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
		if err != nil {
			return fmt.Errorf("failed to create outcome publisher: %w", err)
		}
	}

	tree := seed.Default()
	if cfg.Seed.Dir != "" {
		log.Infof("Seeding repositories from %s", cfg.Seed.Dir)
		tree = seed.FromDir(cfg.Seed.Dir)
	}

	processor = app.New(clients, tree, db, publisher, log)
	return nil
}

func newClientFactory() (*remote.Factory, error) {
	factoryCfg := remote.FactoryConfig{BaseURL: cfg.GitHub.APIURL}

	if cfg.GitHub.UsesApp() {
		key, err := cfg.GitHub.PrivateKeyPEM()
		if err != nil {
			return nil, err
		}
		auth, err := remote.NewAppAuth(cfg.GitHub.AppID, key)
		if err != nil {
			return nil, err
		}
		factoryCfg.Auth = auth
		log.Infof("Authenticating as GitHub App %d", auth.AppID())
	} else {
		factoryCfg.Token = cfg.GitHub.Token
		log.Warn("Authenticating with a personal access token; installation ids are ignored")
		if cfg.GitHub.WebhookSecret == "" {
			log.Warn("GITHUB_WEBHOOK_SECRET is not set; webhook signatures will not be checked")
		}
	}

	return remote.NewFactory(factoryCfg)
}

func startDeliveryPruner(ctx context.Context, wg *sync.WaitGroup) {
	wg.Go(func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := db.PruneDeliveries(ctx, deliveryRetention)
				if err != nil {
					log.Error("Failed to prune deliveries", err)
					continue
				}
				if n > 0 {
					log.Debugf("Pruned %d delivery ids", n)
				}
			}
		}
	})
}

func startWebServer(ctx context.Context, wg *sync.WaitGroup) {
	wg.Go(func() {
		log.Info("Starting HTTP server...")

		// Initialize HTTP handlers
		httpHandler := handlers.New(
			processor,
			db,
			handlers.WebhookConfig{Secret: cfg.GitHub.WebhookSecret},
			log,
		)

		// Initialize and start HTTP server
		httpServer := server.New(cfg, httpHandler, log)
		if err := httpServer.Start(cfg); err != nil {
			errChan <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}

		// Keep the server running until shutdown
		<-ctx.Done()
		log.Info("HTTP server shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error during HTTP server shutdown", err)
		}
	})
}

func waitForShutdown(cancel context.CancelFunc, wg *sync.WaitGroup) {
	// Wait for either service to fail or for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("Service failed", err)
	case <-sigChan:
		log.Info("Received shutdown signal")
	}

	// Cancel context to signal goroutines to shutdown
	cancel()

	// Wait for all goroutines to finish
	wg.Wait()

	if err := publisher.Close(); err != nil {
		log.Error("Error closing outcome publisher", err)
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing store", err)
	}

	log.Info("Application stopped")
}

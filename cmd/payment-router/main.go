package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/config"
	"github.com/krishnakrish0052/payment-router/internal/health"
	"github.com/krishnakrish0052/payment-router/internal/providers"
	"github.com/krishnakrish0052/payment-router/internal/providers/paypal"
	"github.com/krishnakrish0052/payment-router/internal/providers/razorpay"
	"github.com/krishnakrish0052/payment-router/internal/providers/stripe"
	"github.com/krishnakrish0052/payment-router/internal/registry"
	"github.com/krishnakrish0052/payment-router/internal/routing"
	"github.com/krishnakrish0052/payment-router/internal/server"
	"github.com/krishnakrish0052/payment-router/internal/stores"
)

// Application represents the main application
type Application struct {
	config *config.Config
	engine *routing.Engine
	runner *health.Runner
	server *server.Server
	logger *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	clock := stores.SystemClock{}

	// Stores: the catalog from the config file seeds the config store; the
	// rest of the state lives in memory.
	configStore := stores.NewMemoryConfigStore(cfg.Catalog.Providers, cfg.Catalog.Rules)
	healthStore := stores.NewMemoryHealthStore(clock)
	usageStore := stores.NewMemoryUsageStore(healthStore, clock)
	userStore := stores.NewMemoryUserStore(stores.SegmentThresholds{
		VIPLifetimeAmount:     cfg.Segments.VIPLifetimeAmount,
		VIPPaymentCount:       cfg.Segments.VIPPaymentCount,
		RegularLifetimeAmount: cfg.Segments.RegularLifetimeAmount,
		RegularPaymentCount:   cfg.Segments.RegularPaymentCount,
	})
	switchStore := stores.NewMemorySwitchStore(clock)

	// Registry
	reg := registry.New(configStore, clock, logger, cfg.Registry.RefreshInterval)
	if err := reg.Refresh(context.Background(), true); err != nil {
		return nil, fmt.Errorf("failed to load provider registry: %w", err)
	}

	// Provider API clients
	clients, err := registerClients(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register provider clients: %w", err)
	}

	// Selection pipeline
	ruleEngine := routing.NewRuleEngine(userStore, healthStore, clock, logger)
	reliability := routing.NewReliabilityFilter(healthStore, routing.ReliabilityThresholds{
		MaxConsecutiveFailures: cfg.Reliability.MaxConsecutiveFailures,
		MaxFailureRate:         cfg.Reliability.MaxFailureRate,
		Window:                 cfg.Reliability.Window,
	}, logger)
	balancer := routing.NewBalancer(usageStore, logger, cfg.Routing.UsageWindow)

	engine := routing.NewEngine(reg, ruleEngine, reliability, balancer,
		healthStore, usageStore, switchStore, clock, logger,
		routing.EngineConfig{
			Strategy:            routing.Strategy(cfg.Routing.Strategy),
			MaxAttempts:         cfg.Routing.MaxAttempts,
			RecentFailureWindow: cfg.Routing.RecentFailureWindow,
			SelectionBudget:     cfg.Routing.SelectionBudget,
		})

	// Health-check runner
	runner := health.NewRunner(reg, healthStore, clients, clock, logger, health.RunnerConfig{
		Interval:        cfg.Health.Interval,
		ProbeTimeout:    cfg.Health.ProbeTimeout,
		InterProbeDelay: cfg.Health.InterProbeDelay,
		WarnLatency:     cfg.Health.WarnLatency,
	})

	// Diagnostics server
	serverInstance := server.NewServer(engine, reg, &server.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, logger)

	return &Application{
		config: cfg,
		engine: engine,
		runner: runner,
		server: serverInstance,
		logger: logger,
	}, nil
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.Info("Starting Payment Provider Router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Baseline probe before the first scheduled run, then start the timer
	go app.runner.RunAll(ctx)
	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start health-check runner: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	// Graceful shutdown
	app.logger.Info("Starting graceful shutdown...")

	app.runner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	// Set log level
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	// Set log format
	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	// Set output
	switch config.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		// Assume it's a file path
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// registerClients builds the provider API clients that have credentials
func registerClients(cfg *config.Config, logger *logrus.Logger) (*providers.Registry, error) {
	clients := providers.NewRegistry()
	registered := 0

	if cfg.Clients.Stripe != nil && cfg.Clients.Stripe.SecretKey != "" {
		clients.Register(stripe.NewClient(cfg.Clients.Stripe, logger))
		logger.WithField("provider_type", "stripe").Info("Provider client registered")
		registered++
	}

	if cfg.Clients.Razorpay != nil && cfg.Clients.Razorpay.KeyID != "" {
		clients.Register(razorpay.NewClient(cfg.Clients.Razorpay, logger))
		logger.WithField("provider_type", "razorpay").Info("Provider client registered")
		registered++
	}

	if cfg.Clients.PayPal != nil && cfg.Clients.PayPal.ClientID != "" {
		clients.Register(paypal.NewClient(cfg.Clients.PayPal, logger))
		logger.WithField("provider_type", "paypal").Info("Provider client registered")
		registered++
	}

	if registered == 0 {
		return nil, fmt.Errorf("no provider clients were registered - check your configuration and credentials")
	}

	logger.WithField("count", registered).Info("Provider client registration completed")
	return clients, nil
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  STRIPE_SECRET_KEY           Stripe secret key\n")
	fmt.Fprintf(os.Stderr, "  RAZORPAY_KEY_ID             Razorpay key id\n")
	fmt.Fprintf(os.Stderr, "  RAZORPAY_KEY_SECRET         Razorpay key secret\n")
	fmt.Fprintf(os.Stderr, "  PAYPAL_CLIENT_ID            PayPal client id\n")
	fmt.Fprintf(os.Stderr, "  PAYPAL_CLIENT_SECRET        PayPal client secret\n")
	fmt.Fprintf(os.Stderr, "  PAYMENT_ROUTER_PORT         Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  PAYMENT_ROUTER_STRATEGY     Balancing strategy\n")
	fmt.Fprintf(os.Stderr, "  PAYMENT_ROUTER_LOG_LEVEL    Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  PAYMENT_ROUTER_LOG_FORMAT   Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  STRIPE_SECRET_KEY=sk_test_xxx %s --config configs/config.yaml\n", os.Args[0])
}

func main() {
	// Parse command line flags
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *version {
		fmt.Printf("Payment Provider Router v1.0.0\n")
		os.Exit(0)
	}

	// Create and run application
	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

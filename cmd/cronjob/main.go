package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"powerbank-rental-backend/internal/config"
	"powerbank-rental-backend/internal/gateway"
	"powerbank-rental-backend/internal/jobs"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository/postgres"
	"powerbank-rental-backend/internal/scheduler"
	"powerbank-rental-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-stale-intents', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting rental backend cronjob runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize gateway clients
	registry := gateway.NewRegistry(
		gateway.NewKhaltiClient(
			cfg.Gateways.Khalti.BaseURL,
			cfg.Gateways.Khalti.SecretKey,
			time.Duration(cfg.Gateways.Khalti.TimeoutSeconds)*time.Second,
		),
		gateway.NewEsewaClient(
			cfg.Gateways.Esewa.BaseURL,
			cfg.Gateways.Esewa.MerchantID,
			cfg.Gateways.Esewa.SecretKey,
			time.Duration(cfg.Gateways.Esewa.TimeoutSeconds)*time.Second,
		),
		gateway.NewStripeClient(
			cfg.Gateways.Stripe.BaseURL,
			cfg.Gateways.Stripe.SecretKey,
			time.Duration(cfg.Gateways.Stripe.TimeoutSeconds)*time.Second,
		),
	)

	// Initialize Services
	notifier := service.NewNotifier(
		store,
		cfg.Notify.SendgridAPIKey,
		cfg.Notify.FromEmail,
		cfg.Notify.FromName,
	)

	paymentService := service.NewPaymentService(
		store,
		registry,
		notifier,
		cfg.Billing.Currency,
		time.Duration(cfg.Billing.IntentTTLMinutes)*time.Minute,
		cfg.Billing.VerifyRetryAttempts,
		time.Duration(cfg.Billing.VerifyBackoffSeconds)*time.Second,
		cfg.Billing.LedgerRetryAttempts,
	)

	jobServices := &jobs.Services{
		Payment:  paymentService,
		Notifier: notifier,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store, jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "expire-stale-intents":
		jobRunner.ExpireStaleIntents()
	case "send-overdue-reminders":
		jobRunner.SendOverdueReminders()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - expire-stale-intents\n")
		fmt.Printf("  - send-overdue-reminders\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}

// Package main is the entry point for the Church Connect calendar server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/church-connect/backend/internal/api"
	"github.com/church-connect/backend/internal/approval"
	"github.com/church-connect/backend/internal/availability"
	"github.com/church-connect/backend/internal/config"
	"github.com/church-connect/backend/internal/conflict"
	"github.com/church-connect/backend/internal/notify"
	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	syncsvc "github.com/church-connect/backend/internal/sync"
	"github.com/church-connect/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Listen); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting Church Connect calendar server (version: %s)...", version)

	// Initialize database
	db, err := storage.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub)

	// Initialize repositories
	connectionRepo := storage.NewConnectionRepository(db)
	syncedEventRepo := storage.NewSyncedEventRepository(db)
	calendarRepo := storage.NewCalendarRepository(db)
	eventRepo := storage.NewEventRepository(db)
	availabilityRepo := storage.NewAvailabilityRepository(db)

	// Initialize services
	syncService := syncsvc.NewService(
		connectionRepo,
		syncedEventRepo,
		provider.OAuthCredentials{ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret},
		provider.OAuthCredentials{ClientID: cfg.Microsoft.ClientID, ClientSecret: cfg.Microsoft.ClientSecret},
	)

	detector := conflict.NewDetector(eventRepo.ListOverlapping, syncedEventRepo.ListForUserWindow)
	aggregator := availability.NewAggregator(syncedEventRepo, availabilityRepo)

	var notifier notify.Notifier = &notify.LogNotifier{}
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	directory := notify.NewDirectory(cfg.UserEmails)
	approvalMachine := approval.NewMachine(eventRepo, notifier, broadcaster, directory.Lookup)

	// Start the sync scheduler
	scheduler := syncsvc.NewScheduler(syncService, connectionRepo, hub, cfg.SyncIntervalMinutes)
	if err := scheduler.Start(context.Background()); err != nil {
		log.Printf("Warning: Failed to start sync scheduler: %v", err)
	}

	// Initialize HTTP router with services
	router := api.NewRouter(api.Services{
		DB:           db,
		Hub:          hub,
		Connections:  connectionRepo,
		Calendars:    calendarRepo,
		Events:       eventRepo,
		Sync:         syncService,
		Scheduler:    scheduler,
		Detector:     detector,
		Availability: aggregator,
		Approval:     approvalMachine,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}

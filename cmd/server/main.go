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

	"github.com/rpattn/dashclone/internal/config"
	"github.com/rpattn/dashclone/internal/db"
	"github.com/rpattn/dashclone/internal/metabase"
	"github.com/rpattn/dashclone/internal/middleware"
	"github.com/rpattn/dashclone/internal/repository"
	"github.com/rpattn/dashclone/internal/service"

	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database, cfg.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	activityRepo := repository.NewActivityLogRepository(conn.Pool)
	taskRepo := repository.NewTaskConfigRepository(conn.Pool)

	// Create Metabase client and service
	client := metabase.NewClient(cfg.Metabase)
	svc := service.New(client, activityRepo, taskRepo, cfg.Metabase.BaseURL).WithSignatures(cfg.Signatures)
	if cfg.SchedulerEnabled {
		scheduler := service.NewScheduler(svc, cfg.CheckInterval)
		go scheduler.Run(ctx)
	} else {
		log.Printf("Scheduler disabled, checks run on demand only")
	}

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := service.NewHandler(svc)
	mux := handler.Routes()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting auto-clone service on %s", cfg.ListenAddr)
		log.Printf("Check interval: %s", cfg.CheckInterval)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

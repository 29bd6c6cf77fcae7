package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wa-taskboard/internal/config"
	"wa-taskboard/internal/core"
	"wa-taskboard/internal/store"
	"wa-taskboard/internal/wa"
	"wa-taskboard/internal/web"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables win either way
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the conversation log
	log.Println("Initializing store...")
	db := store.NewStore(cfg.StorePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go db.RunAutosave(ctx, time.Duration(cfg.SnapshotIntervalSeconds)*time.Second)

	// Initialize the WhatsApp transport
	log.Println("Initializing WhatsApp connection...")
	transport, err := wa.NewClient(cfg.SessionDBPath, db)
	if err != nil {
		log.Fatalf("Failed to initialize WhatsApp client: %v", err)
	}
	if err := transport.Connect(ctx); err != nil {
		log.Printf("Warning: WhatsApp connection failed: %v", err)
		log.Println("Continuing with stored history only; use /api/resync-history after fixing the session")
	}

	// Initialize the core service
	service := core.NewService(db, transport)

	// Initialize the web server
	server := web.NewServer(service, cfg.PublicDir, cfg.MediaDir, cfg.DefaultStatsDays)
	router := server.Router()

	fmt.Println("\n✓ Store loaded")
	fmt.Println("✓ Core service ready")
	fmt.Println("✓ Web server ready")
	fmt.Printf("\n🚀 Server starting on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop the server")

	// Setup HTTP server with graceful shutdown
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until signal is received
	sig := <-quit
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	// Stop the autosave loop; it writes a final snapshot on the way out
	cancel()
	transport.Disconnect()

	if err := db.Save(); err != nil {
		log.Printf("Error during final store save: %v", err)
	}

	log.Println("✓ HTTP server stopped")
	log.Println("✓ Store saved")
	log.Println("Shutdown complete")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/omerbl/trackd/internal/api"
	"github.com/omerbl/trackd/internal/audit"
	"github.com/omerbl/trackd/internal/store"
	"github.com/spf13/cobra"
)

var (
	listenAddr     string
	dbPath         string
	conflictPolicy string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trackd daemon",
	Long:  `Starts the trackd daemon which owns the time-entry store and serves the HTTP API.`,
	RunE:  runServe,
}

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".trackd", "trackd.db")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7467", "Listen address for the API server")
	serveCmd.Flags().StringVar(&dbPath, "db", defaultDB, "Path to SQLite database")
	serveCmd.Flags().StringVar(&conflictPolicy, "on-conflict", string(api.ConflictReject),
		"Policy when a start arrives while a timer is already running: reject or stop-previous")
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("Starting trackd daemon...")

	// Initialize store
	s, err := store.New(dbPath)
	if err != nil {
		return err
	}

	trail := audit.NewTrail(s)
	service := api.NewService(s, trail, api.ConflictPolicy(conflictPolicy))
	server := api.NewServer(service, listenAddr)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

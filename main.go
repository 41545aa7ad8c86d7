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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/preplay-ai/preplay/internal/api"
	"github.com/preplay-ai/preplay/internal/config"
	"github.com/preplay-ai/preplay/internal/knowledge"
	"github.com/preplay-ai/preplay/internal/report"
	"github.com/preplay-ai/preplay/internal/service"
	"github.com/preplay-ai/preplay/internal/spark"
	"github.com/preplay-ai/preplay/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting preplay backend...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabasePath)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize the two persona clients
	redClient := spark.NewClient(cfg.Red)
	blueClient := spark.NewClient(cfg.Blue)

	// Initialize knowledge-base clients
	docClient := knowledge.NewDocClient(cfg.ChatDoc)
	searcher := knowledge.NewSearcher(cfg.ChatDoc)
	knowledgeSvc := knowledge.NewService(docClient, db)

	// Initialize report generator
	reporter := report.NewGenerator(cfg.Report)

	// Initialize service
	svc := service.New(db, redClient, blueClient, searcher, knowledgeSvc, reporter, cfg)

	// Initialize handler
	h := api.NewHandler(svc)

	// Create Echo server
	server := echo.New()
	server.HideBanner = true

	// Middleware
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(server)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Stopped")
}

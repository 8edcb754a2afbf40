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

	"github.com/xiaot623/gogo/crewtrace/internal/adapter/traceclient"
	"github.com/xiaot623/gogo/crewtrace/internal/config"
	"github.com/xiaot623/gogo/crewtrace/internal/finalizer"
	"github.com/xiaot623/gogo/crewtrace/internal/poller"
	"github.com/xiaot623/gogo/crewtrace/internal/repository"
	"github.com/xiaot623/gogo/crewtrace/internal/session"
	handler "github.com/xiaot623/gogo/crewtrace/internal/transport/http"
	"github.com/xiaot623/gogo/crewtrace/internal/transport/http/viewer"
	"github.com/xiaot623/gogo/crewtrace/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting trace viewer...")
	log.Printf("Viewer Port: %d", cfg.ViewerPort)
	log.Printf("Trace server URL: %s", cfg.TraceServerURL)
	log.Printf("Poll interval: %s", cfg.PollInterval)

	// Run history
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	client := traceclient.NewClient(cfg.TraceServerURL, cfg.FetchTimeout)
	sess := session.New(
		poller.New(client, cfg.PollInterval, cfg.FetchTimeout),
		finalizer.New(db),
	)

	// Initialize hub
	connectionHub := ws.NewHub()
	go connectionHub.Run(ctx)

	wsServer := ws.NewServer(cfg, connectionHub, sess)
	wsServer.Forward(ctx)

	server := handler.NewViewerServer(viewer.NewHandler(ctx, sess, client, db))
	server.Debug = cfg.LogLevel == "debug"
	server.GET("/ws", wsServer.HandleWebSocket)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ViewerPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start viewer server: %v", err)
		}
	}()

	log.Printf("Viewer API started on port %d", cfg.ViewerPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down trace viewer...")
	sess.Stop()
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown viewer server gracefully: %v", err)
	}

	log.Println("Trace viewer stopped")
}

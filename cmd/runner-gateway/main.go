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

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/gateway"
	"github.com/agentfleet/agentfleet/internal/policy"
)

func main() {
	// Load configuration
	cfg := config.LoadGateway()

	log.Printf("Starting runner gateway...")
	log.Printf("Local port: %d", cfg.LocalPort)
	log.Printf("Coordinator: %s", cfg.CoordinatorURL)
	log.Printf("Executor profile: %s", cfg.ExecutorProfile)

	// Initialize policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize coordinator client and gateway
	client := gateway.NewClient(cfg.CoordinatorURL, cfg.RunnerToken)
	gw := gateway.New(cfg, client, engine)

	// Local server for the executor subprocess only
	server := gw.NewServer()
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.LocalPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start gateway server: %v", err)
		}
	}()

	// Runner loop: register, heartbeat, poll, execute
	executor := &gateway.CommandExecutor{Command: cfg.ExecutorCommand}
	runner := gateway.NewRunner(cfg, client, gw, executor)
	go func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("Runner loop failed: %v", err)
		}
	}()

	log.Printf("Runner gateway started on 127.0.0.1:%d", cfg.LocalPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down runner gateway...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown gateway gracefully: %v", err)
	}

	log.Println("Runner gateway stopped")
}

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

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/config"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/hub"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/ingest"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/observability"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/policy"
	store "github.com/satori-chatbots/chatbot-dojo-sub000/internal/repository"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/runner"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/service"
	httpserver "github.com/satori-chatbots/chatbot-dojo-sub000/internal/transport/http"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/transport/rpc"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if cfg.LogLevel == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	log.Printf("Starting orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("RPC Port: %d", cfg.RPCPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Data dir: %s", cfg.DataDir)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Observability
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	execMetrics, err := observability.NewExecutionMetrics()
	if err != nil {
		log.Fatalf("Failed to create execution metrics: %v", err)
	}
	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy, policy.Limits{
		Technologies: cfg.AllowedTechnologies,
		MaxProfiles:  cfg.MaxProfiles,
		MaxActive:    cfg.MaxActiveExecutions,
	})
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Live progress hub
	h := hub.NewHub()
	go h.Run(ctx)

	// Initialize service
	registry := runner.NewDefaultRegistry(cfg.SimulatorBin, cfg.ExplorerBin)
	ingester := ingest.NewPipeline(db, cfg.ProfileCatalogDir)
	svc := service.New(db, registry, ingester, cfg, policyEngine, h, execMetrics)
	go svc.RunStaleExecutionSweeper(ctx)

	// HTTP + WebSocket server
	wsServer := ws.NewServer(cfg, h, svc)
	e := httpserver.NewServer(cfg, svc, wsServer, metricsHandler)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// JSON-RPC server
	rpcServer, err := rpc.NewServer(svc)
	if err != nil {
		log.Fatalf("Failed to create RPC server: %v", err)
	}
	go func() {
		addr := fmt.Sprintf(":%d", cfg.RPCPort)
		if err := rpcServer.Start(addr); err != nil {
			log.Fatalf("Failed to start RPC server: %v", err)
		}
	}()

	log.Printf("HTTP API started on port %d", cfg.HTTPPort)
	log.Printf("RPC API started on port %d", cfg.RPCPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.TerminationGrace+cfg.TerminationDeadline+10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown RPC server gracefully: %v", err)
	}
	if err := svc.Coordinator().Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to stop active executions: %v", err)
	}
	stop()

	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown metrics: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown tracer: %v", err)
	}

	log.Println("Orchestrator stopped")
}

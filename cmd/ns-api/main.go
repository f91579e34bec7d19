package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ConnSpectra/internal/analysis"
	"ConnSpectra/internal/config"
	"ConnSpectra/internal/logging"
	"ConnSpectra/internal/query"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	chCfg, ok := cfg.ClickHouse()
	if !ok {
		log.Fatalf("No enabled ClickHouse writer found in config. API server cannot start.")
	}

	querier, err := query.NewClickHouseQuerier(chCfg)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}
	defer querier.Close()

	apiHandler := &APIHandler{
		querier: querier,
		window:  analysis.Window{Begin: cfg.Analysis.AttackBegin, Finish: cfg.Analysis.AttackFinish},
	}

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: newRouter(apiHandler),
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// The gRPC port only carries the standard health service.
	var grpcServer *grpc.Server
	if cfg.API.GRPCListenAddr != "" {
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", cfg.API.GRPCListenAddr, err)
		}
		go func() {
			log.Printf("gRPC health server starting on %s", cfg.API.GRPCListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Printf("gRPC server stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}

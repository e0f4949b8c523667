package main

import (
	"fmt"
	"net"

	"market-feed/src/config"
	"market-feed/src/datafeed"
	pb "market-feed/src/grpc_control"
	"market-feed/src/interfaces"
	"market-feed/src/logger"

	"google.golang.org/grpc"
)

// -----------------------------------------------------------------------------

// startServers orchestrates the startup of all server components
func startServers(
	srv interfaces.IDataExchanger,
	feed *datafeed.Adapter,
	store interfaces.IBarStore,
	config *config.Config,
	configPath string,
	appLogger *logger.Logger,
) *grpc.Server {

	// 1. Gateway (REST + WebSocket)
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Gateway failed: %v", err)
		}
	}()

	// 2. gRPC Control Server
	grpcServer := grpc.NewServer()
	grpcLogger := logger.NewLogger(config, "ControlService")
	controlService := pb.NewControlService(config, configPath, feed, feed.Registry(), store, grpcLogger)
	pb.RegisterFeedControlServer(grpcServer, controlService)

	go func() {
		port := config.GrpcPort
		if port == 0 {
			port = 50051 // Default fallback
		}
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", config.GrpcHost, port))
		if err != nil {
			appLogger.Error("failed to listen for gRPC: %v", err)
			return
		}
		appLogger.Info("Starting gRPC Control Server on %s:%d", config.GrpcHost, port)
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Error("failed to serve gRPC: %v", err)
		}
	}()

	return grpcServer
}

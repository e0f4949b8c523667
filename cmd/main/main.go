package main

import (
	"flag"
	"fmt"
	"os"

	"market-feed/src/config"
	"market-feed/src/logger"
	"market-feed/src/server"
)

func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf, conf.Name)

	// 4. Setup Components
	store, err := setupStorage(conf.MConfig, appLogger)
	if err != nil {
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	}

	registry := setupRegistry(conf.MConfig, store, appLogger)
	transport := setupTransport(conf.MConfig, registry, appLogger)
	source := setupHistorySource(conf.MConfig, registry, store, appLogger)
	feed := setupDatafeed(conf.MConfig, transport, source, registry, appLogger)
	defer feed.Close()

	srv := server.NewGatewayServer(conf.MConfig, feed, logger.NewLogger(conf, "GatewayServer"))

	// 5. Start Servers
	grpcServer := startServers(srv, feed, store, conf, *configPath, appLogger)

	// 6. Run Main Loop (Blocking)
	appLogger.Info("Starting Main Feed Loop...")
	runFeedLoop(feed, store, srv, appLogger)

	appLogger.Info("Stopping servers...")
	grpcServer.GracefulStop()
	if err := srv.Stop(); err != nil {
		appLogger.Error("Gateway shutdown failed: %v", err)
	}
	appLogger.Info("Shutdown complete.")
}

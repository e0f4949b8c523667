package main

import (
	"market-feed/src/datafeed"
	"market-feed/src/history"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/network"
	"market-feed/src/simulator"
	"market-feed/src/storage"
	"market-feed/src/transport"
)

// -----------------------------------------------------------------------------

// setupStorage opens the bar store. A nil store means persistence is off.
func setupStorage(config *models.MConfig, appLogger *logger.Logger) (interfaces.IBarStore, error) {
	store, err := storage.NewBarStore(config.Storage, logger.NewLogger(config, "BarStore"))
	if err != nil {
		appLogger.Error("Failed to init storage: %v", err)
		return nil, err
	}
	if store == nil {
		appLogger.Info("Storage disabled")
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// setupRegistry builds the symbol catalogue from the config and any symbols
// registered at runtime in earlier sessions.
func setupRegistry(config *models.MConfig, store interfaces.IBarStore, appLogger *logger.Logger) *datafeed.Registry {
	registry := datafeed.NewRegistry(config.Symbols, logger.NewLogger(config, "Registry"))

	if store == nil {
		return registry
	}
	if err := store.RegisterSymbols(config.Symbols); err != nil {
		appLogger.Warning("Failed to register configured symbols: %v", err)
	}
	stored, err := store.LoadSymbols()
	if err != nil {
		appLogger.Warning("Failed to load stored symbols: %v", err)
		return registry
	}
	if n := registry.Add(stored...); n > 0 {
		appLogger.Info("Restored %d symbols from storage", n)
	}
	return registry
}

// -----------------------------------------------------------------------------

// setupTransport picks the simulator or the upstream WebSocket endpoint.
func setupTransport(config *models.MConfig, registry *datafeed.Registry, appLogger *logger.Logger) interfaces.ITransport {
	if config.Simulator.Enabled {
		appLogger.Info("Using simulated feed (seed %d, tick every %dms)", config.Simulator.Seed, config.Simulator.TickIntervalMs)
		feed := simulator.NewFeed(config.Simulator, registry.Symbols(), logger.NewLogger(config, "FeedSimulator"))
		feed.SetLookup(registry.LookupTicker)
		return feed
	}
	appLogger.Info("Using upstream feed at %s", config.Feed.WsURL)
	return transport.NewWebSocketTransport(config.Feed.WsURL)
}

// -----------------------------------------------------------------------------

// setupHistorySource picks the history backend and puts the store in front of
// it when persistence is on.
func setupHistorySource(config *models.MConfig, registry *datafeed.Registry, store interfaces.IBarStore, appLogger *logger.Logger) interfaces.IHistorySource {
	var source interfaces.IHistorySource
	if config.Simulator.Enabled {
		sim := simulator.NewHistorySource(config.Simulator, registry.Symbols(), logger.NewLogger(config, "HistorySimulator"))
		sim.SetLookup(registry.LookupTicker)
		source = sim
	} else {
		networkManager := network.NewAsyncNetworkManager(config.History, logger.NewLogger(config, "NetworkManager"))
		source = history.NewRestSource(config.History, networkManager, logger.NewLogger(config, "RestSource"))
	}

	if store != nil {
		appLogger.Info("Caching history pages from %s", source.Name())
		return storage.NewCachedSource(source, store, logger.NewLogger(config, "CachedSource"))
	}
	return source
}

// -----------------------------------------------------------------------------

func setupDatafeed(config *models.MConfig, transport interfaces.ITransport, source interfaces.IHistorySource, registry *datafeed.Registry, appLogger *logger.Logger) *datafeed.Adapter {
	appLogger.Info("Initializing datafeed for %d symbols", len(registry.Symbols()))
	return datafeed.NewFromConfig(config, transport, source, registry, logger.NewLogger(config, "Datafeed"))
}

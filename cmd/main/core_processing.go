package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-feed/src/datafeed"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
)

const (
	statusInterval  = 5 * time.Second
	cleanupInterval = time.Hour
)

// -----------------------------------------------------------------------------

// runFeedLoop pushes feed status to gateway clients and prunes the store until
// the process is signalled.
func runFeedLoop(
	feed *datafeed.Adapter,
	store interfaces.IBarStore,
	srv interfaces.IDataExchanger,
	appLogger *logger.Logger,
) {

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	lastState := ""
	for {
		select {
		case <-statusTicker.C:
			st := feed.Status()
			if st.State != lastState {
				appLogger.Info("Feed state: %s (attempts %d, streams %d)", st.State, st.Attempts, len(st.Streams))
				lastState = st.State
			}
			srv.Broadcast(st)

		case <-cleanupTicker.C:
			if store == nil {
				continue
			}
			if err := store.CleanupOldData(); err != nil {
				appLogger.Warning("Storage cleanup failed: %v", err)
			}

		case <-quit:
			appLogger.Info("Shutting down...")
			return
		}
	}
}

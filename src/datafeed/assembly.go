package datafeed

import (
	"time"

	"market-feed/src/connection"
	"market-feed/src/dispatcher"
	"market-feed/src/history"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/multiplexer"
)

// NewFromConfig builds the connection manager, dispatcher, multiplexer and
// history fetcher around an injected transport and history source.
func NewFromConfig(cfg *models.MConfig, transport interfaces.ITransport, source interfaces.IHistorySource, registry *Registry, log *logger.Logger) *Adapter {
	manager := connection.NewManager(transport, connection.OptionsFromConfig(cfg.Feed), log.Named("ConnectionManager"))
	d := dispatcher.NewDispatcher(time.Duration(cfg.Feed.ThrottleMs)*time.Millisecond, log.Named("Dispatcher"))
	mux := multiplexer.NewMultiplexer(manager, d, log.Named("Multiplexer"))
	fetcher := history.NewFetcher(source, cfg.History, log.Named("HistoryFetcher"))

	a := NewAdapter(registry, manager, mux, fetcher, log)
	a.onClose = d.Close
	return a
}

package datafeed

import (
	"context"
	"errors"
	"fmt"

	"market-feed/src/connection"
	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/multiplexer"
	"market-feed/src/utils"
)

// Connection is the part of connection.Manager the adapter drives.
type Connection interface {
	Connect(ctx context.Context) error
	Close() error
	Reset() bool
	State() connection.State
	Attempts() int
}

// Subscriptions is the part of multiplexer.Multiplexer the adapter drives.
type Subscriptions interface {
	Subscribe(symbol, resolution, subscriberID string, h multiplexer.Handlers) error
	Unsubscribe(subscriberID string)
	Has(subscriberID string) bool
	Streams() []models.MStreamStatus
}

// HistoryFetcher answers GetBars.
type HistoryFetcher interface {
	FetchBars(ctx context.Context, symbol models.MSymbol, resolution string, period models.MPeriodParams) (models.MHistoryResult, error)
}

// -----------------------------------------------------------------------------

// Adapter is the charting-widget facing datafeed. It owns one connection and
// one multiplexer for its lifetime.
type Adapter struct {
	registry *Registry
	conn     Connection
	subs     Subscriptions
	history  HistoryFetcher
	log      *logger.Logger
	onClose  func()
}

// -----------------------------------------------------------------------------

func NewAdapter(registry *Registry, conn Connection, subs Subscriptions, history HistoryFetcher, log *logger.Logger) *Adapter {
	return &Adapter{
		registry: registry,
		conn:     conn,
		subs:     subs,
		history:  history,
		log:      log,
	}
}

// -----------------------------------------------------------------------------

// Registry exposes the symbol catalogue.
func (a *Adapter) Registry() *Registry {
	return a.registry
}

// -----------------------------------------------------------------------------

// OnReady reports the datafeed capabilities. The future always completes on
// another goroutine.
func (a *Adapter) OnReady() *utils.Future[models.MDatafeedConfiguration] {
	return utils.Async(func() (models.MDatafeedConfiguration, error) {
		return models.MDatafeedConfiguration{
			SupportedResolutions: append([]string(nil), DefaultResolutions...),
			Exchanges:            a.registry.Exchanges(),
			SymbolTypes:          a.registry.Types(),
			SupportsSearch:       true,
			SupportsGroupRequest: false,
			SupportsTime:         true,
		}, nil
	})
}

// -----------------------------------------------------------------------------

func (a *Adapter) SearchSymbols(query, exchange, symbolType string) []models.MSymbol {
	return a.registry.Search(query, exchange, symbolType)
}

// -----------------------------------------------------------------------------

// ResolveSymbol fails with a SymbolNotFoundError when name is unknown.
func (a *Adapter) ResolveSymbol(name string) *utils.Future[models.MSymbol] {
	return utils.Async(func() (models.MSymbol, error) {
		sym, err := a.registry.Resolve(name)
		if err != nil {
			a.log.Warning("Resolve '%s' failed: %v", name, err)
		}
		return sym, err
	})
}

// -----------------------------------------------------------------------------

// GetBars fetches history for one window. Every failure, a panic included,
// completes the future with a HistoryFetchError.
func (a *Adapter) GetBars(ctx context.Context, symbol models.MSymbol, resolution string, period models.MPeriodParams) *utils.Future[models.MHistoryResult] {
	return utils.Async(func() (models.MHistoryResult, error) {
		op := fmt.Sprintf("%s %s", symbol.FullName(), resolution)
		if !symbol.SupportsResolution(resolution) {
			return models.MHistoryResult{}, helpers.NewHistoryFetchError(op, fmt.Errorf("unsupported resolution '%s'", resolution))
		}

		var (
			res models.MHistoryResult
			err error
		)
		if perr := helpers.SafeCall(func() {
			res, err = a.history.FetchBars(ctx, symbol, resolution, period)
		}); perr != nil {
			err = perr
		}
		if err != nil {
			var hfe *helpers.HistoryFetchError
			if !errors.As(err, &hfe) {
				err = helpers.NewHistoryFetchError(op, err)
			}
			a.log.Error("GetBars %s: %v", op, err)
			return models.MHistoryResult{}, err
		}
		return res, nil
	})
}

// -----------------------------------------------------------------------------

// SubscribeBars attaches a realtime subscriber and makes sure the shared
// connection is running. A uid already in use is replaced. When the
// connection has exhausted its retries the subscriber's OnError runs at once.
func (a *Adapter) SubscribeBars(symbol models.MSymbol, resolution, subscriberUID string, h multiplexer.Handlers) error {
	if h.OnRealtime == nil {
		return fmt.Errorf("subscribe %s: OnRealtime handler is required", subscriberUID)
	}
	if !symbol.SupportsResolution(resolution) {
		return fmt.Errorf("subscribe %s: %s does not support resolution '%s'", subscriberUID, symbol.FullName(), resolution)
	}

	if a.subs.Has(subscriberUID) {
		a.log.Warning("Subscriber %s already registered, replacing it", subscriberUID)
		a.subs.Unsubscribe(subscriberUID)
	}

	// The upstream wire identifies instruments by ticker.
	if err := a.subs.Subscribe(symbol.Ticker, resolution, subscriberUID, h); err != nil {
		return err
	}

	if err := a.conn.Connect(context.Background()); err != nil {
		if !errors.Is(err, helpers.ErrReconnectExhausted) {
			return err
		}
		a.log.Warning("Subscriber %s attached while the connection is exhausted", subscriberUID)
		if h.OnError != nil {
			if cbErr := helpers.SafeCall(func() { h.OnError(err) }); cbErr != nil {
				a.log.Error("Subscriber %s error callback failed: %v", subscriberUID, cbErr)
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// UnsubscribeBars is safe for unknown ids and while a GetBars is in flight.
func (a *Adapter) UnsubscribeBars(subscriberUID string) {
	a.subs.Unsubscribe(subscriberUID)
}

// -----------------------------------------------------------------------------

// Status is a snapshot for the control plane and health checks.
func (a *Adapter) Status() models.MFeedStatus {
	return models.MFeedStatus{
		State:    a.conn.State().String(),
		Attempts: a.conn.Attempts(),
		Streams:  a.subs.Streams(),
	}
}

// -----------------------------------------------------------------------------

// Reconnect clears an exhausted connection and dials again. Registered
// subscriptions are replayed once it opens.
func (a *Adapter) Reconnect(ctx context.Context) error {
	if a.conn.Reset() {
		a.log.Info("Connection reset by operator")
	}
	return a.conn.Connect(ctx)
}

// -----------------------------------------------------------------------------

func (a *Adapter) Close() error {
	err := a.conn.Close()
	if a.onClose != nil {
		a.onClose()
	}
	return err
}

// -----------------------------------------------------------------------------

// AnyMarketOpen reports whether any catalogued market is trading now.
func (a *Adapter) AnyMarketOpen() bool {
	return a.registry.AnyMarketOpen()
}

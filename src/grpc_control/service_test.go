package grpc_control

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"market-feed/src/config"
	"market-feed/src/datafeed"
	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const controlYAML = `
name: market-feed
host: 127.0.0.1
port: 8000
simulator:
  enabled: true
symbols:
  - ticker: EURUSD
    exchange: FX
    type: forex
    price_precision: 5
`

type fakeFeed struct {
	mu         sync.Mutex
	state      string
	reconnects int
	failWith   error
}

func (f *fakeFeed) Status() models.MFeedStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.MFeedStatus{
		State:    f.state,
		Attempts: 4,
		Streams:  []models.MStreamStatus{{Symbol: "EURUSD", Resolution: "1", Subscribers: 2}},
	}
}

func (f *fakeFeed) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	if f.failWith != nil {
		f.state = "error"
		return f.failWith
	}
	f.state = "connected"
	return nil
}

func (f *fakeFeed) AnyMarketOpen() bool { return true }

// -----------------------------------------------------------------------------

type fixture struct {
	client FeedControlClient
	feed   *fakeFeed
	svc    *ControlService
	path   string
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	log := logger.NewWriterLogger(io.Discard, "control-test", logger.LevelError)

	cfg, err := config.Parse([]byte(controlYAML))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")

	var store *storage.AsyncSQLiteDB
	feed := &fakeFeed{state: "error"}
	registry := datafeed.NewRegistry(cfg.Symbols, log)
	svc := NewControlService(cfg, path, feed, registry, nil, log)
	if withStore {
		store, err = storage.NewAsyncSQLiteDB(models.MStorageConfig{
			DBType: "sqlite",
			DBPath: filepath.Join(t.TempDir(), "feed.db"),
		}, log)
		require.NoError(t, err)
		require.NoError(t, store.Initialize())
		t.Cleanup(func() { store.Close() })
		svc.Store = store
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterFeedControlServer(srv, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &fixture{client: NewFeedControlClient(conn), feed: feed, svc: svc, path: path}
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// -----------------------------------------------------------------------------

func TestGetStatus(t *testing.T) {
	f := newFixture(t, false)

	resp, err := f.client.GetStatus(callCtx(t), &Empty{})
	require.NoError(t, err)
	assert.Equal(t, "error", resp.State)
	assert.Equal(t, int32(4), resp.Attempts)
	assert.True(t, resp.MarketsOpen)
	require.Len(t, resp.Streams, 1)
	assert.Equal(t, 2, resp.Streams[0].Subscribers)
}

func TestReconnect(t *testing.T) {
	f := newFixture(t, false)

	resp, err := f.client.Reconnect(callCtx(t), &Empty{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "connected", resp.CurrentState)
	assert.Equal(t, 1, f.feed.reconnects)
}

func TestReconnectFailureIsReportedInBody(t *testing.T) {
	f := newFixture(t, false)
	f.feed.failWith = errors.New("dial refused")

	resp, err := f.client.Reconnect(callCtx(t), &Empty{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "dial refused")
	assert.Equal(t, "error", resp.CurrentState)
}

func TestListSymbols(t *testing.T) {
	f := newFixture(t, false)

	resp, err := f.client.ListSymbols(callCtx(t), &Empty{})
	require.NoError(t, err)
	require.Len(t, resp.Symbols, 1)
	assert.Equal(t, "FX:EURUSD", resp.Symbols[0].FullName())
}

func TestAddSymbolsValidation(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.client.AddSymbols(callCtx(t), &AddSymbolsRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = f.client.AddSymbols(callCtx(t), &AddSymbolsRequest{Symbols: []models.MSymbol{{Exchange: "FX"}}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAddSymbolsPersists(t *testing.T) {
	f := newFixture(t, true)

	resp, err := f.client.AddSymbols(callCtx(t), &AddSymbolsRequest{Symbols: []models.MSymbol{
		{Ticker: "EURUSD", Exchange: "FX", Type: "forex", PricePrecision: 5},
		{Ticker: "BTCUSD", Exchange: "BINANCE", Type: "crypto", PricePrecision: 2},
	}})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(2), resp.SymbolCount)

	list, err := f.client.ListSymbols(callCtx(t), &Empty{})
	require.NoError(t, err)
	assert.Len(t, list.Symbols, 2)

	stored, err := f.svc.Store.LoadSymbols()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "BINANCE:BTCUSD", stored[0].FullName())

	reloaded, err := config.NewConfig(f.path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Symbols, 2)
}

func TestAddSymbolsKnownOnly(t *testing.T) {
	f := newFixture(t, false)

	resp, err := f.client.AddSymbols(callCtx(t), &AddSymbolsRequest{Symbols: []models.MSymbol{
		{Ticker: "eurusd", Exchange: "fx"},
	}})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(1), resp.SymbolCount)
}

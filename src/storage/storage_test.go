package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.NewWriterLogger(io.Discard, "storage-test", logger.LevelDebug)
}

func openSQLite(t *testing.T, retention int) *AsyncSQLiteDB {
	t.Helper()
	cfg := models.MStorageConfig{
		DBType:        "sqlite",
		DBPath:        filepath.Join(t.TempDir(), "bars.db"),
		RetentionDays: retention,
	}
	db, err := NewAsyncSQLiteDB(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func minuteBars(start int64, n int, price float64) []models.MBar {
	bars := make([]models.MBar, n)
	for i := range bars {
		p := price + float64(i)
		bars[i] = models.MBar{Time: start + int64(i)*60, Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 1}
	}
	return bars
}

// -----------------------------------------------------------------------------

func TestSQLiteSaveAndLoadBars(t *testing.T) {
	db := openSQLite(t, 30)
	start := int64(1_700_000_040)

	require.NoError(t, db.SaveBars("BINANCE:BTCUSDT", "1", minuteBars(start, 10, 100)))

	all, err := db.LoadBars("BINANCE:BTCUSDT", "1", 0, start+10*60, 0)
	require.NoError(t, err)
	require.Len(t, all, 10)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Time, all[i].Time)
	}

	newest, err := db.LoadBars("BINANCE:BTCUSDT", "1", 0, start+10*60, 3)
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, start+7*60, newest[0].Time)
	assert.Equal(t, start+9*60, newest[2].Time)

	window, err := db.LoadBars("BINANCE:BTCUSDT", "1", start+2*60, start+4*60, 0)
	require.NoError(t, err)
	assert.Len(t, window, 3)

	other, err := db.LoadBars("BINANCE:BTCUSDT", "5", 0, start+10*60, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

// -----------------------------------------------------------------------------

func TestSQLiteSaveBarsUpserts(t *testing.T) {
	db := openSQLite(t, 30)
	start := int64(1_700_000_040)

	require.NoError(t, db.SaveBars("X", "1", minuteBars(start, 1, 100)))
	require.NoError(t, db.SaveBars("X", "1", []models.MBar{{Time: start, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 9}}))

	bars, err := db.LoadBars("X", "1", start, start, 0)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, 9.0, bars[0].Volume)
}

// -----------------------------------------------------------------------------

func TestSQLiteSymbolsRoundTrip(t *testing.T) {
	db := openSQLite(t, 30)

	symbols := []models.MSymbol{
		{Ticker: "EURUSD", Exchange: "FX", Type: "forex", Description: "Euro", PricePrecision: 5, BasePrice: 1.1, SupportedResolutions: []string{"1", "5", "1D"}},
		{Ticker: "BTCUSDT", Exchange: "BINANCE", Type: "crypto", PricePrecision: 2},
	}
	require.NoError(t, db.RegisterSymbols(symbols))

	symbols[0].Description = "Euro / US Dollar"
	require.NoError(t, db.RegisterSymbols(symbols[:1]))

	loaded, err := db.LoadSymbols()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "BINANCE:BTCUSDT", loaded[0].FullName())
	assert.Empty(t, loaded[0].SupportedResolutions)
	assert.Equal(t, "FX:EURUSD", loaded[1].FullName())
	assert.Equal(t, "Euro / US Dollar", loaded[1].Description)
	assert.Equal(t, []string{"1", "5", "1D"}, loaded[1].SupportedResolutions)
	assert.Equal(t, 5, loaded[1].PricePrecision)
}

// -----------------------------------------------------------------------------

func TestSQLiteCleanupOldData(t *testing.T) {
	db := openSQLite(t, 30)
	now := time.Now().Unix() / 60 * 60
	old := now - 40*86400

	require.NoError(t, db.SaveBars("X", "1", minuteBars(old, 2, 1)))
	require.NoError(t, db.SaveBars("X", "1", minuteBars(now-120, 2, 1)))
	require.NoError(t, db.CleanupOldData())

	bars, err := db.LoadBars("X", "1", 0, now+60, 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, now-120, bars[0].Time)
}

// -----------------------------------------------------------------------------

func TestNewBarStore(t *testing.T) {
	store, err := NewBarStore(models.MStorageConfig{DBType: "none"}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = NewBarStore(models.MStorageConfig{DBType: "mongo"}, testLogger())
	assert.Error(t, err)

	store, err = NewBarStore(models.MStorageConfig{DBType: "sqlite", DBPath: filepath.Join(t.TempDir(), "f.db")}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Close())
}

// -----------------------------------------------------------------------------

func TestSchemaName(t *testing.T) {
	assert.Equal(t, "market_feed", schemaName("/usr/local/bin/market-feed"))
	assert.Equal(t, "feed", schemaName("feed.exe"))
	assert.Equal(t, "market_feed", schemaName(""))
}

// -----------------------------------------------------------------------------
// CachedSource
// -----------------------------------------------------------------------------

type stubSource struct {
	page  models.MHistoryPage
	err   error
	calls int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchPage(ctx context.Context, req models.MHistoryPageRequest) (models.MHistoryPage, error) {
	s.calls++
	return s.page, s.err
}

var btc = models.MSymbol{Ticker: "BTCUSDT", Exchange: "BINANCE", Type: "crypto"}

func TestCachedSourceStoresFetchedPages(t *testing.T) {
	db := openSQLite(t, 30)
	start := int64(1_700_000_040)
	src := &stubSource{page: models.MHistoryPage{Data: minuteBars(start*1000, 1, 5)}}
	cached := NewCachedSource(src, db, testLogger())

	page, err := cached.FetchPage(context.Background(), models.MHistoryPageRequest{Symbol: btc, Resolution: "1", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, "stub+cache", cached.Name())

	stored, err := db.LoadBars("BINANCE:BTCUSDT", "1", 0, start+60, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, start, stored[0].Time)
}

// -----------------------------------------------------------------------------

func TestCachedSourceFallsBackOnFailure(t *testing.T) {
	db := openSQLite(t, 30)
	start := int64(1_700_000_040)
	require.NoError(t, db.SaveBars("BINANCE:BTCUSDT", "1", minuteBars(start, 5, 100)))

	src := &stubSource{err: errors.New("upstream down")}
	cached := NewCachedSource(src, db, testLogger())

	page, err := cached.FetchPage(context.Background(), models.MHistoryPageRequest{
		Symbol: btc, Resolution: "1", Limit: 2, ToTs: start + 3*60,
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, start+2*60, page.TimeFrom)
	assert.Equal(t, start+3*60, page.TimeTo)
}

// -----------------------------------------------------------------------------

func TestCachedSourceResamplesBaseBars(t *testing.T) {
	db := openSQLite(t, 30)
	start := int64(1_700_000_100) / 300 * 300
	require.NoError(t, db.SaveBars("BINANCE:BTCUSDT", "1", minuteBars(start, 10, 100)))

	src := &stubSource{page: models.MHistoryPage{Response: "Error", Message: "rate limited"}}
	cached := NewCachedSource(src, db, testLogger())

	page, err := cached.FetchPage(context.Background(), models.MHistoryPageRequest{
		Symbol: btc, Resolution: "5", Limit: 10, ToTs: start + 10*60,
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)

	first := page.Data[0]
	assert.Equal(t, start, first.Time)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 104.5, first.Close)
	assert.Equal(t, 105.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 5.0, first.Volume)
}

// -----------------------------------------------------------------------------

func TestCachedSourceEmptyCacheKeepsError(t *testing.T) {
	db := openSQLite(t, 30)
	boom := errors.New("upstream down")
	cached := NewCachedSource(&stubSource{err: boom}, db, testLogger())

	_, err := cached.FetchPage(context.Background(), models.MHistoryPageRequest{Symbol: btc, Resolution: "60", Limit: 5, ToTs: 1_700_000_000})
	assert.ErrorIs(t, err, boom)
}

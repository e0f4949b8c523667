package multiplexer

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market-feed/src/connection"
	"market-feed/src/dispatcher"
	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	mu        sync.Mutex
	sent      []models.MControlMessage
	onMessage func(models.MInboundMessage)
	onLife    func(connection.Event)
}

func (u *fakeUpstream) Send(msg models.MControlMessage) error {
	u.mu.Lock()
	u.sent = append(u.sent, msg)
	u.mu.Unlock()
	return nil
}

func (u *fakeUpstream) OnMessage(h func(models.MInboundMessage)) { u.onMessage = h }
func (u *fakeUpstream) OnLifecycle(h func(connection.Event))    { u.onLife = h }

func (u *fakeUpstream) messages(kind string) []models.MControlMessage {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []models.MControlMessage
	for _, m := range u.sent {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func (u *fakeUpstream) tick(symbol string, ts int64, price float64) {
	u.onMessage(models.MInboundMessage{Type: models.MsgPriceUpdate, Symbol: symbol, Timestamp: ts, Price: &price})
}

type bars struct {
	mu  sync.Mutex
	got []models.MBar
}

func (b *bars) add(bar models.MBar) {
	b.mu.Lock()
	b.got = append(b.got, bar)
	b.mu.Unlock()
}

func (b *bars) all() []models.MBar {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.MBar(nil), b.got...)
}

func newTestMultiplexer(online bool) (*Multiplexer, *fakeUpstream) {
	log := logger.NewWriterLogger(io.Discard, "multiplexer", logger.LevelDebug)
	up := &fakeUpstream{}
	m := NewMultiplexer(up, dispatcher.NewDispatcher(0, log), log)
	if online {
		up.onLife(connection.Event{Kind: connection.EventConnected, At: time.Now()})
	}
	return m, up
}

// -----------------------------------------------------------------------------

func TestOneUpstreamSubscribePerKey(t *testing.T) {
	m, up := newTestMultiplexer(true)

	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{}))
	require.NoError(t, m.Subscribe("EURUSD", "1", "s2", Handlers{}))
	require.NoError(t, m.Subscribe("EURUSD", "5", "s3", Handlers{}))

	subs := up.messages(models.CtrlSubscribe)
	require.Len(t, subs, 2)
	assert.Equal(t, "EURUSD", subs[0].Symbol)

	m.Unsubscribe("s1")
	assert.Empty(t, up.messages(models.CtrlUnsubscribe))
	m.Unsubscribe("s2")
	m.Unsubscribe("s2")
	m.Unsubscribe("never-registered")

	unsubs := up.messages(models.CtrlUnsubscribe)
	require.Len(t, unsubs, 1)
	assert.Equal(t, models.MControlMessage{Type: models.CtrlUnsubscribe, Symbol: "EURUSD", Resolution: "1", ID: subs[0].ID}, unsubs[0])

	assert.Equal(t, []models.MStreamStatus{{Symbol: "EURUSD", Resolution: "5", Subscribers: 1}}, m.Streams())
}

func TestDuplicateSubscriberRejected(t *testing.T) {
	m, _ := newTestMultiplexer(true)
	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{}))
	assert.ErrorIs(t, m.Subscribe("BTCUSD", "1", "s1", Handlers{}), helpers.ErrDuplicateSubscriber)
}

func TestOfflineSubscriptionsAreSentOnConnect(t *testing.T) {
	m, up := newTestMultiplexer(false)

	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{}))
	require.NoError(t, m.Subscribe("BTCUSD", "1", "s2", Handlers{}))
	require.NoError(t, m.Subscribe("XAUUSD", "1", "s3", Handlers{}))
	m.Unsubscribe("s3")
	assert.Empty(t, up.sent)

	up.onLife(connection.Event{Kind: connection.EventConnected, At: time.Now()})
	assert.Len(t, up.messages(models.CtrlSubscribe), 2)
	assert.Empty(t, up.messages(models.CtrlUnsubscribe))
}

func TestReplayOnReconnect(t *testing.T) {
	m, up := newTestMultiplexer(true)
	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{}))
	require.NoError(t, m.Subscribe("EURUSD", "1", "s2", Handlers{}))
	require.NoError(t, m.Subscribe("BTCUSD", "1D", "s3", Handlers{}))
	require.Len(t, up.messages(models.CtrlSubscribe), 2)

	now := time.Now()
	up.onLife(connection.Event{Kind: connection.EventDisconnected, Err: io.EOF, At: now})
	m.Unsubscribe("s3")
	assert.Empty(t, up.messages(models.CtrlUnsubscribe))

	up.onLife(connection.Event{Kind: connection.EventConnected, Reconnect: true, At: now.Add(time.Second)})
	subs := up.messages(models.CtrlSubscribe)
	require.Len(t, subs, 3)
	assert.Equal(t, "EURUSD", subs[2].Symbol)
}

func TestTicksAggregateIntoBars(t *testing.T) {
	m, up := newTestMultiplexer(true)
	got := &bars{}
	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{OnRealtime: got.add}))

	t0 := int64(1_700_000_040)
	bucket := (t0 / 60) * 60
	up.tick("EURUSD", t0, 1.0850)
	up.tick("EURUSD", t0+10, 1.0852)
	up.tick("EURUSD", t0+40, 1.0849)
	up.tick("EURUSD", bucket+60, 1.0851)
	up.tick("GBPUSD", bucket+60, 1.3)

	all := got.all()
	require.Len(t, all, 5)
	assert.Equal(t, models.MBar{Time: bucket, Open: 1.0850, High: 1.0852, Low: 1.0849, Close: 1.0849}, all[3])
	assert.Equal(t, bucket+60, all[4].Time)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i].Time, all[i-1].Time)
	}
}

func TestSubscribersOfOneKeyKeepSeparateAggregators(t *testing.T) {
	m, up := newTestMultiplexer(true)
	early, late := &bars{}, &bars{}
	require.NoError(t, m.Subscribe("EURUSD", "1", "early", Handlers{OnRealtime: early.add}))
	up.tick("EURUSD", 60, 1.0)
	require.NoError(t, m.Subscribe("EURUSD", "1", "late", Handlers{OnRealtime: late.add}))
	up.tick("EURUSD", 61, 2.0)

	assert.Equal(t, 1.0, early.all()[1].Open)
	assert.Equal(t, 2.0, late.all()[0].Open)
}

func TestNoCallbackAfterUnsubscribe(t *testing.T) {
	m, up := newTestMultiplexer(true)
	var calls atomic.Int32
	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{OnRealtime: func(models.MBar) { calls.Add(1) }}))
	m.Unsubscribe("s1")

	time.Sleep(time.Millisecond)
	up.tick("EURUSD", 60, 1.0)
	assert.Equal(t, int32(0), calls.Load())
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	m, up := newTestMultiplexer(true)
	got := &bars{}
	require.NoError(t, m.Subscribe("EURUSD", "1", "bad", Handlers{OnRealtime: func(models.MBar) { panic("boom") }}))
	require.NoError(t, m.Subscribe("EURUSD", "1", "good", Handlers{OnRealtime: got.add}))

	assert.NotPanics(t, func() { up.tick("EURUSD", 60, 1.0) })
	assert.Len(t, got.all(), 1)
}

func TestPriceUpdateWithoutPriceIsDropped(t *testing.T) {
	m, up := newTestMultiplexer(true)
	got := &bars{}
	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{OnRealtime: got.add}))

	up.onMessage(models.MInboundMessage{Type: models.MsgPriceUpdate, Symbol: "EURUSD", Timestamp: 60})
	up.onMessage(models.MInboundMessage{Type: models.MsgSubscriptionSuccess, Symbol: "EURUSD"})
	assert.Empty(t, got.all())
}

func TestResetCacheAfterLongOutage(t *testing.T) {
	m, up := newTestMultiplexer(true)
	var minuteResets, dailyResets atomic.Int32
	require.NoError(t, m.Subscribe("EURUSD", "1", "m", Handlers{OnResetCache: func() { minuteResets.Add(1) }}))
	require.NoError(t, m.Subscribe("EURUSD", "1D", "d", Handlers{OnResetCache: func() { dailyResets.Add(1) }}))

	now := time.Now()
	up.onLife(connection.Event{Kind: connection.EventDisconnected, At: now})
	up.onLife(connection.Event{Kind: connection.EventConnected, Reconnect: true, At: now.Add(10 * time.Second)})
	assert.Equal(t, int32(0), minuteResets.Load())

	up.onLife(connection.Event{Kind: connection.EventDisconnected, At: now})
	up.onLife(connection.Event{Kind: connection.EventConnected, Reconnect: true, At: now.Add(2 * time.Minute)})
	assert.Equal(t, int32(1), minuteResets.Load())
	assert.Equal(t, int32(0), dailyResets.Load())
}

func TestFatalReachesEverySubscriber(t *testing.T) {
	m, up := newTestMultiplexer(true)
	var mu sync.Mutex
	var errs []error
	onErr := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	require.NoError(t, m.Subscribe("EURUSD", "1", "s1", Handlers{OnError: onErr}))
	require.NoError(t, m.Subscribe("BTCUSD", "1", "s2", Handlers{OnError: onErr}))

	fatal := helpers.NewReconnectExhausted(3, errors.New("refused"))
	up.onLife(connection.Event{Kind: connection.EventFatal, Err: fatal, At: time.Now()})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, helpers.ErrReconnectExhausted)
	}
	assert.True(t, m.Has("s1"))
}

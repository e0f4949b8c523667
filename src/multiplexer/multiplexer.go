package multiplexer

import (
	"sort"
	"strings"
	"sync"
	"time"

	"market-feed/src/analysis"
	"market-feed/src/connection"
	"market-feed/src/dispatcher"
	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"
)

// Upstream is the shared live connection.
type Upstream interface {
	Send(msg models.MControlMessage) error
	OnMessage(handler func(models.MInboundMessage))
	OnLifecycle(handler func(connection.Event))
}

// Handlers are the per-subscription callbacks. Only OnRealtime is required.
type Handlers struct {
	OnRealtime   func(models.MBar)
	OnResetCache func()
	OnError      func(error)
}

type streamKey struct {
	symbol     string
	resolution string
}

type subscription struct {
	id         string
	key        streamKey
	handlers   Handlers
	aggregator *analysis.BarAggregator
}

// stream is one counted upstream subscription.
type stream struct {
	id          uint64
	count       int
	interval    int64
	subscribers map[string]*subscription
}

// -----------------------------------------------------------------------------

// Multiplexer maps many subscriptions onto one upstream connection. The
// reference count change and the matching upstream send happen under one lock.
type Multiplexer struct {
	upstream   Upstream
	dispatcher *dispatcher.Dispatcher
	log        *logger.Logger

	mu           sync.Mutex
	streams      map[streamKey]*stream
	subs         map[string]*subscription
	online       bool
	offlineSince time.Time
	nextID       uint64
}

// -----------------------------------------------------------------------------

func NewMultiplexer(upstream Upstream, d *dispatcher.Dispatcher, log *logger.Logger) *Multiplexer {
	m := &Multiplexer{
		upstream:   upstream,
		dispatcher: d,
		log:        log,
		streams:    make(map[streamKey]*stream),
		subs:       make(map[string]*subscription),
	}
	upstream.OnMessage(m.handleMessage)
	upstream.OnLifecycle(m.handleLifecycle)
	return m
}

// -----------------------------------------------------------------------------

// Subscribe registers subscriberID on (symbol, resolution). Only the first
// subscriber of a key produces upstream traffic.
func (m *Multiplexer) Subscribe(symbol, resolution, subscriberID string, h Handlers) error {
	key := streamKey{symbol: symbol, resolution: resolution}
	interval := analysis.IntervalFor(m.log, resolution)

	sub := &subscription{
		id:         subscriberID,
		key:        key,
		handlers:   h,
		aggregator: analysis.NewBarAggregator(interval),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subs[subscriberID]; exists {
		return helpers.ErrDuplicateSubscriber
	}
	if err := m.dispatcher.Register(subscriberID, m.realtime(sub)); err != nil {
		return err
	}

	st, ok := m.streams[key]
	if !ok {
		m.nextID++
		st = &stream{id: m.nextID, interval: interval, subscribers: make(map[string]*subscription)}
		m.streams[key] = st
	}
	st.count++
	st.subscribers[subscriberID] = sub
	m.subs[subscriberID] = sub

	if st.count == 1 && m.online {
		m.send(models.CtrlSubscribe, key, st.id)
	}
	m.log.Debug("Subscriber %s on %s/%s (count=%d)", subscriberID, symbol, resolution, st.count)
	return nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes subscriberID. Unknown ids are a no-op. No callback for
// the subscriber runs after it returns.
func (m *Multiplexer) Unsubscribe(subscriberID string) {
	m.mu.Lock()
	sub, ok := m.subs[subscriberID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subs, subscriberID)

	st := m.streams[sub.key]
	delete(st.subscribers, subscriberID)
	st.count--
	if st.count == 0 {
		delete(m.streams, sub.key)
		if m.online {
			m.send(models.CtrlUnsubscribe, sub.key, st.id)
		}
	}
	m.mu.Unlock()

	m.dispatcher.Cancel(subscriberID)
	m.log.Debug("Subscriber %s removed from %s/%s", subscriberID, sub.key.symbol, sub.key.resolution)
}

// -----------------------------------------------------------------------------

// Has reports whether subscriberID is registered.
func (m *Multiplexer) Has(subscriberID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[subscriberID]
	return ok
}

// Streams returns the counted upstream streams ordered by symbol and resolution.
func (m *Multiplexer) Streams() []models.MStreamStatus {
	m.mu.Lock()
	out := make([]models.MStreamStatus, 0, len(m.streams))
	for key, st := range m.streams {
		out = append(out, models.MStreamStatus{Symbol: key.symbol, Resolution: key.resolution, Subscribers: st.count})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Resolution < out[j].Resolution
	})
	return out
}

// -----------------------------------------------------------------------------

// send writes one control message. Caller holds m.mu. A failed send is
// repaired by the replay on the next Connected event.
func (m *Multiplexer) send(kind string, key streamKey, id uint64) {
	msg := models.MControlMessage{Type: kind, Symbol: key.symbol, Resolution: key.resolution, ID: id}
	if err := m.upstream.Send(msg); err != nil {
		m.log.Warning("Upstream %s %s/%s failed: %v", kind, key.symbol, key.resolution, err)
	}
}

// -----------------------------------------------------------------------------

func (m *Multiplexer) realtime(sub *subscription) func(models.MBar) {
	return func(bar models.MBar) {
		if sub.handlers.OnRealtime != nil {
			sub.handlers.OnRealtime(bar)
		}
	}
}

// -----------------------------------------------------------------------------
// Inbound
// -----------------------------------------------------------------------------

func (m *Multiplexer) handleMessage(msg models.MInboundMessage) {
	switch msg.Type {
	case models.MsgSubscriptionSuccess, models.MsgUnsubscriptionSuccess:
		m.log.Debug("Upstream %s for %s", msg.Type, msg.Symbol)
		return
	case models.MsgPriceUpdate:
	default:
		m.log.Debug("Ignoring message type '%s'", msg.Type)
		return
	}

	tick, ok := msg.Tick()
	if !ok {
		m.log.Warning("Dropping frame: %v", helpers.NewProtocolError("price_update without price for "+msg.Symbol, nil))
		return
	}

	m.mu.Lock()
	var targets []*subscription
	for key, st := range m.streams {
		if !strings.EqualFold(key.symbol, msg.Symbol) {
			continue
		}
		if msg.Resolution != "" && !strings.EqualFold(key.resolution, msg.Resolution) {
			continue
		}
		for _, sub := range st.subscribers {
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range targets {
		finalized, current := sub.aggregator.Ingest(tick)
		if finalized != nil {
			m.dispatcher.Dispatch(sub.id, *finalized, true)
		}
		if current != nil {
			m.dispatcher.Dispatch(sub.id, *current, false)
		}
	}
}

// -----------------------------------------------------------------------------

func (m *Multiplexer) handleLifecycle(ev connection.Event) {
	switch ev.Kind {
	case connection.EventConnected:
		m.replay(ev)
	case connection.EventDisconnected:
		m.mu.Lock()
		m.online = false
		if m.offlineSince.IsZero() {
			m.offlineSince = ev.At
		}
		m.mu.Unlock()
	case connection.EventFatal:
		m.fail(ev.Err)
	}
}

// -----------------------------------------------------------------------------

// replay re-issues every counted stream and resets subscribers whose stream
// was offline for at least one bar interval.
func (m *Multiplexer) replay(ev connection.Event) {
	m.mu.Lock()
	m.online = true
	gap := time.Duration(0)
	if !m.offlineSince.IsZero() {
		gap = ev.At.Sub(m.offlineSince)
	}
	m.offlineSince = time.Time{}

	var resets []*subscription
	for key, st := range m.streams {
		m.send(models.CtrlSubscribe, key, st.id)
		if !ev.Reconnect || gap < time.Duration(st.interval)*time.Second {
			continue
		}
		for _, sub := range st.subscribers {
			sub.aggregator.Reset()
			resets = append(resets, sub)
		}
	}
	count := len(m.streams)
	m.mu.Unlock()

	if ev.Reconnect {
		m.log.Info("Replayed %d upstream streams after reconnect (offline %v)", count, gap)
	}

	for _, sub := range resets {
		if sub.handlers.OnResetCache == nil || !m.Has(sub.id) {
			continue
		}
		if err := helpers.SafeCall(sub.handlers.OnResetCache); err != nil {
			m.log.Error("Subscriber %s reset callback failed: %v", sub.id, err)
		}
	}
}

// -----------------------------------------------------------------------------

// fail surfaces a fatal connection error to every subscriber. Subscriptions
// stay registered and are replayed if the connection is manually restored.
func (m *Multiplexer) fail(err error) {
	m.mu.Lock()
	m.online = false
	if m.offlineSince.IsZero() {
		m.offlineSince = time.Now()
	}
	targets := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	m.log.Error("Connection lost for good, notifying %d subscribers", len(targets))
	for _, sub := range targets {
		if sub.handlers.OnError == nil {
			continue
		}
		if cbErr := helpers.SafeCall(func() { sub.handlers.OnError(err) }); cbErr != nil {
			m.log.Error("Subscriber %s error callback failed: %v", sub.id, cbErr)
		}
	}
}

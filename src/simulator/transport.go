package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"market-feed/src/analysis"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
)

const outboxSize = 1024

var errRefused = errors.New("simulator: connection refused")

// Feed is a deterministic stand-in for the live transport. It speaks the same
// message schema, so the connection and multiplexer layers run unmodified.
type Feed struct {
	seed         int64
	tickInterval time.Duration
	symbols      map[string]models.MSymbol
	lookup       SymbolLookup
	log          *logger.Logger
	now          func() time.Time

	mu      sync.Mutex
	refuse  int
	dials   int
	conns   map[*simConn]struct{}
	walks   map[string]*RandomWalk
	stopped bool
}

// -----------------------------------------------------------------------------

func NewFeed(cfg models.MSimulatorConfig, symbols []models.MSymbol, log *logger.Logger) *Feed {
	tick := time.Duration(cfg.TickIntervalMs) * time.Millisecond
	return &Feed{
		seed:         cfg.Seed,
		tickInterval: tick,
		symbols:      indexByTicker(symbols),
		log:          log,
		now:          time.Now,
		conns:        make(map[*simConn]struct{}),
		walks:        make(map[string]*RandomWalk),
	}
}

// SetLookup consults lookup for tickers missing from the initial catalogue.
func (f *Feed) SetLookup(lookup SymbolLookup) {
	f.mu.Lock()
	f.lookup = lookup
	f.mu.Unlock()
}

// SetClock replaces the wall clock used for tick timestamps.
func (f *Feed) SetClock(now func() time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Failure injection
// -----------------------------------------------------------------------------

// RefuseDials makes the next n dials fail. A negative n refuses until reset
// with RefuseDials(0).
func (f *Feed) RefuseDials(n int) {
	f.mu.Lock()
	f.refuse = n
	f.mu.Unlock()
}

// DropConnections closes every open connection as if the server went away.
func (f *Feed) DropConnections() {
	f.mu.Lock()
	conns := make([]*simConn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Dials returns how many dials were attempted.
func (f *Feed) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// Emit pushes a frame to every open connection.
func (f *Feed) Emit(msg models.MInboundMessage) {
	f.mu.Lock()
	conns := make([]*simConn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		c.push(msg)
	}
}

// Subscribed reports the tickers subscribed on any open connection.
func (f *Feed) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for c := range f.conns {
		c.mu.Lock()
		for t := range c.subs {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
		c.mu.Unlock()
	}
	return out
}

// -----------------------------------------------------------------------------

// Dial implements interfaces.ITransport.
func (f *Feed) Dial(ctx context.Context) (interfaces.IConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.dials++
	if f.refuse != 0 {
		if f.refuse > 0 {
			f.refuse--
		}
		f.mu.Unlock()
		return nil, errRefused
	}
	c := &simConn{
		feed:   f,
		outbox: make(chan []byte, outboxSize),
		closed: make(chan struct{}),
		subs:   make(map[string]map[string]bool),
	}
	f.conns[c] = struct{}{}
	f.mu.Unlock()

	if f.tickInterval > 0 {
		go c.tickLoop(f.tickInterval)
	}
	return c, nil
}

// -----------------------------------------------------------------------------

// nextTick advances the walk of one ticker. Walks are shared across
// connections so a reconnect continues the same price path.
func (f *Feed) nextTick(ticker string) models.MInboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	sym, ok := f.symbols[ticker]
	if !ok && f.lookup != nil {
		sym, ok = f.lookup(ticker)
	}
	if !ok {
		sym = models.MSymbol{Ticker: ticker, PricePrecision: 2, BasePrice: 100}
	}
	w, ok := f.walks[ticker]
	if !ok {
		w = NewRandomWalk(seedFor(f.seed, ticker), sym.BasePrice, analysis.VolatilityFor(sym.Type, sym.Ticker), sym.PricePrecision)
		f.walks[ticker] = w
	}

	price := w.Next()
	volume := w.Volume()
	return models.MInboundMessage{
		Type:      models.MsgPriceUpdate,
		Symbol:    ticker,
		Timestamp: f.now().Unix(),
		Price:     &price,
		Volume:    &volume,
	}
}

func (f *Feed) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now()
}

func (f *Feed) forget(c *simConn) {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()
}

// -----------------------------------------------------------------------------

type simConn struct {
	feed      *Feed
	outbox    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]map[string]bool // ticker -> resolutions
}

func (c *simConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, io.EOF
	default:
	}
	select {
	case data := <-c.outbox:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

// WriteMessage handles subscribe and unsubscribe control frames.
func (c *simConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}

	var msg models.MControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	ticker := strings.ToUpper(msg.Symbol)

	c.mu.Lock()
	switch msg.Type {
	case models.CtrlSubscribe:
		if c.subs[ticker] == nil {
			c.subs[ticker] = make(map[string]bool)
		}
		c.subs[ticker][msg.Resolution] = true
	case models.CtrlUnsubscribe:
		delete(c.subs[ticker], msg.Resolution)
		if len(c.subs[ticker]) == 0 {
			delete(c.subs, ticker)
		}
	default:
		c.mu.Unlock()
		return errors.New("simulator: unknown control message " + msg.Type)
	}
	c.mu.Unlock()

	ack := models.MsgSubscriptionSuccess
	if msg.Type == models.CtrlUnsubscribe {
		ack = models.MsgUnsubscriptionSuccess
	}
	c.push(models.MInboundMessage{Type: ack, Symbol: msg.Symbol, Resolution: msg.Resolution, Timestamp: c.feed.clock().Unix()})
	return nil
}

func (c *simConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.feed.forget(c)
	})
	return nil
}

// -----------------------------------------------------------------------------

func (c *simConn) push(msg models.MInboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.outbox <- data:
	case <-c.closed:
	default:
		c.feed.log.Warning("Simulator outbox full, dropping %s for %s", msg.Type, msg.Symbol)
	}
}

func (c *simConn) tickLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		tickers := make([]string, 0, len(c.subs))
		for t := range c.subs {
			tickers = append(tickers, t)
		}
		c.mu.Unlock()

		for _, t := range tickers {
			c.push(c.feed.nextTick(t))
		}
	}
}

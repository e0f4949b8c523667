package connection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
)

const defaultConnectTimeout = 10 * time.Second

// Manager owns one pooled transport connection and its reconnect state machine.
type Manager struct {
	transport interfaces.ITransport
	opts      Options
	log       *logger.Logger

	mu            sync.Mutex
	state         State
	attempts      int
	conn          interfaces.IConn
	gen           uint64
	cancel        context.CancelFunc
	everConnected bool
	lastErr       error

	handlersMu   sync.RWMutex
	msgHandlers  []func(models.MInboundMessage)
	lifeHandlers []func(Event)
}

// -----------------------------------------------------------------------------

func NewManager(transport interfaces.ITransport, opts Options, log *logger.Logger) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	return &Manager{
		transport: transport,
		opts:      opts,
		log:       log,
		state:     Disconnected,
	}
}

// -----------------------------------------------------------------------------

// OnMessage registers a handler for decoded inbound messages.
func (m *Manager) OnMessage(handler func(models.MInboundMessage)) {
	m.handlersMu.Lock()
	m.msgHandlers = append(m.msgHandlers, handler)
	m.handlersMu.Unlock()
}

// OnLifecycle registers a handler for lifecycle events.
func (m *Manager) OnLifecycle(handler func(Event)) {
	m.handlersMu.Lock()
	m.lifeHandlers = append(m.lifeHandlers, handler)
	m.handlersMu.Unlock()
}

// -----------------------------------------------------------------------------

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts is the number of consecutive failed attempts since the last open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// -----------------------------------------------------------------------------

// Connect starts the connection loop and returns immediately. It is a no-op
// while connecting or connected and fails once retries are exhausted. The loop
// outlives ctx cancellation; use Close to stop it.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Connecting, Connected:
		m.mu.Unlock()
		return nil
	case Error:
		err := helpers.NewReconnectExhausted(m.attempts, m.lastErr)
		m.mu.Unlock()
		return err
	}

	m.gen++
	gen := m.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.state = Connecting
	m.mu.Unlock()

	m.log.Info("Connecting to market-data source")
	go m.run(runCtx, gen)
	return nil
}

// -----------------------------------------------------------------------------

// Close is honored immediately from any state. No retries follow.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	wasConnected := m.state == Connected
	m.state = Disconnected
	m.attempts = 0
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if wasConnected {
		m.emit(Event{Kind: EventDisconnected, At: time.Now()})
	}
	m.log.Info("Connection closed")
	return err
}

// -----------------------------------------------------------------------------

// Reset moves an exhausted manager back to Disconnected so Connect may start
// over. It reports whether a reset happened.
func (m *Manager) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Error {
		return false
	}
	m.state = Disconnected
	m.attempts = 0
	m.lastErr = nil
	return true
}

// -----------------------------------------------------------------------------

// Send encodes msg and writes it on the live connection.
func (m *Manager) Send(msg models.MControlMessage) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != Connected || conn == nil {
		return helpers.ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(data); err != nil {
		return helpers.NewTransportError("send "+msg.Type, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Connection loop
// -----------------------------------------------------------------------------

func (m *Manager) run(ctx context.Context, gen uint64) {
	for {
		conn, err := m.dial(ctx)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}

		if err == nil {
			if !m.opened(gen, conn) {
				conn.Close()
				return
			}
			err = m.readLoop(conn)
			if ctx.Err() != nil {
				return
			}
		}

		delay, retry := m.failed(gen, err)
		if !retry {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// -----------------------------------------------------------------------------

type dialResult struct {
	conn interfaces.IConn
	err  error
}

// dial bounds one attempt by the connect timeout even if the transport
// ignores its context. A connection arriving after the deadline is closed.
func (m *Manager) dial(ctx context.Context) (interfaces.IConn, error) {
	dctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	ch := make(chan dialResult, 1)
	go func() {
		c, err := m.transport.Dial(dctx)
		ch <- dialResult{conn: c, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, helpers.NewTransportError("dial", r.err)
		}
		return r.conn, nil
	case <-dctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, helpers.NewTransportError("dial", helpers.ErrConnectTimeout)
	}
}

// -----------------------------------------------------------------------------

// opened records a successful open. The Connected event is delivered before
// the read loop starts so replayed subscriptions precede inbound data.
func (m *Manager) opened(gen uint64, conn interfaces.IConn) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.state = Connected
	m.attempts = 0
	m.conn = conn
	reconnect := m.everConnected
	m.everConnected = true
	m.mu.Unlock()

	m.log.Info("Connected (reconnect=%v)", reconnect)
	m.emit(Event{Kind: EventConnected, Reconnect: reconnect, At: time.Now()})
	return true
}

// -----------------------------------------------------------------------------

// failed applies the retry policy after a dial or session failure.
func (m *Manager) failed(gen uint64, cause error) (time.Duration, bool) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return 0, false
	}

	wasConnected := m.state == Connected
	m.conn = nil
	m.lastErr = cause

	if m.attempts >= m.opts.MaxReconnectAttempts {
		m.state = Error
		attempts := m.attempts
		m.mu.Unlock()

		fatal := helpers.NewReconnectExhausted(attempts, cause)
		m.log.Error("%v", fatal)
		if wasConnected {
			m.emit(Event{Kind: EventDisconnected, Err: cause, At: time.Now()})
		}
		m.emit(Event{Kind: EventFatal, Err: fatal, At: time.Now()})
		return 0, false
	}

	m.attempts++
	m.state = Connecting
	attempt := m.attempts
	delay := m.opts.Backoff(attempt)
	m.mu.Unlock()

	m.log.Warning("Connection failed: %v. Reconnect %d/%d in %v", cause, attempt, m.opts.MaxReconnectAttempts, delay)
	if wasConnected {
		m.emit(Event{Kind: EventDisconnected, Err: cause, At: time.Now()})
	}
	return delay, true
}

// -----------------------------------------------------------------------------

func (m *Manager) readLoop(conn interfaces.IConn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return helpers.NewTransportError("read", err)
		}

		var msg models.MInboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.log.Warning("Dropping frame: %v", helpers.NewProtocolError("decode frame", err))
			continue
		}
		if msg.Type == "" {
			m.log.Warning("Dropping frame: %v", helpers.NewProtocolError("missing type", nil))
			continue
		}

		m.dispatch(msg)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) dispatch(msg models.MInboundMessage) {
	m.handlersMu.RLock()
	handlers := append([]func(models.MInboundMessage){}, m.msgHandlers...)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		if err := helpers.SafeCall(func() { h(msg) }); err != nil {
			m.log.Error("Message handler failed: %v", err)
		}
	}
}

func (m *Manager) emit(ev Event) {
	m.handlersMu.RLock()
	handlers := append([]func(Event){}, m.lifeHandlers...)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		if err := helpers.SafeCall(func() { h(ev) }); err != nil {
			m.log.Error("Lifecycle handler failed: %v", err)
		}
	}
}

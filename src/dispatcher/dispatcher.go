package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"
)

// Dispatcher coalesces bar updates per subscriber with a trailing-edge
// throttle. Partial bars are best effort and the latest wins. Finalized bars
// are queued and always delivered, one per window, in order.
//
// A callback may cancel its own registration.
type Dispatcher struct {
	throttle time.Duration
	log      *logger.Logger

	mu   sync.Mutex
	subs map[string]*subscriber
}

type subscriber struct {
	id       string
	callback func(models.MBar)

	cancelled atomic.Bool
	deliverMu sync.Mutex

	mu           sync.Mutex
	inCallback   bool
	finalized    []models.MBar
	partial      *models.MBar
	lastDelivery time.Time
	lastTime     int64
	delivered    bool
	timer        *time.Timer
}

// -----------------------------------------------------------------------------

// NewDispatcher builds a dispatcher. A throttle <= 0 delivers synchronously.
func NewDispatcher(throttle time.Duration, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		throttle: throttle,
		log:      log,
		subs:     make(map[string]*subscriber),
	}
}

// -----------------------------------------------------------------------------

// Register adds a subscriber. Ids must be unique until cancelled.
func (d *Dispatcher) Register(id string, callback func(models.MBar)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.subs[id]; exists {
		return helpers.ErrDuplicateSubscriber
	}
	d.subs[id] = &subscriber{id: id, callback: callback}
	return nil
}

// -----------------------------------------------------------------------------

// Dispatch hands one bar to the subscriber's throttle. Unknown ids are ignored.
func (d *Dispatcher) Dispatch(id string, bar models.MBar, finalized bool) {
	d.mu.Lock()
	s := d.subs[id]
	d.mu.Unlock()
	if s == nil || s.cancelled.Load() {
		return
	}

	if d.throttle <= 0 {
		d.deliver(s, bar)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if finalized {
		if s.partial != nil && s.partial.Time <= bar.Time {
			s.partial = nil
		}
		s.finalized = append(s.finalized, bar)
	} else {
		b := bar
		s.partial = &b
	}
	d.schedule(s)
}

// -----------------------------------------------------------------------------

// Cancel removes a subscriber. No callback for it starts after Cancel returns
// and queued bars are dropped. Cancel waits for a callback running on another
// goroutine unless it is called while that callback is running, which covers
// a callback cancelling itself.
func (d *Dispatcher) Cancel(id string) {
	d.mu.Lock()
	s := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	s.cancelled.Store(true)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.finalized = nil
	s.partial = nil
	busy := s.inCallback
	s.mu.Unlock()

	if busy {
		return
	}
	// Wait out a delivery that holds deliverMu but has not started the callback.
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

// Close cancels every subscriber.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	ids := make([]string, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.Cancel(id)
	}
}

// -----------------------------------------------------------------------------

// schedule arms the window timer. Caller holds s.mu.
func (d *Dispatcher) schedule(s *subscriber) {
	if s.timer != nil {
		return
	}
	wait := d.throttle - time.Since(s.lastDelivery)
	if wait < 0 {
		wait = 0
	}
	s.timer = time.AfterFunc(wait, func() { d.flush(s) })
}

// -----------------------------------------------------------------------------

// flush delivers one bar for the elapsed window and re-arms while work remains.
func (d *Dispatcher) flush(s *subscriber) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.cancelled.Load() {
		return
	}

	s.mu.Lock()
	s.timer = nil
	var next *models.MBar
	if len(s.finalized) > 0 {
		b := s.finalized[0]
		s.finalized = s.finalized[1:]
		next = &b
	} else if s.partial != nil {
		next = s.partial
		s.partial = nil
	}
	if next != nil {
		s.lastDelivery = time.Now()
	}
	if len(s.finalized) > 0 || s.partial != nil {
		d.schedule(s)
	}
	s.mu.Unlock()

	if next != nil {
		d.invoke(s, *next)
	}
}

// -----------------------------------------------------------------------------

func (d *Dispatcher) deliver(s *subscriber, bar models.MBar) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.cancelled.Load() {
		return
	}
	d.invoke(s, bar)
}

// invoke runs the callback. Caller holds s.deliverMu. Bars older than the
// last delivered one are skipped so a subscriber never sees time go back.
func (d *Dispatcher) invoke(s *subscriber, bar models.MBar) {
	if s.delivered && bar.Time < s.lastTime {
		return
	}

	s.mu.Lock()
	if s.cancelled.Load() {
		s.mu.Unlock()
		return
	}
	s.inCallback = true
	s.mu.Unlock()

	s.delivered = true
	s.lastTime = bar.Time
	err := helpers.SafeCall(func() { s.callback(bar) })

	s.mu.Lock()
	s.inCallback = false
	s.mu.Unlock()

	if err != nil {
		d.log.Error("Subscriber %s callback failed: %v", s.id, err)
	}
}

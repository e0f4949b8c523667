package dispatcher

import (
	"io"
	"sync"
	"testing"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	bar models.MBar
	at  time.Time
}

type sink struct {
	mu  sync.Mutex
	got []delivery
}

func (s *sink) callback(b models.MBar) {
	s.mu.Lock()
	s.got = append(s.got, delivery{bar: b, at: time.Now()})
	s.mu.Unlock()
}

func (s *sink) deliveries() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery(nil), s.got...)
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func quietLogger() *logger.Logger {
	return logger.NewWriterLogger(io.Discard, "dispatcher", logger.LevelDebug)
}

// prime makes one delivery so the next window starts now rather than
// immediately.
func prime(t *testing.T, d *Dispatcher, s *sink, id string) {
	t.Helper()
	before := s.count()
	d.Dispatch(id, models.MBar{Time: -60}, true)
	require.Eventually(t, func() bool { return s.count() == before+1 }, time.Second, time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestSynchronousWhenThrottleDisabled(t *testing.T) {
	d := NewDispatcher(0, quietLogger())
	s := &sink{}
	require.NoError(t, d.Register("a", s.callback))

	d.Dispatch("a", models.MBar{Time: 60, Close: 1}, false)
	d.Dispatch("a", models.MBar{Time: 60, Close: 2}, false)
	assert.Equal(t, 2, s.count())
}

func TestDuplicateRegistration(t *testing.T) {
	d := NewDispatcher(0, quietLogger())
	require.NoError(t, d.Register("a", func(models.MBar) {}))
	assert.ErrorIs(t, d.Register("a", func(models.MBar) {}), helpers.ErrDuplicateSubscriber)
}

func TestLatestPartialWins(t *testing.T) {
	d := NewDispatcher(50*time.Millisecond, quietLogger())
	s := &sink{}
	require.NoError(t, d.Register("a", s.callback))
	prime(t, d, s, "a")

	for i := 1; i <= 10; i++ {
		d.Dispatch("a", models.MBar{Time: 60, Close: float64(i)}, false)
	}

	require.Eventually(t, func() bool { return s.count() >= 2 }, time.Second, time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	got := s.deliveries()
	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[1].bar.Close)
}

func TestAtMostOneDeliveryPerWindow(t *testing.T) {
	throttle := 30 * time.Millisecond
	d := NewDispatcher(throttle, quietLogger())
	s := &sink{}
	require.NoError(t, d.Register("a", s.callback))

	stop := time.After(200 * time.Millisecond)
	ts := int64(0)
loop:
	for {
		select {
		case <-stop:
			break loop
		default:
		}
		ts += 60
		d.Dispatch("a", models.MBar{Time: ts, Close: 1}, false)
		time.Sleep(time.Millisecond)
	}
	time.Sleep(2 * throttle)

	got := s.deliveries()
	require.GreaterOrEqual(t, len(got), 2)
	for i := 1; i < len(got); i++ {
		gap := got[i].at.Sub(got[i-1].at)
		assert.GreaterOrEqual(t, gap, throttle-2*time.Millisecond, "delivery %d", i)
		assert.GreaterOrEqual(t, got[i].bar.Time, got[i-1].bar.Time)
	}
}

func TestFinalizedBarsAreNeverDropped(t *testing.T) {
	d := NewDispatcher(50*time.Millisecond, quietLogger())
	s := &sink{}
	require.NoError(t, d.Register("a", s.callback))
	prime(t, d, s, "a")

	d.Dispatch("a", models.MBar{Time: 0, Close: 1}, false)
	d.Dispatch("a", models.MBar{Time: 0, Close: 2}, true)
	d.Dispatch("a", models.MBar{Time: 60, Close: 3}, false)
	d.Dispatch("a", models.MBar{Time: 60, Close: 4}, true)
	d.Dispatch("a", models.MBar{Time: 120, Close: 5}, false)

	require.Eventually(t, func() bool { return s.count() == 4 }, time.Second, time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	got := s.deliveries()
	require.Len(t, got, 4)
	assert.Equal(t, models.MBar{Time: 0, Close: 2}, got[1].bar)
	assert.Equal(t, models.MBar{Time: 60, Close: 4}, got[2].bar)
	assert.Equal(t, models.MBar{Time: 120, Close: 5}, got[3].bar)
}

func TestCancelDropsQueuedBars(t *testing.T) {
	d := NewDispatcher(40*time.Millisecond, quietLogger())
	s := &sink{}
	require.NoError(t, d.Register("a", s.callback))
	prime(t, d, s, "a")

	d.Dispatch("a", models.MBar{Time: 0, Close: 1}, true)
	d.Cancel("a")
	d.Dispatch("a", models.MBar{Time: 60, Close: 2}, true)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, s.count())

	// Cancelling again is harmless.
	d.Cancel("a")
}

func TestCancelWaitsForInFlightDelivery(t *testing.T) {
	d := NewDispatcher(0, quietLogger())
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	var mu sync.Mutex

	require.NoError(t, d.Register("a", func(models.MBar) {
		close(entered)
		<-release
		mu.Lock()
		finished = true
		mu.Unlock()
	}))

	go d.Dispatch("a", models.MBar{Time: 1}, false)
	<-entered

	done := make(chan struct{})
	go func() {
		d.Cancel("a")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("cancel returned during an in-flight delivery")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done

	mu.Lock()
	assert.True(t, finished)
	mu.Unlock()
}

func TestPanickingCallbackIsContained(t *testing.T) {
	d := NewDispatcher(0, quietLogger())
	s := &sink{}
	require.NoError(t, d.Register("bad", func(models.MBar) { panic("boom") }))
	require.NoError(t, d.Register("good", s.callback))

	assert.NotPanics(t, func() {
		d.Dispatch("bad", models.MBar{Time: 1}, false)
		d.Dispatch("good", models.MBar{Time: 1}, false)
	})
	assert.Equal(t, 1, s.count())
}

func TestCloseCancelsEverything(t *testing.T) {
	d := NewDispatcher(40*time.Millisecond, quietLogger())
	s := &sink{}
	require.NoError(t, d.Register("a", s.callback))
	prime(t, d, s, "a")

	d.Dispatch("a", models.MBar{Time: 1}, true)
	d.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, s.count())
}

// -----------------------------------------------------------------------------

func TestCallbackMayCancelItself(t *testing.T) {
	for _, throttle := range []time.Duration{0, 10 * time.Millisecond} {
		d := NewDispatcher(throttle, quietLogger())
		calls := make(chan struct{}, 4)
		require.NoError(t, d.Register("self", func(models.MBar) {
			d.Cancel("self")
			calls <- struct{}{}
		}))

		d.Dispatch("self", models.MBar{Time: 60}, true)
		d.Dispatch("self", models.MBar{Time: 120}, true)

		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("throttle %v: self-cancel did not return", throttle)
		}
		time.Sleep(3 * throttle)
		assert.Len(t, calls, 0, "throttle %v: no delivery after cancel", throttle)
	}
}

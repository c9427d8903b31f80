// Debounced delta emitter.
//
// The stream produces deltas far faster than a presentation layer wants
// repaints. The emitter accumulates deltas and republishes the full
// snapshot on a fixed flush interval; the final snapshot at close is
// published unconditionally so the delivered text is never truncated by
// the cadence gate.

package turn

import (
	"strings"
	"sync"
	"time"
)

type deltaEmitter struct {
	interval time.Duration
	publish  func(string)

	mu    sync.Mutex
	text  strings.Builder
	dirty bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newDeltaEmitter(interval time.Duration, publish func(string)) *deltaEmitter {
	e := &deltaEmitter{
		interval: interval,
		publish:  publish,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	// A non-positive interval disables the scheduler; only Close
	// publishes.
	if interval <= 0 {
		close(e.done)
		return e
	}
	go e.loop()
	return e
}

func (e *deltaEmitter) loop() {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.flushTick()
		case <-e.stop:
			return
		}
	}
}

// flushTick publishes the current snapshot if it changed since the last
// flush. Publishing under the lock keeps snapshots monotonic.
func (e *deltaEmitter) flushTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return
	}
	e.dirty = false
	e.publish(e.text.String())
}

// Append adds a delta to the accumulated snapshot.
func (e *deltaEmitter) Append(delta string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text.WriteString(delta)
	e.dirty = true
}

// Reset clears the accumulated snapshot. Used when a fallback round
// replaces the directive text with the real answer.
func (e *deltaEmitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text.Reset()
	e.dirty = false
}

// Close stops the scheduler and publishes the final snapshot
// unconditionally.
func (e *deltaEmitter) Close() {
	e.stopLoop()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.text.Len() > 0 {
		e.publish(e.text.String())
	}
}

// Discard stops the scheduler without a final flush. Used on
// cancellation so no further publications occur.
func (e *deltaEmitter) Discard() {
	e.stopLoop()
}

func (e *deltaEmitter) stopLoop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// Package hotkey provides a global hotkey listener using gohook. Each press
// of the key combo emits one trigger; presses that repeat within the
// debounce window (auto-repeat, chattering keys) are dropped.
package hotkey

import (
	"log/slog"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// DefaultDebounce is the minimum spacing between two triggers.
const DefaultDebounce = 750 * time.Millisecond

// Event is emitted on the channel returned by Events.
type Event struct {
	At time.Time
}

// Listener manages a global hotkey and emits trigger events.
type Listener struct {
	keys     []string
	debounce *debouncer
	ch       chan Event
	done     chan struct{}
	once     sync.Once
}

// NewListener creates a Listener for the given key combo.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "b"]).
// A debounce of zero uses DefaultDebounce.
func NewListener(keys []string, debounce time.Duration) *Listener {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Listener{
		keys:     keys,
		debounce: &debouncer{window: debounce},
		ch:       make(chan Event, 4),
		done:     make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
		l.press(time.Now())
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// press emits an event unless it falls inside the debounce window or the
// consumer is still behind.
func (l *Listener) press(now time.Time) {
	if !l.debounce.allow(now) {
		slog.Debug("[HOTKEY] Press debounced")
		return
	}
	select {
	case l.ch <- Event{At: now}:
	default: // don't block if channel is full
		slog.Debug("[HOTKEY] Trigger dropped, consumer busy")
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
}

func (d *debouncer) allow(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	return true
}

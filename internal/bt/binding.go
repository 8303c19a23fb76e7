package bt

import (
	"log/slog"
	"sync/atomic"
)

// Binding holds the readiness state shared by a ProfileBinder's platform
// listeners and the goroutines polling it. Safe for concurrent use.
type Binding struct {
	name string
	h    atomic.Pointer[handleBox]
}

type handleBox struct {
	handle ProfileHandle
}

// NewBinding returns an unready Binding. name is used in log lines.
func NewBinding(name string) *Binding {
	return &Binding{name: name}
}

// Connected publishes h and makes the binding ready. A nil h is treated as
// Disconnected.
func (b *Binding) Connected(h ProfileHandle) {
	if h == nil {
		b.Disconnected()
		return
	}
	if old := b.h.Swap(&handleBox{handle: h}); old == nil {
		slog.Debug("[BT] profile service bound", "binder", b.name)
	}
}

// Disconnected clears the handle.
func (b *Binding) Disconnected() {
	if old := b.h.Swap(nil); old != nil {
		slog.Debug("[BT] profile service unbound", "binder", b.name)
	}
}

// Ready reports whether a handle is currently published.
func (b *Binding) Ready() bool {
	return b.h.Load() != nil
}

// Handle returns the current handle, or nil.
func (b *Binding) Handle() ProfileHandle {
	box := b.h.Load()
	if box == nil {
		return nil
	}
	return box.handle
}

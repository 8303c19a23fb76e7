package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"

	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
)

// Binder kinds.
const (
	BinderService = "service"
	BinderProxy   = "proxy"
)

const probeTimeout = 2 * time.Second

// strategy decides when the A2DP profile service counts as available.
type strategy interface {
	name() string
	rules() [][]dbus.MatchOption
	// probe reads the current availability from the bus.
	probe(ctx context.Context, b bus) (bool, error)
	// event interprets sig. relevant is false for signals it ignores;
	// reprobe asks the binder to probe again instead of trusting ready.
	event(sig *dbus.Signal) (ready, relevant, reprobe bool)
}

// Binder binds to the A2DP profile service over D-Bus. Readiness follows
// bus signals; Bind returns before the first probe completes.
type Binder struct {
	bus      bus
	strategy strategy
	handle   bt.ProfileHandle
	binding  *bt.Binding

	mu   sync.Mutex
	stop func()
}

var _ bt.ProfileBinder = (*Binder)(nil)

// NewBinder returns the binder variant for kind.
func (p *Platform) NewBinder(kind string) (*Binder, error) {
	var s strategy
	switch kind {
	case BinderService, "":
		s = serviceStrategy{}
	case BinderProxy:
		s = proxyStrategy{adapterPath: p.adapterPath}
	default:
		return nil, fmt.Errorf("bluez: unknown binder %q (want %s or %s)", kind, BinderService, BinderProxy)
	}
	b := &Binder{
		bus:      p.bus,
		strategy: s,
		binding:  bt.NewBinding(s.name()),
	}
	b.handle = &boundHandle{binder: b, h: p.NewA2DPHandle()}
	return b, nil
}

// Bind starts watching for the profile service. Idempotent.
func (b *Binder) Bind() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return nil
	}

	sigs, unwatch, err := b.bus.Watch(b.strategy.rules()...)
	if err != nil {
		return fmt.Errorf("bluez: bind %s: %w", b.strategy.name(), err)
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	go b.run(sigs, quit, done)

	b.stop = func() {
		close(quit)
		<-done
		unwatch()
	}
	slog.Debug("[BLUEZ] Binding", "binder", b.strategy.name())
	return nil
}

// Unbind stops watching and clears the handle. Idempotent.
func (b *Binder) Unbind() error {
	b.mu.Lock()
	stop := b.stop
	b.stop = nil
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
	b.binding.Disconnected()
	return nil
}

func (b *Binder) Ready() bool { return b.binding.Ready() }

func (b *Binder) Handle() bt.ProfileHandle { return b.binding.Handle() }

func (b *Binder) run(sigs <-chan *dbus.Signal, quit, done chan struct{}) {
	defer close(done)

	b.refresh()
	for {
		select {
		case <-quit:
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			ready, relevant, reprobe := b.strategy.event(sig)
			switch {
			case !relevant:
			case reprobe:
				b.refresh()
			default:
				b.set(ready)
			}
		}
	}
}

func (b *Binder) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	ready, err := b.strategy.probe(ctx, b.bus)
	if err != nil {
		slog.Warn("[BLUEZ] Probe failed", "binder", b.strategy.name(), "error", err)
		ready = false
	}
	b.set(ready)
}

func (b *Binder) set(ready bool) {
	if ready {
		b.binding.Connected(b.handle)
	} else {
		b.binding.Disconnected()
	}
}

// boundHandle refuses calls once its binder has let go of the service.
type boundHandle struct {
	binder *Binder
	h      bt.ProfileHandle
}

func (h *boundHandle) ConnectionState(ctx context.Context, dev bt.Device) (bt.ProfileConnectionState, error) {
	if !h.binder.Ready() {
		return bt.StateDisconnected, bt.ErrNotBound
	}
	return h.h.ConnectionState(ctx, dev)
}

func (h *boundHandle) Connect(ctx context.Context, dev bt.Device) (bool, error) {
	if !h.binder.Ready() {
		return false, bt.ErrNotBound
	}
	return h.h.Connect(ctx, dev)
}

// serviceStrategy is ready while bluetoothd owns the org.bluez name.
type serviceStrategy struct{}

func (serviceStrategy) name() string { return BinderService }

func (serviceStrategy) rules() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{{
		dbus.WithMatchInterface(dbusService),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, bluezService),
	}}
}

func (serviceStrategy) probe(ctx context.Context, b bus) (bool, error) {
	return b.NameHasOwner(ctx, bluezService)
}

func (serviceStrategy) event(sig *dbus.Signal) (ready, relevant, reprobe bool) {
	owner, ok := ownerChange(sig)
	if !ok {
		return false, false, false
	}
	return owner != "", true, false
}

// proxyStrategy is ready while the adapter exposes org.bluez.Media1.
type proxyStrategy struct {
	adapterPath dbus.ObjectPath
}

func (proxyStrategy) name() string { return BinderProxy }

func (s proxyStrategy) rules() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(objManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchInterface(objManagerIface),
			dbus.WithMatchMember("InterfacesRemoved"),
		},
		{
			dbus.WithMatchInterface(dbusService),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchArg(0, bluezService),
		},
	}
}

func (s proxyStrategy) probe(ctx context.Context, b bus) (bool, error) {
	objs, err := b.ManagedObjects(ctx)
	if err != nil {
		return false, err
	}
	_, ok := objs[s.adapterPath][mediaIface]
	return ok, nil
}

func (s proxyStrategy) event(sig *dbus.Signal) (ready, relevant, reprobe bool) {
	switch sig.Name {
	case nameOwnerChangedSignal:
		owner, ok := ownerChange(sig)
		if !ok {
			return false, false, false
		}
		if owner == "" {
			return false, true, false
		}
		// bluetoothd came back; Media1 may already be registered.
		return false, true, true

	case ifacesAddedSignal:
		if len(sig.Body) < 2 {
			return false, false, false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		if path != s.adapterPath {
			return false, false, false
		}
		if _, ok := ifaces[mediaIface]; ok {
			return true, true, false
		}

	case ifacesRemovedSignal:
		if len(sig.Body) < 2 {
			return false, false, false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].([]string)
		if path != s.adapterPath {
			return false, false, false
		}
		for _, iface := range ifaces {
			if iface == mediaIface {
				return false, true, false
			}
		}
	}
	return false, false, false
}

// ownerChange returns the new owner from a NameOwnerChanged for org.bluez.
func ownerChange(sig *dbus.Signal) (string, bool) {
	if sig.Name != nameOwnerChangedSignal || len(sig.Body) != 3 {
		return "", false
	}
	if name, _ := sig.Body[0].(string); name != bluezService {
		return "", false
	}
	owner, ok := sig.Body[2].(string)
	return owner, ok
}

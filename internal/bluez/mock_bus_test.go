package bluez

import (
	"context"
	"sync"

	dbus "github.com/godbus/dbus/v5"
)

// call records one method call made through fakeBus.
type call struct {
	path   dbus.ObjectPath
	method string
	args   []interface{}
}

// fakeBus is an in-memory bus. Objects are served from objs; method
// results come from callErr and goErr keyed by method name.
type fakeBus struct {
	mu       sync.Mutex
	objs     managedObjects
	objsErr  error
	owned    bool
	ownerErr error
	callErr  map[string]error
	goErr    map[string]error
	goHold   chan struct{}
	watchErr error
	calls    []call
	sigs     chan *dbus.Signal
	watches  int
	unwatch  int
	probes   int
	closed   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		objs:    managedObjects{},
		callErr: map[string]error{},
		goErr:   map[string]error{},
		sigs:    make(chan *dbus.Signal, 16),
	}
}

func (b *fakeBus) ManagedObjects(_ context.Context) (managedObjects, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes++
	if b.objsErr != nil {
		return nil, b.objsErr
	}
	out := make(managedObjects, len(b.objs))
	for path, ifaces := range b.objs {
		out[path] = ifaces
	}
	return out, nil
}

func (b *fakeBus) GetProperty(_ context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.callErr[propsIface+".Get"]; err != nil {
		return dbus.Variant{}, err
	}
	v, ok := b.objs[path][iface][name]
	if !ok {
		return dbus.Variant{}, dbus.Error{Name: "org.freedesktop.DBus.Error.InvalidArgs"}
	}
	return v, nil
}

func (b *fakeBus) Call(_ context.Context, path dbus.ObjectPath, method string, args ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{path: path, method: method, args: args})
	if err := b.callErr[method]; err != nil {
		return err
	}
	if method == propsIface+".Set" && len(args) == 3 {
		iface, _ := args[0].(string)
		name, _ := args[1].(string)
		v, _ := args[2].(dbus.Variant)
		if props, ok := b.objs[path][iface]; ok {
			props[name] = v
		}
	}
	return nil
}

func (b *fakeBus) Go(path dbus.ObjectPath, method string, args ...interface{}) <-chan error {
	b.mu.Lock()
	b.calls = append(b.calls, call{path: path, method: method, args: args})
	err := b.goErr[method]
	hold := b.goHold
	b.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		if hold != nil {
			<-hold
		}
		errc <- err
	}()
	return errc
}

func (b *fakeBus) NameHasOwner(_ context.Context, _ string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes++
	return b.owned, b.ownerErr
}

func (b *fakeBus) Watch(_ ...[]dbus.MatchOption) (<-chan *dbus.Signal, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watchErr != nil {
		return nil, nil, b.watchErr
	}
	b.watches++
	return b.sigs, func() {
		b.mu.Lock()
		b.unwatch++
		b.mu.Unlock()
	}, nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) set(fn func(b *fakeBus)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBus) callsTo(method string) []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []call
	for _, c := range b.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBus) probeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probes
}

const (
	testAdapterPath = dbus.ObjectPath("/org/bluez/hci0")
	testAddr        = "AA:BB:CC:DD:EE:FF"
	testDevPath     = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
)

func props(kv ...interface{}) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = dbus.MakeVariant(kv[i+1])
	}
	return out
}

func deviceObject(kv ...interface{}) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{deviceIface: props(kv...)}
}

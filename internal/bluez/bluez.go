// Package bluez implements the bt platform interfaces on top of the BlueZ
// D-Bus API: the bonded set and bonding requests, the A2DP profile handle,
// and the two ways of binding to the profile service.
package bluez

import (
	"context"
	"fmt"
	"strings"

	dbus "github.com/godbus/dbus/v5"
)

const (
	bluezService    = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	mediaIface      = "org.bluez.Media1"
	transportIface  = "org.bluez.MediaTransport1"
	dbusService     = "org.freedesktop.DBus"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"

	bluezErrorPrefix       = "org.bluez.Error."
	errAlreadyConnected    = "org.bluez.Error.AlreadyConnected"
	errAlreadyExists       = "org.bluez.Error.AlreadyExists"
	nameOwnerChangedSignal = dbusService + ".NameOwnerChanged"
	ifacesAddedSignal      = objManagerIface + ".InterfacesAdded"
	ifacesRemovedSignal    = objManagerIface + ".InterfacesRemoved"
)

// A2DP service class UUIDs.
const (
	A2DPSourceUUID = "0000110a-0000-1000-8000-00805f9b34fb"
	A2DPSinkUUID   = "0000110b-0000-1000-8000-00805f9b34fb"
)

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// bus is the slice of the system bus this package talks to.
type bus interface {
	ManagedObjects(ctx context.Context) (managedObjects, error)
	GetProperty(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error)
	Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) error
	// Go starts a call without waiting; the channel yields its error.
	Go(path dbus.ObjectPath, method string, args ...interface{}) <-chan error
	NameHasOwner(ctx context.Context, name string) (bool, error)
	// Watch delivers signals matching any of rules until the returned
	// function is called.
	Watch(rules ...[]dbus.MatchOption) (<-chan *dbus.Signal, func(), error)
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

func (b *systemBus) ManagedObjects(ctx context.Context) (managedObjects, error) {
	var objs managedObjects
	call := b.conn.Object(bluezService, "/").CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func (b *systemBus) GetProperty(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	call := b.conn.Object(bluezService, path).CallWithContext(ctx, propsIface+".Get", 0, iface, name)
	if err := call.Store(&v); err != nil {
		return dbus.Variant{}, fmt.Errorf("bluez: get %s.%s: %w", iface, name, err)
	}
	return v, nil
}

func (b *systemBus) Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) error {
	return b.conn.Object(bluezService, path).CallWithContext(ctx, method, 0, args...).Err
}

func (b *systemBus) Go(path dbus.ObjectPath, method string, args ...interface{}) <-chan error {
	errc := make(chan error, 1)
	call := b.conn.Object(bluezService, path).Go(method, 0, make(chan *dbus.Call, 1), args...)
	go func() {
		<-call.Done
		errc <- call.Err
	}()
	return errc
}

func (b *systemBus) NameHasOwner(ctx context.Context, name string) (bool, error) {
	var has bool
	call := b.conn.BusObject().CallWithContext(ctx, dbusService+".NameHasOwner", 0, name)
	if err := call.Store(&has); err != nil {
		return false, fmt.Errorf("bluez: NameHasOwner(%s): %w", name, err)
	}
	return has, nil
}

func (b *systemBus) Watch(rules ...[]dbus.MatchOption) (<-chan *dbus.Signal, func(), error) {
	for i, rule := range rules {
		if err := b.conn.AddMatchSignal(rule...); err != nil {
			for _, added := range rules[:i] {
				_ = b.conn.RemoveMatchSignal(added...)
			}
			return nil, nil, fmt.Errorf("bluez: AddMatchSignal: %w", err)
		}
	}
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	return ch, func() {
		b.conn.RemoveSignal(ch)
		for _, rule := range rules {
			_ = b.conn.RemoveMatchSignal(rule...)
		}
	}, nil
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}

// devicePath returns the object path BlueZ uses for addr under adapter.
func devicePath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(addr), ":", "_"))
}

// macFromPath recovers the address from a .../dev_XX_XX_XX_XX_XX_XX path.
func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}

func stringProp(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func boolProp(props map[string]dbus.Variant, key string) (value, present bool) {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b, true
		}
	}
	return false, false
}

// dbusErrorName returns the D-Bus error name carried by err, if any.
func dbusErrorName(err error) string {
	switch e := err.(type) {
	case dbus.Error:
		return e.Name
	case *dbus.Error:
		return e.Name
	}
	return ""
}

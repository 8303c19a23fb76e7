package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
)

// enableAdapter checks that a Bluetooth stack is reachable. Overridden in tests.
var enableAdapter = func() error { return bluetooth.DefaultAdapter.Enable() }

// pairResultTimeout bounds how long a background Pair call is followed.
const pairResultTimeout = 60 * time.Second

// Platform is the BlueZ implementation of bt.Adapter for one local adapter.
type Platform struct {
	bus         bus
	adapter     string
	adapterPath dbus.ObjectPath

	mu      sync.Mutex
	pairing map[dbus.ObjectPath]bool
}

// Compile-time interface check.
var _ bt.Adapter = (*Platform)(nil)

// Open connects to the system bus and returns a Platform for the named
// adapter (e.g. "hci0").
func Open(adapter string) (*Platform, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	return newPlatform(&systemBus{conn: conn}, adapter), nil
}

func newPlatform(b bus, adapter string) *Platform {
	return &Platform{
		bus:         b,
		adapter:     adapter,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
		pairing:     make(map[dbus.ObjectPath]bool),
	}
}

// Close releases the system bus connection.
func (p *Platform) Close() error {
	return p.bus.Close()
}

// EnsurePowered checks that Bluetooth is available and powers the adapter
// on if it is off.
func (p *Platform) EnsurePowered(ctx context.Context) error {
	if err := enableAdapter(); err != nil {
		return fmt.Errorf("bluez: bluetooth unavailable: %w", err)
	}

	v, err := p.bus.GetProperty(ctx, p.adapterPath, adapterIface, "Powered")
	if err != nil {
		return fmt.Errorf("bluez: adapter %s: %w", p.adapter, err)
	}
	if powered, _ := v.Value().(bool); powered {
		return nil
	}

	slog.Info("[BLUEZ] Powering on adapter", "adapter", p.adapter)
	if err := p.bus.Call(ctx, p.adapterPath, propsIface+".Set", adapterIface, "Powered", dbus.MakeVariant(true)); err != nil {
		return fmt.Errorf("bluez: power on %s: %w", p.adapter, err)
	}
	return nil
}

// RemoteDevice resolves addr to a device, filling in the name BlueZ knows
// for it. Unknown devices come back with an empty name.
func (p *Platform) RemoteDevice(ctx context.Context, addr string) (bt.Device, error) {
	norm, err := bt.NormalizeAddress(addr)
	if err != nil {
		return bt.Device{}, err
	}
	objs, err := p.bus.ManagedObjects(ctx)
	if err != nil {
		return bt.Device{}, err
	}
	dev := bt.Device{Address: norm}
	if props, ok := objs[devicePath(p.adapterPath, norm)][deviceIface]; ok {
		dev.Name = deviceName(props)
	}
	return dev, nil
}

// BondedDevices lists the devices under the adapter that BlueZ reports as
// bonded, or paired when the Bonded property is absent.
func (p *Platform) BondedDevices(ctx context.Context) ([]bt.Device, error) {
	objs, err := p.bus.ManagedObjects(ctx)
	if err != nil {
		return nil, err
	}

	var devices []bt.Device
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if owner, ok := props["Adapter"].Value().(dbus.ObjectPath); ok && owner != p.adapterPath {
			continue
		}
		bonded, present := boolProp(props, "Bonded")
		if !present {
			bonded, _ = boolProp(props, "Paired")
		}
		if !bonded {
			continue
		}
		addr := stringProp(props, "Address")
		if addr == "" {
			addr = macFromPath(path)
		}
		devices = append(devices, bt.Device{Address: addr, Name: deviceName(props)})
	}
	return devices, nil
}

// RequestBond starts Device1.Pair and returns without waiting for it. A
// second request for a device whose Pair is still in flight is a no-op.
func (p *Platform) RequestBond(ctx context.Context, dev bt.Device) error {
	norm, err := bt.NormalizeAddress(dev.Address)
	if err != nil {
		return err
	}
	path := devicePath(p.adapterPath, norm)

	objs, err := p.bus.ManagedObjects(ctx)
	if err != nil {
		return err
	}
	if _, ok := objs[path][deviceIface]; !ok {
		return fmt.Errorf("bluez: device %s not known to %s", norm, p.adapter)
	}

	p.mu.Lock()
	if p.pairing[path] {
		p.mu.Unlock()
		return nil
	}
	p.pairing[path] = true
	p.mu.Unlock()

	slog.Info("[BLUEZ] Pairing", "device", dev.String())
	errc := p.bus.Go(path, deviceIface+".Pair")
	go p.followPair(path, norm, errc)
	return nil
}

func (p *Platform) followPair(path dbus.ObjectPath, addr string, errc <-chan error) {
	defer func() {
		p.mu.Lock()
		delete(p.pairing, path)
		p.mu.Unlock()
	}()

	select {
	case err := <-errc:
		switch {
		case err == nil:
			slog.Info("[BLUEZ] Paired", "address", addr)
		case dbusErrorName(err) == errAlreadyExists:
			slog.Debug("[BLUEZ] Already paired", "address", addr)
		default:
			slog.Warn("[BLUEZ] Pair failed", "address", addr, "error", err)
		}
	case <-time.After(pairResultTimeout):
		slog.Warn("[BLUEZ] Pair still pending", "address", addr)
	}
}

// NewA2DPHandle returns the A2DP control surface for this adapter.
func (p *Platform) NewA2DPHandle() bt.ProfileHandle {
	return &a2dpHandle{bus: p.bus, adapterPath: p.adapterPath}
}

func deviceName(props map[string]dbus.Variant) string {
	if name := stringProp(props, "Name"); name != "" {
		return name
	}
	return stringProp(props, "Alias")
}

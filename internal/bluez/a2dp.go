package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	dbus "github.com/godbus/dbus/v5"

	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
)

// a2dpHandle reads A2DP state from the object tree and connects the
// profile through Device1.ConnectProfile.
type a2dpHandle struct {
	bus         bus
	adapterPath dbus.ObjectPath
}

var _ bt.ProfileHandle = (*a2dpHandle)(nil)

func (h *a2dpHandle) ConnectionState(ctx context.Context, dev bt.Device) (bt.ProfileConnectionState, error) {
	norm, err := bt.NormalizeAddress(dev.Address)
	if err != nil {
		return bt.StateDisconnected, err
	}
	objs, err := h.bus.ManagedObjects(ctx)
	if err != nil {
		return bt.StateDisconnected, err
	}
	return a2dpState(objs, devicePath(h.adapterPath, norm)), nil
}

// a2dpState derives the profile state: a connected device with an A2DP
// media transport is connected; a connected device still resolving
// services is connecting.
func a2dpState(objs managedObjects, dev dbus.ObjectPath) bt.ProfileConnectionState {
	props, ok := objs[dev][deviceIface]
	if !ok {
		return bt.StateDisconnected
	}
	if connected, _ := boolProp(props, "Connected"); !connected {
		return bt.StateDisconnected
	}

	prefix := string(dev) + "/"
	for path, ifaces := range objs {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if t, ok := ifaces[transportIface]; ok && isA2DP(stringProp(t, "UUID")) {
			return bt.StateConnected
		}
	}

	if resolved, _ := boolProp(props, "ServicesResolved"); !resolved {
		return bt.StateConnecting
	}
	return bt.StateDisconnected
}

func isA2DP(uuid string) bool {
	return strings.EqualFold(uuid, A2DPSinkUUID) || strings.EqualFold(uuid, A2DPSourceUUID)
}

func (h *a2dpHandle) Connect(ctx context.Context, dev bt.Device) (bool, error) {
	norm, err := bt.NormalizeAddress(dev.Address)
	if err != nil {
		return false, err
	}
	err = h.bus.Call(ctx, devicePath(h.adapterPath, norm), deviceIface+".ConnectProfile", A2DPSinkUUID)
	return connectResult(norm, err)
}

// connectResult maps a ConnectProfile reply: BlueZ errors are a refusal,
// anything else is a failed call.
func connectResult(addr string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	name := dbusErrorName(err)
	switch {
	case name == errAlreadyConnected:
		return true, nil
	case strings.HasPrefix(name, bluezErrorPrefix):
		slog.Warn("[BLUEZ] ConnectProfile refused", "address", addr, "error", name)
		return false, nil
	default:
		return false, fmt.Errorf("bluez: ConnectProfile %s: %w", addr, err)
	}
}

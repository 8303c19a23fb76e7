// Package bt orchestrates bonding and A2DP profile connection for a chosen
// Bluetooth device. It is platform independent: the Bluetooth stack is
// reached through the Adapter and ProfileBinder interfaces, and outcomes are
// delivered to a Sink.
package bt

import (
	"context"
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Device identifies a remote Bluetooth device. Identity is the address.
type Device struct {
	Address string
	Name    string
}

// Same reports whether d and o refer to the same device.
func (d Device) Same(o Device) bool {
	a, errA := NormalizeAddress(d.Address)
	b, errB := NormalizeAddress(o.Address)
	if errA != nil || errB != nil {
		return strings.EqualFold(d.Address, o.Address)
	}
	return a == b
}

func (d Device) String() string {
	if d.Name == "" {
		return d.Address
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

// NormalizeAddress parses a MAC address and returns it upper-case and
// colon separated.
func NormalizeAddress(addr string) (string, error) {
	mac, err := bluetooth.ParseMAC(strings.ToUpper(strings.TrimSpace(addr)))
	if err != nil {
		return "", fmt.Errorf("bt: invalid address %q: %w", addr, err)
	}
	return mac.String(), nil
}

// BondState is the platform's bonding state for a device.
type BondState int

const (
	BondNone BondState = iota
	BondBonding
	BondBonded
)

func (s BondState) String() string {
	switch s {
	case BondBonding:
		return "bonding"
	case BondBonded:
		return "bonded"
	default:
		return "unbonded"
	}
}

// ProfileConnectionState is the A2DP connection state reported by the
// profile service.
type ProfileConnectionState int

const (
	StateDisconnected ProfileConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ProfileConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Adapter abstracts the local Bluetooth adapter for testing.
type Adapter interface {
	// BondedDevices returns the devices currently bonded with the adapter.
	BondedDevices(ctx context.Context) ([]Device, error)
	// RequestBond starts bonding with dev and returns without waiting for
	// the handshake to finish.
	RequestBond(ctx context.Context, dev Device) error
}

// ProfileHandle is the bound A2DP control surface.
type ProfileHandle interface {
	// ConnectionState returns the current A2DP state for dev.
	ConnectionState(ctx context.Context, dev Device) (ProfileConnectionState, error)
	// Connect connects the A2DP profile and reports whether it succeeded.
	Connect(ctx context.Context, dev Device) (bool, error)
}

// ProfileBinder acquires and releases a ProfileHandle. Bind is asynchronous:
// completion is observed through Ready.
type ProfileBinder interface {
	Bind() error
	Unbind() error
	Ready() bool
	Handle() ProfileHandle
}

// Sink receives connection outcomes.
type Sink interface {
	Notify(Outcome)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Outcome)

func (f SinkFunc) Notify(o Outcome) { f(o) }

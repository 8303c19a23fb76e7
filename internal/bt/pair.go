package bt

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PairOptions configures bonding.
type PairOptions struct {
	Timeout  time.Duration // how long to wait for the device to show up as bonded
	Interval time.Duration // bonded-set poll interval
}

// DefaultPairOptions returns the production bonding timings.
func DefaultPairOptions() PairOptions {
	return PairOptions{
		Timeout:  7 * time.Second,
		Interval: 200 * time.Millisecond,
	}
}

// Pairer drives the bonding handshake against an Adapter.
type Pairer struct {
	adapter Adapter
	opts    PairOptions
}

// NewPairer creates a Pairer. Zero options fall back to the defaults.
func NewPairer(adapter Adapter, opts PairOptions) *Pairer {
	def := DefaultPairOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	return &Pairer{adapter: adapter, opts: opts}
}

// IsBonded reports whether dev is in the adapter's bonded set, matching by
// address.
func (p *Pairer) IsBonded(ctx context.Context, dev Device) (bool, error) {
	bonded, err := p.adapter.BondedDevices(ctx)
	if err != nil {
		return false, fmt.Errorf("bt: list bonded devices: %w", err)
	}
	for _, d := range bonded {
		if d.Same(dev) {
			return true, nil
		}
	}
	return false, nil
}

// EnsureBonded returns true at once if dev is already bonded. Otherwise it
// requests bonding and polls the bonded set until dev appears or timeout
// elapses; a non-positive timeout uses the configured one. The result is
// whether dev was bonded when polling stopped. Cancelling ctx aborts the
// wait with false and ctx's error.
func (p *Pairer) EnsureBonded(ctx context.Context, dev Device, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = p.opts.Timeout
	}

	bonded, err := p.IsBonded(ctx, dev)
	if err != nil || bonded {
		return bonded, err
	}

	slog.Info("[BT] device not bonded, requesting bond", "device", dev.Address)
	if err := p.adapter.RequestBond(ctx, dev); err != nil {
		return false, fmt.Errorf("bt: request bond with %s: %w", dev.Address, err)
	}

	start := time.Now()
	bonded, err = pollUntil(ctx, p.opts.Interval, timeout, func() (bool, error) {
		return p.IsBonded(ctx, dev)
	})
	if err != nil {
		return false, err
	}
	if !bonded {
		slog.Warn("[BT] bonding timed out", "device", dev.Address, "timeout", timeout)
		return false, nil
	}
	slog.Info("[BT] bonded", "device", dev.Address, "elapsed", time.Since(start).Round(time.Millisecond))
	return true, nil
}
